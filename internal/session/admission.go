package session

import (
	"github.com/sirupsen/logrus"
)

// ReasonUnauthorized is given to players whose session ticket the backend refused.
const ReasonUnauthorized = "Unauthorized"

// AdmissionResult is the verdict for a joining player. Team is only set on
// accepted players whose team the matchmaker reported.
type AdmissionResult struct {
	Accepted bool
	Team     string
	Reason   string
}

func accepted(team string) AdmissionResult {
	return AdmissionResult{Accepted: true, Team: team}
}

func rejected(reason string) AdmissionResult {
	return AdmissionResult{Reason: reason}
}

// PlayerSessions validates and releases backend-issued session tickets.
type PlayerSessions interface {
	Registered() bool
	AcceptPlayerSession(playerSessionID string) error
	RemovePlayerSession(playerSessionID string) error
}

// TeamLookup resolves a player's matchmade team.
type TeamLookup interface {
	LookupTeam(playerID string) (string, bool)
}

// Admission validates players as they join and releases their slots when
// they leave.
type Admission struct {
	Logger   *logrus.Logger
	Sessions PlayerSessions
	Teams    TeamLookup
	Players  *Players
}

// Admit checks a joining connection's session ticket with the backend.
//
// Without a ticket, or while the process is not registered with the backend,
// the player is let in without a team. A refused ticket rejects the player
// and leaves no trace in the registry.
func (a *Admission) Admit(connID, playerSessionID, playerID string) AdmissionResult {
	record := &PlayerSessionRecord{PlayerID: playerID}

	if !a.Sessions.Registered() {
		a.Logger.Debugf("[SESSION] admitting %s without validation (degraded mode)", connID)
		a.Players.Put(connID, record)
		return accepted("")
	}
	if playerSessionID == "" {
		a.Logger.Warnf("[SESSION] connection %s joined without a player session id", connID)
		a.Players.Put(connID, record)
		return accepted("")
	}

	if err := a.Sessions.AcceptPlayerSession(playerSessionID); err != nil {
		a.Logger.Warnf("[SESSION] rejected player session %s for player %s: %v", playerSessionID, playerID, err)
		return rejected(ReasonUnauthorized)
	}

	record.PlayerSessionID = playerSessionID
	if team, ok := a.Teams.LookupTeam(playerID); ok {
		record.Team = team
	}
	a.Players.Put(connID, record)

	a.Logger.Infof("[SESSION] admitted player %s (session %s) to team %q", playerID, playerSessionID, record.Team)
	return accepted(record.Team)
}

// Release frees the player session held by connID, if the connection was
// admitted with one.
func (a *Admission) Release(connID string) {
	record, ok := a.Players.Remove(connID)
	if !ok || record.PlayerSessionID == "" {
		return
	}
	if err := a.Sessions.RemovePlayerSession(record.PlayerSessionID); err != nil {
		a.Logger.Warnf("[SESSION] failed to remove player session %s: %v", record.PlayerSessionID, err)
		return
	}
	a.Logger.Infof("[SESSION] released player session %s", record.PlayerSessionID)
}
