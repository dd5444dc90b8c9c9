// Package match holds the mutable state of the game session that this process
// is hosting: team assignments and backfill tickets delivered by the
// orchestration backend, plus the terminate and health flags it flips.
package match

import "sync"

// RegistrationState is produced by the session-start event. After the start
// event has been applied only Status changes.
type RegistrationState struct {
	Status                 bool
	LatestBackfillTicketID string
	PlayerIDToTeam         map[string]string
}

// UpdateState is produced by session-update events. PlayerIDToTeam
// accumulates across updates and is never cleared.
type UpdateState struct {
	LatestBackfillTicketID string
	PlayerIDToTeam         map[string]string
}

// Store is safe for concurrent use. Backend events write to it from their own
// goroutines while the admission path and the population monitor read from it.
type Store struct {
	mu sync.RWMutex

	registration RegistrationState
	update       UpdateState
	// updated is set by the first session-update event.
	updated bool

	terminateRequested bool
	healthy            bool
}

func NewStore() *Store {
	return &Store{
		registration: RegistrationState{PlayerIDToTeam: make(map[string]string)},
		update:       UpdateState{PlayerIDToTeam: make(map[string]string)},
	}
}

// SetSessionStatus records whether activating the session succeeded.
func (s *Store) SetSessionStatus(active bool) {
	s.mu.Lock()
	s.registration.Status = active
	s.mu.Unlock()
}

// SessionActive reports the status recorded by SetSessionStatus.
func (s *Store) SessionActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registration.Status
}

// ApplySessionStart records the matchmaking results that came with the
// session-start event.
func (s *Store) ApplySessionStart(backfillTicketID string, playerTeams map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.registration.LatestBackfillTicketID = backfillTicketID
	for playerID, team := range playerTeams {
		s.registration.PlayerIDToTeam[playerID] = team
	}
}

// MergeSessionUpdate adds team assignments from a session-update event.
// Existing entries for other players are kept.
func (s *Store) MergeSessionUpdate(playerTeams map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.updated = true
	for playerID, team := range playerTeams {
		s.update.PlayerIDToTeam[playerID] = team
	}
}

// SetUpdateBackfillTicket overwrites the update state's ticket id. Every
// session-update event calls this, whatever its reason.
func (s *Store) SetUpdateBackfillTicket(ticketID string) {
	s.mu.Lock()
	s.updated = true
	s.update.LatestBackfillTicketID = ticketID
	s.mu.Unlock()
}

// LookupTeam resolves a player's team. Only one source is consulted: the
// update state if it has any assignments, otherwise the registration state.
func (s *Store) LookupTeam(playerID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	source := s.registration.PlayerIDToTeam
	if len(s.update.PlayerIDToTeam) > 0 {
		source = s.update.PlayerIDToTeam
	}
	team, ok := source[playerID]
	return team, ok
}

// BackfillTicketID returns the ticket of the backfill request currently in
// flight. Once any update has arrived its ticket id wins, even if empty.
func (s *Store) BackfillTicketID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.updated {
		return s.update.LatestBackfillTicketID
	}
	return s.registration.LatestBackfillTicketID
}

// Registration returns a copy of the registration state.
func (s *Store) Registration() RegistrationState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r := s.registration
	r.PlayerIDToTeam = copyTeams(s.registration.PlayerIDToTeam)
	return r
}

// Update returns a copy of the update state.
func (s *Store) Update() UpdateState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u := s.update
	u.PlayerIDToTeam = copyTeams(s.update.PlayerIDToTeam)
	return u
}

// RequestTermination is flipped by the backend's terminate request.
func (s *Store) RequestTermination() {
	s.mu.Lock()
	s.terminateRequested = true
	s.mu.Unlock()
}

func (s *Store) TerminationRequested() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.terminateRequested
}

// MarkHealthy is flipped by the first health check and never unset.
func (s *Store) MarkHealthy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthy = true
	return s.healthy
}

func (s *Store) Healthy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.healthy
}

func copyTeams(m map[string]string) map[string]string {
	c := make(map[string]string, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}
