package backend

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned by any call made before Init succeeds or
	// after the connection to the backend has been closed.
	ErrNotConnected = errors.New("not connected to the orchestration backend")
	// ErrNoGameSession is returned when an operation needs a game session but
	// the backend has not assigned one to this process.
	ErrNoGameSession = errors.New("no game session assigned to this process")
)

// RequestError is returned when the backend answers a request with a non-2xx status.
type RequestError struct {
	Action     string
	StatusCode int
	Message    string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s failed with status %d: %s", e.Action, e.StatusCode, e.Message)
}

// UpdateReason explains why the backend sent a session update.
type UpdateReason string

const (
	MatchmakingDataUpdated UpdateReason = "MATCHMAKING_DATA_UPDATED"
	BackfillFailed         UpdateReason = "BACKFILL_FAILED"
	BackfillTimedOut       UpdateReason = "BACKFILL_TIMED_OUT"
	BackfillCancelled      UpdateReason = "BACKFILL_CANCELLED"
	UnknownUpdateReason    UpdateReason = "UNKNOWN"
)

// IsBackfillEnded reports whether r signals that the backfill request stopped
// without finding players.
func (r UpdateReason) IsBackfillEnded() bool {
	return r == BackfillFailed || r == BackfillTimedOut || r == BackfillCancelled
}

// GameSession is the backend's description of the session this process hosts.
type GameSession struct {
	GameSessionID             string            `json:"GameSessionId"`
	Name                      string            `json:"Name,omitempty"`
	FleetID                   string            `json:"FleetId,omitempty"`
	MaximumPlayerSessionCount int               `json:"MaximumPlayerSessionCount,omitempty"`
	Port                      int               `json:"Port,omitempty"`
	IPAddress                 string            `json:"IpAddress,omitempty"`
	DNSName                   string            `json:"DnsName,omitempty"`
	GameProperties            map[string]string `json:"GameProperties,omitempty"`
	GameSessionData           string            `json:"GameSessionData,omitempty"`
	// MatchmakerData is a JSON document; see ParseMatchmakerData.
	MatchmakerData string `json:"MatchmakerData,omitempty"`
}

// UpdateGameSession is delivered when the backend changes a running session,
// usually because a backfill request placed new players.
type UpdateGameSession struct {
	GameSession      GameSession  `json:"GameSession"`
	UpdateReason     UpdateReason `json:"UpdateReason"`
	BackfillTicketID string       `json:"BackfillTicketId"`
}

// ProcessParameters are handed to the backend when the process reports ready.
// The callbacks are invoked on goroutines owned by the SDK and may run
// concurrently with each other and with the caller.
type ProcessParameters struct {
	Port     int
	LogPaths []string

	OnStartGameSession  func(GameSession)
	OnUpdateGameSession func(UpdateGameSession)
	OnProcessTerminate  func()
	OnHealthCheck       func() bool
}

// SDK is the orchestration backend API consumed by a game server process.
type SDK interface {
	// Init opens the connection to the backend.
	Init(ctx context.Context) error
	// ProcessReady registers the process and its callbacks with the backend.
	ProcessReady(ctx context.Context, params ProcessParameters) error

	ActivateSession() error
	AcceptPlayerSession(playerSessionID string) error
	RemovePlayerSession(playerSessionID string) error
	StopMatchBackfill(ticketID string) error
	CurrentSessionID() (string, error)
	TerminateSession() error
	// EndProcessing tells the backend this process is about to exit.
	EndProcessing() error
}
