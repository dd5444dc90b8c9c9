package backend

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/davecgh/go-spew/spew"
	"github.com/sirupsen/logrus"

	"github.com/dcrodman/showdown/internal/match"
)

// Client registers this process with the orchestration backend and turns the
// backend's events into updates of the match state store. It also fronts the
// backend calls the rest of the session makes; until registration succeeds
// every one of them fails with ErrNotConnected.
type Client struct {
	Logger *logrus.Logger
	SDK    SDK
	Store  *match.Store

	registered atomic.Bool
}

// Register connects to the backend and reports the process as ready to host
// a session on port, installing the four event handlers.
func (c *Client) Register(ctx context.Context, port int, logPaths []string) error {
	if err := c.SDK.Init(ctx); err != nil {
		return fmt.Errorf("initializing backend connection: %w", err)
	}

	params := ProcessParameters{
		Port:                port,
		LogPaths:            logPaths,
		OnStartGameSession:  c.onStartGameSession,
		OnUpdateGameSession: c.onUpdateGameSession,
		OnProcessTerminate:  c.onProcessTerminate,
		OnHealthCheck:       c.onHealthCheck,
	}
	if err := c.SDK.ProcessReady(ctx, params); err != nil {
		return fmt.Errorf("reporting process ready: %w", err)
	}

	c.registered.Store(true)
	c.Logger.Infof("[BACKEND] process ready on port %d", port)
	return nil
}

// Registered reports whether Register succeeded.
func (c *Client) Registered() bool {
	return c.registered.Load()
}

func (c *Client) onStartGameSession(session GameSession) {
	c.Logger.Infof("[BACKEND] starting game session %s", session.GameSessionID)
	c.Logger.Debugf("[BACKEND] game session: %s", spew.Sdump(session))

	active := true
	if err := c.SDK.ActivateSession(); err != nil {
		c.Logger.Errorf("[BACKEND] failed to activate game session %s: %v", session.GameSessionID, err)
		active = false
	}
	c.Store.SetSessionStatus(active)

	data, err := ParseMatchmakerData(session.MatchmakerData)
	if err != nil {
		c.Logger.Errorf("[BACKEND] ignoring matchmaker data for session %s: %v", session.GameSessionID, err)
		return
	}
	c.Store.ApplySessionStart(data.AutoBackfillTicketID, data.PlayerTeams())
}

func (c *Client) onUpdateGameSession(update UpdateGameSession) {
	c.Logger.Infof("[BACKEND] game session %s updated: %s", update.GameSession.GameSessionID, update.UpdateReason)

	switch {
	case update.UpdateReason == MatchmakingDataUpdated:
		c.Logger.Debugf("[BACKEND] updated game session: %s", spew.Sdump(update.GameSession))
		data, err := ParseMatchmakerData(update.GameSession.MatchmakerData)
		if err != nil {
			c.Logger.Errorf("[BACKEND] ignoring updated matchmaker data: %v", err)
			break
		}
		c.Store.MergeSessionUpdate(data.PlayerTeams())
	case update.UpdateReason.IsBackfillEnded():
		// TODO: decide whether an ended backfill should tear the session down early;
		// for now the idle timeout is what eventually ends an underpopulated session.
		c.Logger.Warnf("[BACKEND] backfill ticket %s ended (%s)", update.BackfillTicketID, update.UpdateReason)
	}

	c.Store.SetUpdateBackfillTicket(update.BackfillTicketID)
}

func (c *Client) onProcessTerminate() {
	c.Logger.Warn("[BACKEND] backend requested process termination")
	c.Store.RequestTermination()
}

func (c *Client) onHealthCheck() bool {
	return c.Store.MarkHealthy()
}

func (c *Client) AcceptPlayerSession(playerSessionID string) error {
	if !c.Registered() {
		return ErrNotConnected
	}
	return c.SDK.AcceptPlayerSession(playerSessionID)
}

func (c *Client) RemovePlayerSession(playerSessionID string) error {
	if !c.Registered() {
		return ErrNotConnected
	}
	return c.SDK.RemovePlayerSession(playerSessionID)
}

func (c *Client) StopMatchBackfill(ticketID string) error {
	if !c.Registered() {
		return ErrNotConnected
	}
	return c.SDK.StopMatchBackfill(ticketID)
}

func (c *Client) CurrentSessionID() (string, error) {
	if !c.Registered() {
		return "", ErrNotConnected
	}
	return c.SDK.CurrentSessionID()
}

func (c *Client) TerminateSession() error {
	if !c.Registered() {
		return ErrNotConnected
	}
	return c.SDK.TerminateSession()
}

func (c *Client) EndProcessing() error {
	if !c.Registered() {
		return ErrNotConnected
	}
	return c.SDK.EndProcessing()
}
