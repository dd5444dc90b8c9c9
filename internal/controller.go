package internal

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/dcrodman/showdown/internal/backend"
	"github.com/dcrodman/showdown/internal/core"
	"github.com/dcrodman/showdown/internal/core/data"
	"github.com/dcrodman/showdown/internal/core/debug"
	"github.com/dcrodman/showdown/internal/gateway"
	"github.com/dcrodman/showdown/internal/match"
	"github.com/dcrodman/showdown/internal/session"
)

// Controller is the main entrypoint for showdown. It's responsible for
// initializing any shared resources (such as database and logging), connecting
// to the orchestration backend, and running the session until it exits.
type Controller struct {
	Config *core.Config
	// Logger is created from Config if not set.
	Logger *logrus.Logger

	wg sync.WaitGroup
	db *gorm.DB

	store   *match.Store
	sdk     *backend.WebSocketSDK
	client  *backend.Client
	session *session.Session
	gateway *gateway.Server
}

// Start runs the server until ctx is cancelled or the session's shutdown
// handshake asks the process to exit.
func (c *Controller) Start(ctx context.Context) error {
	if err := c.Config.Validate(); err != nil {
		return err
	}
	if c.Logger == nil {
		logger, err := core.NewLogger(c.Config)
		if err != nil {
			return fmt.Errorf("error initializing logger: %w", err)
		}
		c.Logger = logger
	}

	ctx, exit := context.WithCancel(ctx)
	defer func() {
		exit()
		c.Shutdown()
	}()

	if c.Config.Database.Engine != "" {
		db, err := data.Open(c.Config)
		if err != nil {
			c.Logger.Warnf("match results will not be recorded: %v", err)
		} else {
			c.db = db
		}
	}

	c.declareComponents(exit)

	// Start any debug utilities if we're configured to do so.
	if c.Config.Debugging.Enabled {
		debug.StartUtilities(c.Logger, c.Config.Debugging.PprofPort, c.debugState)
	}

	// Players are only let in unchecked once registration has settled, so
	// the gateway stays closed until then.
	c.register(ctx)
	if err := c.gateway.Start(ctx, &c.wg); err != nil {
		return fmt.Errorf("error starting gateway: %w", err)
	}

	c.session.OnSessionWillStart()
	c.run(ctx)
	return nil
}

func (c *Controller) declareComponents(exit func()) {
	c.store = match.NewStore()
	c.sdk = &backend.WebSocketSDK{
		URL:                 c.Config.Backend.URL,
		ProcessID:           c.Config.Backend.ProcessID,
		HostID:              c.Config.Backend.HostID,
		FleetID:             c.Config.Backend.FleetID,
		AuthToken:           c.Config.Backend.AuthToken,
		RequestTimeout:      c.Config.Backend.RequestTimeout,
		HealthCheckInterval: c.Config.Backend.HealthCheckInterval,
		Logger:              c.Logger,
	}
	c.client = &backend.Client{
		Logger: c.Logger,
		SDK:    c.sdk,
		Store:  c.store,
	}
	c.session = session.New(session.Options{
		Logger:  c.Logger,
		Backend: c.client,
		Store:   c.store,
		Timings: session.Timings{
			PollInterval:   c.Config.Match.PollInterval,
			StartThreshold: c.Config.Match.StartThreshold,
			IdlePollLimit:  c.Config.Match.IdlePollLimit,
			BackfillDelay:  c.Config.Match.BackfillDelay,
			EndMatchDelay:  c.Config.Match.EndMatchDelay,
		},
		ResultsURL:     c.Config.ResultsURL(),
		ServerPassword: c.Config.Results.ServerPassword,
		ResultsTimeout: c.Config.Results.Timeout,
		HTTPClient:     &http.Client{},
		DB:             c.db,
		Exit:           exit,
	})
	c.gateway = &gateway.Server{
		Address:        c.Config.GatewayAddress(),
		MaxConnections: c.Config.MaxConnections,
		Hooks:          c.session,
		Logger:         c.Logger,
	}
}

// register connects to the orchestration backend. Failure leaves the session
// running without backend integration.
func (c *Controller) register(ctx context.Context) {
	if c.Config.Backend.URL == "" {
		c.Logger.Warn("[BACKEND] no backend url configured, running in degraded mode")
		return
	}

	regCtx, cancel := context.WithTimeout(ctx, c.Config.Backend.RequestTimeout)
	defer cancel()
	if err := c.client.Register(regCtx, c.Config.Gateway.Port, c.Config.Backend.LogPaths); err != nil {
		c.Logger.Warnf("[BACKEND] registration failed, running in degraded mode: %v", err)
	}
}

// run is the tick loop. Every timer in the session fires from here.
func (c *Controller) run(ctx context.Context) {
	interval := c.Config.TickInterval
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			c.session.Tick(now)
		}
	}
}

func (c *Controller) debugState() interface{} {
	return struct {
		Registered   bool
		Registration match.RegistrationState
		Update       match.UpdateState
		Backfill     string
		Connections  int
	}{
		Registered:   c.client.Registered(),
		Registration: c.store.Registration(),
		Update:       c.store.Update(),
		Backfill:     c.store.BackfillTicketID(),
		Connections:  c.gateway.NumConnections(),
	}
}

// Shutdown waits for the gateway to close its connections before releasing
// the backend connection and the database.
func (c *Controller) Shutdown() {
	c.wg.Wait()

	if c.sdk != nil {
		if err := c.sdk.Close(); err != nil {
			c.Logger.Warnf("error closing backend connection: %v", err)
		}
	}
	if c.db != nil {
		if err := data.Close(c.db); err != nil {
			c.Logger.Warnf("error closing database: %v", err)
		}
	}
	c.Logger.Info("shut down")
}
