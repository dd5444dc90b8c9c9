// Package session implements the lifecycle of the single game session this
// process hosts: admitting players, watching the population, reporting the
// outcome and shutting the process down in order.
package session

import (
	"math/rand"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/dcrodman/showdown/internal/match"
)

// Backend is everything the session needs from the orchestration backend.
type Backend interface {
	PlayerSessions
	BackfillStopper
	SessionIDSource
	Terminator
}

type Options struct {
	Logger  *logrus.Logger
	Backend Backend
	Store   *match.Store
	Timings Timings

	ResultsURL     string
	ServerPassword string
	ResultsTimeout time.Duration
	HTTPClient     *http.Client
	// DB is optional; when set every reported result is recorded.
	DB *gorm.DB

	// Exit requests a graceful process exit at the end of the shutdown handshake.
	Exit func()

	// The remaining fields exist for tests.
	Clock    func() time.Time
	Rand     *rand.Rand
	Dispatch func(func())
}

// Session wires the lifecycle components together and exposes the hooks the
// hosting layer calls. Tick must be called periodically from a single goroutine.
type Session struct {
	Scheduler *Scheduler
	Players   *Players
	Admission *Admission
	Monitor   *Monitor
	Reporter  *Reporter
	Sequencer *Sequencer

	logger *logrus.Logger
	clock  func() time.Time
}

func New(opts Options) *Session {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	exit := opts.Exit
	if exit == nil {
		exit = func() {}
	}

	s := &Session{
		Scheduler: NewScheduler(),
		Players:   NewPlayers(),
		logger:    opts.Logger,
		clock:     clock,
	}
	s.Sequencer = NewSequencer(opts.Logger, opts.Backend, exit)
	s.Admission = &Admission{
		Logger:   opts.Logger,
		Sessions: opts.Backend,
		Teams:    opts.Store,
		Players:  s.Players,
	}
	s.Reporter = &Reporter{
		Logger:   opts.Logger,
		Client:   opts.HTTPClient,
		URL:      opts.ResultsURL,
		Password: opts.ServerPassword,
		Timeout:  opts.ResultsTimeout,
		Sessions: opts.Backend,
		Shutdown: s.Sequencer,
		DB:       opts.DB,
		Rand:     opts.Rand,
	}
	s.Monitor = &Monitor{
		Logger:    opts.Logger,
		Scheduler: s.Scheduler,
		Timings:   opts.Timings,
		Roster:    s.Players,
		Tickets:   opts.Store,
		Backfill:  opts.Backend,
		Reporter:  s.Reporter,
		Shutdown:  s.Sequencer,
		Dispatch:  opts.Dispatch,
	}
	return s
}

// OnSessionWillStart begins population monitoring.
func (s *Session) OnSessionWillStart() {
	s.logger.Info("[SESSION] session starting, monitoring population")
	s.Monitor.Start(s.clock())
}

// OnPlayerJoining decides whether the connection connID may join, given the
// options string the client connected with.
func (s *Session) OnPlayerJoining(connID, options string) AdmissionResult {
	return s.Admission.Admit(connID,
		ParseOption(options, OptionPlayerSessionID),
		ParseOption(options, OptionPlayerID),
	)
}

// OnPlayerLeft releases whatever the connection connID held.
func (s *Session) OnPlayerLeft(connID string) {
	s.Admission.Release(connID)
}

// Tick runs every timer due at now. Once shutdown has begun no timer runs again.
func (s *Session) Tick(now time.Time) {
	if s.Sequencer.Started() {
		if !s.Scheduler.Stopped() {
			s.Scheduler.Stop()
		}
		return
	}
	s.Scheduler.Advance(now)
}

// Done is closed when the shutdown handshake has finished.
func (s *Session) Done() <-chan struct{} {
	return s.Sequencer.Done()
}
