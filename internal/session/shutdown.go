package session

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Terminator is the part of the backend the shutdown handshake talks to.
type Terminator interface {
	TerminateSession() error
	EndProcessing() error
}

// Shutdowner starts the shutdown handshake.
type Shutdowner interface {
	Shutdown(reason string)
}

// Sequencer performs the ordered shutdown handshake: terminate the session,
// then end processing, then exit. A failed step stops the sequence and the
// process is left running for the backend's supervisor to deal with.
//
// Only the first Shutdown call has any effect.
type Sequencer struct {
	Logger  *logrus.Logger
	Backend Terminator
	// Exit requests a graceful process exit.
	Exit func()

	once    sync.Once
	started atomic.Bool
	done    chan struct{}
}

func NewSequencer(logger *logrus.Logger, backend Terminator, exit func()) *Sequencer {
	return &Sequencer{
		Logger:  logger,
		Backend: backend,
		Exit:    exit,
		done:    make(chan struct{}),
	}
}

// Shutdown starts the handshake on its own goroutine and returns immediately.
func (s *Sequencer) Shutdown(reason string) {
	s.once.Do(func() {
		s.started.Store(true)
		s.Logger.Infof("[SESSION] shutting down: %s", reason)
		go s.run()
	})
}

func (s *Sequencer) run() {
	defer close(s.done)

	if err := s.Backend.TerminateSession(); err != nil {
		s.Logger.Errorf("[SESSION] failed to terminate game session, leaving process running: %v", err)
		return
	}
	if err := s.Backend.EndProcessing(); err != nil {
		s.Logger.Errorf("[SESSION] failed to end processing, leaving process running: %v", err)
		return
	}
	s.Logger.Info("[SESSION] game session terminated, exiting")
	s.Exit()
}

// Started reports whether Shutdown has been called.
func (s *Sequencer) Started() bool {
	return s.started.Load()
}

// Done is closed once the handshake has finished, whether or not it succeeded.
func (s *Sequencer) Done() <-chan struct{} {
	return s.done
}
