package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dcrodman/showdown/internal/backend"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func syncDispatch(fn func()) { fn() }

// callLog is an ordered, concurrency-safe record of calls made to fakes.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) record(call string) {
	l.mu.Lock()
	l.calls = append(l.calls, call)
	l.mu.Unlock()
}

func (l *callLog) Calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func (l *callLog) count(call string) int {
	n := 0
	for _, c := range l.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

// fakeBackend implements Backend directly.
type fakeBackend struct {
	callLog

	registered   bool
	sessionID    string
	acceptErr    error
	stopErr      error
	terminateErr error
	endErr       error
}

func (b *fakeBackend) Registered() bool { return b.registered }

func (b *fakeBackend) AcceptPlayerSession(id string) error {
	b.record("AcceptPlayerSession:" + id)
	return b.acceptErr
}

func (b *fakeBackend) RemovePlayerSession(id string) error {
	b.record("RemovePlayerSession:" + id)
	return nil
}

func (b *fakeBackend) StopMatchBackfill(ticketID string) error {
	b.record("StopMatchBackfill:" + ticketID)
	return b.stopErr
}

func (b *fakeBackend) CurrentSessionID() (string, error) {
	if b.sessionID == "" {
		return "", backend.ErrNoGameSession
	}
	return b.sessionID, nil
}

func (b *fakeBackend) TerminateSession() error {
	b.record("TerminateSession")
	return b.terminateErr
}

func (b *fakeBackend) EndProcessing() error {
	b.record("EndProcessing")
	return b.endErr
}

// recordingSDK stands in for the websocket SDK underneath a backend.Client.
type recordingSDK struct {
	callLog

	initErr   error
	rejected  map[string]bool
	sessionID string
	params    backend.ProcessParameters
}

func (s *recordingSDK) Init(context.Context) error { return s.initErr }

func (s *recordingSDK) ProcessReady(_ context.Context, params backend.ProcessParameters) error {
	s.params = params
	return nil
}

func (s *recordingSDK) ActivateSession() error {
	s.record("ActivateSession")
	return nil
}

func (s *recordingSDK) AcceptPlayerSession(id string) error {
	s.record("AcceptPlayerSession:" + id)
	if s.rejected[id] {
		return &backend.RequestError{Action: "AcceptPlayerSession", StatusCode: 400, Message: "invalid player session"}
	}
	return nil
}

func (s *recordingSDK) RemovePlayerSession(id string) error {
	s.record("RemovePlayerSession:" + id)
	return nil
}

func (s *recordingSDK) StopMatchBackfill(ticketID string) error {
	s.record("StopMatchBackfill:" + ticketID)
	return nil
}

func (s *recordingSDK) CurrentSessionID() (string, error) {
	if s.sessionID == "" {
		return "", backend.ErrNoGameSession
	}
	return s.sessionID, nil
}

func (s *recordingSDK) TerminateSession() error {
	s.record("TerminateSession")
	return nil
}

func (s *recordingSDK) EndProcessing() error {
	s.record("EndProcessing")
	return nil
}

type fakeShutdowner struct {
	callLog
	called chan string
}

func newFakeShutdowner() *fakeShutdowner {
	return &fakeShutdowner{called: make(chan string, 16)}
}

func (f *fakeShutdowner) Shutdown(reason string) {
	f.record(reason)
	f.called <- reason
}

func (f *fakeShutdowner) wait(t *testing.T) string {
	t.Helper()
	select {
	case reason := <-f.called:
		return reason
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for shutdown")
		return ""
	}
}

type fakeReporter struct {
	reports int
}

func (r *fakeReporter) ReportMatch() { r.reports++ }

type fakeRoster struct {
	population int
	polls      int
}

func (r *fakeRoster) NumPlayers() int {
	r.polls++
	return r.population
}

type staticTickets string

func (s staticTickets) BackfillTicketID() string { return string(s) }

var errRejected = errors.New("rejected")
