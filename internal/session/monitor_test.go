package session

import (
	"testing"
	"time"
)

type monitorFixture struct {
	monitor   *Monitor
	scheduler *Scheduler
	roster    *fakeRoster
	backend   *fakeBackend
	reporter  *fakeReporter
	shutdown  *fakeShutdowner
	now       time.Time
}

func newMonitorFixture(ticket string) *monitorFixture {
	f := &monitorFixture{
		scheduler: NewScheduler(),
		roster:    &fakeRoster{},
		backend:   &fakeBackend{registered: true},
		reporter:  &fakeReporter{},
		shutdown:  newFakeShutdowner(),
		now:       epoch,
	}
	f.monitor = &Monitor{
		Logger:    testLogger(),
		Scheduler: f.scheduler,
		Timings:   DefaultTimings,
		Roster:    f.roster,
		Tickets:   staticTickets(ticket),
		Backfill:  f.backend,
		Reporter:  f.reporter,
		Shutdown:  f.shutdown,
		Dispatch:  syncDispatch,
	}
	f.monitor.Start(f.now)
	return f
}

// polls advances the clock one poll interval per population value.
func (f *monitorFixture) polls(population ...int) {
	for _, p := range population {
		f.roster.population = p
		f.advance(DefaultTimings.PollInterval)
	}
}

func (f *monitorFixture) advance(d time.Duration) int {
	f.now = f.now.Add(d)
	return f.scheduler.Advance(f.now)
}

func repeat(n, population int) []int {
	seq := make([]int, n)
	for i := range seq {
		seq[i] = population
	}
	return seq
}

func TestMonitor_FirstPollAfterOneInterval(t *testing.T) {
	f := newMonitorFixture("")

	if n := f.advance(DefaultTimings.PollInterval - time.Millisecond); n != 0 {
		t.Errorf("poll fired early")
	}
	if n := f.advance(time.Millisecond); n != 1 {
		t.Errorf("want first poll at one interval, fired %d", n)
	}
}

func TestMonitor_IdleTimeout(t *testing.T) {
	f := newMonitorFixture("backfill-1")
	f.polls(repeat(10, 0)...)

	if n := len(f.shutdown.Calls()); n != 1 {
		t.Fatalf("want exactly one shutdown, got %d", n)
	}
	if f.monitor.Phase() != PhaseEnded || f.monitor.GameStarted() {
		t.Errorf("want ended without a started game, phase = %s", f.monitor.Phase())
	}
	if f.scheduler.Len() != 0 {
		t.Errorf("all timers should be cancelled, %d pending", f.scheduler.Len())
	}

	polls := f.roster.polls
	if n := f.advance(10 * time.Minute); n != 0 {
		t.Errorf("%d timers fired after the idle timeout", n)
	}
	if f.roster.polls != polls || len(f.shutdown.Calls()) != 1 {
		t.Error("monitor kept running after the idle timeout")
	}
}

func TestMonitor_IdleCounter(t *testing.T) {
	tests := map[string]struct {
		population     []int
		wantEmptyPolls int
		wantShutdown   bool
	}{
		"nine_empty_polls": {
			population:     repeat(9, 0),
			wantEmptyPolls: 9,
		},
		"reset_by_single_player": {
			population:     []int{0, 0, 1, 0, 0},
			wantEmptyPolls: 2,
		},
		"reset_just_before_limit": {
			population:     append(append(repeat(9, 0), 2), repeat(9, 0)...),
			wantEmptyPolls: 9,
		},
		"limit_after_reset": {
			population:     append([]int{0, 3}, repeat(10, 0)...),
			wantEmptyPolls: 10,
			wantShutdown:   true,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			f := newMonitorFixture("")
			f.polls(tt.population...)

			if got := f.monitor.EmptyPolls(); got != tt.wantEmptyPolls {
				t.Errorf("EmptyPolls() want = %d, got = %d", tt.wantEmptyPolls, got)
			}
			if got := len(f.shutdown.Calls()) == 1; got != tt.wantShutdown {
				t.Errorf("shutdown want = %v, got = %v", tt.wantShutdown, got)
			}
		})
	}
}

func TestMonitor_MatchStart(t *testing.T) {
	f := newMonitorFixture("backfill-1")

	f.polls(4)
	if !f.monitor.GameStarted() || f.monitor.Phase() != PhaseActive {
		t.Fatalf("want an active match, phase = %s", f.monitor.Phase())
	}
	for _, key := range []string{pollTimer, cancelBackfillTimer, endMatchTimer} {
		if !f.scheduler.Pending(key) {
			t.Errorf("%s should be pending", key)
		}
	}

	// Match started at t=5s: a second full poll must not push the one-shots back.
	f.polls(4)
	f.advance(10 * time.Second)
	if n := f.backend.count("StopMatchBackfill:backfill-1"); n != 1 {
		t.Errorf("want backfill stopped once 15s after the start, got %d calls", n)
	}
	if f.reporter.reports != 0 {
		t.Error("match ended early")
	}

	f.advance(15 * time.Second)
	if f.reporter.reports != 1 {
		t.Errorf("want one report 30s after the start, got %d", f.reporter.reports)
	}
	if f.monitor.Phase() != PhaseEnded {
		t.Errorf("Phase() want = ended, got = %s", f.monitor.Phase())
	}

	polls := f.roster.polls
	if n := f.advance(10 * time.Minute); n != 0 {
		t.Errorf("%d timers fired after the match ended", n)
	}
	if f.roster.polls != polls || f.reporter.reports != 1 || len(f.shutdown.Calls()) != 0 {
		t.Error("monitor kept running after the match ended")
	}
}

func TestMonitor_BelowThresholdDoesNotStart(t *testing.T) {
	f := newMonitorFixture("backfill-1")
	f.polls(1, 2, 3, 3)

	if f.monitor.GameStarted() || f.scheduler.Pending(endMatchTimer) {
		t.Error("match started below the threshold")
	}
}

func TestMonitor_CancelBackfillWithoutTicket(t *testing.T) {
	f := newMonitorFixture("")
	f.polls(5)
	f.advance(DefaultTimings.EndMatchDelay)

	if calls := f.backend.Calls(); len(calls) != 0 {
		t.Errorf("want no backend calls without a ticket, got %v", calls)
	}
	if f.reporter.reports != 1 {
		t.Errorf("want the match to end, got %d reports", f.reporter.reports)
	}
}

func TestMonitor_CancelBackfillFailureIsIgnored(t *testing.T) {
	f := newMonitorFixture("backfill-1")
	f.backend.stopErr = errRejected
	f.polls(4)
	f.advance(DefaultTimings.EndMatchDelay)

	if n := f.backend.count("StopMatchBackfill:backfill-1"); n != 1 {
		t.Errorf("want a single attempt to stop backfill, got %d", n)
	}
	if f.reporter.reports != 1 {
		t.Errorf("want the match to end, got %d reports", f.reporter.reports)
	}
}

func TestPhase_String(t *testing.T) {
	tests := map[Phase]string{
		PhaseIdle:   "idle",
		PhaseActive: "active",
		PhaseEnded:  "ended",
		Phase(7):    "unknown",
	}
	for phase, want := range tests {
		if got := phase.String(); got != want {
			t.Errorf("String() want = %s, got = %s", want, got)
		}
	}
}
