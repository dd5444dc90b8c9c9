package session

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Phase of the match as seen by the Monitor.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseActive
	PhaseEnded
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseActive:
		return "active"
	case PhaseEnded:
		return "ended"
	default:
		return "unknown"
	}
}

const (
	pollTimer           = "poll"
	cancelBackfillTimer = "cancel-backfill"
	endMatchTimer       = "end-match"
)

// Timings configures the Monitor.
type Timings struct {
	// PollInterval is both the delay before the first poll and the period.
	PollInterval time.Duration
	// StartThreshold is the population that starts the match.
	StartThreshold int
	// IdlePollLimit is the number of consecutive empty polls that ends an
	// unstarted session.
	IdlePollLimit int
	BackfillDelay time.Duration
	EndMatchDelay time.Duration
}

// DefaultTimings are the values the game mode has always used.
var DefaultTimings = Timings{
	PollInterval:   5 * time.Second,
	StartThreshold: 4,
	IdlePollLimit:  10,
	BackfillDelay:  15 * time.Second,
	EndMatchDelay:  30 * time.Second,
}

// Roster counts the connected players.
type Roster interface {
	NumPlayers() int
}

// TicketSource supplies the id of the backfill request in flight.
type TicketSource interface {
	BackfillTicketID() string
}

type BackfillStopper interface {
	StopMatchBackfill(ticketID string) error
}

// MatchReporter is invoked once when the match ends.
type MatchReporter interface {
	ReportMatch()
}

// Monitor polls the population and drives the match through its phases. It
// runs entirely on the tick loop through the Scheduler.
type Monitor struct {
	Logger    *logrus.Logger
	Scheduler *Scheduler
	Timings   Timings
	Roster    Roster
	Tickets   TicketSource
	Backfill  BackfillStopper
	Reporter  MatchReporter
	Shutdown  Shutdowner
	// Dispatch runs fire-and-forget backend calls off the tick loop. It
	// defaults to starting a goroutine.
	Dispatch func(func())

	phase       Phase
	gameStarted bool
	emptyPolls  int
}

// Start schedules the first poll one interval after now.
func (m *Monitor) Start(now time.Time) {
	m.Scheduler.Every(pollTimer, now.Add(m.Timings.PollInterval), m.Timings.PollInterval, m.poll)
}

func (m *Monitor) Phase() Phase {
	return m.phase
}

func (m *Monitor) GameStarted() bool {
	return m.gameStarted
}

// EmptyPolls is the number of consecutive polls that found nobody connected.
func (m *Monitor) EmptyPolls() int {
	return m.emptyPolls
}

func (m *Monitor) poll(now time.Time) {
	population := m.Roster.NumPlayers()

	switch {
	case !m.gameStarted && population >= m.Timings.StartThreshold:
		m.emptyPolls = 0
		m.Scheduler.After(cancelBackfillTimer, now.Add(m.Timings.BackfillDelay), m.cancelBackfill)
		m.Scheduler.After(endMatchTimer, now.Add(m.Timings.EndMatchDelay), m.endMatch)
		m.gameStarted = true
		m.phase = PhaseActive
		m.Logger.Infof("[SESSION] match started with %d players", population)
	case population == 0:
		m.emptyPolls++
		if m.emptyPolls == m.Timings.IdlePollLimit {
			m.Scheduler.Cancel(pollTimer)
			m.Scheduler.Cancel(cancelBackfillTimer)
			m.Scheduler.Cancel(endMatchTimer)
			m.phase = PhaseEnded
			m.Logger.Infof("[SESSION] no players for %d polls, ending session", m.emptyPolls)
			m.Shutdown.Shutdown("idle timeout")
		}
	default:
		m.emptyPolls = 0
	}
}

func (m *Monitor) cancelBackfill(time.Time) {
	ticketID := m.Tickets.BackfillTicketID()
	if ticketID == "" {
		return
	}

	m.dispatch(func() {
		if err := m.Backfill.StopMatchBackfill(ticketID); err != nil {
			m.Logger.Warnf("[SESSION] failed to stop backfill ticket %s: %v", ticketID, err)
			return
		}
		m.Logger.Infof("[SESSION] stopped backfill ticket %s", ticketID)
	})
}

func (m *Monitor) endMatch(time.Time) {
	m.Scheduler.Cancel(pollTimer)
	m.phase = PhaseEnded
	m.Reporter.ReportMatch()
}

func (m *Monitor) dispatch(fn func()) {
	if m.Dispatch != nil {
		m.Dispatch(fn)
		return
	}
	go fn()
}
