package session

import (
	"container/heap"
	"time"
)

// Scheduler is a priority queue of timed actions polled by the tick loop.
// Every timer is identified by a key; scheduling a key that is already
// pending replaces it, and cancellation removes it by key.
//
// Scheduler is not safe for concurrent use. The tick loop owns it.
type Scheduler struct {
	queue   timerQueue
	timers  map[string]*timer
	seq     uint64
	stopped bool
}

type timer struct {
	key    string
	fireAt time.Time
	// period is zero for one-shot timers.
	period time.Duration
	action func(now time.Time)
	seq    uint64
	index  int
}

func NewScheduler() *Scheduler {
	return &Scheduler{timers: make(map[string]*timer)}
}

// After runs action once at at.
func (s *Scheduler) After(key string, at time.Time, action func(now time.Time)) {
	s.schedule(key, at, 0, action)
}

// Every runs action at first and then every period until cancelled.
func (s *Scheduler) Every(key string, first time.Time, period time.Duration, action func(now time.Time)) {
	if period <= 0 {
		panic("session: non-positive period for repeating timer " + key)
	}
	s.schedule(key, first, period, action)
}

func (s *Scheduler) schedule(key string, at time.Time, period time.Duration, action func(now time.Time)) {
	if s.stopped {
		return
	}
	s.Cancel(key)

	s.seq++
	t := &timer{key: key, fireAt: at, period: period, action: action, seq: s.seq}
	s.timers[key] = t
	heap.Push(&s.queue, t)
}

// Cancel removes the timer registered under key and reports whether one was pending.
func (s *Scheduler) Cancel(key string) bool {
	t, ok := s.timers[key]
	if !ok {
		return false
	}
	delete(s.timers, key)
	heap.Remove(&s.queue, t.index)
	return true
}

// Pending reports whether a timer is registered under key.
func (s *Scheduler) Pending(key string) bool {
	_, ok := s.timers[key]
	return ok
}

// Len is the number of pending timers.
func (s *Scheduler) Len() int {
	return len(s.timers)
}

// Advance runs every action due at or before now, earliest first. Timers
// scheduled at the same instant run in the order they were scheduled. It
// returns the number of actions run.
func (s *Scheduler) Advance(now time.Time) int {
	fired := 0
	for !s.stopped && s.queue.Len() > 0 {
		next := s.queue[0]
		if next.fireAt.After(now) {
			break
		}
		heap.Pop(&s.queue)
		delete(s.timers, next.key)

		// Repeating timers are re-armed before running so the action can cancel them.
		if next.period > 0 {
			s.seq++
			next.fireAt = next.fireAt.Add(next.period)
			next.seq = s.seq
			s.timers[next.key] = next
			heap.Push(&s.queue, next)
		}

		next.action(now)
		fired++
	}
	return fired
}

// Stop cancels every timer. Nothing scheduled afterwards will run.
func (s *Scheduler) Stop() {
	s.stopped = true
	s.timers = make(map[string]*timer)
	s.queue = nil
}

// Stopped reports whether Stop has been called.
func (s *Scheduler) Stopped() bool {
	return s.stopped
}

type timerQueue []*timer

func (q timerQueue) Len() int { return len(q) }

func (q timerQueue) Less(i, j int) bool {
	if q[i].fireAt.Equal(q[j].fireAt) {
		return q[i].seq < q[j].seq
	}
	return q[i].fireAt.Before(q[j].fireAt)
}

func (q timerQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *timerQueue) Push(x interface{}) {
	t := x.(*timer)
	t.index = len(*q)
	*q = append(*q, t)
}

func (q *timerQueue) Pop() interface{} {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*q = old[:n-1]
	return t
}
