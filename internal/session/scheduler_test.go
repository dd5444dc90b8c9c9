package session

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

var epoch = time.Date(2023, 3, 1, 12, 0, 0, 0, time.UTC)

func at(d time.Duration) time.Time {
	return epoch.Add(d)
}

func TestScheduler_OrdersByFireTime(t *testing.T) {
	s := NewScheduler()
	var fired []string
	record := func(name string) func(time.Time) {
		return func(time.Time) { fired = append(fired, name) }
	}

	s.After("c", at(30*time.Second), record("c"))
	s.After("a", at(10*time.Second), record("a"))
	s.After("b", at(10*time.Second), record("b"))

	if n := s.Advance(at(9 * time.Second)); n != 0 {
		t.Errorf("Advance() before any deadline fired %d actions", n)
	}
	if n := s.Advance(at(30 * time.Second)); n != 3 {
		t.Errorf("Advance() want = 3 fired, got = %d", n)
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, fired); diff != "" {
		t.Errorf("fire order mismatch; diff:\n%s", diff)
	}
	if s.Len() != 0 {
		t.Errorf("one-shot timers should be removed after firing, %d pending", s.Len())
	}
}

func TestScheduler_Cancel(t *testing.T) {
	s := NewScheduler()
	fired := false
	s.After("x", at(time.Second), func(time.Time) { fired = true })

	if !s.Cancel("x") {
		t.Error("Cancel() should report a pending timer")
	}
	if s.Cancel("x") {
		t.Error("second Cancel() should report nothing pending")
	}
	s.Advance(at(time.Minute))
	if fired {
		t.Error("cancelled timer fired")
	}
}

func TestScheduler_ReplaceByKey(t *testing.T) {
	s := NewScheduler()
	var fired []time.Time
	s.After("x", at(time.Second), func(now time.Time) { fired = append(fired, now) })
	s.After("x", at(5*time.Second), func(now time.Time) { fired = append(fired, now) })

	s.Advance(at(2 * time.Second))
	if len(fired) != 0 {
		t.Fatal("replaced timer fired")
	}
	s.Advance(at(5 * time.Second))
	if len(fired) != 1 || s.Len() != 0 {
		t.Errorf("want exactly one firing, got %d with %d pending", len(fired), s.Len())
	}
}

func TestScheduler_Every(t *testing.T) {
	s := NewScheduler()
	count := 0
	s.Every("poll", at(5*time.Second), 5*time.Second, func(time.Time) { count++ })

	for _, d := range []time.Duration{4, 5, 9, 10, 15} {
		s.Advance(at(d * time.Second))
	}
	if count != 3 {
		t.Errorf("want 3 polls by t=15s, got %d", count)
	}
	if !s.Pending("poll") {
		t.Error("repeating timer should still be pending")
	}
}

func TestScheduler_ActionCancelsItself(t *testing.T) {
	s := NewScheduler()
	count := 0
	s.Every("poll", at(time.Second), time.Second, func(time.Time) {
		count++
		if count == 2 {
			s.Cancel("poll")
		}
	})

	for i := 1; i <= 5; i++ {
		s.Advance(at(time.Duration(i) * time.Second))
	}
	if count != 2 {
		t.Errorf("want 2 firings, got %d", count)
	}
}

func TestScheduler_ActionCancelsOthers(t *testing.T) {
	s := NewScheduler()
	laterFired := false
	s.After("first", at(time.Second), func(time.Time) { s.Cancel("later") })
	s.After("later", at(time.Second), func(time.Time) { laterFired = true })

	s.Advance(at(time.Second))
	if laterFired {
		t.Error("timer cancelled by an earlier action in the same tick fired")
	}
}

func TestScheduler_Stop(t *testing.T) {
	s := NewScheduler()
	count := 0
	s.After("a", at(time.Second), func(time.Time) {
		count++
		s.Stop()
	})
	s.After("b", at(time.Second), func(time.Time) { count++ })

	s.Advance(at(time.Second))
	s.After("c", at(2*time.Second), func(time.Time) { count++ })
	s.Advance(at(time.Hour))

	if count != 1 {
		t.Errorf("want only the stopping action to run, got %d", count)
	}
	if !s.Stopped() || s.Len() != 0 {
		t.Errorf("scheduler should be stopped and empty, len = %d", s.Len())
	}
}
