package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"smatrader/internal/pricefeed"
	"smatrader/internal/session"
	"smatrader/internal/tracker"
)

func newSession(t *testing.T) *session.Session {
	t.Helper()
	s, err := session.New(tracker.Config{ShortWindow: 2, LongWindow: 3})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func constant(p float64) pricefeed.Source {
	return pricefeed.SourceFunc(func(ctx context.Context) (float64, error) { return p, nil })
}

func TestNew_InvalidInterval(t *testing.T) {
	if _, err := New(constant(1), newSession(t), 0); !errors.Is(err, ErrInvalidInterval) {
		t.Fatalf("expected ErrInvalidInterval, got %v", err)
	}
}

func TestStart_TicksImmediatelyAndPeriodically(t *testing.T) {
	sess := newSession(t)
	s, err := New(constant(100), sess, 10*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}

	var hooked atomic.Int64
	s.OnTick = func(res tracker.Result, took time.Duration) { hooked.Add(1) }

	s.Start()
	s.Start() // no-op while running
	if !s.Running() {
		t.Fatal("expected running after Start")
	}
	waitFor(t, "several ticks", func() bool { return sess.Snapshot(0, 0).Ticks >= 3 })
	s.Stop()
	s.Stop() // no-op while stopped

	if s.Running() {
		t.Fatal("expected stopped after Stop")
	}
	ticks := sess.Snapshot(0, 0).Ticks
	if int64(ticks) != hooked.Load() {
		t.Fatalf("OnTick called %d times for %d ticks", hooked.Load(), ticks)
	}

	// No ticks after Stop returns
	time.Sleep(50 * time.Millisecond)
	if got := sess.Snapshot(0, 0).Ticks; got != ticks {
		t.Fatalf("ticks advanced after Stop: %d -> %d", ticks, got)
	}
}

func TestTicks_NeverOverlap(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	slow := pricefeed.SourceFunc(func(ctx context.Context) (float64, error) {
		n := inFlight.Add(1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		return 10, nil
	})

	sess := newSession(t)
	s, err := New(slow, sess, time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	s.Start()
	waitFor(t, "ticks", func() bool { return sess.Snapshot(0, 0).Ticks >= 5 })
	s.Stop()

	if maxInFlight.Load() != 1 {
		t.Fatalf("expected at most one tick in flight, saw %d", maxInFlight.Load())
	}
}

func TestStop_WaitsForInProgressTick(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	blocking := pricefeed.SourceFunc(func(ctx context.Context) (float64, error) {
		if calls.Add(1) == 1 {
			close(entered)
			<-release
		}
		return 42, nil
	})

	sess := newSession(t)
	s, err := New(blocking, sess, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	s.Start()
	<-entered

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a tick was in progress")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return after tick finished")
	}

	// The in-progress tick completed rather than being cancelled
	if got := sess.Snapshot(0, 0).Ticks; got != 1 {
		t.Fatalf("expected 1 completed tick, got %d", got)
	}
}

func TestSetInterval(t *testing.T) {
	sess := newSession(t)
	s, err := New(constant(5), sess, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	if err := s.SetInterval(7 * time.Second); !errors.Is(err, ErrIntervalNotAllowed) {
		t.Fatalf("expected ErrIntervalNotAllowed, got %v", err)
	}
	if err := s.SetInterval(30 * time.Second); err != nil {
		t.Fatal(err)
	}
	if s.Interval() != 30*time.Second || s.Running() {
		t.Fatalf("expected stopped scheduler with 30s interval, got %s running=%v", s.Interval(), s.Running())
	}

	s.Start()
	waitFor(t, "first tick", func() bool { return sess.Snapshot(0, 0).Ticks == 1 })

	// Restart runs an immediate tick; prior state persists
	if err := s.SetInterval(5 * time.Second); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "tick after restart", func() bool { return sess.Snapshot(0, 0).Ticks == 2 })
	if !s.Running() || s.Interval() != 5*time.Second {
		t.Fatalf("expected running with 5s interval, got running=%v %s", s.Running(), s.Interval())
	}
	s.Stop()
}

func TestTick_FetchErrorSkips(t *testing.T) {
	var calls atomic.Int32
	failing := pricefeed.SourceFunc(func(ctx context.Context) (float64, error) {
		calls.Add(1)
		return 0, errors.New("boom")
	})
	sess := newSession(t)
	s, err := New(failing, sess, 5*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	s.Start()
	waitFor(t, "fetch attempts", func() bool { return calls.Load() >= 2 })
	s.Stop()

	if got := sess.Snapshot(0, 0).Ticks; got != 0 {
		t.Fatalf("expected no ticks on fetch errors, got %d", got)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	sess := newSession(t)
	s, err := New(constant(1), sess, 10*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	waitFor(t, "tick", func() bool { return sess.Snapshot(0, 0).Ticks >= 1 })
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if s.Running() {
		t.Fatal("expected stopped after Run returns")
	}
}

func TestIntervalAllowed(t *testing.T) {
	for _, d := range []time.Duration{5 * time.Second, 10 * time.Second, 30 * time.Second, time.Minute} {
		if !IntervalAllowed(d) {
			t.Errorf("expected %s allowed", d)
		}
	}
	for _, d := range []time.Duration{0, time.Second, 15 * time.Second, 2 * time.Minute} {
		if IntervalAllowed(d) {
			t.Errorf("expected %s rejected", d)
		}
	}
}

func TestStop_ReadersDoNotWaitForTick(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	blocking := pricefeed.SourceFunc(func(ctx context.Context) (float64, error) {
		if calls.Add(1) == 1 {
			close(entered)
			<-release
		}
		return 42, nil
	})

	sess := newSession(t)
	s, err := New(blocking, sess, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	s.Start()
	<-entered

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()
	waitFor(t, "stop requested", func() bool { return !s.Running() })

	read := make(chan time.Duration, 1)
	go func() { read <- s.Interval() }()
	select {
	case d := <-read:
		if d != time.Hour {
			t.Fatalf("expected 1h interval, got %s", d)
		}
	case <-time.After(time.Second):
		t.Fatal("Interval blocked while Stop waited for the tick")
	}

	close(release)
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return after tick finished")
	}
}

func TestRestart_WaitsForInFlightTick(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var calls, inFlight, maxInFlight atomic.Int32
	src := pricefeed.SourceFunc(func(ctx context.Context) (float64, error) {
		n := inFlight.Add(1)
		if n > maxInFlight.Load() {
			maxInFlight.Store(n)
		}
		defer inFlight.Add(-1)
		if calls.Add(1) == 1 {
			close(entered)
			<-release
		}
		return 7, nil
	})

	sess := newSession(t)
	s, err := New(src, sess, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	s.Start()
	<-entered

	// Restart while the first tick is still fetching.
	if err := s.SetInterval(5 * time.Second); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Fatalf("restarted loop ticked before the old tick finished: %d fetches", got)
	}

	close(release)
	waitFor(t, "tick after restart", func() bool { return sess.Snapshot(0, 0).Ticks == 2 })
	s.Stop()

	if maxInFlight.Load() != 1 {
		t.Fatalf("expected at most one tick in flight, saw %d", maxInFlight.Load())
	}
}
