// Package scheduler drives a session at a fixed interval: fetch a price,
// then process one tick. Ticks are strictly serialized. Stopping cancels
// future ticks but lets a tick already in progress run to completion.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"smatrader/internal/pricefeed"
	"smatrader/internal/session"
	"smatrader/internal/tracker"
)

const (
	DefaultInterval     = 10 * time.Second
	defaultFetchTimeout = 15 * time.Second
)

// AllowedIntervals is the menu SetInterval accepts.
var AllowedIntervals = []time.Duration{
	5 * time.Second,
	10 * time.Second,
	30 * time.Second,
	60 * time.Second,
}

var (
	ErrInvalidInterval    = errors.New("scheduler: interval must be positive")
	ErrIntervalNotAllowed = errors.New("scheduler: interval not in allowed set")
)

// IntervalAllowed reports whether d is one of AllowedIntervals.
func IntervalAllowed(d time.Duration) bool {
	for _, a := range AllowedIntervals {
		if d == a {
			return true
		}
	}
	return false
}

// Scheduler runs ticks against a session.
type Scheduler struct {
	src          pricefeed.Source
	sess         *session.Session
	fetchTimeout time.Duration
	now          func() time.Time

	mu       sync.Mutex
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{} // closed when the most recent loop exits

	// OnTick is called after each processed tick with the time the tick took
	// (fetch included).
	OnTick func(res tracker.Result, took time.Duration)
}

// New creates a stopped scheduler.
func New(src pricefeed.Source, sess *session.Session, interval time.Duration) (*Scheduler, error) {
	if interval <= 0 {
		return nil, ErrInvalidInterval
	}
	return &Scheduler{
		src:          src,
		sess:         sess,
		fetchTimeout: defaultFetchTimeout,
		now:          time.Now,
		interval:     interval,
	}, nil
}

// Start runs one tick immediately and then one per interval. No-op if running.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startLocked()
}

// Stop cancels future ticks and waits for an in-progress tick to finish.
// The wait happens without the lock held.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopLocked()
	done := s.done
	s.mu.Unlock()

	if done != nil {
		<-done
	}
}

// Running reports whether the schedule is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Interval returns the current tick interval.
func (s *Scheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// SetInterval changes the interval to one of AllowedIntervals. A running
// schedule is stopped and restarted; session state is untouched.
func (s *Scheduler) SetInterval(d time.Duration) error {
	if !IntervalAllowed(d) {
		return fmt.Errorf("%w: %s", ErrIntervalNotAllowed, d)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.interval = d
	if s.cancel == nil {
		return nil
	}
	// The new loop waits for the old one to exit before ticking.
	s.stopLocked()
	s.startLocked()
	log.Printf("[scheduler] interval changed to %s", d)
	return nil
}

// Run starts the schedule and blocks until ctx is cancelled, then stops.
func (s *Scheduler) Run(ctx context.Context) {
	s.Start()
	<-ctx.Done()
	s.Stop()
}

func (s *Scheduler) startLocked() {
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	prev := s.done
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx, s.interval, prev, s.done)
	log.Printf("[scheduler] started, interval=%s", s.interval)
}

// stopLocked cancels the running loop without waiting for it.
func (s *Scheduler) stopLocked() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.cancel = nil
	log.Println("[scheduler] stopped")
}

// loop waits for the previous loop (if any) to exit before its first tick.
func (s *Scheduler) loop(ctx context.Context, interval time.Duration, prev <-chan struct{}, done chan struct{}) {
	defer close(done)

	if prev != nil {
		<-prev
	}
	if ctx.Err() != nil {
		return
	}
	s.tick()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// select may pick the ticker after Stop; never start a tick then.
			if ctx.Err() != nil {
				return
			}
			s.tick()
		}
	}
}

// tick fetches with its own timeout, detached from the loop context, so
// Stop never interrupts a fetch that is already underway.
func (s *Scheduler) tick() {
	start := time.Now()

	fetchCtx, cancel := context.WithTimeout(context.Background(), s.fetchTimeout)
	price, err := s.src.FetchPrice(fetchCtx)
	cancel()
	if err != nil {
		log.Printf("[scheduler] price fetch failed, skipping tick: %v", err)
		return
	}

	res := s.sess.Process(context.Background(), price, s.now())
	if res.Trade != nil {
		log.Printf("[scheduler] trade executed: %s at %.2f", res.Trade.Type, res.Trade.Price)
	}
	if s.OnTick != nil {
		s.OnTick(res, time.Since(start))
	}
}
