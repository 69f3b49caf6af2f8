// Package session owns one tracker for the lifetime of a trading session.
//
// The tracker itself is single-threaded; Session serializes every access
// behind one mutex so the scheduler can tick while HTTP and WebSocket
// readers observe it. Outputs are fanned out to Sinks after each tick.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"smatrader/internal/logger"
	"smatrader/internal/model"
	"smatrader/internal/tracker"
)

// Status is a read-only snapshot for presentation layers.
type Status struct {
	Ticks       int                `json:"ticks"`
	Warm        bool               `json:"warm"` // long window full, signals evaluated
	ShortWindow int                `json:"short_window"`
	LongWindow  int                `json:"long_window"`
	Last        *model.PricePoint  `json:"last,omitempty"`
	State       string             `json:"state"`
	LastSignal  model.Signal       `json:"last_signal,omitempty"`
	TradeCount  int                `json:"trade_count"`
	Points      []model.PricePoint `json:"points,omitempty"`
	Trades      []model.Trade      `json:"trades,omitempty"`
}

// Session wraps a tracker with a mutex and a list of sinks.
type Session struct {
	mu    sync.RWMutex
	tr    *tracker.Tracker
	sinks []model.Sink

	// OnSinkError is called for every error a sink returns.
	OnSinkError func(sink model.Sink, err error)
}

// New creates a Session with a fresh tracker.
func New(cfg tracker.Config, sinks ...model.Sink) (*Session, error) {
	tr, err := tracker.New(cfg)
	if err != nil {
		return nil, err
	}
	return &Session{tr: tr, sinks: sinks}, nil
}

// AddSink registers an output. Not safe to call concurrently with Process.
func (s *Session) AddSink(sink model.Sink) {
	s.sinks = append(s.sinks, sink)
}

// Process runs one tick and then hands its outputs to every sink. Sink
// errors are logged; they never affect tracker state.
func (s *Session) Process(ctx context.Context, price float64, ts time.Time) tracker.Result {
	s.mu.Lock()
	res := s.tr.Tick(price, ts)
	s.mu.Unlock()

	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID("tick", ts))

	for _, sink := range s.sinks {
		if err := sink.OnPoint(ctx, res.Point); err != nil {
			s.sinkError(ctx, "point", sink, err)
		}
	}
	if res.Trade == nil {
		return res
	}
	for _, sink := range s.sinks {
		if err := sink.OnTrade(ctx, *res.Trade); err != nil {
			s.sinkError(ctx, "trade", sink, err)
		}
	}
	return res
}

func (s *Session) sinkError(ctx context.Context, kind string, sink model.Sink, err error) {
	if s.OnSinkError != nil {
		s.OnSinkError(sink, err)
	}
	attrs := []any{
		slog.String("kind", kind),
		slog.String("sink", SinkName(sink)),
		slog.String("err", err.Error()),
	}
	slog.Warn("[session] sink error", append(attrs, logger.LogWithTrace(ctx)...)...)
}

// SinkName labels a sink in logs and metrics.
func SinkName(sink model.Sink) string {
	if n, ok := sink.(interface{ Name() string }); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", sink)
}

// Snapshot returns the current status with up to points history entries
// (oldest first) and up to trades ledger entries (newest first).
func (s *Session) Snapshot(points, trades int) Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	short, long := s.tr.Windows()
	st := Status{
		Ticks:       s.tr.Ticks(),
		Warm:        s.tr.Warm(),
		ShortWindow: short,
		LongWindow:  long,
		State:       s.tr.State().String(),
		TradeCount:  s.tr.TradeCount(),
	}
	if p, ok := s.tr.Last(); ok {
		st.Last = &p
	}
	if sig, ok := s.tr.LastSignal(); ok {
		st.LastSignal = sig
	}
	if points > 0 {
		st.Points = s.tr.Recent(points)
	}
	if trades > 0 {
		st.Trades = s.tr.RecentTrades(trades)
	}
	return st
}

// History returns the last n points, oldest first (n <= 0: all).
func (s *Session) History(n int) []model.PricePoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tr.Recent(n)
}

// Trades returns up to n trades newest first (n <= 0: all).
func (s *Session) Trades(n int) []model.Trade {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tr.RecentTrades(n)
}

// AllTrades returns the full ledger, oldest first.
func (s *Session) AllTrades() []model.Trade {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tr.Trades()
}
