// Package tracker orchestrates one trading session's per-tick update: it
// pushes each price into a short and a long window, computes both SMAs,
// appends a history point, and once the long window is full lets the
// crossover detector decide whether a paper trade is recorded.
//
// A Tracker owns all of its state and performs no locking or background
// work; callers must serialize Tick with every other method.
package tracker

import (
	"errors"
	"fmt"
	"time"

	"smatrader/internal/execution"
	"smatrader/internal/indicator"
	"smatrader/internal/model"
	"smatrader/internal/ringbuf"
	"smatrader/internal/strategy"
)

const (
	DefaultShortWindow = 5
	DefaultLongWindow  = 20
)

// ErrWindowOrder is returned when the long window is not longer than the short one.
var ErrWindowOrder = errors.New("tracker: long window must be greater than short window")

// Config sizes the two SMA windows.
type Config struct {
	ShortWindow int
	LongWindow  int
}

// DefaultConfig returns the 5/20 windows.
func DefaultConfig() Config {
	return Config{ShortWindow: DefaultShortWindow, LongWindow: DefaultLongWindow}
}

// Result is the outcome of one tick. Trade is nil when no signal fired.
type Result struct {
	Point model.PricePoint
	Trade *model.Trade
}

// Tracker holds the rolling windows, crossover state, ledger and history.
type Tracker struct {
	short     *ringbuf.Ring[float64]
	long      *ringbuf.Ring[float64]
	crossover *strategy.Crossover
	ledger    *execution.Ledger
	history   []model.PricePoint
}

// New creates a Tracker. It fails on non-positive windows
// (ringbuf.ErrInvalidCapacity) or when LongWindow <= ShortWindow.
func New(cfg Config) (*Tracker, error) {
	short, err := ringbuf.New[float64](cfg.ShortWindow)
	if err != nil {
		return nil, fmt.Errorf("short window: %w", err)
	}
	long, err := ringbuf.New[float64](cfg.LongWindow)
	if err != nil {
		return nil, fmt.Errorf("long window: %w", err)
	}
	if cfg.LongWindow <= cfg.ShortWindow {
		return nil, ErrWindowOrder
	}
	return &Tracker{
		short:     short,
		long:      long,
		crossover: strategy.NewCrossover(),
		ledger:    execution.NewLedger(64),
		history:   make([]model.PricePoint, 0, 256),
	}, nil
}

// Tick consumes one price observation.
func (t *Tracker) Tick(price float64, ts time.Time) Result {
	t.short.Push(price)
	t.long.Push(price)

	p := model.PricePoint{
		Timestamp: ts,
		Price:     price,
		ShortSMA:  indicator.SMA(t.short),
		LongSMA:   indicator.SMA(t.long),
	}
	t.history = append(t.history, p)

	res := Result{Point: p}

	// A long SMA over a partial window is not a meaningful baseline yet.
	if !t.long.IsFull() {
		return res
	}
	if sig, ok := t.crossover.Evaluate(p.ShortSMA, p.LongSMA, price); ok {
		trade := t.ledger.Record(sig, price, execution.DefaultQuantity, ts)
		res.Trade = &trade
	}
	return res
}

// History returns a copy of every point, oldest first.
func (t *Tracker) History() []model.PricePoint {
	cp := make([]model.PricePoint, len(t.history))
	copy(cp, t.history)
	return cp
}

// Recent returns the last n points, oldest first. n <= 0 returns all.
func (t *Tracker) Recent(n int) []model.PricePoint {
	if n <= 0 || n > len(t.history) {
		n = len(t.history)
	}
	cp := make([]model.PricePoint, n)
	copy(cp, t.history[len(t.history)-n:])
	return cp
}

// Last returns the most recent point.
func (t *Tracker) Last() (model.PricePoint, bool) {
	if len(t.history) == 0 {
		return model.PricePoint{}, false
	}
	return t.history[len(t.history)-1], true
}

// Trades returns the ledger history, oldest first.
func (t *Tracker) Trades() []model.Trade { return t.ledger.History() }

// RecentTrades returns up to n trades, newest first.
func (t *Tracker) RecentTrades(n int) []model.Trade { return t.ledger.Recent(n) }

// TradeCount returns the number of recorded trades.
func (t *Tracker) TradeCount() int { return t.ledger.Len() }

// State returns the crossover detector state.
func (t *Tracker) State() strategy.State { return t.crossover.State() }

// LastSignal returns the most recently emitted signal, if any.
func (t *Tracker) LastSignal() (model.Signal, bool) { return t.crossover.LastSignal() }

// Ticks returns the number of ticks processed.
func (t *Tracker) Ticks() int { return len(t.history) }

// Warm reports whether the long window is full, i.e. signals are being evaluated.
func (t *Tracker) Warm() bool { return t.long.IsFull() }

// Windows returns the configured short and long window sizes.
func (t *Tracker) Windows() (short, long int) { return t.short.Cap(), t.long.Cap() }
