// Package portfolio keeps a paper position from the trades the strategy
// emits. Single asset, long only: BUY adds to the position, SELL closes up
// to the held quantity.
package portfolio

import (
	"context"
	"sync"

	"smatrader/internal/model"
)

// Summary is the current paper P&L.
type Summary struct {
	Position      int64   `json:"position"`
	AvgEntry      float64 `json:"avg_entry"`
	LastPrice     float64 `json:"last_price"`
	RealizedPnL   float64 `json:"realized_pnl"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	TotalPnL      float64 `json:"total_pnl"`
	TotalTrades   int     `json:"total_trades"`
	RoundTrips    int     `json:"round_trips"`
}

// Book tracks realized and unrealized P&L. Thread-safe.
type Book struct {
	mu         sync.RWMutex
	qty        int64
	avgPrice   float64
	lastPrice  float64
	realized   float64
	trades     int
	roundTrips int
}

// NewBook creates a flat book.
func NewBook() *Book {
	return &Book{}
}

// Apply records a trade and returns the P&L it realized.
func (b *Book) Apply(t model.Trade) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.trades++
	b.lastPrice = t.Price
	qty := t.Quantity
	if qty <= 0 {
		qty = 1
	}

	if t.Type == model.SignalBuy {
		totalCost := b.avgPrice*float64(b.qty) + t.Price*float64(qty)
		b.qty += qty
		b.avgPrice = totalCost / float64(b.qty)
		return 0
	}

	// SELL without a position realizes nothing.
	sellQty := qty
	if sellQty > b.qty {
		sellQty = b.qty
	}
	if sellQty == 0 {
		return 0
	}
	pnl := (t.Price - b.avgPrice) * float64(sellQty)
	b.realized += pnl
	b.qty -= sellQty
	if b.qty == 0 {
		b.avgPrice = 0
		b.roundTrips++
	}
	return pnl
}

// Mark updates the price used for unrealized P&L.
func (b *Book) Mark(price float64) {
	b.mu.Lock()
	b.lastPrice = price
	b.mu.Unlock()
}

// OnPoint implements model.Sink.
func (b *Book) OnPoint(_ context.Context, p model.PricePoint) error {
	b.Mark(p.Price)
	return nil
}

// OnTrade implements model.Sink.
func (b *Book) OnTrade(_ context.Context, t model.Trade) error {
	b.Apply(t)
	return nil
}

// Summary returns the current P&L summary.
func (b *Book) Summary() Summary {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var unrealized float64
	if b.qty > 0 {
		unrealized = (b.lastPrice - b.avgPrice) * float64(b.qty)
	}
	return Summary{
		Position:      b.qty,
		AvgEntry:      b.avgPrice,
		LastPrice:     b.lastPrice,
		RealizedPnL:   b.realized,
		UnrealizedPnL: unrealized,
		TotalPnL:      b.realized + unrealized,
		TotalTrades:   b.trades,
		RoundTrips:    b.roundTrips,
	}
}

// Replay builds a book from a trade history, oldest first.
func Replay(trades []model.Trade) *Book {
	b := NewBook()
	for _, t := range trades {
		b.Apply(t)
	}
	return b
}
