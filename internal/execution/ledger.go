// Package execution records paper trades triggered by strategy signals.
//
// The Ledger is append-only: trades are never modified or removed. It is not
// safe for concurrent use; the owning session serializes access.
package execution

import (
	"time"

	"github.com/google/uuid"

	"smatrader/internal/model"
)

// DefaultQuantity is the fixed trade size used for every signal.
const DefaultQuantity int64 = 1

// Ledger is an ordered, append-only record of executed trades.
type Ledger struct {
	trades []model.Trade
}

// NewLedger creates an empty ledger pre-sized for capacity trades.
func NewLedger(capacity int) *Ledger {
	if capacity < 0 {
		capacity = 0
	}
	return &Ledger{trades: make([]model.Trade, 0, capacity)}
}

// Record appends a trade and returns it. qty <= 0 means DefaultQuantity.
func (l *Ledger) Record(sig model.Signal, price float64, qty int64, ts time.Time) model.Trade {
	if qty <= 0 {
		qty = DefaultQuantity
	}
	t := model.Trade{
		ID:        uuid.NewString(),
		Seq:       int64(len(l.trades) + 1),
		Type:      sig,
		Price:     price,
		Quantity:  qty,
		Timestamp: ts,
	}
	l.trades = append(l.trades, t)
	return t
}

// History returns a copy of all trades, oldest first.
func (l *Ledger) History() []model.Trade {
	cp := make([]model.Trade, len(l.trades))
	copy(cp, l.trades)
	return cp
}

// Recent returns up to n trades, newest first. n <= 0 returns all of them.
func (l *Ledger) Recent(n int) []model.Trade {
	if n <= 0 || n > len(l.trades) {
		n = len(l.trades)
	}
	out := make([]model.Trade, 0, n)
	for i := len(l.trades) - 1; i >= len(l.trades)-n; i-- {
		out = append(out, l.trades[i])
	}
	return out
}

// Len returns the number of recorded trades.
func (l *Ledger) Len() int { return len(l.trades) }
