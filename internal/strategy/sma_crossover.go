// Package strategy turns moving-average readings into trading signals.
//
// Crossover is an edge-triggered state machine: it emits BUY once when the
// short SMA rises above the long SMA and SELL once when it falls below,
// suppressing repeats while the condition persists.
package strategy

import "smatrader/internal/model"

// State is the crossover detector's memory of the last emitted signal.
type State int

const (
	StateNoSignal State = iota // nothing emitted yet
	StateLastBuy
	StateLastSell
)

func (s State) String() string {
	switch s {
	case StateNoSignal:
		return "none"
	case StateLastBuy:
		return "buy"
	case StateLastSell:
		return "sell"
	default:
		return "unknown"
	}
}

// Crossover detects SMA crossovers.
type Crossover struct {
	state State
}

// NewCrossover returns a detector in StateNoSignal.
func NewCrossover() *Crossover {
	return &Crossover{state: StateNoSignal}
}

// Evaluate returns a signal when the SMA relationship differs from the last
// emitted signal. Equal SMAs never signal.
//
// price is currently inert; it is kept in the signature for price-based
// filters and does not influence the decision.
func (c *Crossover) Evaluate(shortSMA, longSMA, price float64) (model.Signal, bool) {
	switch {
	case shortSMA > longSMA && c.state != StateLastBuy:
		c.state = StateLastBuy
		return model.SignalBuy, true
	case shortSMA < longSMA && c.state != StateLastSell:
		c.state = StateLastSell
		return model.SignalSell, true
	}
	return "", false
}

// State returns the current detector state.
func (c *Crossover) State() State { return c.state }

// LastSignal returns the most recently emitted signal, if any.
func (c *Crossover) LastSignal() (model.Signal, bool) {
	switch c.state {
	case StateLastBuy:
		return model.SignalBuy, true
	case StateLastSell:
		return model.SignalSell, true
	}
	return "", false
}
