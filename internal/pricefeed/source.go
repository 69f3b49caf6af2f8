// Package pricefeed supplies the price observation consumed by each tick.
//
// Sources may fail (network I/O); wrap them in Fallback so the scheduler
// always gets a number and the tracker never learns a substitution happened.
package pricefeed

import (
	"context"
	"errors"
	"sync"
)

// Source fetches the current price.
type Source interface {
	FetchPrice(ctx context.Context) (float64, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (float64, error)

func (f SourceFunc) FetchPrice(ctx context.Context) (float64, error) { return f(ctx) }

// ErrExhausted is returned by Static once every price has been served.
var ErrExhausted = errors.New("pricefeed: static source exhausted")

// Static serves a fixed sequence of prices, one per call. Used by the
// backtest tool and tests.
type Static struct {
	mu     sync.Mutex
	prices []float64
	next   int
}

// NewStatic creates a Static source over prices.
func NewStatic(prices []float64) *Static {
	cp := make([]float64, len(prices))
	copy(cp, prices)
	return &Static{prices: cp}
}

func (s *Static) FetchPrice(ctx context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next >= len(s.prices) {
		return 0, ErrExhausted
	}
	p := s.prices[s.next]
	s.next++
	return p, nil
}

// Remaining returns how many prices are left.
func (s *Static) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prices) - s.next
}
