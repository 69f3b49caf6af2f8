package pricefeed

import (
	"context"
	"log"
	"math/rand"
	"sync"
	"time"
)

const (
	DefaultFallbackMin = 20000.0
	DefaultFallbackMax = 22000.0
)

// Fallback wraps a Source and substitutes a random placeholder in
// [Min, Max) whenever the inner source fails. FetchPrice never returns an
// error.
type Fallback struct {
	inner Source
	min   float64
	max   float64

	mu  sync.Mutex
	rng *rand.Rand

	// OnFallback is called with the inner error each time a substitute is served.
	OnFallback func(err error)
}

// NewFallback wraps inner. If max <= min the default range is used.
func NewFallback(inner Source, min, max float64) *Fallback {
	if max <= min {
		min, max = DefaultFallbackMin, DefaultFallbackMax
	}
	return &Fallback{
		inner: inner,
		min:   min,
		max:   max,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Random returns a Fallback with no inner source: every price is a placeholder.
func Random(min, max float64) *Fallback {
	return NewFallback(nil, min, max)
}

func (f *Fallback) FetchPrice(ctx context.Context) (float64, error) {
	if f.inner != nil {
		price, err := f.inner.FetchPrice(ctx)
		if err == nil {
			return price, nil
		}
		log.Printf("[pricefeed] fetch failed, using placeholder: %v", err)
		if f.OnFallback != nil {
			f.OnFallback(err)
		}
	}
	return f.placeholder(), nil
}

func (f *Fallback) placeholder() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.min + f.rng.Float64()*(f.max-f.min)
}
