package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"smatrader/internal/logger"
	"smatrader/internal/model"
)

// ErrSinkClosed is returned for events offered after Close.
var ErrSinkClosed = errors.New("async sink closed")

type event struct {
	traceID string
	point   *model.PricePoint
	trade   *model.Trade
}

// AsyncSink moves a slow sink (network publishers, webhooks) off the tick
// path. Events are queued on a bounded channel and delivered in order by
// one worker; when the queue is full the event is dropped for that sink.
type AsyncSink struct {
	inner model.Sink
	name  string
	ch    chan event
	wg    sync.WaitGroup

	mu     sync.Mutex
	closed bool

	// OnDrop is called when an event is dropped on a full queue.
	OnDrop func(name string)
	// OnError is called with errors returned by the wrapped sink.
	OnError func(name string, err error)
}

// NewAsyncSink wraps inner with a queue of bufSize events and starts its worker.
func NewAsyncSink(name string, inner model.Sink, bufSize int) *AsyncSink {
	if bufSize <= 0 {
		bufSize = 256
	}
	a := &AsyncSink{
		inner: inner,
		name:  name,
		ch:    make(chan event, bufSize),
	}
	a.wg.Add(1)
	go a.run()
	return a
}

// Name returns the label used in logs and metrics.
func (a *AsyncSink) Name() string { return a.name }

// OnPoint implements model.Sink. It never blocks.
func (a *AsyncSink) OnPoint(ctx context.Context, p model.PricePoint) error {
	return a.enqueue(event{traceID: logger.TraceID(ctx), point: &p})
}

// OnTrade implements model.Sink. It never blocks.
func (a *AsyncSink) OnTrade(ctx context.Context, t model.Trade) error {
	return a.enqueue(event{traceID: logger.TraceID(ctx), trade: &t})
}

func (a *AsyncSink) enqueue(ev event) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("%s: %w", a.name, ErrSinkClosed)
	}
	select {
	case a.ch <- ev:
		return nil
	default:
		if a.OnDrop != nil {
			a.OnDrop(a.name)
		}
		return fmt.Errorf("%s: queue full, event dropped", a.name)
	}
}

func (a *AsyncSink) run() {
	defer a.wg.Done()
	for ev := range a.ch {
		ctx := context.Background()
		if ev.traceID != "" {
			ctx = logger.WithTraceID(ctx, ev.traceID)
		}
		var err error
		if ev.point != nil {
			err = a.inner.OnPoint(ctx, *ev.point)
		} else {
			err = a.inner.OnTrade(ctx, *ev.trade)
		}
		if err == nil {
			continue
		}
		if a.OnError != nil {
			a.OnError(a.name, err)
		} else {
			log.Printf("[session] async sink %s: %v", a.name, err)
		}
	}
}

// Close stops accepting events and waits for queued ones to be delivered.
// Later events are rejected with ErrSinkClosed.
func (a *AsyncSink) Close() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.ch)
	}
	a.mu.Unlock()
	a.wg.Wait()
}

// Pending returns the number of queued events.
func (a *AsyncSink) Pending() int { return len(a.ch) }
