package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"smatrader/internal/logger"
	"smatrader/internal/model"
	"smatrader/internal/tracker"
)

type recordingSink struct {
	mu      sync.Mutex
	points  []model.PricePoint
	trades  []model.Trade
	traceID string
	err     error
}

func (r *recordingSink) OnPoint(ctx context.Context, p model.PricePoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.points = append(r.points, p)
	r.traceID = logger.TraceID(ctx)
	return r.err
}

func (r *recordingSink) OnTrade(ctx context.Context, t model.Trade) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trades = append(r.trades, t)
	return r.err
}

func TestProcess_FansOutToSinks(t *testing.T) {
	good := &recordingSink{}
	bad := &recordingSink{err: errors.New("redis down")}

	s, err := New(tracker.Config{ShortWindow: 2, LongWindow: 3}, bad)
	if err != nil {
		t.Fatal(err)
	}
	s.AddSink(good)

	ts := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	for i, p := range []float64{1, 1, 1, 10} {
		s.Process(context.Background(), p, ts.Add(time.Duration(i)*time.Second))
	}

	for name, sink := range map[string]*recordingSink{"good": good, "bad": bad} {
		if len(sink.points) != 4 {
			t.Errorf("%s: expected 4 points, got %d", name, len(sink.points))
		}
		if len(sink.trades) != 1 || sink.trades[0].Type != model.SignalBuy {
			t.Errorf("%s: expected one BUY trade, got %+v", name, sink.trades)
		}
	}
	if good.traceID == "" {
		t.Error("expected sinks to receive a trace id in context")
	}

	// A failing sink must not affect the tracker
	if st := s.Snapshot(0, 0); st.TradeCount != 1 || st.Ticks != 4 {
		t.Fatalf("unexpected status after sink errors: %+v", st)
	}
}

func TestSnapshot(t *testing.T) {
	s, err := New(tracker.Config{ShortWindow: 2, LongWindow: 3})
	if err != nil {
		t.Fatal(err)
	}

	st := s.Snapshot(20, 10)
	if st.Last != nil || st.State != "none" || st.Warm || st.LastSignal != "" {
		t.Fatalf("unexpected fresh status: %+v", st)
	}

	for _, p := range []float64{1, 1, 1, 10, 10, 10, 1} {
		s.Process(context.Background(), p, time.Now())
	}

	st = s.Snapshot(5, 10)
	if st.Last == nil || st.Last.Price != 1 {
		t.Fatalf("expected last price 1, got %+v", st.Last)
	}
	if st.State != "sell" || st.LastSignal != model.SignalSell {
		t.Fatalf("expected sell state, got %s/%s", st.State, st.LastSignal)
	}
	if len(st.Points) != 5 || len(st.Trades) != 2 {
		t.Fatalf("expected 5 points and 2 trades, got %d and %d", len(st.Points), len(st.Trades))
	}
	if st.Trades[0].Type != model.SignalSell {
		t.Fatalf("expected newest trade first, got %s", st.Trades[0].Type)
	}
	if st.ShortWindow != 2 || st.LongWindow != 3 || !st.Warm {
		t.Fatalf("unexpected window info: %+v", st)
	}
	if got := s.AllTrades(); got[0].Type != model.SignalBuy {
		t.Fatalf("expected AllTrades oldest first, got %+v", got)
	}
	if got := s.History(0); len(got) != 7 {
		t.Fatalf("expected 7 history points, got %d", len(got))
	}
}

func TestSession_ConcurrentReaders(t *testing.T) {
	s, err := New(tracker.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					s.Snapshot(20, 20)
					s.Trades(5)
				}
			}
		}()
	}

	for i := 0; i < 500; i++ {
		s.Process(context.Background(), float64(i%37), time.Now())
	}
	close(stop)
	wg.Wait()

	if st := s.Snapshot(0, 0); st.Ticks != 500 {
		t.Fatalf("expected 500 ticks, got %d", st.Ticks)
	}
}

func TestProcess_OnSinkError(t *testing.T) {
	bad := &recordingSink{err: errors.New("down")}
	s, err := New(tracker.Config{ShortWindow: 1, LongWindow: 2}, bad)
	if err != nil {
		t.Fatal(err)
	}
	var errs int
	s.OnSinkError = func(sink model.Sink, err error) { errs++ }

	s.Process(context.Background(), 1, time.Now())
	s.Process(context.Background(), 2, time.Now()) // BUY: point + trade errors

	if errs != 3 {
		t.Fatalf("expected 3 sink errors, got %d", errs)
	}
}
