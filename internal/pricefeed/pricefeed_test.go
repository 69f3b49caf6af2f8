package pricefeed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"smatrader/internal/circuit"
)

func TestCoinGecko_FetchPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/simple/price" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("ids") != "bitcoin" || r.URL.Query().Get("vs_currencies") != "usd" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"bitcoin":{"usd":21034.5}}`))
	}))
	defer srv.Close()

	cg := NewCoinGecko(CoinGeckoConfig{BaseURL: srv.URL + "/"}, nil)
	price, err := cg.FetchPrice(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if price != 21034.5 {
		t.Fatalf("expected 21034.5, got %v", price)
	}
}

func TestCoinGecko_Errors(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"status": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
		},
		"missing coin": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"ethereum":{"usd":1}}`))
		},
		"bad json": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`not json`))
		},
	}
	for name, h := range cases {
		srv := httptest.NewServer(h)
		cg := NewCoinGecko(CoinGeckoConfig{BaseURL: srv.URL}, nil)
		if _, err := cg.FetchPrice(context.Background()); err == nil {
			t.Errorf("%s: expected error", name)
		}
		srv.Close()
	}
}

func TestCoinGecko_BreakerOpens(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cg := NewCoinGecko(CoinGeckoConfig{BaseURL: srv.URL}, circuit.New("coingecko", 2, time.Hour))
	for i := 0; i < 2; i++ {
		cg.FetchPrice(context.Background())
	}
	_, err := cg.FetchPrice(context.Background())
	if !errors.Is(err, circuit.ErrOpen) {
		t.Fatalf("expected circuit.ErrOpen, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 upstream calls, got %d", calls)
	}
}

func TestFallback_SubstitutesInRange(t *testing.T) {
	failing := SourceFunc(func(ctx context.Context) (float64, error) {
		return 0, errors.New("network down")
	})
	var fallbacks int
	f := NewFallback(failing, 0, 0) // default range
	f.OnFallback = func(err error) { fallbacks++ }

	for i := 0; i < 200; i++ {
		p, err := f.FetchPrice(context.Background())
		if err != nil {
			t.Fatalf("fallback returned error: %v", err)
		}
		if p < DefaultFallbackMin || p >= DefaultFallbackMax {
			t.Fatalf("placeholder %v outside [%v, %v)", p, DefaultFallbackMin, DefaultFallbackMax)
		}
	}
	if fallbacks != 200 {
		t.Fatalf("expected 200 fallback callbacks, got %d", fallbacks)
	}
}

func TestFallback_PassesThrough(t *testing.T) {
	f := NewFallback(NewStatic([]float64{42}), 1, 2)
	f.OnFallback = func(err error) { t.Fatalf("unexpected fallback: %v", err) }

	p, err := f.FetchPrice(context.Background())
	if err != nil || p != 42 {
		t.Fatalf("expected 42, got %v err=%v", p, err)
	}
}

func TestRandom_CustomRange(t *testing.T) {
	r := Random(5, 6)
	for i := 0; i < 50; i++ {
		p, _ := r.FetchPrice(context.Background())
		if p < 5 || p >= 6 {
			t.Fatalf("price %v outside [5, 6)", p)
		}
	}
}

func TestStatic_Exhausts(t *testing.T) {
	s := NewStatic([]float64{1, 2})
	for _, want := range []float64{1, 2} {
		got, err := s.FetchPrice(context.Background())
		if err != nil || got != want {
			t.Fatalf("expected %v, got %v err=%v", want, got, err)
		}
	}
	if s.Remaining() != 0 {
		t.Fatalf("expected 0 remaining, got %d", s.Remaining())
	}
	if _, err := s.FetchPrice(context.Background()); !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
}

func TestStream_ReceivesQuotes(t *testing.T) {
	upgrader := websocket.Upgrader{}
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte(`garbage`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"symbol":"BTCUSD","price":-1}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"symbol":"BTCUSD","price":21500.25}`))
		<-release
	}))
	defer srv.Close()
	defer close(release)

	s, err := NewStream(StreamConfig{URL: "ws" + strings.TrimPrefix(srv.URL, "http")})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.FetchPrice(context.Background()); !errors.Is(err, ErrNoPrice) {
		t.Fatalf("expected ErrNoPrice before connect, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if p, err := s.FetchPrice(ctx); err == nil {
			if p != 21500.25 {
				t.Fatalf("expected 21500.25, got %v", p)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timed out waiting for streamed price")
}
