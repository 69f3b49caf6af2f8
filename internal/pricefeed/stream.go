package pricefeed

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrNoPrice is returned by Stream before any usable quote has arrived, or
// when the latest quote is older than MaxAge.
var ErrNoPrice = errors.New("pricefeed: no recent streamed price")

// Quote is the JSON message pushed by the tick server:
//
//	{"symbol":"BTCUSD","price":21034.17,"ts":"2026-01-01T00:00:00Z"}
type Quote struct {
	Symbol string    `json:"symbol"`
	Price  float64   `json:"price"`
	TS     time.Time `json:"ts"`
}

// StreamConfig holds configuration for the WebSocket price stream.
type StreamConfig struct {
	// URL of the tick WebSocket server, e.g. "ws://localhost:9001/ws"
	URL string

	// MaxAge bounds how old the latest quote may be. Defaults to 1 minute.
	MaxAge time.Duration

	// ReconnectDelay is the initial delay before reconnection attempts.
	// Defaults to 2 seconds if zero.
	ReconnectDelay time.Duration

	// MaxReconnectDelay caps the exponential backoff. Defaults to 30s.
	MaxReconnectDelay time.Duration
}

func (c *StreamConfig) defaults() {
	if c.MaxAge == 0 {
		c.MaxAge = time.Minute
	}
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
}

// Stream keeps the latest quote from a WebSocket tick server. Run must be
// started for FetchPrice to return anything.
type Stream struct {
	cfg StreamConfig

	mu       sync.RWMutex
	last     Quote
	received time.Time

	// Optional hook, called each time a reconnection happens.
	OnReconnect func()
}

// NewStream creates a Stream. Returns an error if the URL is unparseable.
func NewStream(cfg StreamConfig) (*Stream, error) {
	cfg.defaults()
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, err
	}
	return &Stream{cfg: cfg}, nil
}

// FetchPrice returns the latest streamed price.
func (s *Stream) FetchPrice(ctx context.Context) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.received.IsZero() || time.Since(s.received) > s.cfg.MaxAge {
		return 0, ErrNoPrice
	}
	return s.last.Price, nil
}

// Run connects and keeps the latest quote updated. Blocks until ctx is
// cancelled. Reconnects automatically on disconnect.
func (s *Stream) Run(ctx context.Context) {
	delay := s.cfg.ReconnectDelay

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		connected, err := s.runOnce(ctx)
		if err == nil {
			return
		}
		if connected {
			delay = s.cfg.ReconnectDelay
		}

		log.Printf("[stream] disconnected (%v), reconnecting in %s...", err, delay)
		if s.OnReconnect != nil {
			s.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		delay *= 2
		if delay > s.cfg.MaxReconnectDelay {
			delay = s.cfg.MaxReconnectDelay
		}
	}
}

// runOnce makes a single connection attempt and reads until disconnect or
// ctx cancel. connected reports whether the dial succeeded.
func (s *Stream) runOnce(ctx context.Context) (connected bool, err error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.cfg.URL, nil)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	log.Printf("[stream] connected to %s", s.cfg.URL)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return true, nil
			}
			return true, err
		}

		var q Quote
		if err := json.Unmarshal(raw, &q); err != nil {
			log.Printf("[stream] parse error: %v (raw: %s)", err, raw)
			continue
		}
		if q.Price <= 0 {
			log.Printf("[stream] skipping non-positive price %v", q.Price)
			continue
		}

		s.mu.Lock()
		s.last = q
		s.received = time.Now()
		s.mu.Unlock()
	}
}
