// Package gateway serves the REST API and the /ws live feed.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"smatrader/internal/model"
	"smatrader/internal/ringbuf"
)

const (
	ChannelPoint = "point"
	ChannelTrade = "trade"

	DefaultReplaySize = 50
	clientSendBuffer  = 256
)

// Hub fans point and trade envelopes out to WebSocket clients and keeps the
// most recent envelopes so new clients can catch up.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	seq     int64
	replay  *ringbuf.Ring[[]byte]

	// Tick-to-broadcast latency, recorded for every point
	Latency *LatencyTracker

	// OnClientsChanged is called with the new client count.
	OnClientsChanged func(n int)
}

// NewHub creates a hub keeping replaySize envelopes for new clients.
func NewHub(replaySize int) *Hub {
	if replaySize <= 0 {
		replaySize = DefaultReplaySize
	}
	if replaySize > clientSendBuffer/2 {
		replaySize = clientSendBuffer / 2
	}
	return &Hub{
		clients: make(map[*Client]bool),
		replay:  ringbuf.MustNew[[]byte](replaySize),
		Latency: NewLatencyTracker(10000),
	}
}

// OnPoint implements model.Sink.
func (h *Hub) OnPoint(_ context.Context, p model.PricePoint) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("hub: marshal point: %w", err)
	}
	now := time.Now().UTC()
	if !p.Timestamp.IsZero() {
		if ms := float64(now.Sub(p.Timestamp).Microseconds()) / 1000.0; ms >= 0 {
			h.Latency.Record(ms)
		}
	}
	h.broadcast(ChannelPoint, data, now)
	return nil
}

// OnTrade implements model.Sink.
func (h *Hub) OnTrade(_ context.Context, t model.Trade) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("hub: marshal trade: %w", err)
	}
	h.broadcast(ChannelTrade, data, time.Now().UTC())
	return nil
}

func (h *Hub) broadcast(channel string, data []byte, now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq++
	env := buildEnvelope(channel, data, now, h.seq)
	h.replay.Push(env)

	for client := range h.clients {
		select {
		case client.send <- env:
		default:
			// slow client, drop
		}
	}
}

// Register adds an upgraded connection. The replay window is queued before
// the client becomes visible to broadcast, so it sees no gap or duplicate.
func (h *Hub) Register(conn *websocket.Conn) *Client {
	client := &Client{
		conn: conn,
		send: make(chan []byte, clientSendBuffer),
		hub:  h,
	}

	h.mu.Lock()
	for _, env := range h.replay.Items() {
		client.send <- env
	}
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	log.Printf("[gateway] ws client connected (%d total)", count)
	h.clientsChanged(count)

	go client.writePump()
	go client.readPump()
	return client
}

// RemoveClient removes a client from the hub. Safe to call more than once.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	count := len(h.clients)
	h.mu.Unlock()

	h.clientsChanged(count)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	h.clientsChanged(0)
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Seq returns the sequence number of the last envelope sent.
func (h *Hub) Seq() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.seq
}

func (h *Hub) clientsChanged(n int) {
	if h.OnClientsChanged != nil {
		h.OnClientsChanged(n)
	}
}
