// cmd/tickserver is a demo WebSocket quote server for PRICE_SOURCE=stream.
// Every interval it pushes a random-walk quote:
//
//	{"symbol":"BTCUSD","price":21034.17,"ts":"..."}
//
// Config (env vars):
//
//	TICK_SERVER_ADDR   listen address (default ":9001")
//	TICK_SYMBOL        symbol label (default "BTCUSD")
//	TICK_START_PRICE   starting price (default 21000)
//	TICK_INTERVAL_MS   broadcast interval in milliseconds (default 1000)
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"smatrader/internal/logger"
	"smatrader/internal/pricefeed"
)

type hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]chan []byte
}

func newHub() *hub {
	return &hub{clients: make(map[*websocket.Conn]chan []byte)}
}

func (h *hub) register(conn *websocket.Conn) chan []byte {
	ch := make(chan []byte, 64)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()
	return ch
}

func (h *hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	if ch, ok := h.clients[conn]; ok {
		close(ch)
		delete(h.clients, conn)
	}
	h.mu.Unlock()
}

func (h *hub) broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.clients {
		select {
		case ch <- msg:
		default:
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

func wsHandler(h *hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[tickserver] upgrade error: %v", err)
			return
		}
		log.Printf("[tickserver] client connected: %s", r.RemoteAddr)

		ch := h.register(conn)
		defer func() {
			h.unregister(conn)
			conn.Close()
			log.Printf("[tickserver] client disconnected: %s", r.RemoteAddr)
		}()

		// Drain reads so close frames are processed.
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					h.unregister(conn)
					return
				}
			}
		}()

		for msg := range ch {
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

// walk moves price by up to +/-0.2% and rounds to cents.
func walk(rng *rand.Rand, price float64) float64 {
	pct := (rng.Float64()*0.4 - 0.2) / 100.0
	next := math.Round(price*(1+pct)*100) / 100
	if next < 1 {
		next = 1
	}
	return next
}

func runGenerator(h *hub, symbol string, price float64, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	for range ticker.C {
		price = walk(rng, price)
		b, err := json.Marshal(pricefeed.Quote{Symbol: symbol, Price: price, TS: time.Now().UTC()})
		if err != nil {
			continue
		}
		h.broadcast(b)
	}
}

func main() {
	logger.Init("tickserver", logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	addr := envOrDefault("TICK_SERVER_ADDR", ":9001")
	symbol := envOrDefault("TICK_SYMBOL", "BTCUSD")
	start, err := strconv.ParseFloat(envOrDefault("TICK_START_PRICE", "21000"), 64)
	if err != nil || start <= 0 {
		log.Fatalf("[tickserver] invalid TICK_START_PRICE: %v", err)
	}
	intervalMs, err := strconv.Atoi(envOrDefault("TICK_INTERVAL_MS", "1000"))
	if err != nil || intervalMs <= 0 {
		log.Fatalf("[tickserver] invalid TICK_INTERVAL_MS")
	}

	h := newHub()
	go runGenerator(h, symbol, start, time.Duration(intervalMs)*time.Millisecond)

	http.HandleFunc("/ws", wsHandler(h))
	http.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `{"status":"ok","service":"tickserver"}`)
	})

	log.Printf("[tickserver] %s from %.2f every %dms, listening on %s (ws://localhost%s/ws)", symbol, start, intervalMs, addr, addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatalf("[tickserver] server error: %v", err)
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
