package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"smatrader/internal/circuit"
	"smatrader/internal/model"
	"smatrader/internal/tracker"
)

// Metrics holds all Prometheus metrics for the SMA engine.
type Metrics struct {
	TicksTotal     prometheus.Counter
	TradesTotal    *prometheus.CounterVec // labels: side
	TickDur        prometheus.Histogram
	FetchFailures  prometheus.Counter
	FallbackPrices prometheus.Counter

	// Latest values
	Price    prometheus.Gauge
	ShortSMA prometheus.Gauge
	LongSMA  prometheus.Gauge
	Position prometheus.Gauge // 0=none, 1=last BUY, -1=last SELL

	// Circuit breakers, labels: breaker
	BreakerState *prometheus.GaugeVec // 0=closed, 1=open, 2=half-open
	BreakerTrips *prometheus.CounterVec

	// Delivery
	SinkErrors    *prometheus.CounterVec // labels: sink
	SinkDrops     *prometheus.CounterVec // labels: sink
	WSClients     prometheus.Gauge
	AlertsSent    prometheus.Counter
	AlertFailures prometheus.Counter
}

// NewMetrics registers all metrics on the default registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers all metrics on reg.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smatrader_ticks_total",
			Help: "Total ticks processed",
		}),
		TradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smatrader_trades_total",
			Help: "Total paper trades executed (by side)",
		}, []string{"side"}),
		TickDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "smatrader_tick_duration_seconds",
			Help:    "Tick latency including the price fetch",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		FetchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smatrader_price_fetch_failures_total",
			Help: "Price fetches that failed upstream",
		}),
		FallbackPrices: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smatrader_fallback_prices_total",
			Help: "Placeholder prices substituted for failed fetches",
		}),

		Price: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "smatrader_price",
			Help: "Last observed price",
		}),
		ShortSMA: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "smatrader_short_sma",
			Help: "Current short-window SMA",
		}),
		LongSMA: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "smatrader_long_sma",
			Help: "Current long-window SMA",
		}),
		Position: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "smatrader_last_signal",
			Help: "Last emitted signal (0=none, 1=buy, -1=sell)",
		}),

		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "smatrader_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"breaker"}),
		BreakerTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smatrader_circuit_breaker_trips_total",
			Help: "Times a circuit breaker tripped open",
		}, []string{"breaker"}),

		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smatrader_sink_errors_total",
			Help: "Errors returned by output sinks",
		}, []string{"sink"}),
		SinkDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smatrader_sink_drops_total",
			Help: "Events dropped on a full async sink queue",
		}, []string{"sink"}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "smatrader_ws_clients",
			Help: "Connected WebSocket clients",
		}),
		AlertsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smatrader_alerts_sent_total",
			Help: "Trade alerts delivered",
		}),
		AlertFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smatrader_alert_failures_total",
			Help: "Trade alerts that failed to deliver",
		}),
	}

	reg.MustRegister(
		m.TicksTotal,
		m.TradesTotal,
		m.TickDur,
		m.FetchFailures,
		m.FallbackPrices,
		m.Price,
		m.ShortSMA,
		m.LongSMA,
		m.Position,
		m.BreakerState,
		m.BreakerTrips,
		m.SinkErrors,
		m.SinkDrops,
		m.WSClients,
		m.AlertsSent,
		m.AlertFailures,
	)

	return m
}

// OnPoint implements model.Sink.
func (m *Metrics) OnPoint(_ context.Context, p model.PricePoint) error {
	m.TicksTotal.Inc()
	m.Price.Set(p.Price)
	m.ShortSMA.Set(p.ShortSMA)
	m.LongSMA.Set(p.LongSMA)
	return nil
}

// OnTrade implements model.Sink.
func (m *Metrics) OnTrade(_ context.Context, t model.Trade) error {
	m.TradesTotal.WithLabelValues(string(t.Type)).Inc()
	switch t.Type {
	case model.SignalBuy:
		m.Position.Set(1)
	case model.SignalSell:
		m.Position.Set(-1)
	}
	return nil
}

// ObserveTick records the duration of one scheduler tick.
func (m *Metrics) ObserveTick(_ tracker.Result, took time.Duration) {
	m.TickDur.Observe(took.Seconds())
}

// WatchBreaker mirrors a breaker's transitions into the breaker gauges,
// chaining any callback already installed.
func (m *Metrics) WatchBreaker(b *circuit.Breaker) {
	prev := b.OnStateChange
	m.BreakerState.WithLabelValues(b.Name()).Set(float64(circuit.StateClosed))
	b.OnStateChange = func(name string, from, to circuit.State) {
		m.BreakerState.WithLabelValues(name).Set(float64(to))
		if to == circuit.StateOpen {
			m.BreakerTrips.WithLabelValues(name).Inc()
		}
		if prev != nil {
			prev(name, from, to)
		}
	}
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	SchedulerRunning bool      `json:"scheduler_running"`
	LastTickTime     time.Time `json:"last_tick_time"`
	RedisEnabled     bool      `json:"redis_enabled"`
	RedisConnected   bool      `json:"redis_connected"`
	SQLiteEnabled    bool      `json:"sqlite_enabled"`
	SQLiteOK         bool      `json:"sqlite_ok"`

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`

	running func() bool
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

// SetRunningFunc installs the probe used to report scheduler state.
func (h *HealthStatus) SetRunningFunc(fn func() bool) {
	h.mu.Lock()
	h.running = fn
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastTickTime(t time.Time) {
	h.mu.Lock()
	h.LastTickTime = t
	h.mu.Unlock()
}

// OnPoint implements model.Sink, tracking tick freshness.
func (h *HealthStatus) OnPoint(_ context.Context, p model.PricePoint) error {
	h.SetLastTickTime(p.Timestamp)
	return nil
}

// OnTrade implements model.Sink.
func (h *HealthStatus) OnTrade(context.Context, model.Trade) error { return nil }

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisEnabled = true
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the journal database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteEnabled = true
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. Either dependency may be nil.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// The probe takes the scheduler lock; call it before taking ours.
	h.mu.RLock()
	probe := h.running
	h.mu.RUnlock()
	var probed, running bool
	if probe != nil {
		running, probed = probe(), true
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if !probed {
		running = h.SchedulerRunning
	}

	overallStatus := "healthy"
	httpCode := http.StatusOK

	if (h.RedisEnabled && !h.RedisConnected) || (h.SQLiteEnabled && !h.SQLiteOK) {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}

	tickAge := ""
	if !h.LastTickTime.IsZero() {
		tickAge = time.Since(h.LastTickTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status           string  `json:"status"`
		Uptime           string  `json:"uptime"`
		SchedulerRunning bool    `json:"scheduler_running"`
		LastTickTime     string  `json:"last_tick_time,omitempty"`
		TickAge          string  `json:"tick_age,omitempty"`
		RedisEnabled     bool    `json:"redis_enabled"`
		RedisConnected   bool    `json:"redis_connected"`
		RedisLatencyMs   float64 `json:"redis_latency_ms"`
		SQLiteEnabled    bool    `json:"sqlite_enabled"`
		SQLiteOK         bool    `json:"sqlite_ok"`
		SQLiteLatencyMs  float64 `json:"sqlite_latency_ms"`
	}{
		Status:           overallStatus,
		Uptime:           time.Since(h.StartedAt).Round(time.Second).String(),
		SchedulerRunning: running,
		TickAge:          tickAge,
		RedisEnabled:     h.RedisEnabled,
		RedisConnected:   h.RedisConnected,
		RedisLatencyMs:   h.RedisLatencyMs,
		SQLiteEnabled:    h.SQLiteEnabled,
		SQLiteOK:         h.SQLiteOK,
		SQLiteLatencyMs:  h.SQLiteLatencyMs,
	}
	if !h.LastTickTime.IsZero() {
		status.LastTickTime = h.LastTickTime.Format(time.RFC3339)
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
