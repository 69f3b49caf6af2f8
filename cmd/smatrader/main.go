// cmd/smatrader polls a BTC price, tracks short/long SMAs and paper-trades
// their crossovers. REST and WebSocket on HTTP_ADDR, Prometheus on METRICS_ADDR.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"smatrader/config"
	"smatrader/internal/circuit"
	"smatrader/internal/gateway"
	"smatrader/internal/logger"
	"smatrader/internal/metrics"
	"smatrader/internal/model"
	"smatrader/internal/notification"
	"smatrader/internal/portfolio"
	"smatrader/internal/pricefeed"
	"smatrader/internal/scheduler"
	"smatrader/internal/session"
	redisstore "smatrader/internal/store/redis"
	sqlitestore "smatrader/internal/store/sqlite"
	"smatrader/internal/tracker"
)

func main() {
	cfg := config.Load()
	logger.Init("smatrader", logger.ParseLevel(cfg.LogLevel))
	log.Println("[smatrader] starting...")

	if err := cfg.Validate(); err != nil {
		log.Fatalf("[smatrader] invalid config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- Price source ----
	src, stream := buildSource(cfg, prom)
	if stream != nil {
		go stream.Run(ctx)
	}

	// ---- Session + sinks ----
	hub := gateway.NewHub(gateway.DefaultReplaySize)
	hub.OnClientsChanged = func(n int) { prom.WSClients.Set(float64(n)) }

	sess, err := session.New(tracker.Config{ShortWindow: cfg.ShortWindow, LongWindow: cfg.LongWindow}, prom, health, hub)
	if err != nil {
		log.Fatalf("[smatrader] tracker init failed: %v", err)
	}
	sess.OnSinkError = func(sink model.Sink, err error) {
		prom.SinkErrors.WithLabelValues(session.SinkName(sink)).Inc()
	}

	book := portfolio.NewBook()
	sess.AddSink(book)

	var asyncSinks []*session.AsyncSink
	async := func(name string, sink model.Sink) model.Sink {
		a := session.NewAsyncSink(name, sink, 1024)
		a.OnDrop = func(name string) { prom.SinkDrops.WithLabelValues(name).Inc() }
		a.OnError = func(name string, err error) {
			prom.SinkErrors.WithLabelValues(name).Inc()
			log.Printf("[smatrader] sink %s: %v", name, err)
		}
		asyncSinks = append(asyncSinks, a)
		return a
	}

	var journal *sqlitestore.Journal
	if cfg.SQLitePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
			log.Fatalf("[smatrader] sqlite dir: %v", err)
		}
		journal, err = sqlitestore.Open(cfg.SQLitePath)
		if err != nil {
			log.Fatalf("[smatrader] sqlite init failed: %v", err)
		}
		defer journal.Close()
		sess.AddSink(journal)
		health.CheckSQLite(ctx, journal.DB())
		log.Println("[smatrader] trade journal ready")
	}

	var publisher *redisstore.Publisher
	if cfg.RedisAddr != "" {
		cb := circuit.New("redis", 5, 30*time.Second)
		prom.WatchBreaker(cb)
		publisher, err = redisstore.Dial(redisstore.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}, cb)
		if err != nil {
			log.Printf("[smatrader] WARNING: redis init failed: %v (continuing without redis)", err)
		} else {
			defer publisher.Close()
			sess.AddSink(async("redis", publisher))
			health.CheckRedis(ctx, publisher.Client())
			log.Println("[smatrader] redis publisher ready")
		}
	}

	alerts := notification.NewTradeAlerts(buildNotifier(cfg))
	alerts.OnSent = prom.AlertsSent.Inc
	alerts.OnFailed = func(error) { prom.AlertFailures.Inc() }
	sess.AddSink(async("alerts", alerts))

	// ---- Periodic liveness checks ----
	sqlDB := journalDB(journal)
	if publisher != nil {
		health.StartLivenessChecker(ctx, publisher.Client(), sqlDB, 10*time.Second)
	} else {
		health.StartLivenessChecker(ctx, nil, sqlDB, 10*time.Second)
	}

	// ---- Scheduler ----
	sched, err := scheduler.New(src, sess, cfg.PollInterval)
	if err != nil {
		log.Fatalf("[smatrader] scheduler init failed: %v", err)
	}
	sched.OnTick = prom.ObserveTick
	health.SetRunningFunc(sched.Running)

	// ---- HTTP API ----
	opts := gateway.Options{TOTPSecret: cfg.ControlTOTPSecret, Book: book}
	if journal != nil {
		opts.Journal = journal
	}
	api := gateway.NewAPI(sess, sched, hub, opts)
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Printf("[smatrader] http listening on %s", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[smatrader] http server error: %v", err)
		}
	}()

	if cfg.AutoStart {
		sched.Start()
	} else {
		log.Println("[smatrader] AUTOSTART=false, waiting for /api/v1/control/start")
	}

	// ---- Shutdown ----
	sig := <-sigCh
	log.Printf("[smatrader] received %s, shutting down...", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	// Control requests can restart the scheduler; drain them first.
	httpSrv.Shutdown(shutdownCtx)
	sched.Stop()
	cancel()
	hub.Close()
	for _, a := range asyncSinks {
		a.Close()
	}
	metricsSrv.Stop(shutdownCtx)

	printTradeSummary(os.Stdout, sess.AllTrades())
	log.Println("[smatrader] stopped")
}

// buildSource picks the configured price source. Everything except the
// placeholder-only source is wrapped in a Fallback so a tick always gets a price.
func buildSource(cfg *config.Config, prom *metrics.Metrics) (pricefeed.Source, *pricefeed.Stream) {
	var (
		inner  pricefeed.Source
		stream *pricefeed.Stream
	)

	switch cfg.PriceSource {
	case config.SourceRandom:
		log.Printf("[smatrader] price source: random in [%g, %g)", cfg.FallbackMin, cfg.FallbackMax)
		return pricefeed.Random(cfg.FallbackMin, cfg.FallbackMax), nil

	case config.SourceStream:
		s, err := pricefeed.NewStream(pricefeed.StreamConfig{URL: cfg.TickStreamURL})
		if err != nil {
			log.Fatalf("[smatrader] invalid TICK_STREAM_URL: %v", err)
		}
		inner, stream = s, s
		log.Printf("[smatrader] price source: stream %s", cfg.TickStreamURL)

	default:
		cb := circuit.New("coingecko", 3, time.Minute)
		prom.WatchBreaker(cb)
		inner = pricefeed.NewCoinGecko(pricefeed.CoinGeckoConfig{
			BaseURL:    cfg.CoinGeckoURL,
			CoinID:     cfg.CoinID,
			VsCurrency: cfg.VsCurrency,
		}, cb)
		log.Printf("[smatrader] price source: coingecko %s/%s", cfg.CoinID, cfg.VsCurrency)
	}

	fb := pricefeed.NewFallback(inner, cfg.FallbackMin, cfg.FallbackMax)
	fb.OnFallback = func(error) {
		prom.FetchFailures.Inc()
		prom.FallbackPrices.Inc()
	}
	return fb, stream
}

func journalDB(j *sqlitestore.Journal) *sql.DB {
	if j == nil {
		return nil
	}
	return j.DB()
}

func buildNotifier(cfg *config.Config) notification.Notifier {
	n := notification.Multi{notification.NewLogNotifier()}
	if cfg.WebhookURL != "" {
		n = append(n, notification.NewWebhookNotifier(cfg.WebhookURL))
	}
	if cfg.TelegramBotToken != "" {
		n = append(n, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
	}
	return n
}
