package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"smatrader/internal/pricefeed"
	"smatrader/internal/scheduler"
)

// Price sources selectable with PRICE_SOURCE.
const (
	SourceCoinGecko = "coingecko"
	SourceStream    = "stream"
	SourceRandom    = "random"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Strategy
	ShortWindow  int
	LongWindow   int
	PollInterval time.Duration

	// Price source
	PriceSource   string
	CoinGeckoURL  string
	CoinID        string
	VsCurrency    string
	TickStreamURL string
	FallbackMin   float64
	FallbackMax   float64

	// Servers
	HTTPAddr    string
	MetricsAddr string
	AutoStart   bool

	// Infrastructure (empty disables)
	RedisAddr     string
	RedisPassword string
	SQLitePath    string

	// Control endpoint TOTP secret (empty disables the check)
	ControlTOTPSecret string

	// Alerts
	WebhookURL       string
	TelegramBotToken string
	TelegramChatID   string

	LogLevel string
}

// Load reads configuration from environment variables with sensible
// defaults. A .env file in the working directory is applied first when present;
// variables already set in the environment win.
func Load() *Config {
	if err := godotenv.Load(); err == nil {
		log.Printf("[config] loaded .env")
	}

	return &Config{
		ShortWindow:  getInt("SHORT_WINDOW", 5),
		LongWindow:   getInt("LONG_WINDOW", 20),
		PollInterval: time.Duration(getInt("POLL_INTERVAL_S", 10)) * time.Second,

		PriceSource:   strings.ToLower(getEnv("PRICE_SOURCE", SourceCoinGecko)),
		CoinGeckoURL:  getEnv("COINGECKO_URL", pricefeed.DefaultCoinGeckoURL),
		CoinID:        getEnv("COIN_ID", "bitcoin"),
		VsCurrency:    getEnv("VS_CURRENCY", "usd"),
		TickStreamURL: getEnv("TICK_STREAM_URL", "ws://localhost:9001/ws"),
		FallbackMin:   getFloat("FALLBACK_MIN", pricefeed.DefaultFallbackMin),
		FallbackMax:   getFloat("FALLBACK_MAX", pricefeed.DefaultFallbackMax),

		HTTPAddr:    getEnv("HTTP_ADDR", ":8080"),
		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),
		AutoStart:   getBool("AUTOSTART", true),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", ""),

		ControlTOTPSecret: getEnv("CONTROL_TOTP_SECRET", ""),

		WebhookURL:       getEnv("WEBHOOK_URL", ""),
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// Validate checks the values the core cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.ShortWindow <= 0 || c.LongWindow <= 0 {
		errs = append(errs, fmt.Errorf("windows must be positive (short=%d long=%d)", c.ShortWindow, c.LongWindow))
	} else if c.LongWindow <= c.ShortWindow {
		errs = append(errs, fmt.Errorf("LONG_WINDOW (%d) must exceed SHORT_WINDOW (%d)", c.LongWindow, c.ShortWindow))
	}
	if !scheduler.IntervalAllowed(c.PollInterval) {
		errs = append(errs, fmt.Errorf("POLL_INTERVAL_S %v not in %v", c.PollInterval, scheduler.AllowedIntervals))
	}
	switch c.PriceSource {
	case SourceCoinGecko, SourceStream, SourceRandom:
	default:
		errs = append(errs, fmt.Errorf("unknown PRICE_SOURCE %q", c.PriceSource))
	}
	if c.FallbackMax <= c.FallbackMin {
		errs = append(errs, fmt.Errorf("FALLBACK_MAX (%g) must exceed FALLBACK_MIN (%g)", c.FallbackMax, c.FallbackMin))
	}
	if (c.TelegramBotToken == "") != (c.TelegramChatID == "") {
		errs = append(errs, errors.New("TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID must be set together"))
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %g", key, v, fallback)
		return fallback
	}
	return f
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %v", key, v, fallback)
		return fallback
	}
	return b
}
