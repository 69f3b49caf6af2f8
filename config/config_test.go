package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"SHORT_WINDOW", "LONG_WINDOW", "POLL_INTERVAL_S", "PRICE_SOURCE", "AUTOSTART", "REDIS_ADDR", "SQLITE_PATH"} {
		t.Setenv(k, "")
	}
	cfg := Load()

	if cfg.ShortWindow != 5 || cfg.LongWindow != 20 {
		t.Fatalf("expected 5/20 windows, got %d/%d", cfg.ShortWindow, cfg.LongWindow)
	}
	if cfg.PollInterval != 10*time.Second {
		t.Fatalf("expected 10s interval, got %v", cfg.PollInterval)
	}
	if cfg.PriceSource != SourceCoinGecko || !cfg.AutoStart {
		t.Fatalf("unexpected source/autostart: %q %v", cfg.PriceSource, cfg.AutoStart)
	}
	if cfg.RedisAddr != "" || cfg.SQLitePath != "" {
		t.Fatal("redis and sqlite should be disabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoad_OverridesAndBadValues(t *testing.T) {
	t.Setenv("SHORT_WINDOW", "3")
	t.Setenv("LONG_WINDOW", "oops")
	t.Setenv("POLL_INTERVAL_S", "30")
	t.Setenv("PRICE_SOURCE", "Stream")
	t.Setenv("AUTOSTART", "false")
	t.Setenv("FALLBACK_MIN", "100.5")

	cfg := Load()
	if cfg.ShortWindow != 3 || cfg.LongWindow != 20 {
		t.Fatalf("expected 3 and fallback 20, got %d/%d", cfg.ShortWindow, cfg.LongWindow)
	}
	if cfg.PollInterval != 30*time.Second || cfg.PriceSource != SourceStream || cfg.AutoStart {
		t.Fatalf("unexpected overrides: %+v", cfg)
	}
	if cfg.FallbackMin != 100.5 {
		t.Fatalf("expected fallback min 100.5, got %g", cfg.FallbackMin)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			ShortWindow: 5, LongWindow: 20, PollInterval: 10 * time.Second,
			PriceSource: SourceRandom, FallbackMin: 1, FallbackMax: 2,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"ok", func(c *Config) {}, ""},
		{"zero short", func(c *Config) { c.ShortWindow = 0 }, "must be positive"},
		{"long not greater", func(c *Config) { c.LongWindow = 5 }, "must exceed SHORT_WINDOW"},
		{"interval off menu", func(c *Config) { c.PollInterval = 7 * time.Second }, "POLL_INTERVAL_S"},
		{"unknown source", func(c *Config) { c.PriceSource = "kraken" }, "unknown PRICE_SOURCE"},
		{"fallback range", func(c *Config) { c.FallbackMax = 1 }, "FALLBACK_MAX"},
		{"telegram half set", func(c *Config) { c.TelegramBotToken = "x" }, "TELEGRAM"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := valid()
			tc.mutate(c)
			err := c.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}
