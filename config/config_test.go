package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DASH_CONFIG", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StoreBackend != "sqlite" || cfg.HTTPAddr != ":8080" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.CacheTTLDur() != 5*time.Minute || cfg.CoalesceWaitDur() != time.Second {
		t.Errorf("durations: ttl=%v wait=%v", cfg.CacheTTLDur(), cfg.CoalesceWaitDur())
	}
	if cfg.PurgeCron != "30 */5 * * * *" {
		t.Errorf("cache purge cron = %q", cfg.PurgeCron)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dash.yaml")
	yaml := `
store_backend: redis
redis_addr: redis:6379
watch: "crypto:ETHUSDT, SOLUSDT"
cache_ttl: 30s
macd_signal: smoothed
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DASH_CONFIG", path)
	t.Setenv("REDIS_ADDR", "10.0.0.5:6379")
	t.Setenv("BAR_LIMIT", "200")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StoreBackend != "redis" {
		t.Errorf("StoreBackend = %q, want redis from file", cfg.StoreBackend)
	}
	if cfg.RedisAddr != "10.0.0.5:6379" {
		t.Errorf("RedisAddr = %q, want env override", cfg.RedisAddr)
	}
	if cfg.BarLimit != 200 {
		t.Errorf("BarLimit = %d, want 200", cfg.BarLimit)
	}
	if cfg.MACDSignal != "smoothed" || cfg.CacheTTLDur() != 30*time.Second {
		t.Errorf("file values lost: %+v", cfg)
	}
	// Unset keys keep their defaults.
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
}

func TestLoad_MissingFileIsIgnored(t *testing.T) {
	t.Setenv("DASH_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))
	if _, err := Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"STORE_BACKEND": "postgres",
		"CACHE_TTL":     "soon",
		"BAR_INTERVAL":  "-5",
	}
	for key, val := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv("DASH_CONFIG", "")
			t.Setenv(key, val)
			if _, err := Load(); err == nil {
				t.Errorf("%s=%q: expected error", key, val)
			}
		})
	}
}

func TestParseWatch(t *testing.T) {
	cfg := &Config{Watch: " btcusdt, crypto:ETHUSDT,stocks:aapl,,BTCUSDT, crypto: "}
	got := cfg.ParseWatch()
	want := []string{"crypto:BTCUSDT", "crypto:ETHUSDT", "stocks:AAPL"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseWatch = %v, want %v", got, want)
	}
}
