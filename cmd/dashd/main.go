package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"trading-dashboard/config"
	"trading-dashboard/internal/alert"
	"trading-dashboard/internal/dashboard"
	"trading-dashboard/internal/feed"
	"trading-dashboard/internal/gateway"
	"trading-dashboard/internal/indicator"
	"trading-dashboard/internal/logger"
	"trading-dashboard/internal/metrics"
	"trading-dashboard/internal/model"
	"trading-dashboard/internal/notification"
	"trading-dashboard/internal/ringbuf"
	"trading-dashboard/internal/scheduler"
	redisstore "trading-dashboard/internal/store/redis"
	"trading-dashboard/internal/store/sqlite"

	"github.com/prometheus/client_golang/prometheus"
)

var processStart = time.Now()

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[dashd] config: %v", err)
	}
	lg := logger.Init("dashd", logger.ParseLevel(cfg.LogLevel))
	watch := cfg.ParseWatch()
	lg.Info("starting", "store", cfg.StoreBackend, "watch", watch, "interval_min", cfg.BarInterval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	health := metrics.NewHealthStatus(cfg.StoreBackend)

	// Storage
	var (
		store     model.AlertStore
		publisher model.AlertPublisher
		rstore    *redisstore.Store
		sqlStore  *sqlite.Store
	)
	switch cfg.StoreBackend {
	case "sqlite":
		sqlStore, err = sqlite.New(sqlite.Config{DBPath: cfg.SQLitePath})
		if err != nil {
			log.Fatalf("[dashd] sqlite: %v", err)
		}
		store = sqlStore
	case "redis":
		rstore, err = redisstore.New(redisstore.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			log.Fatalf("[dashd] redis: %v", err)
		}
		cb := rstore.Breaker()
		prev := cb.OnStateChange
		cb.OnStateChange = func(from, to redisstore.State) {
			if prev != nil {
				prev(from, to)
			}
			m.RedisCircuitBreakerState.Set(float64(to))
			if to == redisstore.StateOpen {
				m.RedisCircuitBreakerTrips.Inc()
			}
		}
		store, publisher = rstore, rstore
	}
	if store != nil {
		defer store.Close()
	}

	// Gateway and notifications
	hub := gateway.NewHub()
	hub.OnClientCount(func(n int) { m.WSClients.Set(float64(n)) })

	dispatcher := notification.NewDispatcher(notification.DefaultSendTimeout, lg)
	dispatcher.OnResult(func(method, result string) {
		m.NotificationsTotal.WithLabelValues(method, result).Inc()
	})
	dispatcher.Register(notification.MethodLog, notification.NewLogNotifier(lg))
	dispatcher.Register(notification.MethodBrowser, dashboard.BrowserNotifier(hub))
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		dispatcher.Register(notification.MethodTelegram, notification.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID))
	}
	if cfg.WebhookURL != "" {
		dispatcher.Register(notification.MethodWebhook, notification.NewWebhookNotifier(cfg.WebhookURL))
	}
	lg.Info("notification methods", "methods", dispatcher.Methods())

	// Core service
	client := feed.NewClient(cfg.RESTURL, cfg.FeedTimeoutDur())
	engine := indicator.NewEngine(indicator.ParseSpecs(cfg.Indicators), indicator.Options{
		MACDSignal: indicator.ParseSignalMode(cfg.MACDSignal),
		StochD:     indicator.ParseSignalMode(cfg.StochD),
	})
	svc := dashboard.New(dashboard.Options{
		Source:       client,
		Engine:       engine,
		Book:         alert.NewBook(alert.WithHistoryLimit(cfg.HistoryKeep)),
		Store:        store,
		Publisher:    publisher,
		Dispatcher:   dispatcher,
		Pusher:       hub,
		Metrics:      m,
		Health:       health,
		Log:          lg,
		Interval:     cfg.BarInterval,
		Limit:        cfg.BarLimit,
		SymbolTTL:    cfg.CacheTTLDur(),
		CoalesceWait: cfg.CoalesceWaitDur(),
		HistoryKeep:  cfg.HistoryKeep,
	})
	if err := svc.Load(ctx); err != nil {
		log.Fatalf("[dashd] load alert state: %v", err)
	}

	// Triggers from other instances sharing the Redis store.
	if rstore != nil {
		triggers, err := rstore.SubscribeTriggers(ctx)
		if err != nil {
			lg.Warn("trigger relay disabled", "error", err)
		} else {
			go hub.RelayTriggers(ctx, triggers)
		}
	}

	// Initial load, then the cron refresh.
	if err := svc.Refresh(ctx, watch); err != nil {
		lg.Warn("initial refresh incomplete", "error", err)
	}
	refresher := scheduler.NewRefresher(lg)
	if err := refresher.Add("bars", cfg.RefreshCron, func() {
		if err := svc.Refresh(ctx, watch); err != nil {
			lg.Warn("scheduled refresh incomplete", "error", err)
		}
	}); err != nil {
		log.Fatalf("[dashd] refresh schedule: %v", err)
	}
	if sqlStore != nil && cfg.PruneCron != "" {
		if err := refresher.Add("prune", cfg.PruneCron, func() {
			if _, err := svc.PruneHistory(ctx); err != nil {
				lg.Warn("history prune failed", "error", err)
			}
		}); err != nil {
			log.Fatalf("[dashd] prune schedule: %v", err)
		}
	}
	if cfg.PurgeCron != "" {
		if err := refresher.Add("cache-purge", cfg.PurgeCron, func() { svc.PurgeCaches() }); err != nil {
			log.Fatalf("[dashd] cache purge schedule: %v", err)
		}
	}
	refresher.Start()

	// Live prices
	if cfg.StreamTicks {
		ticks := ringbuf.New(4096)
		go ticks.Drain(ctx, svc.OnTick)
		stream := feed.NewStream(feed.StreamConfig{
			URL:     cfg.StreamURL,
			Symbols: cryptoSymbols(watch),
			OnTick: func(t model.Tick) {
				if !ticks.Push(t) {
					m.TicksDropped.Inc()
				}
			},
			OnConnected: health.SetStreamOK,
			OnReconnect: m.StreamReconnects.Inc,
		}, lg)
		go stream.Run(ctx)
	} else {
		health.SetStreamOK(true)
	}

	// Liveness checks
	switch {
	case rstore != nil:
		health.CheckRedis(ctx, rstore.Client())
		health.StartLivenessChecker(ctx, rstore.Client(), nil, 15*time.Second)
	case sqlStore != nil:
		health.CheckSQLite(ctx, sqlStore.DB())
		health.StartLivenessChecker(ctx, nil, sqlStore.DB(), 15*time.Second)
	}

	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health, reg)
	metricsSrv.Start()

	mux := http.NewServeMux()
	gateway.RegisterRoutes(mux, hub, svc, gateway.NewOTPGuard(cfg.OTPSecret), processStart)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		lg.Info("gateway listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[dashd] http server: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	lg.Info("shutting down", "signal", sig.String())

	cancel()
	refresher.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Warn("http shutdown", "error", err)
	}
	if err := metricsSrv.Stop(shutdownCtx); err != nil {
		lg.Warn("metrics shutdown", "error", err)
	}
	svc.Close()
	slog.Info("stopped")
}

// cryptoSymbols returns the exchange symbols of the crypto watch keys.
func cryptoSymbols(watch []string) []string {
	var out []string
	for _, k := range watch {
		if market, symbol, ok := strings.Cut(k, ":"); ok && market == model.MarketCrypto {
			out = append(out, symbol)
		}
	}
	return out
}
