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
)

// Metrics holds all Prometheus metrics for the dashboard service.
type Metrics struct {
	// Feed
	RefreshTotal     *prometheus.CounterVec // labels: result=ok|error|cached
	RefreshDur       prometheus.Histogram
	BarsFetched      prometheus.Counter
	TicksTotal       prometheus.Counter
	TicksDropped     prometheus.Counter
	StreamReconnects prometheus.Counter

	// Indicators
	IndicatorComputeDur prometheus.Histogram

	// Alerts
	EvaluationsTotal  prometheus.Counter
	CoalescedTriggers prometheus.Counter
	AlertsTriggered   *prometheus.CounterVec // labels: type
	AlertRules        prometheus.Gauge

	// Notifications
	NotificationsTotal *prometheus.CounterVec // labels: method, result=ok|error|skipped

	// Cache
	CacheLookups *prometheus.CounterVec // labels: cache, result=hit|miss

	// Storage
	StoreWriteDur            *prometheus.HistogramVec // labels: backend
	RedisCircuitBreakerState prometheus.Gauge         // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter

	// Gateway
	WSClients prometheus.Gauge
}

// NewMetrics creates the dashboard metrics and registers them on reg.
// A nil reg means prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		RefreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dashd_refresh_total",
			Help: "Bar refreshes per watched symbol, by result",
		}, []string{"result"}),
		RefreshDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dashd_refresh_duration_seconds",
			Help:    "Bar fetch plus indicator recompute latency",
			Buckets: prometheus.DefBuckets,
		}),
		BarsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dashd_bars_fetched_total",
			Help: "Price bars fetched from the exchange feed",
		}),
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dashd_ticks_total",
			Help: "Live price ticks received from the stream",
		}),
		TicksDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dashd_ticks_dropped_total",
			Help: "Live ticks dropped because the tick queue was full",
		}),
		StreamReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dashd_stream_reconnects_total",
			Help: "Ticker stream reconnection attempts",
		}),

		IndicatorComputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dashd_indicator_compute_duration_seconds",
			Help:    "Indicator engine compute latency per bar set",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}),

		EvaluationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dashd_alert_evaluations_total",
			Help: "Alert evaluation passes run",
		}),
		CoalescedTriggers: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dashd_alert_evaluation_requests_total",
			Help: "Evaluation requests received before coalescing",
		}),
		AlertsTriggered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dashd_alerts_triggered_total",
			Help: "Alert rules that fired, by rule type",
		}, []string{"type"}),
		AlertRules: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dashd_alert_rules",
			Help: "Alert rules currently stored",
		}),

		NotificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dashd_notifications_total",
			Help: "Notification deliveries by method and result",
		}, []string{"method", "result"}),

		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dashd_cache_lookups_total",
			Help: "Cache lookups by cache and result",
		}, []string{"cache", "result"}),

		StoreWriteDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dashd_store_write_duration_seconds",
			Help:    "Alert store write latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"backend"}),
		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dashd_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dashd_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),

		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dashd_ws_clients",
			Help: "Connected dashboard WebSocket clients",
		}),
	}

	reg.MustRegister(
		m.RefreshTotal,
		m.RefreshDur,
		m.BarsFetched,
		m.TicksTotal,
		m.TicksDropped,
		m.StreamReconnects,
		m.IndicatorComputeDur,
		m.EvaluationsTotal,
		m.CoalescedTriggers,
		m.AlertsTriggered,
		m.AlertRules,
		m.NotificationsTotal,
		m.CacheLookups,
		m.StoreWriteDur,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.WSClients,
	)

	return m
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	FeedOK         bool      `json:"feed_ok"`
	StreamOK       bool      `json:"stream_ok"`
	LastRefresh    time.Time `json:"last_refresh"`
	LastTickTime   time.Time `json:"last_tick_time"`
	StoreBackend   string    `json:"store_backend"`
	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`

	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status for the given store backend.
func NewHealthStatus(storeBackend string) *HealthStatus {
	return &HealthStatus{
		StoreBackend: storeBackend,
		StartedAt:    time.Now(),
	}
}

func (h *HealthStatus) SetFeedOK(v bool) {
	h.mu.Lock()
	h.FeedOK = v
	if v {
		h.LastRefresh = time.Now()
	}
	h.mu.Unlock()
}

func (h *HealthStatus) SetStreamOK(v bool) {
	h.mu.Lock()
	h.StreamOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastTickTime(t time.Time) {
	h.mu.Lock()
	h.LastTickTime = t
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. Either client may be nil.
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

func (h *HealthStatus) storeOK() bool {
	switch h.StoreBackend {
	case "redis":
		return h.RedisConnected
	case "sqlite":
		return h.SQLiteOK
	}
	return true
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	storeOK := h.storeOK()
	if !h.FeedOK || !storeOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.FeedOK && !storeOK {
		overallStatus = "unhealthy"
	}

	refreshAge := ""
	if !h.LastRefresh.IsZero() {
		refreshAge = time.Since(h.LastRefresh).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		FeedOK          bool    `json:"feed_ok"`
		StreamOK        bool    `json:"stream_ok"`
		LastRefresh     string  `json:"last_refresh"`
		RefreshAge      string  `json:"refresh_age"`
		LastTickTime    string  `json:"last_tick_time"`
		StoreBackend    string  `json:"store_backend"`
		StoreOK         bool    `json:"store_ok"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		FeedOK:          h.FeedOK,
		StreamOK:        h.StreamOK,
		LastRefresh:     h.LastRefresh.Format(time.RFC3339),
		RefreshAge:      refreshAge,
		LastTickTime:    h.LastTickTime.Format(time.RFC3339),
		StoreBackend:    h.StoreBackend,
		StoreOK:         storeOK,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates a metrics and health server. gatherer may be nil for
// the default registry.
func NewServer(addr string, health *HealthStatus, gatherer prometheus.Gatherer) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", health)

	return &Server{
		addr: addr,
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
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
