package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"trading-dashboard/internal/alert"
	"trading-dashboard/internal/model"
	"trading-dashboard/internal/signals"

	"github.com/gorilla/websocket"
)

// Backend is the dashboard service as seen by the HTTP layer.
type Backend interface {
	Rules() []model.AlertRule
	Rule(id string) (model.AlertRule, bool)
	CreateRule(ctx context.Context, r model.AlertRule) (model.AlertRule, error)
	UpdateRule(ctx context.Context, r model.AlertRule) (model.AlertRule, error)
	DeleteRule(ctx context.Context, id string) error
	SetRuleEnabled(ctx context.Context, id string, enabled bool) (model.AlertRule, error)
	ResetRule(ctx context.Context, id string) (model.AlertRule, error)
	History(limit int) []model.AlertHistoryEntry
	AcknowledgeHistory(ctx context.Context, id string) (model.AlertHistoryEntry, error)
	Indicators(symbol, market string) ([]model.PriceBar, model.IndicatorSeries, bool)
	Symbols(ctx context.Context, query, market string) ([]model.Symbol, error)
	CacheStats() map[string]model.CacheStats
	ClearCaches() int
}

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+OTPHeader)
}

// RegisterRoutes registers the WebSocket and REST routes on mux.
// guard may be nil.
func RegisterRoutes(mux *http.ServeMux, hub *Hub, b Backend, guard *OTPGuard, processStart time.Time) {
	strategies := signals.Default()

	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[gateway] ws upgrade error: %v", err)
			return
		}
		lastSeq, _ := strconv.ParseInt(r.URL.Query().Get("last_seq"), 10, 64)
		hub.HandleWSRequest(conn, lastSeq)
	})

	// Alert rules
	mux.HandleFunc("GET /api/alerts", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, b.Rules())
	})
	mux.HandleFunc("GET /api/alerts/{id}", func(w http.ResponseWriter, r *http.Request) {
		rule, ok := b.Rule(r.PathValue("id"))
		if !ok {
			writeError(w, http.StatusNotFound, "alert not found")
			return
		}
		writeJSON(w, http.StatusOK, rule)
	})
	mux.HandleFunc("POST /api/alerts", guard.Wrap(func(w http.ResponseWriter, r *http.Request) {
		var req RuleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
		rule, err := b.CreateRule(r.Context(), req.rule(""))
		if err == nil && req.IsEnabled != nil && !*req.IsEnabled {
			rule, err = b.SetRuleEnabled(r.Context(), rule.ID, false)
		}
		if err != nil {
			writeServiceError(w, err)
			return
		}
		hub.PushRules(b.Rules())
		writeJSON(w, http.StatusCreated, rule)
	}))
	mux.HandleFunc("PUT /api/alerts/{id}", guard.Wrap(func(w http.ResponseWriter, r *http.Request) {
		var req RuleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
		rule, err := b.UpdateRule(r.Context(), req.rule(r.PathValue("id")))
		if err == nil && req.IsEnabled != nil && *req.IsEnabled != rule.IsEnabled {
			rule, err = b.SetRuleEnabled(r.Context(), rule.ID, *req.IsEnabled)
		}
		if err != nil {
			writeServiceError(w, err)
			return
		}
		hub.PushRules(b.Rules())
		writeJSON(w, http.StatusOK, rule)
	}))
	mux.HandleFunc("DELETE /api/alerts/{id}", guard.Wrap(func(w http.ResponseWriter, r *http.Request) {
		if err := b.DeleteRule(r.Context(), r.PathValue("id")); err != nil {
			writeServiceError(w, err)
			return
		}
		hub.PushRules(b.Rules())
		w.WriteHeader(http.StatusNoContent)
	}))
	mux.HandleFunc("POST /api/alerts/{id}/{action}", guard.Wrap(func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		var (
			rule model.AlertRule
			err  error
		)
		switch r.PathValue("action") {
		case "enable":
			rule, err = b.SetRuleEnabled(r.Context(), id, true)
		case "disable":
			rule, err = b.SetRuleEnabled(r.Context(), id, false)
		case "reset":
			rule, err = b.ResetRule(r.Context(), id)
		default:
			writeError(w, http.StatusNotFound, "unknown action")
			return
		}
		if err != nil {
			writeServiceError(w, err)
			return
		}
		hub.PushRules(b.Rules())
		writeJSON(w, http.StatusOK, rule)
	}))

	// History
	mux.HandleFunc("GET /api/history", func(w http.ResponseWriter, r *http.Request) {
		limit := 100
		if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 {
			limit = min(l, 1000)
		}
		writeJSON(w, http.StatusOK, b.History(limit))
	})
	mux.HandleFunc("POST /api/history/{id}/ack", guard.Wrap(func(w http.ResponseWriter, r *http.Request) {
		e, err := b.AcknowledgeHistory(r.Context(), r.PathValue("id"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, e)
	}))

	// Indicators and symbols
	mux.HandleFunc("GET /api/indicators/{market}/{symbol}", func(w http.ResponseWriter, r *http.Request) {
		market, symbol := strings.ToLower(r.PathValue("market")), strings.ToUpper(r.PathValue("symbol"))
		bars, series, ok := b.Indicators(symbol, market)
		if !ok {
			writeError(w, http.StatusNotFound, "no data for "+model.Key(market, symbol))
			return
		}
		times := make([]int64, len(bars))
		for i, bar := range bars {
			times[i] = bar.Time
		}
		writeJSON(w, http.StatusOK, IndicatorsResponse{
			Symbol:  symbol,
			Market:  market,
			Times:   times,
			Series:  series,
			Latest:  series.Latest(),
			Signals: strategies.Scan(bars, series),
		})
	})
	mux.HandleFunc("GET /api/symbols", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		syms, err := b.Symbols(r.Context(), q.Get("q"), q.Get("market"))
		if err != nil {
			log.Printf("[gateway] symbols lookup failed: %v", err)
			writeError(w, http.StatusBadGateway, "symbol list unavailable")
			return
		}
		writeJSON(w, http.StatusOK, syms)
	})

	// Caches
	mux.HandleFunc("GET /api/cache/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, CacheStatsResponse{Caches: b.CacheStats()})
	})
	mux.HandleFunc("DELETE /api/cache", guard.Wrap(func(w http.ResponseWriter, r *http.Request) {
		n := b.ClearCaches()
		log.Printf("[gateway] cleared %d cache entries", n)
		writeJSON(w, http.StatusOK, CacheClearResponse{Cleared: n})
	}))

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":     "ok",
			"ws_clients": hub.ClientCount(),
			"seq":        hub.Seq(),
			"otp":        guard.Enabled(),
			"uptime_sec": int64(time.Since(processStart).Seconds()),
			"ts":         time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	mux.HandleFunc("OPTIONS /", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.WriteHeader(http.StatusNoContent)
	})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	SetCORS(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}

// writeServiceError maps alert sentinel errors to HTTP status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, alert.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, alert.ErrInvalidRule):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		log.Printf("[gateway] request failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
