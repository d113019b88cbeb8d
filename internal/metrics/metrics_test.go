package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics_OwnRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.AlertsTriggered.WithLabelValues("price").Inc()
	m.AlertsTriggered.WithLabelValues("price").Inc()
	m.NotificationsTotal.WithLabelValues("webhook", "error").Inc()

	if got := testutil.ToFloat64(m.AlertsTriggered.WithLabelValues("price")); got != 2 {
		t.Errorf("alerts triggered = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.NotificationsTotal.WithLabelValues("webhook", "error")); got != 1 {
		t.Errorf("notification errors = %v, want 1", got)
	}

	// A second registry must accept a second set without a duplicate panic.
	NewMetrics(prometheus.NewRegistry())
}

func TestHealthStatus_ServeHTTP(t *testing.T) {
	tests := []struct {
		name       string
		feedOK     bool
		sqliteOK   bool
		wantCode   int
		wantStatus string
	}{
		{"healthy", true, true, http.StatusOK, "healthy"},
		{"feed down", false, true, http.StatusServiceUnavailable, "degraded"},
		{"store down", true, false, http.StatusServiceUnavailable, "degraded"},
		{"all down", false, false, http.StatusServiceUnavailable, "unhealthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthStatus("sqlite")
			h.SetFeedOK(tt.feedOK)
			h.SQLiteOK = tt.sqliteOK

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", rec.Code, tt.wantCode)
			}
			var body struct {
				Status string `json:"status"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", body.Status, tt.wantStatus)
			}
		})
	}
}

func TestHealthStatus_MemoryBackendAlwaysStoreOK(t *testing.T) {
	h := NewHealthStatus("memory")
	h.SetFeedOK(true)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("code = %d, want 200", rec.Code)
	}
}
