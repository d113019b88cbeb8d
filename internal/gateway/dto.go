package gateway

import (
	"trading-dashboard/internal/model"
	"trading-dashboard/internal/signals"
)

// RuleRequest is the body of POST /api/alerts and PUT /api/alerts/{id}.
type RuleRequest struct {
	Symbol              string          `json:"symbol"`
	Market              string          `json:"market"`
	Type                model.AlertType `json:"type"`
	Condition           model.Condition `json:"condition"`
	Value               float64         `json:"value"`
	Indicator           string          `json:"indicator,omitempty"`
	NotificationMethods []string        `json:"notificationMethods,omitempty"`
	Note                string          `json:"note,omitempty"`
	IsEnabled           *bool           `json:"isEnabled,omitempty"` // nil keeps the current state; new rules default to enabled
}

func (r RuleRequest) rule(id string) model.AlertRule {
	return model.AlertRule{
		ID:                  id,
		Symbol:              r.Symbol,
		Market:              r.Market,
		Type:                r.Type,
		Condition:           r.Condition,
		Value:               r.Value,
		Indicator:           r.Indicator,
		NotificationMethods: r.NotificationMethods,
		Note:                r.Note,
	}
}

// IndicatorsResponse is the body of GET /api/indicators/{market}/{symbol}.
type IndicatorsResponse struct {
	Symbol  string                `json:"symbol"`
	Market  string                `json:"market"`
	Times   []int64               `json:"times"`
	Series  model.IndicatorSeries `json:"series"`
	Latest  map[string]float64    `json:"latest"`
	Signals []signals.Signal      `json:"signals"`
}

// CacheStatsResponse is the body of GET /api/cache/stats.
type CacheStatsResponse struct {
	Caches map[string]model.CacheStats `json:"caches"`
}

// CacheClearResponse is the body of DELETE /api/cache.
type CacheClearResponse struct {
	Cleared int `json:"cleared"`
}

type errorResponse struct {
	Error string `json:"error"`
}
