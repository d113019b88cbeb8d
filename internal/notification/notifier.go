// Package notification delivers triggered alerts to external channels
// (log, Telegram, webhooks, dashboard push).
package notification

import (
	"context"
	"log/slog"

	"trading-dashboard/internal/model"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel              `json:"level"`
	Title   string                  `json:"title"`
	Message string                  `json:"message"`
	Entry   model.AlertHistoryEntry `json:"entry"`
}

// FromTrigger builds the notification for a fired rule.
// Portfolio rules are critical, everything else is a warning.
func FromTrigger(rule model.AlertRule, entry model.AlertHistoryEntry) Alert {
	level := AlertWarning
	if rule.Type == model.AlertPortfolio {
		level = AlertCritical
	}
	title := entry.Symbol + " " + string(rule.Type) + " alert"
	if rule.Type == model.AlertPortfolio {
		title = "Portfolio alert"
	}
	return Alert{
		Level:   level,
		Title:   title,
		Message: entry.Message,
		Entry:   entry,
	}
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, alert Alert) error

func (f NotifierFunc) Send(ctx context.Context, alert Alert) error { return f(ctx, alert) }

// LogNotifier writes alerts to the structured log.
type LogNotifier struct {
	log *slog.Logger
}

// NewLogNotifier creates a log-based notifier. A nil logger means slog.Default().
func NewLogNotifier(log *slog.Logger) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	n.log.LogAttrs(ctx, slog.LevelWarn, "alert triggered",
		slog.String("level", string(alert.Level)),
		slog.String("title", alert.Title),
		slog.String("message", alert.Message),
		slog.String("alert_id", alert.Entry.AlertID),
		slog.Float64("price", alert.Entry.Price),
	)
	return nil
}
