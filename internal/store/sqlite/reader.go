package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"trading-dashboard/internal/model"
)

// LoadRules returns all stored rules ordered by creation time.
func (s *Store) LoadRules(ctx context.Context) ([]model.AlertRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, symbol, market, type, condition, value, indicator,
		       is_enabled, is_triggered, triggered_at, created_at, methods, note
		FROM alert_rules
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("sqlite query alert_rules: %w", err)
	}
	defer rows.Close()

	var rules []model.AlertRule
	for rows.Next() {
		var (
			r                  model.AlertRule
			typ, cond, methods string
			enabled, triggered int
			triggeredAt        sql.NullInt64
			createdAt          int64
		)
		if err := rows.Scan(&r.ID, &r.Symbol, &r.Market, &typ, &cond, &r.Value, &r.Indicator,
			&enabled, &triggered, &triggeredAt, &createdAt, &methods, &r.Note); err != nil {
			return nil, fmt.Errorf("sqlite scan alert_rules: %w", err)
		}
		r.Type = model.AlertType(typ)
		r.Condition = model.Condition(cond)
		r.IsEnabled = enabled != 0
		r.IsTriggered = triggered != 0
		r.CreatedAt = time.Unix(0, createdAt).UTC()
		if triggeredAt.Valid {
			ts := time.Unix(0, triggeredAt.Int64).UTC()
			r.TriggeredAt = &ts
		}
		if err := json.Unmarshal([]byte(methods), &r.NotificationMethods); err != nil {
			return nil, fmt.Errorf("sqlite decode methods for %s: %w", r.ID, err)
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// LoadHistory returns up to limit entries, newest first. limit <= 0 means all.
func (s *Store) LoadHistory(ctx context.Context, limit int) ([]model.AlertHistoryEntry, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, alert_id, symbol, market, message, triggered_at, price, acknowledged
		FROM alert_history
		ORDER BY triggered_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query alert_history: %w", err)
	}
	defer rows.Close()

	var out []model.AlertHistoryEntry
	for rows.Next() {
		var (
			e   model.AlertHistoryEntry
			ts  int64
			ack int
		)
		if err := rows.Scan(&e.ID, &e.AlertID, &e.Symbol, &e.Market, &e.Message, &ts, &e.Price, &ack); err != nil {
			return nil, fmt.Errorf("sqlite scan alert_history: %w", err)
		}
		e.TriggeredAt = time.Unix(0, ts).UTC()
		e.Acknowledged = ack != 0
		out = append(out, e)
	}
	return out, rows.Err()
}
