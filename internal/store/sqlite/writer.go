package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"

	"trading-dashboard/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Config configures the SQLite alert store.
type Config struct {
	DBPath string // path to SQLite database file, e.g. "data/alerts.db"
}

// Store persists alert rules and trigger history in SQLite.
// It implements model.AlertStore.
type Store struct {
	db *sql.DB
}

var _ model.AlertStore = (*Store)(nil)

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// New opens the database with WAL mode and creates the schema.
func New(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS alert_rules (
			id           TEXT    PRIMARY KEY,
			symbol       TEXT    NOT NULL,
			market       TEXT    NOT NULL,
			type         TEXT    NOT NULL,
			condition    TEXT    NOT NULL,
			value        REAL    NOT NULL,
			indicator    TEXT    NOT NULL DEFAULT '',
			is_enabled   INTEGER NOT NULL,
			is_triggered INTEGER NOT NULL,
			triggered_at INTEGER,
			created_at   INTEGER NOT NULL,
			methods      TEXT    NOT NULL DEFAULT '[]',
			note         TEXT    NOT NULL DEFAULT ''
		);

		CREATE TABLE IF NOT EXISTS alert_history (
			id           TEXT    PRIMARY KEY,
			alert_id     TEXT    NOT NULL,
			symbol       TEXT    NOT NULL,
			market       TEXT    NOT NULL,
			message      TEXT    NOT NULL,
			triggered_at INTEGER NOT NULL,
			price        REAL    NOT NULL,
			acknowledged INTEGER NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_alert_history_ts ON alert_history (triggered_at);
	`)
	return err
}

// SaveRule inserts or replaces a rule by ID.
func (s *Store) SaveRule(ctx context.Context, r model.AlertRule) error {
	methods, err := json.Marshal(r.NotificationMethods)
	if err != nil {
		return fmt.Errorf("marshal methods: %w", err)
	}

	var triggeredAt sql.NullInt64
	if r.TriggeredAt != nil {
		triggeredAt = sql.NullInt64{Int64: r.TriggeredAt.UnixNano(), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO alert_rules
			(id, symbol, market, type, condition, value, indicator, is_enabled, is_triggered, triggered_at, created_at, methods, note)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.Symbol, r.Market, string(r.Type), string(r.Condition), r.Value, r.Indicator,
		boolInt(r.IsEnabled), boolInt(r.IsTriggered), triggeredAt, r.CreatedAt.UnixNano(), string(methods), r.Note)
	if err != nil {
		return fmt.Errorf("sqlite save rule %s: %w", r.ID, err)
	}
	return nil
}

// DeleteRule removes a rule. Its history is kept.
func (s *Store) DeleteRule(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM alert_rules WHERE id = ?`, id); err != nil {
		return fmt.Errorf("sqlite delete rule %s: %w", id, err)
	}
	return nil
}

// AppendHistory records a trigger entry.
func (s *Store) AppendHistory(ctx context.Context, e model.AlertHistoryEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO alert_history
			(id, alert_id, symbol, market, message, triggered_at, price, acknowledged)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.AlertID, e.Symbol, e.Market, e.Message, e.TriggeredAt.UnixNano(), e.Price, boolInt(e.Acknowledged))
	if err != nil {
		return fmt.Errorf("sqlite append history %s: %w", e.ID, err)
	}
	return nil
}

// AcknowledgeHistory sets the acknowledged flag on an entry.
func (s *Store) AcknowledgeHistory(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE alert_history SET acknowledged = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("sqlite acknowledge %s: %w", id, err)
	}
	return nil
}

// PruneHistory deletes all but the newest keep entries.
func (s *Store) PruneHistory(ctx context.Context, keep int) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM alert_history WHERE id NOT IN (
			SELECT id FROM alert_history ORDER BY triggered_at DESC LIMIT ?
		)`, keep)
	if err != nil {
		return 0, fmt.Errorf("sqlite prune history: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		log.Printf("[sqlite] pruned %d history entries", n)
	}
	return n, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
