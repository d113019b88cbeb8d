package model

import "context"

// ── Storage Port Interfaces ──
// These interfaces decouple alert state from concrete storage implementations
// (SQLite, Redis). Each implementation satisfies one or more of them.

// AlertStore persists alert rules and their trigger history.
type AlertStore interface {
	// LoadRules returns all stored rules ordered by creation time.
	LoadRules(ctx context.Context) ([]AlertRule, error)

	// SaveRule inserts or replaces a rule by ID.
	SaveRule(ctx context.Context, rule AlertRule) error

	// DeleteRule removes a rule. Deleting a missing rule is not an error.
	DeleteRule(ctx context.Context, id string) error

	// AppendHistory records a new trigger entry.
	AppendHistory(ctx context.Context, entry AlertHistoryEntry) error

	// AcknowledgeHistory sets the acknowledged flag on an entry. A missing ID is not an error.
	AcknowledgeHistory(ctx context.Context, id string) error

	// LoadHistory returns up to limit entries, newest first. limit <= 0 means all.
	LoadHistory(ctx context.Context, limit int) ([]AlertHistoryEntry, error)

	// Close releases underlying resources.
	Close() error
}

// AlertPublisher fans triggered entries out to other processes (e.g. Redis PubSub).
type AlertPublisher interface {
	PublishTrigger(ctx context.Context, entry AlertHistoryEntry) error
}
