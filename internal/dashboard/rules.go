package dashboard

import (
	"context"
	"time"

	"trading-dashboard/internal/model"
)

// Rule mutations commit to the book first, then persist. A persistence
// failure is logged and does not undo the in-memory change.

// Rules returns all rules in creation order.
func (s *Service) Rules() []model.AlertRule { return s.book.Rules() }

// Rule returns one rule.
func (s *Service) Rule(id string) (model.AlertRule, bool) { return s.book.Rule(id) }

// CreateRule validates and adds a rule. Its key joins the refresh set.
func (s *Service) CreateRule(ctx context.Context, r model.AlertRule) (model.AlertRule, error) {
	created, err := s.book.Add(r)
	if err != nil {
		return model.AlertRule{}, err
	}
	s.saveRule(ctx, created)
	s.observeRules()
	s.log.Info("rule created", "rule", created.ID, "key", created.Key(), "type", created.Type, "condition", created.Condition)
	return created, nil
}

// UpdateRule replaces the editable fields of a rule.
func (s *Service) UpdateRule(ctx context.Context, r model.AlertRule) (model.AlertRule, error) {
	updated, err := s.book.Update(r)
	if err != nil {
		return model.AlertRule{}, err
	}
	s.saveRule(ctx, updated)
	return updated, nil
}

// DeleteRule removes a rule. Its history stays.
func (s *Service) DeleteRule(ctx context.Context, id string) error {
	if err := s.book.Delete(id); err != nil {
		return err
	}
	if s.store != nil {
		start := time.Now()
		if err := s.store.DeleteRule(ctx, id); err != nil {
			s.log.Error("persist rule delete", "rule", id, "error", err)
		}
		s.observeWrite(start)
	}
	s.observeRules()
	return nil
}

// SetRuleEnabled enables or disables a rule.
func (s *Service) SetRuleEnabled(ctx context.Context, id string, enabled bool) (model.AlertRule, error) {
	r, err := s.book.SetEnabled(id, enabled)
	if err != nil {
		return model.AlertRule{}, err
	}
	s.saveRule(ctx, r)
	return r, nil
}

// ResetRule re-arms a triggered rule.
func (s *Service) ResetRule(ctx context.Context, id string) (model.AlertRule, error) {
	r, err := s.book.Reset(id)
	if err != nil {
		return model.AlertRule{}, err
	}
	s.saveRule(ctx, r)
	return r, nil
}

// History returns up to limit entries, newest first.
func (s *Service) History(limit int) []model.AlertHistoryEntry { return s.book.History(limit) }

// AcknowledgeHistory marks a history entry as seen.
func (s *Service) AcknowledgeHistory(ctx context.Context, id string) (model.AlertHistoryEntry, error) {
	e, err := s.book.Acknowledge(id)
	if err != nil {
		return model.AlertHistoryEntry{}, err
	}
	if s.store != nil {
		start := time.Now()
		if err := s.store.AcknowledgeHistory(ctx, id); err != nil {
			s.log.Error("persist acknowledge", "entry", id, "error", err)
		}
		s.observeWrite(start)
	}
	return e, nil
}

type historyPruner interface {
	PruneHistory(ctx context.Context, keep int) (int64, error)
}

// PruneHistory trims persisted history to the configured size when the
// store supports it.
func (s *Service) PruneHistory(ctx context.Context) (int64, error) {
	p, ok := s.store.(historyPruner)
	if !ok || s.historyKeep <= 0 {
		return 0, nil
	}
	n, err := p.PruneHistory(ctx, s.historyKeep)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info("history pruned", "removed", n, "keep", s.historyKeep)
	}
	return n, nil
}

func (s *Service) saveRule(ctx context.Context, r model.AlertRule) {
	if s.store == nil {
		return
	}
	start := time.Now()
	if err := s.store.SaveRule(ctx, r); err != nil {
		s.log.Error("persist rule", "rule", r.ID, "error", err)
	}
	s.observeWrite(start)
}
