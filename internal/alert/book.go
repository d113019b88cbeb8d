package alert

import (
	"sort"
	"sync"
	"time"

	"trading-dashboard/internal/model"

	"github.com/google/uuid"
)

const defaultHistoryLimit = 1000

// Fired pairs a rule, already moved to the triggered state, with the history
// entry recorded for it.
type Fired struct {
	Rule    model.AlertRule
	Entry   model.AlertHistoryEntry
	Trigger Trigger
}

// Book holds the alert rules and trigger history in memory.
// All methods are safe for concurrent use.
type Book struct {
	mu      sync.RWMutex
	rules   map[string]*model.AlertRule
	order   []string
	history []model.AlertHistoryEntry // oldest first

	historyLimit int
	now          func() time.Time
	newID        func() string
}

// Option configures a Book.
type Option func(*Book)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Book) { b.now = now }
}

// WithIDGenerator overrides UUID generation, for tests.
func WithIDGenerator(gen func() string) Option {
	return func(b *Book) { b.newID = gen }
}

// WithHistoryLimit caps the number of history entries kept in memory.
func WithHistoryLimit(n int) Option {
	return func(b *Book) {
		if n > 0 {
			b.historyLimit = n
		}
	}
}

// NewBook creates an empty Book.
func NewBook(opts ...Option) *Book {
	b := &Book{
		rules:        make(map[string]*model.AlertRule),
		historyLimit: defaultHistoryLimit,
		now:          time.Now,
		newID:        uuid.NewString,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Load replaces the book contents with persisted rules and history.
func (b *Book) Load(rules []model.AlertRule, history []model.AlertHistoryEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rules = make(map[string]*model.AlertRule, len(rules))
	b.order = b.order[:0]
	sorted := make([]model.AlertRule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].CreatedAt.Before(sorted[j].CreatedAt) })
	for i := range sorted {
		r := sorted[i]
		b.rules[r.ID] = &r
		b.order = append(b.order, r.ID)
	}

	b.history = make([]model.AlertHistoryEntry, len(history))
	copy(b.history, history)
	sort.SliceStable(b.history, func(i, j int) bool {
		return b.history[i].TriggeredAt.Before(b.history[j].TriggeredAt)
	})
	b.trimHistory()
}

// Add validates and stores a new rule. It assigns an ID when missing, stamps
// CreatedAt, and starts the rule enabled and armed whatever IsEnabled says;
// a rule wanted disabled is added and then passed to SetEnabled.
func (b *Book) Add(r model.AlertRule) (model.AlertRule, error) {
	r = normalize(r)
	if err := Validate(r); err != nil {
		return model.AlertRule{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if r.ID == "" {
		r.ID = b.newID()
	}
	if _, exists := b.rules[r.ID]; exists {
		r.ID = b.newID()
	}
	r.CreatedAt = b.now().UTC()
	r.IsEnabled = true
	r.IsTriggered = false
	r.TriggeredAt = nil

	b.rules[r.ID] = &r
	b.order = append(b.order, r.ID)
	return r, nil
}

// Update replaces the editable fields of an existing rule. Trigger state,
// ID and creation time are kept.
func (b *Book) Update(r model.AlertRule) (model.AlertRule, error) {
	r = normalize(r)
	if err := Validate(r); err != nil {
		return model.AlertRule{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	cur, ok := b.rules[r.ID]
	if !ok {
		return model.AlertRule{}, ErrNotFound
	}
	cur.Symbol = r.Symbol
	cur.Market = r.Market
	cur.Type = r.Type
	cur.Condition = r.Condition
	cur.Value = r.Value
	cur.Indicator = r.Indicator
	cur.NotificationMethods = r.NotificationMethods
	cur.Note = r.Note
	return *cur, nil
}

// Delete removes a rule. History entries for it are kept.
func (b *Book) Delete(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.rules[id]; !ok {
		return ErrNotFound
	}
	delete(b.rules, id)
	for i, oid := range b.order {
		if oid == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	return nil
}

// SetEnabled enables or disables a rule.
func (b *Book) SetEnabled(id string, enabled bool) (model.AlertRule, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	r, ok := b.rules[id]
	if !ok {
		return model.AlertRule{}, ErrNotFound
	}
	r.IsEnabled = enabled
	return *r, nil
}

// Reset re-arms a triggered rule so it can fire again.
func (b *Book) Reset(id string) (model.AlertRule, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	r, ok := b.rules[id]
	if !ok {
		return model.AlertRule{}, ErrNotFound
	}
	r.IsTriggered = false
	r.TriggeredAt = nil
	return *r, nil
}

// Rule returns a copy of one rule.
func (b *Book) Rule(id string) (model.AlertRule, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	r, ok := b.rules[id]
	if !ok {
		return model.AlertRule{}, false
	}
	return *r, true
}

// Rules returns copies of all rules in creation order.
func (b *Book) Rules() []model.AlertRule {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.rulesLocked()
}

// Keys returns the distinct "market:symbol" keys referenced by rules.
func (b *Book) Keys() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	seen := make(map[string]bool)
	var keys []string
	for _, id := range b.order {
		k := b.rules[id].Key()
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	return keys
}

func (b *Book) rulesLocked() []model.AlertRule {
	out := make([]model.AlertRule, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, *b.rules[id])
	}
	return out
}

// Apply evaluates snap against all rules, moves every match to the triggered
// state, and records one history entry per match. A triggered rule never
// fires again until Reset.
func (b *Book) Apply(snap Snapshot) []Fired {
	b.mu.Lock()
	defer b.mu.Unlock()

	triggers := Evaluate(snap, b.rulesLocked())
	if len(triggers) == 0 {
		return nil
	}

	at := b.now().UTC()
	fired := make([]Fired, 0, len(triggers))
	for _, tr := range triggers {
		r := b.rules[tr.Rule.ID]
		ts := at
		r.IsTriggered = true
		r.TriggeredAt = &ts

		entry := model.AlertHistoryEntry{
			ID:          b.newID(),
			AlertID:     r.ID,
			Symbol:      r.Symbol,
			Market:      r.Market,
			Message:     tr.Message,
			TriggeredAt: at,
			Price:       snap.Price,
		}
		b.history = append(b.history, entry)
		fired = append(fired, Fired{Rule: *r, Entry: entry, Trigger: tr})
	}
	b.trimHistory()
	return fired
}

// History returns up to limit entries, newest first. limit <= 0 means all.
func (b *Book) History(limit int) []model.AlertHistoryEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := len(b.history)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]model.AlertHistoryEntry, 0, n)
	for i := len(b.history) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, b.history[i])
	}
	return out
}

// Acknowledge marks a history entry as seen.
func (b *Book) Acknowledge(id string) (model.AlertHistoryEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.history {
		if b.history[i].ID == id {
			b.history[i].Acknowledged = true
			return b.history[i], nil
		}
	}
	return model.AlertHistoryEntry{}, ErrNotFound
}

func (b *Book) trimHistory() {
	if over := len(b.history) - b.historyLimit; over > 0 {
		b.history = append(b.history[:0], b.history[over:]...)
	}
}
