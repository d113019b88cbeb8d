// Package dashboard wires the exchange feed, the indicator engine and the
// alert book into the running service behind the gateway.
package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"trading-dashboard/internal/alert"
	"trading-dashboard/internal/cache"
	"trading-dashboard/internal/indicator"
	"trading-dashboard/internal/metrics"
	"trading-dashboard/internal/model"
	"trading-dashboard/internal/notification"
	"trading-dashboard/internal/scheduler"
)

const (
	defaultBarTTL   = 30 * time.Second
	defaultInterval = 60
	defaultLimit    = 500
	maxSymbolHits   = 50
)

// BarSource fetches bars and the tradable symbol list. *feed.Client is one.
type BarSource interface {
	FetchBars(ctx context.Context, symbol string, intervalMinutes, limit int) ([]model.PriceBar, error)
	FetchSymbols(ctx context.Context) ([]model.Symbol, error)
}

// Pusher delivers live events to dashboard clients. *gateway.Hub is one.
type Pusher interface {
	PushAlert(e model.AlertHistoryEntry) bool
	PushRules(rules []model.AlertRule)
	PushIndicators(key string, latest map[string]float64, price float64, at time.Time)
	PushTick(t model.Tick)
}

// Options configures a Service. Source and Book are required; every other
// dependency may be nil.
type Options struct {
	Source     BarSource
	Engine     *indicator.Engine
	Book       *alert.Book
	Store      model.AlertStore // nil keeps state in memory only
	Publisher  model.AlertPublisher
	Dispatcher *notification.Dispatcher
	Pusher     Pusher
	Metrics    *metrics.Metrics
	Health     *metrics.HealthStatus
	Log        *slog.Logger

	Interval     int // bar interval in minutes
	Limit        int // bars per fetch
	BarTTL       time.Duration
	SymbolTTL    time.Duration
	CoalesceWait time.Duration
	HistoryKeep  int
}

// Service is the dashboard core: it keeps the latest snapshot per watched
// symbol, evaluates alert rules once per quiet period and fans triggers out
// to storage, notifiers and clients.
type Service struct {
	src     BarSource
	engine  *indicator.Engine
	book    *alert.Book
	store   model.AlertStore
	pub     model.AlertPublisher
	notify  *notification.Dispatcher
	push    Pusher
	metrics *metrics.Metrics
	health  *metrics.HealthStatus
	log     *slog.Logger

	interval     int
	limit        int
	coalesceWait time.Duration
	historyKeep  int

	bars    *cache.Cache[[]model.PriceBar]
	symbols *cache.Cache[[]model.Symbol]

	mu        sync.Mutex
	states    map[string]*symbolState
	requested map[string]bool // keys asked for over REST but not watched
	closed    bool
}

// symbolState is everything known about one market:symbol key.
type symbolState struct {
	market string
	symbol string

	bars   []model.PriceBar
	series model.IndicatorSeries

	current   alert.Snapshot
	hasPrice  bool
	evaluated *alert.Snapshot // last snapshot handed to the book, Prev unset

	coalescer *scheduler.Coalescer
	evalMu    sync.Mutex
}

// New creates a Service.
func New(opts Options) *Service {
	if opts.Engine == nil {
		opts.Engine = indicator.NewEngine(nil, indicator.DefaultOptions())
	}
	if opts.Book == nil {
		opts.Book = alert.NewBook()
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.Limit <= 0 {
		opts.Limit = defaultLimit
	}
	if opts.BarTTL <= 0 {
		opts.BarTTL = defaultBarTTL
	}
	return &Service{
		src:          opts.Source,
		engine:       opts.Engine,
		book:         opts.Book,
		store:        opts.Store,
		pub:          opts.Publisher,
		notify:       opts.Dispatcher,
		push:         opts.Pusher,
		metrics:      opts.Metrics,
		health:       opts.Health,
		log:          opts.Log.With("component", "dashboard"),
		interval:     opts.Interval,
		limit:        opts.Limit,
		coalesceWait: opts.CoalesceWait,
		historyKeep:  opts.HistoryKeep,
		bars:         cache.New[[]model.PriceBar](opts.BarTTL),
		symbols:      cache.New[[]model.Symbol](opts.SymbolTTL),
		states:       make(map[string]*symbolState),
		requested:    make(map[string]bool),
	}
}

// Load restores rules and history from the store.
func (s *Service) Load(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	rules, err := s.store.LoadRules(ctx)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}
	history, err := s.store.LoadHistory(ctx, s.historyKeep)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	s.book.Load(rules, history)
	s.observeRules()
	s.log.Info("alert state restored", "rules", len(rules), "history", len(history))
	return nil
}

// Close cancels pending evaluations and waits for in-flight notifications.
func (s *Service) Close() {
	s.mu.Lock()
	s.closed = true
	for _, st := range s.states {
		st.coalescer.Stop()
	}
	s.mu.Unlock()

	if s.notify != nil {
		s.notify.Wait()
	}
}

// Keys returns the keys that have a snapshot, in no particular order.
func (s *Service) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.states))
	for k := range s.states {
		keys = append(keys, k)
	}
	return keys
}

// stateLocked returns the state for key, creating it on first use. Caller holds s.mu.
func (s *Service) stateLocked(key string) *symbolState {
	if st, ok := s.states[key]; ok {
		return st
	}
	market, symbol := splitKey(key)
	st := &symbolState{market: market, symbol: symbol}
	st.current = alert.Snapshot{Symbol: symbol, Market: market}
	st.coalescer = scheduler.NewCoalescer(s.coalesceWait, func() { s.evaluate(key) })
	s.states[key] = st
	return st
}

// splitKey parses "market:SYMBOL". A bare symbol is crypto.
func splitKey(key string) (market, symbol string) {
	if i := strings.IndexByte(key, ':'); i >= 0 {
		return key[:i], key[i+1:]
	}
	return model.MarketCrypto, key
}
