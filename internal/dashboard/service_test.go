package dashboard

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"trading-dashboard/internal/alert"
	"trading-dashboard/internal/indicator"
	"trading-dashboard/internal/metrics"
	"trading-dashboard/internal/model"
	"trading-dashboard/internal/notification"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// --- fakes ---

type fakeSource struct {
	mu         sync.Mutex
	bars       map[string][]model.PriceBar
	symbols    []model.Symbol
	fail       map[string]error
	symbolsErr error
	barCalls   map[string]int
	symCalls   int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		bars:     make(map[string][]model.PriceBar),
		fail:     make(map[string]error),
		barCalls: make(map[string]int),
	}
}

func (f *fakeSource) FetchBars(ctx context.Context, symbol string, intervalMinutes, limit int) ([]model.PriceBar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.barCalls[symbol]++
	if err := f.fail[symbol]; err != nil {
		return nil, err
	}
	return f.bars[symbol], nil
}

func (f *fakeSource) FetchSymbols(ctx context.Context) ([]model.Symbol, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.symCalls++
	return f.symbols, f.symbolsErr
}

func (f *fakeSource) calls(symbol string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.barCalls[symbol]
}

type recordPusher struct {
	mu         sync.Mutex
	alerts     []model.AlertHistoryEntry
	ruleLists  int
	indicators map[string]map[string]float64
	prices     map[string]float64
	ticks      []model.Tick
}

func newRecordPusher() *recordPusher {
	return &recordPusher{
		indicators: make(map[string]map[string]float64),
		prices:     make(map[string]float64),
	}
}

func (p *recordPusher) PushAlert(e model.AlertHistoryEntry) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alerts = append(p.alerts, e)
	return true
}

func (p *recordPusher) PushRules(rules []model.AlertRule) {
	p.mu.Lock()
	p.ruleLists++
	p.mu.Unlock()
}

func (p *recordPusher) PushIndicators(key string, latest map[string]float64, price float64, at time.Time) {
	p.mu.Lock()
	p.indicators[key] = latest
	p.prices[key] = price
	p.mu.Unlock()
}

func (p *recordPusher) PushTick(t model.Tick) {
	p.mu.Lock()
	p.ticks = append(p.ticks, t)
	p.mu.Unlock()
}

func (p *recordPusher) alertCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.alerts)
}

// memoryStore is an in-memory model.AlertStore.
type memoryStore struct {
	mu      sync.Mutex
	rules   map[string]model.AlertRule
	history []model.AlertHistoryEntry
	pruned  int
}

var _ model.AlertStore = (*memoryStore)(nil)

func newMemoryStore() *memoryStore {
	return &memoryStore{rules: make(map[string]model.AlertRule)}
}

func (m *memoryStore) LoadRules(ctx context.Context) ([]model.AlertRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.AlertRule, 0, len(m.rules))
	for _, r := range m.rules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memoryStore) SaveRule(ctx context.Context, r model.AlertRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[r.ID] = r
	return nil
}

func (m *memoryStore) DeleteRule(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rules, id)
	return nil
}

func (m *memoryStore) AppendHistory(ctx context.Context, e model.AlertHistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, e)
	return nil
}

func (m *memoryStore) AcknowledgeHistory(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.history {
		if m.history[i].ID == id {
			m.history[i].Acknowledged = true
		}
	}
	return nil
}

func (m *memoryStore) LoadHistory(ctx context.Context, limit int) ([]model.AlertHistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.AlertHistoryEntry, len(m.history))
	copy(out, m.history)
	return out, nil
}

func (m *memoryStore) PruneHistory(ctx context.Context, keep int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	over := len(m.history) - keep
	if over <= 0 {
		return 0, nil
	}
	m.history = m.history[over:]
	m.pruned += over
	return int64(over), nil
}

func (m *memoryStore) Close() error { return nil }

func (m *memoryStore) historyLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.history)
}

func (m *memoryStore) rule(id string) (model.AlertRule, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	return r, ok
}

// --- helpers ---

// risingBars returns n one-minute bars closing at start, start+1, ...
func risingBars(n int, start float64) []model.PriceBar {
	bars := make([]model.PriceBar, n)
	for i := range bars {
		c := start + float64(i)
		bars[i] = model.PriceBar{
			Time:   1_700_000_000 + int64(i)*60,
			Open:   c - 0.5,
			High:   c + 1,
			Low:    c - 1,
			Close:  c,
			Volume: 10,
		}
	}
	return bars
}

type fixture struct {
	svc     *Service
	src     *fakeSource
	store   *memoryStore
	pusher  *recordPusher
	notify  *notification.Dispatcher
	metrics *metrics.Metrics
}

func newFixture(t *testing.T, wait time.Duration) *fixture {
	t.Helper()
	f := &fixture{
		src:     newFakeSource(),
		store:   newMemoryStore(),
		pusher:  newRecordPusher(),
		metrics: metrics.NewMetrics(prometheus.NewRegistry()),
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.notify = notification.NewDispatcher(time.Second, log)
	f.notify.Register(notification.MethodBrowser, BrowserNotifier(f.pusher))

	f.svc = New(Options{
		Source:       f.src,
		Engine:       indicator.NewEngine(indicator.ParseSpecs("SMA:5"), indicator.DefaultOptions()),
		Book:         alert.NewBook(),
		Store:        f.store,
		Dispatcher:   f.notify,
		Pusher:       f.pusher,
		Metrics:      f.metrics,
		Health:       metrics.NewHealthStatus("memory"),
		Log:          log,
		CoalesceWait: wait,
		HistoryKeep:  2,
	})
	t.Cleanup(f.svc.Close)
	return f
}

func (f *fixture) addRule(t *testing.T, r model.AlertRule) model.AlertRule {
	t.Helper()
	if r.Market == "" {
		r.Market = model.MarketCrypto
	}
	created, err := f.svc.CreateRule(context.Background(), r)
	if err != nil {
		t.Fatalf("CreateRule: %v", err)
	}
	return created
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// --- tests ---

func TestRefresh_CoalescedEvaluationFiresOnce(t *testing.T) {
	f := newFixture(t, 20*time.Millisecond)
	f.src.bars["BTCUSDT"] = risingBars(20, 100) // last close 119
	rule := f.addRule(t, model.AlertRule{
		Symbol: "BTCUSDT", Type: model.AlertPrice, Condition: model.CondAbove, Value: 110,
	})

	// Several updates inside one quiet period.
	if err := f.svc.Refresh(context.Background(), nil); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	f.svc.OnTick(model.Tick{Symbol: "BTCUSDT", Market: model.MarketCrypto, Price: 120})
	f.svc.OnTick(model.Tick{Symbol: "BTCUSDT", Market: model.MarketCrypto, Price: 121})

	waitFor(t, "browser push", func() bool { return f.pusher.alertCount() == 1 })

	h := f.svc.History(0)[0]
	if h.AlertID != rule.ID || h.Price != 121 {
		t.Errorf("history entry = %+v, want alert %s at price 121", h, rule.ID)
	}
	if h.Message != "BTCUSDT price 121 is above 110" {
		t.Errorf("message = %q", h.Message)
	}

	got, _ := f.svc.Rule(rule.ID)
	if !got.IsTriggered || got.TriggeredAt == nil {
		t.Errorf("rule not moved to triggered: %+v", got)
	}
	if stored, _ := f.store.rule(rule.ID); !stored.IsTriggered {
		t.Error("triggered state was not persisted")
	}
	if n := f.store.historyLen(); n != 1 {
		t.Errorf("stored history = %d, want 1", n)
	}
	if n := testutil.ToFloat64(f.metrics.EvaluationsTotal); n != 1 {
		t.Errorf("evaluations = %v, want 1", n)
	}
	if n := testutil.ToFloat64(f.metrics.CoalescedTriggers); n != 2 {
		t.Errorf("coalesced triggers = %v, want 2", n)
	}

	// A triggered rule stays quiet until reset.
	if fired := f.svc.EvaluateNow("crypto:BTCUSDT"); len(fired) != 0 {
		t.Errorf("triggered rule fired again: %+v", fired)
	}
	if _, err := f.svc.ResetRule(context.Background(), rule.ID); err != nil {
		t.Fatal(err)
	}
	if fired := f.svc.EvaluateNow("crypto:BTCUSDT"); len(fired) != 1 {
		t.Errorf("reset rule fired %d times, want 1", len(fired))
	}
}

func TestRefresh_ComputesIndicators(t *testing.T) {
	f := newFixture(t, time.Hour)
	f.src.bars["BTCUSDT"] = risingBars(20, 100)

	if err := f.svc.Refresh(context.Background(), []string{"crypto:BTCUSDT"}); err != nil {
		t.Fatal(err)
	}

	bars, series, ok := f.svc.Indicators("BTCUSDT", model.MarketCrypto)
	if !ok {
		t.Fatal("expected indicators after refresh")
	}
	if len(bars) != 20 || len(series["sma5"]) != 20 {
		t.Fatalf("bars=%d sma5=%d", len(bars), len(series["sma5"]))
	}
	// SMA(5) of 115..119
	if v, _ := series["sma5"].Last(); v != 117 {
		t.Errorf("sma5 latest = %v, want 117", v)
	}
	if got := f.pusher.indicators["crypto:BTCUSDT"]["sma5"]; got != 117 {
		t.Errorf("pushed sma5 = %v, want 117", got)
	}
}

func TestRefresh_UsesBarCache(t *testing.T) {
	f := newFixture(t, time.Hour)
	f.src.bars["BTCUSDT"] = risingBars(20, 100)
	watch := []string{"crypto:BTCUSDT"}

	for i := 0; i < 3; i++ {
		if err := f.svc.Refresh(context.Background(), watch); err != nil {
			t.Fatal(err)
		}
	}
	if n := f.src.calls("BTCUSDT"); n != 1 {
		t.Errorf("fetches = %d, want 1", n)
	}
	if n := testutil.ToFloat64(f.metrics.RefreshTotal.WithLabelValues("cached")); n != 2 {
		t.Errorf("cached refreshes = %v, want 2", n)
	}
}

func TestRefresh_FailureIsReportedAndRetried(t *testing.T) {
	f := newFixture(t, time.Hour)
	f.src.bars["BTCUSDT"] = risingBars(20, 100)
	f.src.fail["ETHUSDT"] = errors.New("HTTP 503")
	watch := []string{"crypto:BTCUSDT", "crypto:ETHUSDT"}

	err := f.svc.Refresh(context.Background(), watch)
	if err == nil {
		t.Fatal("expected an error for ETHUSDT")
	}
	if _, _, ok := f.svc.Indicators("ETHUSDT", model.MarketCrypto); ok {
		t.Error("failed key should have no indicators")
	}
	if _, _, ok := f.svc.Indicators("BTCUSDT", model.MarketCrypto); !ok {
		t.Error("healthy key should still refresh")
	}

	delete(f.src.fail, "ETHUSDT")
	f.src.bars["ETHUSDT"] = risingBars(20, 2000)
	if err := f.svc.Refresh(context.Background(), watch); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if f.src.calls("ETHUSDT") != 2 {
		t.Errorf("ETHUSDT fetches = %d, want 2", f.src.calls("ETHUSDT"))
	}
}

func TestIndicators_UnknownKeyJoinsNextRefresh(t *testing.T) {
	f := newFixture(t, time.Hour)
	f.src.bars["SOLUSDT"] = risingBars(20, 50)

	if _, _, ok := f.svc.Indicators("solusd", model.MarketCrypto); ok {
		t.Fatal("no data expected before refresh")
	}
	if err := f.svc.Refresh(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	if _, _, ok := f.svc.Indicators("SOLUSDT", model.MarketCrypto); !ok {
		t.Error("requested key was not refreshed")
	}
}

func TestOnTick_CrossesUpNeedsPreviousPass(t *testing.T) {
	f := newFixture(t, time.Hour)
	f.src.bars["BTCUSDT"] = risingBars(20, 81) // last close 100
	f.addRule(t, model.AlertRule{
		Symbol: "BTCUSDT", Type: model.AlertPrice, Condition: model.CondCrossesUp, Value: 105,
	})

	f.svc.Refresh(context.Background(), nil)
	if fired := f.svc.EvaluateNow("crypto:BTCUSDT"); len(fired) != 0 {
		t.Fatalf("first pass has no previous value, fired %+v", fired)
	}

	f.svc.OnTick(model.Tick{Symbol: "BTCUSDT", Market: model.MarketCrypto, Price: 106})
	fired := f.svc.EvaluateNow("crypto:BTCUSDT")
	if len(fired) != 1 {
		t.Fatalf("fired %d, want 1", len(fired))
	}
	if fired[0].Entry.Message != "BTCUSDT price 106 crossed above 105" {
		t.Errorf("message = %q", fired[0].Entry.Message)
	}
	if len(f.pusher.ticks) != 1 {
		t.Errorf("ticks pushed = %d", len(f.pusher.ticks))
	}
}

func TestRefresh_KeepsNewerTickPrice(t *testing.T) {
	f := newFixture(t, time.Hour)
	f.src.bars["BTCUSDT"] = risingBars(20, 82) // last close 101
	f.addRule(t, model.AlertRule{
		Symbol: "BTCUSDT", Type: model.AlertPrice, Condition: model.CondCrossesDown, Value: 103,
	})
	key := "crypto:BTCUSDT"

	if err := f.svc.Refresh(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	f.svc.OnTick(model.Tick{Symbol: "BTCUSDT", Market: model.MarketCrypto, Price: 105})
	if fired := f.svc.EvaluateNow(key); len(fired) != 0 {
		t.Fatalf("rising tick fired %+v", fired)
	}

	// Cache hit: the bars still end at an older close.
	if err := f.svc.Refresh(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	if n := f.src.calls("BTCUSDT"); n != 1 {
		t.Fatalf("fetches = %d, want 1", n)
	}
	if fired := f.svc.EvaluateNow(key); len(fired) != 0 {
		t.Errorf("stale bar close fired %q", fired[0].Entry.Message)
	}
	if got := f.pusher.prices[key]; got != 105 {
		t.Errorf("pushed price = %v, want 105", got)
	}
}

func TestOnTick_DropsOlderThanSnapshot(t *testing.T) {
	f := newFixture(t, time.Hour)
	now := time.Now().UTC()
	f.svc.OnTick(model.Tick{Symbol: "BTCUSDT", Market: model.MarketCrypto, Price: 105, TS: now})
	f.svc.OnTick(model.Tick{Symbol: "BTCUSDT", Market: model.MarketCrypto, Price: 90, TS: now.Add(-time.Second)})
	if len(f.pusher.ticks) != 1 {
		t.Errorf("ticks pushed = %d, want 1", len(f.pusher.ticks))
	}
}

func TestVolumeRule_UsesBarVolumeOnly(t *testing.T) {
	f := newFixture(t, time.Hour)
	f.src.bars["BTCUSDT"] = risingBars(20, 100) // bar volume 10
	f.addRule(t, model.AlertRule{
		Symbol: "BTCUSDT", Type: model.AlertVolume, Condition: model.CondAbove, Value: 1000,
	})
	key := "crypto:BTCUSDT"

	if err := f.svc.Refresh(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	if fired := f.svc.EvaluateNow(key); len(fired) != 0 {
		t.Fatalf("bar volume 10 fired %+v", fired)
	}

	f.svc.OnTick(model.Tick{Symbol: "BTCUSDT", Market: model.MarketCrypto, Price: 119, Volume24h: 25000})
	if fired := f.svc.EvaluateNow(key); len(fired) != 0 {
		t.Errorf("24h ticker volume fired a bar volume rule: %q", fired[0].Entry.Message)
	}

	f.src.bars["BTCUSDT"] = append(risingBars(20, 100), model.PriceBar{
		Time: 1_700_000_000 + 20*60, Open: 119, High: 120, Low: 118, Close: 119, Volume: 5000,
	})
	f.svc.bars.Clear()
	if err := f.svc.Refresh(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	if fired := f.svc.EvaluateNow(key); len(fired) != 1 {
		t.Errorf("bar volume 5000 fired %d, want 1", len(fired))
	}
}

func TestOnTick_IgnoresBadPrices(t *testing.T) {
	f := newFixture(t, time.Hour)
	f.svc.OnTick(model.Tick{Symbol: "BTCUSDT", Price: 0})
	f.svc.OnTick(model.Tick{Symbol: "BTCUSDT", Price: -1})
	if keys := f.svc.Keys(); len(keys) != 0 {
		t.Errorf("bad ticks created state: %v", keys)
	}
}

func TestEvaluateNow_UnknownKey(t *testing.T) {
	f := newFixture(t, time.Hour)
	if fired := f.svc.EvaluateNow("crypto:NOPE"); fired != nil {
		t.Errorf("fired = %+v", fired)
	}
}

func TestSetPortfolioValue(t *testing.T) {
	f := newFixture(t, time.Hour)
	f.src.bars["BTCUSDT"] = risingBars(20, 100)
	f.addRule(t, model.AlertRule{
		Symbol: "BTCUSDT", Type: model.AlertPortfolio, Condition: model.CondBelow, Value: 5000,
	})
	f.svc.Refresh(context.Background(), nil)

	if fired := f.svc.EvaluateNow("crypto:BTCUSDT"); len(fired) != 0 {
		t.Fatalf("no portfolio value yet, fired %+v", fired)
	}
	f.svc.SetPortfolioValue("BTCUSDT", model.MarketCrypto, 4200)
	if fired := f.svc.EvaluateNow("crypto:BTCUSDT"); len(fired) != 1 {
		t.Errorf("fired %d, want 1", len(fired))
	}
}

func TestRules_PersistAndLoad(t *testing.T) {
	f := newFixture(t, time.Hour)
	ctx := context.Background()

	keep := f.addRule(t, model.AlertRule{Symbol: "btcusdt", Type: model.AlertPrice, Condition: model.CondAbove, Value: 1})
	drop := f.addRule(t, model.AlertRule{Symbol: "ETHUSDT", Type: model.AlertPrice, Condition: model.CondBelow, Value: 1})

	if _, err := f.svc.SetRuleEnabled(ctx, keep.ID, false); err != nil {
		t.Fatal(err)
	}
	if err := f.svc.DeleteRule(ctx, drop.ID); err != nil {
		t.Fatal(err)
	}
	if err := f.svc.DeleteRule(ctx, drop.ID); !errors.Is(err, alert.ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
	if _, err := f.svc.CreateRule(ctx, model.AlertRule{Symbol: "X", Market: "crypto", Type: "bogus"}); !errors.Is(err, alert.ErrInvalidRule) {
		t.Errorf("invalid rule err = %v", err)
	}
	if n := testutil.ToFloat64(f.metrics.AlertRules); n != 1 {
		t.Errorf("rules gauge = %v, want 1", n)
	}

	fresh := New(Options{Source: f.src, Store: f.store})
	defer fresh.Close()
	if err := fresh.Load(ctx); err != nil {
		t.Fatal(err)
	}
	rules := fresh.Rules()
	if len(rules) != 1 || rules[0].ID != keep.ID || rules[0].Symbol != "BTCUSDT" || rules[0].IsEnabled {
		t.Errorf("restored rules = %+v", rules)
	}
}

func TestHistory_AcknowledgeAndPrune(t *testing.T) {
	f := newFixture(t, time.Hour)
	ctx := context.Background()
	f.src.bars["BTCUSDT"] = risingBars(20, 100)
	for i := 0; i < 3; i++ {
		f.addRule(t, model.AlertRule{Symbol: "BTCUSDT", Type: model.AlertPrice, Condition: model.CondAbove, Value: float64(i)})
	}
	f.svc.Refresh(ctx, nil)
	fired := f.svc.EvaluateNow("crypto:BTCUSDT")
	if len(fired) != 3 {
		t.Fatalf("fired %d, want 3", len(fired))
	}

	id := fired[0].Entry.ID
	e, err := f.svc.AcknowledgeHistory(ctx, id)
	if err != nil || !e.Acknowledged {
		t.Fatalf("ack = %+v, %v", e, err)
	}
	if _, err := f.svc.AcknowledgeHistory(ctx, "missing"); !errors.Is(err, alert.ErrNotFound) {
		t.Errorf("ack missing err = %v", err)
	}
	if !f.store.history[0].Acknowledged {
		t.Error("acknowledge was not persisted")
	}

	n, err := f.svc.PruneHistory(ctx)
	if err != nil || n != 1 {
		t.Errorf("pruned %d (%v), want 1", n, err)
	}
}

func TestSymbols_CachedAndFiltered(t *testing.T) {
	f := newFixture(t, time.Hour)
	f.src.symbols = []model.Symbol{
		{Symbol: "ETHUSDT", Base: "ETH", Quote: "USDT", Market: "crypto"},
		{Symbol: "BTCUSDT", Base: "BTC", Quote: "USDT", Market: "crypto"},
		{Symbol: "ETHBTC", Base: "ETH", Quote: "BTC", Market: "crypto"},
	}
	ctx := context.Background()

	got, err := f.svc.Symbols(ctx, "eth", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Symbol != "ETHBTC" || got[1].Symbol != "ETHUSDT" {
		t.Errorf("eth search = %+v", got)
	}
	if all, _ := f.svc.Symbols(ctx, "", "crypto"); len(all) != 3 {
		t.Errorf("empty query returned %d", len(all))
	}
	if f.src.symCalls != 1 {
		t.Errorf("symbol fetches = %d, want 1", f.src.symCalls)
	}
	if stocks, err := f.svc.Symbols(ctx, "AAPL", model.MarketStocks); err != nil || len(stocks) != 0 {
		t.Errorf("stocks = %+v, %v", stocks, err)
	}
}

func TestSymbols_FetchError(t *testing.T) {
	f := newFixture(t, time.Hour)
	f.src.symbolsErr = errors.New("HTTP 451")
	if _, err := f.svc.Symbols(context.Background(), "BTC", ""); err == nil {
		t.Fatal("expected error")
	}
}

func TestClose_StopsPendingEvaluation(t *testing.T) {
	f := newFixture(t, 30*time.Millisecond)
	f.src.bars["BTCUSDT"] = risingBars(20, 100)
	f.addRule(t, model.AlertRule{Symbol: "BTCUSDT", Type: model.AlertPrice, Condition: model.CondAbove, Value: 1})

	f.svc.Refresh(context.Background(), nil)
	f.svc.Close()
	time.Sleep(80 * time.Millisecond)
	if n := len(f.svc.History(0)); n != 0 {
		t.Errorf("evaluation ran after Close: %d entries", n)
	}
}

func TestCaches_PurgeClearAndStats(t *testing.T) {
	f := newFixture(t, time.Hour)
	now := time.Unix(1_700_000_000, 0)
	f.svc.bars.WithClock(func() time.Time { return now })
	f.src.bars["BTCUSDT"] = risingBars(20, 100)
	f.src.symbols = []model.Symbol{{Symbol: "BTCUSDT", Base: "BTC", Quote: "USDT", Market: model.MarketCrypto}}

	if err := f.svc.Refresh(context.Background(), []string{"crypto:BTCUSDT"}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Symbols(context.Background(), "btc", ""); err != nil {
		t.Fatal(err)
	}

	stats := f.svc.CacheStats()
	if b := stats["bars"]; b.Entries != 1 || b.Live != 1 || b.Misses != 1 {
		t.Errorf("bars stats = %+v", b)
	}
	if s := stats["symbols"]; s.Entries != 1 {
		t.Errorf("symbols stats = %+v", s)
	}

	if n := f.svc.PurgeCaches(); n != 0 {
		t.Errorf("purged %d live entries", n)
	}
	now = now.Add(time.Minute) // past the 30s bar TTL
	if n := f.svc.PurgeCaches(); n != 1 {
		t.Errorf("purged %d, want the expired bar set", n)
	}
	if b := f.svc.CacheStats()["bars"]; b.Entries != 0 {
		t.Errorf("bars after purge = %+v", b)
	}

	if n := f.svc.ClearCaches(); n != 1 {
		t.Errorf("cleared %d, want the symbol list", n)
	}
	if _, _, ok := f.svc.Indicators("BTCUSDT", model.MarketCrypto); !ok {
		t.Error("clearing caches dropped computed indicators")
	}
	if err := f.svc.Refresh(context.Background(), []string{"crypto:BTCUSDT"}); err != nil {
		t.Fatal(err)
	}
	if n := f.src.calls("BTCUSDT"); n != 2 {
		t.Errorf("fetches after purge = %d, want 2", n)
	}
}
