package dashboard

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"trading-dashboard/internal/alert"
	"trading-dashboard/internal/feed"
	"trading-dashboard/internal/logger"
	"trading-dashboard/internal/model"
)

// Refresh reloads bars for the watched keys plus every key referenced by a
// rule, recomputes indicators and schedules an evaluation for each key.
// A failing key is logged and retried on the next call; the returned error
// joins all failures.
func (s *Service) Refresh(ctx context.Context, watch []string) error {
	start := time.Now()
	keys := s.refreshKeys(watch)

	var errs []error
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.refreshKey(ctx, key); err != nil {
			s.log.Warn("refresh failed, will retry", "key", key, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}

	if s.metrics != nil {
		s.metrics.RefreshDur.Observe(time.Since(start).Seconds())
	}
	if s.health != nil {
		s.health.SetFeedOK(len(errs) < len(keys) || len(keys) == 0)
	}
	return errors.Join(errs...)
}

func (s *Service) refreshKeys(watch []string) []string {
	seen := make(map[string]bool)
	var keys []string
	add := func(k string) {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	for _, k := range watch {
		add(k)
	}
	for _, k := range s.book.Keys() {
		add(k)
	}

	s.mu.Lock()
	var extra []string
	for k := range s.requested {
		extra = append(extra, k)
	}
	s.mu.Unlock()
	sort.Strings(extra)
	for _, k := range extra {
		add(k)
	}
	return keys
}

func (s *Service) refreshKey(ctx context.Context, key string) error {
	market, symbol := splitKey(key)
	if market != model.MarketCrypto {
		s.log.Debug("no feed for market", "key", key)
		return nil
	}

	bars, cached := s.bars.Get(key)
	s.observeCache("bars", cached)
	if !cached {
		fetched, err := s.src.FetchBars(ctx, feed.NormalizeSymbol(symbol), s.interval, s.limit)
		if err != nil {
			s.observeRefresh("error")
			return err
		}
		bars = model.SortBars(fetched)
		s.bars.Set(key, bars)
		if s.metrics != nil {
			s.metrics.BarsFetched.Add(float64(len(bars)))
		}
		s.observeRefresh("ok")
	} else {
		s.observeRefresh("cached")
	}
	if len(bars) == 0 {
		return nil
	}

	computeStart := time.Now()
	series := s.engine.Compute(bars)
	if s.metrics != nil {
		s.metrics.IndicatorComputeDur.Observe(time.Since(computeStart).Seconds())
	}
	latest := series.Latest()
	last := bars[len(bars)-1]

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	st := s.stateLocked(key)
	st.bars = bars
	st.series = series
	st.current.Indicators = latest
	st.current.Volume = last.Volume
	st.current.HasVolume = !math.IsNaN(last.Volume) && !math.IsInf(last.Volume, 0)
	// A live tick newer than the last bar keeps its price.
	if !last.TS().Before(st.current.At) {
		st.current.Price = last.Close
		st.current.At = last.TS()
	}
	st.hasPrice = true
	price, at := st.current.Price, st.current.At
	delete(s.requested, key)
	s.triggerLocked(st)
	s.mu.Unlock()

	if s.push != nil {
		s.push.PushIndicators(key, latest, price, at)
	}
	return nil
}

// OnTick applies a live price. Indicator values and bar volume keep their
// last refresh; the tick's 24h volume is only forwarded to browsers.
func (s *Service) OnTick(t model.Tick) {
	if t.Price <= 0 || math.IsNaN(t.Price) || math.IsInf(t.Price, 0) {
		return
	}
	if t.Market == "" {
		t.Market = model.MarketCrypto
	}
	if t.TS.IsZero() {
		t.TS = time.Now().UTC()
	}
	key := t.Key()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	st := s.stateLocked(key)
	if t.TS.Before(st.current.At) {
		s.mu.Unlock()
		return
	}
	st.current.Price = t.Price
	st.current.At = t.TS
	st.hasPrice = true
	s.triggerLocked(st)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.TicksTotal.Inc()
	}
	if s.health != nil {
		s.health.SetLastTickTime(t.TS)
	}
	if s.push != nil {
		s.push.PushTick(t)
	}
}

// SetPortfolioValue records the portfolio value that portfolio rules on
// market:symbol compare against.
func (s *Service) SetPortfolioValue(symbol, market string, value float64) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	st := s.stateLocked(model.Key(market, symbol))
	st.current.Portfolio = value
	st.current.HasPortfolio = true
	s.triggerLocked(st)
}

// triggerLocked schedules an evaluation. Caller holds s.mu.
func (s *Service) triggerLocked(st *symbolState) {
	if st.coalescer.Pending() && s.metrics != nil {
		s.metrics.CoalescedTriggers.Inc()
	}
	st.coalescer.Trigger()
}

// EvaluateNow evaluates key's latest snapshot immediately and returns the
// rules that fired.
func (s *Service) EvaluateNow(key string) []alert.Fired {
	return s.evaluate(key)
}

// evaluate runs one pass over the latest snapshot of key. The previous pass's
// snapshot rides along so crossing conditions can be checked.
func (s *Service) evaluate(key string) []alert.Fired {
	s.mu.Lock()
	st, ok := s.states[key]
	if !ok || !st.hasPrice {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	st.evalMu.Lock()
	defer st.evalMu.Unlock()

	s.mu.Lock()
	snap := st.current
	if st.evaluated != nil {
		prev := *st.evaluated
		snap.Prev = &prev
	}
	done := st.current
	st.evaluated = &done
	s.mu.Unlock()

	now := time.Now()
	ctx := logger.WithTraceID(context.Background(), logger.GenerateTraceID(key, now))
	fired := s.book.Apply(snap)
	if s.metrics != nil {
		s.metrics.EvaluationsTotal.Inc()
	}
	if len(fired) == 0 {
		return nil
	}

	for _, f := range fired {
		s.log.Info("alert triggered", append(logger.LogWithTrace(ctx),
			"rule", f.Rule.ID, "key", key, "message", f.Entry.Message)...)
		if s.metrics != nil {
			s.metrics.AlertsTriggered.WithLabelValues(string(f.Rule.Type)).Inc()
		}
		s.persistTrigger(ctx, f)
		if s.notify != nil {
			s.notify.Dispatch(f.Rule, f.Entry)
		}
	}
	if s.push != nil {
		s.push.PushRules(s.book.Rules())
	}
	return fired
}

// persistTrigger stores the rule's new state and the history entry, then
// announces it to other instances. Failures are logged only.
func (s *Service) persistTrigger(ctx context.Context, f alert.Fired) {
	if s.store != nil {
		start := time.Now()
		if err := s.store.SaveRule(ctx, f.Rule); err != nil {
			s.log.Error("persist triggered rule", append(logger.LogWithTrace(ctx), "rule", f.Rule.ID, "error", err)...)
		}
		if err := s.store.AppendHistory(ctx, f.Entry); err != nil {
			s.log.Error("persist alert history", append(logger.LogWithTrace(ctx), "entry", f.Entry.ID, "error", err)...)
		}
		s.observeWrite(start)
	}
	if s.pub != nil {
		if err := s.pub.PublishTrigger(ctx, f.Entry); err != nil {
			s.log.Warn("publish trigger", append(logger.LogWithTrace(ctx), "entry", f.Entry.ID, "error", err)...)
		}
	}
}

// Indicators returns the bars and indicator series of the last refresh of
// market:symbol. An unknown key is queued for the next refresh.
func (s *Service) Indicators(symbol, market string) ([]model.PriceBar, model.IndicatorSeries, bool) {
	key := model.Key(market, feed.NormalizeSymbol(symbol))

	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[key]
	if !ok || st.series == nil {
		if market == model.MarketCrypto {
			s.requested[key] = true
		}
		return nil, nil, false
	}
	return st.bars, st.series, true
}
