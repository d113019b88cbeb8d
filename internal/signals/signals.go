// Package signals derives buy/sell signals from a computed indicator panel.
//
// A Strategy scans bars together with the index-aligned series returned by
// indicator.Engine.Compute and emits a Signal at each bar where its rule
// fires. The Engine runs the registered strategies and merges their output
// in time order.
package signals

import (
	"math"
	"sort"

	"trading-dashboard/internal/model"
)

// Action is the side a signal suggests.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
)

// Signal is one event emitted by a strategy.
type Signal struct {
	Action Action  `json:"type"`
	Time   int64   `json:"ts"` // bar open, epoch seconds
	Price  float64 `json:"price"`
	Reason string  `json:"reason"`
	Tag    string  `json:"tag"` // name of the emitting strategy
}

// Strategy is a signal rule over one indicator panel.
type Strategy interface {
	// Name is used as the Tag of every signal the strategy emits.
	Name() string

	// Scan walks bars (sorted by time) with series aligned to them.
	// Missing lines yield no signals.
	Scan(bars []model.PriceBar, series model.IndicatorSeries) []Signal
}

// Engine holds the registered strategies.
type Engine struct {
	strategies []Strategy
}

// NewEngine creates an engine with the given strategies.
func NewEngine(strategies ...Strategy) *Engine {
	return &Engine{strategies: strategies}
}

// Default returns an engine with the moving-average cross, MACD cross,
// RSI level and Bollinger re-entry strategies over the default panel.
func Default() *Engine {
	return NewEngine(
		NewMACross("ema20", "sma20"),
		NewMACDCross(),
		NewRSILevels("rsi", 30, 70),
		NewBollingerTouch(),
	)
}

// Register adds a strategy.
func (e *Engine) Register(s Strategy) {
	e.strategies = append(e.strategies, s)
}

// Scan runs every strategy and returns their signals ordered by time.
// Signals at the same time keep strategy registration order.
func (e *Engine) Scan(bars []model.PriceBar, series model.IndicatorSeries) []Signal {
	out := []Signal{}
	if len(bars) == 0 {
		return out
	}
	for _, s := range e.strategies {
		out = append(out, s.Scan(bars, series)...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}

// at returns series[name][i] when present.
func at(series model.IndicatorSeries, name string, i int) (float64, bool) {
	s := series[name]
	if i >= len(s) || math.IsNaN(s[i]) {
		return 0, false
	}
	return s[i], true
}

func emit(tag string, a Action, bar model.PriceBar, reason string) Signal {
	return Signal{Action: a, Time: bar.Time, Price: bar.Close, Reason: reason, Tag: tag}
}
