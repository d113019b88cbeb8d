package indicator

import (
	"math"

	"trading-dashboard/internal/model"
)

// Engine computes a fixed panel of indicators over a bar series.
// It holds no per-symbol state; every Compute is a full recomputation.
type Engine struct {
	specs []Spec
	opts  Options
}

// NewEngine creates an engine for the given specs. Empty specs means DefaultSpecs.
func NewEngine(specs []Spec, opts Options) *Engine {
	if len(specs) == 0 {
		specs = DefaultSpecs()
	}
	return &Engine{specs: specs, opts: opts.withDefaults()}
}

// Specs returns the configured indicator specs.
func (e *Engine) Specs() []Spec { return e.specs }

// Options returns the effective options.
func (e *Engine) Options() Options { return e.opts }

// Compute returns every configured line index-aligned to the time-sorted
// input bars. Indices without a value (warm-up, invalid bar) hold NaN.
// When two specs produce the same line name, the later spec wins.
func (e *Engine) Compute(bars []model.PriceBar) model.IndicatorSeries {
	sorted := model.SortBars(bars)
	index := make(map[int64]int, len(sorted))
	for i, b := range sorted {
		index[b.Time] = i
	}

	valid := cleanBars(sorted)
	out := make(model.IndicatorSeries, len(e.specs)*2)
	for _, spec := range e.specs {
		for name, pts := range calculate(valid, spec, e.opts) {
			s := make(model.Series, len(sorted))
			for i := range s {
				s[i] = math.NaN()
			}
			for _, p := range pts {
				if i, ok := index[p.Time]; ok {
					s[i] = p.Value
				}
			}
			out[name] = s
		}
	}
	return out
}
