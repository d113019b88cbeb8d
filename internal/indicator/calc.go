package indicator

import (
	"log/slog"
	"math"
	"strconv"

	"trading-dashboard/internal/model"
)

// warmupExtra is the number of bars beyond the period required before any
// output is produced.
const warmupExtra = 5

// SignalMode selects how a secondary line (MACD signal, Stochastic %D) is derived.
type SignalMode string

const (
	// SignalSimplified sets the secondary line equal to the primary line.
	// This reproduces the dashboard's historical output.
	SignalSimplified SignalMode = "simplified"
	// SignalSmoothed uses the textbook formula: EMA of MACD, SMA of %K.
	SignalSmoothed SignalMode = "smoothed"
)

// ParseSignalMode maps a config string to a SignalMode. Unknown values fall
// back to SignalSimplified.
func ParseSignalMode(s string) SignalMode {
	if SignalMode(s) == SignalSmoothed {
		return SignalSmoothed
	}
	return SignalSimplified
}

// Options tunes the multi-line indicators. Zero values take defaults.
type Options struct {
	MACDFast         int        `yaml:"macd_fast"`
	MACDSlow         int        `yaml:"macd_slow"`
	MACDSignalPeriod int        `yaml:"macd_signal_period"`
	MACDSignal       SignalMode `yaml:"macd_signal"`
	StochDPeriod     int        `yaml:"stoch_d_period"`
	StochD           SignalMode `yaml:"stoch_d"`
	BollingerK       float64    `yaml:"bollinger_k"`
}

// DefaultOptions returns MACD(12,26,9), Stochastic %D over 3, Bollinger k=2,
// with both secondary lines in simplified mode.
func DefaultOptions() Options {
	return Options{}.withDefaults()
}

func (o Options) withDefaults() Options {
	if o.MACDFast <= 0 {
		o.MACDFast = 12
	}
	if o.MACDSlow <= 0 {
		o.MACDSlow = 26
	}
	if o.MACDSignalPeriod <= 0 {
		o.MACDSignalPeriod = 9
	}
	if o.MACDSignal == "" {
		o.MACDSignal = SignalSimplified
	}
	if o.StochDPeriod <= 0 {
		o.StochDPeriod = 3
	}
	if o.StochD == "" {
		o.StochD = SignalSimplified
	}
	if o.BollingerK <= 0 {
		o.BollingerK = 2
	}
	return o
}

// Lines maps an output line name to its points, ordered by time.
type Lines map[string][]model.Point

// Calculate computes one indicator over bars. Bars are sorted by time and
// invalid bars are skipped with a warning. Fewer than period+5 valid bars
// yields an empty result. Calculate never panics on bad data.
func Calculate(bars []model.PriceBar, spec Spec, opts Options) Lines {
	return calculate(cleanBars(bars), spec, opts.withDefaults())
}

// cleanBars returns a time-sorted copy of bars with invalid entries removed.
func cleanBars(bars []model.PriceBar) []model.PriceBar {
	sorted := model.SortBars(bars)
	valid := sorted[:0]
	for _, b := range sorted {
		if !b.Valid() {
			slog.Warn("skipping invalid price bar",
				"time", b.Time, "open", b.Open, "high", b.High, "low", b.Low, "close", b.Close)
			continue
		}
		valid = append(valid, b)
	}
	return valid
}

// calculate expects bars already cleaned and options already defaulted.
func calculate(bars []model.PriceBar, spec Spec, opts Options) Lines {
	period := spec.period()
	if spec.Kind == KindMACD {
		period = max(opts.MACDFast, opts.MACDSlow)
	}
	if period <= 0 || len(bars) < period+warmupExtra {
		return Lines{}
	}

	switch spec.Kind {
	case KindSMA:
		return Lines{"sma" + strconv.Itoa(period): calcSMA(bars, period)}
	case KindEMA:
		return Lines{"ema" + strconv.Itoa(period): calcEMA(bars, period)}
	case KindRSI:
		return Lines{rsiName(period): calcRSI(bars, period)}
	case KindMACD:
		return calcMACD(bars, opts)
	case KindBollinger:
		return calcBollinger(bars, period, opts.BollingerK)
	case KindStochastic:
		return calcStochastic(bars, period, opts)
	case KindADX:
		return calcADX(bars, period)
	default:
		slog.Warn("unknown indicator kind", "kind", spec.Kind)
		return Lines{}
	}
}

func calcSMA(bars []model.PriceBar, period int) []model.Point {
	sma := NewSMA(period)
	out := make([]model.Point, 0, len(bars)-period+1)
	for _, b := range bars {
		sma.Update(b)
		if sma.Ready() {
			out = append(out, model.Point{Time: b.Time, Value: sma.Value()})
		}
	}
	return out
}

func calcEMA(bars []model.PriceBar, period int) []model.Point {
	ema := NewEMA(period)
	out := make([]model.Point, 0, len(bars)-period+1)
	for _, b := range bars {
		ema.Update(b)
		if ema.Ready() {
			out = append(out, model.Point{Time: b.Time, Value: ema.Value()})
		}
	}
	return out
}

func calcRSI(bars []model.PriceBar, period int) []model.Point {
	rsi := NewRSI(period)
	out := make([]model.Point, 0, len(bars)-period)
	for _, b := range bars {
		rsi.Update(b)
		if rsi.Ready() {
			out = append(out, model.Point{Time: b.Time, Value: rsi.Value()})
		}
	}
	return out
}

// calcMACD emits fast EMA − slow EMA. In simplified mode the signal equals the
// MACD line and the histogram is zero; in smoothed mode the signal is an EMA
// of the MACD line and starts once that EMA has seeded.
func calcMACD(bars []model.PriceBar, opts Options) Lines {
	fast := NewEMA(opts.MACDFast)
	slow := NewEMA(opts.MACDSlow)
	signal := NewEMA(opts.MACDSignalPeriod)

	var macd, sig, hist []model.Point
	for _, b := range bars {
		fast.Update(b)
		slow.Update(b)
		if !fast.Ready() || !slow.Ready() {
			continue
		}
		m := fast.Value() - slow.Value()
		macd = append(macd, model.Point{Time: b.Time, Value: m})

		s := m
		if opts.MACDSignal == SignalSmoothed {
			signal.Add(m)
			if !signal.Ready() {
				continue
			}
			s = signal.Value()
		}
		sig = append(sig, model.Point{Time: b.Time, Value: s})
		hist = append(hist, model.Point{Time: b.Time, Value: m - s})
	}
	return Lines{"macd": macd, "macd_signal": sig, "macd_histogram": hist}
}

func calcBollinger(bars []model.PriceBar, period int, k float64) Lines {
	sma := NewSMA(period)
	n := len(bars) - period + 1
	upper := make([]model.Point, 0, n)
	middle := make([]model.Point, 0, n)
	lower := make([]model.Point, 0, n)
	for _, b := range bars {
		sma.Update(b)
		if !sma.Ready() {
			continue
		}
		mid := sma.Value()
		dev := k * sma.StdDev()
		upper = append(upper, model.Point{Time: b.Time, Value: mid + dev})
		middle = append(middle, model.Point{Time: b.Time, Value: mid})
		lower = append(lower, model.Point{Time: b.Time, Value: mid - dev})
	}
	return Lines{"bb_upper": upper, "bb_middle": middle, "bb_lower": lower}
}

// calcStochastic emits %K over a trailing high/low window. A flat window
// (highest high == lowest low) yields 50.
func calcStochastic(bars []model.PriceBar, period int, opts Options) Lines {
	dSMA := NewSMA(opts.StochDPeriod)
	var kLine, dLine []model.Point
	for i := period - 1; i < len(bars); i++ {
		hh, ll := math.Inf(-1), math.Inf(1)
		for _, w := range bars[i-period+1 : i+1] {
			hh = math.Max(hh, w.High)
			ll = math.Min(ll, w.Low)
		}
		k := 50.0
		if hh > ll {
			k = clamp((bars[i].Close-ll)/(hh-ll)*100, 0, 100)
		}
		kLine = append(kLine, model.Point{Time: bars[i].Time, Value: k})

		d := k
		if opts.StochD == SignalSmoothed {
			dSMA.Add(k)
			if !dSMA.Ready() {
				continue
			}
			d = dSMA.Value()
		}
		dLine = append(dLine, model.Point{Time: bars[i].Time, Value: d})
	}
	return Lines{"stoch_k": kLine, "stoch_d": dLine}
}

// calcADX computes a simplified ADX: the directional index DX from true range
// and directional movement summed over the trailing window, without the
// second Wilder smoothing pass. All lines are clamped to [0,100].
func calcADX(bars []model.PriceBar, period int) Lines {
	var adx, pos, neg []model.Point
	for i := period; i < len(bars); i++ {
		var sumTR, sumPlus, sumMinus float64
		for j := i - period + 1; j <= i; j++ {
			cur, prev := bars[j], bars[j-1]
			sumTR += trueRange(cur, prev)

			up := cur.High - prev.High
			down := prev.Low - cur.Low
			if up > down && up > 0 {
				sumPlus += up
			}
			if down > up && down > 0 {
				sumMinus += down
			}
		}

		var plusDI, minusDI, dx float64
		if sumTR > 0 {
			plusDI = 100 * sumPlus / sumTR
			minusDI = 100 * sumMinus / sumTR
		}
		if plusDI+minusDI > 0 {
			dx = 100 * math.Abs(plusDI-minusDI) / (plusDI + minusDI)
		}
		t := bars[i].Time
		adx = append(adx, model.Point{Time: t, Value: clamp(dx, 0, 100)})
		pos = append(pos, model.Point{Time: t, Value: clamp(plusDI, 0, 100)})
		neg = append(neg, model.Point{Time: t, Value: clamp(minusDI, 0, 100)})
	}
	return Lines{"adx": adx, "adx_pos": pos, "adx_neg": neg}
}

func trueRange(cur, prev model.PriceBar) float64 {
	return math.Max(cur.High-cur.Low,
		math.Max(math.Abs(cur.High-prev.Close), math.Abs(cur.Low-prev.Close)))
}
