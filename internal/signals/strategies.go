package signals

import (
	"strconv"

	"trading-dashboard/internal/model"
)

// MACross signals when a fast moving average crosses a slow one.
// Buy: fast moves above slow. Sell: fast moves below slow.
type MACross struct {
	fast, slow string
}

// NewMACross compares the fast and slow series lines, e.g. "ema20" and "sma20".
func NewMACross(fast, slow string) *MACross {
	return &MACross{fast: fast, slow: slow}
}

func (s *MACross) Name() string { return "ema_cross" }

func (s *MACross) Scan(bars []model.PriceBar, series model.IndicatorSeries) []Signal {
	var out []Signal
	prev := 0 // 1 above, -1 below, 0 unknown
	for i, bar := range bars {
		f, ok1 := at(series, s.fast, i)
		sl, ok2 := at(series, s.slow, i)
		if !ok1 || !ok2 {
			prev = 0
			continue
		}
		state := -1
		if f > sl {
			state = 1
		}
		if prev != 0 && prev != state {
			if state == 1 {
				out = append(out, emit(s.Name(), ActionBuy, bar, s.fast+" crossed above "+s.slow))
			} else {
				out = append(out, emit(s.Name(), ActionSell, bar, s.fast+" crossed below "+s.slow))
			}
		}
		prev = state
	}
	return out
}

// MACDCross signals when the MACD line crosses its signal line.
type MACDCross struct{}

func NewMACDCross() *MACDCross { return &MACDCross{} }

func (s *MACDCross) Name() string { return "macd_cross" }

func (s *MACDCross) Scan(bars []model.PriceBar, series model.IndicatorSeries) []Signal {
	var (
		out      []Signal
		prevDiff float64
		havePrev bool
	)
	for i, bar := range bars {
		m, ok1 := at(series, "macd", i)
		sig, ok2 := at(series, "macd_signal", i)
		if !ok1 || !ok2 {
			havePrev = false
			continue
		}
		diff := m - sig
		if havePrev {
			switch {
			case prevDiff <= 0 && diff > 0:
				out = append(out, emit(s.Name(), ActionBuy, bar, "MACD crossed above signal"))
			case prevDiff >= 0 && diff < 0:
				out = append(out, emit(s.Name(), ActionSell, bar, "MACD crossed below signal"))
			}
		}
		prevDiff, havePrev = diff, true
	}
	return out
}

// RSILevels signals when RSI rises back through the oversold level (buy)
// or falls back through the overbought level (sell).
type RSILevels struct {
	line      string
	low, high float64
}

func NewRSILevels(line string, low, high float64) *RSILevels {
	return &RSILevels{line: line, low: low, high: high}
}

func (s *RSILevels) Name() string { return "rsi_levels" }

func (s *RSILevels) Scan(bars []model.PriceBar, series model.IndicatorSeries) []Signal {
	var (
		out      []Signal
		prev     float64
		havePrev bool
	)
	for i, bar := range bars {
		v, ok := at(series, s.line, i)
		if !ok {
			havePrev = false
			continue
		}
		if havePrev {
			if prev < s.low && s.low <= v {
				out = append(out, emit(s.Name(), ActionBuy, bar, "RSI crossed up "+fmtLevel(s.low)))
			}
			if prev > s.high && s.high >= v {
				out = append(out, emit(s.Name(), ActionSell, bar, "RSI crossed down "+fmtLevel(s.high)))
			}
		}
		prev, havePrev = v, true
	}
	return out
}

// BollingerTouch signals when the close re-enters the bands: buy after
// closing below the lower band, sell after closing above the upper band.
type BollingerTouch struct{}

func NewBollingerTouch() *BollingerTouch { return &BollingerTouch{} }

func (s *BollingerTouch) Name() string { return "bb_touch" }

func (s *BollingerTouch) Scan(bars []model.PriceBar, series model.IndicatorSeries) []Signal {
	var (
		out                []Signal
		wasBelow, wasAbove bool
	)
	for i, bar := range bars {
		upper, ok1 := at(series, "bb_upper", i)
		lower, ok2 := at(series, "bb_lower", i)
		if !ok1 || !ok2 {
			wasBelow, wasAbove = false, false
			continue
		}
		if bar.Close < lower {
			wasBelow = true
		} else if wasBelow {
			out = append(out, emit(s.Name(), ActionBuy, bar, "Re-entered from below lower Bollinger band"))
			wasBelow = false
		}
		if bar.Close > upper {
			wasAbove = true
		} else if wasAbove {
			out = append(out, emit(s.Name(), ActionSell, bar, "Re-entered from above upper Bollinger band"))
			wasAbove = false
		}
	}
	return out
}

func fmtLevel(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
