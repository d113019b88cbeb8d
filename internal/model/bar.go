package model

import (
	"encoding/json"
	"math"
	"sort"
	"time"
)

// PriceBar is one OHLCV bar. Time is the bar open in epoch seconds.
// Prices are float64 because crypto quotes routinely carry 8 decimals.
type PriceBar struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// Valid reports whether all OHLC fields are finite numbers.
// Volume is optional and not checked.
func (b PriceBar) Valid() bool {
	return finite(b.Open) && finite(b.High) && finite(b.Low) && finite(b.Close)
}

// TS returns the bar open time as a UTC time.Time.
func (b PriceBar) TS() time.Time {
	return time.Unix(b.Time, 0).UTC()
}

// JSON returns the JSON-encoded bar (ignoring errors for hot-path usage).
func (b *PriceBar) JSON() []byte {
	out, _ := json.Marshal(b)
	return out
}

// SortBars returns a copy of bars ordered by time ascending.
// The input slice is not modified.
func SortBars(bars []PriceBar) []PriceBar {
	out := make([]PriceBar, len(bars))
	copy(out, bars)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
