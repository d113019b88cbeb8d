package model

import (
	"encoding/json"
	"math"
)

// Point is a single indicator sample keyed by bar time.
type Point struct {
	Time  int64   `json:"time"`
	Value float64 `json:"value"`
}

// Series is an index-aligned indicator line. NaN marks an absent value
// (not enough history, or the bar at that index was invalid).
type Series []float64

// MarshalJSON encodes absent values as null.
func (s Series) MarshalJSON() ([]byte, error) {
	out := make([]*float64, len(s))
	for i := range s {
		if !math.IsNaN(s[i]) {
			v := s[i]
			out[i] = &v
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes null entries back to NaN.
func (s *Series) UnmarshalJSON(data []byte) error {
	var raw []*float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Series, len(raw))
	for i, v := range raw {
		if v == nil {
			out[i] = math.NaN()
		} else {
			out[i] = *v
		}
	}
	*s = out
	return nil
}

// Last returns the final element if present.
func (s Series) Last() (float64, bool) {
	if len(s) == 0 || math.IsNaN(s[len(s)-1]) {
		return 0, false
	}
	return s[len(s)-1], true
}

// IndicatorSeries maps an indicator line name (e.g. "rsi", "sma20") to its
// index-aligned values.
type IndicatorSeries map[string]Series

// Latest returns the latest value of every line whose final element is present.
func (is IndicatorSeries) Latest() map[string]float64 {
	out := make(map[string]float64, len(is))
	for name, s := range is {
		if v, ok := s.Last(); ok {
			out[name] = v
		}
	}
	return out
}
