// Package indicator provides technical indicator calculations over price bars.
//
// Streaming indicators (SMA, EMA, RSI) implement the Indicator interface and are
// fed one bar at a time. The batch calculator in calc.go drives them over a
// whole series and adds the window-based indicators (Bollinger, Stochastic, ADX).
package indicator

import "trading-dashboard/internal/model"

// Indicator is the interface for streaming technical indicators.
type Indicator interface {
	// Name returns the indicator name (e.g., "sma20", "rsi").
	Name() string

	// Update feeds a new bar and recalculates.
	Update(bar model.PriceBar)

	// Value returns the current calculated value. Returns 0 if not enough data.
	Value() float64

	// Ready returns true when enough data has been accumulated.
	Ready() bool

	// Reset clears accumulated state for reuse.
	Reset()
}
