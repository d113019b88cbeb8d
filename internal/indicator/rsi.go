package indicator

import (
	"strconv"

	"trading-dashboard/internal/model"
)

// rsiEpsilon stands in for a zero average loss so the ratio stays finite.
const rsiEpsilon = 1e-10

// RSI calculates the Relative Strength Index from the average gain and average
// loss over a trailing window of close-to-close changes.
type RSI struct {
	period    int
	gains     []float64 // circular buffers of the last `period` deltas
	losses    []float64
	idx       int
	deltas    int
	seen      bool
	prevClose float64
	sumGain   float64
	sumLoss   float64
	current   float64
}

// NewRSI creates a new RSI indicator with the given period (typically 14).
func NewRSI(period int) *RSI {
	if period < 1 {
		period = 1
	}
	return &RSI{
		period: period,
		gains:  make([]float64, period),
		losses: make([]float64, period),
	}
}

func (r *RSI) Name() string { return rsiName(r.period) }

func rsiName(period int) string {
	if period == 14 {
		return "rsi"
	}
	return "rsi" + strconv.Itoa(period)
}

func (r *RSI) Update(bar model.PriceBar) {
	price := bar.Close
	if !r.seen {
		// First bar: record price, no delta yet
		r.seen = true
		r.prevClose = price
		return
	}

	delta := price - r.prevClose
	r.prevClose = price

	gain, loss := 0.0, 0.0
	if delta > 0 {
		gain = delta
	} else {
		loss = -delta
	}

	if r.deltas >= r.period {
		r.sumGain -= r.gains[r.idx]
		r.sumLoss -= r.losses[r.idx]
	}
	r.gains[r.idx] = gain
	r.losses[r.idx] = loss
	r.sumGain += gain
	r.sumLoss += loss
	r.idx = (r.idx + 1) % r.period
	r.deltas++

	if r.deltas < r.period {
		return
	}

	p := float64(r.period)
	avgGain := r.sumGain / p
	avgLoss := r.sumLoss / p
	if avgLoss <= 0 {
		avgLoss = rsiEpsilon
	}
	if avgGain < 0 {
		// float drift from the running sums
		avgGain = 0
	}
	rs := avgGain / avgLoss
	r.current = clamp(100.0-(100.0/(1.0+rs)), 0, 100)
}

func (r *RSI) Value() float64 { return r.current }
func (r *RSI) Ready() bool    { return r.deltas >= r.period }

// Reset clears the RSI state for reuse.
func (r *RSI) Reset() {
	r.idx = 0
	r.deltas = 0
	r.seen = false
	r.prevClose = 0
	r.sumGain = 0
	r.sumLoss = 0
	r.current = 0
	for i := range r.gains {
		r.gains[i] = 0
		r.losses[i] = 0
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
