package indicator

import (
	"math"
	"strconv"

	"trading-dashboard/internal/model"
)

// SMA calculates Simple Moving Average over a rolling window.
// Uses a preallocated circular buffer for zero-allocation hot path.
type SMA struct {
	period  int
	buf     []float64 // preallocated circular buffer
	idx     int       // current write position
	count   int       // total values received
	sum     float64
	current float64
}

// NewSMA creates a new SMA indicator with the given period.
func NewSMA(period int) *SMA {
	if period < 1 {
		period = 1
	}
	return &SMA{
		period: period,
		buf:    make([]float64, period),
	}
}

func (s *SMA) Name() string { return "sma" + strconv.Itoa(s.period) }

func (s *SMA) Update(bar model.PriceBar) { s.Add(bar.Close) }

// Add feeds a raw value. Used when smoothing a derived line such as %K.
// The window sum is rebuilt from the buffer on every update so long runs
// carry no accumulated rounding error.
func (s *SMA) Add(v float64) {
	s.buf[s.idx] = v
	s.idx = (s.idx + 1) % s.period
	s.count++

	if s.count >= s.period {
		s.sum = 0
		for _, x := range s.buf {
			s.sum += x
		}
		s.current = s.sum / float64(s.period)
	}
}

func (s *SMA) Value() float64 { return s.current }
func (s *SMA) Ready() bool    { return s.count >= s.period }

// StdDev returns the population standard deviation of the current window.
// Returns 0 until the window is full.
func (s *SMA) StdDev() float64 {
	if !s.Ready() {
		return 0
	}
	var sq float64
	for _, v := range s.buf {
		d := v - s.current
		sq += d * d
	}
	return math.Sqrt(sq / float64(s.period))
}

// Reset clears the SMA state for reuse.
func (s *SMA) Reset() {
	s.idx = 0
	s.count = 0
	s.sum = 0
	s.current = 0
	for i := range s.buf {
		s.buf[i] = 0
	}
}
