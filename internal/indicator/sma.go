package indicator

import "math"

// SMA calculates Simple Moving Average over a rolling window and tracks the
// window's running sum of squares for population variance.
// Uses a preallocated circular buffer for zero-allocation hot path.
type SMA struct {
	period  int
	buf     []float64 // preallocated circular buffer
	idx     int       // current write position
	count   int       // total values received
	sum     float64
	sumSq   float64
	current float64
}

// NewSMA creates a new SMA indicator with the given period.
func NewSMA(period int) *SMA {
	return &SMA{
		period: period,
		buf:    make([]float64, period),
	}
}

func (s *SMA) Name() string { return "SMA" }

func (s *SMA) Update(price float64) {
	if s.count >= s.period {
		// Subtract the oldest value being overwritten
		old := s.buf[s.idx]
		s.sum -= old
		s.sumSq -= old * old
	}

	s.buf[s.idx] = price
	s.sum += price
	s.sumSq += price * price
	s.idx = (s.idx + 1) % s.period
	s.count++

	if s.count >= s.period {
		s.current = s.sum / float64(s.period)
	}
}

func (s *SMA) Value() float64 { return s.current }
func (s *SMA) Ready() bool    { return s.count >= s.period }

// Variance returns the population variance of the window, floored at zero
// so floating-point error never produces a negative value.
func (s *SMA) Variance() float64 {
	if !s.Ready() {
		return 0
	}
	n := float64(s.period)
	mean := s.sum / n
	v := s.sumSq/n - mean*mean
	if v < 0 {
		return 0
	}
	return v
}

// StdDev returns the population standard deviation of the window.
func (s *SMA) StdDev() float64 { return math.Sqrt(s.Variance()) }

// Reset clears the SMA state for reuse.
func (s *SMA) Reset() {
	s.idx = 0
	s.count = 0
	s.sum = 0
	s.sumSq = 0
	s.current = 0
	for i := range s.buf {
		s.buf[i] = 0
	}
}
