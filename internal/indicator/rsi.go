package indicator

// RSI calculates the Relative Strength Index using Wilder's smoothing.
// Average gain and loss are seeded from the first period deltas, so the first
// value needs period+1 closes. Update is O(1).
type RSI struct {
	period    int
	started   bool
	prevClose float64
	gains     *SMMA
	losses    *SMMA
}

// NewRSI creates a new RSI indicator with the given period (typically 14).
func NewRSI(period int) *RSI {
	return &RSI{
		period: period,
		gains:  NewSMMA(period),
		losses: NewSMMA(period),
	}
}

func (r *RSI) Name() string { return "RSI" }

func (r *RSI) Update(price float64) {
	if !r.started {
		// First close: record price, no delta yet
		r.started = true
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
	r.gains.Update(gain)
	r.losses.Update(loss)
}

// Value returns 100 when the average loss is exactly zero.
func (r *RSI) Value() float64 {
	if !r.Ready() {
		return 0
	}
	avgLoss := r.losses.Value()
	if avgLoss == 0 {
		return 100.0
	}
	rs := r.gains.Value() / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}

func (r *RSI) Ready() bool { return r.gains.Ready() }

// Reset clears the RSI state for reuse.
func (r *RSI) Reset() {
	r.started = false
	r.prevClose = 0
	r.gains.Reset()
	r.losses.Reset()
}
