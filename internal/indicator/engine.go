package indicator

import (
	"fmt"
	"strconv"
	"time"

	"charting-terminalv1/internal/model"
)

// Toggles selects which overlays a chart slot shows.
type Toggles struct {
	MA        bool `json:"ma" yaml:"ma"`
	Bollinger bool `json:"bollinger" yaml:"bollinger"`
	RSI       bool `json:"rsi" yaml:"rsi"`
	MACD      bool `json:"macd" yaml:"macd"`
	Pivots    bool `json:"pivots" yaml:"pivots"`
}

// Any reports whether at least one overlay is enabled.
func (t Toggles) Any() bool { return t.MA || t.Bollinger || t.RSI || t.MACD || t.Pivots }

// Params are the indicator parameters shared by every slot.
type Params struct {
	EMAPeriods    []int   `yaml:"ema_periods"`
	BBPeriod      int     `yaml:"bb_period"`
	BBMultiplier  float64 `yaml:"bb_multiplier"`
	RSIPeriod     int     `yaml:"rsi_period"`
	MACDFast      int     `yaml:"macd_fast"`
	MACDSlow      int     `yaml:"macd_slow"`
	MACDSignal    int     `yaml:"macd_signal"`
	PivotLookback int     `yaml:"pivot_lookback"`
}

// DefaultParams returns EMA 20/50, Bollinger 20×2, RSI 14, MACD 12/26/9 and
// a 50-bar pivot window.
func DefaultParams() Params {
	return Params{
		EMAPeriods:    []int{20, 50},
		BBPeriod:      20,
		BBMultiplier:  2,
		RSIPeriod:     14,
		MACDFast:      12,
		MACDSlow:      26,
		MACDSignal:    9,
		PivotLookback: 50,
	}
}

// Validate rejects parameters the Compute functions would silently ignore.
func (p Params) Validate() error {
	for _, n := range p.EMAPeriods {
		if n <= 0 {
			return fmt.Errorf("ema period must be positive, got %d", n)
		}
	}
	switch {
	case p.BBPeriod <= 0 || p.BBMultiplier <= 0:
		return fmt.Errorf("bollinger period/multiplier must be positive, got %d/%v", p.BBPeriod, p.BBMultiplier)
	case p.RSIPeriod <= 0:
		return fmt.Errorf("rsi period must be positive, got %d", p.RSIPeriod)
	case p.MACDFast <= 0 || p.MACDSlow <= 0 || p.MACDSignal <= 0:
		return fmt.Errorf("macd periods must be positive, got %d/%d/%d", p.MACDFast, p.MACDSlow, p.MACDSignal)
	case p.MACDFast >= p.MACDSlow:
		return fmt.Errorf("macd fast period %d must be below slow period %d", p.MACDFast, p.MACDSlow)
	case p.PivotLookback < minPivotBars:
		return fmt.Errorf("pivot lookback must be at least %d, got %d", minPivotBars, p.PivotLookback)
	}
	return nil
}

// Overlay is the derived, never-persisted output for one slot.
type Overlay struct {
	Lines      map[string][]Point          `json:"lines,omitempty"`
	Histograms map[string][]HistogramPoint `json:"histograms,omitempty"`
	Pivots     *PivotLevels                `json:"pivots,omitempty"`
}

// Engine computes the enabled overlays for a series. It holds no per-series
// state, so one Engine serves every slot.
type Engine struct {
	params Params

	// OnCompute is called with the duration of every Compute (optional).
	OnCompute func(d time.Duration)
}

// NewEngine creates an engine with the given parameters.
func NewEngine(params Params) *Engine {
	return &Engine{params: params}
}

// Params returns the engine parameters.
func (e *Engine) Params() Params { return e.params }

// Compute runs every toggled indicator over candles. Indicators without
// enough data are simply absent from the result.
func (e *Engine) Compute(candles []model.Candle, t Toggles) Overlay {
	start := time.Now()
	p := e.params
	ov := Overlay{Lines: make(map[string][]Point)}

	if t.MA {
		for _, period := range p.EMAPeriods {
			if pts := ComputeEMA(candles, period); len(pts) > 0 {
				ov.Lines["EMA_"+strconv.Itoa(period)] = pts
			}
		}
	}

	if t.Bollinger {
		b := ComputeBollinger(candles, p.BBPeriod, p.BBMultiplier)
		if len(b.Middle) > 0 {
			suffix := "_" + strconv.Itoa(p.BBPeriod)
			ov.Lines["BB_UPPER"+suffix] = b.Upper
			ov.Lines["BB_MIDDLE"+suffix] = b.Middle
			ov.Lines["BB_LOWER"+suffix] = b.Lower
		}
	}

	if t.RSI {
		if pts := ComputeRSI(candles, p.RSIPeriod); len(pts) > 0 {
			ov.Lines["RSI_"+strconv.Itoa(p.RSIPeriod)] = pts
		}
	}

	if t.MACD {
		m := ComputeMACD(candles, p.MACDFast, p.MACDSlow, p.MACDSignal)
		if len(m.MACD) > 0 {
			ov.Lines["MACD_"+strconv.Itoa(p.MACDFast)+"_"+strconv.Itoa(p.MACDSlow)] = m.MACD
			ov.Lines["MACD_SIGNAL_"+strconv.Itoa(p.MACDSignal)] = m.Signal
			ov.Histograms = map[string][]HistogramPoint{"MACD_HIST": m.Histogram}
		}
	}

	if t.Pivots {
		if lv, ok := ComputePivots(candles, p.PivotLookback); ok {
			ov.Pivots = &lv
		}
	}

	if e.OnCompute != nil {
		e.OnCompute(time.Since(start))
	}
	return ov
}
