package strategy

import (
	"fmt"

	"trend-core/internal/indicators"
)

// Params enumerates every strategy setting.
type Params struct {
	FastEMA         int
	SlowEMA         int
	ConsolidatedEMA int
	RSILength       int
	StochLength     int
	KSmooth         int
	DSmooth         int

	UpperBand  float64
	MiddleBand float64
	LowerBand  float64

	StopLossPct   float64
	TakeProfitPct float64
	Confidence    float64

	MaxDataPoints int // incoming batch cap
	RetainCandles int // window kept between updates
}

// DefaultParams returns the stock trend settings.
func DefaultParams() Params {
	return Params{
		FastEMA:         12,
		SlowEMA:         25,
		ConsolidatedEMA: 25,
		RSILength:       14,
		StochLength:     14,
		KSmooth:         3,
		DSmooth:         3,
		UpperBand:       80,
		MiddleBand:      50,
		LowerBand:       20,
		StopLossPct:     0.02,
		TakeProfitPct:   0.04,
		Confidence:      0.9,
		MaxDataPoints:   500,
		RetainCandles:   200,
	}
}

// Validate rejects parameter sets the engine cannot run with.
func (p Params) Validate() error {
	for name, v := range map[string]int{
		"fast_ema":         p.FastEMA,
		"slow_ema":         p.SlowEMA,
		"consolidated_ema": p.ConsolidatedEMA,
		"rsi_length":       p.RSILength,
		"stoch_length":     p.StochLength,
		"k_smooth":         p.KSmooth,
		"d_smooth":         p.DSmooth,
		"max_data_points":  p.MaxDataPoints,
		"retain_candles":   p.RetainCandles,
	} {
		if v <= 0 {
			return fmt.Errorf("strategy: %s must be positive, got %d", name, v)
		}
	}
	if p.FastEMA >= p.SlowEMA {
		return fmt.Errorf("strategy: fast_ema (%d) must be below slow_ema (%d)", p.FastEMA, p.SlowEMA)
	}
	if !(p.LowerBand < p.MiddleBand && p.MiddleBand < p.UpperBand) || p.LowerBand < 0 || p.UpperBand > 100 {
		return fmt.Errorf("strategy: bands must satisfy 0 <= lower < middle < upper <= 100")
	}
	if p.StopLossPct <= 0 || p.StopLossPct >= 1 || p.TakeProfitPct <= 0 || p.TakeProfitPct >= 1 {
		return fmt.Errorf("strategy: stop-loss/take-profit percentages must be in (0,1)")
	}
	if p.RetainCandles < p.MinBars() {
		return fmt.Errorf("strategy: retain_candles (%d) below required history (%d)", p.RetainCandles, p.MinBars())
	}
	return nil
}

// MinBars is the history required before signals are generated.
func (p Params) MinBars() int {
	return max(p.SlowEMA, p.RSILength+p.StochLength)
}

func (p Params) indicators() indicators.Config {
	return indicators.Config{
		FastEMA:         p.FastEMA,
		SlowEMA:         p.SlowEMA,
		ConsolidatedEMA: p.ConsolidatedEMA,
		RSILength:       p.RSILength,
		StochLength:     p.StochLength,
		KSmooth:         p.KSmooth,
		DSmooth:         p.DSmooth,
	}
}
