package indicators

// Config holds the periods used by Compute.
type Config struct {
	FastEMA         int
	SlowEMA         int
	ConsolidatedEMA int
	RSILength       int
	StochLength     int
	KSmooth         int
	DSmooth         int
}

// Set is the per-bar indicator output for one close series; every slice has
// the same length as the input. Warm-up positions are NaN.
type Set struct {
	FastEMA         []float64
	SlowEMA         []float64
	ConsolidatedEMA []float64
	RSI             []float64
	K               []float64
	D               []float64
}

// Compute recalculates every indicator over closes.
func Compute(closes []float64, cfg Config) Set {
	rsi := RSISeries(closes, cfg.RSILength)
	k, d := StochRSI(rsi, cfg.StochLength, cfg.KSmooth, cfg.DSmooth)
	return Set{
		FastEMA:         EMASeries(closes, cfg.FastEMA),
		SlowEMA:         EMASeries(closes, cfg.SlowEMA),
		ConsolidatedEMA: EMASeries(closes, cfg.ConsolidatedEMA),
		RSI:             rsi,
		K:               k,
		D:               d,
	}
}

// WarmUp is the number of bars before %D is first defined.
func (c Config) WarmUp() int {
	return c.RSILength + c.StochLength + c.KSmooth + c.DSmooth - 3
}
