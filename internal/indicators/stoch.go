package indicators

import "math"

// StochRSI normalizes rsi into its trailing [min,max] range of width length and
// smooths it: k is the SMA(kSmooth) of the raw value and d the SMA(dSmooth) of k.
// A flat range uses a denominator of 1, so both lines stay within [0,100].
func StochRSI(rsi []float64, length, kSmooth, dSmooth int) (k, d []float64) {
	lo := RollingMin(rsi, length)
	hi := RollingMax(rsi, length)

	raw := nanSeries(len(rsi))
	for i := range rsi {
		if math.IsNaN(rsi[i]) || math.IsNaN(lo[i]) || math.IsNaN(hi[i]) {
			continue
		}
		den := hi[i] - lo[i]
		if den == 0 {
			den = 1
		}
		raw[i] = clamp(100*(rsi[i]-lo[i])/den, 0, 100)
	}

	k = SMASeries(raw, kSmooth)
	d = SMASeries(k, dSmooth)
	return k, d
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
