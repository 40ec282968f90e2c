package indicators

import "math"

// RSISeries computes the Relative Strength Index using simple rolling means of
// gains and losses. The first bar contributes a zero change, so the first value
// is defined at index period-1.
//
// A zero loss mean yields 100 when there were gains and 50 on a flat window.
func RSISeries(values []float64, period int) []float64 {
	n := len(values)
	gains := make([]float64, n)
	losses := make([]float64, n)
	for i := 1; i < n; i++ {
		change := values[i] - values[i-1]
		if change > 0 {
			gains[i] = change
		} else {
			losses[i] = -change
		}
	}

	avgGain := SMASeries(gains, period)
	avgLoss := SMASeries(losses, period)
	out := nanSeries(n)
	for i := range out {
		g, l := avgGain[i], avgLoss[i]
		if math.IsNaN(g) || math.IsNaN(l) {
			continue
		}
		switch {
		case l == 0 && g == 0:
			out[i] = 50
		case l == 0:
			out[i] = 100
		default:
			out[i] = 100 - 100/(1+g/l)
		}
	}
	return out
}
