package indicators

import "math"

// RollingMin returns the minimum over a trailing window of width period.
// Windows that are incomplete or contain NaN yield NaN.
func RollingMin(values []float64, period int) []float64 {
	return rolling(values, period, math.Min)
}

// RollingMax returns the maximum over a trailing window of width period.
func RollingMax(values []float64, period int) []float64 {
	return rolling(values, period, math.Max)
}

func rolling(values []float64, period int, pick func(a, b float64) float64) []float64 {
	out := nanSeries(len(values))
	if period <= 0 {
		return out
	}
	for i := period - 1; i < len(values); i++ {
		acc := values[i]
		for j := i - period + 1; j < i && !math.IsNaN(acc); j++ {
			if math.IsNaN(values[j]) {
				acc = math.NaN()
				break
			}
			acc = pick(acc, values[j])
		}
		out[i] = acc
	}
	return out
}
