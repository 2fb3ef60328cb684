package scan

import "math"

func mean(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	var sum float64
	for _, v := range series {
		sum += v
	}
	return sum / float64(len(series))
}

// sampleStdev is the n-1 standard deviation; it needs at least two
// points.
func sampleStdev(series []float64) (float64, bool) {
	if len(series) < 2 {
		return 0, false
	}
	avg := mean(series)
	var sum float64
	for _, v := range series {
		d := v - avg
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(series)-1)), true
}

// coefficientOfVariation returns stddev/mean*100, or false when the
// series is too short or degenerate (non-positive mean, non-finite
// result).
func coefficientOfVariation(series []float64) (float64, bool) {
	stdev, ok := sampleStdev(series)
	if !ok {
		return 0, false
	}
	avg := mean(series)
	if avg <= 0 {
		return 0, false
	}
	cv := stdev / avg * 100
	if math.IsNaN(cv) || math.IsInf(cv, 0) {
		return 0, false
	}
	return cv, true
}
