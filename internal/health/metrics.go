package health

import (
	"math"
	"sort"
)

const (
	entropyBins    = 16
	entropyTrim    = 8
	entropyMinimum = 32
)

// RMSSDRatio is the root mean square of successive differences divided by
// the mean interval. NaN for fewer than two values.
func RMSSDRatio(rr []float64) float64 {
	if len(rr) < 2 {
		return math.NaN()
	}
	var sum, total float64
	for i := 0; i+1 < len(rr); i++ {
		d := rr[i+1] - rr[i]
		sum += d * d
	}
	for _, v := range rr {
		total += v
	}
	rmssd := math.Sqrt(sum / float64(len(rr)-1))
	mean := total / float64(len(rr))
	if mean <= 0 {
		return math.NaN()
	}
	return rmssd / mean
}

// TurningPointRatio is the share of interior points that are strict local
// extrema. NaN for fewer than three values.
func TurningPointRatio(rr []float64) float64 {
	if len(rr) < 3 {
		return math.NaN()
	}
	tp := 0
	for i := 1; i+1 < len(rr); i++ {
		if (rr[i] > rr[i-1] && rr[i] > rr[i+1]) || (rr[i] < rr[i-1] && rr[i] < rr[i+1]) {
			tp++
		}
	}
	return float64(tp) / float64(len(rr)-2)
}

// ShannonEntropy16 is the Shannon entropy of the intervals over 16 equal
// bins, after dropping the 8 smallest and 8 largest values, normalized to
// [0, 1] by ln(16). NaN for fewer than 32 values; 0 when all trimmed values
// are equal.
func ShannonEntropy16(rr []float64) float64 {
	if len(rr) < entropyMinimum {
		return math.NaN()
	}
	sorted := append([]float64(nil), rr...)
	sort.Float64s(sorted)
	trimmed := sorted[entropyTrim : len(sorted)-entropyTrim]
	lo, hi := trimmed[0], trimmed[len(trimmed)-1]
	if hi <= lo {
		return 0
	}

	var counts [entropyBins]int
	for _, x := range trimmed {
		k := int((x - lo) / (hi - lo) * entropyBins)
		k = max(0, min(k, entropyBins-1))
		counts[k]++
	}

	var se float64
	n := float64(len(trimmed))
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / n
		se -= p * math.Log(p)
	}
	return se / math.Log(entropyBins)
}

// isShortLong reports the ectopic-like pattern over four consecutive
// intervals: a short beat, a compensatory long one, then a return.
func isShortLong(a, b, c, d float64) bool {
	return b/a <= 0.8 && c/b >= 1.3 && d/c <= 0.9
}

// CleanRR drops each short-long pair so ectopic beats do not inflate the
// variability metrics. Fewer than five intervals are returned unchanged.
func CleanRR(rr []int) []float64 {
	out := make([]float64, 0, len(rr))
	if len(rr) < 5 {
		for _, v := range rr {
			out = append(out, float64(v))
		}
		return out
	}

	keep := make([]bool, len(rr))
	for i := range keep {
		keep[i] = true
	}
	for i := 1; i+2 < len(rr); i++ {
		if isShortLong(float64(rr[i-1]), float64(rr[i]), float64(rr[i+1]), float64(rr[i+2])) {
			keep[i] = false
			keep[i+1] = false
			i++
		}
	}
	for i, v := range rr {
		if keep[i] {
			out = append(out, float64(v))
		}
	}
	return out
}
