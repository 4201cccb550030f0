package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Mean computes the average of a slice.
func Mean(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return stat.Mean(x, nil)
}

// PopStd computes the population standard deviation (divides by n).
func PopStd(x []float64) float64 {
	n := len(x)
	if n < 2 {
		return 0
	}
	_, v := stat.MeanVariance(x, nil)
	return math.Sqrt(v * float64(n-1) / float64(n))
}

// percentileSorted returns the p-th percentile (0 <= p <= 100) of an
// ascending slice using linear interpolation between closest ranks, the
// pandas/numpy default.
func percentileSorted(cp []float64, p float64) float64 {
	n := len(cp)
	if p <= 0 {
		return cp[0]
	}
	if p >= 100 {
		return cp[n-1]
	}
	rank := p / 100 * float64(n-1)
	lower := int(rank)
	upper := lower + 1
	weight := rank - float64(lower)
	if upper >= n {
		return cp[lower]
	}
	return cp[lower]*(1-weight) + cp[upper]*weight
}

// Quartiles returns Q1 and Q3 with a single sort.
func Quartiles(x []float64) (q1, q3 float64) {
	if len(x) == 0 {
		return 0, 0
	}
	cp := make([]float64, len(x))
	copy(cp, x)
	sort.Float64s(cp)
	return percentileSorted(cp, 25), percentileSorted(cp, 75)
}

// ModeString returns the most frequent value among x, skipping values for
// which skip returns true. Ties resolve to the lexicographically smallest
// value. ok is false when nothing was counted.
func ModeString(x []string, skip func(string) bool) (mode string, ok bool) {
	counts := make(map[string]int)
	for _, v := range x {
		if skip != nil && skip(v) {
			continue
		}
		counts[v]++
	}
	best := -1
	for v, c := range counts {
		if c > best || (c == best && v < mode) {
			mode, best = v, c
		}
	}
	return mode, best > 0
}
