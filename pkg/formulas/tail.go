package formulas

import (
	"math"
	"sort"
)

// tailIndex returns the nearest-rank order statistic index for the
// (1-confidence) left tail of a sorted sample of size n:
//
//	idx = ceil((1-confidence) * n) - 1, clamped to [0, n-1]
//
// The nearest-rank rule (rather than linear interpolation) is used for
// every tail statistic in this package so VaR and CVaR stay consistent
// at small sample sizes.
func tailIndex(n int, confidence float64) int {
	idx := int(math.Ceil((1-confidence)*float64(n))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx > n-1 {
		idx = n - 1
	}
	return idx
}

// sortedCopy returns an ascending-sorted copy of returns.
func sortedCopy(returns []float64) []float64 {
	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)
	return sorted
}

// VaR calculates Value at Risk via historical simulation at the given
// confidence level (e.g. 0.95). The result is a non-negative loss
// magnitude: the loss level not exceeded with probability `confidence`.
func VaR(returns []float64, confidence float64) float64 {
	if len(returns) == 0 {
		return 0
	}

	sorted := sortedCopy(returns)
	idx := tailIndex(len(sorted), confidence)

	return math.Max(0, -sorted[idx])
}

// CVaR calculates Conditional Value at Risk (Expected Shortfall): the
// mean loss at or beyond the VaR order statistic, inclusive, so that
// CVaR >= VaR holds for every loss-positive distribution.
func CVaR(returns []float64, confidence float64) float64 {
	if len(returns) == 0 {
		return 0
	}

	sorted := sortedCopy(returns)
	idx := tailIndex(len(sorted), confidence)

	tail := sorted[:idx+1]
	sum := 0.0
	for _, r := range tail {
		sum += r
	}

	return math.Max(0, -sum/float64(len(tail)))
}

// Percentile returns the nearest-rank p-th percentile (p in [0,100]) of
// the sample. Used by the Monte Carlo simulator so reported percentiles
// and VaR share one tie-break rule.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}

	idx := int(math.Ceil(p/100*float64(n))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx > n-1 {
		idx = n - 1
	}
	return sorted[idx]
}
