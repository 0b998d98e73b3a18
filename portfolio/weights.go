package portfolio

import (
	"errors"
	"fmt"
	"math"
)

// WeightSumTolerance is the allowed deviation of a weight vector's sum from 1.
const WeightSumTolerance = 1e-6

// ErrWeightSum indicates a weight vector that does not sum to one.
var ErrWeightSum = errors.New("weights do not sum to 1")

// WeightVector maps symbol -> portfolio weight.
type WeightVector map[string]float64

// Sum returns the total weight.
func (w WeightVector) Sum() float64 {
	sum := 0.0
	for _, v := range w {
		sum += v
	}
	return sum
}

// Validate checks the sum-to-one invariant within WeightSumTolerance and
// rejects non-finite entries.
func (w WeightVector) Validate() error {
	if len(w) == 0 {
		return fmt.Errorf("%w: empty vector", ErrWeightSum)
	}
	for symbol, v := range w {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite weight for %s", ErrWeightSum, symbol)
		}
	}
	if sum := w.Sum(); math.Abs(sum-1) > WeightSumTolerance {
		return fmt.Errorf("%w: sum=%v", ErrWeightSum, sum)
	}
	return nil
}

// Normalize returns a copy scaled to sum to one. A zero-sum vector is
// returned unchanged.
func (w WeightVector) Normalize() WeightVector {
	sum := w.Sum()
	out := make(WeightVector, len(w))
	for symbol, v := range w {
		if sum != 0 {
			out[symbol] = v / sum
		} else {
			out[symbol] = v
		}
	}
	return out
}

// BlendedReturns combines per-instrument return series under the given
// weights into a single portfolio return series. All series must have
// equal length and every weighted symbol must be present.
func BlendedReturns(w WeightVector, returns map[string][]float64) ([]float64, error) {
	if len(w) == 0 {
		return nil, fmt.Errorf("%w: empty vector", ErrWeightSum)
	}

	length := -1
	for symbol, weight := range w {
		if weight == 0 {
			continue
		}
		series, ok := returns[symbol]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
		}
		if length == -1 {
			length = len(series)
		} else if len(series) != length {
			return nil, fmt.Errorf("%w: %s has %d observations, expected %d", ErrMisalignedSeries, symbol, len(series), length)
		}
	}
	if length <= 0 {
		return nil, ErrEmptySeries
	}

	blended := make([]float64, length)
	for symbol, weight := range w {
		if weight == 0 {
			continue
		}
		series := returns[symbol]
		for t := 0; t < length; t++ {
			blended[t] += weight * series[t]
		}
	}
	return blended, nil
}
