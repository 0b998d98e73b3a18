package formulas

import "math"

// DrawdownMetrics represents drawdown analysis results
type DrawdownMetrics struct {
	MaxDrawdown     float64 `json:"max_drawdown"`     // Maximum drawdown as a positive fraction (0.25 = 25% loss from peak)
	CurrentDrawdown float64 `json:"current_drawdown"` // Current drawdown from peak
	PeakIndex       int     `json:"peak_index"`       // Index of the peak preceding the deepest trough
	TroughIndex     int     `json:"trough_index"`     // Index of the deepest trough
}

// MaxDrawdown calculates the maximum drawdown from a value series in a
// single forward pass over the running peak.
//
// Drawdown Formula:
//
//	Drawdown = (Peak Value - Current Value) / Peak Value
//	Max Drawdown = Maximum of all drawdowns
//
// Returns a value in [0, 1]; 0 for series with fewer than 2 points.
func MaxDrawdown(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}

	maxDrawdown := 0.0
	peak := values[0]

	for _, v := range values {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			drawdown := (peak - v) / peak
			if drawdown > maxDrawdown {
				maxDrawdown = drawdown
			}
		}
	}

	return maxDrawdown
}

// Drawdown calculates comprehensive drawdown metrics including the
// peak/trough indices of the deepest decline.
func Drawdown(values []float64) *DrawdownMetrics {
	if len(values) < 2 {
		return nil
	}

	maxDrawdown := 0.0
	peak := values[0]
	peakIndex := 0
	maxPeakIndex := 0
	maxTroughIndex := 0

	for i, v := range values {
		if v > peak {
			peak = v
			peakIndex = i
		}
		if peak > 0 {
			drawdown := (peak - v) / peak
			if drawdown > maxDrawdown {
				maxDrawdown = drawdown
				maxPeakIndex = peakIndex
				maxTroughIndex = i
			}
		}
	}

	currentDrawdown := 0.0
	if peak > 0 {
		currentDrawdown = (peak - values[len(values)-1]) / peak
	}

	return &DrawdownMetrics{
		MaxDrawdown:     maxDrawdown,
		CurrentDrawdown: currentDrawdown,
		PeakIndex:       maxPeakIndex,
		TroughIndex:     maxTroughIndex,
	}
}

// UlcerIndex measures the depth and duration of drawdowns over a value
// series. Lower is better.
func UlcerIndex(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}

	peak := values[0]
	sumSquared := 0.0

	for _, v := range values {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			drawdownPct := (peak - v) / peak * 100
			sumSquared += drawdownPct * drawdownPct
		}
	}

	return math.Sqrt(sumSquared / float64(len(values)))
}
