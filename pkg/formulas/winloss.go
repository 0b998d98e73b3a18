package formulas

import "math"

// WinRate calculates the fraction of strictly positive periods.
func WinRate(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}

	wins := 0
	for _, r := range returns {
		if r > 0 {
			wins++
		}
	}

	return float64(wins) / float64(len(returns))
}

// ProfitFactor calculates the ratio of summed gains to summed losses.
// Returns +Inf for all-gain series, 0 for empty or all-flat series.
func ProfitFactor(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}

	gains := 0.0
	losses := 0.0
	for _, r := range returns {
		if r > 0 {
			gains += r
		} else if r < 0 {
			losses += -r
		}
	}

	if losses == 0 {
		if gains > 0 {
			return math.Inf(1)
		}
		return 0
	}

	return gains / losses
}
