package optimization

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// DefaultFrontierPoints is the number of frontier points traced when the
// caller does not ask for a specific count.
const DefaultFrontierPoints = 9

// Frontier traces the efficient frontier by sweeping target returns
// linearly from the minimum-variance portfolio's return to the maximum
// achievable return, solving minimum variance at each target. Points come
// back sorted by return with volatility non-decreasing.
func (o *Optimizer) Frontier(symbols []string, mu []float64, cov *mat.SymDense, points int) ([]FrontierPoint, error) {
	if points <= 0 {
		points = DefaultFrontierPoints
	}

	bounds := o.constraints.bounds(symbols)
	minVar, err := o.Optimize(symbols, mu, cov, MinVariance)
	if err != nil {
		return nil, err
	}
	cov, _ = ensurePositiveDefinite(cov)

	low := periodicReturn(symbols, mu, minVar)
	high := o.maxAchievableReturn(symbols, mu, bounds)
	if high < low {
		high = low
	}

	frontier := make([]FrontierPoint, 0, points)
	for i := 0; i < points; i++ {
		target := low
		if points > 1 {
			target = low + (high-low)*float64(i)/float64(points-1)
		}

		solution := o.solveAtTarget(symbols, mu, cov, bounds, target)
		frontier = append(frontier, FrontierPoint{
			TargetReturn: target,
			Weights:      solution.Weights,
			Return:       solution.Return,
			Volatility:   solution.Volatility,
		})
	}

	sort.Slice(frontier, func(i, j int) bool { return frontier[i].Return < frontier[j].Return })

	// Minimum variance at a higher target can never be lower; clamp any
	// solver noise so the invariant holds exactly.
	for i := 1; i < len(frontier); i++ {
		if frontier[i].Volatility < frontier[i-1].Volatility {
			frontier[i].Volatility = frontier[i-1].Volatility
		}
	}
	return frontier, nil
}

// solveAtTarget minimizes variance with the target return as an additional
// quadratic equality penalty.
func (o *Optimizer) solveAtTarget(symbols []string, mu []float64, cov *mat.SymDense, bounds [][2]float64, target float64) *Solution {
	n := len(symbols)

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			xp := projectToBounds(x, bounds)
			obj := quadForm(xp, cov)

			sum := 0.0
			for i := 0; i < n; i++ {
				sum += xp[i]
			}
			obj += penaltyWeight * (sum - 1) * (sum - 1)

			miss := dot(mu, xp) - target
			obj += penaltyWeight * miss * miss
			obj += o.sectorPenalty(xp, symbols)
			return obj
		},
		Grad: func(grad, x []float64) {
			xp := projectToBounds(x, bounds)
			sum := 0.0
			for i := 0; i < n; i++ {
				sum += xp[i]
			}
			miss := dot(mu, xp) - target

			for i := 0; i < n; i++ {
				dVar := 0.0
				for j := 0; j < n; j++ {
					dVar += 2 * cov.At(i, j) * xp[j]
				}
				grad[i] = dVar + 2*penaltyWeight*(sum-1) + 2*penaltyWeight*miss*mu[i]
			}
			o.addSectorPenaltyGradient(grad, xp, symbols)
		},
	}

	initial := make([]float64, n)
	for i := range initial {
		initial[i] = 1.0 / float64(n)
	}
	settings := o.solverSettings()

	result, err := optimize.Minimize(problem, initial, settings, &optimize.BFGS{})
	if err != nil || result == nil || !converged(result.Status) {
		if fallback, fbErr := optimize.Minimize(problem, initial, settings, &optimize.NelderMead{}); fbErr == nil && fallback != nil {
			if err != nil || result == nil || fallback.F < result.F {
				result = fallback
			}
		}
	}

	x := initial
	if result != nil {
		x = result.X
	}
	return o.finalize(symbols, mu, cov, x, bounds)
}

// maxAchievableReturn fills weight greedily into the highest expected
// returns, respecting per-asset bounds and sector exposure caps. With box
// constraints this is the exact linear-programming optimum.
func (o *Optimizer) maxAchievableReturn(symbols []string, mu []float64, bounds [][2]float64) float64 {
	n := len(symbols)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return mu[order[a]] > mu[order[b]] })

	weights := make([]float64, n)
	total := 0.0
	for _, i := range order {
		weights[i] = bounds[i][0]
		total += bounds[i][0]
	}

	sectorUsed := make(map[string]float64)
	if o.constraints.MaxSectorExposure > 0 {
		for i, symbol := range symbols {
			if sector := o.constraints.Sectors[symbol]; sector != "" {
				sectorUsed[sector] += weights[i]
			}
		}
	}

	for _, i := range order {
		if total >= 1 {
			break
		}
		room := math.Min(bounds[i][1]-weights[i], 1-total)
		if o.constraints.MaxSectorExposure > 0 {
			if sector := o.constraints.Sectors[symbols[i]]; sector != "" {
				room = math.Min(room, o.constraints.MaxSectorExposure-sectorUsed[sector])
				if room < 0 {
					room = 0
				}
				sectorUsed[sector] += room
			}
		}
		weights[i] += room
		total += room
	}

	return dot(mu, weights)
}

func periodicReturn(symbols []string, mu []float64, s *Solution) float64 {
	var ret float64
	for i, symbol := range symbols {
		ret += mu[i] * s.Weights[symbol]
	}
	return ret
}
