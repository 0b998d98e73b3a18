package optimization

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// solveRiskParity equalizes marginal risk contributions by fixed-point
// iteration: each weight is rescaled toward target/MRC_i and the vector
// renormalized, until the update falls under the tolerance or the
// iteration cap is hit. Bounds are applied by projection each step.
func (o *Optimizer) solveRiskParity(symbols []string, mu []float64, cov *mat.SymDense, bounds [][2]float64) (*Solution, error) {
	n := len(symbols)

	x := make([]float64, n)
	for i := range x {
		x[i] = 1.0 / float64(n)
	}

	next := make([]float64, n)
	iterations := 0
	convergedAt := -1

	for iter := 0; iter < o.opts.MaxIterations; iter++ {
		iterations = iter + 1

		variance := quadForm(x, cov)
		if variance <= 0 {
			break
		}
		std := math.Sqrt(variance)
		target := std / float64(n)

		// MRC_i = x_i * (C x)_i / sqrt(x'Cx)
		for i := 0; i < n; i++ {
			cx := 0.0
			for j := 0; j < n; j++ {
				cx += cov.At(i, j) * x[j]
			}
			mrc := x[i] * cx / std
			if mrc <= 0 {
				mrc = 1e-12
			}
			next[i] = x[i] * target / mrc
		}

		next = projectToBounds(next, bounds)
		sum := 0.0
		for _, w := range next {
			sum += w
		}
		if sum <= 0 {
			break
		}
		for i := range next {
			next[i] /= sum
		}

		maxDelta := 0.0
		for i := range x {
			maxDelta = math.Max(maxDelta, math.Abs(next[i]-x[i]))
		}
		copy(x, next)

		if maxDelta < o.opts.Tolerance {
			convergedAt = iterations
			break
		}
	}

	solution := o.finalize(symbols, mu, cov, x, bounds)
	solution.Converged = convergedAt >= 0
	solution.Iterations = iterations
	if !solution.Converged {
		o.log.Warn().Int("iterations", iterations).Msg("risk parity stopped before convergence, returning best iterate")
	}
	return solution, nil
}
