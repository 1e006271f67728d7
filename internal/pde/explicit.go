package pde

import "math"

// ExplicitSolver is forward Euler in time: every interior value of the new
// row is a weighted sum of three neighbours of the old row, and the edges
// are then resolved from the boundary conditions against the new interior.
//
// The scheme is only stable while Δt·(2a/Δx² + |c|) stays below about 1
// (and Δx·|b| <= 2a for monotonicity). Nothing checks this: above the
// threshold the solution blows up, so callers needing guaranteed stability
// should use ThetaSolver with θ >= 0.5.
type ExplicitSolver struct{}

func (s *ExplicitSolver) Name() string { return "explicit" }

func (s *ExplicitSolver) Solve(p *Problem, g *Grid1D, lower, upper BoundaryCondition) (*FinalResult1D, error) {
	rows, err := march(s.Name(), s, p, g, lower, upper, false)
	if err != nil {
		return nil, err
	}
	return finalResult(g, rows), nil
}

func (s *ExplicitSolver) SolveFull(p *Problem, g *Grid1D, lower, upper BoundaryCondition) (*FullResult1D, error) {
	rows, err := march(s.Name(), s, p, g, lower, upper, true)
	if err != nil {
		return nil, err
	}
	return fullResult(g, rows), nil
}

func (s *ExplicitSolver) usesNextCoefficients() bool { return false }

func (s *ExplicitSolver) step(st []threePoint, spaces []float64, cur, _ coefficients, lower, upper BoundaryCondition,
	old, next []float64, t0, t1 float64) error {
	dt := t1 - t0
	for i := 1; i < len(old)-1; i++ {
		next[i] = old[i] + dt*st[i].apply(old, i, cur.a[i], cur.b[i], cur.c[i])
	}
	solveEdge(lower, next, old, t1, edgeSpacing(spaces, false), false)
	solveEdge(upper, next, old, t1, edgeSpacing(spaces, true), true)
	return nil
}

// StabilityLimit returns the largest explicit time step for which the
// diffusion term a stays stable on the given mesh, min over nodes of
// Δx²/(2a). It returns +Inf when a vanishes everywhere.
func StabilityLimit(a func(x float64) float64, spaces []float64) float64 {
	limit := math.Inf(1)
	for i := 1; i < len(spaces)-1; i++ {
		h := spaces[i+1] - spaces[i]
		if back := spaces[i] - spaces[i-1]; back < h {
			h = back
		}
		if av := a(spaces[i]); av > 0 {
			if dt := h * h / (2 * av); dt < limit {
				limit = dt
			}
		}
	}
	return limit
}
