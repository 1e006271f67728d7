package risk

import (
	"math"

	"github.com/rzzdr/localvol-pde/internal/market"
	"github.com/rzzdr/localvol-pde/internal/pde"
)

// pricingProblem is a PDE problem together with its boundary conditions
type pricingProblem struct {
	problem      *pde.Problem
	lower, upper pde.BoundaryCondition
}

// forwardProblem is the Dupire forward equation for the normalised price
// c(T, m) = V(T, K)/F(T) of an option struck at K = m·F(T):
//
//	∂c/∂T = ½σ(T, m·F(T))²·m²·∂²c/∂m²
//
// One solve prices every strike and maturity on the grid at once.
func forwardProblem(fwd market.ForwardCurve, lv market.LocalVolatilitySurface, isCall bool, maxMoneyness float64) pricingProblem {
	a := func(t, m float64) float64 {
		sigma := lv.Volatility(t, m*fwd.Forward(t))
		return 0.5 * sigma * sigma * m * m
	}

	pp := pricingProblem{problem: &pde.Problem{A: a, B: pde.Zero, C: pde.Zero, Direction: pde.Forward}}
	if isCall {
		pp.problem.Initial = func(m float64) float64 { return math.Max(1-m, 0) }
		pp.lower = pde.NewDirichlet(0, pde.ConstantValue(1))
		pp.upper = pde.NewNeumann(maxMoneyness, pde.ConstantValue(0))
	} else {
		pp.problem.Initial = func(m float64) float64 { return math.Max(m-1, 0) }
		pp.lower = pde.NewDirichlet(0, pde.ConstantValue(0))
		pp.upper = pde.NewNeumann(maxMoneyness, pde.ConstantValue(1))
	}
	return pp
}

// backwardProblem is the pricing equation for the forward value of an option
// as a function of spot x, solved in time to expiry τ:
//
//	∂V/∂τ = ½σ(t, x)²·x²·∂²V/∂x² + μ(t)·x·∂V/∂x,  t = expiry - τ
//
// with μ = d ln F/dt the drift of the forward curve.
func backwardProblem(fwd market.ForwardCurve, lv market.LocalVolatilitySurface, expiry, strike float64, isCall bool, maxSpot float64) pricingProblem {
	a := func(t, x float64) float64 {
		sigma := lv.Volatility(t, x)
		return 0.5 * sigma * sigma * x * x
	}
	b := func(t, x float64) float64 {
		return market.Drift(fwd, t) * x
	}

	pp := pricingProblem{problem: &pde.Problem{A: a, B: b, C: pde.Zero, Direction: pde.Backward, Expiry: expiry}}
	if isCall {
		// Deep in the money a call moves one for one with the forward to expiry.
		growth := func(tau float64) float64 { return fwd.Forward(expiry) / fwd.Forward(expiry-tau) }
		pp.problem.Initial = func(x float64) float64 { return math.Max(x-strike, 0) }
		pp.lower = pde.NewDirichlet(0, pde.ConstantValue(0))
		pp.upper = pde.NewNeumann(maxSpot, growth)
	} else {
		pp.problem.Initial = func(x float64) float64 { return math.Max(strike-x, 0) }
		pp.lower = pde.NewDirichlet(0, pde.ConstantValue(strike))
		pp.upper = pde.NewNeumann(maxSpot, pde.ConstantValue(0))
	}
	return pp
}

func (pp pricingProblem) solve(s pde.Solver, g *pde.Grid1D) (*pde.FinalResult1D, error) {
	return s.Solve(pp.problem, g, pp.lower, pp.upper)
}
