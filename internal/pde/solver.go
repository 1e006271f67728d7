// Package pde contains finite difference solvers for convection-diffusion
// problems on non-uniform meshes: an explicit scheme and the theta-method for
// one space dimension, and a Peaceman-Rachford ADI scheme with line SOR for
// two. Solvers are stateless; every solve owns its working buffers and only
// hands out immutable results.
package pde

import (
	"time"

	"github.com/rzzdr/localvol-pde/pkg/metrics"
	"github.com/rzzdr/localvol-pde/pkg/utils/errors"
	"github.com/rzzdr/localvol-pde/pkg/utils/logger"
)

// Solver marches a one dimensional problem across the time mesh
type Solver interface {
	// Name identifies the scheme in logs and metrics.
	Name() string
	// Solve returns the solution at the last time node.
	Solve(p *Problem, g *Grid1D, lower, upper BoundaryCondition) (*FinalResult1D, error)
	// SolveFull returns the solution at every time node.
	SolveFull(p *Problem, g *Grid1D, lower, upper BoundaryCondition) (*FullResult1D, error)
}

// coefficients are a, b and c at every space node for one time node.
type coefficients struct {
	a, b, c []float64
}

func evaluate(p *Problem, t float64, spaces []float64) coefficients {
	n := len(spaces)
	co := coefficients{a: make([]float64, n), b: make([]float64, n), c: make([]float64, n)}
	for i := 1; i < n-1; i++ {
		co.a[i], co.b[i], co.c[i] = p.coefficients(t, spaces[i])
	}
	return co
}

// stepper advances the solution from time t0 to t1. old must not be
// modified; next is a fresh row to fill.
type stepper interface {
	step(st []threePoint, spaces []float64, cur, nxt coefficients, lower, upper BoundaryCondition,
		old, next []float64, t0, t1 float64) error
	usesNextCoefficients() bool
}

// march is the time loop shared by the one dimensional schemes.
func march(name string, s stepper, p *Problem, g *Grid1D, lower, upper BoundaryCondition, keepAll bool) (rows [][]float64, err error) {
	start := time.Now()
	defer func() { metrics.RecordSolve(name, time.Since(start), err) }()

	if g == nil {
		return nil, errors.InvalidArgument("grid is nil")
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	if err := checkLevels("space", g.spaces, lower, upper); err != nil {
		return nil, err
	}

	log := logger.GetLogger("pde." + name)
	log.Debugf("solving %dx%d grid, direction %d", len(g.times), len(g.spaces), p.Direction)

	st := interiorStencils(g.spaces)
	u := make([]float64, len(g.spaces))
	for i, x := range g.spaces {
		u[i] = p.Initial(x)
	}
	if keepAll {
		rows = make([][]float64, 0, len(g.times))
		rows = append(rows, u)
	}

	cur := evaluate(p, g.times[0], g.spaces)
	for n := 0; n < len(g.times)-1; n++ {
		t0, t1 := g.times[n], g.times[n+1]
		var nxt coefficients
		if s.usesNextCoefficients() || n+1 < len(g.times)-1 {
			nxt = evaluate(p, t1, g.spaces)
		}
		next := make([]float64, len(u))
		if err := s.step(st, g.spaces, cur, nxt, lower, upper, u, next, t0, t1); err != nil {
			return nil, errors.Wrapf(err, "%s step %d (t=%g)", name, n, t1)
		}
		u, cur = next, nxt
		if keepAll {
			rows = append(rows, u)
		}
	}

	if !keepAll {
		rows = [][]float64{u}
	}
	return rows, nil
}

func finalResult(g *Grid1D, rows [][]float64) *FinalResult1D {
	return &FinalResult1D{
		time:   g.times[len(g.times)-1],
		spaces: g.spaces,
		values: rows[len(rows)-1],
	}
}

func fullResult(g *Grid1D, rows [][]float64) *FullResult1D {
	return &FullResult1D{times: g.times, spaces: g.spaces, values: rows}
}
