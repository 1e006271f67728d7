package pde

import (
	"gonum.org/v1/gonum/floats"

	"github.com/rzzdr/localvol-pde/pkg/metrics"
	"github.com/rzzdr/localvol-pde/pkg/utils/errors"
)

// sorNormFloor keeps the convergence ratio defined for an all-zero line.
const sorNormFloor = 1e-15

// SOR solves the line systems of the ADI scheme by successive
// over-relaxation. A sweep is accepted once
//
//	‖Δu‖² / (‖u‖² + ε) < Tolerance
//
// and running out of iterations is an error, never a silent return.
type SOR struct {
	Omega         float64
	Tolerance     float64
	MaxIterations int
}

// DefaultSOR returns ω=1.5, tolerance 1e-18 and a cap of 1000 iterations
func DefaultSOR() SOR {
	return SOR{Omega: 1.5, Tolerance: 1e-18, MaxIterations: 1000}
}

func (s SOR) validate() error {
	if !(s.Omega > 0 && s.Omega < 2) {
		return errors.InvalidArgumentf("sor relaxation factor must lie in (0,2), got %g", s.Omega)
	}
	if !(s.Tolerance > 0) {
		return errors.InvalidArgumentf("sor tolerance must be positive, got %g", s.Tolerance)
	}
	if s.MaxIterations <= 0 {
		return errors.InvalidArgumentf("sor iteration cap must be positive, got %d", s.MaxIterations)
	}
	return nil
}

// edgeRow is a boundary row: coefficients over the nodes nearest the edge
// in ascending order, and its right hand side.
type edgeRow struct {
	coeffs []float64
	rhs    float64
}

// lineSystem is a tridiagonal interior with free-form boundary rows.
type lineSystem struct {
	lower, diag, upper, rhs []float64
	first, last             edgeRow
}

func newLineSystem(n int) *lineSystem {
	return &lineSystem{
		lower: scratch.Get(n),
		diag:  scratch.Get(n),
		upper: scratch.Get(n),
		rhs:   scratch.Get(n),
	}
}

func (ls *lineSystem) release() {
	scratch.Put(ls.lower, ls.diag, ls.upper, ls.rhs)
}

// solve relaxes u in place, starting from its current content, and returns
// the number of sweeps used.
func (s SOR) solve(ls *lineSystem, u []float64) (int, error) {
	n := len(u)
	first, last := ls.first, ls.last
	wl := len(last.coeffs)

	for it := 1; it <= s.MaxIterations; it++ {
		var errSq float64

		gs := first.rhs
		for k := 1; k < len(first.coeffs); k++ {
			gs -= first.coeffs[k] * u[k]
		}
		errSq += s.relax(u, 0, gs/first.coeffs[0])

		for i := 1; i < n-1; i++ {
			gs = (ls.rhs[i] - ls.lower[i]*u[i-1] - ls.upper[i]*u[i+1]) / ls.diag[i]
			errSq += s.relax(u, i, gs)
		}

		gs = last.rhs
		for k := 0; k < wl-1; k++ {
			gs -= last.coeffs[k] * u[n-wl+k]
		}
		errSq += s.relax(u, n-1, gs/last.coeffs[wl-1])

		if errSq/(floats.Dot(u, u)+sorNormFloor) < s.Tolerance {
			metrics.RecordSORIterations(it)
			return it, nil
		}
	}
	return s.MaxIterations, errors.NonConvergence(
		"sor line solve did not converge within the iteration cap")
}

// relax moves u[i] towards the Gauss-Seidel value and returns the squared
// correction.
func (s SOR) relax(u []float64, i int, gs float64) float64 {
	corr := s.Omega * (gs - u[i])
	u[i] += corr
	return corr * corr
}
