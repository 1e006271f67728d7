package pde

import (
	"github.com/rzzdr/localvol-pde/pkg/utils/errors"
)

// ThetaSolver is the theta-method: each step solves
//
//	(I - θ·Δt·L(t1))·u1 = (I + (1-θ)·Δt·L(t0))·u0
//
// with the boundary rows replaced by the boundary conditions. θ=0 is
// explicit, θ=0.5 Crank-Nicolson and θ=1 fully implicit. Schemes with
// θ >= 0.5 are unconditionally stable.
type ThetaSolver struct {
	Theta float64
}

// NewThetaSolver validates theta
func NewThetaSolver(theta float64) (*ThetaSolver, error) {
	if !(theta >= 0 && theta <= 1) {
		return nil, errors.InvalidArgumentf("theta must lie in [0,1], got %g", theta)
	}
	return &ThetaSolver{Theta: theta}, nil
}

// CrankNicolson returns the θ=0.5 solver
func CrankNicolson() *ThetaSolver { return &ThetaSolver{Theta: 0.5} }

// Implicit returns the fully implicit solver
func Implicit() *ThetaSolver { return &ThetaSolver{Theta: 1} }

func (s *ThetaSolver) Name() string { return "theta" }

func (s *ThetaSolver) Solve(p *Problem, g *Grid1D, lower, upper BoundaryCondition) (*FinalResult1D, error) {
	rows, err := s.run(p, g, lower, upper, false)
	if err != nil {
		return nil, err
	}
	return finalResult(g, rows), nil
}

func (s *ThetaSolver) SolveFull(p *Problem, g *Grid1D, lower, upper BoundaryCondition) (*FullResult1D, error) {
	rows, err := s.run(p, g, lower, upper, true)
	if err != nil {
		return nil, err
	}
	return fullResult(g, rows), nil
}

func (s *ThetaSolver) run(p *Problem, g *Grid1D, lower, upper BoundaryCondition, keepAll bool) ([][]float64, error) {
	if !(s.Theta >= 0 && s.Theta <= 1) {
		return nil, errors.InvalidArgumentf("theta must lie in [0,1], got %g", s.Theta)
	}
	return march(s.Name(), s, p, g, lower, upper, keepAll)
}

func (s *ThetaSolver) usesNextCoefficients() bool { return true }

func (s *ThetaSolver) step(st []threePoint, spaces []float64, cur, nxt coefficients, lower, upper BoundaryCondition,
	old, next []float64, t0, t1 float64) error {
	n := len(old)
	dt := t1 - t0
	theta := s.Theta

	m := newTridiagonal(n)
	defer m.release()

	for i := 1; i < n-1; i++ {
		rhs := old[i]
		if theta < 1 {
			rhs += (1 - theta) * dt * st[i].apply(old, i, cur.a[i], cur.b[i], cur.c[i])
		}
		l, d, u := st[i].operatorRow(nxt.a[i], nxt.b[i], nxt.c[i])
		m.lower[i] = -theta * dt * l
		m.diag[i] = 1 - theta*dt*d
		m.upper[i] = -theta * dt * u
		m.rhs[i] = rhs
	}

	for _, edge := range []struct {
		bc    BoundaryCondition
		upper bool
	}{{lower, false}, {upper, true}} {
		rhs := boundaryRHS(edge.bc, old, t1, edgeSpacing(spaces, edge.upper), edge.upper)
		if err := m.setBoundaryRow(edge.bc, rhs, edge.upper); err != nil {
			return err
		}
	}

	return m.solve(next)
}
