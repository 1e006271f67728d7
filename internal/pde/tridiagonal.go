package pde

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/lapack/gonum"

	"github.com/rzzdr/localvol-pde/pkg/utils/errors"
	"github.com/rzzdr/localvol-pde/pkg/utils/pools"
)

var scratch = pools.NewFloat64SlicePool(256)

// tridiagonal is a system M·u = rhs. Row i reads
// lower[i]·u[i-1] + diag[i]·u[i] + upper[i]·u[i+1] = rhs[i];
// lower[0] and upper[n-1] are unused.
type tridiagonal struct {
	lower, diag, upper, rhs []float64
}

func newTridiagonal(n int) *tridiagonal {
	return &tridiagonal{
		lower: scratch.Get(n),
		diag:  scratch.Get(n),
		upper: scratch.Get(n),
		rhs:   scratch.Get(n),
	}
}

func (m *tridiagonal) release() {
	scratch.Put(m.lower, m.diag, m.upper, m.rhs)
}

// setBoundaryRow overwrites the first or last row with a boundary
// condition. Three point stencils reach one node past the band; that entry
// is eliminated with the adjacent interior row, which must already be set.
func (m *tridiagonal) setBoundaryRow(bc BoundaryCondition, rhs float64, upper bool) error {
	s := bc.LeftStencil()
	n := len(m.diag)

	if !upper {
		m.diag[0] = s[0]
		m.upper[0] = 0
		if len(s) > 1 {
			m.upper[0] = s[1]
		}
		m.rhs[0] = rhs
		if len(s) == 3 && s[2] != 0 {
			if m.upper[1] == 0 {
				return errors.SingularSystem("lower boundary stencil cannot be reduced: interior row has no upper coupling")
			}
			f := s[2] / m.upper[1]
			m.diag[0] -= f * m.lower[1]
			m.upper[0] -= f * m.diag[1]
			m.rhs[0] -= f * m.rhs[1]
		}
		return nil
	}

	w := len(s)
	m.diag[n-1] = s[w-1]
	m.lower[n-1] = 0
	if w > 1 {
		m.lower[n-1] = s[w-2]
	}
	m.rhs[n-1] = rhs
	if w == 3 && s[0] != 0 {
		if m.lower[n-2] == 0 {
			return errors.SingularSystem("upper boundary stencil cannot be reduced: interior row has no lower coupling")
		}
		f := s[0] / m.lower[n-2]
		m.diag[n-1] -= f * m.upper[n-2]
		m.lower[n-1] -= f * m.diag[n-2]
		m.rhs[n-1] -= f * m.rhs[n-2]
	}
	return nil
}

// solve factorises the system with partial pivoting and writes the
// solution into u. The system is consumed.
func (m *tridiagonal) solve(u []float64) error {
	n := len(m.diag)
	copy(u, m.rhs)
	if ok := (gonum.Implementation{}).Dgtsv(n, 1, m.lower[1:n], m.diag, m.upper[:n-1], u, 1); !ok {
		return errors.SingularSystem("tridiagonal system is singular; check the boundary conditions and coefficients")
	}
	for i, v := range u {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.SingularSystem(fmt.Sprintf("tridiagonal solve produced a non-finite value at node %d", i))
		}
	}
	return nil
}
