package pde

import (
	"time"

	"github.com/rzzdr/localvol-pde/pkg/metrics"
	"github.com/rzzdr/localvol-pde/pkg/utils/errors"
	"github.com/rzzdr/localvol-pde/pkg/utils/logger"
)

// Boundaries2D holds the four edge conditions of a two dimensional problem
type Boundaries2D struct {
	XLower, XUpper BoundaryCondition
	YLower, YUpper BoundaryCondition
}

// ADISolver is the Peaceman-Rachford alternating direction implicit scheme.
// Each step of size Δt is split in two half steps:
//
//	(I - Δt/2·Lx(t+Δt/2))·u* = (I + Δt/2·Ly(t))·u
//	(I - Δt/2·Ly(t+Δt))·u'  = (I + Δt/2·Lx(t+Δt/2))·u*
//
// where Lx = a∂xx + b∂x + c/2 and Ly = d∂yy + f∂y + c/2. Every implicit line
// is relaxed with SOR; after each half step the edges of the explicit axis
// are recomputed from their boundary conditions.
type ADISolver struct {
	SOR SOR
}

// NewADISolver returns a solver using the default SOR settings
func NewADISolver() *ADISolver {
	return &ADISolver{SOR: DefaultSOR()}
}

func (s *ADISolver) Name() string { return "adi" }

// Solve marches the problem to the last time node
func (s *ADISolver) Solve(p *Problem2D, g *Grid2D, bcs Boundaries2D) (res *Result2D, err error) {
	start := time.Now()
	defer func() { metrics.RecordSolve(s.Name(), time.Since(start), err) }()

	if g == nil {
		return nil, errors.InvalidArgument("grid is nil")
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	if err := s.SOR.validate(); err != nil {
		return nil, err
	}
	if err := checkLevels("x", g.xs, bcs.XLower, bcs.XUpper); err != nil {
		return nil, err
	}
	if err := checkLevels("y", g.ys, bcs.YLower, bcs.YUpper); err != nil {
		return nil, err
	}

	logger.GetLogger("pde.adi").Debugf("solving %dx%dx%d grid", len(g.times), len(g.xs), len(g.ys))

	m := &adiMarch{
		sor: s.SOR,
		p:   p,
		g:   g,
		bcs: bcs,
		stX: interiorStencils(g.xs),
		stY: interiorStencils(g.ys),
	}

	u := newPlane(len(g.xs), len(g.ys))
	for i, x := range g.xs {
		for j, y := range g.ys {
			u[i][j] = p.Initial(x, y)
		}
	}

	for n := 0; n < len(g.times)-1; n++ {
		t0, t1 := g.times[n], g.times[n+1]
		half, err := m.sweepX(u, t0, t1)
		if err != nil {
			return nil, errors.Wrapf(err, "adi step %d x sweep (t=%g)", n, t1)
		}
		if u, err = m.sweepY(half, t0, t1); err != nil {
			return nil, errors.Wrapf(err, "adi step %d y sweep (t=%g)", n, t1)
		}
	}

	return &Result2D{time: g.times[len(g.times)-1], xs: g.xs, ys: g.ys, values: u}, nil
}

// adiMarch holds what stays fixed over the time loop of one solve.
type adiMarch struct {
	sor      SOR
	p        *Problem2D
	g        *Grid2D
	bcs      Boundaries2D
	stX, stY []threePoint
}

func newPlane(nx, ny int) [][]float64 {
	plane := make([][]float64, nx)
	for i := range plane {
		plane[i] = make([]float64, ny)
	}
	return plane
}

// sweepX is the first half step: explicit in y, implicit in x along each
// interior y line, then the y edges.
func (m *adiMarch) sweepX(u [][]float64, t0, t1 float64) ([][]float64, error) {
	xs, ys := m.g.xs, m.g.ys
	nx, ny := len(xs), len(ys)
	hdt := (t1 - t0) / 2
	th := t0 + hdt
	dx := [2]float64{edgeSpacing(xs, false), edgeSpacing(xs, true)}

	half := newPlane(nx, ny)
	line := make([]float64, nx)
	old := make([]float64, nx)
	ls := newLineSystem(nx)
	defer ls.release()

	for j := 1; j < ny-1; j++ {
		y := ys[j]
		for i := 1; i < nx-1; i++ {
			x := xs[i]
			c0 := m.p.C(t0, x, y) / 2
			explicit := m.stY[j].apply(u[i], j, m.p.D(t0, x, y), m.p.F(t0, x, y), c0)
			ls.rhs[i] = u[i][j] + hdt*explicit

			l, d, r := m.stX[i].operatorRow(m.p.A(th, x, y), m.p.B(th, x, y), m.p.C(th, x, y)/2)
			ls.lower[i] = -hdt * l
			ls.diag[i] = 1 - hdt*d
			ls.upper[i] = -hdt * r
		}
		for i := range old {
			old[i] = u[i][j]
		}
		ls.first = edgeRow{m.bcs.XLower.LeftStencil(), boundaryRHS(m.bcs.XLower, old, th, dx[0], false)}
		ls.last = edgeRow{m.bcs.XUpper.LeftStencil(), boundaryRHS(m.bcs.XUpper, old, th, dx[1], true)}

		copy(line, old)
		if _, err := m.sor.solve(ls, line); err != nil {
			return nil, errors.Wrapf(err, "line y=%g", y)
		}
		for i := range line {
			half[i][j] = line[i]
		}
	}

	dy := [2]float64{edgeSpacing(ys, false), edgeSpacing(ys, true)}
	for i := range half {
		solveEdge(m.bcs.YLower, half[i], u[i], th, dy[0], false)
		solveEdge(m.bcs.YUpper, half[i], u[i], th, dy[1], true)
	}
	return half, nil
}

// sweepY is the second half step: explicit in x, implicit in y along each
// interior x line, then the x edges.
func (m *adiMarch) sweepY(half [][]float64, t0, t1 float64) ([][]float64, error) {
	xs, ys := m.g.xs, m.g.ys
	nx, ny := len(xs), len(ys)
	hdt := (t1 - t0) / 2
	th := t0 + hdt
	dy := [2]float64{edgeSpacing(ys, false), edgeSpacing(ys, true)}

	next := newPlane(nx, ny)
	column := make([]float64, nx)
	ls := newLineSystem(ny)
	defer ls.release()

	for i := 1; i < nx-1; i++ {
		x := xs[i]
		for j := 1; j < ny-1; j++ {
			y := ys[j]
			trio := [3]float64{half[i-1][j], half[i][j], half[i+1][j]}
			explicit := m.stX[i].apply(trio[:], 1, m.p.A(th, x, y), m.p.B(th, x, y), m.p.C(th, x, y)/2)
			ls.rhs[j] = half[i][j] + hdt*explicit

			l, d, r := m.stY[j].operatorRow(m.p.D(t1, x, y), m.p.F(t1, x, y), m.p.C(t1, x, y)/2)
			ls.lower[j] = -hdt * l
			ls.diag[j] = 1 - hdt*d
			ls.upper[j] = -hdt * r
		}
		ls.first = edgeRow{m.bcs.YLower.LeftStencil(), boundaryRHS(m.bcs.YLower, half[i], t1, dy[0], false)}
		ls.last = edgeRow{m.bcs.YUpper.LeftStencil(), boundaryRHS(m.bcs.YUpper, half[i], t1, dy[1], true)}

		copy(next[i], half[i])
		if _, err := m.sor.solve(ls, next[i]); err != nil {
			return nil, errors.Wrapf(err, "line x=%g", x)
		}
	}

	dx := [2]float64{edgeSpacing(xs, false), edgeSpacing(xs, true)}
	old := make([]float64, nx)
	for j := 0; j < ny; j++ {
		for i := range column {
			column[i] = next[i][j]
			old[i] = half[i][j]
		}
		solveEdge(m.bcs.XLower, column, old, t1, dx[0], false)
		solveEdge(m.bcs.XUpper, column, old, t1, dx[1], true)
		next[0][j] = column[0]
		next[nx-1][j] = column[nx-1]
	}
	return next, nil
}
