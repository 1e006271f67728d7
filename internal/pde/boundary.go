package pde

// BoundaryCondition is a linear constraint at one edge of the space domain.
//
// For the nodes nearest the edge, taken in ascending x order, a condition
// reads
//
//	Σ left[k]·u_new[k] = Σ right[k]·u_old[k] + Constant(t, dx)
//
// where dx is the mesh spacing at the edge. The three implementations scale
// their constant so that they can be mixed freely in system assembly.
type BoundaryCondition interface {
	// Level is the space coordinate of the edge.
	Level() float64
	// LeftStencil holds the coefficients applied to the unknown solution.
	LeftStencil() []float64
	// RightStencil holds the coefficients applied to the known solution of
	// the previous step. It may be empty.
	RightStencil() []float64
	// Constant is the right hand side term at time t.
	Constant(t, dx float64) float64
}

// TimeFunction is a boundary value as a function of solver time
type TimeFunction func(t float64) float64

// ConstantValue returns a TimeFunction that ignores time
func ConstantValue(v float64) TimeFunction {
	return func(float64) float64 { return v }
}

// Dirichlet fixes the solution value at the edge
type Dirichlet struct {
	level float64
	value TimeFunction
}

// NewDirichlet creates a Dirichlet condition at level
func NewDirichlet(level float64, value TimeFunction) *Dirichlet {
	return &Dirichlet{level: level, value: value}
}

func (d *Dirichlet) Level() float64          { return d.level }
func (d *Dirichlet) LeftStencil() []float64  { return []float64{1} }
func (d *Dirichlet) RightStencil() []float64 { return nil }

// Constant is the edge value; Dirichlet values are not scaled by spacing.
func (d *Dirichlet) Constant(t, _ float64) float64 {
	return d.value(t)
}

// Neumann fixes the first derivative at the edge with a one-sided difference
type Neumann struct {
	level      float64
	derivative TimeFunction
}

// NewNeumann creates a Neumann condition at level
func NewNeumann(level float64, derivative TimeFunction) *Neumann {
	return &Neumann{level: level, derivative: derivative}
}

func (n *Neumann) Level() float64          { return n.level }
func (n *Neumann) LeftStencil() []float64  { return []float64{-1, 1} }
func (n *Neumann) RightStencil() []float64 { return nil }

func (n *Neumann) Constant(t, dx float64) float64 {
	return n.derivative(t) * dx
}

// SecondDerivative fixes the second derivative at the edge. It is the usual
// choice for the far edges of two dimensional problems, where a linear
// extrapolation is the natural boundary behaviour.
type SecondDerivative struct {
	level float64
	value TimeFunction
}

// NewSecondDerivative creates a second derivative condition at level
func NewSecondDerivative(level float64, value TimeFunction) *SecondDerivative {
	return &SecondDerivative{level: level, value: value}
}

func (s *SecondDerivative) Level() float64          { return s.level }
func (s *SecondDerivative) LeftStencil() []float64  { return []float64{1, -2, 1} }
func (s *SecondDerivative) RightStencil() []float64 { return []float64{0, 0, 0} }

func (s *SecondDerivative) Constant(t, dx float64) float64 {
	return s.value(t) * dx * dx
}

// edgeNodes returns the node indices a stencil of the given width covers at
// the lower or upper edge of a line with n nodes, in ascending order.
func edgeNodes(width, n int, upper bool) []int {
	idx := make([]int, width)
	for k := range idx {
		if upper {
			idx[k] = n - width + k
		} else {
			idx[k] = k
		}
	}
	return idx
}

// edgeSpacing is the spacing between the two nodes nearest the edge.
func edgeSpacing(nodes []float64, upper bool) float64 {
	n := len(nodes)
	if upper {
		return nodes[n-1] - nodes[n-2]
	}
	return nodes[1] - nodes[0]
}

// boundaryRHS evaluates the right hand side of a condition against the
// previous solution.
func boundaryRHS(bc BoundaryCondition, old []float64, t, dx float64, upper bool) float64 {
	rhs := bc.Constant(t, dx)
	right := bc.RightStencil()
	for k, j := range edgeNodes(len(right), len(old), upper) {
		rhs += right[k] * old[j]
	}
	return rhs
}

// solveEdge resolves the edge value of u from a condition once every other
// node the stencil touches is known. u is updated in place.
func solveEdge(bc BoundaryCondition, u, old []float64, t, dx float64, upper bool) {
	left := bc.LeftStencil()
	rhs := boundaryRHS(bc, old, t, dx, upper)
	idx := edgeNodes(len(left), len(u), upper)

	edge := edgeIndex(len(left), upper)
	for k, j := range idx {
		if k != edge {
			rhs -= left[k] * u[j]
		}
	}
	u[idx[edge]] = rhs / left[edge]
}
