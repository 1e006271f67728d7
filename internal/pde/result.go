package pde

import (
	"sort"
)

// FinalResult1D is the solution on the space mesh at a single time, usually
// the last node of the time mesh. It is immutable; derivatives are computed
// on demand from neighbouring values.
type FinalResult1D struct {
	time   float64
	spaces []float64
	values []float64
}

// Time returns the solver time of the slice
func (r *FinalResult1D) Time() float64 { return r.time }

// NumberSpaceNodes returns the number of space nodes
func (r *FinalResult1D) NumberSpaceNodes() int { return len(r.spaces) }

// SpaceValue returns space node i
func (r *FinalResult1D) SpaceValue(i int) float64 { return r.spaces[i] }

// FunctionValue returns the solution at space node i
func (r *FinalResult1D) FunctionValue(i int) float64 { return r.values[i] }

// FunctionValues returns a copy of the solution
func (r *FinalResult1D) FunctionValues() []float64 {
	return append([]float64(nil), r.values...)
}

// FirstSpatialDerivative returns ∂u/∂x at node i: central three-point
// difference in the interior and a one-sided three-point difference at the
// edges.
func (r *FinalResult1D) FirstSpatialDerivative(i int) float64 {
	return firstDerivative(r.spaces, r.values, i)
}

// SecondSpatialDerivative returns ∂²u/∂x² at node i from the three point
// stencil around it; edge nodes reuse the stencil of their neighbour.
func (r *FinalResult1D) SecondSpatialDerivative(i int) float64 {
	return secondDerivative(r.spaces, r.values, i)
}

// LowerBoundIndexForSpace returns i with x_i <= x < x_{i+1}, clamped to
// [0, n-2] for queries outside the mesh
func (r *FinalResult1D) LowerBoundIndexForSpace(x float64) int {
	return lowerBoundIndex(r.spaces, x)
}

// ValueAt linearly interpolates the solution at x. Outside the mesh the
// edge value is returned.
func (r *FinalResult1D) ValueAt(x float64) float64 {
	return interpolate(r.spaces, x, func(i int) float64 { return r.values[i] })
}

// InterpolateAt linearly interpolates any node quantity, such as a
// derivative, at x
func (r *FinalResult1D) InterpolateAt(x float64, nodeValue func(i int) float64) float64 {
	return interpolate(r.spaces, x, nodeValue)
}

// FullResult1D keeps every time slice of a solve. It is meant for
// diagnostics and surfaces; FinalResult1D is the memory-light alternative.
type FullResult1D struct {
	times  []float64
	spaces []float64
	values [][]float64
}

// NumberTimeNodes returns the number of stored time slices
func (r *FullResult1D) NumberTimeNodes() int { return len(r.times) }

// NumberSpaceNodes returns the number of space nodes
func (r *FullResult1D) NumberSpaceNodes() int { return len(r.spaces) }

// TimeValue returns time node j
func (r *FullResult1D) TimeValue(j int) float64 { return r.times[j] }

// SpaceValue returns space node i
func (r *FullResult1D) SpaceValue(i int) float64 { return r.spaces[i] }

// FunctionValue returns the solution at time node j and space node i
func (r *FullResult1D) FunctionValue(j, i int) float64 { return r.values[j][i] }

// Slice returns the view of time node j. The view shares storage, which is
// safe since neither side mutates it.
func (r *FullResult1D) Slice(j int) *FinalResult1D {
	return &FinalResult1D{time: r.times[j], spaces: r.spaces, values: r.values[j]}
}

// Final returns the view of the last time node
func (r *FullResult1D) Final() *FinalResult1D {
	return r.Slice(len(r.times) - 1)
}

// LowerBoundIndexForTime returns j with t_j <= t < t_{j+1}, clamped
func (r *FullResult1D) LowerBoundIndexForTime(t float64) int {
	return lowerBoundIndex(r.times, t)
}

// Result2D is the terminal solution of a two dimensional solve, indexed
// [x][y]
type Result2D struct {
	time   float64
	xs, ys []float64
	values [][]float64
}

// Time returns the solver time of the solution
func (r *Result2D) Time() float64 { return r.time }

// NumberXNodes returns the number of x nodes
func (r *Result2D) NumberXNodes() int { return len(r.xs) }

// NumberYNodes returns the number of y nodes
func (r *Result2D) NumberYNodes() int { return len(r.ys) }

// XValue returns x node i
func (r *Result2D) XValue(i int) float64 { return r.xs[i] }

// YValue returns y node j
func (r *Result2D) YValue(j int) float64 { return r.ys[j] }

// FunctionValue returns the solution at (x_i, y_j)
func (r *Result2D) FunctionValue(i, j int) float64 { return r.values[i][j] }

// FirstDerivativeX returns ∂u/∂x at (x_i, y_j)
func (r *Result2D) FirstDerivativeX(i, j int) float64 {
	return firstDerivative(r.xs, r.column(j), i)
}

// FirstDerivativeY returns ∂u/∂y at (x_i, y_j)
func (r *Result2D) FirstDerivativeY(i, j int) float64 {
	return firstDerivative(r.ys, r.values[i], j)
}

// SecondDerivativeX returns ∂²u/∂x² at (x_i, y_j)
func (r *Result2D) SecondDerivativeX(i, j int) float64 {
	return secondDerivative(r.xs, r.column(j), i)
}

// SecondDerivativeY returns ∂²u/∂y² at (x_i, y_j)
func (r *Result2D) SecondDerivativeY(i, j int) float64 {
	return secondDerivative(r.ys, r.values[i], j)
}

// ValueAt bilinearly interpolates the solution at (x, y), flat outside the
// mesh
func (r *Result2D) ValueAt(x, y float64) float64 {
	return interpolate(r.xs, x, func(i int) float64 {
		return interpolate(r.ys, y, func(j int) float64 { return r.values[i][j] })
	})
}

func (r *Result2D) column(j int) []float64 {
	col := make([]float64, len(r.xs))
	for i := range col {
		col[i] = r.values[i][j]
	}
	return col
}

func firstDerivative(xs, ys []float64, i int) float64 {
	n := len(xs)
	switch i {
	case 0:
		h1, h2 := xs[1]-xs[0], xs[2]-xs[1]
		return -(2*h1+h2)/(h1*(h1+h2))*ys[0] + (h1+h2)/(h1*h2)*ys[1] - h1/(h2*(h1+h2))*ys[2]
	case n - 1:
		h1, h2 := xs[n-2]-xs[n-3], xs[n-1]-xs[n-2]
		return h2/(h1*(h1+h2))*ys[n-3] - (h1+h2)/(h1*h2)*ys[n-2] + (2*h2+h1)/(h2*(h1+h2))*ys[n-1]
	default:
		w := centralWeights(xs[i]-xs[i-1], xs[i+1]-xs[i])
		return w.d1[0]*ys[i-1] + w.d1[1]*ys[i] + w.d1[2]*ys[i+1]
	}
}

func secondDerivative(xs, ys []float64, i int) float64 {
	n := len(xs)
	if i == 0 {
		i = 1
	} else if i == n-1 {
		i = n - 2
	}
	w := centralWeights(xs[i]-xs[i-1], xs[i+1]-xs[i])
	return w.d2[0]*ys[i-1] + w.d2[1]*ys[i] + w.d2[2]*ys[i+1]
}

func lowerBoundIndex(xs []float64, x float64) int {
	n := len(xs)
	j := sort.SearchFloat64s(xs, x)
	if j == n || xs[j] != x {
		j--
	}
	if j < 0 {
		return 0
	}
	if j > n-2 {
		return n - 2
	}
	return j
}

func interpolate(xs []float64, x float64, nodeValue func(i int) float64) float64 {
	i := lowerBoundIndex(xs, x)
	w := (x - xs[i]) / (xs[i+1] - xs[i])
	if w <= 0 {
		return nodeValue(i)
	}
	if w >= 1 {
		return nodeValue(i + 1)
	}
	return (1-w)*nodeValue(i) + w*nodeValue(i+1)
}
