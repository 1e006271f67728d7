package pde

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/rzzdr/localvol-pde/pkg/utils/errors"
)

// uniformBunchingLimit is the exponential bunching below which the mesh is
// treated as uniform; (e^{ku}-1)/(e^k-1) loses all precision near k=0.
const uniformBunchingLimit = 1e-8

// UniformMesh returns n equally spaced nodes on [lower, upper]
func UniformMesh(lower, upper float64, n int) ([]float64, error) {
	if err := checkMeshBounds(lower, upper, n); err != nil {
		return nil, err
	}
	nodes := floats.Span(make([]float64, n), lower, upper)
	nodes[0], nodes[n-1] = lower, upper
	return nodes, nil
}

// ExponentialMesh maps a uniform parameter u in [0,1] through
//
//	x(u) = lower + (upper-lower)(e^{ku}-1)/(e^k-1)
//
// Positive k concentrates nodes near lower, negative k near upper and k=0
// gives a uniform mesh. It is used for time axes so that the first steps
// after the initial condition are the finest.
func ExponentialMesh(lower, upper float64, n int, k float64) ([]float64, error) {
	if err := checkMeshBounds(lower, upper, n); err != nil {
		return nil, err
	}
	if math.IsNaN(k) || math.IsInf(k, 0) {
		return nil, errors.InvalidArgumentf("exponential mesh bunching must be finite, got %g", k)
	}
	if math.Abs(k) < uniformBunchingLimit {
		return UniformMesh(lower, upper, n)
	}

	nodes := make([]float64, n)
	span := upper - lower
	denom := math.Expm1(k)
	for i := range nodes {
		u := float64(i) / float64(n-1)
		nodes[i] = lower + span*math.Expm1(k*u)/denom
	}
	nodes[0], nodes[n-1] = lower, upper
	return nodes, checkIncreasing(nodes)
}

// HyperbolicMesh concentrates nodes around centre using a sinh transform:
//
//	x_i = centre + b·sinh(α + i·δ/(n-1)),  b = beta·(upper-lower)
//
// with α and δ chosen so the end points map to lower and upper. Smaller beta
// gives stronger bunching. It is used for space axes so that the grid is
// densest around the forward or strike.
func HyperbolicMesh(lower, upper float64, n int, beta, centre float64) ([]float64, error) {
	if err := checkMeshBounds(lower, upper, n); err != nil {
		return nil, err
	}
	if !(beta > 0) || math.IsInf(beta, 0) {
		return nil, errors.InvalidArgumentf("hyperbolic mesh bunching must be positive, got %g", beta)
	}
	if math.IsNaN(centre) || math.IsInf(centre, 0) {
		return nil, errors.InvalidArgumentf("hyperbolic mesh centre must be finite, got %g", centre)
	}

	b := beta * (upper - lower)
	alpha := math.Asinh((lower - centre) / b)
	delta := math.Asinh((upper-centre)/b) - alpha

	nodes := make([]float64, n)
	for i := range nodes {
		nodes[i] = centre + b*math.Sinh(alpha+float64(i)*delta/float64(n-1))
	}
	nodes[0], nodes[n-1] = lower, upper
	return nodes, checkIncreasing(nodes)
}

func checkMeshBounds(lower, upper float64, n int) error {
	if n < 2 {
		return errors.InvalidArgumentf("mesh needs at least 2 nodes, got %d", n)
	}
	if math.IsNaN(lower) || math.IsNaN(upper) || math.IsInf(lower, 0) || math.IsInf(upper, 0) {
		return errors.InvalidArgumentf("mesh bounds must be finite, got [%g, %g]", lower, upper)
	}
	if lower >= upper {
		return errors.InvalidArgumentf("mesh lower bound %g must be below upper bound %g", lower, upper)
	}
	return nil
}

// checkIncreasing guards against meshes whose spacing collapsed below the
// floating point resolution, which happens for extreme bunching.
func checkIncreasing(nodes []float64) error {
	for i := 1; i < len(nodes); i++ {
		if !(nodes[i] > nodes[i-1]) {
			return errors.InvalidArgumentf("mesh is not strictly increasing at node %d (%g <= %g); reduce the bunching",
				i, nodes[i], nodes[i-1])
		}
	}
	return nil
}
