package pde

import (
	"math"

	"github.com/rzzdr/localvol-pde/pkg/utils/errors"
)

// levelTolerance is the relative mismatch allowed between a boundary
// condition level and the mesh edge it is attached to.
const levelTolerance = 1e-9

// Grid1D holds the time and space nodes of a one dimensional solve. Its
// slices are private copies and never change after construction.
type Grid1D struct {
	times  []float64
	spaces []float64
}

// NewGrid1D validates and copies the nodes
func NewGrid1D(times, spaces []float64) (*Grid1D, error) {
	if len(times) < 2 {
		return nil, errors.InvalidArgumentf("grid needs at least 2 time nodes, got %d", len(times))
	}
	if len(spaces) < 3 {
		return nil, errors.InvalidArgumentf("grid needs at least 3 space nodes, got %d", len(spaces))
	}
	if err := strictlyIncreasing("time", times); err != nil {
		return nil, err
	}
	if err := strictlyIncreasing("space", spaces); err != nil {
		return nil, err
	}
	return &Grid1D{
		times:  append([]float64(nil), times...),
		spaces: append([]float64(nil), spaces...),
	}, nil
}

// NumTimeNodes returns the number of time nodes
func (g *Grid1D) NumTimeNodes() int { return len(g.times) }

// NumSpaceNodes returns the number of space nodes
func (g *Grid1D) NumSpaceNodes() int { return len(g.spaces) }

// TimeNode returns time node i
func (g *Grid1D) TimeNode(i int) float64 { return g.times[i] }

// SpaceNode returns space node i
func (g *Grid1D) SpaceNode(i int) float64 { return g.spaces[i] }

// Grid2D holds the time and the two space axes of a two dimensional solve
type Grid2D struct {
	times []float64
	xs    []float64
	ys    []float64
}

// NewGrid2D validates and copies the nodes
func NewGrid2D(times, xs, ys []float64) (*Grid2D, error) {
	if len(times) < 2 {
		return nil, errors.InvalidArgumentf("grid needs at least 2 time nodes, got %d", len(times))
	}
	if len(xs) < 3 || len(ys) < 3 {
		return nil, errors.InvalidArgumentf("grid needs at least 3 nodes per space axis, got %dx%d", len(xs), len(ys))
	}
	if err := strictlyIncreasing("time", times); err != nil {
		return nil, err
	}
	if err := strictlyIncreasing("x", xs); err != nil {
		return nil, err
	}
	if err := strictlyIncreasing("y", ys); err != nil {
		return nil, err
	}
	return &Grid2D{
		times: append([]float64(nil), times...),
		xs:    append([]float64(nil), xs...),
		ys:    append([]float64(nil), ys...),
	}, nil
}

// NumTimeNodes returns the number of time nodes
func (g *Grid2D) NumTimeNodes() int { return len(g.times) }

// NumXNodes returns the number of x nodes
func (g *Grid2D) NumXNodes() int { return len(g.xs) }

// NumYNodes returns the number of y nodes
func (g *Grid2D) NumYNodes() int { return len(g.ys) }

func strictlyIncreasing(axis string, nodes []float64) error {
	for i, v := range nodes {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.InvalidArgumentf("%s node %d is not finite", axis, i)
		}
		if i > 0 && !(v > nodes[i-1]) {
			return errors.InvalidArgumentf("%s nodes must be strictly increasing (node %d: %g <= %g)", axis, i, v, nodes[i-1])
		}
	}
	return nil
}

// checkLevels verifies that a pair of boundary conditions sits on the edges
// of the given axis.
func checkLevels(axis string, nodes []float64, lower, upper BoundaryCondition) error {
	if lower == nil || upper == nil {
		return errors.InvalidArgumentf("%s axis needs both boundary conditions", axis)
	}
	for _, edge := range []struct {
		bc    BoundaryCondition
		level float64
		name  string
	}{
		{lower, nodes[0], "lower"},
		{upper, nodes[len(nodes)-1], "upper"},
	} {
		tol := levelTolerance * math.Max(1, math.Abs(edge.level))
		if math.Abs(edge.bc.Level()-edge.level) > tol {
			return errors.InvalidArgumentf("%s %s boundary level %g does not match mesh edge %g",
				axis, edge.name, edge.bc.Level(), edge.level)
		}
		if w := len(edge.bc.LeftStencil()); w == 0 || w > 3 || w >= len(nodes) {
			return errors.InvalidArgumentf("%s %s boundary stencil width %d is unsupported", axis, edge.name, w)
		}
		if edge.bc.LeftStencil()[edgeIndex(len(edge.bc.LeftStencil()), edge.name == "upper")] == 0 {
			return errors.InvalidArgumentf("%s %s boundary stencil does not involve the edge node", axis, edge.name)
		}
	}
	return nil
}

// edgeIndex is the position of the edge node within a stencil.
func edgeIndex(width int, upper bool) int {
	if upper {
		return width - 1
	}
	return 0
}
