package pde

// threePoint holds the finite difference weights of the first and second
// derivative at a node from its two neighbours, on a possibly non-uniform
// mesh. Weights are ordered (i-1, i, i+1).
type threePoint struct {
	d1 [3]float64
	d2 [3]float64
}

// interiorStencils returns the weights for every node; entries 0 and n-1
// are left zero since edges are handled by boundary conditions.
func interiorStencils(nodes []float64) []threePoint {
	st := make([]threePoint, len(nodes))
	for i := 1; i < len(nodes)-1; i++ {
		st[i] = centralWeights(nodes[i]-nodes[i-1], nodes[i+1]-nodes[i])
	}
	return st
}

// centralWeights builds the weights from the back spacing h1 and the
// forward spacing h2. Both are exact for quadratics.
func centralWeights(h1, h2 float64) threePoint {
	return threePoint{
		d1: [3]float64{
			-h2 / (h1 * (h1 + h2)),
			(h2 - h1) / (h1 * h2),
			h1 / (h2 * (h1 + h2)),
		},
		d2: [3]float64{
			2 / (h1 * (h1 + h2)),
			-2 / (h1 * h2),
			2 / (h2 * (h1 + h2)),
		},
	}
}

// operatorRow returns the row of L = a·∂xx + b·∂x + c at one node.
func (w threePoint) operatorRow(a, b, c float64) (lower, diag, upper float64) {
	lower = a*w.d2[0] + b*w.d1[0]
	diag = a*w.d2[1] + b*w.d1[1] + c
	upper = a*w.d2[2] + b*w.d1[2]
	return lower, diag, upper
}

// apply evaluates L·u at node i.
func (w threePoint) apply(u []float64, i int, a, b, c float64) float64 {
	l, d, r := w.operatorRow(a, b, c)
	return l*u[i-1] + d*u[i] + r*u[i+1]
}
