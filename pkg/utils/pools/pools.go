package pools

import (
	"sync"
)

// Float64SlicePool is a pool of float64 scratch vectors. Vectors handed out
// by Get are zeroed and have exactly the requested length.
type Float64SlicePool struct {
	pool sync.Pool
	size int
}

// NewFloat64SlicePool creates a new Float64SlicePool whose fresh vectors have
// at least the given capacity
func NewFloat64SlicePool(size int) *Float64SlicePool {
	return &Float64SlicePool{
		pool: sync.Pool{
			New: func() interface{} {
				s := make([]float64, 0, size)
				return &s
			},
		},
		size: size,
	}
}

// Get retrieves a zeroed vector of length n from the pool
func (p *Float64SlicePool) Get(n int) []float64 {
	sp := p.pool.Get().(*[]float64)
	s := *sp
	if cap(s) < n {
		s = make([]float64, n)
		return s
	}
	s = s[:n]
	for i := range s {
		s[i] = 0
	}
	return s
}

// Put returns vectors to the pool. Vectors smaller than the pool size are
// left to the GC.
func (p *Float64SlicePool) Put(vectors ...[]float64) {
	for _, v := range vectors {
		if cap(v) < p.size {
			continue
		}
		v = v[:0]
		p.pool.Put(&v)
	}
}
