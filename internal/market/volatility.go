package market

import (
	"github.com/rzzdr/localvol-pde/pkg/utils/errors"
)

// LocalVolatilitySurface is the instantaneous volatility σ(t, x) of the
// underlying at calendar time t and price level x
type LocalVolatilitySurface interface {
	Volatility(t, x float64) float64
}

// BlackVolatilitySurface is the implied Black volatility for expiry t and
// strike k
type BlackVolatilitySurface interface {
	Volatility(t, k float64) float64
}

// FlatVolatility is a constant volatility. It serves both as a local and as
// a Black surface, and the two coincide.
type FlatVolatility float64

func (v FlatVolatility) Volatility(float64, float64) float64 { return float64(v) }

// LocalVolatilityFunc adapts a plain function to LocalVolatilitySurface
type LocalVolatilityFunc func(t, x float64) float64

func (f LocalVolatilityFunc) Volatility(t, x float64) float64 { return f(t, x) }

// ShiftType tells how a shifted surface applies its bump
type ShiftType int

const (
	// Additive adds the shift to every volatility.
	Additive ShiftType = iota
	// Multiplicative scales every volatility by 1+shift.
	Multiplicative
)

func (s ShiftType) String() string {
	switch s {
	case Additive:
		return "additive"
	case Multiplicative:
		return "multiplicative"
	default:
		return "unknown"
	}
}

// ShiftedLocalVolatility is a parallel bump of a base surface
type ShiftedLocalVolatility struct {
	base  LocalVolatilitySurface
	shift float64
	kind  ShiftType
}

// NewShiftedLocalVolatility wraps base with a parallel bump
func NewShiftedLocalVolatility(base LocalVolatilitySurface, shift float64, kind ShiftType) (*ShiftedLocalVolatility, error) {
	if base == nil {
		return nil, errors.InvalidArgument("base surface is nil")
	}
	if kind != Additive && kind != Multiplicative {
		return nil, errors.InvalidArgumentf("unknown shift type %d", kind)
	}
	return &ShiftedLocalVolatility{base: base, shift: shift, kind: kind}, nil
}

func (s *ShiftedLocalVolatility) Volatility(t, x float64) float64 {
	v := s.base.Volatility(t, x)
	if s.kind == Multiplicative {
		return v * (1 + s.shift)
	}
	return v + s.shift
}
