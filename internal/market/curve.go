package market

import (
	"math"

	"gonum.org/v1/gonum/interp"

	"github.com/rzzdr/localvol-pde/pkg/utils/errors"
)

// driftStep is the time step of the finite difference behind Drift.
const driftStep = 1e-4

// ForwardCurve gives the forward price of the underlying for delivery at
// time t. Curves are immutable; shifting returns a new curve.
type ForwardCurve interface {
	Forward(t float64) float64
	// WithFractionalShift returns the curve scaled by 1+shift at every
	// maturity.
	WithFractionalShift(shift float64) ForwardCurve
}

// ConstantRateCurve is F(t) = spot·e^{rate·t}
type ConstantRateCurve struct {
	spot float64
	rate float64
}

// NewForwardCurve creates a curve growing at a constant continuously
// compounded rate
func NewForwardCurve(spot, rate float64) (*ConstantRateCurve, error) {
	if !(spot > 0) || math.IsInf(spot, 0) {
		return nil, errors.InvalidArgumentf("spot must be positive and finite, got %g", spot)
	}
	if math.IsNaN(rate) || math.IsInf(rate, 0) {
		return nil, errors.InvalidArgumentf("rate must be finite, got %g", rate)
	}
	return &ConstantRateCurve{spot: spot, rate: rate}, nil
}

func (c *ConstantRateCurve) Forward(t float64) float64 {
	return c.spot * math.Exp(c.rate*t)
}

func (c *ConstantRateCurve) WithFractionalShift(shift float64) ForwardCurve {
	return &scaledCurve{base: c, scale: 1 + shift}
}

// InterpolatedCurve interpolates log forwards linearly between pillar
// maturities and holds them flat outside the pillars.
type InterpolatedCurve struct {
	times   []float64
	logFwds []float64
	pl      interp.PiecewiseLinear
}

// NewInterpolatedCurve builds a curve from pillar maturities and forwards
func NewInterpolatedCurve(times, forwards []float64) (*InterpolatedCurve, error) {
	if len(times) != len(forwards) {
		return nil, errors.InvalidArgumentf("curve has %d times but %d forwards", len(times), len(forwards))
	}
	if len(times) < 2 {
		return nil, errors.InvalidArgumentf("curve needs at least 2 pillars, got %d", len(times))
	}
	logFwds := make([]float64, len(forwards))
	for i, f := range forwards {
		if !(f > 0) || math.IsInf(f, 0) {
			return nil, errors.InvalidArgumentf("forward %d must be positive and finite, got %g", i, f)
		}
		if i > 0 && !(times[i] > times[i-1]) {
			return nil, errors.InvalidArgumentf("curve times must be strictly increasing (pillar %d)", i)
		}
		logFwds[i] = math.Log(f)
	}

	c := &InterpolatedCurve{
		times:   append([]float64(nil), times...),
		logFwds: logFwds,
	}
	if err := c.pl.Fit(c.times, c.logFwds); err != nil {
		return nil, errors.InvalidArgumentf("fit forward curve: %v", err)
	}
	return c, nil
}

func (c *InterpolatedCurve) Forward(t float64) float64 {
	n := len(c.times)
	switch {
	case t <= c.times[0]:
		return math.Exp(c.logFwds[0])
	case t >= c.times[n-1]:
		return math.Exp(c.logFwds[n-1])
	}
	return math.Exp(c.pl.Predict(t))
}

func (c *InterpolatedCurve) WithFractionalShift(shift float64) ForwardCurve {
	return &scaledCurve{base: c, scale: 1 + shift}
}

// scaledCurve multiplies every forward of its base curve by scale. A zero
// shift gives scale 1 and reproduces the base forwards exactly.
type scaledCurve struct {
	base  ForwardCurve
	scale float64
}

func (c *scaledCurve) Forward(t float64) float64 {
	return c.scale * c.base.Forward(t)
}

func (c *scaledCurve) WithFractionalShift(shift float64) ForwardCurve {
	return &scaledCurve{base: c.base, scale: c.scale * (1 + shift)}
}

// Drift returns d ln F/dt at t, the growth rate a spot process needs to
// stay a martingale under the forward measure. A one sided difference is
// used at t=0.
func Drift(c ForwardCurve, t float64) float64 {
	lo := math.Max(t-driftStep, 0)
	hi := t + driftStep
	return (math.Log(c.Forward(hi)) - math.Log(c.Forward(lo))) / (hi - lo)
}
