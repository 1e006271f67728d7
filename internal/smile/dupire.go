package smile

import (
	"math"

	"github.com/rzzdr/localvol-pde/internal/market"
)

const (
	dupireTimeStep   = 1e-4
	dupireLogStep    = 1e-3
	dupireMinTime    = 1e-3
	minLocalVariance = 1e-8
)

// DupireSurface is the local volatility implied by a Black surface and a
// forward curve. It evaluates Gatheral's form of the Dupire formula in
// total implied variance w(y, T) with y = ln(K/F(T)):
//
//	σ²(T, K) = ∂w/∂T / (1 - (y/w)∂w/∂y + ¼(-¼ - 1/w + y²/w²)(∂w/∂y)² + ½∂²w/∂y²)
//
// Derivatives are taken by finite differences on the Black surface, so
// evaluation costs a handful of surface lookups. Where the surface admits
// arbitrage the local variance is floored instead of going negative.
type DupireSurface struct {
	implied market.BlackVolatilitySurface
	fwd     market.ForwardCurve
}

// Dupire builds the local volatility surface of an implied surface
func Dupire(implied market.BlackVolatilitySurface, fwd market.ForwardCurve) *DupireSurface {
	return &DupireSurface{implied: implied, fwd: fwd}
}

func (d *DupireSurface) Volatility(t, x float64) float64 {
	t = math.Max(t, dupireMinTime)
	if !(x > 0) {
		return d.implied.Volatility(t, x)
	}
	y := math.Log(x / d.fwd.Forward(t))

	var dwdt float64
	if t > dupireTimeStep {
		dwdt = (d.totalVariance(y, t+dupireTimeStep) - d.totalVariance(y, t-dupireTimeStep)) / (2 * dupireTimeStep)
	} else {
		dwdt = (d.totalVariance(y, t+dupireTimeStep) - d.totalVariance(y, t)) / dupireTimeStep
	}

	w := d.totalVariance(y, t)
	wUp := d.totalVariance(y+dupireLogStep, t)
	wDown := d.totalVariance(y-dupireLogStep, t)
	dwdy := (wUp - wDown) / (2 * dupireLogStep)
	d2wdy2 := (wUp - 2*w + wDown) / (dupireLogStep * dupireLogStep)

	den := 1 - y/w*dwdy + 0.25*(-0.25-1/w+y*y/(w*w))*dwdy*dwdy + 0.5*d2wdy2
	if !(dwdt > 0) || !(den > 0) {
		return math.Sqrt(minLocalVariance)
	}
	return math.Sqrt(math.Max(dwdt/den, minLocalVariance))
}

func (d *DupireSurface) totalVariance(y, t float64) float64 {
	v := d.implied.Volatility(t, d.fwd.Forward(t)*math.Exp(y))
	return v * v * t
}
