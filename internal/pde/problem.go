package pde

import (
	"github.com/rzzdr/localvol-pde/pkg/utils/errors"
)

// Coefficient is a PDE coefficient as a function of time and space
type Coefficient func(t, x float64) float64

// Zero is the coefficient that vanishes everywhere
func Zero(float64, float64) float64 { return 0 }

// Direction tells whether a problem marches forward in calendar time or
// backward from an expiry
type Direction int

const (
	// Forward problems start at calendar time zero.
	Forward Direction = iota
	// Backward problems start at Expiry; solver time is time to expiry.
	Backward
)

// Problem is the one dimensional convection-diffusion-reaction problem
//
//	∂u/∂t = a(t,x)·∂²u/∂x² + b(t,x)·∂u/∂x + c(t,x)·u,  u(0,x) = Initial(x)
//
// in solver time t. Coefficients are functions of calendar time: a Backward
// problem evaluates them at Expiry-t, so the initial condition is the payoff
// at expiry. Problems are immutable and safe for concurrent solves.
type Problem struct {
	A, B, C   Coefficient
	Initial   func(x float64) float64
	Direction Direction
	Expiry    float64
}

// coefficients evaluates a, b and c at solver time t.
func (p *Problem) coefficients(t, x float64) (a, b, c float64) {
	ct := t
	if p.Direction == Backward {
		ct = p.Expiry - t
	}
	return p.A(ct, x), p.B(ct, x), p.C(ct, x)
}

func (p *Problem) validate() error {
	if p == nil {
		return errors.InvalidArgument("problem is nil")
	}
	if p.A == nil || p.B == nil || p.C == nil {
		return errors.InvalidArgument("problem coefficients a, b and c are required")
	}
	if p.Initial == nil {
		return errors.InvalidArgument("problem initial condition is required")
	}
	if p.Direction == Backward && !(p.Expiry > 0) {
		return errors.InvalidArgumentf("backward problem needs a positive expiry, got %g", p.Expiry)
	}
	return nil
}

// Problem2D is the two dimensional problem
//
//	∂u/∂t = a·u_xx + b·u_x + c·u + d·u_yy + f·u_y,  u(0,x,y) = Initial(x,y)
//
// The reaction term c is split evenly between the two ADI half steps.
type Problem2D struct {
	A, B, C, D, F Coefficient2D
	Initial       func(x, y float64) float64
}

// Coefficient2D is a PDE coefficient as a function of time and both space
// coordinates
type Coefficient2D func(t, x, y float64) float64

// Zero2D is the two dimensional coefficient that vanishes everywhere
func Zero2D(float64, float64, float64) float64 { return 0 }

func (p *Problem2D) validate() error {
	if p == nil {
		return errors.InvalidArgument("problem is nil")
	}
	if p.A == nil || p.B == nil || p.C == nil || p.D == nil || p.F == nil {
		return errors.InvalidArgument("problem coefficients a, b, c, d and f are required")
	}
	if p.Initial == nil {
		return errors.InvalidArgument("problem initial condition is required")
	}
	return nil
}
