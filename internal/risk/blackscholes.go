package risk

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/rzzdr/localvol-pde/pkg/models"
	"github.com/rzzdr/localvol-pde/pkg/utils/errors"
	"github.com/rzzdr/localvol-pde/pkg/utils/logger"
)

const (
	impliedVolMin           = 1e-8
	impliedVolMax           = 10.0
	impliedVolMaxIterations = 100
	impliedVolPriceTol      = 1e-14
	impliedVolBracketTol    = 1e-12
)

// BlackPricer prices European options on a forward with the Black formula.
// Prices are undiscounted, matching the PDE solutions they benchmark.
type BlackPricer struct {
	log *logger.Logger
}

// NewBlackPricer creates a new Black pricer
func NewBlackPricer() *BlackPricer {
	return &BlackPricer{
		log: logger.GetLogger("risk.black"),
	}
}

// Price returns the undiscounted option price
func (bp *BlackPricer) Price(forward, strike, expiry, vol float64, isCall bool) float64 {
	if strike <= 0 {
		if isCall {
			return forward
		}
		return 0
	}
	sd := vol * math.Sqrt(expiry)
	if !(sd > 0) {
		return intrinsic(forward, strike, isCall)
	}

	d1 := math.Log(forward/strike)/sd + sd/2
	d2 := d1 - sd
	if isCall {
		return forward*distuv.UnitNormal.CDF(d1) - strike*distuv.UnitNormal.CDF(d2)
	}
	return strike*distuv.UnitNormal.CDF(-d2) - forward*distuv.UnitNormal.CDF(-d1)
}

// Greeks returns price and the forward Greeks. Delta and gamma are taken
// with respect to the forward, vega, vanna and vomma with respect to the
// volatility.
func (bp *BlackPricer) Greeks(forward, strike, expiry, vol float64, isCall bool) models.BlackGreeks {
	greeks := models.BlackGreeks{Price: bp.Price(forward, strike, expiry, vol, isCall)}
	sd := vol * math.Sqrt(expiry)
	if !(sd > 0) || strike <= 0 || forward <= 0 {
		bp.log.Debugf("degenerate Greeks inputs: F=%g K=%g T=%g vol=%g", forward, strike, expiry, vol)
		return greeks
	}

	d1 := math.Log(forward/strike)/sd + sd/2
	d2 := d1 - sd
	pdf := distuv.UnitNormal.Prob(d1)

	greeks.Delta = distuv.UnitNormal.CDF(d1)
	if !isCall {
		greeks.Delta--
	}
	greeks.Gamma = pdf / (forward * sd)
	greeks.Vega = forward * pdf * math.Sqrt(expiry)
	greeks.Vanna = -pdf * d2 / vol
	greeks.Vomma = greeks.Vega * d1 * d2 / vol
	return greeks
}

// ImpliedVolatility inverts the Black formula with a safeguarded Newton
// iteration: Newton steps that leave the current bracket fall back to
// bisection. Prices outside the no-arbitrage bounds, or too close to them
// to carry volatility information, give an InversionFailure error.
func (bp *BlackPricer) ImpliedVolatility(price, forward, strike, expiry float64, isCall bool) (float64, error) {
	if !(forward > 0) || !(strike > 0) || !(expiry > 0) {
		return 0, errors.InversionFailure("implied volatility needs positive forward, strike and expiry")
	}

	// Invert calls only; put-call parity holds exactly for forward prices.
	call := price
	if !isCall {
		call = price + forward - strike
	}
	lower := math.Max(forward-strike, 0)
	tol := impliedVolPriceTol * forward
	if math.IsNaN(call) || call-lower <= tol || call >= forward {
		return 0, errors.InversionFailure("price violates the no-arbitrage bounds")
	}

	lo, hi := impliedVolMin, impliedVolMax
	if bp.Price(forward, strike, expiry, hi, true) < call {
		return 0, errors.InversionFailure("price requires a volatility above the search range")
	}

	sigma := math.Sqrt(2 * math.Abs(math.Log(forward/strike)) / expiry)
	sigma = math.Min(math.Max(sigma, 0.1), 1)
	sqrtT := math.Sqrt(expiry)

	for i := 0; i < impliedVolMaxIterations; i++ {
		diff := bp.Price(forward, strike, expiry, sigma, true) - call
		if math.Abs(diff) < tol {
			return sigma, nil
		}
		if diff > 0 {
			hi = sigma
		} else {
			lo = sigma
		}
		if hi-lo < impliedVolBracketTol {
			return (lo + hi) / 2, nil
		}

		sd := sigma * sqrtT
		vega := forward * distuv.UnitNormal.Prob(math.Log(forward/strike)/sd+sd/2) * sqrtT
		next := sigma - diff/vega
		if !(next > lo && next < hi) {
			next = (lo + hi) / 2
		}
		sigma = next
	}

	return 0, errors.InversionFailure("implied volatility search did not converge")
}

func intrinsic(forward, strike float64, isCall bool) float64 {
	if isCall {
		return math.Max(forward-strike, 0)
	}
	return math.Max(strike-forward, 0)
}
