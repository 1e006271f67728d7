// Package smile turns quoted implied volatilities into the surfaces the PDE
// engine consumes: an interpolated Black surface built from a grid of
// quotes, and its Dupire local volatility.
package smile

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/interp"

	"github.com/rzzdr/localvol-pde/internal/market"
	"github.com/rzzdr/localvol-pde/pkg/utils/errors"
)

// Fitter turns market quotes into a Black volatility surface. Fitters are
// immutable: bumping a quote returns a new fitter.
type Fitter interface {
	Expiries() []float64
	Strikes() []float64
	WithBumpedPoint(expiryIndex, strikeIndex int, shift float64) (Fitter, error)
	ImpliedVolatilitySurface() (market.BlackVolatilitySurface, error)
}

// GridFitter holds implied volatility quotes on an expiry × strike grid
type GridFitter struct {
	expiries []float64
	strikes  []float64
	vols     [][]float64
}

// NewGridFitter validates and copies the quotes. vols is indexed
// [expiry][strike].
func NewGridFitter(expiries, strikes []float64, vols [][]float64) (*GridFitter, error) {
	if len(expiries) == 0 {
		return nil, errors.InvalidArgument("fitter needs at least one expiry")
	}
	if len(strikes) < 3 {
		return nil, errors.InvalidArgumentf("fitter needs at least 3 strikes, got %d", len(strikes))
	}
	if len(vols) != len(expiries) {
		return nil, errors.InvalidArgumentf("fitter has %d expiries but %d smiles", len(expiries), len(vols))
	}
	for i, t := range expiries {
		if !(t > 0) || (i > 0 && !(t > expiries[i-1])) {
			return nil, errors.InvalidArgumentf("expiries must be positive and strictly increasing (expiry %d: %g)", i, t)
		}
	}
	for j, k := range strikes {
		if !(k > 0) || (j > 0 && !(k > strikes[j-1])) {
			return nil, errors.InvalidArgumentf("strikes must be positive and strictly increasing (strike %d: %g)", j, k)
		}
	}

	f := &GridFitter{
		expiries: append([]float64(nil), expiries...),
		strikes:  append([]float64(nil), strikes...),
		vols:     make([][]float64, len(vols)),
	}
	for i, smile := range vols {
		if len(smile) != len(strikes) {
			return nil, errors.InvalidArgumentf("smile %d has %d vols for %d strikes", i, len(smile), len(strikes))
		}
		for j, v := range smile {
			if !(v > 0) || math.IsInf(v, 0) {
				return nil, errors.InvalidArgumentf("vol (%d,%d) must be positive and finite, got %g", i, j, v)
			}
		}
		f.vols[i] = append([]float64(nil), smile...)
	}
	return f, nil
}

func (f *GridFitter) Expiries() []float64 { return append([]float64(nil), f.expiries...) }

func (f *GridFitter) Strikes() []float64 { return append([]float64(nil), f.strikes...) }

// Vol returns the quote at (expiryIndex, strikeIndex)
func (f *GridFitter) Vol(expiryIndex, strikeIndex int) float64 {
	return f.vols[expiryIndex][strikeIndex]
}

// WithBumpedPoint returns a copy of the fitter with one quote moved by an
// additive shift
func (f *GridFitter) WithBumpedPoint(expiryIndex, strikeIndex int, shift float64) (Fitter, error) {
	if expiryIndex < 0 || expiryIndex >= len(f.expiries) || strikeIndex < 0 || strikeIndex >= len(f.strikes) {
		return nil, errors.InvalidArgumentf("bucket (%d,%d) outside the %dx%d quote grid",
			expiryIndex, strikeIndex, len(f.expiries), len(f.strikes))
	}
	vols := make([][]float64, len(f.vols))
	for i, smile := range f.vols {
		vols[i] = append([]float64(nil), smile...)
	}
	vols[expiryIndex][strikeIndex] += shift
	return NewGridFitter(f.expiries, f.strikes, vols)
}

// ImpliedVolatilitySurface fits an Akima spline through every smile
func (f *GridFitter) ImpliedVolatilitySurface() (market.BlackVolatilitySurface, error) {
	s := &SplineSurface{
		expiries: f.expiries,
		kMin:     f.strikes[0],
		kMax:     f.strikes[len(f.strikes)-1],
		smiles:   make([]interp.AkimaSpline, len(f.expiries)),
	}
	for i := range s.smiles {
		if err := s.smiles[i].Fit(f.strikes, f.vols[i]); err != nil {
			return nil, errors.InvalidArgumentf("fit smile %d: %v", i, err)
		}
	}
	return s, nil
}

// SplineSurface is a Black surface interpolated with an Akima spline in
// strike and linearly in total variance between expiries. Strikes outside
// the quoted range take the edge vol; expiries outside the quoted range
// take the nearest smile.
type SplineSurface struct {
	expiries   []float64
	kMin, kMax float64
	smiles     []interp.AkimaSpline
}

func (s *SplineSurface) Volatility(t, k float64) float64 {
	k = math.Min(math.Max(k, s.kMin), s.kMax)
	n := len(s.expiries)
	if n == 1 || t <= s.expiries[0] {
		return s.smiles[0].Predict(k)
	}
	if t >= s.expiries[n-1] {
		return s.smiles[n-1].Predict(k)
	}

	i := sort.SearchFloat64s(s.expiries, t)
	t0, t1 := s.expiries[i-1], s.expiries[i]
	v0, v1 := s.smiles[i-1].Predict(k), s.smiles[i].Predict(k)
	w0, w1 := v0*v0*t0, v1*v1*t1
	w := w0 + (w1-w0)*(t-t0)/(t1-t0)
	return math.Sqrt(math.Max(w, 0) / t)
}
