package risk

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzzdr/localvol-pde/internal/market"
	"github.com/rzzdr/localvol-pde/internal/smile"
	"github.com/rzzdr/localvol-pde/pkg/models"
	"github.com/rzzdr/localvol-pde/pkg/utils/errors"
)

const flatVol = 0.2

func newCalculator(t *testing.T, cfg CalculatorConfig) *GreeksCalculator {
	t.Helper()
	gc, err := NewGreeksCalculator(cfg)
	require.NoError(t, err)
	return gc
}

func flatMarket(t *testing.T, rate float64) (market.ForwardCurve, market.LocalVolatilitySurface) {
	t.Helper()
	fwd, err := market.NewForwardCurve(100, rate)
	require.NoError(t, err)
	return fwd, market.FlatVolatility(flatVol)
}

func greek(t *testing.T, s *models.Sensitivities, name string) float64 {
	t.Helper()
	v, ok := s.Get(name)
	require.True(t, ok, "missing %s", name)
	return v
}

// cev is a local vol surface whose level falls with spot, so moving the
// forward changes the normalised forward PDE.
var cev = market.LocalVolatilityFunc(func(_, x float64) float64 {
	return flatVol * math.Sqrt(100/math.Max(x, 1))
})

func TestCalculatorDefaults(t *testing.T) {
	gc := newCalculator(t, CalculatorConfig{ForwardShift: -1})
	cfg := gc.Config()

	assert.Equal(t, 100, cfg.TimeNodes)
	assert.Equal(t, 100, cfg.SpaceNodes)
	assert.Equal(t, 5.0, cfg.TimeBunching)
	assert.Equal(t, 0.05, cfg.SpaceBunching)
	assert.Equal(t, 3.5, cfg.MaxMoneyness)
	assert.Equal(t, 0.55, cfg.Theta)
	assert.Equal(t, 5e-3, cfg.ForwardShift)
	assert.Equal(t, 1e-3, cfg.VolShift)
	assert.Equal(t, 1e-4, cfg.BucketVegaShift)
	assert.Equal(t, 4, cfg.Workers)

	assert.Zero(t, newCalculator(t, CalculatorConfig{}).Config().ForwardShift, "zero forward shift is kept")

	_, err := NewGreeksCalculator(CalculatorConfig{Theta: 1.5})
	assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidArgument))
}

func TestForwardSolveRecoversFlatVol(t *testing.T) {
	gc := newCalculator(t, CalculatorConfig{})
	fwd, lv := flatMarket(t, 0)

	for _, expiry := range []float64{0.5, 1, 2, 3, 5} {
		results, err := gc.solveForward(context.Background(), fwd, lv, expiry, true, []bump{{}})
		require.NoError(t, err)

		vol, err := gc.pricer.ImpliedVolatility(results[0].ValueAt(1), 1, 1, expiry, true)
		require.NoError(t, err)
		assert.InDelta(t, flatVol, vol, 1e-3, "expiry %g", expiry)
	}
}

func TestZeroForwardShiftIsIdentity(t *testing.T) {
	gc := newCalculator(t, CalculatorConfig{})
	fwd, err := market.NewForwardCurve(100, 0.02)
	require.NoError(t, err)

	g, err := gc.forwardGrid(1)
	require.NoError(t, err)

	base, err := forwardProblem(fwd, cev, true, gc.config.MaxMoneyness).solve(gc.solver, g)
	require.NoError(t, err)
	shifted, err := forwardProblem(fwd.WithFractionalShift(0), cev, true, gc.config.MaxMoneyness).solve(gc.solver, g)
	require.NoError(t, err)

	assert.Equal(t, base.FunctionValues(), shifted.FunctionValues())
}

func TestForwardDeltaGammaFlatVolMatchesBlack(t *testing.T) {
	gc := newCalculator(t, CalculatorConfig{ForwardShift: -1})
	fwd, lv := flatMarket(t, 0)

	rows, err := gc.ForwardDeltaGamma(context.Background(), fwd, lv, 1, true)
	require.NoError(t, err)
	require.Len(t, rows, gc.config.SpaceNodes-2)

	checked := 0
	for _, row := range rows {
		assert.Zero(t, row.SurfaceDelta, "flat vol has no surface delta at m=%g", row.Moneyness)
		assert.Zero(t, row.CrossGamma)
		assert.Zero(t, row.SurfaceGamma)
		assert.Equal(t, row.FixedSurfaceDelta, row.ModelDelta)

		if row.Moneyness < 0.8 || row.Moneyness > 1.25 {
			continue
		}
		black := gc.pricer.Greeks(100, row.Strike, 1, flatVol, true)
		assert.InDelta(t, black.Price, row.Price, 0.01, "price at m=%g", row.Moneyness)
		assert.InDelta(t, black.Delta, row.ModelDelta, 2e-3, "delta at m=%g", row.Moneyness)
		assert.InEpsilon(t, black.Gamma, row.ModelGamma, 0.01, "gamma at m=%g", row.Moneyness)
		assert.InDelta(t, flatVol, row.ImpliedVol, 1e-3)
		assert.InDelta(t, row.BlackDelta, row.ModelDelta, 5e-3)
		checked++
	}
	assert.Greater(t, checked, 10)
}

func TestForwardDeltaGammaPutCallParity(t *testing.T) {
	gc := newCalculator(t, CalculatorConfig{ForwardShift: -1})
	fwd, err := market.NewForwardCurve(100, 0.03)
	require.NoError(t, err)

	calls, err := gc.ForwardDeltaGamma(context.Background(), fwd, cev, 2, true)
	require.NoError(t, err)
	puts, err := gc.ForwardDeltaGamma(context.Background(), fwd, cev, 2, false)
	require.NoError(t, err)
	require.Len(t, puts, len(calls))

	f := fwd.Forward(2)
	for i := range calls {
		c, p := calls[i], puts[i]
		assert.InDelta(t, f-c.Strike, c.Price-p.Price, 1e-8, "parity at m=%g", c.Moneyness)
		assert.InDelta(t, 1, c.ModelDelta-p.ModelDelta, 1e-8)
		assert.InDelta(t, c.ModelGamma, p.ModelGamma, 1e-6)
	}
}

func TestModelDeltaMatchesRepricing(t *testing.T) {
	gc := newCalculator(t, CalculatorConfig{ForwardShift: -1})
	fwd, err := market.NewForwardCurve(100, 0)
	require.NoError(t, err)
	ctx := context.Background()
	const strike, h = 105.0, 0.02

	base, err := gc.Greeks(ctx, fwd, cev, 1, strike, true)
	require.NoError(t, err)
	up, err := gc.Greeks(ctx, fwd.WithFractionalShift(h), cev, 1, strike, true)
	require.NoError(t, err)
	down, err := gc.Greeks(ctx, fwd.WithFractionalShift(-h), cev, 1, strike, true)
	require.NoError(t, err)

	delta := (greek(t, up, models.GreekPrice) - greek(t, down, models.GreekPrice)) / (2 * 100 * h)
	assert.InDelta(t, delta, greek(t, base, models.GreekDelta), 5e-3)

	rows, err := gc.ForwardDeltaGamma(ctx, fwd, cev, 1, true)
	require.NoError(t, err)
	for _, row := range rows {
		assert.InDelta(t, row.FixedSurfaceDelta+100*row.SurfaceDelta, row.ModelDelta, 1e-12)
		if row.Moneyness > 0.9 && row.Moneyness < 1.1 {
			assert.NotZero(t, row.SurfaceDelta, "skewed surface moves with the forward")
		}
	}
}

func TestModelGammaMatchesRepricing(t *testing.T) {
	gc := newCalculator(t, CalculatorConfig{TimeNodes: 400, SpaceNodes: 800, ForwardShift: -1})
	fwd, err := market.NewForwardCurve(100, 0)
	require.NoError(t, err)
	ctx := context.Background()
	const h = 0.01

	for _, strike := range []float64{100, 115} {
		base, err := gc.Greeks(ctx, fwd, cev, 1, strike, true)
		require.NoError(t, err)
		up, err := gc.Greeks(ctx, fwd.WithFractionalShift(h), cev, 1, strike, true)
		require.NoError(t, err)
		down, err := gc.Greeks(ctx, fwd.WithFractionalShift(-h), cev, 1, strike, true)
		require.NoError(t, err)

		p, pUp, pDown := greek(t, base, models.GreekPrice), greek(t, up, models.GreekPrice), greek(t, down, models.GreekPrice)
		gamma := (pUp - 2*p + pDown) / ((100 * h) * (100 * h))
		assert.InEpsilon(t, gamma, greek(t, base, models.GreekGamma), 0.01, "gamma at K=%g", strike)
	}

	rows, err := gc.ForwardDeltaGamma(ctx, fwd, cev, 1, true)
	require.NoError(t, err)
	active := 0
	for _, row := range rows {
		if row.Moneyness > 0.95 && row.Moneyness < 1.05 && row.SurfaceGamma != 0 && row.CrossGamma != 0 {
			active++
		}
	}
	assert.Positive(t, active, "surface terms of gamma are live on a skewed surface")
}

func TestBackwardDeltaGammaMatchesBlack(t *testing.T) {
	gc := newCalculator(t, CalculatorConfig{})
	fwd, lv := flatMarket(t, 0.03)
	const expiry, strike = 1.0, 100.0
	growth := math.Exp(0.03 * expiry)

	rows, err := gc.BackwardDeltaGamma(context.Background(), fwd, lv, expiry, strike, true)
	require.NoError(t, err)
	require.Len(t, rows, gc.config.SpaceNodes-2)

	checked := 0
	for _, row := range rows {
		if row.Spot < 80 || row.Spot > 125 {
			continue
		}
		black := gc.pricer.Greeks(row.Spot*growth, strike, expiry, flatVol, true)
		assert.InDelta(t, black.Price, row.Price, 0.05, "price at spot %g", row.Spot)
		assert.InDelta(t, black.Delta*growth, row.Delta, 2e-3, "delta at spot %g", row.Spot)
		assert.InEpsilon(t, black.Gamma*growth*growth, row.Gamma, 0.02, "gamma at spot %g", row.Spot)
		assert.InDelta(t, flatVol, row.ImpliedVol, 2e-3)
		assert.InDelta(t, row.BlackDelta, row.Delta, 5e-3)
		checked++
	}
	assert.Greater(t, checked, 10)
}

func TestVegaVannaVommaFlatVol(t *testing.T) {
	fwd, lv := flatMarket(t, 0)
	const expiry, strike = 1.0, 120.0
	black := NewBlackPricer().Greeks(100, strike, expiry, flatVol, true)

	gc := newCalculator(t, CalculatorConfig{ForwardShift: -1})
	vs, err := gc.VegaVannaVomma(context.Background(), fwd, lv, expiry, strike, true)
	require.NoError(t, err)
	assert.Equal(t, 7, vs.Solves)
	assert.InEpsilon(t, black.Vega, vs.Vega, 0.01)
	assert.InEpsilon(t, black.Vanna, vs.Vanna, 0.02)
	assert.InEpsilon(t, black.Vomma, vs.Vomma, 0.02)

	// Flat vol has no surface delta, so the three-solve variant agrees.
	fixed := newCalculator(t, CalculatorConfig{})
	vs3, err := fixed.VegaVannaVomma(context.Background(), fwd, lv, expiry, strike, true)
	require.NoError(t, err)
	assert.Equal(t, 3, vs3.Solves)
	assert.InDelta(t, vs.Vega, vs3.Vega, 1e-12)
	assert.InDelta(t, vs.Vanna, vs3.Vanna, 1e-9)
	assert.InDelta(t, vs.Vomma, vs3.Vomma, 1e-9)
}

func TestGreekErrorsTightenWithShift(t *testing.T) {
	fwd, lv := flatMarket(t, 0)
	const expiry, strike = 1.0, 120.0
	black := NewBlackPricer().Greeks(100, strike, expiry, flatVol, true)

	type greekErrors struct{ delta, gamma, vega, vanna, vomma float64 }
	shifts := []float64{1e-2, 1e-3}
	errs := make([]greekErrors, len(shifts))
	for i, shift := range shifts {
		gc := newCalculator(t, CalculatorConfig{VolShift: shift, ForwardShift: shift})
		s, err := gc.Greeks(context.Background(), fwd, lv, expiry, strike, true)
		require.NoError(t, err)

		errs[i] = greekErrors{
			delta: math.Abs(greek(t, s, models.GreekDelta) - black.Delta),
			gamma: math.Abs(greek(t, s, models.GreekGamma) - black.Gamma),
			vega:  math.Abs(greek(t, s, models.GreekVega) - black.Vega),
			vanna: math.Abs(greek(t, s, models.GreekVanna) - black.Vanna),
			vomma: math.Abs(greek(t, s, models.GreekVomma) - black.Vomma),
		}
	}

	wide, narrow := errs[0], errs[1]
	assert.Less(t, narrow.vega, wide.vega, "errors %+v", errs)
	assert.Less(t, narrow.vomma, wide.vomma, "errors %+v", errs)
	// A flat surface does not move with the forward, so the forward shift
	// cannot change delta or gamma.
	assert.InDelta(t, wide.delta, narrow.delta, 1e-12)
	assert.InDelta(t, wide.gamma, narrow.gamma, 1e-12)
	assert.InDelta(t, 0, narrow.vanna, 0.02*math.Abs(black.Vanna), "errors %+v", errs)
}

func TestGreeksBundle(t *testing.T) {
	gc := newCalculator(t, CalculatorConfig{ForwardShift: -1})
	fwd, err := market.NewForwardCurve(100, 0)
	require.NoError(t, err)
	ctx := context.Background()

	s, err := gc.Greeks(ctx, fwd, cev, 1, 100, true)
	require.NoError(t, err)
	assert.NotEmpty(t, s.RunID)
	assert.Equal(t, 100.0, s.Forward)
	assert.Equal(t, []string{
		models.GreekDelta, models.GreekGamma, models.GreekImpliedVol, models.GreekPrice,
		models.GreekVanna, models.GreekVega, models.GreekVomma,
	}, s.Names())
	assert.Nil(t, s.BucketedVega())

	vs, err := gc.VegaVannaVomma(ctx, fwd, cev, 1, 100, true)
	require.NoError(t, err)
	assert.Equal(t, vs.Vega, greek(t, s, models.GreekVega), "same bumps give the same solves")
	assert.Equal(t, vs.Vanna, greek(t, s, models.GreekVanna))
	assert.Equal(t, vs.Vomma, greek(t, s, models.GreekVomma))

	rows, err := gc.ForwardDeltaGamma(ctx, fwd, cev, 1, true)
	require.NoError(t, err)
	for _, row := range rows {
		if row.Moneyness > 0.9 && row.Moneyness < 1.1 {
			// Near the money the implied vol tracks the local vol around the forward
			assert.InDelta(t, flatVol, row.ImpliedVol, 0.02)
		}
	}
	assert.Greater(t, greek(t, s, models.GreekPrice), 0.0)
	assert.Greater(t, greek(t, s, models.GreekGamma), 0.0)
	assert.Greater(t, greek(t, s, models.GreekVega), 0.0)
}

func TestGreeksWithBucketedVega(t *testing.T) {
	gc := newCalculator(t, CalculatorConfig{})
	fwd, lv := flatMarket(t, 0)
	fitter := flatFitter(t)
	ctx := context.Background()

	s, err := gc.GreeksWithBucketedVega(ctx, fwd, lv, fitter, 1, 100, true)
	require.NoError(t, err)
	plain, err := gc.Greeks(ctx, fwd, lv, 1, 100, true)
	require.NoError(t, err)
	assert.Equal(t, plain.Names(), s.Names())
	assert.Equal(t, greek(t, plain, models.GreekPrice), greek(t, s, models.GreekPrice))

	bv := s.BucketedVega()
	require.NotNil(t, bv)
	assert.Equal(t, fitter.Expiries(), bv.Expiries)
	assert.Equal(t, fitter.Strikes(), bv.Strikes)
	assertBucketConcentrated(t, bv, 1, 2, 0.7, 1.3)

	alone, err := gc.BucketedVega(ctx, fitter, fwd, 1, 100, true)
	require.NoError(t, err)
	assert.Equal(t, alone.Vega, bv.Vega)

	_, err = gc.GreeksWithBucketedVega(ctx, fwd, lv, nil, 1, 100, true)
	assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidArgument), "got %v", err)
}

func TestGreeksRejectsBadInputs(t *testing.T) {
	gc := newCalculator(t, CalculatorConfig{})
	fwd, lv := flatMarket(t, 0)
	fitter := flatFitter(t)
	ctx := context.Background()

	cases := map[string]func() error{
		"nil curve": func() error {
			_, err := gc.Greeks(ctx, nil, lv, 1, 100, true)
			return err
		},
		"nil surface": func() error {
			_, err := gc.ForwardDeltaGamma(ctx, fwd, nil, 1, true)
			return err
		},
		"zero expiry": func() error {
			_, err := gc.VegaVannaVomma(ctx, fwd, lv, 0, 100, true)
			return err
		},
		"infinite expiry": func() error {
			_, err := gc.ImpliedVolSurface(ctx, fwd, lv, lv, math.Inf(1), true)
			return err
		},
		"negative strike": func() error {
			_, err := gc.BackwardDeltaGamma(ctx, fwd, lv, 1, -5, true)
			return err
		},
		"missing market surface": func() error {
			_, err := gc.ImpliedVolSurface(ctx, fwd, lv, nil, 1, true)
			return err
		},
		"missing fitter": func() error {
			_, err := gc.BucketedVega(ctx, nil, fwd, 1, 100, true)
			return err
		},
		"bucketed negative expiry": func() error {
			_, err := gc.BucketedVegaBackward(ctx, fitter, fwd, -1, 100, true)
			return err
		},
	}
	for name, run := range cases {
		t.Run(name, func(t *testing.T) {
			err := run()
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidArgument), "got %v", err)
		})
	}
}

func TestCancelledContext(t *testing.T) {
	gc := newCalculator(t, CalculatorConfig{})
	fwd, lv := flatMarket(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := gc.ForwardDeltaGamma(ctx, fwd, lv, 1, true)
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
	_, err = gc.BackwardDeltaGamma(ctx, fwd, lv, 1, 100, true)
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
}

func TestImpliedVolSurfaceFlatVol(t *testing.T) {
	gc := newCalculator(t, CalculatorConfig{})
	fwd, lv := flatMarket(t, 0.02)

	out, err := gc.ImpliedVolSurface(context.Background(), fwd, lv, market.FlatVolatility(flatVol), 2, true)
	require.NoError(t, err)
	require.Len(t, out.Times, gc.config.TimeNodes-1)
	require.Len(t, out.Moneyness, gc.config.SpaceNodes-2)
	assert.InDelta(t, 2, out.Times[len(out.Times)-1], 1e-12)

	skipped := 0
	for j, tm := range out.Times {
		require.Len(t, out.ModelVols[j], len(out.Moneyness))
		for i, m := range out.Moneyness {
			if math.IsNaN(out.ModelVols[j][i]) {
				skipped++
				assert.True(t, math.IsNaN(out.Errors[j][i]))
				continue
			}
			assert.Equal(t, flatVol, out.MarketVols[j][i])
			if tm >= 0.25 && m > 0.8 && m < 1.25 {
				assert.InDelta(t, 0, out.Errors[j][i], 2e-3, "t=%g m=%g", tm, m)
			}
		}
	}
	assert.Equal(t, out.Skipped, skipped)
}

func flatFitter(t *testing.T) *smile.GridFitter {
	t.Helper()
	expiries := []float64{0.5, 1, 2}
	strikes := []float64{80, 90, 100, 110, 120}
	vols := make([][]float64, len(expiries))
	for i := range vols {
		vols[i] = []float64{flatVol, flatVol, flatVol, flatVol, flatVol}
	}
	f, err := smile.NewGridFitter(expiries, strikes, vols)
	require.NoError(t, err)
	return f
}

func assertBucketConcentrated(t *testing.T, bv *models.BucketedVega, expiryIndex, strikeIndex int, lo, hi float64) {
	t.Helper()
	require.Len(t, bv.Vega, len(bv.Expiries))

	peak := bv.At(expiryIndex, strikeIndex)
	assert.GreaterOrEqual(t, peak, lo)
	assert.LessOrEqual(t, peak, hi)

	sum := 0.0
	for i := range bv.Expiries {
		require.Len(t, bv.Vega[i], len(bv.Strikes))
		for j := range bv.Strikes {
			v := bv.At(i, j)
			require.False(t, math.IsNaN(v), "bucket (%d,%d)", i, j)
			sum += v
			if i != expiryIndex || j != strikeIndex {
				assert.Less(t, math.Abs(v), 0.3, "bucket (%d,%d)", i, j)
			}
		}
	}
	assert.InDelta(t, 1, sum, 0.3, "a parallel shift of every quote moves the vol one for one")
}

func TestBucketedVegaConcentratesOnQuote(t *testing.T) {
	gc := newCalculator(t, CalculatorConfig{})
	fwd, err := market.NewForwardCurve(100, 0)
	require.NoError(t, err)

	bv, err := gc.BucketedVega(context.Background(), flatFitter(t), fwd, 1, 100, true)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 1, 2}, bv.Expiries)
	assert.Equal(t, []float64{80, 90, 100, 110, 120}, bv.Strikes)
	assertBucketConcentrated(t, bv, 1, 2, 0.7, 1.3)

	for j := range bv.Strikes {
		assert.InDelta(t, 0, bv.At(2, j), 0.1, "later expiries do not affect a 1y option")
	}
}

func TestBucketedVegaBackwardConcentratesOnQuote(t *testing.T) {
	gc := newCalculator(t, CalculatorConfig{})
	fwd, err := market.NewForwardCurve(100, 0)
	require.NoError(t, err)

	bv, err := gc.BucketedVegaBackward(context.Background(), flatFitter(t), fwd, 1, 100, false)
	require.NoError(t, err)
	assertBucketConcentrated(t, bv, 1, 2, 0.6, 1.4)
}
