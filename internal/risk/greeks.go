package risk

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rzzdr/localvol-pde/internal/market"
	"github.com/rzzdr/localvol-pde/internal/pde"
	"github.com/rzzdr/localvol-pde/pkg/metrics"
	"github.com/rzzdr/localvol-pde/pkg/models"
	"github.com/rzzdr/localvol-pde/pkg/utils/errors"
)

// bump is a parallel additive local volatility shift combined with a
// fractional forward curve shift.
type bump struct {
	vol float64
	fwd float64
}

// forwardSolves holds the base forward solve and, when the forward shift is
// non-zero, the solves with the forward curve moved up and down.
type forwardSolves struct {
	base, up, down *pde.FinalResult1D
	forward        float64
	shift          float64
}

// deltaGamma returns the model delta and gamma with respect to the forward
// at moneyness m. For V = F·c(K/F) with c depending on F through the
// surface,
//
//	dV/dF   = c - m·c' + F·∂c/∂F
//	d²V/dF² = m²·c''/F + 2·∂c/∂F - 2m·∂c'/∂F + F·∂²c/∂F²
//
// where the F derivatives come from the bumped solves at fixed moneyness.
func (fs forwardSolves) deltaGamma(m float64) (row models.MoneynessLadderRow) {
	f := fs.forward
	c := fs.base.ValueAt(m)
	c1 := fs.base.InterpolateAt(m, fs.base.FirstSpatialDerivative)
	c2 := fs.base.InterpolateAt(m, fs.base.SecondSpatialDerivative)

	row.Moneyness = m
	row.Strike = m * f
	row.Price = f * c
	row.FixedSurfaceDelta = c - m*c1
	if fs.up != nil {
		cUp, cDown := fs.up.ValueAt(m), fs.down.ValueAt(m)
		c1Up := fs.up.InterpolateAt(m, fs.up.FirstSpatialDerivative)
		c1Down := fs.down.InterpolateAt(m, fs.down.FirstSpatialDerivative)

		row.SurfaceDelta = (cUp - cDown) / (2 * f * fs.shift)
		row.CrossGamma = (c1Up - c1Down) / (2 * f * fs.shift)
		row.SurfaceGamma = (cUp + cDown - 2*c) / (f * fs.shift * fs.shift)
	}
	row.ModelDelta = row.FixedSurfaceDelta + f*row.SurfaceDelta
	row.ModelGamma = m*m*c2/f + 2*row.SurfaceDelta - 2*m*row.CrossGamma + row.SurfaceGamma
	return row
}

// solveForward runs one forward solve per bump on a shared grid. Solves are
// independent and run on the worker pool; results keep the order of bumps.
func (gc *GreeksCalculator) solveForward(ctx context.Context, fwd market.ForwardCurve, lv market.LocalVolatilitySurface,
	maturity float64, isCall bool, bumps []bump) ([]*pde.FinalResult1D, error) {
	g, err := gc.forwardGrid(maturity)
	if err != nil {
		return nil, err
	}

	results := make([]*pde.FinalResult1D, len(bumps))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(gc.config.Workers)
	for i, b := range bumps {
		i, b := i, b
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			surface := lv
			if b.vol != 0 {
				shifted, err := market.NewShiftedLocalVolatility(lv, b.vol, market.Additive)
				if err != nil {
					return err
				}
				surface = shifted
			}
			res, err := forwardProblem(fwd.WithFractionalShift(b.fwd), surface, isCall, gc.config.MaxMoneyness).solve(gc.solver, g)
			if err != nil {
				return errors.Wrapf(err, "forward solve with vol shift %g and forward shift %g", b.vol, b.fwd)
			}
			results[i] = res
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// forwardBumps returns the base and, if enabled, the ±forward bumps at the
// given vol shift.
func (gc *GreeksCalculator) forwardBumps(vol float64) []bump {
	if gc.config.ForwardShift == 0 {
		return []bump{{vol: vol}}
	}
	s := gc.config.ForwardShift
	return []bump{{vol: vol}, {vol: vol, fwd: s}, {vol: vol, fwd: -s}}
}

func (gc *GreeksCalculator) group(results []*pde.FinalResult1D, forward float64) forwardSolves {
	fs := forwardSolves{base: results[0], forward: forward, shift: gc.config.ForwardShift}
	if len(results) == 3 {
		fs.up, fs.down = results[1], results[2]
	}
	return fs
}

// impliedVol inverts a price, recording a skipped point on failure. Only
// inversion failures are recovered; any other error is returned.
func (gc *GreeksCalculator) impliedVol(price, forward, strike, expiry float64, isCall bool) (float64, error) {
	vol, err := gc.pricer.ImpliedVolatility(price, forward, strike, expiry, isCall)
	if err != nil {
		if errors.IsType(err, errors.ErrorTypeInversionFailure) {
			metrics.RecordImpliedVolFailure()
			gc.log.Debugf("skipping point F=%g K=%g T=%g price=%g: %v", forward, strike, expiry, price, err)
			return math.NaN(), nil
		}
		return 0, err
	}
	return vol, nil
}

func checkOption(fwd market.ForwardCurve, lv market.LocalVolatilitySurface, expiry float64) error {
	if fwd == nil || lv == nil {
		return errors.InvalidArgument("forward curve and local volatility surface are required")
	}
	if !(expiry > 0) || math.IsInf(expiry, 0) {
		return errors.InvalidArgumentf("expiry must be positive and finite, got %g", expiry)
	}
	return nil
}

func checkStrike(strike float64) error {
	if !(strike > 0) || math.IsInf(strike, 0) {
		return errors.InvalidArgumentf("strike must be positive and finite, got %g", strike)
	}
	return nil
}

// ImpliedVolSurface runs one forward solve up to maxT, inverts the price at
// every interior grid point to a Black vol and compares it with the market
// surface. Points whose inversion fails are NaN and counted in Skipped.
func (gc *GreeksCalculator) ImpliedVolSurface(ctx context.Context, fwd market.ForwardCurve, lv market.LocalVolatilitySurface,
	marketVols market.BlackVolatilitySurface, maxT float64, isCall bool) (*models.VolSurfaceComparison, error) {
	start := time.Now()
	defer func() { metrics.RecordGreekJob("implied_vol_surface", time.Since(start)) }()

	if err := checkOption(fwd, lv, maxT); err != nil {
		return nil, err
	}
	if marketVols == nil {
		return nil, errors.InvalidArgument("market volatility surface is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g, err := gc.forwardGrid(maxT)
	if err != nil {
		return nil, err
	}
	pp := forwardProblem(fwd, lv, isCall, gc.config.MaxMoneyness)
	full, err := gc.solver.SolveFull(pp.problem, g, pp.lower, pp.upper)
	if err != nil {
		return nil, errors.Wrap(err, "implied vol surface solve")
	}

	nt, nx := full.NumberTimeNodes(), full.NumberSpaceNodes()
	out := &models.VolSurfaceComparison{
		Times:     make([]float64, 0, nt-1),
		Moneyness: make([]float64, 0, nx-2),
	}
	for i := 1; i < nx-1; i++ {
		out.Moneyness = append(out.Moneyness, full.SpaceValue(i))
	}

	for j := 1; j < nt; j++ {
		t := full.TimeValue(j)
		f := fwd.Forward(t)
		model := make([]float64, 0, nx-2)
		quoted := make([]float64, 0, nx-2)
		diff := make([]float64, 0, nx-2)
		for i := 1; i < nx-1; i++ {
			m := full.SpaceValue(i)
			vol, err := gc.impliedVol(full.FunctionValue(j, i), 1, m, t, isCall)
			if err != nil {
				return nil, err
			}
			if math.IsNaN(vol) {
				out.Skipped++
			}
			mv := marketVols.Volatility(t, m*f)
			model = append(model, vol)
			quoted = append(quoted, mv)
			diff = append(diff, vol-mv)
		}
		out.Times = append(out.Times, t)
		out.ModelVols = append(out.ModelVols, model)
		out.MarketVols = append(out.MarketVols, quoted)
		out.Errors = append(out.Errors, diff)
	}

	if out.Skipped > 0 {
		gc.log.Warnf("implied vol surface skipped %d of %d points where inversion failed", out.Skipped, (nt-1)*(nx-2))
	}
	return out, nil
}

// ForwardDeltaGamma returns the delta/gamma ladder over the interior
// moneyness nodes of one forward solve, decomposed into the fixed-surface
// part read off the grid and the surface part from the ±forward solves.
func (gc *GreeksCalculator) ForwardDeltaGamma(ctx context.Context, fwd market.ForwardCurve, lv market.LocalVolatilitySurface,
	expiry float64, isCall bool) ([]models.MoneynessLadderRow, error) {
	start := time.Now()
	defer func() { metrics.RecordGreekJob("forward_delta_gamma", time.Since(start)) }()

	if err := checkOption(fwd, lv, expiry); err != nil {
		return nil, err
	}
	results, err := gc.solveForward(ctx, fwd, lv, expiry, isCall, gc.forwardBumps(0))
	if err != nil {
		return nil, err
	}
	f := fwd.Forward(expiry)
	fs := gc.group(results, f)

	n := fs.base.NumberSpaceNodes()
	rows := make([]models.MoneynessLadderRow, 0, n-2)
	for i := 1; i < n-1; i++ {
		row := fs.deltaGamma(fs.base.SpaceValue(i))
		row.ImpliedVol, err = gc.impliedVol(fs.base.FunctionValue(i), 1, row.Moneyness, expiry, isCall)
		if err != nil {
			return nil, err
		}
		row.BlackDelta, row.BlackGamma = math.NaN(), math.NaN()
		if !math.IsNaN(row.ImpliedVol) {
			black := gc.pricer.Greeks(f, row.Strike, expiry, row.ImpliedVol, isCall)
			row.BlackDelta, row.BlackGamma = black.Delta, black.Gamma
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// BackwardDeltaGamma returns the delta/gamma ladder over the interior spot
// nodes of one backward solve for a fixed strike. Greeks are read directly
// off the grid; Black benchmarks use the spot sensitivities of the forward.
func (gc *GreeksCalculator) BackwardDeltaGamma(ctx context.Context, fwd market.ForwardCurve, lv market.LocalVolatilitySurface,
	expiry, strike float64, isCall bool) ([]models.SpotLadderRow, error) {
	start := time.Now()
	defer func() { metrics.RecordGreekJob("backward_delta_gamma", time.Since(start)) }()

	if err := checkOption(fwd, lv, expiry); err != nil {
		return nil, err
	}
	if err := checkStrike(strike); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res, err := gc.solveBackward(fwd, lv, expiry, strike, isCall)
	if err != nil {
		return nil, err
	}
	growth := fwd.Forward(expiry) / fwd.Forward(0)

	n := res.NumberSpaceNodes()
	rows := make([]models.SpotLadderRow, 0, n-2)
	for i := 1; i < n-1; i++ {
		row := models.SpotLadderRow{
			Spot:  res.SpaceValue(i),
			Price: res.FunctionValue(i),
			Delta: res.FirstSpatialDerivative(i),
			Gamma: res.SecondSpatialDerivative(i),
		}
		f := row.Spot * growth
		row.ImpliedVol, err = gc.impliedVol(row.Price, f, strike, expiry, isCall)
		if err != nil {
			return nil, err
		}
		row.BlackDelta, row.BlackGamma = math.NaN(), math.NaN()
		if !math.IsNaN(row.ImpliedVol) {
			black := gc.pricer.Greeks(f, strike, expiry, row.ImpliedVol, isCall)
			row.BlackDelta = black.Delta * growth
			row.BlackGamma = black.Gamma * growth * growth
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (gc *GreeksCalculator) solveBackward(fwd market.ForwardCurve, lv market.LocalVolatilitySurface,
	expiry, strike float64, isCall bool) (*pde.FinalResult1D, error) {
	spot := fwd.Forward(0)
	g, err := gc.backwardGrid(expiry, spot, strike)
	if err != nil {
		return nil, err
	}
	res, err := backwardProblem(fwd, lv, expiry, strike, isCall, gc.config.MaxSpotMultiple*spot).solve(gc.solver, g)
	if err != nil {
		return nil, errors.Wrap(err, "backward solve")
	}
	return res, nil
}

// VegaVannaVomma bumps the local volatility surface by ±VolShift. Vega and
// vomma are central differences of the price at the strike; vanna is the
// central difference of the model delta, which needs the ±forward solves
// at each bumped surface. With a zero forward shift only the fixed-surface
// delta is used and three solves suffice, otherwise seven are run.
func (gc *GreeksCalculator) VegaVannaVomma(ctx context.Context, fwd market.ForwardCurve, lv market.LocalVolatilitySurface,
	expiry, strike float64, isCall bool) (*models.VegaSet, error) {
	start := time.Now()
	defer func() { metrics.RecordGreekJob("vega_vanna_vomma", time.Since(start)) }()

	if err := checkOption(fwd, lv, expiry); err != nil {
		return nil, err
	}
	if err := checkStrike(strike); err != nil {
		return nil, err
	}

	v := gc.config.VolShift
	bumps := []bump{{}, {vol: v}, {vol: -v}}
	if s := gc.config.ForwardShift; s != 0 {
		bumps = append(bumps, bump{v, s}, bump{v, -s}, bump{-v, s}, bump{-v, -s})
	}
	results, err := gc.solveForward(ctx, fwd, lv, expiry, isCall, bumps)
	if err != nil {
		return nil, err
	}

	f := fwd.Forward(expiry)
	vs := gc.vegaSet(results, f, strike/f)
	return &vs, nil
}

// vegaSet combines the solves of VegaVannaVomma, ordered base, +vol, -vol
// and then the forward bumps of +vol and -vol when present.
func (gc *GreeksCalculator) vegaSet(results []*pde.FinalResult1D, f, m float64) models.VegaSet {
	v := gc.config.VolShift
	c := results[0].ValueAt(m)
	cUp, cDown := results[1].ValueAt(m), results[2].ValueAt(m)

	upSolves := []*pde.FinalResult1D{results[1]}
	downSolves := []*pde.FinalResult1D{results[2]}
	if len(results) == 7 {
		upSolves = append(upSolves, results[3], results[4])
		downSolves = append(downSolves, results[5], results[6])
	}
	deltaUp := gc.group(upSolves, f).deltaGamma(m).ModelDelta
	deltaDown := gc.group(downSolves, f).deltaGamma(m).ModelDelta

	return models.VegaSet{
		Vega:   f * (cUp - cDown) / (2 * v),
		Vanna:  (deltaUp - deltaDown) / (2 * v),
		Vomma:  f * (cUp + cDown - 2*c) / (v * v),
		Solves: len(results),
	}
}

// Greeks prices one option and returns the bundle of price, implied vol,
// model delta and gamma, vega, vanna and vomma. All bumped solves are run as
// a single batch on the worker pool.
func (gc *GreeksCalculator) Greeks(ctx context.Context, fwd market.ForwardCurve, lv market.LocalVolatilitySurface,
	expiry, strike float64, isCall bool) (*models.Sensitivities, error) {
	start := time.Now()
	defer func() { metrics.RecordGreekJob("greeks", time.Since(start)) }()

	if err := checkOption(fwd, lv, expiry); err != nil {
		return nil, err
	}
	if err := checkStrike(strike); err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	log := gc.log.With("run", runID)

	v := gc.config.VolShift
	bumps := []bump{{}, {vol: v}, {vol: -v}}
	if s := gc.config.ForwardShift; s != 0 {
		bumps = append(bumps, bump{v, s}, bump{v, -s}, bump{-v, s}, bump{-v, -s}, bump{0, s}, bump{0, -s})
	}
	log.Infof("running %d forward solves for T=%g K=%g", len(bumps), expiry, strike)

	results, err := gc.solveForward(ctx, fwd, lv, expiry, isCall, bumps)
	if err != nil {
		return nil, err
	}

	f := fwd.Forward(expiry)
	m := strike / f
	base, vegaSolves := results[:1], results[:3]
	if len(results) == 9 {
		base = []*pde.FinalResult1D{results[0], results[7], results[8]}
		vegaSolves = results[:7]
	}
	row := gc.group(base, f).deltaGamma(m)
	vs := gc.vegaSet(vegaSolves, f, m)

	vol, err := gc.impliedVol(row.Price/f, 1, m, expiry, isCall)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(vol) {
		log.Warnf("implied vol at K=%g could not be recovered from price %g", strike, row.Price)
	}

	values := map[string]float64{
		models.GreekPrice:      row.Price,
		models.GreekImpliedVol: vol,
		models.GreekDelta:      row.ModelDelta,
		models.GreekGamma:      row.ModelGamma,
		models.GreekVega:       vs.Vega,
		models.GreekVanna:      vs.Vanna,
		models.GreekVomma:      vs.Vomma,
	}
	log.Infof("price %.6f delta %.6f gamma %.6g vega %.6f", row.Price, row.ModelDelta, row.ModelGamma, vs.Vega)
	return models.NewSensitivities(runID, f, expiry, strike, isCall, values, nil), nil
}
