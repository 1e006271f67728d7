package risk

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rzzdr/localvol-pde/internal/market"
	"github.com/rzzdr/localvol-pde/internal/smile"
	"github.com/rzzdr/localvol-pde/pkg/metrics"
	"github.com/rzzdr/localvol-pde/pkg/models"
	"github.com/rzzdr/localvol-pde/pkg/utils/errors"
)

// volPricer recomputes the model implied vol of the option from a local
// volatility surface; NaN means the price could not be inverted.
type volPricer func(lv market.LocalVolatilitySurface) (float64, error)

// BucketedVega bumps every market quote of the fitter by BucketVegaShift in
// turn, rebuilds the implied surface, its Dupire local vol and the forward
// PDE price, and reports the change of the model implied vol at
// (expiry, strike) per unit of quote shift. Buckets run in parallel.
func (gc *GreeksCalculator) BucketedVega(ctx context.Context, fitter smile.Fitter, fwd market.ForwardCurve,
	expiry, strike float64, isCall bool) (*models.BucketedVega, error) {
	start := time.Now()
	defer func() { metrics.RecordGreekJob("bucketed_vega", time.Since(start)) }()

	if err := checkStrike(strike); err != nil {
		return nil, err
	}
	if fitter == nil || fwd == nil {
		return nil, errors.InvalidArgument("smile fitter and forward curve are required")
	}
	g, err := gc.forwardGrid(expiry)
	if err != nil {
		return nil, err
	}

	f := fwd.Forward(expiry)
	price := func(lv market.LocalVolatilitySurface) (float64, error) {
		res, err := forwardProblem(fwd, lv, isCall, gc.config.MaxMoneyness).solve(gc.solver, g)
		if err != nil {
			return 0, err
		}
		return gc.impliedVol(res.ValueAt(strike/f), 1, strike/f, expiry, isCall)
	}
	return gc.bucketedVega(ctx, "forward", fitter, fwd, price)
}

// GreeksWithBucketedVega computes the Greeks of the option on lv and the
// bucketed vega of its model implied vol against the quotes of fitter, and
// returns them as one bundle.
func (gc *GreeksCalculator) GreeksWithBucketedVega(ctx context.Context, fwd market.ForwardCurve, lv market.LocalVolatilitySurface,
	fitter smile.Fitter, expiry, strike float64, isCall bool) (*models.Sensitivities, error) {
	if fitter == nil {
		return nil, errors.InvalidArgument("smile fitter is required for bucketed vega")
	}
	sens, err := gc.Greeks(ctx, fwd, lv, expiry, strike, isCall)
	if err != nil {
		return nil, err
	}
	bv, err := gc.BucketedVega(ctx, fitter, fwd, expiry, strike, isCall)
	if err != nil {
		return nil, errors.Wrapf(err, "bucketed vega for run %s", sens.RunID)
	}
	return sens.WithBucketedVega(bv), nil
}

// BucketedVegaBackward is BucketedVega priced with the backward PDE. The
// price at today's spot is interpolated linearly between the bracketing
// spot nodes before a single inversion to implied vol.
func (gc *GreeksCalculator) BucketedVegaBackward(ctx context.Context, fitter smile.Fitter, fwd market.ForwardCurve,
	expiry, strike float64, isCall bool) (*models.BucketedVega, error) {
	start := time.Now()
	defer func() { metrics.RecordGreekJob("bucketed_vega_backward", time.Since(start)) }()

	if err := checkStrike(strike); err != nil {
		return nil, err
	}
	if fitter == nil || fwd == nil {
		return nil, errors.InvalidArgument("smile fitter and forward curve are required")
	}
	if !(expiry > 0) {
		return nil, errors.InvalidArgumentf("expiry must be positive, got %g", expiry)
	}

	spot := fwd.Forward(0)
	price := func(lv market.LocalVolatilitySurface) (float64, error) {
		res, err := gc.solveBackward(fwd, lv, expiry, strike, isCall)
		if err != nil {
			return 0, err
		}
		return gc.impliedVol(res.ValueAt(spot), fwd.Forward(expiry), strike, expiry, isCall)
	}
	return gc.bucketedVega(ctx, "backward", fitter, fwd, price)
}

func (gc *GreeksCalculator) bucketedVega(ctx context.Context, kind string, fitter smile.Fitter, fwd market.ForwardCurve,
	price volPricer) (*models.BucketedVega, error) {
	log := gc.log.With("run", uuid.NewString(), "pde", kind)
	shift := gc.config.BucketVegaShift

	baseVol, err := gc.pipelineVol(fitter, fwd, price)
	if err != nil {
		return nil, errors.Wrap(err, "bucketed vega base pricing")
	}
	if math.IsNaN(baseVol) {
		return nil, errors.InversionFailure("bucketed vega base price cannot be inverted to an implied vol")
	}

	expiries, strikes := fitter.Expiries(), fitter.Strikes()
	out := models.NewBucketedVega(expiries, strikes)
	log.Infof("bumping %d buckets by %g around base vol %.6f", len(expiries)*len(strikes), shift, baseVol)

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(gc.config.Workers)
	for i := range expiries {
		for j := range strikes {
			i, j := i, j
			eg.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				bumped, err := fitter.WithBumpedPoint(i, j, shift)
				if err != nil {
					return err
				}
				vol, err := gc.pipelineVol(bumped, fwd, price)
				if err != nil {
					return errors.Wrapf(err, "bucket (%d,%d)", i, j)
				}
				if math.IsNaN(vol) {
					log.Warnf("bucket (%d,%d) skipped: bumped price cannot be inverted", i, j)
				}
				out.Vega[i][j] = (vol - baseVol) / shift
				return nil
			})
		}
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// pipelineVol runs smile fit, Dupire transform and PDE pricing.
func (gc *GreeksCalculator) pipelineVol(fitter smile.Fitter, fwd market.ForwardCurve, price volPricer) (float64, error) {
	implied, err := fitter.ImpliedVolatilitySurface()
	if err != nil {
		return 0, err
	}
	return price(smile.Dupire(implied, fwd))
}
