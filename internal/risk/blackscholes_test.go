package risk

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzzdr/localvol-pde/pkg/utils/errors"
)

func TestBlackPriceReferenceValues(t *testing.T) {
	bp := NewBlackPricer()

	// ATM: 100·(2N(0.1) - 1)
	assert.InDelta(t, 7.9655674554, bp.Price(100, 100, 1, 0.2, true), 1e-6)
	assert.InDelta(t, 7.9655674554, bp.Price(100, 100, 1, 0.2, false), 1e-6)

	for _, k := range []float64{60, 90, 100, 110, 150} {
		call := bp.Price(100, k, 2, 0.3, true)
		put := bp.Price(100, k, 2, 0.3, false)
		assert.InDelta(t, 100-k, call-put, 1e-10, "parity at K=%g", k)
		assert.GreaterOrEqual(t, call, math.Max(100-k, 0))
	}

	assert.Equal(t, 20.0, bp.Price(100, 80, 0, 0.2, true), "zero expiry gives intrinsic")
	assert.Equal(t, 0.0, bp.Price(100, 80, 1, 0, false), "zero vol gives intrinsic")
	assert.Equal(t, 100.0, bp.Price(100, 0, 1, 0.2, true))
	assert.Equal(t, 0.0, bp.Price(100, 0, 1, 0.2, false))
}

func TestBlackGreeksMatchFiniteDifferences(t *testing.T) {
	bp := NewBlackPricer()
	const f, k, expiry, vol = 100.0, 115.0, 1.5, 0.25

	for _, isCall := range []bool{true, false} {
		g := bp.Greeks(f, k, expiry, vol, isCall)
		price := func(f, vol float64) float64 { return bp.Price(f, k, expiry, vol, isCall) }

		assert.Equal(t, price(f, vol), g.Price)
		assert.InDelta(t, (price(f+1e-3, vol)-price(f-1e-3, vol))/2e-3, g.Delta, 1e-6)
		assert.InDelta(t, (price(f+1e-2, vol)+price(f-1e-2, vol)-2*price(f, vol))/1e-4, g.Gamma, 1e-6)
		assert.InDelta(t, (price(f, vol+1e-5)-price(f, vol-1e-5))/2e-5, g.Vega, 1e-5)

		up := bp.Greeks(f, k, expiry, vol+1e-5, isCall)
		down := bp.Greeks(f, k, expiry, vol-1e-5, isCall)
		assert.InDelta(t, (up.Delta-down.Delta)/2e-5, g.Vanna, 1e-5)
		assert.InDelta(t, (up.Vega-down.Vega)/2e-5, g.Vomma, 1e-3)
	}

	flat := bp.Greeks(100, 100, 1, 0, true)
	assert.Equal(t, 0.0, flat.Price)
	assert.Zero(t, flat.Delta)
	assert.Zero(t, flat.Vega)
}

func TestImpliedVolatilityRoundTrip(t *testing.T) {
	bp := NewBlackPricer()
	for _, isCall := range []bool{true, false} {
		for _, vol := range []float64{0.1, 0.2, 0.5, 1} {
			for _, k := range []float64{80, 100, 125} {
				for _, expiry := range []float64{0.25, 1, 3} {
					price := bp.Price(100, k, expiry, vol, isCall)
					got, err := bp.ImpliedVolatility(price, 100, k, expiry, isCall)
					require.NoError(t, err, "vol=%g K=%g T=%g call=%v", vol, k, expiry, isCall)
					assert.InDelta(t, vol, got, 1e-6, "vol=%g K=%g T=%g call=%v", vol, k, expiry, isCall)
				}
			}
		}
	}

	// Normalised prices as produced by the forward PDE
	c := bp.Price(1, 1.1, 2, 0.2, true)
	got, err := bp.ImpliedVolatility(c, 1, 1.1, 2, true)
	require.NoError(t, err)
	assert.InDelta(t, 0.2, got, 1e-8)
}

func TestImpliedVolatilityFailures(t *testing.T) {
	bp := NewBlackPricer()
	cases := []struct {
		name                string
		price, f, k, expiry float64
		isCall              bool
	}{
		{"below intrinsic", 19, 100, 80, 1, true},
		{"at intrinsic", 20, 100, 80, 1, true},
		{"above forward", 100, 100, 80, 1, true},
		{"put above strike", 81, 100, 80, 1, false},
		{"negative put", -1, 100, 120, 1, false},
		{"NaN price", math.NaN(), 100, 100, 1, true},
		{"zero expiry", 5, 100, 100, 0, true},
		{"zero forward", 5, 0, 100, 1, true},
		{"negative strike", 5, 100, -1, 1, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := bp.ImpliedVolatility(tc.price, tc.f, tc.k, tc.expiry, tc.isCall)
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeInversionFailure), "got %v", err)
		})
	}
}
