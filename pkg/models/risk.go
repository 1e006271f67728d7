package models

import (
	"sort"
	"time"
)

// Names of the Greeks carried by a Sensitivities bundle
const (
	GreekPrice      = "price"
	GreekImpliedVol = "implied_vol"
	GreekDelta      = "delta"
	GreekGamma      = "gamma"
	GreekVega       = "vega"
	GreekVanna      = "vanna"
	GreekVomma      = "vomma"
)

// The closed-form Black Greeks of an option on a forward
type BlackGreeks struct {
	Price float64
	Delta float64
	Gamma float64
	Vega  float64
	Vanna float64
	Vomma float64
}

// Sensitivities is the bundle produced by one orchestration call: named
// scalar Greeks for a single option, plus an optional bucketed vega matrix.
// It is never modified after construction.
type Sensitivities struct {
	RunID        string
	Timestamp    time.Time
	Forward      float64
	Expiry       float64
	Strike       float64
	IsCall       bool
	values       map[string]float64
	bucketedVega *BucketedVega
}

// Creates a new Sensitivities bundle; values is copied
func NewSensitivities(runID string, forward, expiry, strike float64, isCall bool, values map[string]float64, bucketed *BucketedVega) *Sensitivities {
	copied := make(map[string]float64, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return &Sensitivities{
		RunID:        runID,
		Timestamp:    time.Now(),
		Forward:      forward,
		Expiry:       expiry,
		Strike:       strike,
		IsCall:       isCall,
		values:       copied,
		bucketedVega: bucketed,
	}
}

// Get returns the named Greek
func (s *Sensitivities) Get(name string) (float64, bool) {
	v, ok := s.values[name]
	return v, ok
}

// Names returns the Greek names in the bundle, sorted
func (s *Sensitivities) Names() []string {
	names := make([]string, 0, len(s.values))
	for k := range s.values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// WithBucketedVega returns a copy of the bundle carrying the given bucketed
// vega matrix. The receiver is left unchanged.
func (s *Sensitivities) WithBucketedVega(bv *BucketedVega) *Sensitivities {
	out := *s
	out.bucketedVega = bv
	return &out
}

// BucketedVega returns the per-bucket vega matrix, or nil if none was run
func (s *Sensitivities) BucketedVega() *BucketedVega {
	return s.bucketedVega
}

// Vega with respect to every market quote, indexed [expiry][strike]. Entries
// are NaN where the bumped price could not be inverted to a volatility.
type BucketedVega struct {
	Expiries []float64
	Strikes  []float64
	Vega     [][]float64
}

// Creates a new BucketedVega with a zeroed matrix
func NewBucketedVega(expiries, strikes []float64) *BucketedVega {
	vega := make([][]float64, len(expiries))
	for i := range vega {
		vega[i] = make([]float64, len(strikes))
	}
	return &BucketedVega{
		Expiries: append([]float64(nil), expiries...),
		Strikes:  append([]float64(nil), strikes...),
		Vega:     vega,
	}
}

// At returns the vega of bucket (expiryIndex, strikeIndex)
func (b *BucketedVega) At(expiryIndex, strikeIndex int) float64 {
	return b.Vega[expiryIndex][strikeIndex]
}

// One moneyness node of a forward-PDE delta/gamma ladder. Delta and gamma
// are with respect to the forward to expiry.
type MoneynessLadderRow struct {
	Moneyness         float64
	Strike            float64
	Price             float64
	ImpliedVol        float64
	FixedSurfaceDelta float64
	SurfaceDelta      float64
	ModelDelta        float64
	CrossGamma        float64
	SurfaceGamma      float64
	ModelGamma        float64
	BlackDelta        float64
	BlackGamma        float64
}

// One spot node of a backward-PDE delta/gamma ladder
type SpotLadderRow struct {
	Spot       float64
	Price      float64
	Delta      float64
	Gamma      float64
	ImpliedVol float64
	BlackDelta float64
	BlackGamma float64
}

// Volatility sensitivities from a parallel local volatility bump
type VegaSet struct {
	Vega  float64
	Vanna float64
	Vomma float64
	// Solves is the number of forward PDE solves used.
	Solves int
}

// Model implied vols against market vols on the forward PDE grid, indexed
// [time][moneyness]. NaN marks a point whose inversion failed.
type VolSurfaceComparison struct {
	Times      []float64
	Moneyness  []float64
	ModelVols  [][]float64
	MarketVols [][]float64
	Errors     [][]float64
	Skipped    int
}
