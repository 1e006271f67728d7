package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSensitivitiesCopiesValues(t *testing.T) {
	values := map[string]float64{GreekPrice: 7.9, GreekDelta: 0.54}
	s := NewSensitivities("run-1", 100, 1, 100, true, values, nil)
	values[GreekPrice] = 0

	price, ok := s.Get(GreekPrice)
	require.True(t, ok)
	assert.Equal(t, 7.9, price)

	_, ok = s.Get(GreekVomma)
	assert.False(t, ok)
	assert.Equal(t, []string{GreekDelta, GreekPrice}, s.Names())
	assert.Nil(t, s.BucketedVega())
	assert.False(t, s.Timestamp.IsZero())
}

func TestBucketedVega(t *testing.T) {
	expiries := []float64{0.5, 1}
	strikes := []float64{90, 100, 110}
	bv := NewBucketedVega(expiries, strikes)
	expiries[0] = 9

	require.Len(t, bv.Vega, 2)
	require.Len(t, bv.Vega[1], 3)
	assert.Equal(t, 0.5, bv.Expiries[0])

	bv.Vega[1][2] = 0.8
	assert.Equal(t, 0.8, bv.At(1, 2))
	assert.Zero(t, bv.At(0, 0))

	s := NewSensitivities("run-2", 100, 1, 100, false, nil, bv)
	assert.Same(t, bv, s.BucketedVega())
	assert.Empty(t, s.Names())
}

func TestWithBucketedVegaLeavesReceiver(t *testing.T) {
	s := NewSensitivities("run-3", 100, 1, 100, true, map[string]float64{GreekVega: 39.9}, nil)
	bv := NewBucketedVega([]float64{1}, []float64{100})

	withVega := s.WithBucketedVega(bv)
	assert.Nil(t, s.BucketedVega())
	assert.Same(t, bv, withVega.BucketedVega())
	assert.Equal(t, s.RunID, withVega.RunID)
	assert.Equal(t, s.Timestamp, withVega.Timestamp)

	vega, ok := withVega.Get(GreekVega)
	require.True(t, ok)
	assert.Equal(t, 39.9, vega)
}
