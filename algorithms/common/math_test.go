package common

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRMS(t *testing.T) {
	assert.InDelta(t, 1.0, RMS([]float64{1, -1, 1, -1}), 1e-12)
	assert.InDelta(t, 0.5, RMS32([]float32{0.5, -0.5}), 1e-7)
	assert.Equal(t, 0.0, RMS(nil))
}

func TestPercentileDoesNotMutate(t *testing.T) {
	data := []float64{5, 1, 4, 2, 3}
	assert.Equal(t, 3.0, Percentile(data, 0.5))
	assert.Equal(t, 5.0, Percentile(data, 1))
	assert.Equal(t, []float64{5, 1, 4, 2, 3}, data)
	assert.Equal(t, 0.0, Percentile(data, 1.5))
}

func TestDBFS(t *testing.T) {
	assert.InDelta(t, -20.0, DBFS(0.1, -120), 1e-9)
	assert.Equal(t, -120.0, DBFS(0, -120))
	assert.InDelta(t, 0.1, FromDBFS(-20), 1e-12)
}

func TestParabolicInterpolation(t *testing.T) {
	// samples of (x-2.25)^2 around the minimum at index 2
	f := func(x float64) float64 { return math.Pow(x-2.25, 2) }
	data := []float64{f(0), f(1), f(2), f(3), f(4)}
	assert.InDelta(t, 2.25, ParabolicInterpolation(data, 2), 1e-9)
	assert.Equal(t, 0.0, ParabolicInterpolation(data, 0))
}

func TestPowerOfTwo(t *testing.T) {
	assert.True(t, IsPowerOfTwo(1024))
	assert.False(t, IsPowerOfTwo(1000))
	assert.Equal(t, 1024, NextPowerOfTwo(1000))
	assert.Equal(t, 1, NextPowerOfTwo(0))
}
