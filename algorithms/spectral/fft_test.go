package spectral

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameFFTPeakAtSineFrequency(t *testing.T) {
	const rate = 8000
	f, err := NewFrameFFT(1024)
	require.NoError(t, err)

	// 500 Hz sits exactly on bin 64
	frame := make([]float64, 1024)
	for i := range frame {
		frame[i] = math.Sin(2 * math.Pi * 500 * float64(i) / rate)
	}

	mags, err := f.Magnitudes(frame)
	require.NoError(t, err)
	require.Len(t, mags, f.Bins())

	peak := 0
	for i := range mags {
		if mags[i] > mags[peak] {
			peak = i
		}
	}
	assert.Equal(t, 64, peak)
	assert.InDelta(t, 500.0, f.BinFrequency(peak, rate), 1e-9)
	assert.InDelta(t, 1.0, mags[peak], 0.05)
}

func TestFrameFFTRejectsWrongSize(t *testing.T) {
	f, err := NewFrameFFT(256)
	require.NoError(t, err)

	_, err = f.Magnitudes(make([]float64, 100))
	assert.Error(t, err)

	_, err = NewFrameFFT(2)
	assert.Error(t, err)
}
