package filters

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDCRemovalRemovesOffset(t *testing.T) {
	dc := NewDCRemoval()
	buf := make([]float64, 44100)
	for i := range buf {
		buf[i] = 0.3 + 0.1*math.Sin(2*math.Pi*440*float64(i)/44100)
	}

	dc.ProcessInPlace(buf)

	tail := buf[len(buf)-4410:]
	mean := 0.0
	for _, v := range tail {
		mean += v
	}
	mean /= float64(len(tail))
	assert.InDelta(t, 0.0, mean, 1e-3)
}

func TestDCRemovalCutoff(t *testing.T) {
	dc := NewDCRemovalWithCutoff(48000, 10)
	assert.InDelta(t, 10.0, dc.CutoffFrequency(48000), 1e-9)

	dc = NewDCRemovalWithCutoff(100, 1000)
	assert.Equal(t, 0.001, dc.PoleLocation())
}

func TestDCRemovalReset(t *testing.T) {
	dc := NewDCRemoval()
	dc.Process(1)
	dc.Reset()
	assert.Equal(t, 1.0, dc.Process(1))
}
