package filters

import (
	"math"
)

// DCRemoval is a one-pole DC blocking filter applied to microphone frames
// before pitch estimation. Cheap USB/phone microphones often carry a DC
// offset that biases both the RMS gate and the YIN difference function.
//
// References:
//   - Julius O. Smith III, "Introduction to Digital Filters with Audio Applications"
//     https://ccrma.stanford.edu/~jos/filters/DC_Blocker.html
//
// y[n] = x[n] - x[n-1] + R * y[n-1]
type DCRemoval struct {
	poleLocation float64 // R parameter (0 < R < 1)

	// State variables
	x1 float64 // Previous input sample x[n-1]
	y1 float64 // Previous output sample y[n-1]
}

// NewDCRemoval creates a DC blocker with R = 0.995, a cutoff of roughly
// 8 Hz at 44.1 kHz, well below A0 (27.5 Hz).
func NewDCRemoval() *DCRemoval {
	return &DCRemoval{poleLocation: 0.995}
}

// NewDCRemovalWithCutoff creates a DC blocker with the given -3dB cutoff.
// R = 1 - 2*pi*fc/fs, clamped to (0, 1).
func NewDCRemovalWithCutoff(sampleRate int, cutoffFreq float64) *DCRemoval {
	dc := NewDCRemoval()
	if sampleRate > 0 && cutoffFreq > 0 {
		r := 1.0 - (2.0 * math.Pi * cutoffFreq / float64(sampleRate))
		dc.poleLocation = min(max(r, 0.001), 0.999)
	}
	return dc
}

// Process filters a single sample
func (dc *DCRemoval) Process(input float64) float64 {
	output := input - dc.x1 + dc.poleLocation*dc.y1
	dc.x1 = input
	dc.y1 = output
	return output
}

// ProcessInPlace filters buf without allocating
func (dc *DCRemoval) ProcessInPlace(buf []float64) {
	for i, sample := range buf {
		buf[i] = dc.Process(sample)
	}
}

// Reset clears the filter state. Call this between discontinuous segments.
func (dc *DCRemoval) Reset() {
	dc.x1 = 0.0
	dc.y1 = 0.0
}

// PoleLocation returns R
func (dc *DCRemoval) PoleLocation() float64 {
	return dc.poleLocation
}

// CutoffFrequency returns the approximate -3dB cutoff: fc ≈ (1-R)*fs/(2*pi)
func (dc *DCRemoval) CutoffFrequency(sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0.0
	}
	return (1.0 - dc.poleLocation) * float64(sampleRate) / (2.0 * math.Pi)
}
