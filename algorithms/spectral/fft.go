package spectral

import (
	"fmt"
	"math/cmplx"

	"github.com/mjibson/go-dsp/window"
	"gonum.org/v1/gonum/dsp/fourier"
)

// FrameFFT computes windowed magnitude spectra of fixed-size frames. All
// buffers are allocated once in NewFrameFFT so Magnitudes can run inside
// the per-frame audio path without allocating.
type FrameFFT struct {
	size     int
	fft      *fourier.FFT
	window   []float64
	windowed []float64
	coeffs   []complex128
	mags     []float64
}

// NewFrameFFT creates a transform for frames of the given size using a Hann
// window from go-dsp and gonum's real FFT
func NewFrameFFT(size int) (*FrameFFT, error) {
	if size < 4 {
		return nil, fmt.Errorf("fft size too small: %d", size)
	}
	return &FrameFFT{
		size:     size,
		fft:      fourier.NewFFT(size),
		window:   window.Hann(size),
		windowed: make([]float64, size),
		coeffs:   make([]complex128, size/2+1),
		mags:     make([]float64, size/2+1),
	}, nil
}

// Size returns the frame length
func (f *FrameFFT) Size() int {
	return f.size
}

// Bins returns the number of magnitude bins (size/2 + 1)
func (f *FrameFFT) Bins() int {
	return len(f.mags)
}

// Magnitudes returns the magnitude spectrum of frame. The returned slice is
// owned by the FrameFFT and overwritten by the next call.
func (f *FrameFFT) Magnitudes(frame []float64) ([]float64, error) {
	if len(frame) != f.size {
		return nil, fmt.Errorf("frame size (%d) doesn't match fft size (%d)", len(frame), f.size)
	}

	for i, v := range frame {
		f.windowed[i] = v * f.window[i]
	}
	f.fft.Coefficients(f.coeffs, f.windowed)

	// normalise so a full-scale sine lands near 1.0 regardless of frame size
	scale := 4.0 / float64(f.size)
	for i, c := range f.coeffs {
		f.mags[i] = cmplx.Abs(c) * scale
	}
	return f.mags, nil
}

// BinFrequency returns the centre frequency of bin in Hz
func (f *FrameFFT) BinFrequency(bin, sampleRate int) float64 {
	return float64(bin) * float64(sampleRate) / float64(f.size)
}

// FrequencyBin returns the fractional bin index of hz
func (f *FrameFFT) FrequencyBin(hz float64, sampleRate int) float64 {
	return hz * float64(f.size) / float64(sampleRate)
}
