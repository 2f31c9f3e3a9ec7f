package pitch

import (
	"fmt"
	"math"
	"time"

	"github.com/RyanBlaney/sonido-keys/algorithms/common"
	"github.com/RyanBlaney/sonido-keys/algorithms/spectral"
	"github.com/RyanBlaney/sonido-keys/note"
)

// PolyConfig configures the multi-fundamental estimator
type PolyConfig struct {
	SampleRate int `json:"sample_rate"`
	WindowSize int `json:"window_size"`

	// Harmonics summed per key, with weight HarmonicDecay^(h-1)
	Harmonics     int     `json:"harmonics"`
	HarmonicDecay float64 `json:"harmonic_decay"`

	// Threshold is the minimum activation reported as a candidate
	Threshold float64 `json:"threshold"`
	// ReferenceSalience is the summed harmonic magnitude treated as full
	// confidence; quieter frames scale all activations down
	ReferenceSalience float64 `json:"reference_salience"`
	// FundamentalRatio rejects keys whose fundamental bin is weaker than
	// this fraction of their strongest harmonic (sub-octave ghosts)
	FundamentalRatio float64 `json:"fundamental_ratio"`

	MaxCandidates int        `json:"max_candidates"`
	MinPitch      note.Pitch `json:"min_pitch"`
	MaxPitch      note.Pitch `json:"max_pitch"`
}

// DefaultPolyConfig returns chord-friendly defaults at 44.1 kHz
func DefaultPolyConfig() PolyConfig {
	return PolyConfig{
		SampleRate:        44100,
		WindowSize:        4096,
		Harmonics:         4,
		HarmonicDecay:     0.8,
		Threshold:         0.3,
		ReferenceSalience: 0.05,
		FundamentalRatio:  0.1,
		MaxCandidates:     6,
		MinPitch:          note.PianoLow,
		MaxPitch:          note.PianoHigh,
	}
}

// Poly estimates several simultaneous fundamentals by harmonic summation
// over a magnitude spectrum, producing an activation vector across the
// piano range which is then peak-picked into a short candidate list.
type Poly struct {
	config PolyConfig
	fft    *spectral.FrameFFT

	// harmonicBins[k][h] is the FFT bin at or just below harmonic h+1 of
	// key k, or -1 above Nyquist
	harmonicBins [][]int
	weights      []float64

	activation [note.PianoKeys]float64
	peaks      [note.PianoKeys]int
}

// NewPoly creates a polyphonic estimator
func NewPoly(config PolyConfig) (*Poly, error) {
	if config.SampleRate <= 0 || config.Harmonics < 1 || config.MaxCandidates < 1 {
		return nil, fmt.Errorf("%w: sample rate %d, harmonics %d, max candidates %d",
			ErrInvalidConfig, config.SampleRate, config.Harmonics, config.MaxCandidates)
	}
	if config.MinPitch < note.PianoLow || config.MaxPitch > note.PianoHigh || config.MinPitch > config.MaxPitch {
		return nil, fmt.Errorf("%w: pitch range %d-%d", ErrInvalidConfig, config.MinPitch, config.MaxPitch)
	}
	if config.ReferenceSalience <= 0 {
		return nil, fmt.Errorf("%w: reference salience must be positive", ErrInvalidConfig)
	}
	config.MaxCandidates = min(config.MaxCandidates, note.MaxFrameCandidates)

	fft, err := spectral.NewFrameFFT(config.WindowSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	p := &Poly{
		config:       config,
		fft:          fft,
		harmonicBins: make([][]int, note.PianoKeys),
		weights:      make([]float64, config.Harmonics),
	}

	for h := range config.Harmonics {
		p.weights[h] = math.Pow(config.HarmonicDecay, float64(h))
	}
	nyquist := fft.Bins() - 1
	for k := range note.PianoKeys {
		f0 := (note.PianoLow + note.Pitch(k)).Frequency()
		bins := make([]int, config.Harmonics)
		for h := range config.Harmonics {
			bin := int(math.Floor(fft.FrequencyBin(f0*float64(h+1), config.SampleRate)))
			if bin >= nyquist {
				bin = -1
			}
			bins[h] = bin
		}
		p.harmonicBins[k] = bins
	}

	return p, nil
}

// WindowSize implements Estimator
func (p *Poly) WindowSize() int {
	return p.config.WindowSize
}

// Name implements Estimator
func (p *Poly) Name() string {
	return "harmonic-sum"
}

// Activation returns the activation of key p from the last frame
func (p *Poly) Activation(key note.Pitch) float64 {
	if !key.OnPiano() {
		return 0
	}
	return p.activation[key-note.PianoLow]
}

// peakAround reads the two bins straddling a harmonic's exact frequency
func peakAround(mags []float64, bin int) float64 {
	return max(mags[bin], mags[bin+1])
}

// Estimate implements Estimator
func (p *Poly) Estimate(frame []float64, t time.Duration, out *note.PolyFrame) error {
	out.Reset(t)
	if err := checkFrame(frame, p.config.WindowSize); err != nil {
		return err
	}

	mags, err := p.fft.Magnitudes(frame)
	if err != nil {
		return err
	}

	lo := int(p.config.MinPitch - note.PianoLow)
	hi := int(p.config.MaxPitch - note.PianoLow)

	strongest := 0.0
	for k := range note.PianoKeys {
		p.activation[k] = 0
		if k < lo || k > hi {
			continue
		}

		salience := 0.0
		fundamental := 0.0
		loudest := 0.0
		for h, bin := range p.harmonicBins[k] {
			if bin < 0 {
				break
			}
			m := peakAround(mags, bin)
			if h == 0 {
				fundamental = m
			}
			loudest = max(loudest, m)
			salience += p.weights[h] * m
		}
		if loudest == 0 || fundamental < p.config.FundamentalRatio*loudest {
			continue
		}
		p.activation[k] = salience
		strongest = max(strongest, salience)
	}

	if strongest == 0 {
		return nil
	}

	// relative activation, attenuated for quiet frames
	level := common.Clamp(strongest/p.config.ReferenceSalience, 0, 1)
	for k := range p.activation {
		p.activation[k] = p.activation[k] / strongest * level
	}

	// local maxima above threshold, insertion-sorted by activation
	n := 0
	for k := lo; k <= hi; k++ {
		a := p.activation[k]
		if a < p.config.Threshold {
			continue
		}
		if (k > 0 && p.activation[k-1] > a) || (k < note.PianoKeys-1 && p.activation[k+1] >= a) {
			continue
		}
		i := n
		for i > 0 && p.activation[p.peaks[i-1]] < a {
			p.peaks[i] = p.peaks[i-1]
			i--
		}
		p.peaks[i] = k
		n++
	}

	for i := 0; i < n && out.N < p.config.MaxCandidates; i++ {
		k := p.peaks[i]
		if p.isOvertoneOfAccepted(k, out) {
			continue
		}
		out.Add(note.PianoLow+note.Pitch(k), p.activation[k])
	}

	return nil
}

// isOvertoneOfAccepted rejects a weaker peak an octave, a twelfth or two
// octaves above an already accepted candidate
func (p *Poly) isOvertoneOfAccepted(k int, out *note.PolyFrame) bool {
	key := note.PianoLow + note.Pitch(k)
	for _, c := range out.List() {
		switch int(key) - int(c.Pitch) {
		case 12, 19, 24:
			return true
		}
	}
	return false
}
