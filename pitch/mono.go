package pitch

import (
	"fmt"
	"time"

	"github.com/RyanBlaney/sonido-keys/algorithms/common"
	"github.com/RyanBlaney/sonido-keys/note"
)

// MonoConfig configures the period-based single-fundamental estimator
type MonoConfig struct {
	SampleRate int     `json:"sample_rate"`
	WindowSize int     `json:"window_size"`
	MinFreq    float64 `json:"min_freq"`      // Hz
	MaxFreq    float64 `json:"max_freq"`      // Hz
	Threshold  float64 `json:"yin_threshold"` // absolute CMNDF threshold (0.1-0.2)
}

// DefaultMonoConfig covers the piano range above ~45 Hz at 44.1 kHz
func DefaultMonoConfig() MonoConfig {
	return MonoConfig{
		SampleRate: 44100,
		WindowSize: 2048,
		MinFreq:    45.0,
		MaxFreq:    4200.0, // C8 is 4186 Hz
		Threshold:  0.15,
	}
}

// Mono is a YIN estimator working on pre-allocated buffers. Confidence is
// 1 - d'(tau), the periodicity strength at the chosen lag.
type Mono struct {
	config MonoConfig
	minLag int
	maxLag int

	diff  []float64
	cmndf []float64
}

// NewMono creates a monophonic estimator
func NewMono(config MonoConfig) (*Mono, error) {
	if config.SampleRate <= 0 || config.WindowSize < 64 {
		return nil, fmt.Errorf("%w: sample rate %d, window %d", ErrInvalidConfig, config.SampleRate, config.WindowSize)
	}
	if config.MinFreq <= 0 || config.MaxFreq <= config.MinFreq {
		return nil, fmt.Errorf("%w: frequency range [%.1f, %.1f]", ErrInvalidConfig, config.MinFreq, config.MaxFreq)
	}

	halfN := config.WindowSize / 2
	minLag := max(int(float64(config.SampleRate)/config.MaxFreq), 2)
	maxLag := min(int(float64(config.SampleRate)/config.MinFreq)+1, halfN-1)
	if minLag >= maxLag {
		return nil, fmt.Errorf("%w: window %d too short for %.1f Hz", ErrInvalidConfig, config.WindowSize, config.MinFreq)
	}

	return &Mono{
		config: config,
		minLag: minLag,
		maxLag: maxLag,
		diff:   make([]float64, maxLag+1),
		cmndf:  make([]float64, maxLag+1),
	}, nil
}

// WindowSize implements Estimator
func (m *Mono) WindowSize() int {
	return m.config.WindowSize
}

// Name implements Estimator
func (m *Mono) Name() string {
	return "yin"
}

// EstimateFrequency returns at most one fundamental for frame. A zero
// FrequencyHz means the frame showed no usable periodicity.
func (m *Mono) EstimateFrequency(frame []float64, t time.Duration) (note.MonoCandidate, error) {
	result := note.MonoCandidate{Time: t}
	if err := checkFrame(frame, m.config.WindowSize); err != nil {
		return result, err
	}

	halfN := m.config.WindowSize / 2

	// Step 1: difference function
	for tau := 0; tau <= m.maxLag; tau++ {
		sum := 0.0
		for j := range halfN {
			delta := frame[j] - frame[j+tau]
			sum += delta * delta
		}
		m.diff[tau] = sum
	}

	// Step 2: cumulative mean normalized difference
	m.cmndf[0] = 1.0
	runningSum := 0.0
	for tau := 1; tau <= m.maxLag; tau++ {
		runningSum += m.diff[tau]
		if runningSum <= 0 {
			m.cmndf[tau] = 1.0
			continue
		}
		m.cmndf[tau] = m.diff[tau] * float64(tau) / runningSum
	}

	// Step 3: first dip under the absolute threshold, walked to its minimum.
	// Fall back to the global minimum so weak periodicity still reports a
	// (low) confidence for the tracker to reject.
	best := -1
	for tau := m.minLag; tau <= m.maxLag; tau++ {
		if m.cmndf[tau] < m.config.Threshold {
			for tau+1 <= m.maxLag && m.cmndf[tau+1] < m.cmndf[tau] {
				tau++
			}
			best = tau
			break
		}
	}
	if best < 0 {
		best = m.minLag
		for tau := m.minLag + 1; tau <= m.maxLag; tau++ {
			if m.cmndf[tau] < m.cmndf[best] {
				best = tau
			}
		}
	}

	confidence := common.Clamp(1.0-m.cmndf[best], 0, 1)
	if confidence == 0 {
		return result, nil
	}

	// Step 4: parabolic interpolation of the lag
	period := common.ParabolicInterpolation(m.cmndf, best)
	if period <= 0 {
		return result, nil
	}
	frequency := float64(m.config.SampleRate) / period
	if frequency < m.config.MinFreq || frequency > m.config.MaxFreq {
		return result, nil
	}

	result.FrequencyHz = frequency
	result.Confidence = confidence
	return result, nil
}

// Estimate implements Estimator, reporting the fundamental as a single
// pitch candidate
func (m *Mono) Estimate(frame []float64, t time.Duration, out *note.PolyFrame) error {
	out.Reset(t)
	c, err := m.EstimateFrequency(frame, t)
	if err != nil {
		return err
	}
	if p, _, ok := note.FrequencyToPitch(c.FrequencyHz); ok && c.Confidence > 0 {
		out.Add(p, c.Confidence)
	}
	return nil
}
