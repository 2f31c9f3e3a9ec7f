// Package pipeline turns captured audio into note events: framing, DC
// removal, an energy gate, pitch estimation and hysteresis tracking.
package pipeline

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/RyanBlaney/sonido-keys/pitch"
	"github.com/RyanBlaney/sonido-keys/source"
	"github.com/RyanBlaney/sonido-keys/tracker"
)

// Mode selects the estimation strategy
type Mode int

const (
	// Monophonic tracks one voice with the period-based estimator
	Monophonic Mode = iota
	// Polyphonic tracks chords with the harmonic-summation estimator
	Polyphonic
)

func (m Mode) String() string {
	switch m {
	case Monophonic:
		return "monophonic"
	case Polyphonic:
		return "polyphonic"
	default:
		return "unknown"
	}
}

// ParseMode maps a name produced by String back to a Mode
func ParseMode(name string) (Mode, error) {
	switch name {
	case "monophonic", "mono":
		return Monophonic, nil
	case "polyphonic", "poly":
		return Polyphonic, nil
	}
	return 0, fmt.Errorf("unknown pipeline mode %q", name)
}

func (m Mode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

func (m *Mode) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseMode(name)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Config wires the audio path
type Config struct {
	Mode       Mode                    `json:"mode"`
	Microphone source.MicrophoneConfig `json:"microphone"`
	Mono       pitch.MonoConfig        `json:"mono"`
	Poly       pitch.PolyConfig        `json:"poly"`
	Tracker    tracker.Config          `json:"tracker"`
	Thresholds tracker.Thresholds      `json:"thresholds"`

	// MaxCents rejects monophonic estimates this far from any key
	MaxCents float64 `json:"max_cents"`
	// DCCutoff is the DC-removal high-pass corner in Hz; 0 disables it
	DCCutoff float64 `json:"dc_cutoff"`
	// EventBuffer sizes the ring between analysis and arbitration
	EventBuffer int `json:"event_buffer"`
	// WarnInterval throttles overflow and estimator-failure warnings
	WarnInterval time.Duration `json:"warn_interval"`
}

// DefaultConfig returns the defaults for mode
func DefaultConfig(mode Mode) Config {
	c := Config{
		Mode:         mode,
		Microphone:   source.DefaultMicrophoneConfig(),
		Mono:         pitch.DefaultMonoConfig(),
		Poly:         pitch.DefaultPolyConfig(),
		Tracker:      tracker.DefaultConfig(),
		Thresholds:   tracker.DefaultThresholds(),
		MaxCents:     50,
		DCCutoff:     10,
		EventBuffer:  256,
		WarnInterval: 5 * time.Second,
	}

	switch mode {
	case Monophonic:
		c.Microphone.WindowSize = c.Mono.WindowSize
		c.Microphone.HopSize = c.Mono.WindowSize / 4
		c.Tracker.MaxPolyphony = 2
	case Polyphonic:
		c.Microphone.WindowSize = c.Poly.WindowSize
		c.Microphone.HopSize = c.Poly.WindowSize / 8
		c.Microphone.InferenceBudget = 8 * time.Millisecond
		c.Tracker.MaxPolyphony = c.Poly.MaxCandidates
	}
	return c
}

// WithSampleRate returns a copy of c retargeted to rate
func (c Config) WithSampleRate(rate int) Config {
	c.Microphone.SampleRate = rate
	c.Mono.SampleRate = rate
	c.Poly.SampleRate = rate
	return c
}

// Validate checks that the parts agree with each other
func (c Config) Validate() error {
	if err := c.Microphone.Validate(); err != nil {
		return err
	}
	if err := c.Tracker.Validate(); err != nil {
		return err
	}
	if err := c.Thresholds.Validate(); err != nil {
		return err
	}

	var window, rate int
	switch c.Mode {
	case Monophonic:
		window, rate = c.Mono.WindowSize, c.Mono.SampleRate
	case Polyphonic:
		window, rate = c.Poly.WindowSize, c.Poly.SampleRate
	default:
		return fmt.Errorf("unknown pipeline mode %d", c.Mode)
	}
	if window != c.Microphone.WindowSize {
		return fmt.Errorf("estimator window %d differs from microphone window %d", window, c.Microphone.WindowSize)
	}
	if rate != c.Microphone.SampleRate {
		return fmt.Errorf("estimator sample rate %d differs from microphone rate %d", rate, c.Microphone.SampleRate)
	}
	if c.EventBuffer < 1 {
		return fmt.Errorf("invalid event buffer: %d", c.EventBuffer)
	}
	return nil
}
