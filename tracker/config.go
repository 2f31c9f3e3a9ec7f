// Package tracker converts noisy per-frame pitch candidates into discrete
// onset/release events using per-pitch hysteresis.
package tracker

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidThresholds is returned when release is not below onset or a
// threshold falls outside [0,1]
var ErrInvalidThresholds = errors.New("invalid tracker thresholds")

// Thresholds are the confidence levels driving the state machine. They are
// produced by the ambient calibrator and may be replaced between frames.
type Thresholds struct {
	Onset   float64 `json:"onset"`
	Release float64 `json:"release"`
	// GateRMS is the frame RMS below which audio frames are not analysed
	GateRMS float64 `json:"gate_rms"`
}

// DefaultThresholds are used until a calibration succeeds
func DefaultThresholds() Thresholds {
	return Thresholds{
		Onset:   0.6,
		Release: 0.4,
		GateRMS: 0.002,
	}
}

// Validate checks the hysteresis ordering
func (t Thresholds) Validate() error {
	if t.Onset <= 0 || t.Onset > 1 || t.Release < 0 || t.Release >= t.Onset {
		return fmt.Errorf("%w: onset %.3f, release %.3f", ErrInvalidThresholds, t.Onset, t.Release)
	}
	if t.GateRMS < 0 {
		return fmt.Errorf("%w: negative gate %.4f", ErrInvalidThresholds, t.GateRMS)
	}
	return nil
}

// Config holds the frame counts of the hysteresis state machine
type Config struct {
	// OnFrames consecutive frames at or above Onset confirm an attack
	OnFrames int `json:"on_frames"`
	// OffFrames consecutive frames below Release start a release
	OffFrames int `json:"off_frames"`
	// ReleaseConfirmFrames further frames below Release commit the release
	ReleaseConfirmFrames int `json:"release_confirm_frames"`
	// HoldFrames a silent pitch keeps its slot before it is recycled
	HoldFrames int `json:"hold_frames"`
	// MaxPolyphony bounds the pitches sounding at once
	MaxPolyphony int `json:"max_polyphony"`
	// MaxSustain forces a release of notes held longer than this; 0 disables
	MaxSustain time.Duration `json:"max_sustain"`
}

// DefaultConfig suits ~11ms hops: onsets confirm in about 20ms
func DefaultConfig() Config {
	return Config{
		OnFrames:             2,
		OffFrames:            3,
		ReleaseConfirmFrames: 2,
		HoldFrames:           8,
		MaxPolyphony:         6,
	}
}

// Validate checks the frame counts
func (c Config) Validate() error {
	if c.OnFrames < 1 || c.OffFrames < 1 || c.ReleaseConfirmFrames < 0 || c.HoldFrames < 0 {
		return fmt.Errorf("invalid tracker frame counts: on %d, off %d, confirm %d, hold %d",
			c.OnFrames, c.OffFrames, c.ReleaseConfirmFrames, c.HoldFrames)
	}
	if c.MaxPolyphony < 1 || c.MaxPolyphony > 128 {
		return fmt.Errorf("invalid max polyphony: %d", c.MaxPolyphony)
	}
	if c.MaxSustain < 0 {
		return fmt.Errorf("invalid max sustain: %v", c.MaxSustain)
	}
	return nil
}
