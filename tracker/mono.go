package tracker

import (
	"math"
	"time"

	"github.com/RyanBlaney/sonido-keys/note"
)

// Mono tracks a single-voice stream. Each frame carries at most one pitch;
// every other tracked pitch sees zero confidence and decays through the
// normal release path, so a legato change from one key to the next yields
// the new onset before the old release.
type Mono struct {
	bank
	maxCents float64
}

// NewMono creates a monophonic tracker. Frequencies more than maxCents away
// from the nearest key are ignored; 0 accepts any deviation.
func NewMono(config Config, thresholds Thresholds, maxCents float64) (*Mono, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}
	m := &Mono{maxCents: maxCents}
	m.init(config, thresholds)
	return m, nil
}

// Update feeds one frame and appends any events it produces to dst
func (m *Mono) Update(c note.MonoCandidate, dst []note.Event) []note.Event {
	var single [1]note.PitchConfidence
	candidates := single[:0]

	if c.FrequencyHz > 0 {
		if p, cents, ok := note.FrequencyToPitch(c.FrequencyHz); ok && (m.maxCents <= 0 || math.Abs(cents) <= m.maxCents) {
			candidates = append(candidates, note.PitchConfidence{Pitch: p, Confidence: c.Confidence})
		}
	}

	return m.update(c.Time, candidates, dst)
}

// SetThresholds installs new confidence thresholds, effective next frame.
// Invalid thresholds are rejected and the previous ones kept.
func (m *Mono) SetThresholds(t Thresholds) error {
	if err := t.Validate(); err != nil {
		return err
	}
	m.thresholds = t
	return nil
}

// Thresholds returns the thresholds in effect
func (m *Mono) Thresholds() Thresholds { return m.thresholds }

// Reset drops all tracked state without emitting releases
func (m *Mono) Reset() { m.reset() }

// ReleaseAll closes every sounding note at t
func (m *Mono) ReleaseAll(t time.Duration, dst []note.Event) []note.Event {
	return m.releaseAll(t, dst)
}

// State reports the state of one pitch
func (m *Mono) State(p note.Pitch) note.State { return m.state(p) }

// Active appends the tracked pitches to dst
func (m *Mono) Active(dst []NoteState) []NoteState { return m.snapshot(dst) }

// Sounding is the number of confirmed, unreleased notes
func (m *Mono) Sounding() int { return m.confirmed() }
