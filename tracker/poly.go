package tracker

import (
	"time"

	"github.com/RyanBlaney/sonido-keys/note"
)

// Poly tracks up to MaxPolyphony simultaneous pitches. Candidates beyond
// the strongest MaxPolyphony in a frame are discarded, and no new attack
// starts while MaxPolyphony notes are already sounding.
type Poly struct {
	bank
	scratch [note.MaxFrameCandidates]note.PitchConfidence
}

// NewPoly creates a polyphonic tracker
func NewPoly(config Config, thresholds Thresholds) (*Poly, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}
	p := &Poly{}
	p.init(config, thresholds)
	return p, nil
}

// Update feeds one frame and appends any events it produces to dst
func (p *Poly) Update(f *note.PolyFrame, dst []note.Event) []note.Event {
	n := 0
	for _, c := range f.List() {
		if !c.Pitch.Valid() {
			continue
		}
		// a pitch listed twice keeps its strongest entry
		if j := p.find(c.Pitch, n); j >= 0 {
			if p.scratch[j].Confidence >= c.Confidence {
				continue
			}
			copy(p.scratch[j:n-1], p.scratch[j+1:n])
			n--
		}
		// insertion sort by descending confidence; N is at most 16
		i := n
		for i > 0 && p.scratch[i-1].Confidence < c.Confidence {
			p.scratch[i] = p.scratch[i-1]
			i--
		}
		p.scratch[i] = c
		n++
	}
	if n > p.config.MaxPolyphony {
		n = p.config.MaxPolyphony
	}

	return p.update(f.Time, p.scratch[:n], dst)
}

func (p *Poly) find(pitch note.Pitch, n int) int {
	for j := 0; j < n; j++ {
		if p.scratch[j].Pitch == pitch {
			return j
		}
	}
	return -1
}

// SetThresholds installs new confidence thresholds, effective next frame.
// Invalid thresholds are rejected and the previous ones kept.
func (p *Poly) SetThresholds(t Thresholds) error {
	if err := t.Validate(); err != nil {
		return err
	}
	p.thresholds = t
	return nil
}

// Thresholds returns the thresholds in effect
func (p *Poly) Thresholds() Thresholds { return p.thresholds }

// Reset drops all tracked state without emitting releases
func (p *Poly) Reset() { p.reset() }

// ReleaseAll closes every sounding note at t
func (p *Poly) ReleaseAll(t time.Duration, dst []note.Event) []note.Event {
	return p.releaseAll(t, dst)
}

// State reports the state of one pitch
func (p *Poly) State(pitch note.Pitch) note.State { return p.state(pitch) }

// Active appends the tracked pitches to dst
func (p *Poly) Active(dst []NoteState) []NoteState { return p.snapshot(dst) }

// Sounding is the number of confirmed, unreleased notes
func (p *Poly) Sounding() int { return p.confirmed() }
