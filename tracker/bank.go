package tracker

import (
	"time"

	"github.com/RyanBlaney/sonido-keys/note"
)

const numPitches = int(note.MaxPitch) + 1

// NoteState is a read-only view of one tracked pitch (ActiveNoteState)
type NoteState struct {
	Pitch                note.Pitch
	State                note.State
	ConsecutiveOnFrames  int
	ConsecutiveOffFrames int
	LastConfidence       float64
}

type slot struct {
	allocated bool
	state     note.State
	// armed marks a Silent pitch counting towards its onset
	armed bool

	onFrames      int
	offFrames     int
	confirmFrames int
	silentFrames  int

	lastConfidence float64
	attackTime     time.Duration
	releaseTime    time.Duration
}

// bank is the per-pitch hysteresis arena shared by the mono and poly
// trackers. Slots are indexed by MIDI number, so there is never more than
// one state per pitch and no allocation happens per frame.
//
// A pitch stays Silent while it counts its first OnFrames frames. Attacking
// is the confirming frame itself: the slot moves on to Sustained and emits
// the Onset before Update returns, so it is never observed between frames.
type bank struct {
	config     Config
	thresholds Thresholds
	source     note.Source

	slots   [numPitches]slot
	active  [numPitches]note.Pitch
	nActive int
	// reserved counts armed and sounding pitches; never above MaxPolyphony
	reserved int

	frame    uint64
	evidence [numPitches]float64
	stamp    [numPitches]uint64
}

func (b *bank) init(config Config, thresholds Thresholds) {
	b.config = config
	b.thresholds = thresholds
	b.source = note.Audio
}

// update advances every tracked pitch by one frame. candidates must already
// be bounded to the pitches this frame may track.
func (b *bank) update(t time.Duration, candidates []note.PitchConfidence, dst []note.Event) []note.Event {
	b.frame++

	for _, c := range candidates {
		if !c.Pitch.Valid() {
			continue
		}
		b.evidence[c.Pitch] = c.Confidence
		b.stamp[c.Pitch] = b.frame

		s := &b.slots[c.Pitch]
		if c.Confidence < b.thresholds.Onset || s.armed || s.state != note.Silent {
			continue
		}
		if b.reserved >= b.config.MaxPolyphony {
			continue
		}
		if !s.allocated {
			*s = slot{allocated: true}
			b.active[b.nActive] = c.Pitch
			b.nActive++
		}
		s.armed = true
		s.onFrames = 0
		s.silentFrames = 0
		s.attackTime = t
		b.reserved++
	}

	for i := 0; i < b.nActive; i++ {
		p := b.active[i]
		confidence := 0.0
		if b.stamp[p] == b.frame {
			confidence = b.evidence[p]
		}
		dst = b.step(p, confidence, t, dst)
	}

	b.recycle()
	return dst
}

func (b *bank) step(p note.Pitch, confidence float64, t time.Duration, dst []note.Event) []note.Event {
	s := &b.slots[p]
	s.lastConfidence = confidence

	switch s.state {
	case note.Silent:
		if !s.armed {
			s.silentFrames++
			break
		}
		if confidence >= b.thresholds.Onset {
			s.onFrames++
			if s.onFrames >= b.config.OnFrames {
				dst = b.confirmOnset(p, s, dst)
			}
		} else {
			// unconfirmed: nothing was emitted, so nothing to release
			s.armed = false
			s.onFrames = 0
			s.silentFrames++
			b.reserved--
		}

	case note.Sustained:
		if b.config.MaxSustain > 0 && t-s.attackTime >= b.config.MaxSustain {
			s.releaseTime = t
			return b.commitRelease(p, s, dst)
		}
		if confidence < b.thresholds.Release {
			s.offFrames++
			if s.offFrames == 1 {
				s.releaseTime = t
			}
			if s.offFrames >= b.config.OffFrames {
				s.state = note.Releasing
				s.confirmFrames = 0
				if b.config.ReleaseConfirmFrames == 0 {
					dst = b.commitRelease(p, s, dst)
				}
			}
		} else {
			s.offFrames = 0
		}

	case note.Releasing:
		if confidence >= b.thresholds.Release {
			s.state = note.Sustained
			s.offFrames = 0
			s.confirmFrames = 0
			return dst
		}
		s.offFrames++
		s.confirmFrames++
		if s.confirmFrames >= b.config.ReleaseConfirmFrames || (b.config.MaxSustain > 0 && t-s.attackTime >= b.config.MaxSustain) {
			dst = b.commitRelease(p, s, dst)
		}
	}

	return dst
}

func (b *bank) confirmOnset(p note.Pitch, s *slot, dst []note.Event) []note.Event {
	s.armed = false
	s.state = note.Sustained
	s.offFrames = 0
	return append(dst, note.Event{
		Pitch:  p,
		Kind:   note.Onset,
		Time:   s.attackTime,
		Source: b.source,
	})
}

func (b *bank) commitRelease(p note.Pitch, s *slot, dst []note.Event) []note.Event {
	s.state = note.Silent
	s.onFrames = 0
	s.offFrames = 0
	s.confirmFrames = 0
	s.silentFrames = 0
	b.reserved--
	return append(dst, note.Event{
		Pitch:  p,
		Kind:   note.Release,
		Time:   s.releaseTime,
		Source: b.source,
	})
}

// recycle frees slots that stayed silent for longer than the hold window
func (b *bank) recycle() {
	w := 0
	for i := 0; i < b.nActive; i++ {
		p := b.active[i]
		s := &b.slots[p]
		if s.state == note.Silent && !s.armed && s.silentFrames > b.config.HoldFrames {
			*s = slot{}
			continue
		}
		b.active[w] = p
		w++
	}
	b.nActive = w
}

// releaseAll emits a Release at t for every confirmed note, then clears
// all state
func (b *bank) releaseAll(t time.Duration, dst []note.Event) []note.Event {
	for i := 0; i < b.nActive; i++ {
		p := b.active[i]
		switch b.slots[p].state {
		case note.Sustained, note.Releasing:
			dst = append(dst, note.Event{Pitch: p, Kind: note.Release, Time: t, Source: b.source})
		}
	}
	b.reset()
	return dst
}

// reset discards all state without emitting anything
func (b *bank) reset() {
	for i := 0; i < b.nActive; i++ {
		b.slots[b.active[i]] = slot{}
	}
	b.nActive = 0
	b.reserved = 0
}

func (b *bank) state(p note.Pitch) note.State {
	if !p.Valid() {
		return note.Silent
	}
	return b.slots[p].state
}

func (b *bank) snapshot(dst []NoteState) []NoteState {
	for i := 0; i < b.nActive; i++ {
		p := b.active[i]
		s := &b.slots[p]
		dst = append(dst, NoteState{
			Pitch:                p,
			State:                s.state,
			ConsecutiveOnFrames:  s.onFrames,
			ConsecutiveOffFrames: s.offFrames,
			LastConfidence:       s.lastConfidence,
		})
	}
	return dst
}

// sounding notes are those confirmed and not yet released
func (b *bank) confirmed() int {
	n := 0
	for i := 0; i < b.nActive; i++ {
		switch b.slots[b.active[i]].state {
		case note.Sustained, note.Releasing:
			n++
		}
	}
	return n
}
