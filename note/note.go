// Package note holds the value types that flow between the input sources,
// the trackers, the arbiter and the scoring engine.
package note

import (
	"fmt"
	"time"
)

// Pitch is a MIDI note number in [0,127]
type Pitch uint8

const (
	// MaxPitch is the highest MIDI note number
	MaxPitch Pitch = 127
	// PianoLow is A0, the lowest key of an 88-key piano
	PianoLow Pitch = 21
	// PianoHigh is C8, the highest key of an 88-key piano
	PianoHigh Pitch = 108
	// PianoKeys is the number of keys between PianoLow and PianoHigh inclusive
	PianoKeys = int(PianoHigh-PianoLow) + 1
)

// Kind distinguishes onsets from releases
type Kind uint8

const (
	Onset Kind = iota
	Release
)

func (k Kind) String() string {
	switch k {
	case Onset:
		return "onset"
	case Release:
		return "release"
	default:
		return "unknown"
	}
}

// Source is the tagged enum of physical input kinds. The declaration order
// is the arbitration priority: a lower value wins.
type Source uint8

const (
	Controller Source = iota
	Audio
	Touch

	// NumSources is the number of Source kinds
	NumSources = 3
)

func (s Source) String() string {
	switch s {
	case Controller:
		return "controller"
	case Audio:
		return "audio"
	case Touch:
		return "touch"
	default:
		return "unknown"
	}
}

// Priority returns the arbitration rank, 0 being the most preferred
func (s Source) Priority() int {
	return int(s)
}

// ParseSource maps a source name back to a Source
func ParseSource(name string) (Source, error) {
	for s := Source(0); s < NumSources; s++ {
		if s.String() == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown input source %q", name)
}

// Event is a committed onset or release (LiveNoteEvent). Time is an offset
// on the session clock. Velocity is only meaningful when HasVelocity is set;
// touch input never carries one.
type Event struct {
	Pitch       Pitch         `json:"pitch"`
	Kind        Kind          `json:"kind"`
	Time        time.Duration `json:"time"`
	Velocity    float64       `json:"velocity,omitempty"`
	HasVelocity bool          `json:"has_velocity"`
	Source      Source        `json:"source"`
}

func (e Event) String() string {
	if e.HasVelocity {
		return fmt.Sprintf("%s %s @%v vel=%.2f (%s)", e.Kind, e.Pitch.Name(), e.Time, e.Velocity, e.Source)
	}
	return fmt.Sprintf("%s %s @%v (%s)", e.Kind, e.Pitch.Name(), e.Time, e.Source)
}

// State is the hysteresis state of one pitch inside a tracker
type State uint8

const (
	Silent State = iota
	Attacking
	Sustained
	Releasing
)

func (s State) String() string {
	switch s {
	case Silent:
		return "silent"
	case Attacking:
		return "attacking"
	case Sustained:
		return "sustained"
	case Releasing:
		return "releasing"
	default:
		return "unknown"
	}
}
