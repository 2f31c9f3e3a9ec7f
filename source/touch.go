package source

import (
	"time"

	"github.com/RyanBlaney/sonido-keys/algorithms/common"
	"github.com/RyanBlaney/sonido-keys/note"
)

// TouchConfig sizes the on-screen keyboard buffer
type TouchConfig struct {
	BufferSize int           `json:"buffer_size"`
	Latency    time.Duration `json:"latency"`
}

// DefaultTouchConfig returns the touch defaults
func DefaultTouchConfig() TouchConfig {
	return TouchConfig{
		BufferSize: 128,
		Latency:    12 * time.Millisecond,
	}
}

// Touch is the on-screen keyboard. It has no velocity and is live for as
// long as it is shown.
type Touch struct {
	ring    *common.Ring[note.Event]
	latency time.Duration
	alive   heartbeat
}

// NewTouch creates a hidden touch keyboard
func NewTouch(config TouchConfig) *Touch {
	return &Touch{
		ring:    common.NewRing[note.Event](config.BufferSize),
		latency: config.Latency,
	}
}

// Press records a key going down at t; false means the event was dropped
func (k *Touch) Press(p note.Pitch, t time.Duration) bool {
	k.alive.beat(t)
	return k.ring.Push(note.Event{Pitch: p, Kind: note.Onset, Time: t, Source: note.Touch})
}

// Lift records a key coming up at t
func (k *Touch) Lift(p note.Pitch, t time.Duration) bool {
	k.alive.beat(t)
	return k.ring.Push(note.Event{Pitch: p, Kind: note.Release, Time: t, Source: note.Touch})
}

// SetVisible shows or hides the keyboard
func (k *Touch) SetVisible(visible bool) {
	k.alive.connected.Store(visible)
}

func (k *Touch) Kind() note.Source { return note.Touch }

func (k *Touch) Latency() time.Duration { return k.latency }

// Live is true while visible; a shown keyboard needs no heartbeat
func (k *Touch) Live(now, window time.Duration) bool {
	return k.alive.connected.Load()
}

func (k *Touch) Drain(dst []note.Event) []note.Event {
	return k.ring.Drain(dst)
}

func (k *Touch) Dropped() uint64 {
	return k.ring.Dropped()
}
