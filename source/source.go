// Package source holds the producers of live note events: the MIDI
// controller, the microphone sample feed and the on-screen keyboard.
//
// Every source hands its events to the consumer through a lock-free
// single-producer/single-consumer ring. Producer-side calls never block,
// allocate or log; when a ring is full the event is dropped and counted.
package source

import (
	"sync/atomic"
	"time"

	"github.com/RyanBlaney/sonido-keys/note"
)

// EventSource is the consumer-side view of an input source
type EventSource interface {
	// Kind identifies the source for arbitration
	Kind() note.Source

	// Latency is the declared capture-to-event delay subtracted from
	// event timestamps
	Latency() time.Duration

	// Live reports whether the source produced an event or heartbeat
	// within window of now
	Live(now, window time.Duration) bool

	// Drain appends every buffered event to dst in arrival order
	Drain(dst []note.Event) []note.Event

	// Dropped counts events lost to buffer overflow
	Dropped() uint64
}

// Clock yields the session time shared by every source
type Clock interface {
	Now() time.Duration
}

// SessionClock is a monotonic clock starting at zero when created
type SessionClock struct {
	start time.Time
}

// NewSessionClock starts a session clock
func NewSessionClock() *SessionClock {
	return &SessionClock{start: time.Now()}
}

// Now returns the time since the session started
func (c *SessionClock) Now() time.Duration {
	return time.Since(c.start)
}

// ManualClock is a clock advanced explicitly, for replays and tests
type ManualClock struct {
	now atomic.Int64
}

// Now returns the current manual time
func (c *ManualClock) Now() time.Duration {
	return time.Duration(c.now.Load())
}

// Set moves the clock to t
func (c *ManualClock) Set(t time.Duration) {
	c.now.Store(int64(t))
}

// Advance moves the clock forward by d and returns the new time
func (c *ManualClock) Advance(d time.Duration) time.Duration {
	return time.Duration(c.now.Add(int64(d)))
}

// heartbeat tracks the last sign of life of a source
type heartbeat struct {
	connected atomic.Bool
	last      atomic.Int64
}

func (h *heartbeat) beat(t time.Duration) {
	h.last.Store(int64(t))
}

func (h *heartbeat) live(now, window time.Duration) bool {
	if !h.connected.Load() {
		return false
	}
	return now-time.Duration(h.last.Load()) <= window
}
