package source

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"github.com/RyanBlaney/sonido-keys/algorithms/common"
	"github.com/RyanBlaney/sonido-keys/note"
)

// ControllerConfig sizes the controller's event buffer
type ControllerConfig struct {
	BufferSize int           `json:"buffer_size"`
	Latency    time.Duration `json:"latency"`
}

// DefaultControllerConfig returns the controller defaults
func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		BufferSize: 512,
		Latency:    10 * time.Millisecond,
	}
}

// Controller turns MIDI keyboard messages into note events. Messages
// arrive on the driver's listener goroutine; the consumer drains events
// from its own goroutine.
type Controller struct {
	ring    *common.Ring[note.Event]
	clock   Clock
	latency atomic.Int64
	alive   heartbeat

	// listener errors are recorded here and picked up by the watcher
	failed atomic.Bool

	mu     sync.Mutex
	port   drivers.In
	stop   func()
	device string
}

// NewController creates a disconnected controller source
func NewController(config ControllerConfig, clock Clock) *Controller {
	c := &Controller{
		ring:  common.NewRing[note.Event](config.BufferSize),
		clock: clock,
	}
	c.latency.Store(int64(config.Latency))
	return c
}

// HandleMessage converts one MIDI message. Any message counts as a sign
// of life; only note on/off produce events.
func (c *Controller) HandleMessage(msg midi.Message) {
	now := c.clock.Now()
	c.alive.beat(now)

	var ch, key, vel uint8
	switch {
	case msg.GetNoteStart(&ch, &key, &vel):
		c.ring.Push(note.Event{
			Pitch:       note.Pitch(key),
			Kind:        note.Onset,
			Time:        now,
			Velocity:    float64(vel) / 127.0,
			HasVelocity: true,
			Source:      note.Controller,
		})
	case msg.GetNoteEnd(&ch, &key):
		c.ring.Push(note.Event{
			Pitch:  note.Pitch(key),
			Kind:   note.Release,
			Time:   now,
			Source: note.Controller,
		})
	}
}

// Listen opens in and routes its messages into the controller, replacing
// any previous port. The profile's latency becomes the declared latency.
func (c *Controller) Listen(in drivers.In, profile DeviceProfile) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closeLocked()

	if !in.IsOpen() {
		if err := in.Open(); err != nil {
			return fmt.Errorf("open %q: %w", in.String(), err)
		}
	}

	c.failed.Store(false)
	stop, err := midi.ListenTo(in, func(msg midi.Message, _ int32) {
		c.HandleMessage(msg)
	}, midi.HandleError(func(error) {
		c.failed.Store(true)
		c.alive.connected.Store(false)
	}))
	if err != nil {
		_ = in.Close()
		return fmt.Errorf("listen %q: %w", in.String(), err)
	}

	if profile.Latency > 0 {
		c.latency.Store(int64(profile.Latency))
	}
	c.port = in
	c.stop = stop
	c.device = in.String()
	c.alive.beat(c.clock.Now())
	c.alive.connected.Store(true)
	return nil
}

// Disconnect closes the current port, if any
func (c *Controller) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Controller) closeLocked() {
	if c.stop != nil {
		c.stop()
		c.stop = nil
	}
	if c.port != nil {
		_ = c.port.Close()
		c.port = nil
	}
	c.device = ""
	c.alive.connected.Store(false)
}

// SetConnected marks the controller connected without a driver port, for
// hosts that deliver MIDI themselves through HandleMessage
func (c *Controller) SetConnected(connected bool) {
	if connected {
		c.alive.beat(c.clock.Now())
	}
	c.alive.connected.Store(connected)
}

// Heartbeat records that the device is still present
func (c *Controller) Heartbeat(t time.Duration) {
	c.alive.beat(t)
}

// Connected reports whether a device is attached and healthy
func (c *Controller) Connected() bool {
	return c.alive.connected.Load()
}

// Failed reports whether the listener reported an error since Listen
func (c *Controller) Failed() bool {
	return c.failed.Load()
}

// Device is the name of the connected port, empty when disconnected
func (c *Controller) Device() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.device
}

func (c *Controller) Kind() note.Source { return note.Controller }

func (c *Controller) Latency() time.Duration {
	return time.Duration(c.latency.Load())
}

func (c *Controller) Live(now, window time.Duration) bool {
	return c.alive.live(now, window)
}

func (c *Controller) Drain(dst []note.Event) []note.Event {
	return c.ring.Drain(dst)
}

func (c *Controller) Dropped() uint64 {
	return c.ring.Dropped()
}
