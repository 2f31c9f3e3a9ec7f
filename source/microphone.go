package source

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/RyanBlaney/sonido-keys/algorithms/common"
)

// MicrophoneConfig describes the capture stream and the analysis framing
type MicrophoneConfig struct {
	SampleRate int `json:"sample_rate"`
	// DeviceBuffer is the number of samples per device callback
	DeviceBuffer int `json:"device_buffer"`
	// RingSamples bounds audio waiting for analysis
	RingSamples int `json:"ring_samples"`
	WindowSize  int `json:"window_size"`
	HopSize     int `json:"hop_size"`
	// InferenceBudget is the worst-case estimator time per frame
	InferenceBudget time.Duration `json:"inference_budget"`
}

// DefaultMicrophoneConfig suits the monophonic estimator at 44.1kHz
func DefaultMicrophoneConfig() MicrophoneConfig {
	return MicrophoneConfig{
		SampleRate:      44100,
		DeviceBuffer:    256,
		RingSamples:     1 << 16,
		WindowSize:      2048,
		HopSize:         512,
		InferenceBudget: 5 * time.Millisecond,
	}
}

// Validate checks the framing
func (c MicrophoneConfig) Validate() error {
	if c.SampleRate <= 0 || c.DeviceBuffer <= 0 {
		return fmt.Errorf("invalid capture stream: rate %d, buffer %d", c.SampleRate, c.DeviceBuffer)
	}
	if c.WindowSize <= 0 || c.HopSize <= 0 || c.HopSize > c.WindowSize {
		return fmt.Errorf("invalid framing: window %d, hop %d", c.WindowSize, c.HopSize)
	}
	if c.RingSamples < c.WindowSize+c.DeviceBuffer {
		return fmt.Errorf("ring of %d samples cannot hold a window plus a device buffer", c.RingSamples)
	}
	return nil
}

func (c MicrophoneConfig) samples(n uint64) time.Duration {
	return time.Duration(n) * time.Second / time.Duration(c.SampleRate)
}

// Microphone carries raw audio from the capture callback to the analysis
// goroutine and cuts it into overlapping frames.
type Microphone struct {
	config MicrophoneConfig
	ring   *common.Ring[float32]
	alive  heartbeat

	// producer side
	accepted uint64
	origin   atomic.Int64

	// consumer side
	window   []float64
	scratch  []float32
	consumed uint64
	primed   bool
}

// NewMicrophone allocates the sample ring and frame buffers
func NewMicrophone(config MicrophoneConfig) (*Microphone, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Microphone{
		config:  config,
		ring:    common.NewRing[float32](config.RingSamples),
		window:  make([]float64, config.WindowSize),
		scratch: make([]float32, config.WindowSize),
	}, nil
}

// Write is called from the capture callback with the samples captured
// starting at session time t. It copies what fits and returns the count.
func (m *Microphone) Write(samples []float32, t time.Duration) int {
	m.origin.Store(int64(t - m.config.samples(m.accepted)))
	n := m.ring.Write(samples)
	m.accepted += uint64(n)
	m.alive.beat(t)
	return n
}

// SetActive marks the capture device open or closed
func (m *Microphone) SetActive(active bool) {
	m.alive.connected.Store(active)
}

// NextFrame returns the next analysis window and the session time of its
// newest sample. The slice is reused by the following call.
func (m *Microphone) NextFrame() ([]float64, time.Duration, bool) {
	need := m.config.HopSize
	if !m.primed {
		need = m.config.WindowSize
	}
	if m.ring.Len() < need {
		return nil, 0, false
	}

	if m.primed {
		copy(m.window, m.window[need:])
	}
	n := m.ring.Read(m.scratch[:need])
	dst := m.window[len(m.window)-need:]
	for i := 0; i < n; i++ {
		dst[i] = float64(m.scratch[i])
	}
	m.consumed += uint64(need)
	m.primed = true

	t := time.Duration(m.origin.Load()) + m.config.samples(m.consumed-1)
	return m.window, t, true
}

// Reset discards buffered audio; the next frame starts a fresh window
func (m *Microphone) Reset() {
	m.consumed += uint64(m.ring.Discard())
	m.primed = false
}

// Latency is device buffering plus half a window plus inference time
func (m *Microphone) Latency() time.Duration {
	return m.config.samples(uint64(m.config.DeviceBuffer)) +
		m.config.samples(uint64(m.config.WindowSize/2)) +
		m.config.InferenceBudget
}

// Live reports whether audio arrived within window of now
func (m *Microphone) Live(now, window time.Duration) bool {
	return m.alive.live(now, window)
}

// Dropped counts samples lost to overflow
func (m *Microphone) Dropped() uint64 {
	return m.ring.Dropped()
}

// SampleRate of the capture stream
func (m *Microphone) SampleRate() int {
	return m.config.SampleRate
}

// Config returns the microphone's configuration
func (m *Microphone) Config() MicrophoneConfig {
	return m.config
}
