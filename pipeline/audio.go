package pipeline

import (
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/RyanBlaney/sonido-keys/algorithms/common"
	"github.com/RyanBlaney/sonido-keys/algorithms/filters"
	"github.com/RyanBlaney/sonido-keys/calibration"
	"github.com/RyanBlaney/sonido-keys/logging"
	"github.com/RyanBlaney/sonido-keys/note"
	"github.com/RyanBlaney/sonido-keys/pitch"
	"github.com/RyanBlaney/sonido-keys/source"
	"github.com/RyanBlaney/sonido-keys/tracker"
)

// ErrBusy is returned when too many control requests are queued
var ErrBusy = errors.New("audio pipeline control queue full")

type noteTracker interface {
	SetThresholds(tracker.Thresholds) error
	Thresholds() tracker.Thresholds
	ReleaseAll(t time.Duration, dst []note.Event) []note.Event
	Reset()
}

// Audio is the microphone event source. The capture callback writes into
// Microphone(); one analysis goroutine calls Process; the arbiter drains.
type Audio struct {
	config Config
	mic    *source.Microphone

	dc       *filters.DCRemoval
	filtered []float64
	primed   bool

	mono        *pitch.Mono
	monoTracker *tracker.Mono
	estimator   pitch.Estimator
	polyTracker *tracker.Poly
	tracker     noteTracker
	candidates  note.PolyFrame

	pending  []note.Event
	ring     *common.Ring[note.Event]
	lastTime time.Duration

	control      chan func()
	calibrator   *calibration.Calibrator
	onCalibrated func(calibration.Result, error)

	failures     atomic.Uint64
	lastDropped  uint64
	lastFailures uint64
	limiter      *rate.Limiter
	logger       logging.Logger
}

// NewAudio builds the audio path with the estimator the mode calls for
func NewAudio(config Config) (*Audio, error) {
	return newAudio(config, nil)
}

// NewAudioWithEstimator builds a polyphonic audio path around est
func NewAudioWithEstimator(config Config, est pitch.Estimator) (*Audio, error) {
	if config.Mode != Polyphonic {
		return nil, errors.New("custom estimators require polyphonic mode")
	}
	return newAudio(config, est)
}

func newAudio(config Config, est pitch.Estimator) (*Audio, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if est != nil && est.WindowSize() != config.Microphone.WindowSize {
		return nil, errors.New("estimator window differs from microphone window")
	}

	mic, err := source.NewMicrophone(config.Microphone)
	if err != nil {
		return nil, err
	}

	a := &Audio{
		config:   config,
		mic:      mic,
		filtered: make([]float64, config.Microphone.WindowSize),
		pending:  make([]note.Event, 0, 2*tracker.DefaultConfig().MaxPolyphony+2),
		ring:     common.NewRing[note.Event](config.EventBuffer),
		control:  make(chan func(), 8),
		limiter:  rate.NewLimiter(rate.Every(config.WarnInterval), 1),
		logger: logging.WithFields(logging.Fields{
			"component": "audio_pipeline",
			"mode":      config.Mode.String(),
		}),
	}
	if config.DCCutoff > 0 {
		a.dc = filters.NewDCRemovalWithCutoff(config.Microphone.SampleRate, config.DCCutoff)
	}

	switch config.Mode {
	case Monophonic:
		if a.mono, err = pitch.NewMono(config.Mono); err != nil {
			return nil, err
		}
		if a.monoTracker, err = tracker.NewMono(config.Tracker, config.Thresholds, config.MaxCents); err != nil {
			return nil, err
		}
		a.tracker = a.monoTracker
	case Polyphonic:
		if est == nil {
			poly, err := pitch.NewPoly(config.Poly)
			if err != nil {
				return nil, err
			}
			est = poly
		}
		a.estimator = est
		if a.polyTracker, err = tracker.NewPoly(config.Tracker, config.Thresholds); err != nil {
			return nil, err
		}
		a.tracker = a.polyTracker
	}

	return a, nil
}

// Microphone is the capture side the host's audio callback writes into
func (a *Audio) Microphone() *source.Microphone {
	return a.mic
}

// Process analyses every complete frame waiting in the microphone and
// returns how many were processed
func (a *Audio) Process() int {
	a.runControl()

	frames := 0
	for {
		frame, t, ok := a.mic.NextFrame()
		if !ok {
			break
		}
		frames++
		a.lastTime = t
		a.pending = a.analyze(frame, t, a.pending[:0])
		a.publish()
	}

	a.warnThrottled()
	return frames
}

func (a *Audio) analyze(frame []float64, t time.Duration, dst []note.Event) []note.Event {
	fresh := len(frame)
	if a.primed {
		fresh = a.config.Microphone.HopSize
	}
	a.primed = true

	x := frame
	if a.dc != nil {
		copy(a.filtered, a.filtered[fresh:])
		tail := a.filtered[len(a.filtered)-fresh:]
		copy(tail, frame[len(frame)-fresh:])
		a.dc.ProcessInPlace(tail)
		x = a.filtered
	}

	if a.calibrator != nil {
		if a.calibrator.Feed(x[len(x)-fresh:]) {
			a.finishCalibration()
		}
		return dst
	}

	gated := common.RMS(x) < a.tracker.Thresholds().GateRMS

	if a.monoTracker != nil {
		c := note.MonoCandidate{Time: t}
		if !gated {
			c = a.estimateMono(x, t)
		}
		return a.monoTracker.Update(c, dst)
	}

	if gated {
		a.candidates.Reset(t)
	} else {
		a.estimatePoly(x, t)
	}
	return a.polyTracker.Update(&a.candidates, dst)
}

// estimateMono treats any estimator failure as silence for this frame
func (a *Audio) estimateMono(x []float64, t time.Duration) (c note.MonoCandidate) {
	defer func() {
		if r := recover(); r != nil {
			a.failures.Add(1)
			c = note.MonoCandidate{Time: t}
		}
	}()

	var err error
	c, err = a.mono.EstimateFrequency(x, t)
	if err != nil {
		a.failures.Add(1)
		return note.MonoCandidate{Time: t}
	}
	return c
}

func (a *Audio) estimatePoly(x []float64, t time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			a.failures.Add(1)
			a.candidates.Reset(t)
		}
	}()

	if err := a.estimator.Estimate(x, t, &a.candidates); err != nil {
		a.failures.Add(1)
		a.candidates.Reset(t)
	}
}

func (a *Audio) publish() {
	for _, e := range a.pending {
		a.ring.Push(e)
	}
}

func (a *Audio) warnThrottled() {
	dropped := a.mic.Dropped() + a.ring.Dropped()
	failures := a.failures.Load()
	if dropped == a.lastDropped && failures == a.lastFailures {
		return
	}
	if !a.limiter.Allow() {
		return
	}

	a.logger.Warn("Audio frames lost", logging.Fields{
		"dropped_total":  dropped,
		"dropped_new":    dropped - a.lastDropped,
		"failures_total": failures,
		"failures_new":   failures - a.lastFailures,
	})
	a.lastDropped = dropped
	a.lastFailures = failures
}

func (a *Audio) runControl() {
	for {
		select {
		case fn := <-a.control:
			fn()
		default:
			return
		}
	}
}

func (a *Audio) enqueue(fn func()) error {
	select {
	case a.control <- fn:
		return nil
	default:
		return ErrBusy
	}
}

// SetThresholds replaces the tracker thresholds before the next frame
func (a *Audio) SetThresholds(t tracker.Thresholds) error {
	if err := t.Validate(); err != nil {
		return err
	}
	return a.enqueue(func() {
		_ = a.tracker.SetThresholds(t)
	})
}

// Thresholds returns the thresholds in effect. Call from the analysis
// goroutine or after it has stopped.
func (a *Audio) Thresholds() tracker.Thresholds {
	return a.tracker.Thresholds()
}

// Calibrate measures the room with c, starting at the next Process call.
// Sounding notes are released, tracking pauses until c is done, and the
// derived thresholds are installed unless calibration fails. done, if not
// nil, runs on the analysis goroutine with the outcome.
func (a *Audio) Calibrate(c *calibration.Calibrator, done func(calibration.Result, error)) error {
	return a.enqueue(func() {
		a.pending = a.tracker.ReleaseAll(a.lastTime, a.pending[:0])
		a.publish()
		c.Reset()
		a.calibrator = c
		a.onCalibrated = done
		a.logger.Info("Calibration started")
	})
}

// Calibrating reports whether a calibration is collecting audio. Call from
// the analysis goroutine.
func (a *Audio) Calibrating() bool {
	return a.calibrator != nil
}

func (a *Audio) finishCalibration() {
	res, err := a.calibrator.Finish()
	_ = calibration.Apply(res, err, a.logger, a.tracker)
	if a.onCalibrated != nil {
		a.onCalibrated(res, err)
	}
	a.calibrator = nil
	a.onCalibrated = nil
}

// Flush releases every sounding note at the last frame time. Call from the
// analysis goroutine when capture stops.
func (a *Audio) Flush() {
	a.pending = a.tracker.ReleaseAll(a.lastTime, a.pending[:0])
	a.publish()
}

// Reset drops buffered audio and tracker state without emitting events
func (a *Audio) Reset() {
	a.mic.Reset()
	a.tracker.Reset()
	if a.dc != nil {
		a.dc.Reset()
	}
	a.primed = false
}

// Failures counts frames where the estimator failed or panicked
func (a *Audio) Failures() uint64 {
	return a.failures.Load()
}

// SamplesDropped counts audio samples lost to microphone overflow
func (a *Audio) SamplesDropped() uint64 {
	return a.mic.Dropped()
}

func (a *Audio) Kind() note.Source { return note.Audio }

func (a *Audio) Latency() time.Duration { return a.mic.Latency() }

func (a *Audio) Live(now, window time.Duration) bool { return a.mic.Live(now, window) }

func (a *Audio) Drain(dst []note.Event) []note.Event { return a.ring.Drain(dst) }

func (a *Audio) Dropped() uint64 { return a.ring.Dropped() }

var _ source.EventSource = (*Audio)(nil)
