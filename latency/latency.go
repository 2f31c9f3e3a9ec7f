// Package latency is a diagnostic self-test that pushes synthetic key
// presses through an input source and the arbiter and measures how long
// they take to come out the other side.
package latency

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/RyanBlaney/sonido-keys/arbiter"
	"github.com/RyanBlaney/sonido-keys/logging"
	"github.com/RyanBlaney/sonido-keys/note"
	"github.com/RyanBlaney/sonido-keys/source"
)

// ErrNoSamples is returned when no press completed
var ErrNoSamples = errors.New("no latency samples collected")

// Target is an input path under test. NoteOn and NoteOff inject on the
// producer side; Source is what the arbiter consumes.
type Target interface {
	Name() string
	Source() source.EventSource
	Prepare()
	NoteOn(p note.Pitch)
	NoteOff(p note.Pitch)
}

// Budgets are the perceived-latency limits per input kind
var Budgets = map[note.Source]time.Duration{
	note.Touch:      20 * time.Millisecond,
	note.Controller: 15 * time.Millisecond,
}

// Config tunes a self-test run
type Config struct {
	Iterations int           `json:"iterations"`
	Pitch      note.Pitch    `json:"pitch"`
	Interval   time.Duration `json:"interval"`
	// Timeout bounds the wait for a single event
	Timeout      time.Duration `json:"timeout"`
	PollInterval time.Duration `json:"poll_interval"`
}

// DefaultConfig presses middle C two hundred times
func DefaultConfig() Config {
	return Config{
		Iterations:   200,
		Pitch:        60,
		Interval:     2 * time.Millisecond,
		Timeout:      250 * time.Millisecond,
		PollInterval: 50 * time.Microsecond,
	}
}

// Report summarises one target. Every sample is the measured in-process
// time plus the source's declared device latency.
type Report struct {
	Target   string        `json:"target"`
	Samples  int           `json:"samples"`
	Timeouts int           `json:"timeouts"`
	Declared time.Duration `json:"declared"`
	Min      time.Duration `json:"min"`
	Max      time.Duration `json:"max"`
	Mean     time.Duration `json:"mean"`
	P50      time.Duration `json:"p50"`
	P95      time.Duration `json:"p95"`
	P99      time.Duration `json:"p99"`
	Budget   time.Duration `json:"budget"`
	Passed   bool          `json:"passed"`
}

func (r Report) String() string {
	verdict := "FAIL"
	if r.Passed {
		verdict = "PASS"
	}
	return fmt.Sprintf("%s %s: p50=%v p95=%v p99=%v budget=%v (%d samples, %d timeouts)",
		verdict, r.Target, r.P50, r.P95, r.P99, r.Budget, r.Samples, r.Timeouts)
}

// Harness runs the self-test
type Harness struct {
	config Config
	clock  source.Clock
	logger logging.Logger
}

// NewHarness creates a harness on clock
func NewHarness(config Config, clock source.Clock) *Harness {
	return &Harness{
		config: config,
		clock:  clock,
		logger: logging.WithFields(logging.Fields{
			"component": "latency",
		}),
	}
}

// Run measures target against budget. On cancellation the samples taken
// so far are reported together with the context error.
func (h *Harness) Run(ctx context.Context, target Target, budget time.Duration) (Report, error) {
	arb := arbiter.New(arbiter.DefaultConfig())
	if err := arb.Register(target.Source()); err != nil {
		return Report{}, err
	}
	target.Prepare()

	report := Report{
		Target:   target.Name(),
		Declared: target.Source().Latency(),
		Budget:   budget,
	}
	samples := make([]float64, 0, 2*h.config.Iterations)
	buf := make([]note.Event, 0, 16)

	var runErr error
	for i := 0; i < h.config.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		for _, kind := range []note.Kind{note.Onset, note.Release} {
			start := time.Now()
			if kind == note.Onset {
				target.NoteOn(h.config.Pitch)
			} else {
				target.NoteOff(h.config.Pitch)
			}

			elapsed, ok := h.await(ctx, arb, kind, start, &buf)
			if !ok {
				report.Timeouts++
				continue
			}
			samples = append(samples, float64(elapsed+report.Declared))
		}

		if h.config.Interval > 0 {
			time.Sleep(h.config.Interval)
		}
	}

	report.Samples = len(samples)
	if len(samples) == 0 {
		if runErr == nil {
			runErr = ErrNoSamples
		}
		return report, runErr
	}

	slices.Sort(samples)
	report.Min = time.Duration(floats.Min(samples))
	report.Max = time.Duration(floats.Max(samples))
	report.Mean = time.Duration(stat.Mean(samples, nil))
	report.P50 = time.Duration(stat.Quantile(0.50, stat.Empirical, samples, nil))
	report.P95 = time.Duration(stat.Quantile(0.95, stat.Empirical, samples, nil))
	report.P99 = time.Duration(stat.Quantile(0.99, stat.Empirical, samples, nil))
	report.Passed = report.Timeouts == 0 && report.P99 <= budget

	fields := logging.Fields{
		"target":   report.Target,
		"samples":  report.Samples,
		"timeouts": report.Timeouts,
		"p50_ms":   report.P50.Seconds() * 1000,
		"p99_ms":   report.P99.Seconds() * 1000,
		"budget":   budget.String(),
	}
	if report.Passed {
		h.logger.Info("Latency self-test passed", fields)
	} else {
		h.logger.Warn("Latency self-test over budget", fields)
	}
	return report, runErr
}

// await polls the arbiter until an event of kind for the configured pitch
// emerges
func (h *Harness) await(ctx context.Context, arb *arbiter.Arbiter, kind note.Kind, start time.Time, buf *[]note.Event) (time.Duration, bool) {
	for {
		*buf = arb.Poll(h.clock.Now(), (*buf)[:0])
		for _, ev := range *buf {
			if ev.Kind == kind && ev.Pitch == h.config.Pitch {
				return time.Since(start), true
			}
		}

		if ctx.Err() != nil || time.Since(start) > h.config.Timeout {
			return 0, false
		}
		time.Sleep(h.config.PollInterval)
	}
}

// RunAll measures each target against its kind's budget
func (h *Harness) RunAll(ctx context.Context, targets ...Target) ([]Report, error) {
	reports := make([]Report, 0, len(targets))
	for _, target := range targets {
		budget, ok := Budgets[target.Source().Kind()]
		if !ok {
			return reports, fmt.Errorf("no latency budget for %s input", target.Source().Kind())
		}
		report, err := h.Run(ctx, target, budget)
		reports = append(reports, report)
		if err != nil {
			return reports, fmt.Errorf("%s: %w", target.Name(), err)
		}
	}
	return reports, nil
}

// TouchTarget drives the on-screen keyboard
type TouchTarget struct {
	touch *source.Touch
	clock source.Clock
}

// NewTouchTarget wraps a fresh touch keyboard
func NewTouchTarget(config source.TouchConfig, clock source.Clock) *TouchTarget {
	return &TouchTarget{touch: source.NewTouch(config), clock: clock}
}

func (t *TouchTarget) Name() string               { return "touch" }
func (t *TouchTarget) Source() source.EventSource { return t.touch }
func (t *TouchTarget) Prepare()                   { t.touch.SetVisible(true) }
func (t *TouchTarget) NoteOn(p note.Pitch)        { t.touch.Press(p, t.clock.Now()) }
func (t *TouchTarget) NoteOff(p note.Pitch)       { t.touch.Lift(p, t.clock.Now()) }

// ControllerTarget feeds synthetic MIDI messages through the controller's
// message handler, the same path a driver listener takes
type ControllerTarget struct {
	ctrl    *source.Controller
	channel uint8
}

// NewControllerTarget wraps a controller built on clock
func NewControllerTarget(config source.ControllerConfig, clock source.Clock) *ControllerTarget {
	return &ControllerTarget{ctrl: source.NewController(config, clock)}
}

func (t *ControllerTarget) Name() string               { return "controller" }
func (t *ControllerTarget) Source() source.EventSource { return t.ctrl }
func (t *ControllerTarget) Prepare()                   { t.ctrl.SetConnected(true) }

func (t *ControllerTarget) NoteOn(p note.Pitch) {
	t.ctrl.HandleMessage(midi.NoteOn(t.channel, uint8(p), 100))
}

func (t *ControllerTarget) NoteOff(p note.Pitch) {
	t.ctrl.HandleMessage(midi.NoteOff(t.channel, uint8(p)))
}
