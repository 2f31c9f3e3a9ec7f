// Package arbiter selects one input source at a time and merges its events
// into a single stream on a latency-compensated timeline.
package arbiter

import (
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/RyanBlaney/sonido-keys/logging"
	"github.com/RyanBlaney/sonido-keys/note"
	"github.com/RyanBlaney/sonido-keys/source"
)

// Status is the liveness of one registered source
type Status struct {
	Kind note.Source
	Live bool
}

// Select returns the most preferred live source. It is pure so the policy
// can be checked without any device present.
func Select(statuses []Status) (note.Source, bool) {
	var best note.Source
	found := false
	for _, s := range statuses {
		if !s.Live {
			continue
		}
		if !found || s.Kind.Priority() < best.Priority() {
			best = s.Kind
			found = true
		}
	}
	return best, found
}

// Reason explains a source change
type Reason string

const (
	ReasonInitial Reason = "initial"
	ReasonUpgrade Reason = "upgrade"
	ReasonLost    Reason = "source lost"
)

// Change is the source-changed notification
type Change struct {
	From    note.Source
	HadFrom bool
	To      note.Source
	HasTo   bool
	At      time.Duration
	Reason  Reason
}

func (c Change) String() string {
	from, to := "none", "none"
	if c.HadFrom {
		from = c.From.String()
	}
	if c.HasTo {
		to = c.To.String()
	}
	return fmt.Sprintf("%s -> %s at %v (%s)", from, to, c.At, c.Reason)
}

// Config tunes liveness and logging
type Config struct {
	// LivenessWindow is how recently a source must have shown life
	LivenessWindow time.Duration `json:"liveness_window"`
	// WarnInterval throttles overflow warnings
	WarnInterval time.Duration `json:"warn_interval"`
}

// DefaultConfig returns a two second liveness window
func DefaultConfig() Config {
	return Config{
		LivenessWindow: 2 * time.Second,
		WarnInterval:   5 * time.Second,
	}
}

// Arbiter owns source selection. All methods run on the consumer context
// and it is not safe for concurrent use.
type Arbiter struct {
	config  Config
	sources [note.NumSources]source.EventSource

	active    note.Source
	hasActive bool
	frozen    bool
	onChange  func(Change)

	statuses    []Status
	scratch     []note.Event
	lastDropped [note.NumSources]uint64
	limiter     *rate.Limiter
	logger      logging.Logger
}

// New creates an arbiter with no sources
func New(config Config) *Arbiter {
	return &Arbiter{
		config:   config,
		statuses: make([]Status, 0, note.NumSources),
		scratch:  make([]note.Event, 0, 64),
		limiter:  rate.NewLimiter(rate.Every(config.WarnInterval), 1),
		logger: logging.WithFields(logging.Fields{
			"component": "arbiter",
		}),
	}
}

// Register adds a source. Only one source per kind is allowed.
func (a *Arbiter) Register(src source.EventSource) error {
	k := src.Kind()
	if k >= note.NumSources {
		return fmt.Errorf("unknown source kind %d", k)
	}
	if a.sources[k] != nil {
		return fmt.Errorf("%s source already registered", k)
	}
	a.sources[k] = src
	return nil
}

// OnChange registers the source-changed callback
func (a *Arbiter) OnChange(fn func(Change)) {
	a.onChange = fn
}

// Freeze pins the current source for an exercise attempt. Only losing the
// source can change it while frozen.
func (a *Arbiter) Freeze() { a.frozen = true }

// Unfreeze lets higher-priority sources take over again
func (a *Arbiter) Unfreeze() { a.frozen = false }

// Frozen reports whether selection is pinned
func (a *Arbiter) Frozen() bool { return a.frozen }

// Active returns the selected source
func (a *Arbiter) Active() (note.Source, bool) {
	return a.active, a.hasActive
}

// MaxLatency is the largest declared latency of the registered sources.
// An event stamped at t may not arrive until t plus this much.
func (a *Arbiter) MaxLatency() time.Duration {
	var lag time.Duration
	for _, src := range a.sources {
		if src != nil {
			lag = max(lag, src.Latency())
		}
	}
	return lag
}

// Discard drops every event buffered by every source
func (a *Arbiter) Discard() {
	for _, src := range a.sources {
		if src != nil {
			a.scratch = src.Drain(a.scratch[:0])
		}
	}
}

// Poll re-evaluates selection at now and appends the active source's
// events to dst with their declared latency removed. Events buffered by a
// source being switched away from are forwarded before the switch.
// Events from inactive sources are discarded.
func (a *Arbiter) Poll(now time.Duration, dst []note.Event) []note.Event {
	a.statuses = a.statuses[:0]
	for _, src := range a.sources {
		if src != nil {
			a.statuses = append(a.statuses, Status{Kind: src.Kind(), Live: src.Live(now, a.config.LivenessWindow)})
		}
	}
	want, ok := Select(a.statuses)

	switch {
	case !a.hasActive:
		if ok {
			a.switchTo(want, true, now, ReasonInitial, &dst)
		}
	case !a.isLive(a.active):
		a.switchTo(want, ok, now, ReasonLost, &dst)
	case ok && !a.frozen && want.Priority() < a.active.Priority():
		a.switchTo(want, true, now, ReasonUpgrade, &dst)
	}

	for k, src := range a.sources {
		if src == nil {
			continue
		}
		if a.hasActive && note.Source(k) == a.active {
			dst = a.forward(src, dst)
		} else {
			a.scratch = src.Drain(a.scratch[:0])
		}
	}

	a.warnDropped()
	return dst
}

func (a *Arbiter) isLive(k note.Source) bool {
	for _, s := range a.statuses {
		if s.Kind == k {
			return s.Live
		}
	}
	return false
}

func (a *Arbiter) switchTo(to note.Source, hasTo bool, now time.Duration, reason Reason, dst *[]note.Event) {
	change := Change{From: a.active, HadFrom: a.hasActive, To: to, HasTo: hasTo, At: now, Reason: reason}

	if a.hasActive {
		*dst = a.forward(a.sources[a.active], *dst)
	}
	a.active = to
	a.hasActive = hasTo

	fields := logging.Fields{"from": "none", "to": "none", "reason": string(reason), "frozen": a.frozen}
	if change.HadFrom {
		fields["from"] = change.From.String()
	}
	if hasTo {
		fields["to"] = to.String()
		a.logger.Info("Input source selected", fields)
	} else {
		a.logger.Warn("No live input source", fields)
	}

	if a.onChange != nil {
		a.onChange(change)
	}
}

func (a *Arbiter) forward(src source.EventSource, dst []note.Event) []note.Event {
	latency := src.Latency()
	start := len(dst)
	dst = src.Drain(dst)
	for i := start; i < len(dst); i++ {
		dst[i].Time = max(dst[i].Time-latency, 0)
	}
	return dst
}

func (a *Arbiter) warnDropped() {
	for k, src := range a.sources {
		if src == nil {
			continue
		}
		d := src.Dropped()
		if d == a.lastDropped[k] || !a.limiter.Allow() {
			continue
		}
		a.logger.Warn("Input events dropped", logging.Fields{
			"source":        note.Source(k).String(),
			"dropped_total": d,
			"dropped_new":   d - a.lastDropped[k],
		})
		a.lastDropped[k] = d
	}
}
