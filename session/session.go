// Package session runs one exercise attempt against live input. It pins
// the arbiter's source for the attempt, feeds the merged event stream into
// the scoring engine and holds the engine's clock back by the slowest
// source's declared latency, so a note is never expired before an event
// that could still match it has been delivered.
package session

import (
	"context"
	"time"

	"github.com/RyanBlaney/sonido-keys/arbiter"
	"github.com/RyanBlaney/sonido-keys/logging"
	"github.com/RyanBlaney/sonido-keys/note"
	"github.com/RyanBlaney/sonido-keys/pipeline"
	"github.com/RyanBlaney/sonido-keys/scoring"
	"github.com/RyanBlaney/sonido-keys/source"
)

// Session drives an attempt on the consumer context. Every method must be
// called from the same goroutine, which also owns audio analysis.
type Session struct {
	arb    *arbiter.Arbiter
	engine *scoring.Engine
	audio  *pipeline.Audio

	lag    time.Duration
	events []note.Event
	logger logging.Logger
}

// New joins arb and engine. audio, if not nil, must be registered with arb;
// Tick analyses its pending frames and Cancel stops it.
func New(arb *arbiter.Arbiter, engine *scoring.Engine, audio *pipeline.Audio) *Session {
	return &Session{
		arb:    arb,
		engine: engine,
		audio:  audio,
		events: make([]note.Event, 0, 64),
		logger: logging.WithFields(logging.Fields{
			"component": "session",
		}),
	}
}

// Start begins the attempt at now. Events buffered before now are dropped
// and the currently selected source is frozen.
func (s *Session) Start(now time.Duration) error {
	if s.audio != nil {
		s.audio.Process()
	}
	s.events = s.arb.Poll(now, s.events[:0])
	if err := s.engine.Start(now); err != nil {
		return err
	}

	s.lag = s.arb.MaxLatency()
	s.arb.Freeze()

	fields := logging.Fields{
		"attempt_id": s.engine.AttemptID().String(),
		"lag_ms":     s.lag.Seconds() * 1000,
		"source":     "none",
	}
	if active, ok := s.arb.Active(); ok {
		fields["source"] = active.String()
	}
	s.logger.Info("Session started", fields)
	return nil
}

// Lag is how far the engine's clock trails session time
func (s *Session) Lag() time.Duration { return s.lag }

// Engine returns the scoring engine, for snapshots
func (s *Session) Engine() *scoring.Engine { return s.engine }

// Tick analyses pending audio, scores every event the arbiter delivers and
// advances the engine to now minus the lag. Events arriving outside an
// attempt are discarded.
func (s *Session) Tick(now time.Duration) (scoring.State, error) {
	if s.audio != nil {
		s.audio.Process()
	}
	s.events = s.arb.Poll(now, s.events[:0])

	switch state := s.engine.State(); state {
	case scoring.NotStarted:
		return state, scoring.ErrNotStarted
	case scoring.Finished:
		return state, nil
	}

	for _, ev := range s.events {
		if err := s.engine.Handle(ev); err != nil {
			return s.engine.State(), err
		}
	}

	state := s.engine.Advance(now - s.lag)
	if state == scoring.Finished {
		s.arb.Unfreeze()
	}
	return state, nil
}

// Finish scores whatever is still buffered and ends the attempt at now
func (s *Session) Finish(now time.Duration) (scoring.Result, error) {
	if _, err := s.Tick(now); err != nil {
		return scoring.Result{}, err
	}
	res, err := s.engine.Finish(now)
	s.arb.Unfreeze()
	return res, err
}

// Cancel abandons the attempt without a result. Capture is marked inactive,
// buffered audio and tracker state are dropped and every queued event is
// discarded.
func (s *Session) Cancel() {
	if s.audio != nil {
		s.audio.Microphone().SetActive(false)
		s.audio.Reset()
	}
	s.arb.Discard()
	s.engine.Abandon()
	s.arb.Unfreeze()
	s.logger.Info("Session cancelled")
}

// Run starts an attempt and ticks it on every interval of clock until it
// finishes. Cancelling ctx cancels the attempt and returns ctx's error.
func (s *Session) Run(ctx context.Context, clock source.Clock, interval time.Duration) (scoring.Result, error) {
	if err := s.Start(clock.Now()); err != nil {
		return scoring.Result{}, err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Cancel()
			return scoring.Result{}, ctx.Err()
		case <-ticker.C:
			state, err := s.Tick(clock.Now())
			if err != nil {
				s.Cancel()
				return scoring.Result{}, err
			}
			if state == scoring.Finished {
				return s.engine.Result()
			}
		}
	}
}
