package scoring

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/RyanBlaney/sonido-keys/logging"
	"github.com/RyanBlaney/sonido-keys/note"
)

var (
	ErrNotStarted     = errors.New("attempt not started")
	ErrAlreadyStarted = errors.New("attempt already started")
	ErrFinished       = errors.New("attempt already finished")
	ErrNotFinished    = errors.New("attempt not finished")
)

// State is the lifecycle of one attempt
type State uint8

const (
	NotStarted State = iota
	CountingIn
	Playing
	Finished
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case CountingIn:
		return "counting_in"
	case Playing:
		return "playing"
	case Finished:
		return "finished"
	default:
		return "unknown"
	}
}

type noteStatus uint8

const (
	pending noteStatus = iota
	matched
	missed
	dropped // optional and never played
)

// Engine scores one attempt at a time. It runs on the consumer context and
// is not safe for concurrent use.
type Engine struct {
	timeline Timeline
	config   Config
	window   time.Duration

	state     State
	attemptID uuid.UUID
	startAt   time.Duration

	status []noteStatus
	head   int // first note that may still be pending
	score  ScoreState

	sumAbsOffset time.Duration
	result       Result
	logger       logging.Logger
}

// NewEngine prepares an engine for timeline. Content is assumed to have
// been validated already.
func NewEngine(timeline Timeline, config Config) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		timeline: timeline,
		config:   config,
		window:   config.Window(),
		status:   make([]noteStatus, len(timeline.Notes)),
		logger: logging.WithFields(logging.Fields{
			"component": "scoring",
		}),
	}, nil
}

// Start begins an attempt at session time at, entering the count-in
func (e *Engine) Start(at time.Duration) error {
	if e.state != NotStarted {
		return ErrAlreadyStarted
	}

	e.attemptID = uuid.New()
	e.startAt = at
	e.state = CountingIn
	e.logger = logging.WithFields(logging.Fields{
		"component":  "scoring",
		"attempt_id": e.attemptID.String(),
	})
	e.logger.Info("Attempt started", logging.Fields{
		"notes":    len(e.timeline.Notes),
		"tempo":    e.timeline.Tempo,
		"count_in": e.timeline.CountIn.String(),
	})

	e.Advance(at)
	return nil
}

// AttemptID identifies the current attempt, for log correlation
func (e *Engine) AttemptID() uuid.UUID { return e.attemptID }

// State returns the lifecycle state
func (e *Engine) State() State { return e.state }

// Advance moves the attempt to time now: the count-in ends, notes past
// their grace deadline are missed, and once every note is resolved and the
// timeline has ended the attempt finishes. now is on the latency-compensated
// event timeline, so a live host trails the session clock by the largest
// declared source latency (session.Session does this).
func (e *Engine) Advance(now time.Duration) State {
	if e.state != CountingIn && e.state != Playing {
		return e.state
	}

	rel := now - e.startAt
	if e.state == CountingIn && rel >= e.timeline.CountIn {
		e.state = Playing
	}
	e.expire(rel)

	if e.state == Playing && e.head == len(e.status) && rel >= e.timeline.End {
		e.finish()
	}
	return e.state
}

// expire resolves notes whose deadline passed before rel
func (e *Engine) expire(rel time.Duration) {
	for i := e.head; i < len(e.status); i++ {
		n := &e.timeline.Notes[i]
		if n.Start+e.window >= rel {
			break
		}
		if e.status[i] != pending {
			continue
		}
		if n.Optional {
			e.status[i] = dropped
			continue
		}
		e.status[i] = missed
		e.score.Missed++
	}
	e.advanceHead()
}

func (e *Engine) advanceHead() {
	for e.head < len(e.status) && e.status[e.head] != pending {
		e.head++
	}
}

// Handle scores one live event. Releases are ignored.
func (e *Engine) Handle(ev note.Event) error {
	switch e.state {
	case NotStarted:
		return ErrNotStarted
	case Finished:
		return ErrFinished
	}
	if ev.Kind != note.Onset {
		return nil
	}

	rel := ev.Time - e.startAt
	e.expire(rel)

	same, other := -1, -1
	var sameDist, otherDist time.Duration
	for i := e.head; i < len(e.status); i++ {
		n := &e.timeline.Notes[i]
		if n.Start-e.window > rel {
			break
		}
		if e.status[i] != pending {
			continue
		}
		d := absDuration(rel - n.Start)
		if d > e.window {
			continue
		}
		// strict comparison keeps the earliest-scheduled note on ties
		if n.Pitch == ev.Pitch {
			if same < 0 || d < sameDist {
				same, sameDist = i, d
			}
		} else if other < 0 || d < otherDist {
			other, otherDist = i, d
		}
	}

	switch {
	case same >= 0:
		e.match(same, rel)
	case other >= 0:
		n := &e.timeline.Notes[other]
		e.score.PitchErrors = append(e.score.PitchErrors, PitchError{
			Expected:     n.Pitch,
			Played:       ev.Pitch,
			ScriptedBeat: n.StartBeat,
		})
	default:
		e.score.Extra++
	}
	return nil
}

func (e *Engine) match(i int, rel time.Duration) {
	n := &e.timeline.Notes[i]
	offset := rel - n.Start

	e.status[i] = matched
	e.score.Matched++
	if n.Optional {
		e.score.MatchedOptional++
	}
	e.sumAbsOffset += absDuration(offset)

	if absDuration(offset) > e.config.TimingTolerance {
		e.score.TimingErrors = append(e.score.TimingErrors, TimingError{
			Pitch:        n.Pitch,
			OffsetMs:     float64(offset) / float64(time.Millisecond),
			ScriptedBeat: n.StartBeat,
		})
	}
	e.advanceHead()
}

// Finish ends the attempt at now. Every unresolved required note counts
// as missed.
func (e *Engine) Finish(now time.Duration) (Result, error) {
	switch e.state {
	case NotStarted:
		return Result{}, ErrNotStarted
	case Finished:
		return e.result, nil
	}

	e.expire(now - e.startAt)
	for i := e.head; i < len(e.status); i++ {
		if e.status[i] != pending {
			continue
		}
		if e.timeline.Notes[i].Optional {
			e.status[i] = dropped
		} else {
			e.status[i] = missed
			e.score.Missed++
		}
	}
	e.head = len(e.status)
	e.finish()
	return e.result, nil
}

func (e *Engine) finish() {
	e.state = Finished
	e.result = e.derive()
	e.logger.Info("Attempt finished", logging.Fields{
		"overall":  e.result.Overall,
		"stars":    e.result.Stars,
		"passed":   e.result.Passed,
		"matched":  e.result.Matched,
		"missed":   e.result.Missed,
		"extra":    e.result.Extra,
		"accuracy": e.result.Accuracy,
	})
}

// Result returns the final result once the attempt has finished
func (e *Engine) Result() (Result, error) {
	if e.state != Finished {
		return Result{}, ErrNotFinished
	}
	return e.result, nil
}

// Abandon discards the attempt without producing a result. The engine can
// be started again.
func (e *Engine) Abandon() {
	if e.state == CountingIn || e.state == Playing {
		e.logger.Info("Attempt abandoned")
	}
	e.state = NotStarted
	e.attemptID = uuid.Nil
	clear(e.status)
	e.head = 0
	e.score = ScoreState{}
	e.sumAbsOffset = 0
	e.result = Result{}
}

// Snapshot returns a copy of the running score state
func (e *Engine) Snapshot() Snapshot {
	return Snapshot{
		State:     e.state,
		AttemptID: e.attemptID.String(),
		Score:     e.score.clone(),
	}
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// Replay scores a recorded, time-ordered event stream as one attempt that
// starts at start and finishes at end
func (e *Engine) Replay(start time.Duration, events []note.Event, end time.Duration) (Result, error) {
	if err := e.Start(start); err != nil {
		return Result{}, err
	}
	for _, ev := range events {
		if e.Advance(ev.Time) == Finished {
			break
		}
		if err := e.Handle(ev); err != nil {
			return Result{}, err
		}
	}
	return e.Finish(end)
}
