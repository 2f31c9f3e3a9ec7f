package scoring

import (
	"slices"
	"time"

	"github.com/RyanBlaney/sonido-keys/algorithms/common"
	"github.com/RyanBlaney/sonido-keys/note"
)

// PitchError is a wrong key played while a scripted note was due
type PitchError struct {
	Expected     note.Pitch `json:"expected"`
	Played       note.Pitch `json:"played"`
	ScriptedBeat float64    `json:"scriptedBeat"`
}

// TimingError is a matched note played outside the strict tolerance.
// Negative offsets are early.
type TimingError struct {
	Pitch        note.Pitch `json:"pitch"`
	OffsetMs     float64    `json:"offsetMs"`
	ScriptedBeat float64    `json:"scriptedBeat"`
}

// ScoreState accumulates while an attempt is played
type ScoreState struct {
	Matched         int           `json:"matchedCount"`
	MatchedOptional int           `json:"matchedOptionalCount"`
	Missed          int           `json:"missedCount"`
	Extra           int           `json:"extraCount"`
	PitchErrors     []PitchError  `json:"pitchErrors"`
	TimingErrors    []TimingError `json:"timingErrors"`
}

func (s ScoreState) clone() ScoreState {
	s.PitchErrors = slices.Clone(s.PitchErrors)
	s.TimingErrors = slices.Clone(s.TimingErrors)
	return s
}

// Snapshot is the running view handed to the UI during play
type Snapshot struct {
	State     State      `json:"state"`
	AttemptID string     `json:"attemptId"`
	Score     ScoreState `json:"score"`
}

// Result is the immutable outcome of a finished attempt. All scores are
// in [0,100].
type Result struct {
	AttemptID string `json:"attemptId"`
	ScoreState

	// TotalScripted is required notes plus optional notes that were played
	TotalScripted int `json:"totalScripted"`

	Accuracy     float64 `json:"accuracy"`
	Timing       float64 `json:"timing"`
	Completeness float64 `json:"completeness"`
	Overall      float64 `json:"overall"`
	Stars        int     `json:"stars"`
	Passed       bool    `json:"passed"`
}

func (e *Engine) derive() Result {
	s := e.score.clone()
	total := e.timeline.Required() + s.MatchedOptional

	r := Result{
		AttemptID:     e.attemptID.String(),
		ScoreState:    s,
		TotalScripted: total,
		Accuracy:      100,
		Timing:        100,
		Completeness:  100,
	}

	if total > 0 {
		r.Accuracy = percent(float64(s.Matched) / float64(total))
		r.Completeness = percent(float64(total-s.Missed) / float64(total))
		r.Timing = 0
		if s.Matched > 0 {
			mean := float64(e.sumAbsOffset) / float64(s.Matched)
			r.Timing = percent(1 - mean/float64(e.window))
		}
	}

	r.Overall = overall(e.config.Weights, r.Accuracy, r.Timing, r.Completeness)
	r.Passed = r.Overall >= e.config.PassingScore
	for _, threshold := range e.config.StarThresholds {
		if r.Overall >= threshold {
			r.Stars++
		}
	}
	return r
}

func percent(ratio float64) float64 {
	return common.Clamp(100*ratio, 0, 100)
}

// overall is the normalised weighted mean, monotonic in each sub-score
func overall(w Weights, accuracy, timing, completeness float64) float64 {
	sum := w.Accuracy + w.Timing + w.Completeness
	v := (w.Accuracy*accuracy + w.Timing*timing + w.Completeness*completeness) / sum
	return common.Clamp(v, 0, 100)
}

// Coaching is the bounded issue list for the external coaching service
type Coaching struct {
	AttemptID    string        `json:"attemptId"`
	Accuracy     float64       `json:"accuracy"`
	Timing       float64       `json:"timing"`
	Completeness float64       `json:"completeness"`
	Overall      float64       `json:"overall"`
	Matched      int           `json:"matchedCount"`
	Missed       int           `json:"missedCount"`
	Extra        int           `json:"extraCount"`
	PitchErrors  []PitchError  `json:"pitchErrors"`
	TimingErrors []TimingError `json:"timingErrors"`
}

// CoachingPayload keeps the first limit issues of each kind
func (r Result) CoachingPayload(limit int) Coaching {
	limit = max(limit, 0)
	return Coaching{
		AttemptID:    r.AttemptID,
		Accuracy:     r.Accuracy,
		Timing:       r.Timing,
		Completeness: r.Completeness,
		Overall:      r.Overall,
		Matched:      r.Matched,
		Missed:       r.Missed,
		Extra:        r.Extra,
		PitchErrors:  slices.Clone(r.PitchErrors[:min(limit, len(r.PitchErrors))]),
		TimingErrors: slices.Clone(r.TimingErrors[:min(limit, len(r.TimingErrors))]),
	}
}

// Coaching builds the payload with the engine's configured cap
func (e *Engine) Coaching() (Coaching, error) {
	r, err := e.Result()
	if err != nil {
		return Coaching{}, err
	}
	return r.CoachingPayload(e.config.CoachingCap), nil
}

// Elapsed is the attempt time at session time now
func (e *Engine) Elapsed(now time.Duration) time.Duration {
	if e.state == NotStarted {
		return 0
	}
	return now - e.startAt
}
