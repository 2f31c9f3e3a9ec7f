// Package scoring matches the live note stream against a scripted exercise
// timeline and derives accuracy, timing and completeness scores.
package scoring

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/RyanBlaney/sonido-keys/note"
)

// Hand is the hand a scripted note is written for
type Hand uint8

const (
	HandNone Hand = iota
	HandLeft
	HandRight
)

func (h Hand) String() string {
	switch h {
	case HandLeft:
		return "left"
	case HandRight:
		return "right"
	default:
		return "none"
	}
}

func (h Hand) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

func (h *Hand) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	switch name {
	case "left":
		*h = HandLeft
	case "right":
		*h = HandRight
	case "none", "":
		*h = HandNone
	default:
		return fmt.Errorf("unknown hand %q", name)
	}
	return nil
}

// ScriptedNote is one authored note of an exercise
type ScriptedNote struct {
	Pitch         note.Pitch `json:"pitch"`
	StartBeat     float64    `json:"startBeat"`
	DurationBeats float64    `json:"durationBeats"`
	Hand          Hand       `json:"hand"`
	Optional      bool       `json:"optional"`
}

// TimedNote is a scripted note placed on the attempt's clock, where zero
// is the start of the count-in
type TimedNote struct {
	ScriptedNote
	Start    time.Duration
	Duration time.Duration
}

// Timeline is an exercise converted to absolute time
type Timeline struct {
	Notes   []TimedNote
	Tempo   float64
	Beat    time.Duration
	CountIn time.Duration
	// End is when the last note stops sounding
	End time.Duration
}

// BuildTimeline converts beats to time. Notes are ordered by start beat;
// notes sharing a beat keep their authored order.
func BuildTimeline(notes []ScriptedNote, tempoBPM, countInBeats float64) (Timeline, error) {
	if tempoBPM <= 0 || math.IsNaN(tempoBPM) || math.IsInf(tempoBPM, 0) {
		return Timeline{}, fmt.Errorf("invalid tempo: %v bpm", tempoBPM)
	}
	if countInBeats < 0 {
		return Timeline{}, fmt.Errorf("invalid count-in: %v beats", countInBeats)
	}

	beat := float64(time.Minute) / tempoBPM
	at := func(beats float64) time.Duration {
		return time.Duration(math.Round(beats * beat))
	}

	tl := Timeline{
		Notes:   make([]TimedNote, len(notes)),
		Tempo:   tempoBPM,
		Beat:    at(1),
		CountIn: at(countInBeats),
	}
	for i, n := range notes {
		tl.Notes[i] = TimedNote{
			ScriptedNote: n,
			Start:        at(countInBeats + n.StartBeat),
			Duration:     at(n.DurationBeats),
		}
	}
	slices.SortStableFunc(tl.Notes, func(a, b TimedNote) int {
		switch {
		case a.StartBeat < b.StartBeat:
			return -1
		case a.StartBeat > b.StartBeat:
			return 1
		}
		return 0
	})

	tl.End = tl.CountIn
	for _, n := range tl.Notes {
		tl.End = max(tl.End, n.Start+n.Duration)
	}
	return tl, nil
}

// Required counts the notes that are not optional
func (t Timeline) Required() int {
	n := 0
	for _, tn := range t.Notes {
		if !tn.Optional {
			n++
		}
	}
	return n
}
