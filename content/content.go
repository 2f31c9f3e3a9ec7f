// Package content loads and validates exercise documents before they reach
// the scoring engine.
package content

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"slices"

	"github.com/RyanBlaney/sonido-keys/logging"
	"github.com/RyanBlaney/sonido-keys/note"
	"github.com/RyanBlaney/sonido-keys/scoring"
)

// ErrInvalidExercise wraps every validation failure
var ErrInvalidExercise = errors.New("invalid exercise")

var idPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// Exercise is the authored exercise document
type Exercise struct {
	ID             string                 `json:"id"`
	Title          string                 `json:"title"`
	Tempo          float64                `json:"tempo"`
	CountInBeats   float64                `json:"countInBeats"`
	PassingScore   float64                `json:"passingScore"`
	StarThresholds [3]float64             `json:"starThresholds"`
	Prerequisites  []string               `json:"prerequisites,omitempty"`
	Notes          []scoring.ScriptedNote `json:"notes"`
}

// Load decodes one exercise. Unknown fields are rejected.
func Load(r io.Reader) (*Exercise, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var ex Exercise
	if err := dec.Decode(&ex); err != nil {
		return nil, fmt.Errorf("failed to decode exercise: %w", err)
	}
	return &ex, nil
}

// LoadFile decodes the exercise stored at path
func LoadFile(path string) (*Exercise, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ex, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ex, nil
}

// Validate checks one exercise. known holds every exercise ID in the
// catalogue and is used to resolve prerequisites; nil skips that check.
// All problems are reported together.
func Validate(ex *Exercise, known map[string]bool) error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if !idPattern.MatchString(ex.ID) {
		fail("id %q does not match %s", ex.ID, idPattern)
	}
	if ex.Tempo <= 0 {
		fail("tempo must be positive: %v", ex.Tempo)
	}
	if ex.CountInBeats < 0 {
		fail("count-in must not be negative: %v", ex.CountInBeats)
	}
	if ex.PassingScore < 0 || ex.PassingScore > 100 {
		fail("passing score out of range: %v", ex.PassingScore)
	}
	if ex.StarThresholds[0] < ex.PassingScore {
		fail("first star threshold %v below passing score %v", ex.StarThresholds[0], ex.PassingScore)
	}
	for i, s := range ex.StarThresholds {
		if s > 100 || (i > 0 && s < ex.StarThresholds[i-1]) {
			fail("star thresholds must rise within [0,100]: %v", ex.StarThresholds)
			break
		}
	}

	if len(ex.Notes) == 0 {
		fail("exercise has no notes")
	}
	for i, n := range ex.Notes {
		if n.Pitch < note.PianoLow || n.Pitch > note.PianoHigh {
			fail("note %d: pitch %d outside [%d,%d]", i, n.Pitch, note.PianoLow, note.PianoHigh)
		}
		if n.DurationBeats <= 0 {
			fail("note %d: duration must be positive: %v", i, n.DurationBeats)
		}
		if n.StartBeat < 0 {
			fail("note %d: start beat must not be negative: %v", i, n.StartBeat)
		}
	}

	if known != nil {
		for _, p := range ex.Prerequisites {
			if p == ex.ID {
				fail("exercise lists itself as a prerequisite")
			} else if !known[p] {
				fail("unknown prerequisite %q", p)
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w %q: %w", ErrInvalidExercise, ex.ID, errors.Join(errs...))
	}
	return nil
}

// ValidateSet validates a whole catalogue: every exercise individually,
// plus globally unique IDs.
func ValidateSet(exercises []*Exercise) error {
	known := make(map[string]bool, len(exercises))
	var errs []error
	for _, ex := range exercises {
		if known[ex.ID] {
			errs = append(errs, fmt.Errorf("%w: duplicate id %q", ErrInvalidExercise, ex.ID))
		}
		known[ex.ID] = true
	}
	for _, ex := range exercises {
		if err := Validate(ex, known); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LoadDir loads and validates every *.json exercise in dir, sorted by ID
func LoadDir(dir string) ([]*Exercise, error) {
	logger := logging.WithFields(logging.Fields{
		"component": "content",
		"dir":       dir,
	})

	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, err
	}

	exercises := make([]*Exercise, 0, len(paths))
	for _, path := range paths {
		ex, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		exercises = append(exercises, ex)
	}
	if err := ValidateSet(exercises); err != nil {
		logger.Error(err, "Exercise catalogue failed validation")
		return nil, err
	}

	slices.SortFunc(exercises, func(a, b *Exercise) int {
		return cmp.Compare(a.ID, b.ID)
	})
	logger.Info("Exercise catalogue loaded", logging.Fields{"exercises": len(exercises)})
	return exercises, nil
}

// Timeline places the exercise's notes on the attempt clock
func (ex *Exercise) Timeline() (scoring.Timeline, error) {
	return scoring.BuildTimeline(ex.Notes, ex.Tempo, ex.CountInBeats)
}

// ScoringConfig returns base with this exercise's pass mark and star
// thresholds applied
func (ex *Exercise) ScoringConfig(base scoring.Config) scoring.Config {
	base.PassingScore = ex.PassingScore
	base.StarThresholds = ex.StarThresholds
	return base
}

// NewEngine builds a scoring engine for the exercise
func (ex *Exercise) NewEngine(base scoring.Config) (*scoring.Engine, error) {
	tl, err := ex.Timeline()
	if err != nil {
		return nil, err
	}
	return scoring.NewEngine(tl, ex.ScoringConfig(base))
}
