package content

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/sonido-keys/note"
	"github.com/RyanBlaney/sonido-keys/scoring"
)

const twinkle = `{
  "id": "twinkle-1",
  "title": "Twinkle, first phrase",
  "tempo": 90,
  "countInBeats": 4,
  "passingScore": 70,
  "starThresholds": [70, 85, 95],
  "prerequisites": ["c-position"],
  "notes": [
    {"pitch": 60, "startBeat": 0, "durationBeats": 1, "hand": "right"},
    {"pitch": 60, "startBeat": 1, "durationBeats": 1, "hand": "right"},
    {"pitch": 67, "startBeat": 2, "durationBeats": 1, "hand": "right"},
    {"pitch": 48, "startBeat": 0, "durationBeats": 4, "hand": "left", "optional": true}
  ]
}`

func valid() *Exercise {
	return &Exercise{
		ID:             "scales-2",
		Tempo:          60,
		PassingScore:   60,
		StarThresholds: [3]float64{60, 80, 90},
		Notes:          []scoring.ScriptedNote{{Pitch: 60, DurationBeats: 1}},
	}
}

func TestLoad(t *testing.T) {
	ex, err := Load(strings.NewReader(twinkle))
	require.NoError(t, err)

	assert.Equal(t, "twinkle-1", ex.ID)
	require.Len(t, ex.Notes, 4)
	assert.Equal(t, scoring.HandRight, ex.Notes[0].Hand)
	assert.Equal(t, scoring.HandLeft, ex.Notes[3].Hand)
	assert.True(t, ex.Notes[3].Optional)

	assert.NoError(t, Validate(ex, map[string]bool{"c-position": true, "twinkle-1": true}))
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	_, err := Load(strings.NewReader(`{"id": "a", "bpm": 90}`))
	assert.Error(t, err)

	_, err = Load(strings.NewReader(`{"id": "a", "notes": [{"pitch": 60, "hand": "both"}]}`))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Exercise)
		want   string
	}{
		{"bad id", func(ex *Exercise) { ex.ID = "Scales_2" }, "does not match"},
		{"trailing dash", func(ex *Exercise) { ex.ID = "scales-" }, "does not match"},
		{"pitch too low", func(ex *Exercise) { ex.Notes[0].Pitch = 20 }, "outside [21,108]"},
		{"pitch too high", func(ex *Exercise) { ex.Notes[0].Pitch = 109 }, "outside [21,108]"},
		{"zero duration", func(ex *Exercise) { ex.Notes[0].DurationBeats = 0 }, "duration must be positive"},
		{"negative start", func(ex *Exercise) { ex.Notes[0].StartBeat = -1 }, "start beat"},
		{"passing above 100", func(ex *Exercise) { ex.PassingScore = 101 }, "passing score out of range"},
		{"stars below passing", func(ex *Exercise) { ex.StarThresholds[0] = 50 }, "below passing score"},
		{"stars falling", func(ex *Exercise) { ex.StarThresholds = [3]float64{60, 90, 80} }, "must rise"},
		{"no notes", func(ex *Exercise) { ex.Notes = nil }, "no notes"},
		{"no tempo", func(ex *Exercise) { ex.Tempo = 0 }, "tempo"},
		{"unknown prerequisite", func(ex *Exercise) { ex.Prerequisites = []string{"missing"} }, "unknown prerequisite"},
		{"self prerequisite", func(ex *Exercise) { ex.Prerequisites = []string{"scales-2"} }, "itself"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex := valid()
			tt.mutate(ex)

			err := Validate(ex, map[string]bool{"scales-2": true})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidExercise)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	ex := valid()
	ex.ID = "BAD"
	ex.Notes[0].Pitch = 0

	err := Validate(ex, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match")
	assert.Contains(t, err.Error(), "outside")
}

func TestValidateSetDuplicateIDs(t *testing.T) {
	a, b := valid(), valid()
	err := ValidateSet([]*Exercise{a, b})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate id "scales-2"`)

	b.ID = "scales-3"
	b.Prerequisites = []string{"scales-2"}
	assert.NoError(t, ValidateSet([]*Exercise{a, b}))
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.json"), []byte(twinkle), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.json"),
		[]byte(`{"id":"c-position","tempo":60,"passingScore":50,"starThresholds":[50,70,90],
		"notes":[{"pitch":60,"startBeat":0,"durationBeats":1}]}`), 0o644))

	exercises, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, exercises, 2)
	assert.Equal(t, "c-position", exercises[0].ID)
	assert.Equal(t, "twinkle-1", exercises[1].ID)

	require.NoError(t, os.Remove(filepath.Join(dir, "a.json")))
	_, err = LoadDir(dir)
	assert.ErrorIs(t, err, ErrInvalidExercise)
}

func TestScoringBridge(t *testing.T) {
	ex, err := Load(strings.NewReader(twinkle))
	require.NoError(t, err)

	tl, err := ex.Timeline()
	require.NoError(t, err)
	assert.InDelta(t, float64(4*time.Minute/90), float64(tl.CountIn), 1)
	assert.Equal(t, 3, tl.Required())
	assert.Equal(t, note.Pitch(60), tl.Notes[0].Pitch)

	base := scoring.DefaultConfig()
	base.PassingScore = 10
	cfg := ex.ScoringConfig(base)
	assert.Equal(t, 70.0, cfg.PassingScore)
	assert.Equal(t, [3]float64{70, 85, 95}, cfg.StarThresholds)
	assert.Equal(t, base.TimingTolerance, cfg.TimingTolerance)

	engine, err := ex.NewEngine(base)
	require.NoError(t, err)
	assert.Equal(t, scoring.NotStarted, engine.State())
}
