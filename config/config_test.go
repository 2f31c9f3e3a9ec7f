package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/sonido-keys/pipeline"
)

func TestDefaultsValidate(t *testing.T) {
	for _, mode := range []pipeline.Mode{pipeline.Monophonic, pipeline.Polyphonic} {
		t.Run(mode.String(), func(t *testing.T) {
			c := ForMode(mode)
			require.NoError(t, c.Validate())
			assert.Equal(t, mode, c.Audio.Mode)
		})
	}

	assert.Equal(t, 4096, ForMode(pipeline.Polyphonic).Audio.Microphone.WindowSize)
	assert.Equal(t, 2048, Default().Audio.Microphone.WindowSize)
}

func TestParseOverlaysModeDefaults(t *testing.T) {
	c, err := Parse([]byte(`{
		"audio": {"mode": "poly", "max_cents": 30},
		"scoring": {"passing_score": 80, "star_thresholds": [80, 90, 95]},
		"logging": {"level": "debug"}
	}`))
	require.NoError(t, err)

	assert.Equal(t, pipeline.Polyphonic, c.Audio.Mode)
	assert.Equal(t, 4096, c.Audio.Microphone.WindowSize)
	assert.Equal(t, 30.0, c.Audio.MaxCents)
	assert.Equal(t, 80.0, c.Scoring.PassingScore)
	assert.Equal(t, 50*time.Millisecond, c.Scoring.TimingTolerance)
	assert.Equal(t, "debug", c.Logging.Level)
	assert.NotEmpty(t, c.Devices.Profiles)
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"malformed", `{"audio":`},
		{"unknown field", `{"audio": {"mode": "mono"}, "midi": {}}`},
		{"unknown mode", `{"audio": {"mode": "stereo"}}`},
		{"rate mismatch", `{"calibration": {"sample_rate": 48000}}`},
		{"bad scoring", `{"scoring": {"passing_score": 120}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestWriteLoadRoundTrip(t *testing.T) {
	want := ForMode(pipeline.Polyphonic).WithSampleRate(48000)
	require.NoError(t, want.Validate())

	var buf bytes.Buffer
	require.NoError(t, want.Write(&buf))

	path := filepath.Join(t.TempDir(), "keys.json")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
