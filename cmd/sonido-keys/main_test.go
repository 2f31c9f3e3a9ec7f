package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configPath, logLevel, configMode = "", "", ""

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(append(args, "--log-file", filepath.Join(t.TempDir(), "keys.log")))
	err := rootCmd.Execute()
	return buf.String(), err
}

func writeExercise(t *testing.T, dir, name, doc string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	return path
}

const basics = `{"id":"basics-1","tempo":80,"passingScore":60,"starThresholds":[60,80,90],
	"notes":[{"pitch":60,"startBeat":0,"durationBeats":1},{"pitch":64,"startBeat":1,"durationBeats":1}]}`

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	writeExercise(t, dir, "basics.json", basics)
	writeExercise(t, dir, "next.json", `{"id":"basics-2","tempo":80,"passingScore":60,
		"starThresholds":[60,80,90],"prerequisites":["basics-1"],
		"notes":[{"pitch":62,"startBeat":0,"durationBeats":2}]}`)

	out, err := run(t, "validate", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "ok  basics-1")
	assert.Contains(t, out, "ok  basics-2")
}

func TestValidateCommandReportsErrors(t *testing.T) {
	path := writeExercise(t, t.TempDir(), "bad.json",
		`{"id":"Bad","tempo":80,"passingScore":60,"starThresholds":[50,80,90],"notes":[]}`)

	_, err := run(t, "validate", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no notes")
	assert.Contains(t, err.Error(), "below passing score")
}

func TestConfigCommand(t *testing.T) {
	out, err := run(t, "config", "--mode", "poly")
	require.NoError(t, err)
	assert.Contains(t, out, `"mode": "polyphonic"`)

	cfgFile := filepath.Join(t.TempDir(), "keys.json")
	require.NoError(t, os.WriteFile(cfgFile, []byte(`{"scoring": {"passing_score": 65}}`), 0o644))
	out, err = run(t, "config", "--config", cfgFile)
	require.NoError(t, err)
	assert.Contains(t, out, `"passing_score": 65`)
}
