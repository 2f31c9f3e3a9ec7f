// Package config aggregates the configuration of every component into one
// JSON document.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/RyanBlaney/sonido-keys/arbiter"
	"github.com/RyanBlaney/sonido-keys/calibration"
	"github.com/RyanBlaney/sonido-keys/latency"
	"github.com/RyanBlaney/sonido-keys/logging"
	"github.com/RyanBlaney/sonido-keys/pipeline"
	"github.com/RyanBlaney/sonido-keys/scoring"
	"github.com/RyanBlaney/sonido-keys/source"
	"github.com/RyanBlaney/sonido-keys/transcode"
)

// LoggingConfig selects the log level and output style
type LoggingConfig struct {
	Level  string `json:"level"`
	Colors bool   `json:"colors"`
}

// Config is the full engine configuration
type Config struct {
	Logging     LoggingConfig           `json:"logging"`
	Audio       pipeline.Config         `json:"audio"`
	Calibration calibration.Config      `json:"calibration"`
	Controller  source.ControllerConfig `json:"controller"`
	Touch       source.TouchConfig      `json:"touch"`
	Watcher     source.WatcherConfig    `json:"watcher"`
	Devices     source.DeviceTable      `json:"devices"`
	Arbiter     arbiter.Config          `json:"arbiter"`
	Scoring     scoring.Config          `json:"scoring"`
	Latency     latency.Config          `json:"latency"`
	Decoder     transcode.DecoderConfig `json:"decoder"`
}

// Default returns the monophonic configuration
func Default() *Config {
	return ForMode(pipeline.Monophonic)
}

// ForMode returns defaults tuned for the audio mode
func ForMode(mode pipeline.Mode) *Config {
	return &Config{
		Logging:     LoggingConfig{Level: "info", Colors: true},
		Audio:       pipeline.DefaultConfig(mode),
		Calibration: calibration.DefaultConfig(),
		Controller:  source.DefaultControllerConfig(),
		Touch:       source.DefaultTouchConfig(),
		Watcher:     source.DefaultWatcherConfig(),
		Devices:     source.DefaultDeviceTable(),
		Arbiter:     arbiter.DefaultConfig(),
		Scoring:     scoring.DefaultConfig(),
		Latency:     latency.DefaultConfig(),
		Decoder:     *transcode.DefaultDecoderConfig(),
	}
}

// Load reads a configuration file. Fields the file omits keep the defaults
// of the audio mode it names.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse decodes and validates a configuration document
func Parse(data []byte) (*Config, error) {
	var head struct {
		Audio struct {
			Mode pipeline.Mode `json:"mode"`
		} `json:"audio"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	c := ForMode(head.Audio.Mode)
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(c); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Write encodes the configuration as indented JSON
func (c *Config) Write(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(c)
}

// Validate checks every component and that they agree on the sample rate
func (c *Config) Validate() error {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"audio", c.Audio.Validate},
		{"calibration", c.Calibration.Validate},
		{"scoring", c.Scoring.Validate},
	}
	for _, check := range checks {
		if err := check.fn(); err != nil {
			return fmt.Errorf("invalid %s config: %w", check.name, err)
		}
	}

	rate := c.Audio.Microphone.SampleRate
	if c.Calibration.SampleRate != rate {
		return fmt.Errorf("calibration sample rate %d differs from audio rate %d", c.Calibration.SampleRate, rate)
	}
	if c.Decoder.TargetSampleRate != rate {
		return fmt.Errorf("decoder sample rate %d differs from audio rate %d", c.Decoder.TargetSampleRate, rate)
	}
	if c.Controller.BufferSize < 1 || c.Touch.BufferSize < 1 {
		return fmt.Errorf("invalid input buffer sizes: controller %d, touch %d", c.Controller.BufferSize, c.Touch.BufferSize)
	}
	if c.Arbiter.LivenessWindow <= 0 {
		return fmt.Errorf("invalid liveness window: %v", c.Arbiter.LivenessWindow)
	}
	if c.Watcher.Interval <= 0 {
		return fmt.Errorf("invalid watcher interval: %v", c.Watcher.Interval)
	}
	return nil
}

// WithSampleRate retargets every sample-rate dependent component
func (c *Config) WithSampleRate(rate int) *Config {
	out := *c
	out.Audio = c.Audio.WithSampleRate(rate)
	out.Calibration.SampleRate = rate
	out.Decoder.TargetSampleRate = rate
	return &out
}

// ApplyLogging installs the global logger at the configured level. A
// non-nil w replaces the terminal logger with an uncolored writer logger.
func (c *Config) ApplyLogging(w io.Writer) {
	level := logging.ParseLevel(c.Logging.Level)
	if w != nil {
		logging.SetGlobalLogger(logging.NewWriterLogger(w, level))
		return
	}

	logging.SetGlobalLogger(logging.NewDefaultLogger())
	logging.SetLevel(level)
	if !c.Logging.Colors {
		logging.DisableColors()
	}
}
