// Package calibration measures the ambient noise floor during a short silent
// period and derives tracker confidence thresholds from it.
package calibration

import (
	"errors"
	"fmt"
	"time"

	"github.com/RyanBlaney/sonido-keys/algorithms/common"
	"github.com/RyanBlaney/sonido-keys/logging"
	"github.com/RyanBlaney/sonido-keys/tracker"
)

var (
	// ErrTooNoisy means the room is too loud for reliable detection
	ErrTooNoisy = errors.New("ambient noise floor too high")
	// ErrInsufficientAudio means Finish was called before enough audio arrived
	ErrInsufficientAudio = errors.New("insufficient calibration audio")
)

// Config controls measurement and the noise-to-threshold mapping
type Config struct {
	SampleRate  int           `json:"sample_rate"`
	Duration    time.Duration `json:"duration"`
	MinDuration time.Duration `json:"min_duration"`
	BlockSize   int           `json:"block_size"`

	// Percentile of block RMS taken as the noise floor
	Percentile float64 `json:"percentile"`

	// FloorDB maps to the lowest onset threshold, MaxNoiseFloorDB to the
	// highest; floors above MaxNoiseFloorDB fail with ErrTooNoisy
	FloorDB         float64 `json:"floor_db"`
	MaxNoiseFloorDB float64 `json:"max_noise_floor_db"`

	BaseOnset  float64 `json:"base_onset"`
	OnsetSpan  float64 `json:"onset_span"`
	Hysteresis float64 `json:"hysteresis"`
	GateMargin float64 `json:"gate_margin"`
	MinGateRMS float64 `json:"min_gate_rms"`
}

// DefaultConfig returns a three second calibration at 44.1kHz
func DefaultConfig() Config {
	return Config{
		SampleRate:      44100,
		Duration:        3 * time.Second,
		MinDuration:     time.Second,
		BlockSize:       1024,
		Percentile:      0.95,
		FloorDB:         -80,
		MaxNoiseFloorDB: -30,
		BaseOnset:       0.5,
		OnsetSpan:       0.35,
		Hysteresis:      0.2,
		GateMargin:      2.0,
		MinGateRMS:      0.0005,
	}
}

// Validate checks the mapping produces valid thresholds across its range
func (c Config) Validate() error {
	if c.SampleRate <= 0 || c.BlockSize <= 0 {
		return fmt.Errorf("invalid calibration sampling: rate %d, block %d", c.SampleRate, c.BlockSize)
	}
	if c.Duration <= 0 || c.MinDuration <= 0 || c.MinDuration > c.Duration {
		return fmt.Errorf("invalid calibration duration: %v (min %v)", c.Duration, c.MinDuration)
	}
	if c.Percentile <= 0 || c.Percentile > 1 {
		return fmt.Errorf("invalid calibration percentile: %.2f", c.Percentile)
	}
	if c.MaxNoiseFloorDB <= c.FloorDB {
		return fmt.Errorf("invalid calibration dB range: %.1f..%.1f", c.FloorDB, c.MaxNoiseFloorDB)
	}
	if c.BaseOnset <= 0 || c.OnsetSpan < 0 || c.BaseOnset+c.OnsetSpan > 1 {
		return fmt.Errorf("invalid onset mapping: base %.2f, span %.2f", c.BaseOnset, c.OnsetSpan)
	}
	if c.Hysteresis <= 0 || c.Hysteresis >= c.BaseOnset {
		return fmt.Errorf("invalid hysteresis: %.2f", c.Hysteresis)
	}
	if c.GateMargin < 1 || c.MinGateRMS < 0 {
		return fmt.Errorf("invalid gate: margin %.2f, min %.5f", c.GateMargin, c.MinGateRMS)
	}
	return nil
}

func (c Config) blocksFor(d time.Duration) int {
	samples := int(d.Seconds() * float64(c.SampleRate))
	return (samples + c.BlockSize - 1) / c.BlockSize
}

// Result is the outcome of one calibration run
type Result struct {
	NoiseFloorRMS float64            `json:"noise_floor_rms"`
	NoiseFloorDB  float64            `json:"noise_floor_db"`
	Blocks        int                `json:"blocks"`
	Thresholds    tracker.Thresholds `json:"thresholds"`
}

// Calibrator accumulates block RMS values. It is fed from the consumer
// side and is not safe for concurrent use.
type Calibrator struct {
	config  Config
	block   []float64
	fill    int
	rms     []float64
	target  int
	minimum int
}

// NewCalibrator allocates all storage for one run up front
func NewCalibrator(config Config) (*Calibrator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	target := config.blocksFor(config.Duration)
	return &Calibrator{
		config:  config,
		block:   make([]float64, config.BlockSize),
		rms:     make([]float64, 0, target),
		target:  target,
		minimum: config.blocksFor(config.MinDuration),
	}, nil
}

// Feed adds samples and reports whether the configured duration has been
// collected. Samples past that point are ignored.
func (c *Calibrator) Feed(samples []float64) bool {
	for len(samples) > 0 && len(c.rms) < c.target {
		n := copy(c.block[c.fill:], samples)
		c.fill += n
		samples = samples[n:]
		if c.fill == len(c.block) {
			c.rms = append(c.rms, common.RMS(c.block))
			c.fill = 0
		}
	}
	return c.Done()
}

// Done reports whether enough audio has been collected
func (c *Calibrator) Done() bool {
	return len(c.rms) >= c.target
}

// Progress is the collected fraction in [0,1]
func (c *Calibrator) Progress() float64 {
	return float64(len(c.rms)) / float64(c.target)
}

// Reset discards collected audio so the calibrator can be re-run
func (c *Calibrator) Reset() {
	c.rms = c.rms[:0]
	c.fill = 0
}

// Finish derives thresholds from what was collected. It may be called
// before Done once MinDuration has been reached.
func (c *Calibrator) Finish() (Result, error) {
	if len(c.rms) < c.minimum {
		return Result{Blocks: len(c.rms)}, fmt.Errorf("%w: %d of %d blocks", ErrInsufficientAudio, len(c.rms), c.minimum)
	}

	floor := common.Percentile(c.rms, c.config.Percentile)
	floorDB := common.DBFS(floor, c.config.FloorDB)
	res := Result{
		NoiseFloorRMS: floor,
		NoiseFloorDB:  floorDB,
		Blocks:        len(c.rms),
	}

	if floorDB > c.config.MaxNoiseFloorDB {
		return res, fmt.Errorf("%w: %.1f dBFS exceeds %.1f dBFS", ErrTooNoisy, floorDB, c.config.MaxNoiseFloorDB)
	}

	res.Thresholds = c.config.thresholdsFor(floor, floorDB)
	return res, nil
}

func (c Config) thresholdsFor(floor, floorDB float64) tracker.Thresholds {
	norm := common.Clamp((floorDB-c.FloorDB)/(c.MaxNoiseFloorDB-c.FloorDB), 0, 1)
	onset := c.BaseOnset + c.OnsetSpan*norm
	gate := floor * c.GateMargin
	if gate < c.MinGateRMS {
		gate = c.MinGateRMS
	}
	return tracker.Thresholds{
		Onset:   onset,
		Release: onset - c.Hysteresis,
		GateRMS: gate,
	}
}

// Calibrate runs a whole recording through a fresh calibrator
func Calibrate(config Config, samples []float64) (Result, error) {
	c, err := NewCalibrator(config)
	if err != nil {
		return Result{}, err
	}
	c.Feed(samples)
	return c.Finish()
}

// ThresholdSetter is implemented by the note trackers
type ThresholdSetter interface {
	SetThresholds(tracker.Thresholds) error
}

// Apply installs the thresholds of a successful run. On failure the
// targets keep their previous thresholds and the user is told to retry.
func Apply(res Result, calErr error, logger logging.Logger, targets ...ThresholdSetter) error {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	logger = logger.WithFields(logging.Fields{"component": "calibration"})

	if calErr != nil {
		logger.Warn("Calibration failed, keeping previous thresholds; retry calibration in a quieter space", logging.Fields{
			"error":          calErr.Error(),
			"noise_floor_db": res.NoiseFloorDB,
			"blocks":         res.Blocks,
		})
		return calErr
	}

	for _, t := range targets {
		if err := t.SetThresholds(res.Thresholds); err != nil {
			logger.Error(err, "Failed to apply calibrated thresholds")
			return err
		}
	}

	logger.Info("Calibration applied", logging.Fields{
		"noise_floor_db": res.NoiseFloorDB,
		"onset":          res.Thresholds.Onset,
		"release":        res.Thresholds.Release,
		"gate_rms":       res.Thresholds.GateRMS,
	})
	return nil
}
