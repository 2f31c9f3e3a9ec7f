package scoring

import (
	"fmt"
	"time"
)

// Weights combine the sub-scores into the overall score. They are
// normalised by their sum.
type Weights struct {
	Accuracy     float64 `json:"accuracy"`
	Timing       float64 `json:"timing"`
	Completeness float64 `json:"completeness"`
}

// Config holds the numeric tolerances of an attempt. Gameplay modifiers
// are applied by widening these before the engine is built.
type Config struct {
	TimingTolerance time.Duration `json:"timing_tolerance"`
	GracePeriod     time.Duration `json:"grace_period"`
	Weights         Weights       `json:"weights"`
	PassingScore    float64       `json:"passing_score"`
	StarThresholds  [3]float64    `json:"star_thresholds"`
	// CoachingCap bounds each issue list handed to the coaching payload
	CoachingCap int `json:"coaching_cap"`
}

// DefaultConfig returns the standard tolerances
func DefaultConfig() Config {
	return Config{
		TimingTolerance: 50 * time.Millisecond,
		GracePeriod:     100 * time.Millisecond,
		Weights: Weights{
			Accuracy:     0.5,
			Timing:       0.3,
			Completeness: 0.2,
		},
		PassingScore:   70,
		StarThresholds: [3]float64{70, 85, 95},
		CoachingCap:    2,
	}
}

// Window is how far from its scheduled start a note may still be matched
func (c Config) Window() time.Duration {
	return c.TimingTolerance + c.GracePeriod
}

// Validate checks tolerances, weights and thresholds
func (c Config) Validate() error {
	if c.TimingTolerance <= 0 || c.GracePeriod < 0 {
		return fmt.Errorf("invalid timing tolerance %v / grace %v", c.TimingTolerance, c.GracePeriod)
	}
	w := c.Weights
	if w.Accuracy < 0 || w.Timing < 0 || w.Completeness < 0 || w.Accuracy+w.Timing+w.Completeness <= 0 {
		return fmt.Errorf("invalid score weights: %+v", w)
	}
	if c.PassingScore < 0 || c.PassingScore > 100 {
		return fmt.Errorf("invalid passing score: %v", c.PassingScore)
	}
	for i, s := range c.StarThresholds {
		if s < 0 || s > 100 || (i > 0 && s < c.StarThresholds[i-1]) {
			return fmt.Errorf("invalid star thresholds: %v", c.StarThresholds)
		}
	}
	if c.CoachingCap < 0 {
		return fmt.Errorf("invalid coaching cap: %d", c.CoachingCap)
	}
	return nil
}
