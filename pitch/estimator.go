// Package pitch turns fixed-size audio frames into per-frame pitch
// candidates. Estimators never commit to notes; that is the trackers' job.
//
// References:
//   - de Cheveigné, A., Kawahara, H. (2002). "YIN, a fundamental frequency estimator for speech and music"
//   - Klapuri, A. (2006). "Multiple fundamental frequency estimation by summing harmonic amplitudes"
package pitch

import (
	"errors"
	"fmt"
	"time"

	"github.com/RyanBlaney/sonido-keys/note"
)

var (
	// ErrFrameSize is returned when a frame does not match the configured window
	ErrFrameSize = errors.New("frame size doesn't match window size")
	// ErrInvalidConfig is returned for unusable estimator parameters
	ErrInvalidConfig = errors.New("invalid estimator configuration")
)

// Estimator is the contract shared by the monophonic and polyphonic
// strategies: one frame in, a bounded candidate list out. Implementations
// must not allocate inside Estimate.
type Estimator interface {
	// Estimate analyses frame and writes candidates into out, which is
	// reset and stamped with t first
	Estimate(frame []float64, t time.Duration, out *note.PolyFrame) error

	// WindowSize is the frame length Estimate expects
	WindowSize() int

	// Name identifies the strategy in logs
	Name() string
}

// Verify at compile time that both strategies satisfy Estimator
var (
	_ Estimator = (*Mono)(nil)
	_ Estimator = (*Poly)(nil)
)

func checkFrame(frame []float64, size int) error {
	if len(frame) != size {
		return fmt.Errorf("%w: got %d, want %d", ErrFrameSize, len(frame), size)
	}
	return nil
}
