package note

import "time"

// MaxFrameCandidates bounds the candidate list of one polyphonic frame
const MaxFrameCandidates = 16

// MonoCandidate is the output of a monophonic estimator for one analysis
// frame. A zero FrequencyHz means no periodicity was found.
type MonoCandidate struct {
	FrequencyHz float64
	Confidence  float64
	Time        time.Duration
}

// PitchConfidence is one entry of a polyphonic candidate list
type PitchConfidence struct {
	Pitch      Pitch
	Confidence float64
}

// PolyFrame is the output of a polyphonic estimator for one analysis frame.
// The fixed-size array keeps the per-frame path free of allocation; only
// the first N entries are valid.
type PolyFrame struct {
	Candidates [MaxFrameCandidates]PitchConfidence
	N          int
	Time       time.Duration
}

// Add appends a candidate, returning false when the frame is full
func (f *PolyFrame) Add(p Pitch, confidence float64) bool {
	if f.N >= MaxFrameCandidates {
		return false
	}
	f.Candidates[f.N] = PitchConfidence{Pitch: p, Confidence: confidence}
	f.N++
	return true
}

// List returns the valid candidates
func (f *PolyFrame) List() []PitchConfidence {
	return f.Candidates[:f.N]
}

// Reset empties the frame and stamps it with t
func (f *PolyFrame) Reset(t time.Duration) {
	f.N = 0
	f.Time = t
}
