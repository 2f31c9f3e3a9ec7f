package note

import (
	"fmt"
	"math"
)

// ConcertA is the reference tuning of A4 (MIDI 69)
const ConcertA = 440.0

var pitchClassNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// Name returns scientific pitch notation, e.g. 60 -> "C4"
func (p Pitch) Name() string {
	return fmt.Sprintf("%s%d", pitchClassNames[p%12], int(p)/12-1)
}

// Valid reports whether p is a MIDI note number
func (p Pitch) Valid() bool {
	return p <= MaxPitch
}

// OnPiano reports whether p is within the 88-key range
func (p Pitch) OnPiano() bool {
	return p >= PianoLow && p <= PianoHigh
}

// Frequency returns the equal-tempered frequency of p in Hz
func (p Pitch) Frequency() float64 {
	return PitchToFrequency(float64(p))
}

// PitchToFrequency converts a (possibly fractional) MIDI number to Hz
func PitchToFrequency(midi float64) float64 {
	return ConcertA * math.Pow(2, (midi-69)/12)
}

// FrequencyToMIDI converts Hz to a fractional MIDI number
func FrequencyToMIDI(hz float64) float64 {
	return 69 + 12*math.Log2(hz/ConcertA)
}

// FrequencyToPitch rounds hz to the nearest MIDI note and returns the
// deviation in cents. ok is false when hz is outside the MIDI range.
func FrequencyToPitch(hz float64) (p Pitch, cents float64, ok bool) {
	if hz <= 0 || math.IsNaN(hz) || math.IsInf(hz, 0) {
		return 0, 0, false
	}
	midi := FrequencyToMIDI(hz)
	rounded := math.Round(midi)
	if rounded < 0 || rounded > float64(MaxPitch) {
		return 0, 0, false
	}
	return Pitch(rounded), 100 * (midi - rounded), true
}
