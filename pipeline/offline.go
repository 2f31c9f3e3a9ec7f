package pipeline

import (
	"time"

	"github.com/RyanBlaney/sonido-keys/note"
)

// AnalyzeSamples runs a decoded recording through the live audio path in
// device-sized chunks and returns every event it produced. Notes still
// sounding at the end are released at the last frame.
func AnalyzeSamples(config Config, samples []float64) ([]note.Event, error) {
	a, err := NewAudio(config)
	if err != nil {
		return nil, err
	}
	a.mic.SetActive(true)

	rate := config.Microphone.SampleRate
	chunk := make([]float32, config.Microphone.DeviceBuffer)
	var events []note.Event

	for off := 0; off < len(samples); off += len(chunk) {
		n := min(len(chunk), len(samples)-off)
		for i := 0; i < n; i++ {
			chunk[i] = float32(samples[off+i])
		}
		t := time.Duration(off) * time.Second / time.Duration(rate)
		a.mic.Write(chunk[:n], t)
		a.Process()
		events = a.Drain(events)
	}

	a.Flush()
	return a.Drain(events), nil
}
