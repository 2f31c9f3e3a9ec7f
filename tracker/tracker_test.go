package tracker

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/sonido-keys/note"
)

const (
	a4  = 440.0
	b4  = 493.88
	hop = 10 * time.Millisecond
)

func at(i int) time.Duration { return time.Duration(i) * hop }

func newMono(t *testing.T, config Config) *Mono {
	t.Helper()
	m, err := NewMono(config, DefaultThresholds(), 0)
	require.NoError(t, err)
	return m
}

// feed runs frames of a single frequency with the given confidences,
// starting at frame index start
func feed(m *Mono, start int, hz float64, confidences []float64, events []note.Event) []note.Event {
	for i, c := range confidences {
		events = m.Update(note.MonoCandidate{FrequencyHz: hz, Confidence: c, Time: at(start + i)}, events)
	}
	return events
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestNoOnsetBelowThreshold(t *testing.T) {
	m := newMono(t, DefaultConfig())

	events := feed(m, 0, a4, repeat(0.59, 200), nil)

	assert.Empty(t, events)
	assert.Equal(t, 0, m.Sounding())
}

func TestSingleFrameBlipIsIgnored(t *testing.T) {
	m := newMono(t, DefaultConfig())

	events := feed(m, 0, a4, []float64{0.95, 0.1, 0.95, 0, 0, 0}, nil)

	assert.Empty(t, events)
	assert.Equal(t, note.Silent, m.State(69))
}

func TestUnconfirmedAttackStaysSilent(t *testing.T) {
	m := newMono(t, DefaultConfig())

	events := feed(m, 0, a4, []float64{0.9}, nil)
	assert.Empty(t, events)
	assert.Equal(t, note.Silent, m.State(69))
	states := m.Active(nil)
	require.Len(t, states, 1)
	assert.Equal(t, NoteState{Pitch: 69, State: note.Silent, ConsecutiveOnFrames: 1, LastConfidence: 0.9}, states[0])

	events = feed(m, 1, a4, []float64{0.1}, events)
	assert.Empty(t, events)
	assert.Equal(t, note.Silent, m.State(69))
	states = m.Active(nil)
	require.Len(t, states, 1)
	assert.Equal(t, 0, states[0].ConsecutiveOnFrames)

	events = feed(m, 2, a4, []float64{0.9, 0.9}, events)
	require.Len(t, events, 1)
	assert.Equal(t, at(2), events[0].Time)
	assert.Equal(t, note.Sustained, m.State(69))
}

func TestOneOnsetPerRunAndTimedRelease(t *testing.T) {
	m := newMono(t, DefaultConfig())

	events := feed(m, 0, a4, repeat(0.9, 20), nil)
	require.Len(t, events, 1)
	assert.Equal(t, note.Event{Pitch: 69, Kind: note.Onset, Time: 0, Source: note.Audio}, events[0])

	events = feed(m, 20, a4, repeat(0, 5), events)
	require.Len(t, events, 2)
	assert.Equal(t, note.Release, events[1].Kind)
	assert.Equal(t, at(20), events[1].Time, "release is stamped at the first quiet frame")
	assert.Equal(t, note.Silent, m.State(69))
}

func TestConfidenceBetweenThresholdsHoldsNote(t *testing.T) {
	m := newMono(t, DefaultConfig())

	events := feed(m, 0, a4, repeat(0.9, 3), nil)
	events = feed(m, 3, a4, repeat(0.5, 50), events)

	assert.Len(t, events, 1)
	assert.Equal(t, note.Sustained, m.State(69))
}

func TestReleaseCancelledByRecovery(t *testing.T) {
	m := newMono(t, DefaultConfig())

	events := feed(m, 0, a4, repeat(0.9, 4), nil)
	events = feed(m, 4, a4, repeat(0.1, 3), events)
	assert.Equal(t, note.Releasing, m.State(69))

	events = feed(m, 7, a4, repeat(0.9, 10), events)

	assert.Len(t, events, 1, "no release and no second onset")
	assert.Equal(t, note.Sustained, m.State(69))
}

func TestLegatoProducesOnsetBeforeRelease(t *testing.T) {
	m := newMono(t, DefaultConfig())

	events := feed(m, 0, a4, repeat(0.9, 10), nil)
	events = feed(m, 10, b4, repeat(0.9, 10), events)

	require.Len(t, events, 3)
	assert.Equal(t, note.Pitch(69), events[0].Pitch)
	assert.Equal(t, note.Event{Pitch: 71, Kind: note.Onset, Time: at(10), Source: note.Audio}, events[1])
	assert.Equal(t, note.Event{Pitch: 69, Kind: note.Release, Time: at(10), Source: note.Audio}, events[2])
}

func TestSlotRecycledAfterHold(t *testing.T) {
	config := DefaultConfig()
	m := newMono(t, config)

	events := feed(m, 0, a4, repeat(0.9, 4), nil)
	events = feed(m, 4, a4, repeat(0, 5), events)
	require.Len(t, events, 2)
	assert.Len(t, m.Active(nil), 1, "released pitch holds its slot")

	events = feed(m, 9, 0, repeat(0, config.HoldFrames+1), events)
	assert.Empty(t, m.Active(nil))

	events = feed(m, 30, a4, repeat(0.9, 2), events)
	require.Len(t, events, 3)
	assert.Equal(t, note.Onset, events[2].Kind)
	assert.Equal(t, at(30), events[2].Time)

	states := m.Active(nil)
	require.Len(t, states, 1)
	assert.Equal(t, 2, states[0].ConsecutiveOnFrames)
	assert.Equal(t, 0, states[0].ConsecutiveOffFrames)
}

func TestMaxSustainForcesRelease(t *testing.T) {
	config := DefaultConfig()
	config.MaxSustain = 100 * time.Millisecond
	m := newMono(t, config)

	events := feed(m, 0, a4, repeat(0.9, 11), nil)

	require.GreaterOrEqual(t, len(events), 2)
	assert.Equal(t, note.Onset, events[0].Kind)
	assert.Equal(t, note.Event{Pitch: 69, Kind: note.Release, Time: at(10), Source: note.Audio}, events[1])
}

func TestMaxCentsRejectsOutOfTune(t *testing.T) {
	m, err := NewMono(DefaultConfig(), DefaultThresholds(), 30)
	require.NoError(t, err)

	events := feed(m, 0, 452, repeat(0.95, 10), nil)

	assert.Empty(t, events)
}

func TestSetThresholdsRejectsInverted(t *testing.T) {
	m := newMono(t, DefaultConfig())

	err := m.SetThresholds(Thresholds{Onset: 0.3, Release: 0.5})

	assert.ErrorIs(t, err, ErrInvalidThresholds)
	assert.Equal(t, DefaultThresholds(), m.Thresholds())
}

func TestSetThresholdsAppliesNextFrame(t *testing.T) {
	m := newMono(t, DefaultConfig())
	require.NoError(t, m.SetThresholds(Thresholds{Onset: 0.4, Release: 0.2}))

	events := feed(m, 0, a4, repeat(0.5, 2), nil)

	assert.Len(t, events, 1)
}

func TestResetAndReleaseAll(t *testing.T) {
	m := newMono(t, DefaultConfig())

	events := feed(m, 0, a4, repeat(0.9, 4), nil)
	events = m.ReleaseAll(at(4), events)
	require.Len(t, events, 2)
	assert.Equal(t, note.Event{Pitch: 69, Kind: note.Release, Time: at(4), Source: note.Audio}, events[1])
	assert.Empty(t, m.Active(nil))

	events = feed(m, 5, a4, repeat(0.9, 4), events[:0])
	m.Reset()
	assert.Len(t, events, 1)
	assert.Empty(t, m.Active(nil))
	assert.Equal(t, 0, m.Sounding())
}

func TestConfigValidation(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.OnFrames = 0
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.MaxPolyphony = 0
	assert.Error(t, bad.Validate())

	_, err := NewPoly(DefaultConfig(), Thresholds{Onset: 1.5, Release: 0.2})
	assert.ErrorIs(t, err, ErrInvalidThresholds)
}

func polyFrame(i int, cands ...note.PitchConfidence) *note.PolyFrame {
	f := &note.PolyFrame{}
	f.Reset(at(i))
	for _, c := range cands {
		f.Add(c.Pitch, c.Confidence)
	}
	return f
}

func TestPolyKeepsStrongestCandidates(t *testing.T) {
	config := DefaultConfig()
	config.MaxPolyphony = 3
	p, err := NewPoly(config, DefaultThresholds())
	require.NoError(t, err)

	var events []note.Event
	for i := 0; i < 5; i++ {
		events = p.Update(polyFrame(i,
			note.PitchConfidence{Pitch: 64, Confidence: 0.8},
			note.PitchConfidence{Pitch: 60, Confidence: 0.95},
			note.PitchConfidence{Pitch: 63, Confidence: 0.75},
			note.PitchConfidence{Pitch: 61, Confidence: 0.9},
			note.PitchConfidence{Pitch: 62, Confidence: 0.85},
		), events)
	}

	require.Len(t, events, 3)
	var pitches []note.Pitch
	for _, e := range events {
		assert.Equal(t, note.Onset, e.Kind)
		pitches = append(pitches, e.Pitch)
	}
	assert.ElementsMatch(t, []note.Pitch{60, 61, 62}, pitches)
	assert.Equal(t, 3, p.Sounding())
}

func TestPolyRefusesAttackWhenFull(t *testing.T) {
	config := DefaultConfig()
	config.MaxPolyphony = 2
	p, err := NewPoly(config, DefaultThresholds())
	require.NoError(t, err)

	var events []note.Event
	for i := 0; i < 3; i++ {
		events = p.Update(polyFrame(i,
			note.PitchConfidence{Pitch: 60, Confidence: 0.9},
			note.PitchConfidence{Pitch: 64, Confidence: 0.9},
		), events)
	}
	require.Len(t, events, 2)

	// a third key cannot attack while both notes still sound
	for i := 3; i < 5; i++ {
		events = p.Update(polyFrame(i,
			note.PitchConfidence{Pitch: 67, Confidence: 0.99},
		), events)
	}
	assert.Len(t, events, 2)
	assert.Equal(t, note.Silent, p.State(67))
	assert.Len(t, p.Active(nil), 2, "no slot is taken for a key that cannot attack")
}

func TestPolyDuplicateCandidateKeepsStrongest(t *testing.T) {
	p, err := NewPoly(DefaultConfig(), DefaultThresholds())
	require.NoError(t, err)

	var events []note.Event
	for i := 0; i < 2; i++ {
		events = p.Update(polyFrame(i,
			note.PitchConfidence{Pitch: 60, Confidence: 0.9},
			note.PitchConfidence{Pitch: 64, Confidence: 0.7},
			note.PitchConfidence{Pitch: 60, Confidence: 0.3},
		), events)
	}

	require.Len(t, events, 2)
	states := p.Active(nil)
	require.Len(t, states, 2)
	for _, s := range states {
		if s.Pitch == 60 {
			assert.Equal(t, 0.9, s.LastConfidence)
		}
	}
}

func TestPolyDuplicateCandidateDoesNotCrowdOut(t *testing.T) {
	config := DefaultConfig()
	config.MaxPolyphony = 2
	p, err := NewPoly(config, DefaultThresholds())
	require.NoError(t, err)

	var events []note.Event
	for i := 0; i < 2; i++ {
		events = p.Update(polyFrame(i,
			note.PitchConfidence{Pitch: 60, Confidence: 0.95},
			note.PitchConfidence{Pitch: 60, Confidence: 0.9},
			note.PitchConfidence{Pitch: 67, Confidence: 0.8},
		), events)
	}

	require.Len(t, events, 2)
	assert.Equal(t, note.Sustained, p.State(60))
	assert.Equal(t, note.Sustained, p.State(67))
}

func TestPolyInvariantsUnderRandomInput(t *testing.T) {
	config := DefaultConfig()
	p, err := NewPoly(config, DefaultThresholds())
	require.NoError(t, err)

	rng := rand.New(rand.NewPCG(7, 11))
	sounding := map[note.Pitch]bool{}
	var events []note.Event

	for i := 0; i < 5000; i++ {
		f := &note.PolyFrame{}
		f.Reset(at(i))
		for n := rng.IntN(note.MaxFrameCandidates); n > 0; n-- {
			f.Add(note.Pitch(48+rng.IntN(24)), rng.Float64())
		}

		events = p.Update(f, events[:0])
		for _, e := range events {
			switch e.Kind {
			case note.Onset:
				require.False(t, sounding[e.Pitch], "double onset for %v at frame %d", e.Pitch, i)
				sounding[e.Pitch] = true
			case note.Release:
				require.True(t, sounding[e.Pitch], "release without onset for %v at frame %d", e.Pitch, i)
				delete(sounding, e.Pitch)
			}
			assert.LessOrEqual(t, e.Time, at(i))
		}

		require.LessOrEqual(t, p.Sounding(), config.MaxPolyphony)
		require.Equal(t, len(sounding), p.Sounding())
		for _, s := range p.Active(nil) {
			require.NotEqual(t, note.Attacking, s.State, "pitch %v at frame %d", s.Pitch, i)
		}
	}
}
