package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/sonido-keys/arbiter"
	"github.com/RyanBlaney/sonido-keys/note"
	"github.com/RyanBlaney/sonido-keys/pipeline"
	"github.com/RyanBlaney/sonido-keys/scoring"
	"github.com/RyanBlaney/sonido-keys/source"
)

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// newEngine scores one middle C on beat zero at 60 bpm with a 50ms
// tolerance and 100ms of grace
func newEngine(t *testing.T, config scoring.Config) *scoring.Engine {
	t.Helper()
	tl, err := scoring.BuildTimeline([]scoring.ScriptedNote{{Pitch: 60, DurationBeats: 1}}, 60, 0)
	require.NoError(t, err)
	e, err := scoring.NewEngine(tl, config)
	require.NoError(t, err)
	return e
}

func newTouch(t *testing.T, arb *arbiter.Arbiter, latency time.Duration) *source.Touch {
	t.Helper()
	touch := source.NewTouch(source.TouchConfig{BufferSize: 16, Latency: latency})
	touch.SetVisible(true)
	require.NoError(t, arb.Register(touch))
	return touch
}

func TestLateNoteWithinGraceIsMatched(t *testing.T) {
	arb := arbiter.New(arbiter.DefaultConfig())
	touch := newTouch(t, arb, ms(60))
	s := New(arb, newEngine(t, scoring.DefaultConfig()), nil)

	require.NoError(t, s.Start(0))
	assert.Equal(t, ms(60), s.Lag())
	assert.True(t, arb.Frozen())

	// the key went down at 140ms but reaches the session only at 200ms
	state, err := s.Tick(ms(180))
	require.NoError(t, err)
	assert.Equal(t, scoring.Playing, state)

	touch.Press(60, ms(200))
	_, err = s.Tick(ms(200))
	require.NoError(t, err)

	state, err = s.Tick(ms(1200))
	require.NoError(t, err)
	require.Equal(t, scoring.Finished, state)
	assert.False(t, arb.Frozen())

	res, err := s.Engine().Result()
	require.NoError(t, err)
	assert.Equal(t, 1, res.Matched)
	assert.Zero(t, res.Missed)
	assert.Zero(t, res.Extra)
	require.Len(t, res.TimingErrors, 1)
	assert.Equal(t, 140.0, res.TimingErrors[0].OffsetMs)
}

func TestNoteMissedOncePastGraceAndLag(t *testing.T) {
	arb := arbiter.New(arbiter.DefaultConfig())
	touch := newTouch(t, arb, ms(60))
	s := New(arb, newEngine(t, scoring.DefaultConfig()), nil)
	require.NoError(t, s.Start(0))

	touch.Press(60, ms(230))
	res, err := s.Finish(ms(1200))
	require.NoError(t, err)

	assert.Zero(t, res.Matched)
	assert.Equal(t, 1, res.Missed)
	assert.Equal(t, 1, res.Extra)
}

func TestEventsBeforeStartAreDropped(t *testing.T) {
	arb := arbiter.New(arbiter.DefaultConfig())
	touch := newTouch(t, arb, ms(10))
	s := New(arb, newEngine(t, scoring.DefaultConfig()), nil)

	_, err := s.Tick(ms(5))
	assert.ErrorIs(t, err, scoring.ErrNotStarted)

	touch.Press(60, ms(20))
	require.NoError(t, s.Start(ms(40)))

	res, err := s.Finish(ms(2000))
	require.NoError(t, err)
	assert.Zero(t, res.Matched)
	assert.Zero(t, res.Extra)
}

func TestCancelStopsAudioAndDiscards(t *testing.T) {
	arb := arbiter.New(arbiter.DefaultConfig())
	touch := newTouch(t, arb, ms(10))
	audio, err := pipeline.NewAudio(pipeline.DefaultConfig(pipeline.Monophonic))
	require.NoError(t, err)
	require.NoError(t, arb.Register(audio))

	mic := audio.Microphone()
	mic.SetActive(true)

	s := New(arb, newEngine(t, scoring.DefaultConfig()), audio)
	require.NoError(t, s.Start(0))
	assert.GreaterOrEqual(t, s.Lag(), ms(10))

	mic.Write(make([]float32, 2*mic.Config().WindowSize), ms(50))
	touch.Press(60, ms(60))
	s.Cancel()

	assert.False(t, audio.Live(ms(60), time.Second))
	assert.Zero(t, audio.Process(), "buffered audio was dropped")
	assert.Empty(t, arb.Poll(ms(70), nil))
	assert.False(t, arb.Frozen())
	assert.Equal(t, scoring.NotStarted, s.Engine().State())
	_, err = s.Engine().Result()
	assert.ErrorIs(t, err, scoring.ErrNotFinished)
}

func TestRunCancelledContext(t *testing.T) {
	arb := arbiter.New(arbiter.DefaultConfig())
	newTouch(t, arb, ms(10))
	s := New(arb, newEngine(t, scoring.DefaultConfig()), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Run(ctx, &source.ManualClock{}, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, scoring.NotStarted, s.Engine().State())
	assert.False(t, arb.Frozen())
}

func TestRunUntilFinished(t *testing.T) {
	arb := arbiter.New(arbiter.DefaultConfig())
	newTouch(t, arb, ms(10))

	tl, err := scoring.BuildTimeline([]scoring.ScriptedNote{{Pitch: 60, DurationBeats: 0.1}}, 600, 0)
	require.NoError(t, err)
	config := scoring.DefaultConfig()
	config.TimingTolerance = ms(10)
	config.GracePeriod = 0
	engine, err := scoring.NewEngine(tl, config)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := New(arb, engine, nil).Run(ctx, source.NewSessionClock(), time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Missed)
	assert.False(t, res.Passed)
}
