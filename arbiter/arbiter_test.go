package arbiter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/gomidi/midi/v2"

	"github.com/RyanBlaney/sonido-keys/note"
	"github.com/RyanBlaney/sonido-keys/source"
)

type fakeSource struct {
	kind    note.Source
	latency time.Duration
	live    bool
	events  []note.Event
}

func (f *fakeSource) Kind() note.Source                  { return f.kind }
func (f *fakeSource) Latency() time.Duration             { return f.latency }
func (f *fakeSource) Live(now, window time.Duration) bool { return f.live }
func (f *fakeSource) Dropped() uint64                    { return 0 }

func (f *fakeSource) Drain(dst []note.Event) []note.Event {
	dst = append(dst, f.events...)
	f.events = f.events[:0]
	return dst
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

type rig struct {
	clock   *source.ManualClock
	ctrl    *source.Controller
	audio   *fakeSource
	touch   *source.Touch
	arb     *Arbiter
	changes []Change
}

func newRig(t *testing.T) *rig {
	t.Helper()
	r := &rig{clock: &source.ManualClock{}}
	r.ctrl = source.NewController(source.DefaultControllerConfig(), r.clock)
	r.audio = &fakeSource{kind: note.Audio, latency: ms(30)}
	r.touch = source.NewTouch(source.DefaultTouchConfig())
	r.arb = New(DefaultConfig())
	require.NoError(t, r.arb.Register(r.ctrl))
	require.NoError(t, r.arb.Register(r.audio))
	require.NoError(t, r.arb.Register(r.touch))
	r.arb.OnChange(func(c Change) { r.changes = append(r.changes, c) })
	return r
}

func (r *rig) press(key uint8, at time.Duration) {
	r.clock.Set(at)
	r.ctrl.HandleMessage(midi.NoteOn(0, key, 100))
}

func TestSelect(t *testing.T) {
	tests := []struct {
		name     string
		statuses []Status
		want     note.Source
		ok       bool
	}{
		{"controller preferred", []Status{{note.Touch, true}, {note.Controller, true}, {note.Audio, true}}, note.Controller, true},
		{"audio over touch", []Status{{note.Touch, true}, {note.Audio, true}}, note.Audio, true},
		{"dead sources ignored", []Status{{note.Controller, false}, {note.Touch, true}}, note.Touch, true},
		{"nothing live", []Status{{note.Controller, false}}, 0, false},
		{"empty", nil, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Select(tt.statuses)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestLatencyCompensation(t *testing.T) {
	r := newRig(t)
	r.ctrl.SetConnected(true)

	r.press(60, ms(40))
	r.press(62, ms(4))
	events := r.arb.Poll(ms(50), nil)

	require.Len(t, events, 2)
	assert.Equal(t, ms(30), events[0].Time)
	assert.Equal(t, time.Duration(0), events[1].Time, "compensated time is clamped at zero")
	assert.Equal(t, note.Controller, events[0].Source)

	require.Len(t, r.changes, 1)
	assert.Equal(t, ReasonInitial, r.changes[0].Reason)
	assert.False(t, r.changes[0].HadFrom)
}

func TestFailoverKeepsBufferedEvents(t *testing.T) {
	r := newRig(t)
	r.ctrl.SetConnected(true)
	r.touch.SetVisible(true)
	r.arb.Poll(0, nil)
	r.arb.Freeze()

	r.press(60, ms(100))
	r.press(64, ms(120))
	r.ctrl.Disconnect()
	r.touch.Press(67, ms(150))

	events := r.arb.Poll(ms(160), nil)

	require.Len(t, events, 3)
	assert.Equal(t, note.Pitch(60), events[0].Pitch)
	assert.Equal(t, note.Pitch(64), events[1].Pitch)
	assert.Equal(t, note.Controller, events[1].Source)
	assert.Equal(t, note.Event{Pitch: 67, Kind: note.Onset, Time: ms(138), Source: note.Touch}, events[2])

	active, ok := r.arb.Active()
	assert.True(t, ok)
	assert.Equal(t, note.Touch, active)
	require.Len(t, r.changes, 2)
	assert.Equal(t, Change{From: note.Controller, HadFrom: true, To: note.Touch, HasTo: true, At: ms(160), Reason: ReasonLost}, r.changes[1])
}

func TestHeartbeatTimeoutDegrades(t *testing.T) {
	r := newRig(t)
	r.ctrl.SetConnected(true)
	r.audio.live = true

	r.arb.Poll(time.Second, nil)
	active, _ := r.arb.Active()
	assert.Equal(t, note.Controller, active)

	r.arb.Poll(ms(2001), nil)
	active, _ = r.arb.Active()
	assert.Equal(t, note.Audio, active, "switch on the first poll past the liveness window")
}

func TestUpgradeBlockedWhileFrozen(t *testing.T) {
	r := newRig(t)
	r.touch.SetVisible(true)
	r.arb.Poll(0, nil)
	r.arb.Freeze()

	r.audio.live = true
	r.arb.Poll(ms(10), nil)
	active, _ := r.arb.Active()
	assert.Equal(t, note.Touch, active)

	r.arb.Unfreeze()
	r.arb.Poll(ms(20), nil)
	active, _ = r.arb.Active()
	assert.Equal(t, note.Audio, active)
	assert.Equal(t, ReasonUpgrade, r.changes[len(r.changes)-1].Reason)
}

func TestInactiveSourceEventsDiscarded(t *testing.T) {
	r := newRig(t)
	r.ctrl.SetConnected(true)
	r.touch.SetVisible(true)

	r.touch.Press(48, ms(5))
	r.audio.events = append(r.audio.events, note.Event{Pitch: 50, Kind: note.Onset, Time: ms(5), Source: note.Audio})
	r.press(60, ms(20))

	events := r.arb.Poll(ms(30), nil)
	require.Len(t, events, 1)
	assert.Equal(t, note.Pitch(60), events[0].Pitch)

	r.ctrl.Disconnect()
	events = r.arb.Poll(ms(40), nil)
	assert.Empty(t, events, "touch presses made before the switch are not replayed")
}

func TestAllSourcesLost(t *testing.T) {
	r := newRig(t)
	r.audio.live = true
	r.arb.Poll(0, nil)

	r.audio.live = false
	r.arb.Poll(ms(10), nil)

	_, ok := r.arb.Active()
	assert.False(t, ok)
	last := r.changes[len(r.changes)-1]
	assert.False(t, last.HasTo)
	assert.Equal(t, "audio -> none at 10ms (source lost)", last.String())

	r.audio.live = true
	r.arb.Poll(ms(20), nil)
	active, ok := r.arb.Active()
	assert.True(t, ok)
	assert.Equal(t, note.Audio, active)
}

func TestRegisterRejectsDuplicateKind(t *testing.T) {
	a := New(DefaultConfig())
	require.NoError(t, a.Register(&fakeSource{kind: note.Audio}))
	assert.Error(t, a.Register(&fakeSource{kind: note.Audio}))
}

func TestMaxLatencyAndDiscard(t *testing.T) {
	r := newRig(t)
	r.ctrl.SetConnected(true)

	assert.Equal(t, ms(30), r.arb.MaxLatency())

	r.press(60, ms(10))
	r.touch.Press(62, ms(10))
	r.audio.events = append(r.audio.events, note.Event{Pitch: 64, Kind: note.Onset, Time: ms(10), Source: note.Audio})
	r.arb.Discard()

	assert.Empty(t, r.arb.Poll(ms(20), nil))
	assert.Empty(t, r.audio.events)
}
