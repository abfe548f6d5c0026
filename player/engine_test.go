package player

import (
	"errors"
	"sync"
	"testing"

	"starbizvoices/models"

	"github.com/stretchr/testify/assert"
)

// fakeUnit records transport calls so tests can drive lifecycle events
// by hand through the captured UnitEvents.
type fakeUnit struct {
	mu       sync.Mutex
	playing  bool
	position float64
	volume   float64
	closed   bool
	src      Source
}

func (u *fakeUnit) Play() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.playing = true
}

func (u *fakeUnit) Pause() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.playing = false
}

func (u *fakeUnit) Seek(seconds float64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.position = seconds
}

func (u *fakeUnit) Position() float64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.position
}

func (u *fakeUnit) SetVolume(v float64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.volume = v
}

func (u *fakeUnit) Close() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.closed = true
}

func (u *fakeUnit) isClosed() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.closed
}

func (u *fakeUnit) isPlaying() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.playing
}

func (u *fakeUnit) currentVolume() float64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.volume
}

type fakeFactory struct {
	mu     sync.Mutex
	units  []*fakeUnit
	events []UnitEvents
}

func (f *fakeFactory) New(src Source, events UnitEvents) AudioUnit {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := &fakeUnit{src: src}
	f.units = append(f.units, u)
	f.events = append(f.events, events)
	return u
}

func (f *fakeFactory) last() (*fakeUnit, UnitEvents) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.units) == 0 {
		return nil, UnitEvents{}
	}
	return f.units[len(f.units)-1], f.events[len(f.events)-1]
}

func audioTrack(id string) models.Track {
	return models.Track{
		ID:      id,
		Title:   "Episode " + id,
		Author:  "Author",
		FileURL: "https://storage.example.com/audio/" + id + ".mp3",
		Kind:    models.KindAudio,
		Tier:    models.TierFree,
	}
}

func newTestEngine(hooks EngineHooks) (*Engine, *fakeFactory) {
	factory := &fakeFactory{}
	engine := NewEngine(factory.New, nil, hooks)
	return engine, factory
}

func TestEngine_LoadTransitionsToReady(t *testing.T) {
	engine, factory := newTestEngine(EngineHooks{})

	engine.LoadTrack(audioTrack("a"))
	assert.Equal(t, StateLoading, engine.State())

	_, events := factory.last()
	events.OnLoad(180)

	assert.Equal(t, StateReady, engine.State())
	assert.Equal(t, float64(180), engine.Duration())
	assert.Equal(t, float64(0), engine.Progress())
}

func TestEngine_AutoplayCarriesAcrossLoads(t *testing.T) {
	engine, factory := newTestEngine(EngineHooks{})

	engine.LoadTrack(audioTrack("a"))
	_, events := factory.last()
	events.OnLoad(100)
	engine.Play()
	assert.Equal(t, StatePlaying, engine.State())

	engine.LoadTrack(audioTrack("b"))
	unit, events := factory.last()
	events.OnLoad(200)

	assert.Equal(t, StatePlaying, engine.State())
	assert.True(t, unit.isPlaying())
}

func TestEngine_NoAutoplayWhenPaused(t *testing.T) {
	engine, factory := newTestEngine(EngineHooks{})

	engine.LoadTrack(audioTrack("a"))
	_, events := factory.last()
	events.OnLoad(100)

	engine.LoadTrack(audioTrack("b"))
	unit, events := factory.last()
	events.OnLoad(200)

	assert.Equal(t, StateReady, engine.State())
	assert.False(t, unit.isPlaying())
}

func TestEngine_SeekClampsToDuration(t *testing.T) {
	engine, factory := newTestEngine(EngineHooks{})

	engine.LoadTrack(audioTrack("a"))
	unit, events := factory.last()
	events.OnLoad(180)

	engine.Seek(200)
	assert.Equal(t, float64(180), engine.Progress())
	assert.Equal(t, float64(180), unit.Position())

	engine.Seek(-10)
	assert.Equal(t, float64(0), engine.Progress())
}

func TestEngine_RelativeSeek(t *testing.T) {
	engine, factory := newTestEngine(EngineHooks{})

	engine.LoadTrack(audioTrack("a"))
	_, events := factory.last()
	events.OnLoad(180)

	engine.Seek(30)
	engine.SeekForward()
	assert.Equal(t, float64(40), engine.Progress())

	engine.SeekBackward()
	engine.SeekBackward()
	assert.Equal(t, float64(20), engine.Progress())

	engine.Seek(5)
	engine.SeekBackward()
	assert.Equal(t, float64(0), engine.Progress())
}

func TestEngine_MuteKeepsStoredVolume(t *testing.T) {
	engine, factory := newTestEngine(EngineHooks{})

	engine.LoadTrack(audioTrack("a"))
	unit, events := factory.last()
	events.OnLoad(100)

	engine.SetVolume(0.6)
	assert.Equal(t, 0.6, unit.currentVolume())

	engine.ToggleMute()
	volume, muted := engine.Volume()
	assert.True(t, muted)
	assert.Equal(t, 0.6, volume)
	assert.Equal(t, float64(0), unit.currentVolume())

	engine.ToggleMute()
	volume, muted = engine.Volume()
	assert.False(t, muted)
	assert.Equal(t, 0.6, volume)
	assert.Equal(t, 0.6, unit.currentVolume())
}

func TestEngine_VolumeClamped(t *testing.T) {
	engine, _ := newTestEngine(EngineHooks{})

	engine.SetVolume(1.5)
	volume, _ := engine.Volume()
	assert.Equal(t, float64(1), volume)

	engine.SetVolume(-0.5)
	volume, _ = engine.Volume()
	assert.Equal(t, float64(0), volume)
}

func TestEngine_LoadErrorEntersErrorState(t *testing.T) {
	var reported string
	engine, factory := newTestEngine(EngineHooks{
		OnError: func(msg string) { reported = msg },
	})

	engine.LoadTrack(audioTrack("a"))
	_, events := factory.last()
	events.OnLoadError(errors.New("boom"))

	assert.Equal(t, StateError, engine.State())
	assert.NotEmpty(t, engine.LastError())
	assert.Equal(t, "failed to load audio", reported)

	// A new track assignment retries out of the error state.
	engine.LoadTrack(audioTrack("b"))
	assert.Equal(t, StateLoading, engine.State())
	assert.Empty(t, engine.LastError())
}

func TestEngine_StaleCallbacksIgnored(t *testing.T) {
	engine, factory := newTestEngine(EngineHooks{})

	engine.LoadTrack(audioTrack("a"))
	oldUnit, oldEvents := factory.last()

	engine.LoadTrack(audioTrack("b"))
	assert.True(t, oldUnit.isClosed())

	// Late callbacks from the replaced unit must not disturb the new load.
	oldEvents.OnLoad(999)
	assert.Equal(t, StateLoading, engine.State())
	assert.Equal(t, float64(0), engine.Duration())

	oldEvents.OnLoadError(errors.New("late failure"))
	assert.Equal(t, StateLoading, engine.State())
	assert.Empty(t, engine.LastError())
}

func TestEngine_EndFiresTrackEndHook(t *testing.T) {
	ended := make(chan struct{}, 1)
	engine, factory := newTestEngine(EngineHooks{
		OnTrackEnd: func() { ended <- struct{}{} },
	})

	engine.LoadTrack(audioTrack("a"))
	_, events := factory.last()
	events.OnLoad(100)
	engine.Play()

	events.OnEnd()

	assert.Equal(t, StateEnded, engine.State())
	select {
	case <-ended:
	default:
		t.Fatal("expected OnTrackEnd hook to fire")
	}
}

func TestEngine_UnlockRecoversFromPlayError(t *testing.T) {
	engine, factory := newTestEngine(EngineHooks{})

	engine.LoadTrack(audioTrack("a"))
	unit, events := factory.last()
	events.OnLoad(100)
	engine.Play()

	events.OnPlayError(errors.New("output locked"))
	assert.Equal(t, StateError, engine.State())

	events.OnUnlock()
	assert.Equal(t, StatePlaying, engine.State())
	assert.True(t, unit.isPlaying())

	// The recovery path is one-shot.
	events.OnPlayError(errors.New("output locked"))
	engine.Stop()
	events.OnUnlock()
	assert.Equal(t, StateIdle, engine.State())
}

func TestEngine_StopReleasesUnit(t *testing.T) {
	engine, factory := newTestEngine(EngineHooks{})

	engine.LoadTrack(audioTrack("a"))
	unit, events := factory.last()
	events.OnLoad(100)
	engine.Play()

	engine.Stop()

	assert.Equal(t, StateIdle, engine.State())
	assert.Nil(t, engine.Track())
	assert.True(t, unit.isClosed())
	assert.Equal(t, float64(0), engine.Duration())
}

func TestEngine_TransportNoopsWithoutTrack(t *testing.T) {
	engine, _ := newTestEngine(EngineHooks{})

	engine.Play()
	engine.Pause()
	engine.Toggle()
	engine.Seek(30)

	assert.Equal(t, StateIdle, engine.State())
	assert.Equal(t, float64(0), engine.Progress())
}
