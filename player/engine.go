package player

import (
	"log"
	"sync"
	"time"

	"starbizvoices/models"
)

// State represents the playback engine's transport state
type State int

// Engine states
const (
	StateIdle State = iota
	StateLoading
	StateReady
	StatePlaying
	StatePaused
	StateEnded
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateEnded:
		return "ended"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

const (
	// SeekStep is the relative seek distance in seconds.
	SeekStep = 10.0
	// DefaultVolume matches the player's initial volume setting.
	DefaultVolume = 0.8

	progressInterval = time.Second
)

// EngineHooks receive engine lifecycle notifications. All hooks are
// invoked without the engine lock held and may call back into the engine.
type EngineHooks struct {
	// OnTrackEnd fires at the natural end of a track. The owner decides
	// whether to replay (repeat one) or advance the queue.
	OnTrackEnd func()
	// OnProgress fires on every progress poll tick.
	OnProgress func(trackID string, progress, duration float64)
	// OnChange fires after any observable state change.
	OnChange func()
	// OnError fires with a user-facing message when a load or playback
	// error occurs.
	OnError func(message string)
}

// Engine owns exactly one audio unit at a time and translates transport
// calls into unit operations. Late callbacks from a torn-down unit are
// discarded via a load generation check.
type Engine struct {
	mu       sync.Mutex
	factory  UnitFactory
	resolver SourceResolver
	hooks    EngineHooks

	unit  AudioUnit
	gen   uint64
	state State
	track *models.Track

	progress float64
	duration float64
	volume   float64
	muted    bool
	lastErr  string

	wasPlaying      bool
	recoverOnUnlock bool

	tickStop chan struct{}
}

// NewEngine creates a playback engine. The resolver may be nil, in which
// case tracks always play from their remote URL.
func NewEngine(factory UnitFactory, resolver SourceResolver, hooks EngineHooks) *Engine {
	return &Engine{
		factory:  factory,
		resolver: resolver,
		hooks:    hooks,
		state:    StateIdle,
		volume:   DefaultVolume,
	}
}

// LoadTrack tears down any existing unit and begins loading the track.
// If the engine was playing, playback resumes automatically once the new
// track is ready.
func (e *Engine) LoadTrack(track models.Track) {
	e.mu.Lock()
	e.gen++
	gen := e.gen
	old := e.unit
	e.unit = nil
	// A track that just ended counts as playing so queue advancement
	// carries playback into the next track.
	e.wasPlaying = e.state == StatePlaying || e.state == StateEnded
	e.state = StateLoading
	t := track
	e.track = &t
	e.progress = 0
	e.duration = track.Duration
	e.lastErr = ""
	e.recoverOnUnlock = false
	e.mu.Unlock()

	e.stopTicker()
	if old != nil {
		old.Close()
	}

	src := Source{URL: track.FileURL}
	if e.resolver != nil {
		src = e.resolver.Resolve(track)
	}

	unit := e.factory(src, UnitEvents{
		OnLoad:      func(d float64) { e.handleLoad(gen, d) },
		OnEnd:       func() { e.handleEnd(gen) },
		OnLoadError: func(err error) { e.handleLoadError(gen, err) },
		OnPlayError: func(err error) { e.handlePlayError(gen, err) },
		OnUnlock:    func() { e.handleUnlock(gen) },
	})

	e.mu.Lock()
	if e.gen != gen {
		// A newer load superseded this one before the factory returned.
		e.mu.Unlock()
		unit.Close()
		return
	}
	e.unit = unit
	effective := e.effectiveVolume()
	e.mu.Unlock()

	unit.SetVolume(effective)
	e.notifyChange()
}

// Stop tears down the loaded unit and returns the engine to idle
func (e *Engine) Stop() {
	e.mu.Lock()
	e.gen++
	old := e.unit
	e.unit = nil
	e.state = StateIdle
	e.track = nil
	e.progress = 0
	e.duration = 0
	e.wasPlaying = false
	e.mu.Unlock()

	e.stopTicker()
	if old != nil {
		old.Close()
	}
	e.notifyChange()
}

// Play starts or resumes playback. No-op when no track is loaded.
func (e *Engine) Play() {
	e.mu.Lock()
	unit := e.unit
	if unit == nil || (e.state != StateReady && e.state != StatePaused && e.state != StatePlaying && e.state != StateEnded) {
		e.mu.Unlock()
		return
	}
	e.state = StatePlaying
	e.mu.Unlock()

	unit.Play()
	e.startTicker()
	e.notifyChange()
}

// Pause pauses playback. No-op when not playing.
func (e *Engine) Pause() {
	e.mu.Lock()
	unit := e.unit
	if unit == nil || e.state != StatePlaying {
		e.mu.Unlock()
		return
	}
	e.state = StatePaused
	e.mu.Unlock()

	unit.Pause()
	e.stopTicker()
	e.notifyChange()
}

// Toggle switches between playing and paused
func (e *Engine) Toggle() {
	e.mu.Lock()
	playing := e.state == StatePlaying
	e.mu.Unlock()

	if playing {
		e.Pause()
	} else {
		e.Play()
	}
}

// Seek moves to an absolute position, clamped to [0, duration]. The
// reported progress updates immediately rather than on the next poll.
func (e *Engine) Seek(seconds float64) {
	e.mu.Lock()
	unit := e.unit
	if unit == nil {
		e.mu.Unlock()
		return
	}
	target := clamp(seconds, 0, e.duration)
	e.progress = target
	e.mu.Unlock()

	unit.Seek(target)
	e.notifyChange()
}

// SeekForward seeks ahead by the fixed step
func (e *Engine) SeekForward() {
	e.mu.Lock()
	p := e.progress
	e.mu.Unlock()
	e.Seek(p + SeekStep)
}

// SeekBackward seeks back by the fixed step
func (e *Engine) SeekBackward() {
	e.mu.Lock()
	p := e.progress
	e.mu.Unlock()
	e.Seek(p - SeekStep)
}

// SetVolume sets the stored volume, clamped to [0,1]. The effective
// output stays zero while muted.
func (e *Engine) SetVolume(v float64) {
	e.mu.Lock()
	e.volume = clamp(v, 0, 1)
	unit := e.unit
	effective := e.effectiveVolume()
	e.mu.Unlock()

	if unit != nil {
		unit.SetVolume(effective)
	}
	e.notifyChange()
}

// ToggleMute flips the muted flag without touching the stored volume
func (e *Engine) ToggleMute() {
	e.mu.Lock()
	e.muted = !e.muted
	unit := e.unit
	effective := e.effectiveVolume()
	e.mu.Unlock()

	if unit != nil {
		unit.SetVolume(effective)
	}
	e.notifyChange()
}

// Replay restarts the current track from the beginning and plays it
func (e *Engine) Replay() {
	e.mu.Lock()
	unit := e.unit
	if unit == nil {
		e.mu.Unlock()
		return
	}
	e.progress = 0
	e.state = StatePlaying
	e.mu.Unlock()

	unit.Seek(0)
	unit.Play()
	e.startTicker()
	e.notifyChange()
}

// State returns the current transport state
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Track returns a copy of the loaded track, or nil
func (e *Engine) Track() *models.Track {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.track == nil {
		return nil
	}
	t := *e.track
	return &t
}

// Progress returns the current position in seconds
func (e *Engine) Progress() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.progress
}

// Duration returns the track duration in seconds, 0 before metadata loads
func (e *Engine) Duration() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.duration
}

// Volume returns the stored volume and muted flag
func (e *Engine) Volume() (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.volume, e.muted
}

// LastError returns the last user-facing error message, empty when none
func (e *Engine) LastError() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// ClearError clears the visible error message
func (e *Engine) ClearError() {
	e.mu.Lock()
	e.lastErr = ""
	e.mu.Unlock()
	e.notifyChange()
}

func (e *Engine) effectiveVolume() float64 {
	if e.muted {
		return 0
	}
	return e.volume
}

func (e *Engine) handleLoad(gen uint64, duration float64) {
	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		return
	}
	e.duration = duration
	e.state = StateReady
	if e.track != nil {
		e.track.Duration = duration
	}
	autoplay := e.wasPlaying
	e.wasPlaying = false
	e.mu.Unlock()

	e.notifyChange()
	if autoplay {
		e.Play()
	}
}

func (e *Engine) handleEnd(gen uint64) {
	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		return
	}
	e.state = StateEnded
	e.mu.Unlock()

	e.stopTicker()
	e.notifyChange()
	if e.hooks.OnTrackEnd != nil {
		e.hooks.OnTrackEnd()
	}
}

func (e *Engine) handleLoadError(gen uint64, err error) {
	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		return
	}
	log.Printf("Audio load error: %v", err)
	e.state = StateError
	e.lastErr = "failed to load audio"
	e.wasPlaying = false
	e.mu.Unlock()

	e.stopTicker()
	e.notifyChange()
	if e.hooks.OnError != nil {
		e.hooks.OnError("failed to load audio")
	}
}

func (e *Engine) handlePlayError(gen uint64, err error) {
	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		return
	}
	log.Printf("Audio play error: %v", err)
	e.state = StateError
	e.lastErr = "failed to play audio"
	// One-shot recovery once the output unlocks.
	e.recoverOnUnlock = true
	e.mu.Unlock()

	e.stopTicker()
	e.notifyChange()
	if e.hooks.OnError != nil {
		e.hooks.OnError("failed to play audio")
	}
}

func (e *Engine) handleUnlock(gen uint64) {
	e.mu.Lock()
	if gen != e.gen || !e.recoverOnUnlock {
		e.mu.Unlock()
		return
	}
	e.recoverOnUnlock = false
	unit := e.unit
	if unit == nil {
		e.mu.Unlock()
		return
	}
	e.state = StatePlaying
	e.lastErr = ""
	e.mu.Unlock()

	unit.Play()
	e.startTicker()
	e.notifyChange()
}

func (e *Engine) startTicker() {
	e.mu.Lock()
	if e.tickStop != nil {
		e.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	e.tickStop = stop
	e.mu.Unlock()

	go func() {
		ticker := time.NewTicker(progressInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				e.pollProgress()
			}
		}
	}()
}

func (e *Engine) stopTicker() {
	e.mu.Lock()
	stop := e.tickStop
	e.tickStop = nil
	e.mu.Unlock()

	if stop != nil {
		close(stop)
	}
}

func (e *Engine) pollProgress() {
	e.mu.Lock()
	unit := e.unit
	if unit == nil || e.state != StatePlaying {
		e.mu.Unlock()
		return
	}
	trackID := ""
	if e.track != nil {
		trackID = e.track.ID
	}
	duration := e.duration
	e.mu.Unlock()

	pos := unit.Position()

	e.mu.Lock()
	e.progress = clamp(pos, 0, duration)
	e.mu.Unlock()

	if e.hooks.OnProgress != nil && trackID != "" {
		e.hooks.OnProgress(trackID, pos, duration)
	}
	e.notifyChange()
}

func (e *Engine) notifyChange() {
	if e.hooks.OnChange != nil {
		e.hooks.OnChange()
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if hi > lo && v > hi {
		return hi
	}
	return v
}
