package player

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
)

const speakerBufferSize = 250 * time.Millisecond

var (
	speakerMu   sync.Mutex
	speakerRate beep.SampleRate
	speakerInit bool
)

// initSpeaker initializes the shared speaker once per sample rate change
func initSpeaker(rate beep.SampleRate) error {
	speakerMu.Lock()
	defer speakerMu.Unlock()

	if speakerInit && rate == speakerRate {
		return nil
	}
	if err := speaker.Init(rate, rate.N(speakerBufferSize)); err != nil {
		return fmt.Errorf("failed to initialize speaker: %w", err)
	}
	speakerRate = rate
	speakerInit = true
	return nil
}

// readSeekCloser keeps the Seeker interface that io.NopCloser would hide,
// so the mp3 decoder can produce a seekable streamer.
type readSeekCloser struct {
	*bytes.Reader
}

func (readSeekCloser) Close() error { return nil }

// beepUnit decodes an mp3 source and plays it through the shared speaker
type beepUnit struct {
	mu       sync.Mutex
	events   UnitEvents
	streamer beep.StreamSeekCloser
	format   beep.Format
	ctrl     *beep.Ctrl
	volume   *effects.Volume
	level    float64
	closed   bool
	ended    bool
}

// NewBeepUnitFactory returns a UnitFactory backed by the beep speaker.
// Remote sources are fetched with the given client; pass nil for a
// default client with a generous timeout.
func NewBeepUnitFactory(client *http.Client) UnitFactory {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	return func(src Source, events UnitEvents) AudioUnit {
		u := &beepUnit{events: events, level: 1}
		go u.load(client, src)
		return u
	}
}

func (u *beepUnit) load(client *http.Client, src Source) {
	data := src.Data
	if data == nil {
		resp, err := client.Get(src.URL)
		if err != nil {
			u.fireLoadError(fmt.Errorf("failed to fetch audio: %w", err))
			return
		}
		defer func() {
			_ = resp.Body.Close()
		}()
		if resp.StatusCode != http.StatusOK {
			u.fireLoadError(fmt.Errorf("audio fetch returned status %d", resp.StatusCode))
			return
		}
		data, err = io.ReadAll(resp.Body)
		if err != nil {
			u.fireLoadError(fmt.Errorf("failed to read audio body: %w", err))
			return
		}
	}

	streamer, format, err := mp3.Decode(readSeekCloser{bytes.NewReader(data)})
	if err != nil {
		u.fireLoadError(fmt.Errorf("failed to decode audio: %w", err))
		return
	}

	if err := initSpeaker(format.SampleRate); err != nil {
		_ = streamer.Close()
		u.fireLoadError(err)
		return
	}

	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		_ = streamer.Close()
		return
	}
	u.streamer = streamer
	u.format = format
	u.ctrl = &beep.Ctrl{
		Streamer: beep.Seq(streamer, beep.Callback(u.fireEnd)),
		Paused:   true,
	}
	u.volume = &effects.Volume{Streamer: u.ctrl, Base: 2}
	u.applyLevelLocked()
	duration := format.SampleRate.D(streamer.Len()).Seconds()
	u.mu.Unlock()

	// Queue the paused stream; Play only flips the pause flag.
	speaker.Play(u.volume)

	if u.events.OnLoad != nil {
		u.events.OnLoad(duration)
	}
}

func (u *beepUnit) Play() {
	u.mu.Lock()
	ctrl := u.ctrl
	u.mu.Unlock()
	if ctrl == nil {
		return
	}

	speaker.Lock()
	ctrl.Paused = false
	speaker.Unlock()
}

func (u *beepUnit) Pause() {
	u.mu.Lock()
	ctrl := u.ctrl
	u.mu.Unlock()
	if ctrl == nil {
		return
	}

	speaker.Lock()
	ctrl.Paused = true
	speaker.Unlock()
}

func (u *beepUnit) Seek(seconds float64) {
	u.mu.Lock()
	streamer := u.streamer
	format := u.format
	u.mu.Unlock()
	if streamer == nil {
		return
	}

	target := format.SampleRate.N(time.Duration(seconds * float64(time.Second)))
	if target < 0 {
		target = 0
	}
	if target >= streamer.Len() {
		target = streamer.Len() - 1
	}

	speaker.Lock()
	err := streamer.Seek(target)
	speaker.Unlock()
	if err != nil && u.events.OnPlayError != nil {
		u.events.OnPlayError(fmt.Errorf("failed to seek: %w", err))
	}
}

func (u *beepUnit) Position() float64 {
	u.mu.Lock()
	streamer := u.streamer
	format := u.format
	u.mu.Unlock()
	if streamer == nil {
		return 0
	}

	speaker.Lock()
	pos := streamer.Position()
	speaker.Unlock()
	return format.SampleRate.D(pos).Seconds()
}

func (u *beepUnit) SetVolume(v float64) {
	u.mu.Lock()
	u.level = v
	if u.volume == nil {
		u.mu.Unlock()
		return
	}
	u.mu.Unlock()

	speaker.Lock()
	u.mu.Lock()
	u.applyLevelLocked()
	u.mu.Unlock()
	speaker.Unlock()
}

func (u *beepUnit) Close() {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return
	}
	u.closed = true
	streamer := u.streamer
	u.streamer = nil
	u.ctrl = nil
	u.volume = nil
	u.mu.Unlock()

	if streamer != nil {
		// One unit is live at a time, so clearing the speaker only drops
		// this unit's stream.
		speaker.Clear()
		_ = streamer.Close()
	}
}

// applyLevelLocked maps the linear [0,1] level onto the logarithmic
// volume effect. Callers must hold u.mu (and speaker.Lock when the
// stream is live).
func (u *beepUnit) applyLevelLocked() {
	if u.volume == nil {
		return
	}
	if u.level <= 0 {
		u.volume.Silent = true
		return
	}
	u.volume.Silent = false
	u.volume.Volume = math.Log2(u.level)
}

func (u *beepUnit) fireEnd() {
	u.mu.Lock()
	if u.closed || u.ended {
		u.mu.Unlock()
		return
	}
	u.ended = true
	u.mu.Unlock()

	// The callback runs on the speaker goroutine; hand off so the
	// handler can take the speaker lock.
	if u.events.OnEnd != nil {
		go u.events.OnEnd()
	}
}

func (u *beepUnit) fireLoadError(err error) {
	u.mu.Lock()
	closed := u.closed
	u.mu.Unlock()
	if closed {
		return
	}
	if u.events.OnLoadError != nil {
		u.events.OnLoadError(err)
	}
}
