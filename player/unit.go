// Package player implements the playback engine and the queue/session
// state machine. Exactly one audio unit is live at any time; the engine
// tears the previous one down before creating the next.
package player

import (
	"starbizvoices/models"
)

// Source describes where an audio unit should read media bytes from.
// Data takes precedence over URL when present (offline playback).
type Source struct {
	URL  string
	Data []byte
}

// Local reports whether the source is backed by locally stored bytes
func (s Source) Local() bool {
	return s.Data != nil
}

// SourceResolver picks the best available source for a track
type SourceResolver interface {
	Resolve(track models.Track) Source
}

// UnitEvents are lifecycle callbacks fired by an audio unit. Units must
// deliver events asynchronously with respect to their construction.
type UnitEvents struct {
	// OnLoad fires once metadata is known; duration is in seconds.
	OnLoad func(duration float64)
	// OnEnd fires at the natural end of the track.
	OnEnd func()
	// OnLoadError fires when the source cannot be fetched or decoded.
	OnLoadError func(err error)
	// OnPlayError fires when playback fails after a successful load.
	OnPlayError func(err error)
	// OnUnlock fires when audio output becomes available after a
	// previously rejected play. Units without such a notion never fire it.
	OnUnlock func()
}

// AudioUnit is a single active decode/playback unit
type AudioUnit interface {
	Play()
	Pause()
	// Seek moves to an absolute position in seconds.
	Seek(seconds float64)
	// Position returns the current position in seconds.
	Position() float64
	// SetVolume sets the effective output volume in [0,1].
	SetVolume(v float64)
	Close()
}

// UnitFactory constructs a unit for a source and begins loading it
type UnitFactory func(src Source, events UnitEvents) AudioUnit
