package player

import (
	"starbizvoices/models"
)

// MediaMetadata mirrors the lock-screen media metadata surface: what is
// playing, by whom, with what artwork, and the current transport state.
type MediaMetadata struct {
	Title      string  `json:"title"`
	Artist     string  `json:"artist"`
	Album      string  `json:"album,omitempty"`
	ArtworkURL string  `json:"artwork_url,omitempty"`
	IsPlaying  bool    `json:"is_playing"`
	Progress   float64 `json:"progress"`
	Duration   float64 `json:"duration"`
}

// MetadataFromState derives lock-screen metadata from a session snapshot.
// Returns false when no track is loaded.
func MetadataFromState(state models.PlayerState) (MediaMetadata, bool) {
	if state.CurrentTrack == nil {
		return MediaMetadata{}, false
	}
	artist := state.CurrentTrack.Author
	if artist == "" {
		artist = "Unknown"
	}
	return MediaMetadata{
		Title:      state.CurrentTrack.Title,
		Artist:     artist,
		Album:      state.CurrentTrack.Category,
		ArtworkURL: state.CurrentTrack.ThumbnailURL,
		IsPlaying:  state.IsPlaying,
		Progress:   state.Progress,
		Duration:   state.Duration,
	}, true
}
