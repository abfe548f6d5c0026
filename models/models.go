// Package models defines the data structures used throughout the application.
package models

import (
	"time"
)

// ContentKind represents the type of a content item
type ContentKind string

// Content kind constants
const (
	KindAudio   ContentKind = "audio"
	KindPodcast ContentKind = "podcast"
	KindPDF     ContentKind = "pdf"
)

// Playable reports whether content of this kind can be loaded into the player.
// PDFs are viewable only and must never be enqueued.
func (k ContentKind) Playable() bool {
	return k == KindAudio || k == KindPodcast
}

// AccessTier represents the subscription tier required to access content
type AccessTier string

// Access tier constants
const (
	TierFree    AccessTier = "free"
	TierPremium AccessTier = "premium"
)

// Track represents a content item from the remote catalog
type Track struct {
	ID           string      `json:"id"`
	Title        string      `json:"title"`
	Author       string      `json:"author,omitempty"`
	FileURL      string      `json:"file_url"`
	Duration     float64     `json:"duration,omitempty"` // seconds, 0 until known
	ThumbnailURL string      `json:"thumbnail_url,omitempty"`
	Kind         ContentKind `json:"kind"`
	Tier         AccessTier  `json:"tier"`
	Category     string      `json:"category,omitempty"`
}

// QueueItem wraps a track with a locally generated id and insertion time
type QueueItem struct {
	ID      string    `json:"id"`
	Track   Track     `json:"track"`
	AddedAt time.Time `json:"added_at"`
}

// DownloadRecord is a locally persisted copy of a track's media bytes
type DownloadRecord struct {
	TrackID      string    `json:"track_id"`
	Track        Track     `json:"track"`
	Data         []byte    `json:"-"`
	Size         int64     `json:"size"`
	DownloadedAt time.Time `json:"downloaded_at"`
}

// PlaybackProgress stores the last playback position for a track
type PlaybackProgress struct {
	TrackID   string    `json:"track_id"`
	Progress  float64   `json:"progress"` // seconds
	Duration  float64   `json:"duration"` // seconds
	UpdatedAt time.Time `json:"updated_at"`
}

// PendingActionType represents a user mutation deferred while offline
type PendingActionType string

// Pending action constants
const (
	ActionFavorite   PendingActionType = "favorite"
	ActionUnfavorite PendingActionType = "unfavorite"
	ActionHistory    PendingActionType = "history"
)

// PendingAction is a queued user mutation awaiting connectivity
type PendingAction struct {
	ID        string            `json:"id"`
	Action    PendingActionType `json:"action"`
	TrackID   string            `json:"track_id"`
	CreatedAt time.Time         `json:"created_at"`
}
