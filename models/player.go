package models

// RepeatMode controls what happens when the queue runs out or a track ends
type RepeatMode string

// Repeat mode constants
const (
	RepeatNone RepeatMode = "none"
	RepeatOne  RepeatMode = "one"
	RepeatAll  RepeatMode = "all"
)

// NextRepeatMode cycles none -> one -> all -> none
func NextRepeatMode(m RepeatMode) RepeatMode {
	switch m {
	case RepeatNone:
		return RepeatOne
	case RepeatOne:
		return RepeatAll
	default:
		return RepeatNone
	}
}

// PlayerState is a snapshot of the full player session, as served to the UI
type PlayerState struct {
	CurrentTrack *Track      `json:"current_track"`
	Queue        []QueueItem `json:"queue"`
	CurrentIndex int         `json:"current_index"`
	IsPlaying    bool        `json:"is_playing"`
	IsLoading    bool        `json:"is_loading"`
	Progress     float64     `json:"progress"` // seconds
	Duration     float64     `json:"duration"` // seconds
	Volume       float64     `json:"volume"`   // 0..1
	IsMuted      bool        `json:"is_muted"`
	Repeat       RepeatMode  `json:"repeat"`
	Shuffle      bool        `json:"shuffle"`
	Error        string      `json:"error,omitempty"`
}
