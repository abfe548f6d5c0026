package player

import (
	"log"
	"math/rand"
	"sync"
	"time"

	"starbizvoices/models"

	"github.com/google/uuid"
)

// SessionOptions configure a player session
type SessionOptions struct {
	// Factory builds audio units; required.
	Factory UnitFactory
	// Resolver picks local bytes over remote URLs; may be nil.
	Resolver SourceResolver
	// OnProgress receives progress poll ticks (used to persist playback
	// position); may be nil.
	OnProgress func(trackID string, progress, duration float64)
	// Notifier receives a full state snapshot after every observable
	// change; may be nil.
	Notifier func(state models.PlayerState)
}

// Session is the queue and session state machine. It owns the playback
// engine and serializes queue/index mutations behind its own lock; engine
// calls are made with the session lock released so engine change
// notifications can read session state back.
//
// Shuffle keeps the queue order untouched and maintains a separate index
// permutation, regenerated whenever shuffle turns on or the queue is
// replaced. next/prev walk the permutation while the flag is set.
type Session struct {
	mu      sync.Mutex
	queue   []models.QueueItem
	index   int
	repeat  models.RepeatMode
	shuffle bool
	order   []int
	rng     *rand.Rand

	engine *Engine
	notify func(models.PlayerState)
}

// NewSession creates a session with its own playback engine
func NewSession(opts SessionOptions) *Session {
	s := &Session{
		queue:  []models.QueueItem{},
		index:  -1,
		repeat: models.RepeatNone,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		notify: opts.Notifier,
	}
	s.engine = NewEngine(opts.Factory, opts.Resolver, EngineHooks{
		OnTrackEnd: s.handleTrackEnd,
		OnProgress: opts.OnProgress,
		OnChange:   s.publish,
	})
	return s
}

// Play starts playback of a single track, replacing the queue. With a nil
// track it resumes the loaded one.
func (s *Session) Play(track *models.Track) {
	if track == nil {
		s.engine.Play()
		return
	}
	if !track.Kind.Playable() {
		log.Printf("Refusing to play non-playable content %s (%s)", track.ID, track.Kind)
		return
	}

	s.mu.Lock()
	s.queue = []models.QueueItem{newQueueItem(*track)}
	s.index = 0
	s.regenOrderLocked()
	s.mu.Unlock()

	s.engine.LoadTrack(*track)
	s.publish()
}

// PlayPlaylist replaces the queue with the given tracks and starts at
// startIndex. Non-playable tracks are skipped.
func (s *Session) PlayPlaylist(tracks []models.Track, startIndex int) {
	playable := make([]models.Track, 0, len(tracks))
	for _, t := range tracks {
		if t.Kind.Playable() {
			playable = append(playable, t)
		} else {
			log.Printf("Skipping non-playable content %s (%s)", t.ID, t.Kind)
		}
	}
	if len(playable) == 0 {
		return
	}
	if startIndex < 0 || startIndex >= len(playable) {
		startIndex = 0
	}

	queue := make([]models.QueueItem, len(playable))
	for i, t := range playable {
		queue[i] = newQueueItem(t)
	}

	s.mu.Lock()
	s.queue = queue
	s.index = startIndex
	s.regenOrderLocked()
	track := s.queue[s.index].Track
	s.mu.Unlock()

	s.engine.LoadTrack(track)
	s.publish()
}

// Pause pauses playback
func (s *Session) Pause() {
	s.engine.Pause()
}

// Toggle switches between playing and paused
func (s *Session) Toggle() {
	s.engine.Toggle()
}

// Seek moves to an absolute position in seconds
func (s *Session) Seek(seconds float64) {
	s.engine.Seek(seconds)
}

// SeekForward seeks ahead by the fixed step
func (s *Session) SeekForward() {
	s.engine.SeekForward()
}

// SeekBackward seeks back by the fixed step
func (s *Session) SeekBackward() {
	s.engine.SeekBackward()
}

// SetVolume sets the stored volume in [0,1]
func (s *Session) SetVolume(v float64) {
	s.engine.SetVolume(v)
}

// ToggleMute flips the muted flag, leaving the stored volume untouched
func (s *Session) ToggleMute() {
	s.engine.ToggleMute()
}

// Next advances to the next track. At the end of the queue it wraps when
// repeat is "all", otherwise playback stops on the last track.
func (s *Session) Next() {
	s.mu.Lock()
	if len(s.queue) == 0 {
		s.mu.Unlock()
		return
	}
	seq := s.traversalLocked()
	pos := posOf(seq, s.index) + 1
	if pos >= len(seq) {
		if s.repeat != models.RepeatAll {
			s.mu.Unlock()
			s.engine.Pause()
			return
		}
		pos = 0
	}
	s.index = seq[pos]
	track := s.queue[s.index].Track
	s.mu.Unlock()

	s.engine.LoadTrack(track)
	s.publish()
}

// Prev restarts the current track when more than three seconds in,
// otherwise moves to the previous track (wrapping when repeat is "all").
func (s *Session) Prev() {
	s.mu.Lock()
	if len(s.queue) == 0 {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if s.engine.Progress() > 3 {
		s.engine.Seek(0)
		return
	}

	s.mu.Lock()
	if len(s.queue) == 0 {
		s.mu.Unlock()
		return
	}
	seq := s.traversalLocked()
	pos := posOf(seq, s.index) - 1
	if pos < 0 {
		if s.repeat == models.RepeatAll {
			pos = len(seq) - 1
		} else {
			pos = 0
		}
	}
	s.index = seq[pos]
	track := s.queue[s.index].Track
	s.mu.Unlock()

	s.engine.LoadTrack(track)
	s.publish()
}

// AddToQueue appends a track to the queue
func (s *Session) AddToQueue(track models.Track) {
	if !track.Kind.Playable() {
		log.Printf("Refusing to enqueue non-playable content %s (%s)", track.ID, track.Kind)
		return
	}

	s.mu.Lock()
	s.queue = append(s.queue, newQueueItem(track))
	if s.shuffle {
		// Keep the traversal walked so far stable; the new track goes last.
		s.order = append(s.order, len(s.queue)-1)
	}
	s.mu.Unlock()

	s.publish()
}

// RemoveFromQueue removes the queue item with the given id. Removing the
// currently playing item stops playback and clears the current track.
func (s *Session) RemoveFromQueue(itemID string) {
	s.mu.Lock()
	removed := -1
	for i, item := range s.queue {
		if item.ID == itemID {
			removed = i
			break
		}
	}
	if removed == -1 {
		s.mu.Unlock()
		return
	}

	wasCurrent := removed == s.index
	s.queue = append(s.queue[:removed], s.queue[removed+1:]...)

	if wasCurrent {
		s.index = -1
	} else if removed < s.index {
		s.index--
	}

	if s.shuffle {
		order := s.order[:0]
		for _, idx := range s.order {
			if idx == removed {
				continue
			}
			if idx > removed {
				idx--
			}
			order = append(order, idx)
		}
		s.order = order
	}
	s.mu.Unlock()

	if wasCurrent {
		s.engine.Stop()
	}
	s.publish()
}

// ClearQueue empties the queue and releases the loaded audio unit
func (s *Session) ClearQueue() {
	s.mu.Lock()
	s.queue = []models.QueueItem{}
	s.index = -1
	s.order = nil
	s.mu.Unlock()

	s.engine.Stop()
	s.publish()
}

// ToggleRepeat cycles none -> one -> all -> none
func (s *Session) ToggleRepeat() {
	s.mu.Lock()
	s.repeat = models.NextRepeatMode(s.repeat)
	s.mu.Unlock()

	s.publish()
}

// ToggleShuffle flips the shuffle flag, regenerating the traversal
// permutation when it turns on
func (s *Session) ToggleShuffle() {
	s.mu.Lock()
	s.shuffle = !s.shuffle
	s.regenOrderLocked()
	s.mu.Unlock()

	s.publish()
}

// ClearError clears the visible error field
func (s *Session) ClearError() {
	s.engine.ClearError()
}

// State returns a full snapshot of the session
func (s *Session) State() models.PlayerState {
	s.mu.Lock()
	queue := make([]models.QueueItem, len(s.queue))
	copy(queue, s.queue)
	index := s.index
	repeat := s.repeat
	shuffle := s.shuffle
	s.mu.Unlock()

	engineState := s.engine.State()
	volume, muted := s.engine.Volume()

	return models.PlayerState{
		CurrentTrack: s.engine.Track(),
		Queue:        queue,
		CurrentIndex: index,
		IsPlaying:    engineState == StatePlaying,
		IsLoading:    engineState == StateLoading,
		Progress:     s.engine.Progress(),
		Duration:     s.engine.Duration(),
		Volume:       volume,
		IsMuted:      muted,
		Repeat:       repeat,
		Shuffle:      shuffle,
		Error:        s.engine.LastError(),
	}
}

func (s *Session) handleTrackEnd() {
	s.mu.Lock()
	repeat := s.repeat
	s.mu.Unlock()

	if repeat == models.RepeatOne {
		s.engine.Replay()
		return
	}
	s.Next()
}

func (s *Session) publish() {
	if s.notify != nil {
		s.notify(s.State())
	}
}

// traversalLocked returns the index order next/prev walk. Callers must
// hold s.mu.
func (s *Session) traversalLocked() []int {
	if s.shuffle && len(s.order) == len(s.queue) {
		return s.order
	}
	seq := make([]int, len(s.queue))
	for i := range seq {
		seq[i] = i
	}
	return seq
}

// regenOrderLocked rebuilds the shuffle permutation. Callers must hold s.mu.
func (s *Session) regenOrderLocked() {
	if !s.shuffle {
		s.order = nil
		return
	}
	s.order = s.rng.Perm(len(s.queue))
}

func posOf(seq []int, index int) int {
	for i, v := range seq {
		if v == index {
			return i
		}
	}
	return -1
}

func newQueueItem(track models.Track) models.QueueItem {
	return models.QueueItem{
		ID:      uuid.NewString(),
		Track:   track,
		AddedAt: time.Now(),
	}
}
