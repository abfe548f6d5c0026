// Package jobs provides background job processing functionality.
package jobs

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"starbizvoices/cache"
	"starbizvoices/models"
	"starbizvoices/repository"
)

// DownloadJob fetches track audio for offline use. Completed downloads
// are persisted through the download repository and mirrored into the
// audio cache tier so playback hits local bytes either way.
type DownloadJob struct {
	downloadRepo *repository.DownloadRepository
	controller   *cache.Controller
	client       *http.Client

	mu     sync.RWMutex
	active map[string]*downloadState
}

type downloadState struct {
	received int64
	total    int64
}

// NewDownloadJob creates a new download job. controller may be nil when
// no audio cache is configured; client may be nil for a default.
func NewDownloadJob(downloadRepo *repository.DownloadRepository, controller *cache.Controller, client *http.Client) *DownloadJob {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Minute}
	}
	return &DownloadJob{
		downloadRepo: downloadRepo,
		controller:   controller,
		client:       client,
		active:       make(map[string]*downloadState),
	}
}

// Download fetches a track's audio and stores it. It reports success as
// a boolean so callers can update UI state without unwinding; failures
// are logged here.
func (j *DownloadJob) Download(track *models.Track) bool {
	if track == nil || !track.Kind.Playable() {
		log.Printf("Refusing to download non-playable content")
		return false
	}

	j.mu.Lock()
	if _, exists := j.active[track.ID]; exists {
		j.mu.Unlock()
		log.Printf("Download already in progress for track %s", track.ID)
		return false
	}
	state := &downloadState{}
	j.active[track.ID] = state
	j.mu.Unlock()

	defer func() {
		j.mu.Lock()
		delete(j.active, track.ID)
		j.mu.Unlock()
	}()

	data, err := j.fetch(track.FileURL, state)
	if err != nil {
		log.Printf("Failed to download track %s: %v", track.ID, err)
		return false
	}

	if err := j.downloadRepo.Save(*track, data); err != nil {
		log.Printf("Failed to persist download for track %s: %v", track.ID, err)
		return false
	}

	if j.controller != nil {
		j.controller.CacheAudio(track.FileURL)
	}

	log.Printf("Downloaded track %s (%d bytes)", track.ID, len(data))
	return true
}

// Remove deletes a stored download and evicts its cached audio. A track
// that was never downloaded counts as already removed.
func (j *DownloadJob) Remove(trackID string) bool {
	exists, err := j.downloadRepo.Exists(trackID)
	if err != nil {
		log.Printf("Failed to look up download %s for removal: %v", trackID, err)
		return false
	}
	if !exists {
		return true
	}

	record, err := j.downloadRepo.Get(trackID)
	if err != nil {
		log.Printf("Failed to read download %s for removal: %v", trackID, err)
		return false
	}

	if err := j.downloadRepo.Delete(trackID); err != nil {
		log.Printf("Failed to delete download %s: %v", trackID, err)
		return false
	}

	if j.controller != nil {
		j.controller.RemoveCachedAudio(record.Track.FileURL)
	}
	return true
}

// IsDownloading reports whether a download is in flight for the track
func (j *DownloadJob) IsDownloading(trackID string) bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	_, ok := j.active[trackID]
	return ok
}

// Progress returns the percent complete for an in-flight download, or
// -1 when none is active. Downloads without a known length report 0
// until they finish.
func (j *DownloadJob) Progress(trackID string) float64 {
	j.mu.RLock()
	defer j.mu.RUnlock()
	state, ok := j.active[trackID]
	if !ok {
		return -1
	}
	if state.total <= 0 {
		return 0
	}
	return float64(state.received) / float64(state.total) * 100
}

func (j *DownloadJob) fetch(url string, state *downloadState) ([]byte, error) {
	resp, err := j.client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch audio: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("Failed to close response body: %v", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("audio fetch returned status %d", resp.StatusCode)
	}

	j.mu.Lock()
	state.total = resp.ContentLength
	j.mu.Unlock()

	var buf bytes.Buffer
	chunk := make([]byte, 64*1024)
	for {
		n, err := resp.Body.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			j.mu.Lock()
			state.received += int64(n)
			j.mu.Unlock()
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read audio body: %w", err)
		}
	}

	return buf.Bytes(), nil
}
