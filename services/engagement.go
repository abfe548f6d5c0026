package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"starbizvoices/models"
	"starbizvoices/repository"
)

// OnlineCheck reports whether the network is currently reachable
type OnlineCheck func() bool

// EngagementService sends favorite and listening-history mutations to
// the application origin. While offline, or when a send fails, the
// mutation is queued and replayed by the next sync pass instead of
// being lost.
type EngagementService struct {
	baseURL string
	apiKey  string
	client  *http.Client
	pending *repository.PendingActionRepository
	online  OnlineCheck
}

// NewEngagementService creates a new engagement service instance.
// online may be nil, in which case every send is attempted.
func NewEngagementService(baseURL, apiKey string, pending *repository.PendingActionRepository, online OnlineCheck) *EngagementService {
	return &EngagementService{
		baseURL: baseURL,
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
		pending: pending,
		online:  online,
	}
}

// AddFavorite marks a track as favorited
func (e *EngagementService) AddFavorite(trackID string) error {
	return e.perform(models.ActionFavorite, trackID)
}

// RemoveFavorite removes a track from favorites
func (e *EngagementService) RemoveFavorite(trackID string) error {
	return e.perform(models.ActionUnfavorite, trackID)
}

// RecordHistory records that a track was listened to
func (e *EngagementService) RecordHistory(trackID string) error {
	return e.perform(models.ActionHistory, trackID)
}

// perform sends the action immediately when online and defers it to the
// offline queue otherwise. Deferral is not an error from the caller's
// point of view.
func (e *EngagementService) perform(action models.PendingActionType, trackID string) error {
	if e.online != nil && !e.online() {
		return e.queueAction(action, trackID)
	}
	if err := e.send(action, trackID); err != nil {
		log.Printf("Engagement send failed, queuing %s for %s: %v", action, trackID, err)
		return e.queueAction(action, trackID)
	}
	return nil
}

func (e *EngagementService) queueAction(action models.PendingActionType, trackID string) error {
	if e.pending == nil {
		return fmt.Errorf("offline and no pending action queue configured")
	}
	if err := e.pending.Enqueue(action, trackID); err != nil {
		return fmt.Errorf("failed to defer %s action: %w", action, err)
	}
	return nil
}

// SyncOffline replays every queued action in creation order, then clears
// the queue. Individual failures are logged and skipped so one bad entry
// cannot wedge the queue forever.
func (e *EngagementService) SyncOffline() (int, error) {
	if e.pending == nil {
		return 0, nil
	}

	actions, err := e.pending.GetAll()
	if err != nil {
		return 0, fmt.Errorf("failed to read pending actions: %w", err)
	}
	if len(actions) == 0 {
		return 0, nil
	}

	synced := 0
	for _, action := range actions {
		if err := e.send(action.Action, action.TrackID); err != nil {
			log.Printf("Failed to sync %s for track %s: %v", action.Action, action.TrackID, err)
			continue
		}
		synced++
	}

	if err := e.pending.Clear(); err != nil {
		return synced, fmt.Errorf("failed to clear synced actions: %w", err)
	}

	log.Printf("Offline sync complete: %d/%d actions replayed", synced, len(actions))
	return synced, nil
}

func (e *EngagementService) send(action models.PendingActionType, trackID string) error {
	var method, reqURL string
	var body []byte

	switch action {
	case models.ActionFavorite:
		method = "POST"
		reqURL = fmt.Sprintf("%s/api/v1/favorites", e.baseURL)
		body, _ = json.Marshal(map[string]string{"track_id": trackID})
	case models.ActionUnfavorite:
		method = "DELETE"
		reqURL = fmt.Sprintf("%s/api/v1/favorites/%s", e.baseURL, url.PathEscape(trackID))
	case models.ActionHistory:
		method = "POST"
		reqURL = fmt.Sprintf("%s/api/v1/history", e.baseURL)
		body, _ = json.Marshal(map[string]string{"track_id": trackID})
	default:
		return fmt.Errorf("unknown engagement action %q", action)
	}

	req, err := http.NewRequest(method, reqURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create engagement request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send engagement request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("Failed to close response body: %v", err)
		}
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("engagement API returned status %d", resp.StatusCode)
	}
	return nil
}
