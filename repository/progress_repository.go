package repository

import (
	"database/sql"
	"fmt"
	"time"

	"starbizvoices/database"
	"starbizvoices/models"
)

// ProgressRepository handles playback progress persistence
type ProgressRepository struct {
	db *database.DB
}

// NewProgressRepository creates a new progress repository
func NewProgressRepository(db *database.DB) *ProgressRepository {
	return &ProgressRepository{db: db}
}

// Upsert records the last playback position for a track
func (r *ProgressRepository) Upsert(trackID string, progress, duration float64) error {
	query := `
		INSERT OR REPLACE INTO playback_progress (track_id, progress, duration, updated_at)
		VALUES (?, ?, ?, ?)
	`
	if _, err := r.db.Exec(query, trackID, progress, duration, time.Now()); err != nil {
		return fmt.Errorf("failed to upsert playback progress: %w", err)
	}
	return nil
}

// Get retrieves the saved playback position for a track
func (r *ProgressRepository) Get(trackID string) (*models.PlaybackProgress, error) {
	query := `SELECT track_id, progress, duration, updated_at FROM playback_progress WHERE track_id = ?`

	var p models.PlaybackProgress
	err := r.db.QueryRow(query, trackID).Scan(&p.TrackID, &p.Progress, &p.Duration, &p.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("no progress recorded for track %s", trackID)
		}
		return nil, fmt.Errorf("failed to get playback progress: %w", err)
	}

	return &p, nil
}
