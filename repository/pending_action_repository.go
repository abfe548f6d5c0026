package repository

import (
	"fmt"
	"log"
	"time"

	"starbizvoices/database"
	"starbizvoices/models"

	"github.com/google/uuid"
)

// PendingActionRepository handles the queue of user mutations performed
// while offline. Entries are processed in creation order and cleared in a
// single batch after a sync pass.
type PendingActionRepository struct {
	db *database.DB
}

// NewPendingActionRepository creates a new pending action repository
func NewPendingActionRepository(db *database.DB) *PendingActionRepository {
	return &PendingActionRepository{db: db}
}

// Enqueue records a deferred user action
func (r *PendingActionRepository) Enqueue(action models.PendingActionType, trackID string) error {
	query := `INSERT INTO offline_queue (id, action, track_id, created_at) VALUES (?, ?, ?, ?)`
	_, err := r.db.Exec(query, uuid.NewString(), string(action), trackID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to enqueue pending action: %w", err)
	}
	return nil
}

// GetAll returns all pending actions in creation order
func (r *PendingActionRepository) GetAll() ([]models.PendingAction, error) {
	query := `SELECT id, action, track_id, created_at FROM offline_queue ORDER BY created_at ASC`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending actions: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.Printf("Failed to close rows: %v", err)
		}
	}()

	var actions []models.PendingAction
	for rows.Next() {
		var a models.PendingAction
		if err := rows.Scan(&a.ID, &a.Action, &a.TrackID, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan pending action: %w", err)
		}
		actions = append(actions, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over rows: %w", err)
	}

	return actions, nil
}

// Clear removes every queued action
func (r *PendingActionRepository) Clear() error {
	if _, err := r.db.Exec(`DELETE FROM offline_queue`); err != nil {
		return fmt.Errorf("failed to clear pending actions: %w", err)
	}
	return nil
}

// Count returns the number of queued actions
func (r *PendingActionRepository) Count() (int, error) {
	var count int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM offline_queue`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count pending actions: %w", err)
	}
	return count, nil
}
