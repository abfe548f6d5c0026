// Package repository provides the data access layer for the local persistent store.
package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"starbizvoices/database"
	"starbizvoices/models"
)

// DownloadRepository handles database operations for downloaded media
type DownloadRepository struct {
	db *database.DB
}

// NewDownloadRepository creates a new download repository
func NewDownloadRepository(db *database.DB) *DownloadRepository {
	return &DownloadRepository{db: db}
}

// Save stores the media bytes and a snapshot of the track metadata.
// An existing record for the same track is replaced.
func (r *DownloadRepository) Save(track models.Track, data []byte) error {
	trackJSON, err := json.Marshal(track)
	if err != nil {
		return fmt.Errorf("failed to marshal track snapshot: %w", err)
	}

	query := `
		INSERT OR REPLACE INTO downloads (track_id, track_json, data, size, downloaded_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err = r.db.Exec(query, track.ID, string(trackJSON), data, int64(len(data)), time.Now())
	if err != nil {
		return fmt.Errorf("failed to save download: %w", err)
	}

	return nil
}

// Get retrieves a download record with its media bytes
func (r *DownloadRepository) Get(trackID string) (*models.DownloadRecord, error) {
	query := `SELECT track_id, track_json, data, size, downloaded_at FROM downloads WHERE track_id = ?`

	var record models.DownloadRecord
	var trackJSON string

	err := r.db.QueryRow(query, trackID).Scan(
		&record.TrackID, &trackJSON, &record.Data, &record.Size, &record.DownloadedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("download for track %s not found", trackID)
		}
		return nil, fmt.Errorf("failed to get download: %w", err)
	}

	if err := json.Unmarshal([]byte(trackJSON), &record.Track); err != nil {
		return nil, fmt.Errorf("failed to unmarshal track snapshot: %w", err)
	}

	return &record, nil
}

// Exists reports whether a download record is present for the track
func (r *DownloadRepository) Exists(trackID string) (bool, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM downloads WHERE track_id = ?`, trackID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check download: %w", err)
	}
	return count > 0, nil
}

// GetAll retrieves all download records without their media bytes,
// most recent first
func (r *DownloadRepository) GetAll() ([]models.DownloadRecord, error) {
	query := `SELECT track_id, track_json, size, downloaded_at FROM downloads ORDER BY downloaded_at DESC`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query downloads: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.Printf("Failed to close rows: %v", err)
		}
	}()

	var records []models.DownloadRecord
	for rows.Next() {
		var record models.DownloadRecord
		var trackJSON string

		if err := rows.Scan(&record.TrackID, &trackJSON, &record.Size, &record.DownloadedAt); err != nil {
			return nil, fmt.Errorf("failed to scan download: %w", err)
		}

		if err := json.Unmarshal([]byte(trackJSON), &record.Track); err != nil {
			return nil, fmt.Errorf("failed to unmarshal track snapshot: %w", err)
		}

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over rows: %w", err)
	}

	return records, nil
}

// Delete removes a download record
func (r *DownloadRepository) Delete(trackID string) error {
	if _, err := r.db.Exec(`DELETE FROM downloads WHERE track_id = ?`, trackID); err != nil {
		return fmt.Errorf("failed to delete download: %w", err)
	}
	return nil
}

// StorageSize returns the total size in bytes across all download records
func (r *DownloadRepository) StorageSize() (int64, error) {
	var total sql.NullInt64
	err := r.db.QueryRow(`SELECT SUM(size) FROM downloads`).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum download sizes: %w", err)
	}
	if !total.Valid {
		return 0, nil
	}
	return total.Int64, nil
}
