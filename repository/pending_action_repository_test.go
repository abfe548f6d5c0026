package repository

import (
	"testing"
	"time"

	"starbizvoices/models"

	"github.com/stretchr/testify/assert"
)

func TestPendingActionRepository_EnqueueAndOrder(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewPendingActionRepository(db)

	assert.NoError(t, repo.Enqueue(models.ActionFavorite, "track-1"))
	time.Sleep(5 * time.Millisecond)
	assert.NoError(t, repo.Enqueue(models.ActionHistory, "track-1"))
	time.Sleep(5 * time.Millisecond)
	assert.NoError(t, repo.Enqueue(models.ActionUnfavorite, "track-2"))

	actions, err := repo.GetAll()
	assert.NoError(t, err)
	assert.Len(t, actions, 3)

	// Creation order is preserved
	assert.Equal(t, models.ActionFavorite, actions[0].Action)
	assert.Equal(t, models.ActionHistory, actions[1].Action)
	assert.Equal(t, models.ActionUnfavorite, actions[2].Action)
	assert.Equal(t, "track-2", actions[2].TrackID)

	// Each entry gets a unique key
	assert.NotEqual(t, actions[0].ID, actions[1].ID)
}

func TestPendingActionRepository_Clear(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewPendingActionRepository(db)

	assert.NoError(t, repo.Enqueue(models.ActionFavorite, "track-1"))
	assert.NoError(t, repo.Enqueue(models.ActionFavorite, "track-2"))

	count, err := repo.Count()
	assert.NoError(t, err)
	assert.Equal(t, 2, count)

	assert.NoError(t, repo.Clear())

	count, err = repo.Count()
	assert.NoError(t, err)
	assert.Equal(t, 0, count)

	actions, err := repo.GetAll()
	assert.NoError(t, err)
	assert.Empty(t, actions)
}

func TestProgressRepository_UpsertAndGet(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewProgressRepository(db)

	_, err := repo.Get("track-1")
	assert.Error(t, err)

	assert.NoError(t, repo.Upsert("track-1", 42.5, 180))

	p, err := repo.Get("track-1")
	assert.NoError(t, err)
	assert.Equal(t, 42.5, p.Progress)
	assert.Equal(t, float64(180), p.Duration)

	// Upsert replaces the previous position
	assert.NoError(t, repo.Upsert("track-1", 90, 180))

	p, err = repo.Get("track-1")
	assert.NoError(t, err)
	assert.Equal(t, float64(90), p.Progress)
}
