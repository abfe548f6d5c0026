package repository

import (
	"testing"

	"starbizvoices/database"
	"starbizvoices/models"

	"github.com/stretchr/testify/assert"
)

func setupTestDB(t *testing.T) (*database.DB, func()) {
	// Create a temporary test database
	testDB, err := database.NewDB(":memory:")
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	// Initialize schema
	if err := testDB.InitSchema(); err != nil {
		t.Fatalf("Failed to initialize test schema: %v", err)
	}

	cleanup := func() {
		if err := testDB.Close(); err != nil {
			t.Logf("Failed to close test database: %v", err)
		}
	}

	return testDB, cleanup
}

func testTrack(id string) models.Track {
	return models.Track{
		ID:      id,
		Title:   "Test Episode",
		Author:  "Test Author",
		FileURL: "https://storage.example.com/audio/" + id + ".mp3",
		Kind:    models.KindAudio,
		Tier:    models.TierFree,
	}
}

func TestDownloadRepository_SaveAndGet(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewDownloadRepository(db)
	track := testTrack("track-1")
	data := []byte("fake mp3 bytes")

	err := repo.Save(track, data)
	assert.NoError(t, err)

	record, err := repo.Get("track-1")
	assert.NoError(t, err)
	assert.Equal(t, "track-1", record.TrackID)
	assert.Equal(t, track.Title, record.Track.Title)
	assert.Equal(t, track.FileURL, record.Track.FileURL)
	assert.Equal(t, data, record.Data)
	assert.Equal(t, int64(len(data)), record.Size)
	assert.False(t, record.DownloadedAt.IsZero())
}

func TestDownloadRepository_GetNotFound(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewDownloadRepository(db)

	_, err := repo.Get("missing")
	assert.Error(t, err)
}

func TestDownloadRepository_Exists(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewDownloadRepository(db)

	exists, err := repo.Exists("track-1")
	assert.NoError(t, err)
	assert.False(t, exists)

	assert.NoError(t, repo.Save(testTrack("track-1"), []byte("abc")))

	exists, err = repo.Exists("track-1")
	assert.NoError(t, err)
	assert.True(t, exists)
}

func TestDownloadRepository_SaveReplacesExisting(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewDownloadRepository(db)
	track := testTrack("track-1")

	assert.NoError(t, repo.Save(track, []byte("first")))
	assert.NoError(t, repo.Save(track, []byte("second version")))

	record, err := repo.Get("track-1")
	assert.NoError(t, err)
	assert.Equal(t, []byte("second version"), record.Data)

	records, err := repo.GetAll()
	assert.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestDownloadRepository_DeleteAndStorageSize(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewDownloadRepository(db)

	size, err := repo.StorageSize()
	assert.NoError(t, err)
	assert.Equal(t, int64(0), size)

	assert.NoError(t, repo.Save(testTrack("a"), make([]byte, 100)))
	assert.NoError(t, repo.Save(testTrack("b"), make([]byte, 50)))

	size, err = repo.StorageSize()
	assert.NoError(t, err)
	assert.Equal(t, int64(150), size)

	assert.NoError(t, repo.Delete("a"))

	size, err = repo.StorageSize()
	assert.NoError(t, err)
	assert.Equal(t, int64(50), size)

	exists, err := repo.Exists("a")
	assert.NoError(t, err)
	assert.False(t, exists)
}

func TestDownloadRepository_GetAllOmitsData(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewDownloadRepository(db)
	assert.NoError(t, repo.Save(testTrack("a"), []byte("payload")))

	records, err := repo.GetAll()
	assert.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Nil(t, records[0].Data)
	assert.Equal(t, int64(7), records[0].Size)
}
