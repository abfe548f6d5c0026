package player

import (
	"testing"

	"starbizvoices/database"
	"starbizvoices/repository"

	"github.com/stretchr/testify/assert"
)

func TestLocalFirstResolver_PrefersDownloadedBytes(t *testing.T) {
	db, err := database.NewDB(":memory:")
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			t.Logf("Failed to close test database: %v", err)
		}
	}()
	if err := db.InitSchema(); err != nil {
		t.Fatalf("Failed to initialize test schema: %v", err)
	}

	downloads := repository.NewDownloadRepository(db)
	resolver := NewLocalFirstResolver(downloads)
	track := audioTrack("x")

	// No download yet: remote URL only.
	src := resolver.Resolve(track)
	assert.False(t, src.Local())
	assert.Equal(t, track.FileURL, src.URL)

	// After a download the local bytes win.
	assert.NoError(t, downloads.Save(track, []byte("downloaded bytes")))
	src = resolver.Resolve(track)
	assert.True(t, src.Local())
	assert.Equal(t, []byte("downloaded bytes"), src.Data)

	// Removing the download falls back to the remote URL.
	assert.NoError(t, downloads.Delete(track.ID))
	src = resolver.Resolve(track)
	assert.False(t, src.Local())
	assert.Equal(t, track.FileURL, src.URL)
}
