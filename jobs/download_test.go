package jobs

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"starbizvoices/models"

	"github.com/stretchr/testify/assert"
)

func TestDownloadJob_DownloadStoresBytes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("mp3-payload"))
	}))
	defer server.Close()

	downloadRepo, _ := setupTestRepos(t)
	job := NewDownloadJob(downloadRepo, nil, nil)

	track := downloadableTrack("t1", server.URL+"/audio/t1.mp3")
	assert.True(t, job.Download(track))

	record, err := downloadRepo.Get("t1")
	assert.NoError(t, err)
	assert.NotNil(t, record)
	assert.Equal(t, []byte("mp3-payload"), record.Data)
	assert.Equal(t, int64(len("mp3-payload")), record.Size)
}

func TestDownloadJob_DownloadFailsOnBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	downloadRepo, _ := setupTestRepos(t)
	job := NewDownloadJob(downloadRepo, nil, nil)

	assert.False(t, job.Download(downloadableTrack("t1", server.URL+"/audio/missing.mp3")))

	exists, err := downloadRepo.Exists("t1")
	assert.NoError(t, err)
	assert.False(t, exists)
}

func TestDownloadJob_RefusesNonPlayableContent(t *testing.T) {
	downloadRepo, _ := setupTestRepos(t)
	job := NewDownloadJob(downloadRepo, nil, nil)

	pdf := &models.Track{ID: "doc", Kind: models.KindPDF, FileURL: "https://unused.invalid/doc.pdf"}
	assert.False(t, job.Download(pdf))
	assert.False(t, job.Download(nil))
}

func TestDownloadJob_RemoveDeletesRecord(t *testing.T) {
	downloadRepo, _ := setupTestRepos(t)
	track := downloadableTrack("t1", "https://storage.example.com/audio/t1.mp3")
	assert.NoError(t, downloadRepo.Save(*track, []byte("bytes")))

	job := NewDownloadJob(downloadRepo, nil, nil)
	assert.True(t, job.Remove("t1"))

	exists, err := downloadRepo.Exists("t1")
	assert.NoError(t, err)
	assert.False(t, exists)

	// Removing a missing download is not an error.
	assert.True(t, job.Remove("t1"))
}

func TestDownloadJob_ProgressIdleTracks(t *testing.T) {
	downloadRepo, _ := setupTestRepos(t)
	job := NewDownloadJob(downloadRepo, nil, nil)

	assert.False(t, job.IsDownloading("t1"))
	assert.Equal(t, float64(-1), job.Progress("t1"))
}
