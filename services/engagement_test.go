package services

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"starbizvoices/database"
	"starbizvoices/repository"

	"github.com/stretchr/testify/assert"
)

func newPendingRepo(t *testing.T) *repository.PendingActionRepository {
	db, err := database.NewDB(":memory:")
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Failed to close test database: %v", err)
		}
	})
	if err := db.InitSchema(); err != nil {
		t.Fatalf("Failed to initialize test schema: %v", err)
	}
	return repository.NewPendingActionRepository(db)
}

// engagementRecorder captures the requests an engagement server receives
type engagementRecorder struct {
	mu       sync.Mutex
	requests []string
}

func (e *engagementRecorder) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		e.mu.Lock()
		e.requests = append(e.requests, r.Method+" "+r.URL.Path)
		e.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
}

func (e *engagementRecorder) seen() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.requests...)
}

func TestEngagementService_SendsWhenOnline(t *testing.T) {
	recorder := &engagementRecorder{}
	server := httptest.NewServer(recorder.handler())
	defer server.Close()

	pending := newPendingRepo(t)
	engagement := NewEngagementService(server.URL, "", pending, func() bool { return true })

	assert.NoError(t, engagement.AddFavorite("t1"))
	assert.NoError(t, engagement.RemoveFavorite("t1"))
	assert.NoError(t, engagement.RecordHistory("t2"))

	assert.Equal(t, []string{
		"POST /api/v1/favorites",
		"DELETE /api/v1/favorites/t1",
		"POST /api/v1/history",
	}, recorder.seen())

	count, err := pending.Count()
	assert.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestEngagementService_QueuesWhenOffline(t *testing.T) {
	pending := newPendingRepo(t)
	engagement := NewEngagementService("http://unused.invalid", "", pending, func() bool { return false })

	assert.NoError(t, engagement.AddFavorite("t1"))
	assert.NoError(t, engagement.RecordHistory("t2"))

	count, err := pending.Count()
	assert.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestEngagementService_QueuesOnSendFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	pending := newPendingRepo(t)
	engagement := NewEngagementService(server.URL, "", pending, func() bool { return true })

	assert.NoError(t, engagement.AddFavorite("t1"))

	count, err := pending.Count()
	assert.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestEngagementService_SyncOfflineReplaysInOrder(t *testing.T) {
	recorder := &engagementRecorder{}
	server := httptest.NewServer(recorder.handler())
	defer server.Close()

	pending := newPendingRepo(t)
	offline := NewEngagementService(server.URL, "", pending, func() bool { return false })
	assert.NoError(t, offline.AddFavorite("t1"))
	assert.NoError(t, offline.RecordHistory("t1"))
	assert.NoError(t, offline.RemoveFavorite("t2"))

	online := NewEngagementService(server.URL, "", pending, func() bool { return true })
	synced, err := online.SyncOffline()
	assert.NoError(t, err)
	assert.Equal(t, 3, synced)

	assert.Equal(t, []string{
		"POST /api/v1/favorites",
		"POST /api/v1/history",
		"DELETE /api/v1/favorites/t2",
	}, recorder.seen())

	// The queue is cleared after the pass.
	count, err := pending.Count()
	assert.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestEngagementService_SyncOfflineEmptyQueueIsNoop(t *testing.T) {
	pending := newPendingRepo(t)
	engagement := NewEngagementService("http://unused.invalid", "", pending, nil)

	synced, err := engagement.SyncOffline()
	assert.NoError(t, err)
	assert.Equal(t, 0, synced)
}
