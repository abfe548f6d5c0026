package cache

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []AudioCachedEvent
}

func (r *recordingBroadcaster) Broadcast(v interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if event, ok := v.(AudioCachedEvent); ok {
		r.events = append(r.events, event)
	}
}

func (r *recordingBroadcaster) last(t *testing.T) AudioCachedEvent {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		t.Fatal("Expected a broadcast event")
	}
	return r.events[len(r.events)-1]
}

func newTestController(t *testing.T, hub Broadcaster) (*Controller, *Store) {
	store, err := OpenStore("", "v1")
	if err != nil {
		t.Fatalf("Failed to open cache store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Logf("Failed to close cache store: %v", err)
		}
	})
	return NewController(store, nil, hub), store
}

func TestController_CacheAudioStoresAndBroadcasts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("mp3-bytes"))
	}))
	defer server.Close()

	hub := &recordingBroadcaster{}
	controller, store := newTestController(t, hub)

	controller.Handle(Message{Type: MsgCacheAudio, URL: server.URL + "/audio/track.mp3"})

	cached, ok := store.Get(TierAudio, server.URL+"/audio/track.mp3")
	assert.True(t, ok)
	assert.Equal(t, []byte("mp3-bytes"), cached.Body)

	event := hub.last(t)
	assert.Equal(t, MsgAudioCached, event.Type)
	assert.True(t, event.Success)
	assert.Empty(t, event.Error)
}

func TestController_CacheAudioFailureBroadcastsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	hub := &recordingBroadcaster{}
	controller, store := newTestController(t, hub)

	controller.CacheAudio(server.URL + "/audio/missing.mp3")

	assert.False(t, store.Has(TierAudio, server.URL+"/audio/missing.mp3"))
	event := hub.last(t)
	assert.False(t, event.Success)
	assert.NotEmpty(t, event.Error)
}

func TestController_RemoveCachedAudioEvicts(t *testing.T) {
	controller, store := newTestController(t, nil)

	url := "https://storage.example.com/audio/track.mp3"
	assert.NoError(t, store.Put(TierAudio, url, &CachedResponse{Status: 200, Body: []byte("bytes")}))

	controller.RemoveCachedAudio(url)
	assert.False(t, store.Has(TierAudio, url))
}

func TestController_UnknownMessageIgnored(t *testing.T) {
	controller, _ := newTestController(t, nil)
	controller.Handle(Message{Type: "NO_SUCH_TYPE"})
}
