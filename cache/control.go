package cache

import (
	"io"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Control channel message types. Requests are fire-and-forget; callers
// that need confirmation listen for the AUDIO_CACHED broadcast.
const (
	MsgCacheAudio        = "CACHE_AUDIO"
	MsgRemoveCachedAudio = "REMOVE_CACHED_AUDIO"
	MsgSkipWaiting       = "SKIP_WAITING"
	MsgAudioCached       = "AUDIO_CACHED"
)

// Message is a control channel request
type Message struct {
	Type string `json:"type"`
	URL  string `json:"url,omitempty"`
}

// AudioCachedEvent is broadcast to every connected client after a
// CACHE_AUDIO request completes
type AudioCachedEvent struct {
	Type    string `json:"type"`
	URL     string `json:"url"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Broadcaster fans a message out to all connected clients
type Broadcaster interface {
	Broadcast(v interface{})
}

// Controller handles control channel messages against the cache store
type Controller struct {
	store  *Store
	client *http.Client
	hub    Broadcaster
}

// NewController creates a control channel handler. The client fetches
// audio directly, bypassing the policy transport; pass nil for a default.
func NewController(store *Store, client *http.Client, hub Broadcaster) *Controller {
	if client == nil {
		client = http.DefaultClient
	}
	return &Controller{store: store, client: client, hub: hub}
}

// Handle dispatches a single control message. Unknown types are ignored.
func (c *Controller) Handle(msg Message) {
	switch msg.Type {
	case MsgCacheAudio:
		c.cacheAudio(msg.URL)
	case MsgRemoveCachedAudio:
		if err := c.store.Delete(TierAudio, msg.URL); err != nil {
			log.Printf("Failed to evict cached audio %s: %v", msg.URL, err)
		}
	case MsgSkipWaiting:
		if err := c.store.Activate(); err != nil {
			log.Printf("Failed to activate cache version: %v", err)
		}
	default:
		log.Printf("Ignoring unknown control message type %q", msg.Type)
	}
}

// CacheAudio requests population of the audio tier for a URL
func (c *Controller) CacheAudio(url string) {
	c.Handle(Message{Type: MsgCacheAudio, URL: url})
}

// RemoveCachedAudio requests eviction of a URL from the audio tier
func (c *Controller) RemoveCachedAudio(url string) {
	c.Handle(Message{Type: MsgRemoveCachedAudio, URL: url})
}

func (c *Controller) cacheAudio(url string) {
	event := AudioCachedEvent{Type: MsgAudioCached, URL: url, Success: true}

	resp, err := c.client.Get(url)
	if err != nil {
		event.Success = false
		event.Error = err.Error()
		c.broadcast(event)
		return
	}
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil || resp.StatusCode != http.StatusOK {
		event.Success = false
		event.Error = "audio fetch failed"
		c.broadcast(event)
		return
	}

	cached := &CachedResponse{Status: resp.StatusCode, Header: resp.Header.Clone(), Body: body}
	if err := c.store.Put(TierAudio, url, cached); err != nil {
		event.Success = false
		event.Error = err.Error()
	}
	c.broadcast(event)
}

func (c *Controller) broadcast(event AudioCachedEvent) {
	if c.hub != nil {
		c.hub.Broadcast(event)
	}
}

// Hub tracks connected websocket clients and fans broadcasts out to them
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

// NewHub creates an empty client hub
func NewHub() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]bool)}
}

// Add registers a client connection
func (h *Hub) Add(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[conn] = true
}

// Remove unregisters a client connection
func (h *Hub) Remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, conn)
}

// Count returns the number of connected clients
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast sends v as JSON to every connected client, dropping clients
// whose connection has failed
func (h *Hub) Broadcast(v interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		if err := conn.WriteJSON(v); err != nil {
			log.Printf("Dropping websocket client: %v", err)
			_ = conn.Close()
			delete(h.clients, conn)
		}
	}
}
