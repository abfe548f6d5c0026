// Package cache implements the network cache layer: a versioned response
// store with per-route caching policies and a message-based control
// channel for explicit audio cache population and eviction.
package cache

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
)

// Cache tiers. Pages and static assets share one tier; audio gets its
// own so it can be populated and evicted explicitly.
const (
	TierPages = "pages"
	TierAudio = "audio"
)

// CachedResponse is the serialized form of an HTTP response
type CachedResponse struct {
	Status int         `json:"status"`
	Header http.Header `json:"header"`
	Body   []byte      `json:"body"`
}

// Store persists cached responses in badger, namespaced by a version tag
// so a deploy with a new tag can drop every stale entry at activation.
type Store struct {
	db      *badger.DB
	version string
}

// OpenStore opens the cache store at dir. An empty dir opens an
// in-memory store (used in tests).
func OpenStore(dir, version string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache store: %w", err)
	}
	return &Store{db: db, version: version}, nil
}

// Close closes the underlying store
func (s *Store) Close() error {
	return s.db.Close()
}

// Version returns the active cache version tag
func (s *Store) Version() string {
	return s.version
}

func (s *Store) key(tier, url string) []byte {
	return []byte(s.version + "|" + tier + "|" + url)
}

// Get retrieves a cached response, reporting whether it was present
func (s *Store) Get(tier, url string) (*CachedResponse, bool) {
	var cached CachedResponse
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.key(tier, url))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &cached)
		})
	})
	if err != nil {
		if err != badger.ErrKeyNotFound {
			log.Printf("Cache read failed for %s: %v", url, err)
		}
		return nil, false
	}
	return &cached, true
}

// Put stores a response under the current version tag
func (s *Store) Put(tier, url string, cached *CachedResponse) error {
	data, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("failed to marshal cached response: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(s.key(tier, url), data)
	})
	if err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

// Delete evicts a single entry
func (s *Store) Delete(tier, url string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(s.key(tier, url))
	})
	if err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// Has reports whether an entry exists without reading its body
func (s *Store) Has(tier, url string) bool {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(s.key(tier, url))
		return err
	})
	return err == nil
}

// Activate deletes every entry persisted under a different version tag,
// so the current policy applies immediately.
func (s *Store) Activate() error {
	prefix := s.version + "|"
	var stale [][]byte

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().KeyCopy(nil)
			if !strings.HasPrefix(string(key), prefix) {
				stale = append(stale, key)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to scan cache versions: %w", err)
	}

	if len(stale) == 0 {
		return nil
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		for _, key := range stale {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to drop stale cache entries: %w", err)
	}

	log.Printf("Cache activated: dropped %d entries from previous versions", len(stale))
	return nil
}
