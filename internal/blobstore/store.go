// Package blobstore holds transient, URL-addressable audio payloads.
//
// A URL handed out by Create refers to in-memory bytes until it is released.
// Release succeeds exactly once per URL; releasing twice or releasing an
// unknown URL is a no-op that reports false. Entries that are never released
// expire after a safety TTL so a forgotten URL cannot pin memory for the
// lifetime of the process.
package blobstore

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
)

// PathPrefix is the URL prefix under which blobs are served.
const PathPrefix = "/media/"

// DefaultTTL bounds how long an unreleased blob stays resolvable.
const DefaultTTL = time.Hour

// Blob is an immutable payload with its MIME type.
type Blob struct {
	ID        string
	Data      []byte
	MIMEType  string
	CreatedAt time.Time
}

// URL returns the transient URL of the blob.
func (b *Blob) URL() string { return PathPrefix + b.ID }

// Store is a concurrency-safe transient URL registry.
type Store struct {
	cache *ttlcache.Cache[string, *Blob]

	mu       sync.Mutex
	created  int
	released int
	closed   bool
}

// New creates a store whose unreleased blobs expire after ttl.
// A non-positive ttl selects DefaultTTL.
func New(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	cache := ttlcache.New[string, *Blob](
		ttlcache.WithTTL[string, *Blob](ttl),
		ttlcache.WithDisableTouchOnHit[string, *Blob](),
	)
	cache.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, *Blob]) {
		if reason == ttlcache.EvictionReasonExpired {
			slog.Warn("transient url expired without release", "url", item.Value().URL())
		}
	})
	go cache.Start()

	return &Store{cache: cache}
}

// Create stores data and returns its transient URL.
func (s *Store) Create(data []byte, mimeType string) string {
	blob := &Blob{
		ID:        uuid.NewString(),
		Data:      data,
		MIMEType:  mimeType,
		CreatedAt: time.Now(),
	}

	s.mu.Lock()
	s.created++
	s.mu.Unlock()

	s.cache.Set(blob.ID, blob, ttlcache.DefaultTTL)
	slog.Debug("transient url created", "url", blob.URL(), "bytes", len(data), "mime", mimeType)
	return blob.URL()
}

// Resolve returns the blob behind url, if it is still live.
func (s *Store) Resolve(url string) (*Blob, bool) {
	id, ok := idFromURL(url)
	if !ok {
		return nil, false
	}
	item := s.cache.Get(id)
	if item == nil {
		return nil, false
	}
	return item.Value(), true
}

// Release frees the bytes behind url. It reports true only for the call that
// actually released a live URL.
func (s *Store) Release(url string) bool {
	id, ok := idFromURL(url)
	if !ok {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cache.Get(id) == nil {
		return false
	}
	s.cache.Delete(id)
	s.released++
	slog.Debug("transient url released", "url", url)
	return true
}

// Close releases every live URL and stops the expiry loop.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	live := s.cache.Keys()
	s.mu.Unlock()

	for _, id := range live {
		s.Release(PathPrefix + id)
	}
	s.cache.Stop()
}

// Created returns how many URLs have been handed out.
func (s *Store) Created() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.created
}

// Released returns how many URLs have been released.
func (s *Store) Released() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

// Live returns the number of resolvable URLs.
func (s *Store) Live() int {
	return s.cache.Len()
}

func idFromURL(url string) (string, bool) {
	if !strings.HasPrefix(url, PathPrefix) {
		return "", false
	}
	id := strings.TrimPrefix(url, PathPrefix)
	if id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}
