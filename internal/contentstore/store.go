// Package contentstore holds raw uploaded payloads between the upload request and the
// batch run that consumes them. Entries are keyed by a generated content key so job
// parameters carry a small handle instead of the payload itself.
package contentstore

import (
	"context"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
)

var keySanitizer = regexp.MustCompile(`[^a-zA-Z0-9.]`)

type entry struct {
	content   string
	createdAt time.Time
	sizeBytes int64
}

func (e entry) expired(ttl time.Duration, now time.Time) bool {
	return ttl > 0 && now.Sub(e.createdAt) > ttl
}

// Stats is a point-in-time snapshot of store occupancy.
type Stats struct {
	EntryCount     int   `json:"entryCount"`
	MaxEntries     int   `json:"maxEntries"`
	TotalBytes     int64 `json:"totalBytes"`
	AvailableSlots int   `json:"availableSlots"`
}

// Store is a bounded, TTL-evicting in-memory content store. At capacity, insertion
// first purges expired entries, then evicts the single oldest entry by creation time.
// A background sweep purges expired entries independent of insertion pressure.
type Store struct {
	mu         sync.Mutex
	entries    map[string]entry
	totalBytes int64

	maxEntries    int
	ttl           time.Duration
	sweepInterval time.Duration

	logger *slog.Logger
	cancel context.CancelFunc
}

// New creates a Store with the given capacity, entry TTL and sweep interval.
// The sweep goroutine is not running until Start is called.
func New(maxEntries int, ttl, sweepInterval time.Duration, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		entries:       make(map[string]entry),
		maxEntries:    maxEntries,
		ttl:           ttl,
		sweepInterval: sweepInterval,
		logger:        logger,
	}
}

// Start launches the background sweep. It is owned by the composition root and stops
// when Stop is called or the parent context is cancelled.
func (s *Store) Start(parent context.Context) {
	if s.sweepInterval <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	go func() {
		t := time.NewTicker(s.sweepInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				removed := s.SweepExpired()
				if removed > 0 {
					s.logger.Info("content store sweep removed expired entries", slog.Int("removed", removed))
				}
			}
		}
	}()
}

// Stop halts the background sweep.
func (s *Store) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// GenerateKey derives a unique, storage-safe content key for an upload.
func GenerateKey(filename string) string {
	if filename == "" {
		filename = "unknown"
	}
	safe := keySanitizer.ReplaceAllString(filename, "_")
	return "job_" + time.Now().UTC().Format("20060102T150405") + "_" + uuid.NewString() + "_" + safe
}

// Put stores a payload under key, evicting as needed to respect capacity.
func (s *Store) Put(key, content string) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[key]; !ok && len(s.entries) >= s.maxEntries {
		s.removeExpiredLocked(now)
		if len(s.entries) >= s.maxEntries {
			s.logger.Warn("content store full, evicting oldest entry")
			s.removeOldestLocked()
		}
	}

	e := entry{content: content, createdAt: now, sizeBytes: int64(len(content))}
	if prev, ok := s.entries[key]; ok {
		s.totalBytes -= prev.sizeBytes
	}
	s.entries[key] = e
	s.totalBytes += e.sizeBytes
	s.logger.Info("stored content",
		slog.String("key", key),
		slog.Int64("size_bytes", e.sizeBytes),
		slog.Int64("total_bytes", s.totalBytes),
	)
}

// Get returns the payload for key. Absence is returned, never an error; an entry past
// its TTL is treated as absent and evicted eagerly.
func (s *Store) Get(key string) (string, bool) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return "", false
	}
	if e.expired(s.ttl, now) {
		s.logger.Warn("content expired, removing", slog.String("key", key))
		delete(s.entries, key)
		s.totalBytes -= e.sizeBytes
		return "", false
	}
	return e.content, true
}

// Remove deletes the entry for key, reporting whether it existed.
func (s *Store) Remove(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return false
	}
	delete(s.entries, key)
	s.totalBytes -= e.sizeBytes
	s.logger.Info("removed content", slog.String("key", key), slog.Int64("size_bytes", e.sizeBytes))
	return true
}

// SweepExpired removes all TTL-expired entries and returns how many were removed.
func (s *Store) SweepExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeExpiredLocked(time.Now())
}

// ClearAll empties the store, returning how many entries were removed.
func (s *Store) ClearAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.entries)
	s.entries = make(map[string]entry)
	s.totalBytes = 0
	if n > 0 {
		s.logger.Warn("cleared all content entries", slog.Int("removed", n))
	}
	return n
}

// Stats reports current occupancy.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		EntryCount:     len(s.entries),
		MaxEntries:     s.maxEntries,
		TotalBytes:     s.totalBytes,
		AvailableSlots: s.maxEntries - len(s.entries),
	}
}

func (s *Store) removeExpiredLocked(now time.Time) int {
	removed := 0
	for k, e := range s.entries {
		if e.expired(s.ttl, now) {
			delete(s.entries, k)
			s.totalBytes -= e.sizeBytes
			removed++
		}
	}
	return removed
}

func (s *Store) removeOldestLocked() {
	var oldestKey string
	var oldestAt time.Time
	for k, e := range s.entries {
		if oldestKey == "" || e.createdAt.Before(oldestAt) {
			oldestKey = k
			oldestAt = e.createdAt
		}
	}
	if oldestKey != "" {
		e := s.entries[oldestKey]
		delete(s.entries, oldestKey)
		s.totalBytes -= e.sizeBytes
	}
}
