// Package memory provides a process-local implementation of the durable
// storage capability, the analogue of a browser's localStorage. It backs
// ephemeral deployments and tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"mfestate/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.Persister = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithQuota limits the total size of keys plus payloads in bytes. Writes that
// would exceed it fail with domain.ErrQuotaExceeded. Zero means unlimited.
func WithQuota(bytes int) Option {
	return func(s *Store) { s.quota = bytes }
}

// Store keeps entries in a map guarded by a mutex.
type Store struct {
	mu      sync.RWMutex
	entries map[string][]byte
	used    int
	quota   int
	closed  bool
}

// NewStore constructs an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{entries: make(map[string][]byte)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Entries returns every entry whose key starts with prefix, ordered by key.
func (s *Store) Entries(_ context.Context, prefix string) ([]domain.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed
	}
	out := make([]domain.Entry, 0, len(s.entries))
	for k, v := range s.entries {
		if strings.HasPrefix(k, prefix) {
			out = append(out, domain.Entry{Key: k, Payload: append([]byte(nil), v...)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Save creates or replaces the entry for key.
func (s *Store) Save(_ context.Context, key string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	used := s.used
	if old, ok := s.entries[key]; ok {
		used -= len(key) + len(old)
	}
	used += len(key) + len(payload)
	if s.quota > 0 && used > s.quota {
		return fmt.Errorf("save %q (%d bytes, quota %d): %w", key, len(payload), s.quota, domain.ErrQuotaExceeded)
	}
	s.entries[key] = append([]byte(nil), payload...)
	s.used = used
	return nil
}

// Remove deletes the entry for key.
func (s *Store) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	if old, ok := s.entries[key]; ok {
		s.used -= len(key) + len(old)
		delete(s.entries, key)
	}
	return nil
}

// Clear deletes every entry whose key starts with prefix.
func (s *Store) Clear(_ context.Context, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	for k, v := range s.entries {
		if strings.HasPrefix(k, prefix) {
			s.used -= len(k) + len(v)
			delete(s.entries, k)
		}
	}
	return nil
}

// Len reports the number of stored entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Used reports the bytes counted against the quota.
func (s *Store) Used() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.used
}

// Close marks the store closed. Entries are dropped.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.entries = nil
	s.used = 0
	return nil
}

var errClosed = errors.New("memory persister closed")
