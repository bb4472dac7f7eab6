// Package memory implements a process-local blob store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"mfestate/internal/blob/core"
)

type object struct {
	data     []byte
	modified time.Time
}

type Store struct {
	mu      sync.RWMutex
	objects map[string]object
}

func New() *Store { return &Store{objects: make(map[string]object)} }

func (s *Store) Driver() core.Driver { return core.DriverMemory }

func (s *Store) Write(_ context.Context, key string, data []byte) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%w: empty key", core.ErrInvalidKey)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = object{data: append([]byte(nil), data...), modified: time.Now().UTC()}
	return nil
}

func (s *Store) Read(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("blob %s: %w", key, core.ErrNotFound)
	}
	return append([]byte(nil), obj.data...), nil
}

func (s *Store) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *Store) Scan(_ context.Context, prefix string) ([]core.Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Object, 0, len(s.objects))
	for key, obj := range s.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, core.Object{Key: key, Size: int64(len(obj.data)), Modified: obj.modified})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Len reports how many objects are stored.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
