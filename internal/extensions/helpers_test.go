package extensions_test

import (
	"sync"
	"testing"

	"mfestate/internal/core"
	"mfestate/pkg/domain"
)

func newStore(t *testing.T) *core.Store {
	t.Helper()
	s := core.NewStore(core.Config{}, core.WithLogger(core.NopLogger{}))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

type recorder struct {
	mu     sync.Mutex
	events []domain.ChangeEvent
}

func record(s *core.Store) *recorder {
	r := &recorder{}
	s.SubscribeAll(func(ev domain.ChangeEvent) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, ev)
	})
	return r
}

func (r *recorder) all() []domain.ChangeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.ChangeEvent(nil), r.events...)
}

func (r *recorder) forKey(key string) []domain.ChangeEvent {
	var out []domain.ChangeEvent
	for _, ev := range r.all() {
		if ev.Key == key {
			out = append(out, ev)
		}
	}
	return out
}
