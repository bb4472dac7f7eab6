package extensions

import (
	"maps"
	"slices"
	"sync"

	"mfestate/pkg/domain"
)

// SelectFunc picks a value out of the whole store.
type SelectFunc func(values map[string]any) any

// SelectorCallback receives a newly selected value and the one before it.
type SelectorCallback func(value, previous any)

// Selector recomputes a selected value on every store change and notifies
// its callbacks only when the value changed according to its EqualFunc. The
// store subscription exists only while at least one callback is registered.
type Selector struct {
	store    Store
	selectFn SelectFunc
	equal    EqualFunc

	mu          sync.Mutex
	nextID      uint64
	callbacks   map[uint64]SelectorCallback
	last        any
	unsubscribe domain.Unsubscribe
}

// NewSelector builds a selector. A nil equal uses StrictEqual.
func NewSelector(store Store, selectFn SelectFunc, equal EqualFunc) *Selector {
	mustStore(store, "selector")
	if selectFn == nil {
		panic("extensions: selector requires a select func")
	}
	if equal == nil {
		equal = StrictEqual
	}
	return &Selector{store: store, selectFn: selectFn, equal: equal, callbacks: make(map[uint64]SelectorCallback)}
}

// Get returns a freshly computed selection.
func (s *Selector) Get() any {
	return s.selectFn(s.store.GetProxyStore())
}

// Subscribe registers callback. The first registration subscribes to the
// store; removing the last one tears that subscription down.
func (s *Selector) Subscribe(callback SelectorCallback) domain.Unsubscribe {
	if callback == nil {
		return func() {}
	}
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.callbacks[id] = callback
	attach := s.unsubscribe == nil
	if attach {
		s.last = s.Get()
	}
	s.mu.Unlock()

	if attach {
		unsubscribe := s.store.SubscribeAll(func(domain.ChangeEvent) { s.onChange() })
		s.mu.Lock()
		if s.unsubscribe == nil && len(s.callbacks) > 0 {
			s.unsubscribe = unsubscribe
			unsubscribe = nil
		}
		s.mu.Unlock()
		if unsubscribe != nil {
			unsubscribe()
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() { s.remove(id) })
	}
}

// Active reports whether the selector currently follows the store.
func (s *Selector) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unsubscribe != nil
}

func (s *Selector) remove(id uint64) {
	s.mu.Lock()
	delete(s.callbacks, id)
	var detach domain.Unsubscribe
	if len(s.callbacks) == 0 {
		detach = s.unsubscribe
		s.unsubscribe = nil
	}
	s.mu.Unlock()
	if detach != nil {
		detach()
	}
}

func (s *Selector) onChange() {
	next := s.Get()
	s.mu.Lock()
	previous := s.last
	if s.equal(next, previous) {
		s.mu.Unlock()
		return
	}
	s.last = next
	callbacks := make([]SelectorCallback, 0, len(s.callbacks))
	for _, id := range slices.Sorted(maps.Keys(s.callbacks)) {
		callbacks = append(callbacks, s.callbacks[id])
	}
	s.mu.Unlock()
	for _, cb := range callbacks {
		cb(next, previous)
	}
}
