package core

import (
	"sync"

	"mfestate/pkg/domain"
)

type keyListener struct {
	id uint64
	fn domain.Listener
}

type globalListener struct {
	id uint64
	fn domain.GlobalListener
}

// subscriptions holds per-key and global listeners in registration order.
// Fan-out copies the listener lists first so listeners may subscribe or
// unsubscribe while being notified.
type subscriptions struct {
	mu     sync.Mutex
	nextID uint64
	byKey  map[string][]keyListener
	global []globalListener
	logger Logger
}

func newSubscriptions(logger Logger) *subscriptions {
	return &subscriptions{
		byKey:  make(map[string][]keyListener),
		logger: logger,
	}
}

func (r *subscriptions) addKey(key string, fn domain.Listener) domain.Unsubscribe {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.byKey[key] = append(r.byKey[key], keyListener{id: id, fn: fn})
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { r.removeKey(key, id) })
	}
}

func (r *subscriptions) removeKey(key string, id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.byKey[key]
	for i, l := range list {
		if l.id != id {
			continue
		}
		next := make([]keyListener, 0, len(list)-1)
		next = append(next, list[:i]...)
		next = append(next, list[i+1:]...)
		if len(next) == 0 {
			delete(r.byKey, key)
		} else {
			r.byKey[key] = next
		}
		return
	}
}

func (r *subscriptions) addGlobal(fn domain.GlobalListener) domain.Unsubscribe {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.global = append(r.global, globalListener{id: id, fn: fn})
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { r.removeGlobal(id) })
	}
}

func (r *subscriptions) removeGlobal(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, l := range r.global {
		if l.id == id {
			next := make([]globalListener, 0, len(r.global)-1)
			next = append(next, r.global[:i]...)
			r.global = append(next, r.global[i+1:]...)
			return
		}
	}
}

// notify delivers ev to the key's listeners, then to global listeners.
func (r *subscriptions) notify(ev domain.ChangeEvent) {
	r.mu.Lock()
	keyed := r.byKey[ev.Key]
	global := r.global
	r.mu.Unlock()

	for _, l := range keyed {
		r.callKey(l.fn, ev.Value, ev)
	}
	for _, l := range global {
		r.callGlobal(l.fn, ev)
	}
}

func (r *subscriptions) callKey(fn domain.Listener, value any, ev domain.ChangeEvent) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Errorf("listener for %q panicked (source %q): %v", ev.Key, ev.Source, rec)
		}
	}()
	fn(value, ev)
}

func (r *subscriptions) callGlobal(fn domain.GlobalListener, ev domain.ChangeEvent) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Errorf("global listener panicked on %q (source %q): %v", ev.Key, ev.Source, rec)
		}
	}()
	fn(ev)
}

func (r *subscriptions) keyCount(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byKey[key])
}

func (r *subscriptions) globalCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.global)
}
