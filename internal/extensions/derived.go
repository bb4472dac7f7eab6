package extensions

import (
	"sync"

	"mfestate/pkg/domain"
)

// DeriveFunc computes a value from every key of the store.
type DeriveFunc func(values map[string]any) any

// Derived caches a value computed from the whole store and recomputes it on
// every change. When created with a key, each new value is also written to
// the store under that key with source "derived".
type Derived struct {
	store  Store
	derive DeriveFunc
	key    string

	mu          sync.Mutex
	value       any
	unsubscribe domain.Unsubscribe
}

// NewDerived computes the initial value and starts following the store. An
// empty key keeps the value local to the returned Derived.
func NewDerived(store Store, derive DeriveFunc, key string) *Derived {
	mustStore(store, "derived state")
	if derive == nil {
		panic("extensions: derived state requires a derive func")
	}
	d := &Derived{store: store, derive: derive, key: key}
	d.recompute()
	d.unsubscribe = store.SubscribeAll(func(ev domain.ChangeEvent) {
		// writes of our own output never feed back into the computation
		if d.key != "" && ev.Key == d.key {
			return
		}
		d.recompute()
	})
	return d
}

// Get recomputes the value from the current store contents and returns it.
func (d *Derived) Get() any {
	return d.recompute()
}

// Close stops following the store.
func (d *Derived) Close() {
	d.unsubscribe()
}

func (d *Derived) recompute() any {
	next := d.derive(d.store.GetProxyStore())
	d.mu.Lock()
	changed := !StrictEqual(next, d.value)
	if changed {
		d.value = next
	}
	d.mu.Unlock()
	if changed && d.key != "" {
		d.store.Set(d.key, next, domain.SourceDerived)
	}
	return next
}
