package extensions

import (
	"sort"

	"mfestate/pkg/domain"
)

// Tx buffers writes made inside Transaction. Reads see buffered writes first.
type Tx struct {
	store   Store
	pending map[string]any
}

// Set buffers value under key.
func (tx *Tx) Set(key string, value any) {
	tx.pending[key] = value
}

// Get returns the buffered value for key, falling back to the store.
func (tx *Tx) Get(key string) any {
	if v, ok := tx.pending[key]; ok {
		return v
	}
	return tx.store.Get(key)
}

// Keys returns the buffered keys in ascending order.
func (tx *Tx) Keys() []string {
	keys := make([]string, 0, len(tx.pending))
	for k := range tx.pending {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Transaction runs fn with a write buffer and, when fn returns nil, applies
// every buffered write in one BatchUpdate tagged "transaction". An error from
// fn discards the buffer and is returned unchanged.
func Transaction(store Store, fn func(tx *Tx) error) error {
	mustStore(store, "transaction")
	tx := &Tx{store: store, pending: make(map[string]any)}
	if err := fn(tx); err != nil {
		return err
	}
	if len(tx.pending) > 0 {
		store.BatchUpdate(tx.pending, domain.SourceTxn)
	}
	return nil
}
