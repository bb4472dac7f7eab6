package domain

import "context"

// Entry is a single durable record: the fully prefixed storage key and the
// JSON-encoded value.
type Entry struct {
	Key     string `json:"key"`
	Payload []byte `json:"payload"`
}

// Persister is the durable storage capability the store requires from its
// host. Keys passed in are already prefixed ("<storagePrefix>:<key>").
// Implementations must be safe for concurrent use.
type Persister interface {
	// Entries returns every entry whose key starts with prefix, ordered by key.
	Entries(ctx context.Context, prefix string) ([]Entry, error)
	// Save creates or replaces the entry for key.
	Save(ctx context.Context, key string, payload []byte) error
	// Remove deletes the entry for key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error
	// Clear deletes every entry whose key starts with prefix.
	Clear(ctx context.Context, prefix string) error
	// Close releases backend resources.
	Close() error
}
