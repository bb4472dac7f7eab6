package core

import "mfestate/pkg/domain"

const (
	// DefaultStoragePrefix namespaces persisted entries: "<prefix>:<key>".
	DefaultStoragePrefix = "mfe-state"
	// DefaultChannelName is the shared broadcast channel sibling instances join.
	DefaultChannelName = "mfe-state-sync"
)

// Config is the construction-time configuration of a Store.
type Config struct {
	// Persistent loads entries at construction and saves every committed write.
	Persistent bool
	// StoragePrefix namespaces durable entries. Empty means DefaultStoragePrefix.
	StoragePrefix string
	// CrossInstance broadcasts committed writes and applies sibling writes.
	CrossInstance bool
	// Devtools retains every committed event in a DevtoolsRecorder.
	Devtools bool
	// ChannelName names the shared broadcast channel used by OpenChannel.
	ChannelName string
	// InitialState seeds the store before persisted entries are loaded.
	// Persisted entries win over initial values for the same key.
	InitialState map[string]any
	// Middleware runs in order for every Set and for each key of a BatchUpdate.
	Middleware []domain.Middleware
}

// DefaultConfig returns the documented defaults: persistent, cross-instance,
// prefix "mfe-state".
func DefaultConfig() Config {
	return Config{
		Persistent:    true,
		StoragePrefix: DefaultStoragePrefix,
		CrossInstance: true,
		ChannelName:   DefaultChannelName,
	}
}

func (c Config) withDefaults() Config {
	if c.StoragePrefix == "" {
		c.StoragePrefix = DefaultStoragePrefix
	}
	if c.ChannelName == "" {
		c.ChannelName = DefaultChannelName
	}
	return c
}
