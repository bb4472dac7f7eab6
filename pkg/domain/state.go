// Package domain defines the contracts shared by the state store, its
// durable backends, its broadcast transports, and the extensions built on top
// of it. Nothing in this package holds state.
package domain

import "time"

// Source tags attached to ChangeEvents by the store itself. Callers may use
// any other free-form tag; middleware and tests rely on these values.
const (
	SourceUnknown  = "unknown"
	SourceInitial  = "initial"
	SourceDelete   = "delete"
	SourceClear    = "clear"
	SourceRestore  = "restore"
	SourceCrossTab = " (cross-tab)"
	SourceDerived  = "derived"
	SourceTxn      = "transaction"
	SourceMachine  = "state-machine"
)

// ChangeEvent describes a single key mutation. Value is nil for deletes and
// clears. Timestamp is informational and never used to order writes.
type ChangeEvent struct {
	Key           string    `json:"key"`
	Value         any       `json:"value"`
	PreviousValue any       `json:"previousValue"`
	Source        string    `json:"source"`
	Timestamp     time.Time `json:"timestamp"`
}

// Meta describes the store as a whole. Version is bumped once per mutating
// operation, UpdateCount once per affected key.
type Meta struct {
	Version     uint64    `json:"version"`
	LastUpdate  time.Time `json:"lastUpdate"`
	UpdateCount uint64    `json:"updateCount"`
	Source      string    `json:"source"`
}

// Listener receives changes for a single key.
type Listener func(value any, event ChangeEvent)

// GlobalListener receives every change for every key.
type GlobalListener func(event ChangeEvent)

// Unsubscribe detaches a listener. Calling it more than once is safe.
type Unsubscribe func()

// Middleware intercepts a write before it lands. Calling next commits the
// write; never calling it vetoes the write silently. next may be called after
// the middleware returns, in which case the commit happens at that point.
type Middleware func(event ChangeEvent, next func())
