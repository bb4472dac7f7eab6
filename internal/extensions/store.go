// Package extensions builds higher-level primitives on the public store
// contract: derived values, path watchers, transactions, selectors,
// undo/redo history and a small state machine. Nothing here reaches into the
// store's internals.
package extensions

import (
	"reflect"

	"mfestate/pkg/domain"
)

// Store is the subset of the state store the extensions depend on.
type Store interface {
	Get(key string) any
	Set(key string, value any, source ...string)
	BatchUpdate(updates map[string]any, source string)
	Subscribe(key string, listener domain.Listener) domain.Unsubscribe
	SubscribeAll(listener domain.GlobalListener) domain.Unsubscribe
	GetSnapshot() map[string]any
	RestoreSnapshot(snapshot map[string]any)
	GetProxyStore() map[string]any
}

// EqualFunc reports whether two selected values are the same.
type EqualFunc func(a, b any) bool

// StrictEqual compares by identity: maps, slices, pointers, channels and
// funcs are equal only when they share the same underlying reference;
// comparable values are compared with ==; anything else is never equal.
func StrictEqual(a, b any) (equal bool) {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() {
		return false
	}
	switch va.Kind() {
	case reflect.Slice:
		return va.Pointer() == vb.Pointer() && va.Len() == vb.Len()
	case reflect.Map, reflect.Pointer, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return va.Pointer() == vb.Pointer()
	}
	if !va.Type().Comparable() {
		return false
	}
	// structs holding interfaces may still panic on ==
	defer func() {
		if recover() != nil {
			equal = false
		}
	}()
	return a == b
}

func mustStore(s Store, what string) {
	if s == nil {
		panic("extensions: " + what + " requires a store")
	}
	if v := reflect.ValueOf(s); v.Kind() == reflect.Pointer && v.IsNil() {
		panic("extensions: " + what + " requires a store")
	}
}
