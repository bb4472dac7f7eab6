// Package core implements the reactive state store: the authoritative
// key/value map, synchronous subscriptions, the middleware pipeline, the
// persistence adapter, cross-instance sync and the tenant registrar.
package core

import (
	"context"
	"io"
	"reflect"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"mfestate/internal/infra/persistence/memory"
	"mfestate/pkg/domain"
)

// Store is the authoritative in-process key/value map. Every mutation goes
// through Set, Delete, Clear, BatchUpdate or RestoreSnapshot; all effects of
// a mutation (listeners, persistence, broadcast) complete before the call
// returns. Listeners may write to the store re-entrantly.
type Store struct {
	cfg Config

	mu         sync.RWMutex
	values     map[string]any
	meta       domain.Meta
	middleware []domain.Middleware

	subs    *subscriptions
	persist *persistenceAdapter
	bridge  *crossInstanceSync
	tenants *registrar

	persister   domain.Persister
	channel     domain.Channel
	logger      Logger
	metrics     MetricsRecorder
	devtools    *DevtoolsRecorder
	devtoolsOut io.Writer
	now         func() time.Time
	instanceID  string
	owned       []io.Closer

	closeOnce sync.Once
}

// change pairs a committed event with whether it removed the key.
type change struct {
	event   domain.ChangeEvent
	deleted bool
}

// NewStore constructs a store, seeds InitialState, and loads persisted
// entries under "<StoragePrefix>:". Malformed entries are skipped and logged.
func NewStore(cfg Config, opts ...Option) *Store {
	cfg = cfg.withDefaults()
	s := &Store{
		cfg:        cfg,
		values:     make(map[string]any),
		middleware: append([]domain.Middleware(nil), cfg.Middleware...),
		logger:     GlogLogger{},
		metrics:    nopMetrics{},
		now:        func() time.Time { return time.Now().UTC() },
		instanceID: uuid.NewString(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.subs = newSubscriptions(s.logger)
	s.tenants = newRegistrar()
	if cfg.Devtools {
		s.devtools = NewDevtoolsRecorder(s.devtoolsOut)
	}

	for k, v := range cfg.InitialState {
		s.values[k] = v
	}
	if cfg.Persistent {
		if s.persister == nil {
			fallback := memory.NewStore()
			s.persister = fallback
			s.owned = append(s.owned, fallback)
		}
		s.persist = newPersistenceAdapter(s.persister, cfg.StoragePrefix, s.logger, s.metrics)
		for k, v := range s.persist.load(context.Background()) {
			s.values[k] = v
		}
	}
	s.meta = domain.Meta{LastUpdate: s.now(), Source: domain.SourceInitial}

	if cfg.CrossInstance {
		if s.channel == nil {
			s.logger.Debugf("cross-instance sync enabled without a channel; instance %s commits locally only", s.instanceID)
		} else {
			s.bridge = newCrossInstanceSync(s, s.channel)
		}
	}
	return s
}

// InstanceID returns the random identity used to ignore this instance's own
// broadcasts.
func (s *Store) InstanceID() string { return s.instanceID }

// Config returns the construction configuration with defaults applied.
func (s *Store) Config() Config { return s.cfg }

// Devtools returns the devtools recorder, or nil when Config.Devtools is off.
func (s *Store) Devtools() *DevtoolsRecorder { return s.devtools }

// Get returns the current value for key, or nil when absent.
func (s *Store) Get(key string) any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[key]
}

// Lookup returns the current value and whether key is present.
func (s *Store) Lookup(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// GetAs returns the value for key asserted to T.
func GetAs[T any](s *Store, key string) (T, bool) {
	var zero T
	v, ok := s.Lookup(key)
	if !ok {
		return zero, false
	}
	out, ok := v.(T)
	return out, ok
}

// Keys returns the present keys in ascending order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.values)
}

// Meta returns the store-wide metadata.
func (s *Store) Meta() domain.Meta {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.meta
}

// Use appends a middleware to the pipeline.
func (s *Store) Use(mw domain.Middleware) {
	if mw == nil {
		return
	}
	s.mu.Lock()
	s.middleware = append(s.middleware, mw)
	s.mu.Unlock()
}

// Set writes value under key. The write passes the middleware pipeline; when
// committed, key listeners then global listeners fire, and the value is
// persisted and broadcast. source defaults to "unknown".
func (s *Store) Set(key string, value any, source ...string) {
	started := time.Now()
	ev := s.newEvent(key, value, sourceOr(source))
	var committed atomic.Bool
	s.runMiddleware(s.middlewareChain(), ev, func() {
		s.commit([]change{{event: ev}}, false)
		committed.Store(true)
	})
	s.metrics.Observe(context.Background(), "set", committed.Load(), time.Since(started))
}

// Delete removes key. Deleting an absent key is a no-op.
func (s *Store) Delete(key string) {
	started := time.Now()
	if _, ok := s.Lookup(key); !ok {
		return
	}
	s.commit([]change{{event: s.newEvent(key, nil, domain.SourceDelete), deleted: true}}, false)
	s.metrics.Observe(context.Background(), "delete", true, time.Since(started))
}

// Clear empties the store, firing one "clear" event per previously present
// key, removing every persisted entry under the prefix, and broadcasting a
// single STATE_CLEAR.
func (s *Store) Clear() {
	started := time.Now()
	events := s.wipe(domain.SourceClear)
	if s.persist != nil {
		s.persist.clear(context.Background())
	}
	if s.bridge != nil {
		s.bridge.publishClear()
	}
	s.metrics.Observe(context.Background(), "clear", len(events) > 0, time.Since(started))
}

// wipe empties the map under one meta bump and notifies listeners per key.
func (s *Store) wipe(source string) []domain.ChangeEvent {
	now := s.now()
	s.mu.Lock()
	keys := sortedKeys(s.values)
	events := make([]domain.ChangeEvent, 0, len(keys))
	for _, k := range keys {
		events = append(events, domain.ChangeEvent{Key: k, PreviousValue: s.values[k], Source: source, Timestamp: now})
	}
	s.values = make(map[string]any)
	s.bumpLocked(source, len(events), now)
	s.mu.Unlock()

	for _, ev := range events {
		s.subs.notify(ev)
		s.devtools.record(ev)
	}
	return events
}

// BatchUpdate applies every key of updates under a single meta bump, firing
// one event per key, all tagged with source. Each key still passes the
// middleware pipeline; keys whose middleware defers next commit individually
// when next fires.
func (s *Store) BatchUpdate(updates map[string]any, source string) {
	if len(updates) == 0 {
		return
	}
	started := time.Now()
	if source == "" {
		source = domain.SourceUnknown
	}
	chain := s.middlewareChain()

	var (
		mu         sync.Mutex
		collecting = true
		ready      []change
	)
	for _, key := range sortedKeys(updates) {
		ev := s.newEvent(key, updates[key], source)
		s.runMiddleware(chain, ev, func() {
			mu.Lock()
			if collecting {
				ready = append(ready, change{event: ev})
				mu.Unlock()
				return
			}
			mu.Unlock()
			s.commit([]change{{event: ev}}, false)
		})
	}
	mu.Lock()
	collecting = false
	batch := ready
	mu.Unlock()

	if len(batch) > 0 {
		s.commit(batch, false)
	}
	s.metrics.Observe(context.Background(), "batch", len(batch) > 0, time.Since(started))
}

// GetSnapshot returns a deep copy of every value.
func (s *Store) GetSnapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = deepCopy(v)
	}
	return out
}

// RestoreSnapshot replaces the whole store with snapshot under a single meta
// bump. Keys missing from snapshot are deleted. Every event is tagged
// "restore"; middleware is bypassed.
func (s *Store) RestoreSnapshot(snapshot map[string]any) {
	now := s.now()
	s.mu.Lock()
	var changes []change
	for _, k := range sortedKeys(s.values) {
		if _, keep := snapshot[k]; !keep {
			changes = append(changes, change{
				event:   domain.ChangeEvent{Key: k, PreviousValue: s.values[k], Source: domain.SourceRestore, Timestamp: now},
				deleted: true,
			})
		}
	}
	for _, k := range sortedKeys(snapshot) {
		changes = append(changes, change{event: domain.ChangeEvent{
			Key:           k,
			Value:         deepCopy(snapshot[k]),
			PreviousValue: s.values[k],
			Source:        domain.SourceRestore,
			Timestamp:     now,
		}})
	}
	s.mu.Unlock()
	if len(changes) == 0 {
		return
	}
	s.commit(changes, false)
}

// GetProxyStore returns a shallow copy of the raw map for advanced readers.
// Mutating the returned map never affects the store.
func (s *Store) GetProxyStore() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Subscribe registers listener for key. When key currently has a value the
// listener is invoked once, synchronously, with source "initial" before
// Subscribe returns.
func (s *Store) Subscribe(key string, listener domain.Listener) domain.Unsubscribe {
	if listener == nil {
		return func() {}
	}
	unsubscribe := s.subs.addKey(key, listener)
	if v, ok := s.Lookup(key); ok {
		s.subs.callKey(listener, v, domain.ChangeEvent{
			Key:       key,
			Value:     v,
			Source:    domain.SourceInitial,
			Timestamp: s.now(),
		})
	}
	return unsubscribe
}

// SubscribeAll registers listener for every change of every key.
func (s *Store) SubscribeAll(listener domain.GlobalListener) domain.Unsubscribe {
	if listener == nil {
		return func() {}
	}
	return s.subs.addGlobal(listener)
}

// ListenerCount returns the number of listeners registered for key.
func (s *Store) ListenerCount(key string) int { return s.subs.keyCount(key) }

// GlobalListenerCount returns the number of SubscribeAll listeners.
func (s *Store) GlobalListenerCount() int { return s.subs.globalCount() }

// Close detaches from the broadcast channel and closes the resources the
// store opened itself. Persisters and channels supplied through WithPersister
// and WithChannel are closed by their owner. Reads keep working afterwards.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.bridge != nil {
			s.bridge.close()
		}
		err = closeAll(s.owned)
	})
	return err
}

// commit mutates the map for every change under a single meta bump, then for
// each event notifies key and global listeners, records devtools, persists
// and broadcasts, in that order. Remote changes stop after devtools: they are
// already durable at their origin and must not echo back.
func (s *Store) commit(changes []change, remote bool) {
	now := s.now()
	s.mu.Lock()
	for i := range changes {
		ev := &changes[i].event
		ev.PreviousValue = s.values[ev.Key]
		ev.Timestamp = now
		if changes[i].deleted {
			delete(s.values, ev.Key)
		} else {
			s.values[ev.Key] = ev.Value
		}
	}
	s.bumpLocked(changes[len(changes)-1].event.Source, len(changes), now)
	s.mu.Unlock()

	for _, c := range changes {
		s.subs.notify(c.event)
		s.devtools.record(c.event)
		if remote {
			continue
		}
		if s.persist != nil {
			if c.deleted {
				s.persist.remove(context.Background(), c.event.Key)
			} else {
				s.persist.save(context.Background(), c.event.Key, c.event.Value)
			}
		}
		if s.bridge != nil {
			s.bridge.publish(c.event, c.deleted)
		}
	}
}

func (s *Store) bumpLocked(source string, affected int, now time.Time) {
	s.meta.Version++
	s.meta.UpdateCount += uint64(affected)
	s.meta.LastUpdate = now
	s.meta.Source = source
}

func (s *Store) newEvent(key string, value any, source string) domain.ChangeEvent {
	return domain.ChangeEvent{
		Key:           key,
		Value:         value,
		PreviousValue: s.Get(key),
		Source:        source,
		Timestamp:     s.now(),
	}
}

func (s *Store) middlewareChain() []domain.Middleware {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.middleware
}

func sourceOr(source []string) string {
	if len(source) == 0 || strings.TrimSpace(source[0]) == "" {
		return domain.SourceUnknown
	}
	return source[0]
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// deepCopy copies maps, slices and arrays recursively, preserving shared and
// cyclic references between copied containers. Other values are returned
// as-is; pointers keep pointing at the same target.
func deepCopy(v any) any {
	if v == nil {
		return nil
	}
	c := copier{seen: make(map[uintptr]reflect.Value)}
	return c.value(reflect.ValueOf(v)).Interface()
}

type copier struct {
	seen map[uintptr]reflect.Value
}

func (c copier) value(v reflect.Value) reflect.Value {
	switch v.Kind() {
	case reflect.Interface:
		if v.IsNil() {
			return v
		}
		out := reflect.New(v.Type()).Elem()
		out.Set(c.value(v.Elem()))
		return out
	case reflect.Map:
		if v.IsNil() {
			return v
		}
		if done, ok := c.seen[v.Pointer()]; ok {
			return done
		}
		out := reflect.MakeMapWithSize(v.Type(), v.Len())
		c.seen[v.Pointer()] = out
		iter := v.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), c.value(iter.Value()))
		}
		return out
	case reflect.Slice:
		if v.IsNil() || v.Len() == 0 {
			return v
		}
		if done, ok := c.seen[v.Pointer()]; ok && done.Len() == v.Len() {
			return done
		}
		out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		c.seen[v.Pointer()] = out
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(c.value(v.Index(i)))
		}
		return out
	case reflect.Array:
		out := reflect.New(v.Type()).Elem()
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(c.value(v.Index(i)))
		}
		return out
	default:
		return v
	}
}
