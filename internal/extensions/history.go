package extensions

import (
	"sync"
	"time"

	"mfestate/pkg/domain"
)

// Defaults applied to zero HistoryOptions fields.
const (
	DefaultMaxHistory = 50
	DefaultDebounce   = 100 * time.Millisecond
)

// HistoryOptions bounds and paces a History. Zero values use the defaults.
type HistoryOptions struct {
	MaxHistory int
	Debounce   time.Duration
}

// History records debounced whole-store snapshots and moves between them.
// The snapshot taken at construction is the first undo target. A change
// made after an undo discards the redo states; past MaxHistory the oldest
// snapshot is evicted.
type History struct {
	store    Store
	max      int
	debounce time.Duration

	mu          sync.Mutex
	snapshots   []map[string]any
	cursor      int
	timer       *time.Timer
	generation  uint64
	pending     bool
	restoring   bool
	closed      bool
	unsubscribe domain.Unsubscribe
}

// NewHistory subscribes to every change of store and seeds the history with
// its current snapshot.
func NewHistory(store Store, opts HistoryOptions) *History {
	mustStore(store, "history")
	if opts.MaxHistory <= 0 {
		opts.MaxHistory = DefaultMaxHistory
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	h := &History{
		store:     store,
		max:       opts.MaxHistory,
		debounce:  opts.Debounce,
		snapshots: []map[string]any{store.GetSnapshot()},
	}
	h.unsubscribe = store.SubscribeAll(h.onChange)
	return h
}

func (h *History) onChange(domain.ChangeEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.restoring || h.closed {
		return
	}
	h.pending = true
	if h.timer != nil {
		h.timer.Stop()
	}
	h.generation++
	generation := h.generation
	h.timer = time.AfterFunc(h.debounce, func() { h.fire(generation) })
}

// fire is the debounce callback. A timer superseded by a later change is
// ignored even if it already fired.
func (h *History) fire(generation uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if generation != h.generation {
		return
	}
	h.flushLocked()
}

// Flush records a pending snapshot immediately instead of waiting for the
// debounce timer.
func (h *History) Flush() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.flushLocked()
}

func (h *History) flushLocked() {
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	if !h.pending || h.closed {
		return
	}
	h.pending = false
	h.snapshots = append(h.snapshots[:h.cursor+1], h.store.GetSnapshot())
	if len(h.snapshots) > h.max {
		h.snapshots = append([]map[string]any(nil), h.snapshots[len(h.snapshots)-h.max:]...)
	}
	h.cursor = len(h.snapshots) - 1
}

// Undo restores the previous snapshot. It reports false when there is none.
func (h *History) Undo() bool {
	return h.move(-1)
}

// Redo restores the next snapshot. It reports false when there is none.
func (h *History) Redo() bool {
	return h.move(1)
}

func (h *History) move(delta int) bool {
	h.mu.Lock()
	h.flushLocked()
	target := h.cursor + delta
	if h.closed || target < 0 || target >= len(h.snapshots) {
		h.mu.Unlock()
		return false
	}
	h.cursor = target
	snapshot := h.snapshots[target]
	h.restoring = true
	h.mu.Unlock()

	// listeners run synchronously inside RestoreSnapshot; onChange skips them
	defer func() {
		h.mu.Lock()
		h.restoring = false
		h.mu.Unlock()
	}()
	h.store.RestoreSnapshot(snapshot)
	return true
}

// CanUndo reports whether Undo would restore an earlier snapshot, counting a
// pending debounced one.
func (h *History) CanUndo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cursor > 0 || h.pending
}

// CanRedo reports whether a previously undone snapshot can be restored.
func (h *History) CanRedo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.pending && h.cursor < len(h.snapshots)-1
}

// Len returns the number of recorded snapshots.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.snapshots)
}

// Clear drops every snapshot and starts over from the current store state.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	h.pending = false
	h.snapshots = []map[string]any{h.store.GetSnapshot()}
	h.cursor = 0
}

// Close stops recording and cancels a pending snapshot.
func (h *History) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	h.pending = false
	h.mu.Unlock()
	h.unsubscribe()
}
