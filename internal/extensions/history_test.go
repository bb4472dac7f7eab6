package extensions_test

import (
	"testing"
	"time"

	"mfestate/internal/extensions"
)

func TestHistoryBoundsEvictOldest(t *testing.T) {
	s := newStore(t)
	h := extensions.NewHistory(s, extensions.HistoryOptions{MaxHistory: 2, Debounce: time.Hour})
	defer h.Close()

	for i := 1; i <= 3; i++ {
		s.Set("count", i)
		h.Flush()
	}
	if h.Len() != 2 {
		t.Fatalf("expected 2 retained snapshots, got %d", h.Len())
	}
	if !h.Undo() {
		t.Fatalf("expected one undo step")
	}
	if s.Get("count") != 2 {
		t.Fatalf("expected count 2 after undo, got %v", s.Get("count"))
	}
	if h.CanUndo() || h.Undo() {
		t.Fatalf("expected exactly one undo step")
	}
}

func TestHistoryDebounceCoalesces(t *testing.T) {
	s := newStore(t)
	h := extensions.NewHistory(s, extensions.HistoryOptions{Debounce: 20 * time.Millisecond})
	defer h.Close()

	s.Set("a", 1)
	s.Set("a", 2)
	s.Set("a", 3)
	deadline := time.Now().Add(2 * time.Second)
	for h.Len() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if h.Len() != 2 {
		t.Fatalf("expected burst coalesced into one snapshot, got %d snapshots", h.Len())
	}
	if !h.Undo() || s.Get("a") != nil {
		t.Fatalf("expected undo back to empty store, got %v", s.Get("a"))
	}
}

func TestHistoryUndoRedoAndTruncate(t *testing.T) {
	s := newStore(t)
	h := extensions.NewHistory(s, extensions.HistoryOptions{Debounce: time.Hour})
	defer h.Close()

	s.Set("v", "one")
	h.Flush()
	s.Set("v", "two")
	h.Flush()

	if !h.Undo() || s.Get("v") != "one" {
		t.Fatalf("undo: got %v", s.Get("v"))
	}
	if !h.CanRedo() {
		t.Fatalf("expected redo after undo")
	}
	if !h.Redo() || s.Get("v") != "two" {
		t.Fatalf("redo: got %v", s.Get("v"))
	}
	if h.Redo() {
		t.Fatalf("redo past the end succeeded")
	}

	h.Undo()
	s.Set("v", "three")
	if h.CanRedo() {
		t.Fatalf("pending edit after undo must discard redo")
	}
	h.Flush()
	if h.CanRedo() || h.Len() != 3 {
		t.Fatalf("expected future truncated, len %d", h.Len())
	}
}

func TestHistoryIgnoresOwnRestores(t *testing.T) {
	s := newStore(t)
	h := extensions.NewHistory(s, extensions.HistoryOptions{Debounce: time.Hour})
	defer h.Close()

	s.Set("v", 1)
	h.Flush()
	h.Undo()
	h.Flush()
	if h.Len() != 2 || !h.CanRedo() {
		t.Fatalf("restore was recorded as a new snapshot: len %d", h.Len())
	}
}

func TestHistoryUndoFlushesPending(t *testing.T) {
	s := newStore(t)
	h := extensions.NewHistory(s, extensions.HistoryOptions{Debounce: time.Hour})
	defer h.Close()

	s.Set("v", 1)
	if !h.CanUndo() {
		t.Fatalf("pending change should be undoable")
	}
	if !h.Undo() || s.Get("v") != nil {
		t.Fatalf("undo of pending change: got %v", s.Get("v"))
	}
}

func TestHistoryCloseStopsRecording(t *testing.T) {
	s := newStore(t)
	h := extensions.NewHistory(s, extensions.HistoryOptions{Debounce: time.Hour})
	h.Close()
	h.Close()
	s.Set("v", 1)
	h.Flush()
	if h.Len() != 1 || h.Undo() {
		t.Fatalf("closed history kept recording")
	}
}
