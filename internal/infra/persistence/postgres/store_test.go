package postgres

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
)

func newFakeStore(t *testing.T) (*Store, *fakeTable) {
	t.Helper()
	table := newFakeTable()
	store, err := FromDB(context.Background(), table.db())
	if err != nil {
		t.Fatalf("FromDB: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, table
}

func TestFromDBCreatesEntriesTable(t *testing.T) {
	_, table := newFakeStore(t)
	if len(table.executed) != 1 || table.executed[0] != CreateTableSQL {
		t.Fatalf("expected only the DDL, got %q", table.executed)
	}
}

func TestSaveUpsertsAndEntriesFilterByPrefix(t *testing.T) {
	ctx := context.Background()
	store, table := newFakeStore(t)
	for _, kv := range [][2]string{
		{"mfe-state:b", `2`},
		{"mfe-state:a", `1`},
		{"mfe-state:a", `{"x":1}`},
		{"other:a", `3`},
	} {
		if err := store.Save(ctx, kv[0], []byte(kv[1])); err != nil {
			t.Fatalf("save %s: %v", kv[0], err)
		}
	}
	if got := table.keys(); !slices.Equal(got, []string{"mfe-state:a", "mfe-state:b", "other:a"}) {
		t.Fatalf("unexpected rows %v", got)
	}
	entries, err := store.Entries(ctx, "mfe-state:")
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %+v", entries)
	}
	if entries[0].Key != "mfe-state:a" || string(entries[0].Payload) != `{"x":1}` {
		t.Fatalf("unexpected first entry %s=%s", entries[0].Key, entries[0].Payload)
	}
	if entries[1].Key != "mfe-state:b" {
		t.Fatalf("entries not ordered by key: %+v", entries)
	}
}

func TestRemoveAndClear(t *testing.T) {
	ctx := context.Background()
	store, table := newFakeStore(t)
	for _, key := range []string{"p:1", "p:2", "p:3", "q:1"} {
		if err := store.Save(ctx, key, []byte(`null`)); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	if err := store.Remove(ctx, "p:1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if got := table.keys(); !slices.Equal(got, []string{"p:2", "p:3", "q:1"}) {
		t.Fatalf("after remove: %v", got)
	}
	if err := store.Clear(ctx, "p:"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if got := table.keys(); !slices.Equal(got, []string{"q:1"}) {
		t.Fatalf("expected only q:1 to remain, got %v", got)
	}
}

func TestErrorsAreWrapped(t *testing.T) {
	ctx := context.Background()
	store, table := newFakeStore(t)
	boom := errors.New("boom")

	table.failExec = boom
	for name, err := range map[string]error{
		"upsert k": store.Save(ctx, "k", []byte(`1`)),
		"delete k": store.Remove(ctx, "k"),
		"clear k":  store.Clear(ctx, "k"),
	} {
		if !errors.Is(err, boom) || !strings.HasPrefix(err.Error(), name) {
			t.Fatalf("expected %q wrapping boom, got %v", name, err)
		}
	}

	table.failExec = nil
	table.failRead = boom
	if _, err := store.Entries(ctx, ""); !errors.Is(err, boom) {
		t.Fatalf("expected query error, got %v", err)
	}
}

func TestFromDBPingAndDDLErrors(t *testing.T) {
	table := newFakeTable()
	table.failPing = errors.New("refused")
	db := table.db()
	defer db.Close()
	if _, err := FromDB(context.Background(), db); err == nil || !strings.Contains(err.Error(), "ping postgres") {
		t.Fatalf("expected ping error, got %v", err)
	}

	table.failPing = nil
	table.failExec = errors.New("denied")
	if _, err := FromDB(context.Background(), db); err == nil || !strings.Contains(err.Error(), "ensure state_entries") {
		t.Fatalf("expected ddl error, got %v", err)
	}
}
