package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"sync"
)

// fakeTable is an in-memory state_entries table reachable through
// database/sql. It understands exactly the statements Store issues.
type fakeTable struct {
	mu       sync.Mutex
	rows     map[string]string
	executed []string
	failPing error
	failExec error
	failRead error
}

func newFakeTable() *fakeTable { return &fakeTable{rows: map[string]string{}} }

func (f *fakeTable) db() *sql.DB { return sql.OpenDB(f) }

func (f *fakeTable) Connect(context.Context) (driver.Conn, error) { return fakeConn{f}, nil }
func (f *fakeTable) Driver() driver.Driver                        { return fakeDriver{f} }

func (f *fakeTable) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Sorted(maps.Keys(f.rows))
}

func (f *fakeTable) exec(query string, args []driver.NamedValue) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executed = append(f.executed, query)
	if f.failExec != nil {
		return f.failExec
	}
	switch query {
	case CreateTableSQL:
	case UpsertSQL:
		f.rows[args[0].Value.(string)] = args[1].Value.(string)
	case DeleteKeySQL:
		delete(f.rows, args[0].Value.(string))
	case DeletePrefixSQL:
		prefix := args[0].Value.(string)
		for k := range f.rows {
			if strings.HasPrefix(k, prefix) {
				delete(f.rows, k)
			}
		}
	default:
		return fmt.Errorf("fake: unexpected exec %q", query)
	}
	return nil
}

func (f *fakeTable) query(query string, args []driver.NamedValue) (driver.Rows, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failRead != nil {
		return nil, f.failRead
	}
	if query != SelectPrefixSQL {
		return nil, fmt.Errorf("fake: unexpected query %q", query)
	}
	prefix := args[0].Value.(string)
	out := &fakeRows{}
	for k, v := range f.rows {
		if strings.HasPrefix(k, prefix) {
			out.data = append(out.data, [2]string{k, v})
		}
	}
	slices.SortFunc(out.data, func(a, b [2]string) int { return strings.Compare(a[0], b[0]) })
	return out, nil
}

type fakeDriver struct{ f *fakeTable }

func (d fakeDriver) Open(string) (driver.Conn, error) { return fakeConn{d.f}, nil }

type fakeConn struct{ f *fakeTable }

func (c fakeConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("fake: prepared statements unsupported")
}
func (c fakeConn) Close() error              { return nil }
func (c fakeConn) Begin() (driver.Tx, error) { return nil, errors.New("fake: transactions unsupported") }

func (c fakeConn) Ping(context.Context) error { return c.f.failPing }

func (c fakeConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	if err := c.f.exec(query, args); err != nil {
		return nil, err
	}
	return driver.RowsAffected(1), nil
}

func (c fakeConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	return c.f.query(query, args)
}

type fakeRows struct {
	data [][2]string
	next int
}

func (r *fakeRows) Columns() []string { return []string{"state_key", "payload"} }
func (r *fakeRows) Close() error      { return nil }

func (r *fakeRows) Next(dest []driver.Value) error {
	if r.next >= len(r.data) {
		return io.EOF
	}
	dest[0], dest[1] = r.data[r.next][0], r.data[r.next][1]
	r.next++
	return nil
}
