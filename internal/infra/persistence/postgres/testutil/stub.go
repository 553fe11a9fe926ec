// Package testutil provides a stub records database for postgres store tests.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
)

// StubConn understands the records statements of the postgres store. Writes
// issued inside a transaction become visible on commit.
type StubConn struct {
	Execs      []string
	Records    map[string]map[string]string
	FailExec   bool
	FailBegin  bool
	FailCommit bool

	pending []stubWrite
	inTx    bool
}

type stubWrite struct {
	kind, key, fields string
	delete            bool
}

// NewStubDB registers a sql.DB backed by an in-memory stub connection.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{Records: make(map[string]map[string]string)}
	name := fmt.Sprintf("stubpg%d", time.Now().UnixNano())
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, conn
}

// Len returns the number of committed rows.
func (c *StubConn) Len() int {
	n := 0
	for _, rows := range c.Records {
		n += len(rows)
	}
	return n
}

type stubDriver struct {
	conn *StubConn
}

func (d *stubDriver) Open(string) (driver.Conn, error) {
	return d.conn, nil
}

// Prepare implements driver.Conn.
func (c *StubConn) Prepare(string) (driver.Stmt, error) { return nil, fmt.Errorf("not implemented") }

// Close implements driver.Conn.
func (c *StubConn) Close() error { return nil }

// Begin implements driver.Conn.
func (c *StubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// Ping implements driver.Pinger.
func (c *StubConn) Ping(context.Context) error {
	if c.FailExec {
		return fmt.Errorf("ping fail")
	}
	return nil
}

// BeginTx implements driver.ConnBeginTx.
func (c *StubConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	if c.FailBegin {
		return nil, fmt.Errorf("begin fail")
	}
	c.inTx = true
	c.pending = nil
	return &stubTx{conn: c}, nil
}

// ExecContext implements driver.ExecerContext.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.Execs = append(c.Execs, query)
	if c.FailExec {
		return nil, fmt.Errorf("exec fail")
	}
	var w stubWrite
	switch statement(query) {
	case "INSERT":
		if len(args) != 3 {
			return nil, fmt.Errorf("upsert wants 3 args, got %d", len(args))
		}
		w = stubWrite{kind: str(args[0]), key: str(args[1]), fields: str(args[2])}
	case "DELETE":
		if len(args) != 2 {
			return nil, fmt.Errorf("delete wants 2 args, got %d", len(args))
		}
		w = stubWrite{kind: str(args[0]), key: str(args[1]), delete: true}
	default:
		return driver.RowsAffected(0), nil
	}
	if c.inTx {
		c.pending = append(c.pending, w)
	} else {
		c.apply(w)
	}
	return driver.RowsAffected(1), nil
}

// QueryContext implements driver.QueryerContext for the select-by-kind query.
func (c *StubConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	if statement(query) != "SELECT" || len(args) != 1 {
		return nil, fmt.Errorf("unsupported query: %s", query)
	}
	rows := c.Records[str(args[0])]
	keys := make([]string, 0, len(rows))
	for key := range rows {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	values := make([][]driver.Value, 0, len(keys))
	for _, key := range keys {
		values = append(values, []driver.Value{key, rows[key]})
	}
	return &stubRows{rows: values}, nil
}

func (c *StubConn) apply(w stubWrite) {
	if w.delete {
		delete(c.Records[w.kind], w.key)
		return
	}
	if c.Records[w.kind] == nil {
		c.Records[w.kind] = make(map[string]string)
	}
	c.Records[w.kind][w.key] = w.fields
}

func statement(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[0])
}

func str(v driver.NamedValue) string {
	switch val := v.Value.(type) {
	case string:
		return val
	case []byte:
		return string(val)
	default:
		return fmt.Sprint(val)
	}
}

type stubTx struct {
	conn *StubConn
}

func (t *stubTx) Commit() error {
	defer t.reset()
	if t.conn.FailCommit {
		return fmt.Errorf("commit fail")
	}
	for _, w := range t.conn.pending {
		t.conn.apply(w)
	}
	return nil
}

func (t *stubTx) Rollback() error {
	t.reset()
	return nil
}

func (t *stubTx) reset() {
	t.conn.inTx = false
	t.conn.pending = nil
}

type stubRows struct {
	rows [][]driver.Value
	idx  int
}

func (r *stubRows) Columns() []string { return []string{"key", "fields"} }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}
