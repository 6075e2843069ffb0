// Package testutil provides a recording stub database for postgres store tests.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
)

var stubSeq atomic.Int64

// StubConn records statements issued by the item store and keeps inserted
// rows per table so simple keyed lookups can be answered.
type StubConn struct {
	mu sync.Mutex

	Execs   []string
	Queries []string
	Tables  map[string][]map[string]any

	FailPing  bool
	FailExec  bool
	FailBegin bool
	// DuplicateErr is returned when an insert repeats the first column value
	// of an existing row.
	DuplicateErr error
}

// NewStubDB registers a uniquely named driver and opens a sql.DB on it.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{Tables: make(map[string][]map[string]any)}
	name := fmt.Sprintf("stubpg%d", stubSeq.Add(1))
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, conn
}

// Opener returns a function shaped like sql.Open that ignores its arguments
// and hands out db.
func Opener(db *sql.DB) func(string, string) (*sql.DB, error) {
	return func(string, string) (*sql.DB, error) { return db, nil }
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
	if c.FailPing {
		return fmt.Errorf("ping fail")
	}
	return nil
}

// BeginTx implements driver.ConnBeginTx.
func (c *StubConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	if c.FailBegin {
		return nil, fmt.Errorf("begin fail")
	}
	return stubTx{}, nil
}

// ExecContext implements driver.ExecerContext.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Execs = append(c.Execs, query)
	if c.FailExec {
		return nil, fmt.Errorf("exec fail")
	}
	upper := strings.ToUpper(strings.TrimSpace(query))
	switch {
	case strings.HasPrefix(upper, "INSERT INTO"):
		table, cols, err := parseInsert(query)
		if err != nil {
			return nil, err
		}
		if len(cols) != len(args) {
			return nil, fmt.Errorf("column/arg mismatch for %s", table)
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = args[i].Value
		}
		for _, existing := range c.Tables[table] {
			if existing[cols[0]] == row[cols[0]] {
				if c.DuplicateErr != nil {
					return nil, c.DuplicateErr
				}
				return driver.RowsAffected(0), nil
			}
		}
		c.Tables[table] = append(c.Tables[table], row)
		return driver.RowsAffected(1), nil
	case strings.HasPrefix(upper, "DELETE FROM"):
		table, col, err := parseWhere(query, "delete from ")
		if err != nil {
			return nil, err
		}
		if len(args) == 0 {
			return nil, fmt.Errorf("missing args for delete %s", table)
		}
		var kept []map[string]any
		var removed int64
		for _, row := range c.Tables[table] {
			if row[col] == args[0].Value {
				removed++
				continue
			}
			kept = append(kept, row)
		}
		c.Tables[table] = kept
		return driver.RowsAffected(removed), nil
	}
	return driver.RowsAffected(1), nil
}

// QueryContext implements driver.QueryerContext. A single equality predicate
// on the first argument is honoured; everything else returns every row.
func (c *StubConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Queries = append(c.Queries, query)
	table, cols, where, err := parseSelect(query)
	if err != nil {
		return nil, err
	}
	values := make([][]driver.Value, 0, len(c.Tables[table]))
	for _, row := range c.Tables[table] {
		if where != "" && len(args) > 0 && row[where] != args[0].Value {
			continue
		}
		vals := make([]driver.Value, len(cols))
		for i, col := range cols {
			vals[i] = row[col]
		}
		values = append(values, vals)
	}
	return &stubRows{cols: cols, rows: values}, nil
}

type stubTx struct{}

func (stubTx) Commit() error   { return nil }
func (stubTx) Rollback() error { return nil }

type stubRows struct {
	cols []string
	rows [][]driver.Value
	idx  int
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}

func parseInsert(query string) (string, []string, error) {
	up := strings.ToUpper(query)
	intoIdx := strings.Index(up, "INTO ")
	if intoIdx == -1 {
		return "", nil, fmt.Errorf("cannot parse insert: %s", query)
	}
	rest := strings.TrimSpace(query[intoIdx+len("INTO "):])
	open := strings.Index(rest, "(")
	closeIdx := strings.Index(rest, ")")
	if open == -1 || closeIdx == -1 || closeIdx <= open {
		return "", nil, fmt.Errorf("cannot parse insert: %s", query)
	}
	table := strings.ToLower(strings.TrimSpace(rest[:open]))
	return table, splitColumns(rest[open+1 : closeIdx]), nil
}

// parseWhere extracts the table and the first predicate column following prefix.
func parseWhere(query, prefix string) (string, string, error) {
	lower := strings.ToLower(strings.TrimSpace(query))
	if !strings.HasPrefix(lower, prefix) {
		return "", "", fmt.Errorf("cannot parse %q: %s", strings.TrimSpace(prefix), query)
	}
	rest := lower[len(prefix):]
	whereIdx := strings.Index(rest, " where ")
	if whereIdx == -1 {
		return strings.Fields(rest)[0], "", nil
	}
	table := strings.TrimSpace(rest[:whereIdx])
	pred := strings.TrimSpace(rest[whereIdx+len(" where "):])
	col, _, ok := strings.Cut(pred, "=")
	if !ok {
		return table, "", nil
	}
	return table, strings.TrimSpace(col), nil
}

func parseSelect(query string) (string, []string, string, error) {
	lower := strings.ToLower(strings.TrimSpace(query))
	if !strings.HasPrefix(lower, "select ") {
		return "", nil, "", fmt.Errorf("cannot parse select: %s", query)
	}
	fromIdx := strings.Index(lower, " from ")
	if fromIdx == -1 {
		return "", nil, "", fmt.Errorf("cannot parse select: %s", query)
	}
	cols := splitColumns(lower[len("select "):fromIdx])
	table, where, err := parseWhere(lower[fromIdx+1:], "from ")
	if err != nil {
		return "", nil, "", err
	}
	return strings.Fields(table)[0], cols, where, nil
}

func splitColumns(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		out = append(out, strings.ToLower(strings.TrimSpace(part)))
	}
	return out
}
