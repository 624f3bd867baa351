// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package tpcc

import (
	"context"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeResult is the scripted answer to one statement. rows answer queries,
// tag answers Exec.
type fakeResult struct {
	rows [][]any
	tag  string
	err  error
}

type fakeHandler func(args []any) fakeResult

// fakeCall is a statement seen by the fake, with whitespace collapsed.
type fakeCall struct {
	sql  string
	args []any
}

// fakeDB is a scripted stand-in for the database. Statements are answered by
// the first handler whose pattern is contained in the statement; a statement
// no handler matches fails.
type fakeDB struct {
	mu struct {
		sync.Mutex
		handlers []fakeRoute
		calls    []fakeCall
		commits  int
		rollback int
	}
	// trace enables recording of calls.
	trace bool
}

type fakeRoute struct {
	pattern string
	h       fakeHandler
}

func newFakeDB() *fakeDB {
	return &fakeDB{trace: true}
}

func normalizeSQL(sql string) string {
	return strings.Join(strings.Fields(sql), " ")
}

// on registers h for statements containing pattern.
func (db *fakeDB) on(pattern string, h fakeHandler) *fakeDB {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.mu.handlers = append(db.mu.handlers, fakeRoute{pattern: normalizeSQL(pattern), h: h})
	return db
}

// onRows answers statements containing pattern with fixed rows.
func (db *fakeDB) onRows(pattern string, rows ...[]any) *fakeDB {
	return db.on(pattern, func([]any) fakeResult { return fakeResult{rows: rows} })
}

// onTag answers statements containing pattern with a fixed command tag.
func (db *fakeDB) onTag(pattern, tag string) *fakeDB {
	return db.on(pattern, func([]any) fakeResult { return fakeResult{tag: tag} })
}

func (db *fakeDB) handle(sql string, args []any) fakeResult {
	sql = normalizeSQL(sql)
	db.mu.Lock()
	if db.trace {
		db.mu.calls = append(db.mu.calls, fakeCall{sql: sql, args: args})
	}
	var h fakeHandler
	for _, r := range db.mu.handlers {
		if strings.Contains(sql, r.pattern) {
			h = r.h
			break
		}
	}
	db.mu.Unlock()
	if h == nil {
		return fakeResult{err: errors.Newf("unexpected statement: %s", sql)}
	}
	return h(args)
}

// callsMatching returns the recorded calls containing pattern.
func (db *fakeDB) callsMatching(pattern string) []fakeCall {
	pattern = normalizeSQL(pattern)
	db.mu.Lock()
	defer db.mu.Unlock()
	var res []fakeCall
	for _, c := range db.mu.calls {
		if strings.Contains(c.sql, pattern) {
			res = append(res, c)
		}
	}
	return res
}

func (db *fakeDB) counts() (commits, rollbacks int) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.mu.commits, db.mu.rollback
}

// Begin implements Conn.
func (db *fakeDB) Begin(context.Context) (Tx, error) {
	return &fakeTx{db: db}, nil
}

// Release implements Conn.
func (db *fakeDB) Release() {}

type fakeTx struct {
	db   *fakeDB
	done bool
}

var _ Tx = (*fakeTx)(nil)

func (tx *fakeTx) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	res := tx.db.handle(sql, args)
	if res.err != nil {
		return pgconn.CommandTag{}, res.err
	}
	return pgconn.NewCommandTag(res.tag), nil
}

func (tx *fakeTx) Query(_ context.Context, sql string, args ...any) (Rows, error) {
	res := tx.db.handle(sql, args)
	if res.err != nil {
		return nil, res.err
	}
	return &fakeRows{rows: res.rows}, nil
}

func (tx *fakeTx) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	res := tx.db.handle(sql, args)
	if res.err != nil {
		return fakeRow{err: res.err}
	}
	if len(res.rows) == 0 {
		return fakeRow{err: pgx.ErrNoRows}
	}
	return fakeRow{values: res.rows[0]}
}

func (tx *fakeTx) ExecBatch(ctx context.Context, sql string, args [][]any) error {
	for _, a := range args {
		if _, err := tx.Exec(ctx, sql, a...); err != nil {
			return err
		}
	}
	return nil
}

func (tx *fakeTx) Commit(context.Context) error {
	if tx.done {
		return pgx.ErrTxClosed
	}
	tx.done = true
	tx.db.mu.Lock()
	defer tx.db.mu.Unlock()
	tx.db.mu.commits++
	return nil
}

func (tx *fakeTx) Rollback(context.Context) error {
	if tx.done {
		return pgx.ErrTxClosed
	}
	tx.done = true
	tx.db.mu.Lock()
	defer tx.db.mu.Unlock()
	tx.db.mu.rollback++
	return nil
}

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return scanValues(r.values, dest)
}

type fakeRows struct {
	rows [][]any
	cur  int
}

func (r *fakeRows) Next() bool {
	if r.cur >= len(r.rows) {
		return false
	}
	r.cur++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	return scanValues(r.rows[r.cur-1], dest)
}

func (r *fakeRows) Err() error { return nil }

func (r *fakeRows) Close() {}

func scanValues(values, dest []any) error {
	if len(values) != len(dest) {
		return errors.Newf("scanning %d values into %d destinations", len(values), len(dest))
	}
	for i := range dest {
		if err := assign(dest[i], values[i]); err != nil {
			return errors.Wrapf(err, "column %d", i)
		}
	}
	return nil
}

// assign stores v in the pointer dest. A nil v sets dest to its zero value,
// which is how NULL reaches pointer destinations.
func assign(dest, v any) error {
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Ptr || dv.IsNil() {
		return errors.Newf("cannot scan into %T", dest)
	}
	target := dv.Elem()
	if v == nil {
		target.Set(reflect.Zero(target.Type()))
		return nil
	}
	if target.Kind() == reflect.Ptr {
		p := reflect.New(target.Type().Elem())
		if err := assign(p.Interface(), v); err != nil {
			return err
		}
		target.Set(p)
		return nil
	}
	vv := reflect.ValueOf(v)
	if vv.Kind() != target.Kind() && !(isNumber(vv.Kind()) && isNumber(target.Kind())) {
		return errors.Newf("cannot scan %T into %s", v, target.Type())
	}
	target.Set(vv.Convert(target.Type()))
	return nil
}

func isNumber(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int32, reflect.Int64, reflect.Float64:
		return true
	}
	return false
}

// happyDB answers every statement of every transaction profile with valid
// rows for a database of numWarehouses warehouses whose new-order backlog is
// empty.
func happyDB(trace bool) *fakeDB {
	db := newFakeDB()
	db.trace = trace
	ok := fakeResult{tag: "UPDATE 1"}
	okFn := func([]any) fakeResult { return ok }
	stockRow := []any{50, "stock ORIGINAL"}
	for i := 0; i < numDistrictsPerWH; i++ {
		stockRow = append(stockRow, "dist-info-xxxxxxxxxxxxxx")
	}

	// New-Order.
	db.onRows("SELECT d_tax, d_next_o_id", []any{0.1, 3001})
	db.onRows("SELECT c_discount, c_last, c_credit, w_tax", []any{0.05, "BARBARBAR", goodCredit, 0.07})
	db.on("SELECT i_price, i_name, i_data", func(args []any) fakeResult {
		if id := args[0].(int); id > numItems {
			return fakeResult{}
		}
		return fakeResult{rows: [][]any{{9.99, "item", "item ORIGINAL"}}}
	})
	db.onRows("SELECT s_quantity, s_data", stockRow)
	db.on("INSERT INTO bmsql_oorder", okFn)
	db.on("INSERT INTO bmsql_new_order", okFn)
	db.on("INSERT INTO bmsql_order_line", okFn)
	db.on("UPDATE bmsql_stock", okFn)

	// Payment.
	db.onRows("SELECT d_name, d_street_1", []any{"dist", "s1", "s2", "city", "NY", "123411111"})
	db.onRows("SELECT w_name, w_street_1", []any{"whse", "s1", "s2", "city", "NY", "123411111"})
	db.onRows("SELECT c_id FROM bmsql_customer", []any{1}, []any{2}, []any{3})
	db.onRows("SELECT c_first, c_middle, c_last, c_street_1",
		[]any{"first", "OE", "BARBARBAR", "s1", "s2", "city", "NY", "123411111",
			"0123456789012345", time.Unix(0, 0), goodCredit, 50000.0, 0.1, -10.0})
	db.on("UPDATE bmsql_district", okFn)
	db.on("UPDATE bmsql_warehouse", okFn)
	db.on("UPDATE bmsql_customer", okFn)
	db.on("INSERT INTO bmsql_history", okFn)

	// Order-Status.
	db.onRows("SELECT c_first, c_middle, c_last, c_balance", []any{"first", "OE", "BARBARBAR", -10.0})
	db.onRows("SELECT o_id, o_entry_d, o_carrier_id", []any{42, time.Unix(0, 0), nil})
	db.onRows("SELECT ol_i_id, ol_supply_w_id",
		[]any{7, 1, 5, 1.5, nil}, []any{8, 1, 5, 2.5, nil})

	// Delivery.
	db.onRows("SELECT no_o_id")

	// Stock-Level.
	db.onRows("SELECT count(*) AS low_stock", []any{3})
	return db
}
