// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package tpcc

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Rows is the result of a query.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

// Tx is the unit of work the transaction profiles run against. A Tx is used
// by a single goroutine.
type Tx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	// ExecBatch executes sql once per argument tuple in a single round trip.
	ExecBatch(ctx context.Context, sql string, args [][]any) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Conn begins units of work on one session.
type Conn interface {
	Begin(ctx context.Context) (Tx, error)
	Release()
}

// pgxConn is a Conn holding one pooled pgx connection for its lifetime.
type pgxConn struct {
	conn   *pgxpool.Conn
	txOpts pgx.TxOptions
}

var _ Conn = (*pgxConn)(nil)

func newPgxConn(conn *pgxpool.Conn, txOpts pgx.TxOptions) *pgxConn {
	return &pgxConn{conn: conn, txOpts: txOpts}
}

func (c *pgxConn) Begin(ctx context.Context) (Tx, error) {
	tx, err := c.conn.BeginTx(ctx, c.txOpts)
	if err != nil {
		return nil, errors.Wrap(err, "begin failed")
	}
	return pgxTx{tx}, nil
}

func (c *pgxConn) Release() {
	c.conn.Release()
}

// pgxTx adapts a pgx.Tx to the Tx interface.
type pgxTx struct {
	pgx.Tx
}

var _ Tx = pgxTx{}

func (t pgxTx) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	return t.Tx.Query(ctx, sql, args...)
}

func (t pgxTx) ExecBatch(ctx context.Context, sql string, args [][]any) error {
	if len(args) == 0 {
		return nil
	}
	var b pgx.Batch
	for _, a := range args {
		b.Queue(sql, a...)
	}
	br := t.Tx.SendBatch(ctx, &b)
	for range args {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return err
		}
	}
	return br.Close()
}

const (
	pgcodeSerializationFailure = "40001"
	pgcodeDeadlockDetected     = "40P01"
)

// isRetryableConflict reports whether err is a serialization failure or a
// deadlock reported by the server.
func isRetryableConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgcodeSerializationFailure || pgErr.Code == pgcodeDeadlockDetected
}
