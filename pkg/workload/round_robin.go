// Copyright 2019 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package workload

import (
	"context"
	gosql "database/sql"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RoundRobinPool is a set of pgx pools, one per database URL, that hands out
// connections from the pools in turn.
type RoundRobinPool struct {
	pools   []*pgxpool.Pool
	current atomic.Uint32
}

// NewRoundRobinPool creates one pool of at most maxConnsPerPool connections
// for each of urls.
func NewRoundRobinPool(
	ctx context.Context, urls []string, maxConnsPerPool int,
) (*RoundRobinPool, error) {
	if len(urls) == 0 {
		return nil, errors.New("no database URL given")
	}
	p := &RoundRobinPool{pools: make([]*pgxpool.Pool, 0, len(urls))}
	for _, url := range urls {
		cfg, err := pgxpool.ParseConfig(url)
		if err != nil {
			p.Close()
			return nil, errors.Wrapf(err, "parsing %s", url)
		}
		if maxConnsPerPool > 0 {
			cfg.MaxConns = int32(maxConnsPerPool)
		}
		pool, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			p.Close()
			return nil, errors.Wrapf(err, "connecting to %s", url)
		}
		p.pools = append(p.pools, pool)
	}
	return p, nil
}

// Get returns the next pool.
func (p *RoundRobinPool) Get() *pgxpool.Pool {
	return p.pools[(p.current.Add(1)-1)%uint32(len(p.pools))]
}

// Acquire takes a connection from the next pool that has one to spare.
func (p *RoundRobinPool) Acquire(ctx context.Context) (*pgxpool.Conn, error) {
	// Pools are sized for an even spread, but a pool may be full when
	// connections are acquired concurrently. Skip full pools before falling
	// back to waiting on one.
	pool := p.Get()
	for try := 1; try < len(p.pools); try++ {
		stat := pool.Stat()
		if stat.MaxConns()-stat.AcquiredConns() > 0 {
			break
		}
		pool = p.Get()
	}
	conn, err := pool.Acquire(ctx)
	return conn, errors.Wrap(err, "acquiring connection")
}

// Close closes all pools.
func (p *RoundRobinPool) Close() {
	for _, pool := range p.pools {
		pool.Close()
	}
}

// RoundRobinDB is a wrapper around *gosql.DB's that round robins individual
// queries among the different databases that it was created with.
type RoundRobinDB struct {
	handles []*gosql.DB
	current atomic.Uint32
}

// NewRoundRobinDB creates a RoundRobinDB from the input list of database
// connection URLs, opened with the named database/sql driver.
func NewRoundRobinDB(driver string, urls []string) (*RoundRobinDB, error) {
	if len(urls) == 0 {
		return nil, errors.New("no database URL given")
	}
	r := &RoundRobinDB{handles: make([]*gosql.DB, 0, len(urls))}
	for _, url := range urls {
		db, err := gosql.Open(driver, url)
		if err != nil {
			_ = r.Close()
			return nil, err
		}
		r.handles = append(r.handles, db)
	}
	return r, nil
}

func (db *RoundRobinDB) next() *gosql.DB {
	return db.handles[(db.current.Add(1)-1)%uint32(len(db.handles))]
}

// QueryRowContext executes (*gosql.DB).QueryRowContext on the next available
// DB.
func (db *RoundRobinDB) QueryRowContext(
	ctx context.Context, query string, args ...interface{},
) *gosql.Row {
	return db.next().QueryRowContext(ctx, query, args...)
}

// ExecContext executes (*gosql.DB).ExecContext on the next available DB.
func (db *RoundRobinDB) ExecContext(
	ctx context.Context, query string, args ...interface{},
) (gosql.Result, error) {
	return db.next().ExecContext(ctx, query, args...)
}

// Close closes all databases.
func (db *RoundRobinDB) Close() error {
	var err error
	for _, h := range db.handles {
		err = errors.CombineErrors(err, h.Close())
	}
	return err
}
