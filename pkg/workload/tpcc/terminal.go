// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package tpcc

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/logtags"
	"github.com/cockroachdb/tpccbench/pkg/util/log"
	"github.com/cockroachdb/tpccbench/pkg/workload/histogram"
	"golang.org/x/time/rate"
)

// tpccTx is one of the five transaction profiles. run generates the inputs of
// one transaction for home warehouse wID, executes it on tx and ends tx with
// a commit or a rollback. If run returns an error, tx may still be open and
// the caller rolls it back.
type tpccTx interface {
	run(ctx context.Context, tx Tx, wID int) (txResult, error)
}

// session is the state shared by the driver and all of its terminals.
type session struct {
	// start is closed once every terminal is connected.
	start chan struct{}
	// startTime is written before start is closed.
	startTime time.Time
	// stop is checked by terminals before each transaction.
	stop atomic.Bool
}

func newSession() *session {
	return &session{start: make(chan struct{})}
}

// begin releases the terminals.
func (s *session) begin(now time.Time) {
	s.startTime = now
	close(s.start)
}

// terminal runs transactions one at a time on its own connection.
type terminal struct {
	id   int
	cfg  *Config
	conn Conn
	rng  *randGen
	txs  [numTxTypes]tpccTx

	hists    *histogram.Histograms
	counters *terminalCounters
	sink     ResultSink
	// metrics and limiter are optional.
	metrics *metrics
	limiter *rate.Limiter

	// homeWID is the home warehouse of a terminal with a fixed warehouse.
	homeWID int
	// errEvery limits the logging of failures other than data integrity
	// violations, such as serialization conflicts.
	errEvery log.EveryN
}

type terminalDeps struct {
	auditor  *auditor
	hists    *histogram.Histograms
	counters *terminalCounters
	sink     ResultSink
	metrics  *metrics
	limiter  *rate.Limiter
}

// newTerminal creates the id-th terminal (0-indexed) on conn. cfg must have
// been validated.
func newTerminal(id int, cfg *Config, conn Conn, deps terminalDeps) *terminal {
	rng := newRandGen(cfg.Seed+uint64(id)+1, &cfg.nurand)
	t := &terminal{
		id:       id,
		cfg:      cfg,
		conn:     conn,
		rng:      rng,
		hists:    deps.hists,
		counters: deps.counters,
		sink:     deps.sink,
		metrics:  deps.metrics,
		limiter:  deps.limiter,
		errEvery: log.Every(time.Second),
	}
	t.txs[newOrderType] = createNewOrder(cfg, rng, deps.auditor)
	t.txs[paymentType] = createPayment(cfg, rng, deps.auditor)
	t.txs[orderStatusType] = createOrderStatus(cfg, rng, deps.auditor)
	t.txs[deliveryType] = createDelivery(cfg, rng, deps.auditor)
	t.txs[stockLevelType] = createStockLevel(cfg, rng, deps.auditor)
	if cfg.WarehouseFixed {
		t.homeWID = cfg.warehouses.forTerminal(id)
	}
	return t
}

// run waits for the session to start and then executes transactions until
// the session is stopped or ctx is canceled. Transaction failures are
// recorded and logged but never end the loop. A panic is returned as an
// error.
func (t *terminal) run(ctx context.Context, s *session) (retErr error) {
	ctx = logtags.AddTag(ctx, "T", t.id+1)
	defer func() {
		if r := recover(); r != nil {
			retErr = errors.Newf("terminal %d panicked: %v", t.id+1, r)
		}
	}()

	select {
	case <-s.start:
	case <-ctx.Done():
		return ctx.Err()
	}
	log.VEventf(ctx, 1, "terminal started")

	for !s.stop.Load() {
		if err := ctx.Err(); err != nil {
			return err
		}
		t.runOne(ctx, s.startTime)
	}
	return nil
}

// homeWarehouse returns the home warehouse of the next transaction.
func (t *terminal) homeWarehouse() int {
	if t.cfg.WarehouseFixed {
		return t.homeWID
	}
	return t.cfg.warehouses.random(t.rng.Rand)
}

// runOne executes a single transaction and accounts for it.
func (t *terminal) runOne(ctx context.Context, sessionStart time.Time) {
	typ := t.cfg.sampler.sample(t.rng.Rand)
	wID := t.homeWarehouse()
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return
		}
	}

	start := time.Now()
	res, err := t.execute(ctx, typ, wID)
	now := time.Now()
	latency := now.Sub(start)

	r := Result{
		Elapsed:   now.Sub(sessionStart),
		Latency:   latency,
		DBLatency: latency,
		Type:      typ,
		Rollback:  res.rollback,
		Skipped:   res.skipped,
		Error:     err != nil,
	}
	t.counters.record(typ, err != nil)
	if err != nil {
		ctx := logtags.AddTag(ctx, "w", wID)
		switch {
		case errors.Is(err, ErrDataIntegrity):
			// Integrity violations are never rate limited.
			log.Errorf(ctx, "%s data integrity violation: %v", typ, err)
		case t.errEvery.ShouldLog():
			log.Errorf(ctx, "%s failed: %v", typ, err)
		}
	} else {
		t.hists.Get(typ.String()).Record(latency)
	}
	if t.metrics != nil {
		t.metrics.record(r)
	}
	t.sink.Record(r)
}

func (t *terminal) execute(ctx context.Context, typ txType, wID int) (txResult, error) {
	tx, err := t.conn.Begin(ctx)
	if err != nil {
		return txResult{}, err
	}
	res, err := t.txs[typ].run(ctx, tx, wID)
	if err != nil {
		// The rollback error is secondary to err, and a transaction that
		// already ended reports one too.
		_ = tx.Rollback(ctx)
		return txResult{}, errors.Wrapf(err, "%s w_id=%d", typ, wID)
	}
	return res, nil
}
