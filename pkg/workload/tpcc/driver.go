// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package tpcc

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/tpccbench/pkg/util/log"
	"github.com/cockroachdb/tpccbench/pkg/workload"
	"github.com/cockroachdb/tpccbench/pkg/workload/histogram"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// maxLatency is the highest latency the histograms track.
const maxLatency = 100 * time.Second

// Run executes the benchmark described by cfg, which must have been
// validated, against the databases of pool. Progress and the final report
// are written to out.
func Run(
	ctx context.Context, cfg *Config, pool *workload.RoundRobinPool, out io.Writer,
) (Report, error) {
	// Every terminal owns one connection for the whole session.
	conns := make([]Conn, cfg.Terminals)
	defer func() {
		for _, c := range conns {
			if c != nil {
				c.Release()
			}
		}
	}()
	g, gCtx := errgroup.WithContext(ctx)
	for i := range conns {
		i := i
		g.Go(func() error {
			c, err := pool.Acquire(gCtx)
			if err != nil {
				return errors.Wrapf(err, "terminal %d", i+1)
			}
			conns[i] = newPgxConn(c, cfg.txOpts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}
	log.Infof(ctx, "%d terminals connected", len(conns))

	path := cfg.ResultFile
	if path == "" {
		path = defaultResultFile(time.Now())
	}
	sink, err := createCSVSink(path)
	if err != nil {
		return Report{}, err
	}
	log.Infof(ctx, "writing results to %s", path)

	rep, runErr := runTerminals(ctx, cfg, conns, sink, out)
	return rep, errors.CombineErrors(runErr, sink.Close())
}

// runTerminals runs one terminal per connection for cfg.Duration and returns
// the report of the run. A terminal that fails does not stop the others; the
// first such failure is returned along with the report.
func runTerminals(
	ctx context.Context, cfg *Config, conns []Conn, sink ResultSink, out io.Writer,
) (Report, error) {
	aud := newAuditor(cfg.Warehouses, cfg.Mix)
	agg := newAggregator(len(conns))

	bgCtx, cancelBackground := context.WithCancel(ctx)
	defer cancelBackground()

	var m *metrics
	if cfg.PrometheusPort > 0 {
		m = newMetrics()
		go func() {
			if err := m.serve(bgCtx, cfg.PrometheusPort); err != nil {
				log.Warningf(ctx, "%v", err)
			}
		}()
	}
	var limiter *rate.Limiter
	if cfg.MaxRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.MaxRate), 1)
	}

	reg := histogram.NewRegistry(maxLatency)
	rep := newReporter(cfg, reg, agg, out)
	if cfg.HistogramsFile != "" {
		f, err := os.Create(cfg.HistogramsFile)
		if err != nil {
			return Report{}, errors.Wrap(err, "creating histogram file")
		}
		defer func() { _ = f.Close() }()
		rep.snapshots = histogram.NewSnapshotWriter(f)
	}

	s := newSession()
	// A plain group: a failing terminal must not cancel the others.
	var g errgroup.Group
	for i, conn := range conns {
		t := newTerminal(i, cfg, conn, terminalDeps{
			auditor:  aud,
			hists:    reg.GetHandle(),
			counters: agg.slot(i),
			sink:     sink,
			metrics:  m,
			limiter:  limiter,
		})
		g.Go(func() error {
			if err := t.run(ctx, s); err != nil {
				log.Errorf(ctx, "terminal %d stopped: %v", t.id+1, err)
				return err
			}
			return nil
		})
	}

	start := time.Now()
	log.Infof(ctx, "starting %d terminals on %d warehouses for %s",
		len(conns), cfg.warehouses.len(), cfg.Duration)
	s.begin(start)
	timer := time.AfterFunc(cfg.Duration, func() {
		s.stop.Store(true)
	})
	defer timer.Stop()

	reporterDone := make(chan struct{})
	go func() {
		defer close(reporterDone)
		rep.run(bgCtx, start)
	}()

	runErr := g.Wait()
	elapsed := time.Since(start)
	cancelBackground()
	<-reporterDone

	report := rep.finish(ctx, elapsed)
	report.Print(out)
	if cfg.Audit {
		sharded := cfg.Sharding != ShardingNone && cfg.ShardCount > 1
		if !aud.runChecks(out, sharded) {
			log.Warningf(ctx, "some audit checks failed")
		}
	}
	return report, runErr
}
