// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package tpcc

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/VividCortex/ewma"
	"github.com/codahale/hdrhistogram"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/tpccbench/pkg/util/log"
	"github.com/cockroachdb/tpccbench/pkg/workload/histogram"
	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
)

// tpmCPerWarehouse is the maximum tpmC a warehouse can produce with the
// keying and think times of the benchmark.
const tpmCPerWarehouse = 12.86

const (
	tickHeader  = `_elapsed_____type__ops/sec(inst)___ops/sec(cum)__p50(ms)__p95(ms)__p99(ms)_pMax(ms)`
	headerEvery = 20
)

// reporter prints throughput and latency every report interval and produces
// the final report.
type reporter struct {
	cfg *Config
	reg *histogram.Registry
	agg *aggregator
	out io.Writer
	// snapshots is optional.
	snapshots *histogram.SnapshotWriter

	start        time.Time
	ticks        int
	lastNewOrder uint64
	lastTick     time.Time
	tpmC         ewma.MovingAverage

	// cumulative holds the latest cumulative histogram of each type.
	cumulative map[string]*hdrhistogram.Histogram
}

func newReporter(
	cfg *Config, reg *histogram.Registry, agg *aggregator, out io.Writer,
) *reporter {
	return &reporter{
		cfg:        cfg,
		reg:        reg,
		agg:        agg,
		out:        out,
		tpmC:       ewma.NewMovingAverage(),
		cumulative: make(map[string]*hdrhistogram.Histogram),
	}
}

// run prints a report every interval until ctx is done.
func (r *reporter) run(ctx context.Context, start time.Time) {
	r.start, r.lastTick = start, start
	ticker := time.NewTicker(r.cfg.ReportInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.tick(ctx, now)
		}
	}
}

func (r *reporter) tick(ctx context.Context, now time.Time) {
	if r.ticks%headerEvery == 0 {
		fmt.Fprintln(r.out, tickHeader)
	}
	r.ticks++
	r.reg.Tick(func(t histogram.Tick) {
		r.recordTick(ctx, t)
		h := t.Hist
		fmt.Fprintf(r.out, "%7.1fs %12s %14.1f %14.1f %8.1f %8.1f %8.1f %8.1f\n",
			now.Sub(r.start).Seconds(),
			t.Name,
			t.Ops(),
			t.CumulativeOps(),
			time.Duration(h.ValueAtQuantile(50)).Seconds()*1000,
			time.Duration(h.ValueAtQuantile(95)).Seconds()*1000,
			time.Duration(h.ValueAtQuantile(99)).Seconds()*1000,
			time.Duration(h.ValueAtQuantile(100)).Seconds()*1000,
		)
	})

	sum := r.agg.sum()
	if elapsed := now.Sub(r.lastTick); elapsed > 0 {
		r.tpmC.Add(float64(sum.newOrder-r.lastNewOrder) / elapsed.Minutes())
	}
	r.lastNewOrder, r.lastTick = sum.newOrder, now
	log.Infof(ctx, "tpmC %.1f (smoothed), %s transactions, %s errors",
		r.tpmC.Value(), humanize.Comma(int64(sum.total)), humanize.Comma(int64(sum.errors)))
}

// recordTick keeps the cumulative histogram of t and writes its snapshot.
func (r *reporter) recordTick(ctx context.Context, t histogram.Tick) {
	r.cumulative[t.Name] = histogram.Copy(t.Cumulative)
	if r.snapshots != nil {
		if err := r.snapshots.Write(t); err != nil {
			log.Warningf(ctx, "writing histogram snapshot: %v", err)
		}
	}
}

// Report summarizes a finished run.
type Report struct {
	Elapsed    time.Duration
	Warehouses int
	Total      uint64
	NewOrders  uint64
	Errors     uint64
	// TpmC is the number of New-Orders per minute.
	TpmC float64
	// TpmTotal is the number of transactions of all types per minute.
	TpmTotal float64
	// Efficiency is TpmC as a percentage of the maximum for the number of
	// warehouses.
	Efficiency float64

	ByType [numTxTypes]TypeReport
}

// TypeReport summarizes the transactions of one type.
type TypeReport struct {
	Count uint64
	// Share is the percentage of all successful transactions.
	Share float64

	Mean, P50, P95, P99, Max time.Duration
}

// finish takes a final histogram tick and computes the report of a run that
// lasted elapsed.
func (r *reporter) finish(ctx context.Context, elapsed time.Duration) Report {
	r.reg.Tick(func(t histogram.Tick) {
		r.recordTick(ctx, t)
	})

	sum := r.agg.sum()
	rep := Report{
		Elapsed:    elapsed,
		Warehouses: r.cfg.warehouses.len(),
		Total:      sum.total,
		NewOrders:  sum.newOrder,
		Errors:     sum.errors,
	}
	if minutes := elapsed.Minutes(); minutes > 0 {
		rep.TpmC = float64(sum.newOrder) / minutes
		rep.TpmTotal = float64(sum.total) / minutes
	}
	rep.Efficiency = 100 * rep.TpmC / (tpmCPerWarehouse * float64(rep.Warehouses))
	for t := txType(0); t < numTxTypes; t++ {
		tr := &rep.ByType[t]
		tr.Count = sum.byType[t]
		if sum.total > 0 {
			tr.Share = 100 * float64(tr.Count) / float64(sum.total)
		}
		if h, ok := r.cumulative[t.String()]; ok && h.TotalCount() > 0 {
			tr.Mean = time.Duration(h.Mean())
			tr.P50 = time.Duration(h.ValueAtQuantile(50))
			tr.P95 = time.Duration(h.ValueAtQuantile(95))
			tr.P99 = time.Duration(h.ValueAtQuantile(99))
			tr.Max = time.Duration(h.ValueAtQuantile(100))
		}
	}
	return rep
}

func ms(d time.Duration) string {
	return fmt.Sprintf("%.1f", d.Seconds()*1000)
}

// Print renders the report.
func (rep Report) Print(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"type", "count", "share(%)", "avg(ms)", "p50(ms)", "p95(ms)", "p99(ms)", "pMax(ms)"})
	for t := txType(0); t < numTxTypes; t++ {
		tr := rep.ByType[t]
		table.Append([]string{
			t.String(),
			humanize.Comma(int64(tr.Count)),
			fmt.Sprintf("%.2f", tr.Share),
			ms(tr.Mean), ms(tr.P50), ms(tr.P95), ms(tr.P99), ms(tr.Max),
		})
	}
	table.Render()

	fmt.Fprintf(w, "\n%s transactions (%s New-Orders, %s errors) in %s\n",
		humanize.Comma(int64(rep.Total)), humanize.Comma(int64(rep.NewOrders)),
		humanize.Comma(int64(rep.Errors)), rep.Elapsed.Round(time.Second))
	fmt.Fprintf(w, "tpmC:       %.1f\n", rep.TpmC)
	fmt.Fprintf(w, "tpmTotal:   %.1f\n", rep.TpmTotal)
	fmt.Fprintf(w, "efficiency: %.1f%% of %.2f tpmC per warehouse over %d warehouses\n",
		rep.Efficiency, tpmCPerWarehouse, rep.Warehouses)
}

// SummarizeHistograms prints the latency distribution of every transaction
// type in a file written by --histograms, merging all of its ticks.
func SummarizeHistograms(path string, w io.Writer) error {
	series, err := histogram.DecodeSnapshots(path)
	if err != nil {
		return errors.Wrapf(err, "reading %s", path)
	}
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"type", "ticks", "count", "avg(ms)", "p50(ms)", "p95(ms)", "p99(ms)", "pMax(ms)"})
	for t := txType(0); t < numTxTypes; t++ {
		ticks := series[t.String()]
		if len(ticks) == 0 {
			continue
		}
		merged := hdrhistogram.Import(ticks[0].Hist)
		for _, tick := range ticks[1:] {
			merged.Merge(hdrhistogram.Import(tick.Hist))
		}
		table.Append([]string{
			t.String(),
			humanize.Comma(int64(len(ticks))),
			humanize.Comma(merged.TotalCount()),
			ms(time.Duration(merged.Mean())),
			ms(time.Duration(merged.ValueAtQuantile(50))),
			ms(time.Duration(merged.ValueAtQuantile(95))),
			ms(time.Duration(merged.ValueAtQuantile(99))),
			ms(time.Duration(merged.Max())),
		})
	}
	table.Render()
	return nil
}
