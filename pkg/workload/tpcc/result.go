// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package tpcc

import (
	"bufio"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
)

// Result describes one finished transaction.
type Result struct {
	// Run is the run marker of the session; always 0 for measured runs.
	Run int
	// Elapsed is the time since the session started.
	Elapsed time.Duration
	// Latency is the end-to-end latency of the transaction.
	Latency time.Duration
	// DBLatency is the part of Latency spent in the database. The driver has
	// no client-side work worth separating, so it equals Latency.
	DBLatency time.Duration
	Type      txType
	// Rollback is set when the transaction ended with its expected rollback.
	Rollback bool
	// Skipped is the number of districts a Delivery found nothing to deliver
	// in.
	Skipped int
	// Error is set when the transaction failed.
	Error bool
}

// ResultSink receives every finished transaction. Record is called
// concurrently by all terminals.
type ResultSink interface {
	Record(Result)
}

var resultHeader = []string{
	"run", "elapsed", "latency", "dblatency", "ttype", "rbk", "dskipped", "error",
}

// csvSink writes results as CSV lines, durations in milliseconds.
type csvSink struct {
	mu struct {
		sync.Mutex
		buf *bufio.Writer
		w   *csv.Writer
		err error
	}
	closer io.Closer
}

var _ ResultSink = (*csvSink)(nil)

// defaultResultFile returns the result file used when none is configured.
func defaultResultFile(now time.Time) string {
	return filepath.Join(os.TempDir(), "tpcc_result_"+now.Format("20060102150405")+".csv")
}

// createCSVSink creates the file at path and writes the CSV header to it.
func createCSVSink(path string) (*csvSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, "creating result file")
	}
	s, err := newCSVSink(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	s.closer = f
	return s, nil
}

func newCSVSink(w io.Writer) (*csvSink, error) {
	s := &csvSink{}
	s.mu.buf = bufio.NewWriter(w)
	s.mu.w = csv.NewWriter(s.mu.buf)
	if err := s.mu.w.Write(resultHeader); err != nil {
		return nil, errors.Wrap(err, "writing result header")
	}
	return s, nil
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func (s *csvSink) Record(r Result) {
	record := []string{
		strconv.Itoa(r.Run),
		strconv.FormatInt(r.Elapsed.Milliseconds(), 10),
		strconv.FormatInt(r.Latency.Milliseconds(), 10),
		strconv.FormatInt(r.DBLatency.Milliseconds(), 10),
		r.Type.resultName(),
		boolFlag(r.Rollback),
		strconv.Itoa(r.Skipped),
		boolFlag(r.Error),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mu.err == nil {
		s.mu.err = s.mu.w.Write(record)
	}
}

// Close flushes buffered results and closes the underlying file. It returns
// the first write error encountered.
func (s *csvSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mu.w.Flush()
	err := s.mu.err
	if err == nil {
		err = s.mu.w.Error()
	}
	if err == nil {
		err = s.mu.buf.Flush()
	}
	if s.closer != nil {
		err = errors.CombineErrors(err, s.closer.Close())
	}
	return errors.Wrap(err, "writing result file")
}

// terminalCounters is the slot of one terminal in the aggregator. Only the
// owning terminal writes it.
type terminalCounters struct {
	total    atomic.Uint64
	newOrder atomic.Uint64
	errors   atomic.Uint64
	byType   [numTxTypes]atomic.Uint64
	// Pad to a cache line to keep terminals from sharing one.
	_ [64]byte
}

// aggregator holds one counter slot per terminal. Readers sum the slots.
type aggregator struct {
	slots []terminalCounters
}

func newAggregator(terminals int) *aggregator {
	return &aggregator{slots: make([]terminalCounters, terminals)}
}

// slot returns the counters of the i-th terminal.
func (a *aggregator) slot(i int) *terminalCounters {
	return &a.slots[i]
}

func (c *terminalCounters) record(t txType, failed bool) {
	if failed {
		c.errors.Add(1)
		return
	}
	c.total.Add(1)
	c.byType[t].Add(1)
	if t == newOrderType {
		c.newOrder.Add(1)
	}
}

// totals is a point-in-time sum of all slots.
type totals struct {
	total    uint64
	newOrder uint64
	errors   uint64
	byType   [numTxTypes]uint64
}

func (a *aggregator) sum() totals {
	var t totals
	for i := range a.slots {
		s := &a.slots[i]
		t.total += s.total.Load()
		t.newOrder += s.newOrder.Load()
		t.errors += s.errors.Load()
		for typ := range t.byType {
			t.byType[typ] += s.byType[typ].Load()
		}
	}
	return t
}
