// Copyright 2018 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package histogram

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/codahale/hdrhistogram"
)

const (
	sigFigs    = 1
	minLatency = 100 * time.Microsecond
)

// NamedHistogram records the latencies of one operation type for one
// goroutine. The registry swaps its histogram out on every tick, so Record
// and the swap are synchronized.
type NamedHistogram struct {
	name string
	mu   struct {
		sync.Mutex
		current *hdrhistogram.Histogram
	}
}

// Name returns the name the histogram was registered under.
func (w *NamedHistogram) Name() string {
	return w.name
}

// Record saves a new datapoint and should be called once per logical operation.
// Values outside of the tracked range are clamped to it.
func (w *NamedHistogram) Record(elapsed time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if maxLatency := time.Duration(w.mu.current.HighestTrackableValue()); elapsed > maxLatency {
		elapsed = maxLatency
	} else if elapsed < minLatency {
		elapsed = minLatency
	}
	if err := w.mu.current.RecordValue(elapsed.Nanoseconds()); err != nil {
		panic(fmt.Sprintf("%s: recording value: %s", w.name, err))
	}
}

// swap installs fresh and returns the histogram recorded into since the
// previous swap.
func (w *NamedHistogram) swap(fresh *hdrhistogram.Histogram) *hdrhistogram.Histogram {
	w.mu.Lock()
	defer w.mu.Unlock()
	h := w.mu.current
	w.mu.current = fresh
	return h
}

// Registry groups the histograms of all goroutines by name. Tick merges the
// groups into one histogram per name and starts a new period.
type Registry struct {
	maxLat time.Duration
	start  time.Time

	mu struct {
		sync.Mutex
		registered map[string][]*NamedHistogram
	}

	// Only accessed by Tick.
	cumulative map[string]*hdrhistogram.Histogram
	prevTick   map[string]time.Time
}

// NewRegistry returns an empty Registry whose histograms track latencies up
// to maxLat.
func NewRegistry(maxLat time.Duration) *Registry {
	r := &Registry{
		maxLat:     maxLat,
		start:      time.Now(),
		cumulative: make(map[string]*hdrhistogram.Histogram),
		prevTick:   make(map[string]time.Time),
	}
	r.mu.registered = make(map[string][]*NamedHistogram)
	return r
}

func (w *Registry) newHistogram() *hdrhistogram.Histogram {
	return hdrhistogram.New(minLatency.Nanoseconds(), w.maxLat.Nanoseconds(), sigFigs)
}

// GetHandle returns a handle for one goroutine to record into.
func (w *Registry) GetHandle() *Histograms {
	return &Histograms{reg: w, hists: make(map[string]*NamedHistogram)}
}

func (w *Registry) register(hist *NamedHistogram) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.mu.registered[hist.name] = append(w.mu.registered[hist.name], hist)
}

// Tick calls fn once per registered name, in name order, with the merge of
// everything recorded under that name since the previous tick. It must not be
// called concurrently with itself.
func (w *Registry) Tick(fn func(Tick)) {
	w.mu.Lock()
	registered := make(map[string][]*NamedHistogram, len(w.mu.registered))
	names := make([]string, 0, len(w.mu.registered))
	for name, hists := range w.mu.registered {
		registered[name] = append([]*NamedHistogram(nil), hists...)
		names = append(names, name)
	}
	w.mu.Unlock()
	sort.Strings(names)

	now := time.Now()
	for _, name := range names {
		merged := w.newHistogram()
		for _, hist := range registered[name] {
			merged.Merge(hist.swap(w.newHistogram()))
		}
		cumulative, ok := w.cumulative[name]
		if !ok {
			cumulative = w.newHistogram()
			w.cumulative[name] = cumulative
		}
		cumulative.Merge(merged)

		prevTick, ok := w.prevTick[name]
		if !ok {
			prevTick = w.start
		}
		w.prevTick[name] = now
		fn(Tick{
			Name:       name,
			Hist:       merged,
			Cumulative: cumulative,
			Elapsed:    now.Sub(prevTick),
			Now:        now,
			Start:      w.start,
		})
	}
}

// Histograms hands out the NamedHistograms of one goroutine. It is not safe
// for concurrent use.
type Histograms struct {
	reg   *Registry
	hists map[string]*NamedHistogram
}

// Get returns the histogram registered under name, creating it on first use.
func (w *Histograms) Get(name string) *NamedHistogram {
	if hist, ok := w.hists[name]; ok {
		return hist
	}
	hist := &NamedHistogram{name: name}
	hist.mu.current = w.reg.newHistogram()
	w.hists[name] = hist
	w.reg.register(hist)
	return hist
}

// Copy makes a new histogram which is a copy of h.
func Copy(h *hdrhistogram.Histogram) *hdrhistogram.Histogram {
	dup := hdrhistogram.New(h.LowestTrackableValue(), h.HighestTrackableValue(),
		int(h.SignificantFigures()))
	dup.Merge(h)
	return dup
}

// Tick is an aggregation of ticking all histograms in a
// Registry with a given name.
type Tick struct {
	// Name is the name given to the histograms represented by this tick.
	Name string
	// Hist is the merged result of the represented histograms for this tick.
	// Hist.TotalCount() is the number of operations that occurred for this tick.
	Hist *hdrhistogram.Histogram
	// Cumulative is the merged result of the represented histograms for all
	// time. Cumulative.TotalCount() is the total number of operations that have
	// occurred over all time.
	Cumulative *hdrhistogram.Histogram
	// Elapsed is the amount of time since the last tick.
	Elapsed time.Duration
	// Now is the time at which the tick was gathered. It covers the period
	// [Now-Elapsed,Now).
	Now time.Time
	// Start is the time at which the Registry was created.
	Start time.Time
}

// Ops returns the number of operations per second recorded in the tick.
func (t Tick) Ops() float64 {
	if t.Elapsed <= 0 {
		return 0
	}
	return float64(t.Hist.TotalCount()) / t.Elapsed.Seconds()
}

// CumulativeOps returns the number of operations per second recorded since
// the Registry was created.
func (t Tick) CumulativeOps() float64 {
	elapsed := t.Now.Sub(t.Start)
	if elapsed <= 0 {
		return 0
	}
	return float64(t.Cumulative.TotalCount()) / elapsed.Seconds()
}

// Snapshot creates a SnapshotTick from the receiver.
func (t Tick) Snapshot() SnapshotTick {
	return SnapshotTick{
		Name:    t.Name,
		Elapsed: t.Elapsed,
		Now:     t.Now,
		Hist:    t.Hist.Export(),
	}
}

// SnapshotTick parallels Tick but replace the histogram with a
// snapshot that is suitable for serialization. Additionally, it only contains
// the per-tick histogram, not the cumulative histogram. (The cumulative
// histogram can be computed by aggregating all of the per-tick histograms).
type SnapshotTick struct {
	Name    string
	Hist    *hdrhistogram.Snapshot
	Elapsed time.Duration
	Now     time.Time
}

// SnapshotWriter appends SnapshotTicks to a stream as newline-delimited JSON,
// the format read back by DecodeSnapshots.
type SnapshotWriter struct {
	enc *json.Encoder
}

// NewSnapshotWriter returns a SnapshotWriter writing to w.
func NewSnapshotWriter(w io.Writer) *SnapshotWriter {
	return &SnapshotWriter{enc: json.NewEncoder(w)}
}

// Write encodes the snapshot of t.
func (s *SnapshotWriter) Write(t Tick) error {
	return s.enc.Encode(t.Snapshot())
}

// DecodeSnapshots decodes a file with SnapshotTicks into a series.
func DecodeSnapshots(path string) (map[string][]SnapshotTick, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	dec := json.NewDecoder(f)
	ret := make(map[string][]SnapshotTick)
	for {
		var tick SnapshotTick
		if err := dec.Decode(&tick); err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		}
		ret[tick.Name] = append(ret[tick.Name], tick)
	}
	return ret, nil
}
