// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package tpcc

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/tpccbench/pkg/util/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	outcomeCommitted = "committed"
	outcomeRollback  = "rollback"
	outcomeError     = "error"
)

// metrics exports transaction counts and latencies to Prometheus.
type metrics struct {
	registry *prometheus.Registry
	txns     *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	skipped  prometheus.Counter
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		txns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tpcc",
			Name:      "transactions_total",
			Help:      "Number of finished transactions by type and outcome.",
		}, []string{"type", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tpcc",
			Name:      "transaction_duration_seconds",
			Help:      "Latency of successful transactions.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 16),
		}, []string{"type"}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tpcc",
			Name:      "delivery_skipped_districts_total",
			Help:      "Number of districts a Delivery found no undelivered order in.",
		}),
	}
	m.registry.MustRegister(m.txns, m.latency, m.skipped)
	return m
}

func (m *metrics) record(r Result) {
	name := r.Type.String()
	switch {
	case r.Error:
		m.txns.WithLabelValues(name, outcomeError).Inc()
		return
	case r.Rollback:
		m.txns.WithLabelValues(name, outcomeRollback).Inc()
	default:
		m.txns.WithLabelValues(name, outcomeCommitted).Inc()
	}
	m.latency.WithLabelValues(name).Observe(r.Latency.Seconds())
	if r.Skipped > 0 {
		m.skipped.Add(float64(r.Skipped))
	}
}

// serve exposes the metrics on /metrics at port until ctx is done.
func (m *metrics) serve(ctx context.Context, port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(port)),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return errors.Wrapf(err, "listening on port %d", port)
	}
	log.Infof(ctx, "serving prometheus metrics on %s", ln.Addr())
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "serving metrics")
	}
	return nil
}
