// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package tpcc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStockLevelRun(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, nil)
	a := newAuditor(cfg.Warehouses, cfg.Mix)
	s := createStockLevel(cfg, newTestRandGen(cfg), a)

	thresholds := make(map[int]bool)
	const n = 500
	for i := 0; i < n; i++ {
		db := happyDB(true)
		tx, err := db.Begin(ctx)
		require.NoError(t, err)

		res, err := s.run(ctx, tx, 9)
		require.NoError(t, err)
		require.True(t, res.rollback)
		commits, rollbacks := db.counts()
		require.Equal(t, 0, commits)
		require.Equal(t, 1, rollbacks)

		d := res.data.(stockLevelData)
		require.Equal(t, 3, d.lowStock)
		require.True(t, d.threshold >= 10 && d.threshold <= 20)
		require.True(t, d.dID >= 1 && d.dID <= numDistrictsPerWH)
		thresholds[d.threshold] = true

		calls := db.callsMatching("SELECT count(*) AS low_stock")
		require.Len(t, calls, 1)
		require.Equal(t, []any{9, d.threshold, 9, d.dID}, calls[0].args)
	}
	require.Len(t, thresholds, 11)
	require.Equal(t, uint64(n), a.stockLevelTransactions.Load())
}

func TestStockLevelQueryError(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, nil)
	s := createStockLevel(cfg, newTestRandGen(cfg), newAuditor(cfg.Warehouses, cfg.Mix))

	tx, err := newFakeDB().Begin(ctx)
	require.NoError(t, err)
	_, err = s.run(ctx, tx, 1)
	require.ErrorContains(t, err, "unexpected statement")
}
