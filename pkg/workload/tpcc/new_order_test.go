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

// testConfig returns a validated configuration of 10 warehouses with a fixed
// seed.
func testConfig(t *testing.T, modify func(*Config)) *Config {
	cfg := DefaultConfig()
	cfg.Warehouses = 10
	cfg.Terminals = 1
	cfg.Seed = 1
	if modify != nil {
		modify(&cfg)
	}
	require.NoError(t, cfg.Validate())
	return &cfg
}

func newTestRandGen(cfg *Config) *randGen {
	return newRandGen(cfg.Seed, &cfg.nurand)
}

func TestNewStockQuantity(t *testing.T) {
	for q := 10; q <= 100; q++ {
		for o := 1; o <= 10; o++ {
			got := newStockQuantity(q, o)
			if q-o >= 10 {
				require.Equal(t, q-o, got)
			} else {
				require.Equal(t, q-o+91, got)
			}
			require.True(t, got >= 10, "q=%d o=%d -> %d", q, o, got)
		}
	}
	require.Equal(t, 10, newStockQuantity(20, 10))
	require.Equal(t, 100, newStockQuantity(18, 9))
}

func TestNewOrderGenerate(t *testing.T) {
	cfg := testConfig(t, nil)
	no := createNewOrder(cfg, newTestRandGen(cfg), newAuditor(cfg.Warehouses, cfg.Mix))

	const n = 20000
	var invalid, lines, remoteLines int
	var lineCounts [maxOrderLines + 1]int
	for i := 0; i < n; i++ {
		d := no.generate(3)
		require.Equal(t, 3, d.wID)
		require.True(t, d.dID >= 1 && d.dID <= numDistrictsPerWH)
		require.True(t, d.cID >= 1 && d.cID <= numCustomersPerDist)
		require.True(t, d.oOlCnt >= minOrderLines && d.oOlCnt <= maxOrderLines)
		require.Len(t, d.items, d.oOlCnt)
		lineCounts[d.oOlCnt]++

		seen := make(map[int]bool)
		allLocal := true
		invalidLines := 0
		for j, item := range d.items {
			require.Equal(t, j+1, item.olNumber)
			require.False(t, seen[item.olIID], "duplicate item %d", item.olIID)
			seen[item.olIID] = true
			require.True(t, item.olQty >= 1 && item.olQty <= 10)
			require.True(t, item.olSupplyW >= 1 && item.olSupplyW <= cfg.Warehouses)
			require.Equal(t, item.olSupplyW != d.wID, item.remote)
			if item.remote {
				allLocal = false
				remoteLines++
			}
			if item.olIID > numItems {
				invalidLines++
			}
			if j > 0 {
				prev := d.items[j-1]
				require.True(t, prev.olSupplyW < item.olSupplyW ||
					(prev.olSupplyW == item.olSupplyW && prev.olIID < item.olIID),
					"lines are not sorted")
			}
		}
		require.Equal(t, allLocal, d.allLocal)
		if d.invalidItem {
			invalid++
			require.Equal(t, 1, invalidLines)
		} else {
			require.Zero(t, invalidLines)
		}
		lines += d.oOlCnt
	}

	require.InDelta(t, 0.01, float64(invalid)/n, 0.003)
	require.InDelta(t, 0.01, float64(remoteLines)/float64(lines), 0.002)
	require.InDelta(t, 10, float64(lines)/n, 0.1)
	for c := minOrderLines; c <= maxOrderLines; c++ {
		require.InDelta(t, 1.0/11, float64(lineCounts[c])/n, 0.01, "line count %d", c)
	}
}

func TestNewOrderSingleWarehouseIsLocal(t *testing.T) {
	cfg := testConfig(t, func(c *Config) { c.Warehouses = 1 })
	no := createNewOrder(cfg, newTestRandGen(cfg), newAuditor(cfg.Warehouses, cfg.Mix))
	for i := 0; i < 2000; i++ {
		d := no.generate(1)
		require.True(t, d.allLocal)
	}
}

func TestNewOrderRun(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, nil)
	a := newAuditor(cfg.Warehouses, cfg.Mix)
	no := createNewOrder(cfg, newTestRandGen(cfg), a)

	const n = 3000
	var rollbacks int
	for i := 0; i < n; i++ {
		db := happyDB(true /* trace */)
		tx, err := db.Begin(ctx)
		require.NoError(t, err)

		res, err := no.run(ctx, tx, 1)
		require.NoError(t, err)
		d := res.data.(newOrderData)
		commits, rolledBack := db.counts()

		if d.invalidItem {
			// The unused item number aborts the order before any stock or
			// order line is written.
			rollbacks++
			require.True(t, res.rollback)
			require.Equal(t, 0, commits)
			require.Equal(t, 1, rolledBack)
			require.Empty(t, db.callsMatching("UPDATE bmsql_stock"))
			require.Empty(t, db.callsMatching("INSERT INTO bmsql_order_line"))
			continue
		}

		require.False(t, res.rollback)
		require.Equal(t, 1, commits)
		require.Equal(t, 0, rolledBack)
		require.Equal(t, 3001, d.oID)

		stock := db.callsMatching("UPDATE bmsql_stock")
		require.Len(t, stock, d.oOlCnt)
		for j, c := range stock {
			item := d.items[j]
			// The fake stock has 50 items.
			require.Equal(t, newStockQuantity(50, item.olQty), c.args[0])
			require.Equal(t, item.olSupplyW, c.args[3])
			require.Equal(t, item.olIID, c.args[4])
			require.Equal(t, "B", item.brandGeneric)
			require.InDelta(t, float64(item.olQty)*9.99, item.olAmount, 1e-9)
		}
		require.Len(t, db.callsMatching("INSERT INTO bmsql_order_line"), d.oOlCnt)

		order := db.callsMatching("INSERT INTO bmsql_oorder")
		require.Len(t, order, 1)
		allLocal := 0
		if d.allLocal {
			allLocal = 1
		}
		require.Equal(t, allLocal, order[0].args[6])
		require.Len(t, db.callsMatching("INSERT INTO bmsql_new_order"), 1)
	}
	require.NotZero(t, rollbacks)
	require.Equal(t, uint64(n), a.newOrderTransactions.Load())
	require.Equal(t, uint64(rollbacks), a.newOrderRollbacks.Load())
}

func TestNewOrderMissingStockIsIntegrityError(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, nil)
	no := createNewOrder(cfg, newTestRandGen(cfg), newAuditor(cfg.Warehouses, cfg.Mix))

	db := newFakeDB().onRows("SELECT s_quantity, s_data")
	for _, r := range happyDB(false).mu.handlers {
		db.on(r.pattern, r.h)
	}
	tx, err := db.Begin(ctx)
	require.NoError(t, err)
	_, err = no.run(ctx, tx, 1)
	require.ErrorIs(t, err, ErrDataIntegrity)
	commits, _ := db.counts()
	require.Zero(t, commits)
}

func TestNewOrderOptions(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, func(c *Config) {
		c.RouteItemByHint = true
		c.MultiValuesInsert = true
	})
	no := createNewOrder(cfg, newTestRandGen(cfg), newAuditor(cfg.Warehouses, cfg.Mix))

	for {
		db := happyDB(true)
		tx, err := db.Begin(ctx)
		require.NoError(t, err)
		res, err := no.run(ctx, tx, 2)
		require.NoError(t, err)
		if res.rollback {
			continue
		}
		d := res.data.(newOrderData)

		items := db.callsMatching("FROM bmsql_item, bmsql_warehouse")
		require.Len(t, items, d.oOlCnt)
		for _, c := range items {
			require.Equal(t, 2, c.args[1])
		}
		inserts := db.callsMatching("INSERT INTO bmsql_order_line")
		require.Len(t, inserts, 1)
		require.Len(t, inserts[0].args, 9*d.oOlCnt)
		return
	}
}

func TestMultiValuesInsert(t *testing.T) {
	stmt, args := multiValuesInsert("INSERT INTO t (a, b) VALUES ", [][]any{{1, "x"}, {2, "y"}, {3, "z"}})
	require.Equal(t, "INSERT INTO t (a, b) VALUES ($1, $2), ($3, $4), ($5, $6)", stmt)
	require.Equal(t, []any{1, "x", 2, "y", 3, "z"}, args)
}
