// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package tpcc

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLastNamePickIndex(t *testing.T) {
	// The customer at position ceil((n+1)/2) of the list, counting from one.
	for n, expected := range map[int]int{1: 1, 2: 2, 3: 2, 4: 3, 5: 3, 6: 4} {
		require.Equal(t, expected, lastNamePickIndex(n)+1, "n=%d", n)
	}
}

func TestSelectCustomerByLastName(t *testing.T) {
	ctx := context.Background()
	testCases := []struct {
		desc     string
		ids      []int
		expected int
	}{
		{"one", []int{7}, 7},
		{"two", []int{7, 8}, 8},
		{"five", []int{11, 12, 13, 14, 15}, 13},
		{"six", []int{11, 12, 13, 14, 15, 16}, 14},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			var rows [][]any
			for _, id := range tc.ids {
				rows = append(rows, []any{id})
			}
			db := newFakeDB().onRows(selectCustomerIDsByLastName, rows...)
			tx, err := db.Begin(ctx)
			require.NoError(t, err)
			cID, err := selectCustomerByLastName(ctx, tx, selectCustomerIDsByLastName, 1, 2, "BARBARBAR")
			require.NoError(t, err)
			require.Equal(t, tc.expected, cID)
			calls := db.callsMatching("c_last = $3")
			require.Len(t, calls, 1)
			require.Equal(t, []any{1, 2, "BARBARBAR"}, calls[0].args)
		})
	}

	t.Run("none", func(t *testing.T) {
		db := newFakeDB().onRows(selectCustomerIDsByLastName)
		tx, err := db.Begin(ctx)
		require.NoError(t, err)
		_, err = selectCustomerByLastName(ctx, tx, selectCustomerIDsByLastName, 1, 2, "BARBARBAR")
		require.ErrorIs(t, err, ErrDataIntegrity)
	})
}

func TestBadCreditData(t *testing.T) {
	d := &paymentData{wID: 1, dID: 2, cID: 3, cDID: 4, cWID: 5, hAmount: 12.5}
	require.Equal(t, "C_ID=3 C_D_ID=4 C_W_ID=5 D_ID=2 W_ID=1 H_AMOUNT=12.50   old",
		badCreditData(d, "old"))

	got := badCreditData(d, strings.Repeat("x", maxCDataLength))
	require.Len(t, got, maxCDataLength)
	require.True(t, strings.HasPrefix(got, "C_ID=3 "))
}

func TestPaymentGenerate(t *testing.T) {
	cfg := testConfig(t, nil)
	p := createPayment(cfg, newTestRandGen(cfg), newAuditor(cfg.Warehouses, cfg.Mix))

	const n = 20000
	var remote, byLastName int
	for i := 0; i < n; i++ {
		d := p.generate(4)
		require.Equal(t, 4, d.wID)
		require.True(t, d.hAmount >= 1 && d.hAmount <= 5000)
		require.True(t, d.cDID >= 1 && d.cDID <= numDistrictsPerWH)
		if d.cWID != d.wID {
			remote++
		}
		if d.byLastName {
			byLastName++
			require.Zero(t, d.cID)
			_, ok := lastNameNumber(d.cLast)
			require.True(t, ok)
		} else {
			require.True(t, d.cID >= 1 && d.cID <= numCustomersPerDist)
		}
	}
	require.InDelta(t, 0.15, float64(remote)/n, 0.01)
	require.InDelta(t, 0.60, float64(byLastName)/n, 0.01)
}

func TestPaymentRun(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, nil)

	for _, credit := range []string{goodCredit, badCredit} {
		t.Run(credit, func(t *testing.T) {
			a := newAuditor(cfg.Warehouses, cfg.Mix)
			p := createPayment(cfg, newTestRandGen(cfg), a)

			db := newFakeDB().
				onRows("SELECT c_first, c_middle, c_last, c_street_1",
					[]any{"first", "OE", "BARBARBAR", "s1", "s2", "city", "NY", "123411111",
						"0123456789012345", time.Unix(0, 0), credit, 50000.0, 0.1, -10.0}).
				onRows("SELECT c_data", []any{"previous"})
			for _, r := range happyDB(false).mu.handlers {
				db.on(r.pattern, r.h)
			}
			tx, err := db.Begin(ctx)
			require.NoError(t, err)

			res, err := p.run(ctx, tx, 1)
			require.NoError(t, err)
			require.False(t, res.rollback)
			d := res.data.(paymentData)
			commits, _ := db.counts()
			require.Equal(t, 1, commits)
			require.Equal(t, "whse", d.wName)
			require.Equal(t, "dist", d.dName)
			require.InDelta(t, -10.0-d.hAmount, d.cBalance, 1e-9)
			if d.byLastName {
				// The middle one of the three customers.
				require.Equal(t, 2, d.cID)
			}

			history := db.callsMatching("INSERT INTO bmsql_history")
			require.Len(t, history, 1)
			require.Equal(t, "whse    dist", history[0].args[7])
			require.Equal(t, d.cWID, history[0].args[2])

			withData := db.callsMatching("c_data = $3")
			if credit == badCredit {
				require.Len(t, withData, 1)
				require.Equal(t, badCreditData(&d, "previous"), withData[0].args[2])
				require.True(t, strings.HasSuffix(d.cData, "previous"))
			} else {
				require.Empty(t, withData)
				require.Empty(t, db.callsMatching("SELECT c_data"))
			}
			require.Equal(t, uint64(1), a.paymentTransactions.Load())
		})
	}
}
