// Copyright 2017 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package tpcc

import (
	"context"

	"github.com/cockroachdb/errors"
)

// 2.8 The Stock-Level Transaction
//
// The Stock-Level business transaction determines the number of recently sold
// items that have a stock level below a specified threshold. It represents a
// heavy read-only database transaction with a low frequency of execution, a
// relaxed response time requirement, and relaxed consistency requirements.

// 2.8.2.3 states:
// Full serializability and repeatable reads are not required for the
// Stock-Level business transaction. All data read must be committed and no
// older than the most recently committed data prior to the time this business
// transaction was initiated. All other ACID properties must be maintained.

type stockLevelData struct {
	// This data must all be returned by the transaction. See 2.8.3.4.
	wID       int
	dID       int
	threshold int
	lowStock  int
}

type stockLevel struct {
	config  *Config
	rng     *randGen
	auditor *auditor

	countLowStock string
}

var _ tpccTx = &stockLevel{}

func createStockLevel(config *Config, rng *randGen, a *auditor) *stockLevel {
	s := &stockLevel{
		config:  config,
		rng:     rng,
		auditor: a,
	}

	// Count the items of the district's last 20 orders whose stock is below
	// the threshold.
	s.countLowStock = `
		SELECT count(*) AS low_stock FROM (
		    SELECT s_w_id, s_i_id, s_quantity
		    FROM bmsql_stock
		    WHERE s_w_id = $1 AND s_quantity < $2 AND s_i_id IN (
		        SELECT ol_i_id
		        FROM bmsql_district
		        JOIN bmsql_order_line ON ol_w_id = d_w_id
		         AND ol_d_id = d_id
		         AND ol_o_id >= d_next_o_id - 20
		         AND ol_o_id < d_next_o_id
		        WHERE d_w_id = $3 AND d_id = $4
		    )
		) AS L`

	return s
}

func (s *stockLevel) run(ctx context.Context, tx Tx, wID int) (txResult, error) {
	// 2.8.1.2: The threshold of minimum quantity in stock is selected at random
	// within [10..20].
	d := stockLevelData{
		wID:       wID,
		dID:       s.rng.uniform(1, numDistrictsPerWH),
		threshold: s.rng.uniform(10, 20),
	}
	s.auditor.stockLevelTransactions.Add(1)

	if err := tx.QueryRow(
		ctx, s.countLowStock, d.wID, d.threshold, d.wID, d.dID,
	).Scan(&d.lowStock); err != nil {
		return txResult{}, errors.Wrap(err, "select district, order_line, stock failed")
	}
	if err := tx.Rollback(ctx); err != nil {
		return txResult{}, errors.Wrap(err, "rollback failed")
	}
	return txResult{data: d, rollback: true}, nil
}
