// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package tpcc

import (
	"context"
	gosql "database/sql"
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/tpccbench/pkg/util/log"
)

// ErrCheckFailed is wrapped by the error of a consistency check that found a
// violation, as opposed to one that could not run.
var ErrCheckFailed = errors.New("consistency check failed")

// Row is the result of a single-row query.
type Row interface {
	Scan(dest ...interface{}) error
}

// Querier runs single-row queries.
type Querier interface {
	QueryRow(ctx context.Context, query string, args ...interface{}) Row
}

// SQLDB is a database/sql handle such as *gosql.DB or
// *workload.RoundRobinDB.
type SQLDB interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *gosql.Row
}

// SQLQuerier adapts db to Querier.
func SQLQuerier(db SQLDB) Querier {
	return sqlQuerier{db: db}
}

type sqlQuerier struct {
	db SQLDB
}

func (q sqlQuerier) QueryRow(ctx context.Context, query string, args ...interface{}) Row {
	return q.db.QueryRowContext(ctx, query, args...)
}

// Check is a consistency condition of 3.3.2. Its query counts the districts
// or warehouses that violate the condition.
type Check struct {
	Name        string
	Description string
	query       string
}

// AllChecks returns the consistency checks in the order of 3.3.2.
func AllChecks() []Check {
	return []Check{
		{
			Name:        "3.3.2.1",
			Description: "W_YTD = sum(D_YTD)",
			query: `
				SELECT count(*)
				FROM bmsql_warehouse
				FULL OUTER JOIN (
				    SELECT d_w_id, sum(d_ytd) AS sum_d_ytd
				    FROM bmsql_district
				    GROUP BY d_w_id
				) AS d ON w_id = d_w_id
				WHERE w_ytd IS DISTINCT FROM sum_d_ytd`,
		},
		{
			Name:        "3.3.2.2",
			Description: "D_NEXT_O_ID - 1 = max(O_ID) = max(NO_O_ID)",
			query: `
				SELECT count(*)
				FROM bmsql_district
				LEFT JOIN (
				    SELECT o_w_id, o_d_id, max(o_id) AS max_o_id
				    FROM bmsql_oorder
				    GROUP BY o_w_id, o_d_id
				) AS o ON d_w_id = o_w_id AND d_id = o_d_id
				LEFT JOIN (
				    SELECT no_w_id, no_d_id, max(no_o_id) AS max_no_o_id
				    FROM bmsql_new_order
				    GROUP BY no_w_id, no_d_id
				) AS no ON d_w_id = no_w_id AND d_id = no_d_id
				WHERE d_next_o_id - 1 IS DISTINCT FROM max_o_id
				   OR (max_no_o_id IS NOT NULL AND max_no_o_id <> max_o_id)`,
		},
		{
			Name:        "3.3.2.3",
			Description: "max(NO_O_ID) - min(NO_O_ID) + 1 = count(NEW-ORDER)",
			query: `
				SELECT count(*)
				FROM (
				    SELECT max(no_o_id) - min(no_o_id) + 1 AS span, count(*) AS n
				    FROM bmsql_new_order
				    GROUP BY no_w_id, no_d_id
				) AS s
				WHERE span <> n`,
		},
		{
			Name:        "3.3.2.4",
			Description: "sum(O_OL_CNT) = count(ORDER-LINE)",
			query: `
				SELECT count(*)
				FROM (
				    SELECT o_w_id, o_d_id, sum(o_ol_cnt) AS sum_ol_cnt
				    FROM bmsql_oorder
				    GROUP BY o_w_id, o_d_id
				) AS o
				FULL OUTER JOIN (
				    SELECT ol_w_id, ol_d_id, count(*) AS ol_count
				    FROM bmsql_order_line
				    GROUP BY ol_w_id, ol_d_id
				) AS ol ON o_w_id = ol_w_id AND o_d_id = ol_d_id
				WHERE sum_ol_cnt IS DISTINCT FROM ol_count`,
		},
	}
}

// Run returns an error wrapping ErrCheckFailed if the check finds a
// violation.
func (c Check) Run(ctx context.Context, db Querier) error {
	var violations int
	if err := db.QueryRow(ctx, c.query).Scan(&violations); err != nil {
		return errors.Wrapf(err, "check %s", c.Name)
	}
	if violations > 0 {
		return errors.Wrapf(ErrCheckFailed,
			"check %s (%s): %d violations", c.Name, c.Description, violations)
	}
	return nil
}

// RunChecks runs checks in order and prints one PASS or FAIL line per check.
// All checks run even when one fails; the returned error combines the
// failures.
func RunChecks(ctx context.Context, db Querier, checks []Check, out io.Writer) error {
	var retErr error
	for _, c := range checks {
		log.VEventf(ctx, 1, "running check %s", c.Name)
		err := c.Run(ctx, db)
		result := "PASS"
		if err != nil {
			result = "FAIL"
			retErr = errors.CombineErrors(retErr, err)
		}
		fmt.Fprintf(out, "%-8s %-52s %s\n", c.Name, c.Description, result)
	}
	return retErr
}
