// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package tpcc

import (
	"context"
	"strings"
	"time"

	crdbpgx "github.com/cockroachdb/cockroach-go/v2/crdb/crdbpgxv5"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/logtags"
	"github.com/cockroachdb/tpccbench/pkg/util/log"
	"github.com/cockroachdb/tpccbench/pkg/util/retry"
	"github.com/cockroachdb/tpccbench/pkg/workload"
	"github.com/dustin/go-humanize"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"
)

// 4.3.3.1 Table population requirements.

const (
	// The first 2100 orders of every district are delivered.
	numDeliveredOrdersPerDist = numOrdersPerDist - numNewOrdersPerDist

	wYtd          = 300000.00
	dYtd          = 30000.00
	cCreditLim    = 50000.00
	cBalance      = -10.00
	cYtdPayment   = 10.00
	historyAmount = 10.00
	stockDistInfo = 24

	// defaultLoadBatchSize is the number of generated rows (or orders, for
	// the order tables) copied per transaction before any batch failed.
	defaultLoadBatchSize = 1000
)

type copyTarget struct {
	table   string
	columns []string
}

var (
	itemTarget = copyTarget{"bmsql_item", []string{
		"i_id", "i_im_id", "i_name", "i_price", "i_data",
	}}
	warehouseTarget = copyTarget{"bmsql_warehouse", []string{
		"w_id", "w_name", "w_street_1", "w_street_2", "w_city", "w_state", "w_zip", "w_tax", "w_ytd",
	}}
	stockTarget = copyTarget{"bmsql_stock", []string{
		"s_i_id", "s_w_id", "s_quantity",
		"s_dist_01", "s_dist_02", "s_dist_03", "s_dist_04", "s_dist_05",
		"s_dist_06", "s_dist_07", "s_dist_08", "s_dist_09", "s_dist_10",
		"s_ytd", "s_order_cnt", "s_remote_cnt", "s_data",
	}}
	districtTarget = copyTarget{"bmsql_district", []string{
		"d_id", "d_w_id", "d_name", "d_street_1", "d_street_2", "d_city", "d_state", "d_zip",
		"d_tax", "d_ytd", "d_next_o_id",
	}}
	customerTarget = copyTarget{"bmsql_customer", []string{
		"c_id", "c_d_id", "c_w_id", "c_last", "c_middle", "c_first",
		"c_street_1", "c_street_2", "c_city", "c_state", "c_zip", "c_phone", "c_since",
		"c_credit", "c_credit_lim", "c_discount", "c_balance", "c_ytd_payment",
		"c_payment_cnt", "c_delivery_cnt", "c_data",
	}}
	historyTarget = copyTarget{"bmsql_history", []string{
		"h_c_id", "h_c_d_id", "h_c_w_id", "h_d_id", "h_w_id", "h_date", "h_amount", "h_data",
	}}
	orderTarget = copyTarget{"bmsql_oorder", []string{
		"o_id", "o_d_id", "o_w_id", "o_c_id", "o_entry_d", "o_carrier_id", "o_ol_cnt", "o_all_local",
	}}
	orderLineTarget = copyTarget{"bmsql_order_line", []string{
		"ol_o_id", "ol_d_id", "ol_w_id", "ol_number", "ol_i_id", "ol_supply_w_id",
		"ol_delivery_d", "ol_quantity", "ol_amount", "ol_dist_info",
	}}
	newOrderTarget = copyTarget{"bmsql_new_order", []string{
		"no_o_id", "no_d_id", "no_w_id",
	}}
)

// rowGenerator appends the rows of the i-th unit of a copy to rows, which
// holds one slice per copyTarget.
type rowGenerator func(i int64, rows [][][]any)

type loader struct {
	cfg       *Config
	pool      *workload.RoundRobinPool
	batchSize int64
	// now is the load timestamp of every date column.
	now time.Time
}

// Load populates an empty schema with cfg.Warehouses warehouses. Up to
// concurrency warehouses are loaded at the same time, and batches are spread
// over the databases of pool. The data depends only on cfg.Seed and the
// C_LAST load constant, which is logged so that runs can be configured with
// it.
func Load(
	ctx context.Context, cfg *Config, pool *workload.RoundRobinPool, concurrency int,
) error {
	if concurrency < 1 {
		return errors.AssertionFailedf("load concurrency must be positive: %d", concurrency)
	}
	l := &loader{
		cfg:       cfg,
		pool:      pool,
		batchSize: defaultLoadBatchSize,
		now:       time.Now(),
	}
	log.Infof(ctx, "loading %d warehouses with c_load=%d", cfg.Warehouses, cfg.nurand.cLoad)
	start := time.Now()

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	g.Go(func() error {
		return l.loadItems(gCtx)
	})
	for w := 1; w <= cfg.Warehouses; w++ {
		wID := w
		g.Go(func() error {
			return l.loadWarehouse(logtags.AddTag(gCtx, "w", wID), wID)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	log.Infof(ctx, "loaded %d warehouses in %s; run with --c-load=%d",
		cfg.Warehouses, time.Since(start).Round(time.Second), cfg.nurand.cLoad)
	return nil
}

func (l *loader) loadItems(ctx context.Context) error {
	rng := rand.New(rand.NewSource(l.cfg.Seed))
	return l.copy(ctx, numItems, []copyTarget{itemTarget}, func(i int64, rows [][][]any) {
		rows[0] = append(rows[0], []any{
			int(i) + 1,
			randInt(rng, 1, 10000),
			randAString(rng, 14, 24),
			float64(randInt(rng, 100, 10000)) / 100,
			randOriginalString(rng),
		})
	})
}

func (l *loader) loadWarehouse(ctx context.Context, wID int) error {
	rng := rand.New(rand.NewSource(l.cfg.Seed + uint64(wID)))

	err := l.copy(ctx, 1, []copyTarget{warehouseTarget}, func(_ int64, rows [][][]any) {
		rows[0] = append(rows[0], []any{
			wID,
			randAString(rng, 6, 10),
			randAString(rng, 10, 20),
			randAString(rng, 10, 20),
			randAString(rng, 10, 20),
			randState(rng),
			randZip(rng),
			randTax(rng),
			wYtd,
		})
	})
	if err != nil {
		return err
	}

	if err := l.copy(ctx, numItems, []copyTarget{stockTarget}, func(i int64, rows [][][]any) {
		row := make([]any, 0, len(stockTarget.columns))
		row = append(row, int(i)+1, wID, randInt(rng, 10, 100))
		for d := 0; d < numDistrictsPerWH; d++ {
			row = append(row, randAString(rng, stockDistInfo, stockDistInfo))
		}
		row = append(row, 0, 0, 0, randOriginalString(rng))
		rows[0] = append(rows[0], row)
	}); err != nil {
		return err
	}

	if err := l.copy(ctx, numDistrictsPerWH, []copyTarget{districtTarget}, func(i int64, rows [][][]any) {
		rows[0] = append(rows[0], []any{
			int(i) + 1,
			wID,
			randAString(rng, 6, 10),
			randAString(rng, 10, 20),
			randAString(rng, 10, 20),
			randAString(rng, 10, 20),
			randState(rng),
			randZip(rng),
			randTax(rng),
			dYtd,
			numOrdersPerDist + 1,
		})
	}); err != nil {
		return err
	}

	if err := l.copy(ctx, numDistrictsPerWH*numCustomersPerDist,
		[]copyTarget{customerTarget, historyTarget},
		func(i int64, rows [][][]any) {
			dID := int(i)/numCustomersPerDist + 1
			cID := int(i)%numCustomersPerDist + 1
			rows[0] = append(rows[0], l.customerRow(rng, wID, dID, cID))
			rows[1] = append(rows[1], []any{
				cID, dID, wID, dID, wID, l.now, historyAmount, randAString(rng, 12, 24),
			})
		}); err != nil {
		return err
	}

	// 4.3.3.1: O_C_ID is selected sequentially from a random permutation of
	// [1..3000] in every district.
	perms := make([][]int, numDistrictsPerWH)
	for d := range perms {
		perms[d] = rng.Perm(numCustomersPerDist)
	}
	return l.copy(ctx, numDistrictsPerWH*numOrdersPerDist,
		[]copyTarget{orderTarget, orderLineTarget, newOrderTarget},
		func(i int64, rows [][][]any) {
			dID := int(i)/numOrdersPerDist + 1
			oID := int(i)%numOrdersPerDist + 1
			cID := perms[dID-1][oID-1] + 1
			delivered := oID <= numDeliveredOrdersPerDist

			var carrierID any
			if delivered {
				carrierID = int(randInt(rng, 1, 10))
			}
			olCnt := int(randInt(rng, minOrderLines, maxOrderLines))
			rows[0] = append(rows[0], []any{oID, dID, wID, cID, l.now, carrierID, olCnt, 1})

			for olNumber := 1; olNumber <= olCnt; olNumber++ {
				var deliveryD any
				amount := 0.0
				if delivered {
					deliveryD = l.now
				} else {
					amount = float64(randInt(rng, 1, 999999)) / 100
				}
				rows[1] = append(rows[1], []any{
					oID, dID, wID, olNumber,
					int(randInt(rng, 1, numItems)), wID,
					deliveryD, 5, amount, randAString(rng, stockDistInfo, stockDistInfo),
				})
			}
			if !delivered {
				rows[2] = append(rows[2], []any{oID, dID, wID})
			}
		})
}

func (l *loader) customerRow(rng *rand.Rand, wID, dID, cID int) []any {
	// 4.3.2.3: the first 1000 customers of a district get every last name
	// once, the others get a non-uniform one.
	var last string
	if cID <= 1000 {
		last = lastName(cID - 1)
	} else {
		last = lastName(nonUniform(rng, 255, l.cfg.nurand.cLoad, 0, 999))
	}
	credit := goodCredit
	if rng.Intn(10) == 0 {
		credit = badCredit
	}
	return []any{
		cID, dID, wID,
		last,
		"OE",
		randAString(rng, 8, 16),
		randAString(rng, 10, 20),
		randAString(rng, 10, 20),
		randAString(rng, 10, 20),
		randState(rng),
		randZip(rng),
		randNString(rng, 16, 16),
		l.now,
		credit,
		cCreditLim,
		float64(randInt(rng, 0, 5000)) / 10000,
		cBalance,
		cYtdPayment,
		1,
		0,
		randAString(rng, 300, 500),
	}
}

// copy generates total units with gen and copies them into targets, one
// transaction per batch. A batch the server rejects for its size is retried
// at half the size.
func (l *loader) copy(
	ctx context.Context, total int64, targets []copyTarget, gen rowGenerator,
) error {
	names := make([]string, len(targets))
	for i, t := range targets {
		names[i] = t.table
	}
	what := strings.Join(names, ", ")

	var copied int64
	b := retry.Batch{
		Total: total,
		Do: func(ctx context.Context, processed, batchSize int64) error {
			rows := make([][][]any, len(targets))
			for i := processed; i < processed+batchSize; i++ {
				gen(i, rows)
			}
			err := crdbpgx.ExecuteTx(ctx, l.pool.Get(), pgx.TxOptions{}, func(tx pgx.Tx) error {
				for t, target := range targets {
					if len(rows[t]) == 0 {
						continue
					}
					if _, err := tx.CopyFrom(
						ctx, pgx.Identifier{target.table}, target.columns, pgx.CopyFromRows(rows[t]),
					); err != nil {
						return errors.Wrapf(err, "copy into %s failed", target.table)
					}
				}
				return nil
			})
			if err != nil {
				return err
			}
			for t := range rows {
				copied += int64(len(rows[t]))
			}
			return nil
		},
		IsRetriableError: isBatchTooLarge,
		OnRetry: func(err error, batchSize int64) error {
			log.Warningf(ctx, "loading %s: retrying with batches of %d: %v", what, batchSize, err)
			return nil
		},
	}
	if err := b.Start(ctx, l.batchSize); err != nil {
		return errors.Wrapf(err, "loading %s after %d of %d units", what, b.Processed(), total)
	}
	log.VEventf(ctx, 1, "loaded %s rows into %s", humanize.Comma(copied), what)
	return nil
}

// isBatchTooLarge reports whether the server rejected a batch for lack of
// resources (class 53) or because it exceeded a limit (class 54).
func isBatchTooLarge(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return strings.HasPrefix(pgErr.Code, "53") || strings.HasPrefix(pgErr.Code, "54")
}

const (
	goodCredit = "GC"
	badCredit  = "BC"
)
