// Copyright 2017 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package tpcc

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
)

// 2.7 The Delivery Transaction
//
// The Delivery business transaction consists of processing a batch of 10 new
// (not yet delivered) orders. Each order is processed (delivered) in full
// within the scope of a read-write database transaction. The number of orders
// delivered as a group (or batched) within the same database transaction is
// implementation specific. The business transaction, comprised of one or more
// (up to 10) database transactions, has a low frequency of execution and must
// complete within a relaxed response time requirement.

// skippedDistrict marks a district of deliveryData.deliveredOIDs for which no
// undelivered order was found.
const skippedDistrict = -1

type deliveryData struct {
	wID        int
	oCarrierID int
	// deliveredOIDs is the order delivered for each district, or
	// skippedDistrict.
	deliveredOIDs [numDistrictsPerWH]int
}

// skipped returns the number of districts that had nothing to deliver.
func (d *deliveryData) skipped() int {
	n := 0
	for _, oID := range d.deliveredOIDs {
		if oID == skippedDistrict {
			n++
		}
	}
	return n
}

type delivery struct {
	config  *Config
	rng     *randGen
	auditor *auditor

	selectOldestNewOrder string
	deleteNewOrder       string
	updateOrder          string
	selectOrderCustomer  string
	updateOrderLines     string
	sumOrderLineAmount   string
	updateCustomer       string
}

var _ tpccTx = &delivery{}

func createDelivery(config *Config, rng *randGen, a *auditor) *delivery {
	del := &delivery{
		config:  config,
		rng:     rng,
		auditor: a,
	}

	// The oldest new order is not selected FOR UPDATE. A concurrent Delivery
	// may claim it first, which the delete below detects.
	del.selectOldestNewOrder = `
		SELECT no_o_id
		FROM bmsql_new_order
		WHERE no_w_id = $1 AND no_d_id = $2
		ORDER BY no_o_id ASC
		LIMIT 1`

	del.deleteNewOrder = `
		DELETE FROM bmsql_new_order
		WHERE no_w_id = $1 AND no_d_id = $2 AND no_o_id = $3`

	del.updateOrder = `
		UPDATE bmsql_oorder
		SET o_carrier_id = $1
		WHERE o_w_id = $2 AND o_d_id = $3 AND o_id = $4`

	del.selectOrderCustomer = `
		SELECT o_c_id
		FROM bmsql_oorder
		WHERE o_w_id = $1 AND o_d_id = $2 AND o_id = $3`

	del.updateOrderLines = `
		UPDATE bmsql_order_line
		SET ol_delivery_d = $1
		WHERE ol_w_id = $2 AND ol_d_id = $3 AND ol_o_id = $4`

	del.sumOrderLineAmount = `
		SELECT sum(ol_amount) AS sum_ol_amount
		FROM bmsql_order_line
		WHERE ol_w_id = $1 AND ol_d_id = $2 AND ol_o_id = $3`

	del.updateCustomer = `
		UPDATE bmsql_customer
		SET c_balance = c_balance + $1,
		    c_delivery_cnt = c_delivery_cnt + 1
		WHERE c_w_id = $2 AND c_d_id = $3 AND c_id = $4`

	return del
}

func (del *delivery) run(ctx context.Context, tx Tx, wID int) (txResult, error) {
	d := deliveryData{
		wID:        wID,
		oCarrierID: del.rng.uniform(1, 10),
	}
	olDeliveryD := time.Now()
	del.auditor.deliveryTransactions.Add(1)

	for dID := 1; dID <= numDistrictsPerWH; dID++ {
		oID, err := del.claimOldestNewOrder(ctx, tx, wID, dID)
		if err != nil {
			return txResult{}, err
		}
		d.deliveredOIDs[dID-1] = oID
		if oID == skippedDistrict {
			continue
		}
		if err := del.deliverOrder(ctx, tx, &d, dID, oID, olDeliveryD); err != nil {
			return txResult{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return txResult{}, errors.Wrap(err, "commit failed")
	}
	skipped := d.skipped()
	del.auditor.skippedDeliveries.Add(uint64(skipped))
	return txResult{data: d, skipped: skipped}, nil
}

// claimOldestNewOrder removes the oldest undelivered order of a district from
// the backlog and returns its id, or skippedDistrict if the backlog is empty.
func (del *delivery) claimOldestNewOrder(ctx context.Context, tx Tx, wID, dID int) (int, error) {
	for {
		var oID int
		if err := tx.QueryRow(ctx, del.selectOldestNewOrder, wID, dID).Scan(&oID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return skippedDistrict, nil
			}
			return 0, errors.Wrap(err, "select new_order failed")
		}
		tag, err := tx.Exec(ctx, del.deleteNewOrder, wID, dID, oID)
		if err != nil {
			if isRetryableConflict(err) {
				// Only read committed reports a lost race as zero affected
				// rows. Stricter isolation levels abort instead.
				return 0, errors.WithHint(
					errors.Wrapf(err, "delete new_order w_id=%d d_id=%d o_id=%d failed", wID, dID, oID),
					"concurrent deliveries are only reconciled under read committed isolation")
			}
			return 0, errors.Wrap(err, "delete new_order failed")
		}
		if tag.RowsAffected() > 0 {
			return oID, nil
		}
		// A concurrent Delivery claimed this order first; pick the next one.
	}
}

func (del *delivery) deliverOrder(
	ctx context.Context, tx Tx, d *deliveryData, dID, oID int, olDeliveryD time.Time,
) error {
	if _, err := tx.Exec(ctx, del.updateOrder, d.oCarrierID, d.wID, dID, oID); err != nil {
		return errors.Wrap(err, "update order failed")
	}
	var cID int
	if err := tx.QueryRow(ctx, del.selectOrderCustomer, d.wID, dID, oID).Scan(&cID); err != nil {
		return wrapNotFound(err, "order o_w_id=%d o_d_id=%d o_id=%d", d.wID, dID, oID)
	}
	if _, err := tx.Exec(ctx, del.updateOrderLines, olDeliveryD, d.wID, dID, oID); err != nil {
		return errors.Wrap(err, "update order_line failed")
	}
	var amount *float64
	if err := tx.QueryRow(ctx, del.sumOrderLineAmount, d.wID, dID, oID).Scan(&amount); err != nil {
		return errors.Wrap(err, "select sum(ol_amount) failed")
	}
	if amount == nil {
		return integrityErrorf(
			"order lines ol_w_id=%d ol_d_id=%d ol_o_id=%d not found", d.wID, dID, oID,
		)
	}
	if _, err := tx.Exec(ctx, del.updateCustomer, *amount, d.wID, dID, cID); err != nil {
		return errors.Wrap(err, "update customer failed")
	}
	return nil
}
