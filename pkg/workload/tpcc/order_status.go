// Copyright 2017 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package tpcc

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
)

// 2.6 The Order-Status Transaction
//
// The Order-Status business transaction queries the status of a customer's last
// order. It represents a mid-weight read-only database transaction with a low
// frequency of execution and response time requirement to satisfy on-line
// users. In addition, this table includes non-primary key access to the
// CUSTOMER table.

// undeliveredCarrierID stands for the NULL carrier of an order that has not
// been delivered yet.
const undeliveredCarrierID = -1

type orderStatusLine struct {
	olIID       int
	olSupplyWID int
	olQuantity  int
	olAmount    float64
	// olDeliveryD is the zero time for undelivered lines.
	olDeliveryD time.Time
}

type orderStatusData struct {
	// This data must all be returned by the transaction. See 2.6.3.4.
	wID        int
	dID        int
	cID        int
	cFirst     string
	cMiddle    string
	cLast      string
	cBalance   float64
	byLastName bool

	oID        int
	oEntryD    time.Time
	oCarrierID int

	// lines holds the order lines in line number order. Slots past the
	// order's line count are zero.
	lines [maxOrderLines]orderStatusLine
}

type orderStatus struct {
	config  *Config
	rng     *randGen
	auditor *auditor

	selectByLastName string
	selectCustomer   string
	selectLastOrder  string
	selectOrderLines string
}

var _ tpccTx = &orderStatus{}

func createOrderStatus(config *Config, rng *randGen, a *auditor) *orderStatus {
	o := &orderStatus{
		config:  config,
		rng:     rng,
		auditor: a,
	}

	o.selectByLastName = selectCustomerIDsByLastName

	o.selectCustomer = `
		SELECT c_first, c_middle, c_last, c_balance
		FROM bmsql_customer
		WHERE c_w_id = $1 AND c_d_id = $2 AND c_id = $3`

	// Pick the customer's most recent order.
	o.selectLastOrder = `
		SELECT o_id, o_entry_d, o_carrier_id
		FROM bmsql_oorder
		WHERE o_w_id = $1 AND o_d_id = $2 AND o_c_id = $3
		  AND o_id = (
		      SELECT max(o_id)
		      FROM bmsql_oorder
		      WHERE o_w_id = $1 AND o_d_id = $2 AND o_c_id = $3
		  )`

	o.selectOrderLines = `
		SELECT ol_i_id, ol_supply_w_id, ol_quantity, ol_amount, ol_delivery_d
		FROM bmsql_order_line
		WHERE ol_w_id = $1 AND ol_d_id = $2 AND ol_o_id = $3
		ORDER BY ol_w_id, ol_d_id, ol_o_id, ol_number`

	return o
}

// generate draws the inputs of an Order-Status. See 2.6.1.
func (o *orderStatus) generate(wID int) orderStatusData {
	rng := o.rng
	d := orderStatusData{
		wID: wID,
		dID: rng.uniform(1, numDistrictsPerWH),
	}
	// 2.6.1.2: The customer is randomly selected 60% of the time by last name
	// and 40% by number.
	if rng.uniform(1, 100) <= 60 {
		d.cLast = rng.skewedLastName()
		d.byLastName = true
	} else {
		d.cID = rng.customerID()
	}
	return d
}

func (o *orderStatus) run(ctx context.Context, tx Tx, wID int) (txResult, error) {
	d := o.generate(wID)
	o.auditor.recordOrderStatus(&d)

	if err := o.execute(ctx, tx, &d); err != nil {
		return txResult{}, err
	}
	// Order-Status is read-only and always ends with a rollback.
	if err := tx.Rollback(ctx); err != nil {
		return txResult{}, errors.Wrap(err, "rollback failed")
	}
	return txResult{data: d, rollback: true}, nil
}

func (o *orderStatus) execute(ctx context.Context, tx Tx, d *orderStatusData) error {
	if d.byLastName {
		cID, err := selectCustomerByLastName(ctx, tx, o.selectByLastName, d.wID, d.dID, d.cLast)
		if err != nil {
			return err
		}
		d.cID = cID
	}

	if err := tx.QueryRow(ctx, o.selectCustomer, d.wID, d.dID, d.cID).Scan(
		&d.cFirst, &d.cMiddle, &d.cLast, &d.cBalance,
	); err != nil {
		return wrapNotFound(err, "customer c_w_id=%d c_d_id=%d c_id=%d", d.wID, d.dID, d.cID)
	}

	var carrierID *int
	if err := tx.QueryRow(ctx, o.selectLastOrder, d.wID, d.dID, d.cID).Scan(
		&d.oID, &d.oEntryD, &carrierID,
	); err != nil {
		return wrapNotFound(err, "last order o_w_id=%d o_d_id=%d o_c_id=%d", d.wID, d.dID, d.cID)
	}
	d.oCarrierID = undeliveredCarrierID
	if carrierID != nil {
		d.oCarrierID = *carrierID
	}

	rows, err := tx.Query(ctx, o.selectOrderLines, d.wID, d.dID, d.oID)
	if err != nil {
		return errors.Wrap(err, "select order lines failed")
	}
	defer rows.Close()
	n := 0
	for rows.Next() {
		if n == maxOrderLines {
			return integrityErrorf(
				"order o_w_id=%d o_d_id=%d o_id=%d has more than %d lines",
				d.wID, d.dID, d.oID, maxOrderLines,
			)
		}
		l := &d.lines[n]
		var deliveryD *time.Time
		if err := rows.Scan(
			&l.olIID, &l.olSupplyWID, &l.olQuantity, &l.olAmount, &deliveryD,
		); err != nil {
			return errors.Wrap(err, "select order lines failed")
		}
		if deliveryD != nil {
			l.olDeliveryD = *deliveryD
		}
		n++
	}
	return errors.Wrap(rows.Err(), "select order lines failed")
}
