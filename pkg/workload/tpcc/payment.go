// Copyright 2017 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package tpcc

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
)

// Section 2.5:
//
// The Payment business transaction updates the customer's balance and reflects
// the payment on the district and warehouse sales statistics. It represents a
// light-weight, read-write transaction with a high frequency of execution and
// stringent response time requirements to satisfy on-line users. In addition,
// this transaction includes non-primary key access to the CUSTOMER table.

type paymentData struct {
	// This data must all be returned by the transaction. See 2.5.3.4.
	wID  int
	dID  int
	cID  int
	cDID int
	cWID int

	wName    string
	wStreet1 string
	wStreet2 string
	wCity    string
	wState   string
	wZip     string

	dName    string
	dStreet1 string
	dStreet2 string
	dCity    string
	dState   string
	dZip     string

	cFirst     string
	cMiddle    string
	cLast      string
	cStreet1   string
	cStreet2   string
	cCity      string
	cState     string
	cZip       string
	cPhone     string
	cSince     time.Time
	cCredit    string
	cCreditLim float64
	cDiscount  float64
	cBalance   float64
	cData      string

	byLastName bool
	hAmount    float64
	hDate      time.Time
}

// maxCDataLength is the size of C_DATA. See 2.5.2.2.
const maxCDataLength = 500

type payment struct {
	config  *Config
	rng     *randGen
	auditor *auditor

	updateDistrict        string
	selectDistrict        string
	updateWarehouse       string
	selectWarehouse       string
	selectByLastName      string
	selectCustomer        string
	selectCustomerData    string
	updateCustomer        string
	updateCustomerWithBad string
	insertHistory         string
}

var _ tpccTx = &payment{}

func createPayment(config *Config, rng *randGen, a *auditor) *payment {
	p := &payment{
		config:  config,
		rng:     rng,
		auditor: a,
	}

	p.updateDistrict = `
		UPDATE bmsql_district
		SET d_ytd = d_ytd + $1
		WHERE d_w_id = $2 AND d_id = $3`

	p.selectDistrict = `
		SELECT d_name, d_street_1, d_street_2, d_city, d_state, d_zip
		FROM bmsql_district
		WHERE d_w_id = $1 AND d_id = $2`

	p.updateWarehouse = `
		UPDATE bmsql_warehouse
		SET w_ytd = w_ytd + $1
		WHERE w_id = $2`

	p.selectWarehouse = `
		SELECT w_name, w_street_1, w_street_2, w_city, w_state, w_zip
		FROM bmsql_warehouse
		WHERE w_id = $1`

	p.selectByLastName = selectCustomerIDsByLastName

	p.selectCustomer = `
		SELECT c_first, c_middle, c_last, c_street_1, c_street_2,
		       c_city, c_state, c_zip, c_phone, c_since, c_credit,
		       c_credit_lim, c_discount, c_balance
		FROM bmsql_customer
		WHERE c_w_id = $1 AND c_d_id = $2 AND c_id = $3
		FOR UPDATE`

	p.selectCustomerData = `
		SELECT c_data
		FROM bmsql_customer
		WHERE c_w_id = $1 AND c_d_id = $2 AND c_id = $3`

	p.updateCustomer = `
		UPDATE bmsql_customer
		SET c_balance = c_balance - $1,
		    c_ytd_payment = c_ytd_payment + $2,
		    c_payment_cnt = c_payment_cnt + 1
		WHERE c_w_id = $3 AND c_d_id = $4 AND c_id = $5`

	p.updateCustomerWithBad = `
		UPDATE bmsql_customer
		SET c_balance = c_balance - $1,
		    c_ytd_payment = c_ytd_payment + $2,
		    c_payment_cnt = c_payment_cnt + 1,
		    c_data = $3
		WHERE c_w_id = $4 AND c_d_id = $5 AND c_id = $6`

	p.insertHistory = `
		INSERT INTO bmsql_history (h_c_id, h_c_d_id, h_c_w_id, h_d_id, h_w_id, h_date, h_amount, h_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	return p
}

// generate draws the inputs of a Payment for home warehouse wID. See 2.5.1.
func (p *payment) generate(wID int) paymentData {
	rng := p.rng
	d := paymentData{
		wID: wID,
		dID: rng.uniform(1, numDistrictsPerWH),
		// hAmount is randomly selected within [1.00..5000.00]
		hAmount: rng.amount(100, 500000),
	}
	d.cWID, d.cDID = d.wID, d.dID

	// 2.5.1.2: 85% chance of paying through home warehouse, otherwise
	// remote.
	if rng.uniform(1, 100) > 85 {
		d.cDID = rng.uniform(1, numDistrictsPerWH)
		d.cWID = p.config.router.remote(rng, wID)
	}

	// 2.5.1.2: The customer is randomly selected 60% of the time by last name
	// and 40% by number.
	if rng.uniform(1, 100) <= 60 {
		d.cLast = rng.skewedLastName()
		d.byLastName = true
	} else {
		d.cID = rng.customerID()
	}
	return d
}

func (p *payment) run(ctx context.Context, tx Tx, wID int) (txResult, error) {
	d := p.generate(wID)
	d.hDate = time.Now()
	p.auditor.recordPayment(&d)

	if err := p.execute(ctx, tx, &d); err != nil {
		return txResult{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return txResult{}, errors.Wrap(err, "commit failed")
	}
	return txResult{data: d}, nil
}

func (p *payment) execute(ctx context.Context, tx Tx, d *paymentData) error {
	if _, err := tx.Exec(ctx, p.updateDistrict, d.hAmount, d.wID, d.dID); err != nil {
		return errors.Wrap(err, "update district failed")
	}
	if err := tx.QueryRow(ctx, p.selectDistrict, d.wID, d.dID).Scan(
		&d.dName, &d.dStreet1, &d.dStreet2, &d.dCity, &d.dState, &d.dZip,
	); err != nil {
		return wrapNotFound(err, "district w_id=%d d_id=%d", d.wID, d.dID)
	}

	if _, err := tx.Exec(ctx, p.updateWarehouse, d.hAmount, d.wID); err != nil {
		return errors.Wrap(err, "update warehouse failed")
	}
	if err := tx.QueryRow(ctx, p.selectWarehouse, d.wID).Scan(
		&d.wName, &d.wStreet1, &d.wStreet2, &d.wCity, &d.wState, &d.wZip,
	); err != nil {
		return wrapNotFound(err, "warehouse w_id=%d", d.wID)
	}

	if d.byLastName {
		cID, err := selectCustomerByLastName(ctx, tx, p.selectByLastName, d.cWID, d.cDID, d.cLast)
		if err != nil {
			return err
		}
		d.cID = cID
	}

	var cLast string
	if err := tx.QueryRow(ctx, p.selectCustomer, d.cWID, d.cDID, d.cID).Scan(
		&d.cFirst, &d.cMiddle, &cLast, &d.cStreet1, &d.cStreet2,
		&d.cCity, &d.cState, &d.cZip, &d.cPhone, &d.cSince, &d.cCredit,
		&d.cCreditLim, &d.cDiscount, &d.cBalance,
	); err != nil {
		return wrapNotFound(err, "customer c_w_id=%d c_d_id=%d c_id=%d", d.cWID, d.cDID, d.cID)
	}
	d.cLast = cLast
	d.cBalance -= d.hAmount

	if d.cCredit == badCredit {
		// 2.5.2.2: a customer with bad credit gets the payment prepended to
		// C_DATA.
		var cData string
		if err := tx.QueryRow(ctx, p.selectCustomerData, d.cWID, d.cDID, d.cID).Scan(&cData); err != nil {
			return wrapNotFound(err, "customer data c_w_id=%d c_d_id=%d c_id=%d", d.cWID, d.cDID, d.cID)
		}
		d.cData = badCreditData(d, cData)
		if _, err := tx.Exec(
			ctx, p.updateCustomerWithBad, d.hAmount, d.hAmount, d.cData, d.cWID, d.cDID, d.cID,
		); err != nil {
			return errors.Wrap(err, "update customer failed")
		}
	} else if _, err := tx.Exec(
		ctx, p.updateCustomer, d.hAmount, d.hAmount, d.cWID, d.cDID, d.cID,
	); err != nil {
		return errors.Wrap(err, "update customer failed")
	}

	hData := d.wName + "    " + d.dName
	if _, err := tx.Exec(
		ctx, p.insertHistory, d.cID, d.cDID, d.cWID, d.dID, d.wID, d.hDate, d.hAmount, hData,
	); err != nil {
		return errors.Wrap(err, "insert history failed")
	}
	return nil
}

// badCreditData returns the new C_DATA of a customer with bad credit: the
// payment, followed by the old data, truncated to maxCDataLength.
func badCreditData(d *paymentData, old string) string {
	s := fmt.Sprintf("C_ID=%d C_D_ID=%d C_W_ID=%d D_ID=%d W_ID=%d H_AMOUNT=%.2f   ",
		d.cID, d.cDID, d.cWID, d.dID, d.wID, d.hAmount) + old
	if len(s) > maxCDataLength {
		s = s[:maxCDataLength]
	}
	return s
}

const selectCustomerIDsByLastName = `
		SELECT c_id
		FROM bmsql_customer
		WHERE c_w_id = $1 AND c_d_id = $2 AND c_last = $3
		ORDER BY c_first`

// lastNamePickIndex returns the 0-based index of the customer picked among n
// customers sharing a last name: position ceil((n+1)/2) of the list sorted by
// first name. See 2.5.2.2 and 2.6.2.2.
func lastNamePickIndex(n int) int {
	return n / 2
}

// selectCustomerByLastName resolves a customer id from its last name. See
// 2.5.2.2 Case 2.
func selectCustomerByLastName(
	ctx context.Context, tx Tx, stmt string, wID, dID int, cLast string,
) (int, error) {
	rows, err := tx.Query(ctx, stmt, wID, dID, cLast)
	if err != nil {
		return 0, errors.Wrap(err, "select by last name failed")
	}
	defer rows.Close()
	customers := make([]int, 0, 4)
	for rows.Next() {
		var cID int
		if err := rows.Scan(&cID); err != nil {
			return 0, errors.Wrap(err, "select by last name failed")
		}
		customers = append(customers, cID)
	}
	if err := rows.Err(); err != nil {
		return 0, errors.Wrap(err, "select by last name failed")
	}
	if len(customers) == 0 {
		return 0, integrityErrorf(
			"customers c_w_id=%d c_d_id=%d c_last=%s not found", wID, dID, cLast,
		)
	}
	return customers[lastNamePickIndex(len(customers))], nil
}
