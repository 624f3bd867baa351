// Copyright 2018 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package tpcc

import (
	"fmt"
	"io"
	"math"
	"sync"
	"sync/atomic"
)

const (
	minSignificantTransactions = 10000
)

// auditor maintains statistics about TPC-C input data and runs distribution
// checks, as specified in Clause 9.2 of TPC-C. It is shared by all
// terminals.
type auditor struct {
	sync.Mutex

	// warehouses are all warehouse ids. Remote warehouses are expected to
	// cover every one of them.
	warehouses []int
	// mix is the configured transaction mix.
	mix Mix

	// transaction counts
	newOrderTransactions    atomic.Uint64
	newOrderRollbacks       atomic.Uint64
	paymentTransactions     atomic.Uint64
	orderStatusTransactions atomic.Uint64
	deliveryTransactions    atomic.Uint64
	stockLevelTransactions  atomic.Uint64

	// map from order-lines count to the number of orders with that count
	orderLinesFreq map[int]uint64

	// sum of order lines across all orders
	totalOrderLines atomic.Uint64

	// map from warehouse to number of remote order lines for that warehouse
	orderLineRemoteWarehouseFreq map[int]uint64
	// map from warehouse to number of remote payments for that warehouse
	paymentRemoteWarehouseFreq map[int]uint64

	// counts of how many transactions select the customer by last name
	paymentsByLastName    atomic.Uint64
	orderStatusByLastName atomic.Uint64

	// number of districts a Delivery found no undelivered order for
	skippedDeliveries atomic.Uint64
}

func newAuditor(numWarehouses int, mix Mix) *auditor {
	warehouses := make([]int, numWarehouses)
	for i := range warehouses {
		warehouses[i] = i + 1
	}
	return &auditor{
		warehouses:                   warehouses,
		mix:                          mix,
		orderLinesFreq:               make(map[int]uint64),
		orderLineRemoteWarehouseFreq: make(map[int]uint64),
		paymentRemoteWarehouseFreq:   make(map[int]uint64),
	}
}

func (a *auditor) recordNewOrder(d *newOrderData) {
	a.newOrderTransactions.Add(1)
	a.totalOrderLines.Add(uint64(d.oOlCnt))
	a.Lock()
	defer a.Unlock()
	a.orderLinesFreq[d.oOlCnt]++
	for _, item := range d.items {
		if item.remote {
			a.orderLineRemoteWarehouseFreq[item.olSupplyW]++
		}
	}
}

func (a *auditor) recordPayment(d *paymentData) {
	a.paymentTransactions.Add(1)
	if d.byLastName {
		a.paymentsByLastName.Add(1)
	}
	if d.cWID != d.wID {
		a.Lock()
		a.paymentRemoteWarehouseFreq[d.cWID]++
		a.Unlock()
	}
}

func (a *auditor) recordOrderStatus(d *orderStatusData) {
	a.orderStatusTransactions.Add(1)
	if d.byLastName {
		a.orderStatusByLastName.Add(1)
	}
}

type auditResult struct {
	status      string // PASS, FAIL, or SKIP
	description string
}

var passResult = auditResult{status: "PASS"}

func newFailResult(format string, args ...interface{}) auditResult {
	return auditResult{"FAIL", fmt.Sprintf(format, args...)}
}

func newSkipResult(format string, args ...interface{}) auditResult {
	return auditResult{"SKIP", fmt.Sprintf(format, args...)}
}

// runChecks runs the audit checks and writes one line per check to w. It
// returns false if any check failed.
//
// When remote warehouses are confined to the home warehouse's shard, the
// remote distribution checks are expected to fail and are skipped instead.
func (a *auditor) runChecks(w io.Writer, sharded bool) bool {
	type check struct {
		name string
		f    func(a *auditor) auditResult
	}
	checks := []check{
		{"5.2.3", check523},
		{"9.2.1.7", check9217},
		{"9.2.2.5.1", check92251},
		{"9.2.2.5.2", check92252},
		{"9.2.2.5.5", check92255},
		{"9.2.2.5.6", check92256},
	}
	if !sharded {
		checks = append(checks,
			check{"9.2.2.5.3", check92253},
			check{"9.2.2.5.4", check92254},
		)
	}

	ok := true
	for _, check := range checks {
		result := check.f(a)
		if result.status == "FAIL" {
			ok = false
		}
		msg := fmt.Sprintf("Audit check %s: %s", check.name, result.status)
		if result.description == "" {
			fmt.Fprintln(w, msg)
		} else {
			fmt.Fprintln(w, msg+": "+result.description)
		}
	}
	return ok
}

func check523(a *auditor) auditResult {
	// The realized share of each transaction type is within one percentage
	// point of the configured mix.
	counts := [numTxTypes]uint64{
		newOrderType:    a.newOrderTransactions.Load(),
		paymentType:     a.paymentTransactions.Load(),
		orderStatusType: a.orderStatusTransactions.Load(),
		deliveryType:    a.deliveryTransactions.Load(),
		stockLevelType:  a.stockLevelTransactions.Load(),
	}
	var total uint64
	for _, c := range counts {
		total += c
	}
	if total < minSignificantTransactions {
		return newSkipResult("not enough transactions to be statistically significant")
	}
	weights := float64(a.mix.total())
	for t, c := range counts {
		expectedPct := 100 * float64(a.mix[t]) / weights
		pct := 100 * float64(c) / float64(total)
		if math.Abs(expectedPct-pct) > 1 {
			return newFailResult(
				"%s is %.1f percent of transactions, expected %.1f", txType(t), pct, expectedPct)
		}
	}
	return passResult
}

func check9217(a *auditor) auditResult {
	// Verify that no more than 1%, or no more than one (1), whichever is greater,
	// of the Delivery transactions skipped because there were fewer than
	// necessary orders present in the New-Order table.
	a.Lock()
	defer a.Unlock()

	if a.deliveryTransactions.Load() < minSignificantTransactions {
		return newSkipResult("not enough delivery transactions to be statistically significant")
	}

	threshold := uint64(1)
	if n := a.deliveryTransactions.Load(); n > 100 {
		threshold = n / 100
	}
	if skipped := a.skippedDeliveries.Load(); skipped > threshold {
		return newFailResult(
			"expected no more than %d skipped deliveries, got %d", threshold, skipped)
	}
	return passResult
}

func check92251(a *auditor) auditResult {
	// At least 0.9% and at most 1.1% of the New-Order transactions roll back as a
	// result of an unused item number.
	orders := a.newOrderTransactions.Load()
	if orders < minSignificantTransactions {
		return newSkipResult("not enough orders to be statistically significant")
	}
	rollbacks := a.newOrderRollbacks.Load()
	rollbackPct := 100 * float64(rollbacks) / float64(orders)
	if rollbackPct < 0.9 || rollbackPct > 1.1 {
		return newFailResult(
			"new order rollback percent %.1f is not between allowed bounds [0.9, 1.1]", rollbackPct)
	}
	return passResult
}

func check92252(a *auditor) auditResult {
	// The average number of order-lines per order is in the range of 9.5 to 10.5
	// and the number of order-lines is uniformly distributed from 5 to 15 for the
	// New-Order transactions that are submitted to the SUT during the measurement
	// interval.
	a.Lock()
	defer a.Unlock()

	if a.newOrderTransactions.Load() < minSignificantTransactions {
		return newSkipResult("not enough orders to be statistically significant")
	}

	avg := float64(a.totalOrderLines.Load()) / float64(a.newOrderTransactions.Load())
	if avg < 9.5 || avg > 10.5 {
		return newFailResult(
			"average order-lines count %.1f is not between allowed bounds [9.5, 10.5]", avg)
	}

	expectedPct := 100.0 / 11 // uniformly distributed across 11 possible values
	tolerance := 1.0          // allow 1 percent deviation from expected
	for i := 5; i <= 15; i++ {
		freq := a.orderLinesFreq[i]
		pct := 100 * float64(freq) / float64(a.newOrderTransactions.Load())
		if math.Abs(expectedPct-pct) > tolerance {
			return newFailResult(
				"order-lines count should be uniformly distributed from 5 to 15, but it was %d for %.1f "+
					"percent of orders", i, pct)
		}
	}
	return passResult
}

func check92253(a *auditor) auditResult {
	// The number of remote order-lines is at least 0.95% and at most 1.05% of the
	// number of order-lines that are filled in by the New-Order transactions that
	// are submitted to the SUT during the measurement interval, and the remote
	// warehouse numbers are uniformly distributed within the range of active
	// warehouses.
	a.Lock()
	defer a.Unlock()

	if len(a.warehouses) == 1 {
		// Not applicable when there are no remote warehouses.
		return passResult
	}
	if a.newOrderTransactions.Load() < minSignificantTransactions {
		return newSkipResult("not enough orders to be statistically significant")
	}

	var remoteOrderLines uint64
	for _, freq := range a.orderLineRemoteWarehouseFreq {
		remoteOrderLines += freq
	}
	remotePct := 100 * float64(remoteOrderLines) / float64(a.totalOrderLines.Load())
	if remotePct < 0.95 || remotePct > 1.05 {
		return newFailResult(
			"remote order-line percent %.1f is not between allowed bounds [0.95, 1.05]", remotePct)
	}

	// In the absence of a more sophisticated distribution check like a
	// chi-squared test, check each warehouse is used as a remote warehouse at
	// least once. We need the number of remote order-lines to be at least 15
	// times the number of warehouses (experimentally determined) to have this
	// expectation.
	if remoteOrderLines < 15*uint64(len(a.warehouses)) {
		return newSkipResult("insufficient data for remote warehouse distribution check")
	}
	for _, w := range a.warehouses {
		if _, ok := a.orderLineRemoteWarehouseFreq[w]; !ok {
			return newFailResult("no remote order-lines for warehouse %d", w)
		}
	}
	return passResult
}

func check92254(a *auditor) auditResult {
	// The number of remote Payment transactions is at least 14% and at most 16%
	// of the number of Payment transactions that are submitted to the SUT during
	// the measurement interval, and the remote warehouse numbers are uniformly
	// distributed within the range of active warehouses.
	a.Lock()
	defer a.Unlock()

	if len(a.warehouses) == 1 {
		// Not applicable when there are no remote warehouses.
		return passResult
	}
	if a.paymentTransactions.Load() < minSignificantTransactions {
		return newSkipResult("not enough payments to be statistically significant")
	}

	var remotePayments uint64
	for _, freq := range a.paymentRemoteWarehouseFreq {
		remotePayments += freq
	}
	remotePct := 100 * float64(remotePayments) / float64(a.paymentTransactions.Load())
	if remotePct < 14 || remotePct > 16 {
		return newFailResult(
			"remote payment percent %.1f is not between allowed bounds [14, 16]", remotePct)
	}

	if remotePayments < 15*uint64(len(a.warehouses)) {
		return newSkipResult("insufficient data for remote warehouse distribution check")
	}
	for _, w := range a.warehouses {
		if _, ok := a.paymentRemoteWarehouseFreq[w]; !ok {
			return newFailResult("no remote payments for warehouse %d", w)
		}
	}

	return passResult
}

func check92255(a *auditor) auditResult {
	// The number of customer selections by customer last name in the Payment
	// transaction is at least 57% and at most 63% of the number of Payment
	// transactions.
	a.Lock()
	defer a.Unlock()

	if a.paymentTransactions.Load() < minSignificantTransactions {
		return newSkipResult("not enough payments to be statistically significant")
	}
	lastNamePct := 100 * float64(a.paymentsByLastName.Load()) / float64(a.paymentTransactions.Load())
	if lastNamePct < 57 || lastNamePct > 63 {
		return newFailResult(
			"percent of customer selections by last name in payment transactions %.1f is not between "+
				"allowed bounds [57, 63]", lastNamePct)
	}

	return passResult
}

func check92256(a *auditor) auditResult {
	// The number of customer selections by customer last name in the Order-Status
	// transaction is at least 57% and at most 63% of the number of Order-Status
	// transactions.
	a.Lock()
	defer a.Unlock()

	if a.orderStatusTransactions.Load() < minSignificantTransactions {
		return newSkipResult("not enough order status transactions to be statistically significant")
	}
	lastNamePct := 100 * float64(a.orderStatusByLastName.Load()) / float64(a.orderStatusTransactions.Load())
	if lastNamePct < 57 || lastNamePct > 63 {
		return newFailResult(
			"percent of customer selections by last name in order status transactions %.1f is not "+
				"between allowed bounds [57, 63]", lastNamePct)
	}

	return passResult
}
