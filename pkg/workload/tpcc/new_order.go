// Copyright 2017 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package tpcc

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
)

// From TPC-C, section 2.4:
//
// The New-Order business transaction consists of entering a complete order
// through a single database transaction. It represents a mid-weight, read-write
// transaction with a high frequency of execution and stringent response time
// requirements to satisfy on-line users. This transaction is the backbone of
// the workload. It is designed to place a variable load on the system to
// reflect on-line database activity as typically found in production
// environments.

type orderItem struct {
	// Inputs.
	olNumber  int
	olIID     int
	olSupplyW int
	olQty     int
	remote    bool

	// Outputs. See 2.4.3.3.
	iName        string
	iPrice       float64
	sQuantity    int
	brandGeneric string
	olAmount     float64
	distInfo     string
}

type newOrderData struct {
	// This data must all be returned by the transaction. See 2.4.3.3.
	wID         int
	dID         int
	cID         int
	oID         int
	oOlCnt      int
	allLocal    bool
	invalidItem bool
	items       []orderItem

	cLast       string
	cCredit     string
	cDiscount   float64
	wTax        float64
	dTax        float64
	oEntryD     time.Time
	totalAmount float64
}

type newOrder struct {
	config  *Config
	rng     *randGen
	auditor *auditor

	selectDistrict     string
	selectWhseCust     string
	updateDistrict     string
	insertOrder        string
	insertNewOrder     string
	selectItem         string
	selectStock        string
	updateStock        string
	insertOrderLine    string
	insertOrderLineHdr string
}

var _ tpccTx = &newOrder{}

func createNewOrder(config *Config, rng *randGen, a *auditor) *newOrder {
	n := &newOrder{
		config:  config,
		rng:     rng,
		auditor: a,
	}

	n.selectDistrict = `
		SELECT d_tax, d_next_o_id
		FROM bmsql_district
		WHERE d_w_id = $1 AND d_id = $2
		FOR UPDATE`

	n.selectWhseCust = `
		SELECT c_discount, c_last, c_credit, w_tax
		FROM bmsql_customer
		JOIN bmsql_warehouse ON (w_id = c_w_id)
		WHERE c_w_id = $1 AND c_d_id = $2 AND c_id = $3`

	n.updateDistrict = `
		UPDATE bmsql_district
		SET d_next_o_id = d_next_o_id + 1
		WHERE d_w_id = $1 AND d_id = $2`

	n.insertOrder = `
		INSERT INTO bmsql_oorder (o_id, o_d_id, o_w_id, o_c_id, o_entry_d, o_ol_cnt, o_all_local)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	n.insertNewOrder = `
		INSERT INTO bmsql_new_order (no_o_id, no_d_id, no_w_id)
		VALUES ($1, $2, $3)`

	if config.RouteItemByHint {
		// The warehouse is only there so that a sharding layer can route the
		// lookup of the replicated item table to the home shard.
		n.selectItem = `
		SELECT i_price, i_name, i_data
		FROM bmsql_item, bmsql_warehouse
		WHERE i_id = $1 AND w_id = $2`
	} else {
		n.selectItem = `
		SELECT i_price, i_name, i_data
		FROM bmsql_item
		WHERE i_id = $1`
	}

	n.selectStock = `
		SELECT s_quantity, s_data,
		       s_dist_01, s_dist_02, s_dist_03, s_dist_04, s_dist_05,
		       s_dist_06, s_dist_07, s_dist_08, s_dist_09, s_dist_10
		FROM bmsql_stock
		WHERE s_w_id = $1 AND s_i_id = $2
		FOR UPDATE`

	n.updateStock = `
		UPDATE bmsql_stock
		SET s_quantity = $1, s_ytd = s_ytd + $2,
		    s_order_cnt = s_order_cnt + 1,
		    s_remote_cnt = s_remote_cnt + $3
		WHERE s_w_id = $4 AND s_i_id = $5`

	n.insertOrderLineHdr = `INSERT INTO bmsql_order_line (
		ol_o_id, ol_d_id, ol_w_id, ol_number, ol_i_id,
		ol_supply_w_id, ol_quantity, ol_amount, ol_dist_info) VALUES `
	n.insertOrderLine = n.insertOrderLineHdr + `($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	return n
}

// generate draws the inputs of a New-Order for home warehouse wID. See 2.4.1.
func (n *newOrder) generate(wID int) newOrderData {
	rng := n.rng
	d := newOrderData{
		wID:      wID,
		dID:      rng.uniform(1, numDistrictsPerWH),
		cID:      rng.customerID(),
		oOlCnt:   rng.uniform(minOrderLines, maxOrderLines),
		allLocal: true,
	}
	d.items = make([]orderItem, d.oOlCnt)

	// itemIDs tracks the item ids of the order so far; TPC-C order lines are
	// for distinct items.
	itemIDs := make(map[int]struct{}, d.oOlCnt)
	for i := range d.items {
		item := &d.items[i]
		for {
			item.olIID = rng.itemID()
			if _, ok := itemIDs[item.olIID]; !ok {
				break
			}
		}
		itemIDs[item.olIID] = struct{}{}

		// 2.4.1.5.2: 1% of the lines are supplied by a remote warehouse.
		item.olSupplyW = wID
		if rng.uniform(1, 100) == 1 {
			item.olSupplyW = n.config.router.remote(rng, wID)
		}
		if item.olSupplyW != wID {
			item.remote = true
			d.allLocal = false
		}
		item.olQty = rng.uniform(1, 10)
	}

	// 2.4.1.4: 1% of the orders have an unused item number on the last line.
	if rng.uniform(1, 100) == 1 {
		last := &d.items[d.oOlCnt-1]
		last.olIID = rng.uniform(1, 9)*1000000 + last.olIID
		d.invalidItem = true
	}

	// When processing the order lines we must select the STOCK rows FOR
	// UPDATE. Two New-Orders locking the same stock rows in opposite orders
	// would deadlock, so the lines are processed in (ol_supply_w_id, ol_i_id)
	// order.
	sort.Slice(d.items, func(i, j int) bool {
		a, b := d.items[i], d.items[j]
		if a.olSupplyW != b.olSupplyW {
			return a.olSupplyW < b.olSupplyW
		}
		return a.olIID < b.olIID
	})
	for i := range d.items {
		d.items[i].olNumber = i + 1
	}
	return d
}

func (n *newOrder) run(ctx context.Context, tx Tx, wID int) (txResult, error) {
	d := n.generate(wID)
	d.oEntryD = time.Now()
	n.auditor.recordNewOrder(&d)

	err := n.execute(ctx, tx, &d)
	if errors.Is(err, errInvalidItem) {
		// 2.4.2.3: the unused item number rolls the whole transaction back.
		if err := tx.Rollback(ctx); err != nil {
			return txResult{}, errors.Wrap(err, "rollback failed")
		}
		n.auditor.newOrderRollbacks.Add(1)
		return txResult{data: d, rollback: true}, nil
	}
	if err != nil {
		return txResult{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return txResult{}, errors.Wrap(err, "commit failed")
	}
	return txResult{data: d}, nil
}

func (n *newOrder) execute(ctx context.Context, tx Tx, d *newOrderData) error {
	if err := tx.QueryRow(
		ctx, n.selectDistrict, d.wID, d.dID,
	).Scan(&d.dTax, &d.oID); err != nil {
		return wrapNotFound(err, "district w_id=%d d_id=%d", d.wID, d.dID)
	}

	if err := tx.QueryRow(
		ctx, n.selectWhseCust, d.wID, d.dID, d.cID,
	).Scan(&d.cDiscount, &d.cLast, &d.cCredit, &d.wTax); err != nil {
		return wrapNotFound(err, "warehouse or customer w_id=%d d_id=%d c_id=%d", d.wID, d.dID, d.cID)
	}

	if _, err := tx.Exec(ctx, n.updateDistrict, d.wID, d.dID); err != nil {
		return errors.Wrap(err, "update district failed")
	}

	allLocal := 0
	if d.allLocal {
		allLocal = 1
	}
	if _, err := tx.Exec(
		ctx, n.insertOrder, d.oID, d.dID, d.wID, d.cID, d.oEntryD, d.oOlCnt, allLocal,
	); err != nil {
		return errors.Wrap(err, "insert order failed")
	}
	if _, err := tx.Exec(ctx, n.insertNewOrder, d.oID, d.dID, d.wID); err != nil {
		return errors.Wrap(err, "insert new_order failed")
	}

	stockUpdates := make([][]any, 0, len(d.items))
	orderLines := make([][]any, 0, len(d.items))
	for i := range d.items {
		item := &d.items[i]
		if err := n.processItem(ctx, tx, d, item); err != nil {
			return err
		}
		remote := 0
		if item.remote {
			remote = 1
		}
		stockUpdates = append(stockUpdates, []any{
			newStockQuantity(item.sQuantity, item.olQty), item.olQty, remote,
			item.olSupplyW, item.olIID,
		})
		orderLines = append(orderLines, []any{
			d.oID, d.dID, d.wID, item.olNumber, item.olIID,
			item.olSupplyW, item.olQty, item.olAmount, item.distInfo,
		})
	}

	if err := tx.ExecBatch(ctx, n.updateStock, stockUpdates); err != nil {
		return errors.Wrap(err, "update stock failed")
	}
	if n.config.MultiValuesInsert {
		stmt, args := multiValuesInsert(n.insertOrderLineHdr, orderLines)
		if _, err := tx.Exec(ctx, stmt, args...); err != nil {
			return errors.Wrap(err, "insert order_line failed")
		}
	} else if err := tx.ExecBatch(ctx, n.insertOrderLine, orderLines); err != nil {
		return errors.Wrap(err, "insert order_line failed")
	}
	return nil
}

func (n *newOrder) processItem(
	ctx context.Context, tx Tx, d *newOrderData, item *orderItem,
) error {
	args := []any{item.olIID}
	if n.config.RouteItemByHint {
		args = append(args, d.wID)
	}
	var iData string
	if err := tx.QueryRow(ctx, n.selectItem, args...).Scan(
		&item.iPrice, &item.iName, &iData,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) && (item.olIID < 1 || item.olIID > numItems) {
			return errInvalidItem
		}
		return wrapNotFound(err, "item i_id=%d", item.olIID)
	}

	var sData string
	var distInfo [numDistrictsPerWH]string
	if err := tx.QueryRow(ctx, n.selectStock, item.olSupplyW, item.olIID).Scan(
		&item.sQuantity, &sData,
		&distInfo[0], &distInfo[1], &distInfo[2], &distInfo[3], &distInfo[4],
		&distInfo[5], &distInfo[6], &distInfo[7], &distInfo[8], &distInfo[9],
	); err != nil {
		return wrapNotFound(err, "stock s_w_id=%d s_i_id=%d", item.olSupplyW, item.olIID)
	}
	item.distInfo = distInfo[d.dID-1]

	// 2.4.2.2: brand-generic is "B" when both the item and the stock data
	// contain "ORIGINAL".
	if strings.Contains(iData, originalString) && strings.Contains(sData, originalString) {
		item.brandGeneric = "B"
	} else {
		item.brandGeneric = "G"
	}
	item.olAmount = float64(item.olQty) * item.iPrice
	d.totalAmount += item.olAmount * (1 - d.cDiscount) * (1 + d.wTax + d.dTax)
	return nil
}

// newStockQuantity applies 2.4.2.2: the stock is decreased by the ordered
// quantity and restocked by 91 if that would leave fewer than 10 items.
func newStockQuantity(sQuantity, olQty int) int {
	if q := sQuantity - olQty; q >= 10 {
		return q
	}
	return sQuantity - olQty + 91
}

// multiValuesInsert builds one INSERT ... VALUES (...), (...) statement for
// rows. prefix must end with "VALUES ".
func multiValuesInsert(prefix string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString(prefix)
	var args []any
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j := range row {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", len(args)+j+1)
		}
		b.WriteByte(')')
		args = append(args, row...)
	}
	return b.String(), args
}
