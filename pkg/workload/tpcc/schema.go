// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package tpcc

import (
	"context"

	crdbpgx "github.com/cockroachdb/cockroach-go/v2/crdb/crdbpgxv5"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/tpccbench/pkg/util/log"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	tpccWarehouseSchema = `
		CREATE TABLE IF NOT EXISTS bmsql_warehouse (
			w_id       integer      NOT NULL,
			w_ytd      decimal(12,2),
			w_tax      decimal(4,4),
			w_name     varchar(10),
			w_street_1 varchar(20),
			w_street_2 varchar(20),
			w_city     varchar(20),
			w_state    char(2),
			w_zip      char(9),
			PRIMARY KEY (w_id)
		)`

	tpccDistrictSchema = `
		CREATE TABLE IF NOT EXISTS bmsql_district (
			d_w_id      integer     NOT NULL,
			d_id        integer     NOT NULL,
			d_ytd       decimal(12,2),
			d_tax       decimal(4,4),
			d_next_o_id integer,
			d_name      varchar(10),
			d_street_1  varchar(20),
			d_street_2  varchar(20),
			d_city      varchar(20),
			d_state     char(2),
			d_zip       char(9),
			PRIMARY KEY (d_w_id, d_id)
		)`

	tpccCustomerSchema = `
		CREATE TABLE IF NOT EXISTS bmsql_customer (
			c_w_id         integer     NOT NULL,
			c_d_id         integer     NOT NULL,
			c_id           integer     NOT NULL,
			c_discount     decimal(4,4),
			c_credit       char(2),
			c_last         varchar(16),
			c_first        varchar(16),
			c_credit_lim   decimal(12,2),
			c_balance      decimal(12,2),
			c_ytd_payment  decimal(12,2),
			c_payment_cnt  integer,
			c_delivery_cnt integer,
			c_street_1     varchar(20),
			c_street_2     varchar(20),
			c_city         varchar(20),
			c_state        char(2),
			c_zip          char(9),
			c_phone        char(16),
			c_since        timestamp,
			c_middle       char(2),
			c_data         varchar(500),
			PRIMARY KEY (c_w_id, c_d_id, c_id)
		)`

	tpccCustomerIndex = `
		CREATE INDEX IF NOT EXISTS bmsql_customer_idx1
		ON bmsql_customer (c_w_id, c_d_id, c_last, c_first)`

	tpccHistorySchema = `
		CREATE TABLE IF NOT EXISTS bmsql_history (
			h_c_id   integer,
			h_c_d_id integer,
			h_c_w_id integer,
			h_d_id   integer,
			h_w_id   integer,
			h_date   timestamp,
			h_amount decimal(6,2),
			h_data   varchar(24)
		)`

	tpccNewOrderSchema = `
		CREATE TABLE IF NOT EXISTS bmsql_new_order (
			no_w_id integer NOT NULL,
			no_d_id integer NOT NULL,
			no_o_id integer NOT NULL,
			PRIMARY KEY (no_w_id, no_d_id, no_o_id)
		)`

	tpccOrderSchema = `
		CREATE TABLE IF NOT EXISTS bmsql_oorder (
			o_w_id       integer     NOT NULL,
			o_d_id       integer     NOT NULL,
			o_id         integer     NOT NULL,
			o_c_id       integer,
			o_carrier_id integer,
			o_ol_cnt     integer,
			o_all_local  integer,
			o_entry_d    timestamp,
			PRIMARY KEY (o_w_id, o_d_id, o_id)
		)`

	tpccOrderIndex = `
		CREATE UNIQUE INDEX IF NOT EXISTS bmsql_oorder_idx1
		ON bmsql_oorder (o_w_id, o_d_id, o_carrier_id, o_id)`

	tpccOrderLineSchema = `
		CREATE TABLE IF NOT EXISTS bmsql_order_line (
			ol_w_id        integer   NOT NULL,
			ol_d_id        integer   NOT NULL,
			ol_o_id        integer   NOT NULL,
			ol_number      integer   NOT NULL,
			ol_i_id        integer   NOT NULL,
			ol_delivery_d  timestamp,
			ol_amount      decimal(6,2),
			ol_supply_w_id integer,
			ol_quantity    integer,
			ol_dist_info   char(24),
			PRIMARY KEY (ol_w_id, ol_d_id, ol_o_id, ol_number)
		)`

	tpccItemSchema = `
		CREATE TABLE IF NOT EXISTS bmsql_item (
			i_id    integer      NOT NULL,
			i_name  varchar(24),
			i_price decimal(5,2),
			i_data  varchar(50),
			i_im_id integer,
			PRIMARY KEY (i_id)
		)`

	tpccStockSchema = `
		CREATE TABLE IF NOT EXISTS bmsql_stock (
			s_w_id       integer     NOT NULL,
			s_i_id       integer     NOT NULL,
			s_quantity   integer,
			s_ytd        integer,
			s_order_cnt  integer,
			s_remote_cnt integer,
			s_data       varchar(50),
			s_dist_01    char(24),
			s_dist_02    char(24),
			s_dist_03    char(24),
			s_dist_04    char(24),
			s_dist_05    char(24),
			s_dist_06    char(24),
			s_dist_07    char(24),
			s_dist_08    char(24),
			s_dist_09    char(24),
			s_dist_10    char(24),
			PRIMARY KEY (s_w_id, s_i_id)
		)`
)

// schemaStatements creates the tables in dependency order.
var schemaStatements = []string{
	tpccWarehouseSchema,
	tpccDistrictSchema,
	tpccCustomerSchema,
	tpccCustomerIndex,
	tpccHistorySchema,
	tpccNewOrderSchema,
	tpccOrderSchema,
	tpccOrderIndex,
	tpccOrderLineSchema,
	tpccItemSchema,
	tpccStockSchema,
}

// tableNames lists the tables in the reverse order of their creation.
var tableNames = []string{
	"bmsql_stock",
	"bmsql_item",
	"bmsql_order_line",
	"bmsql_oorder",
	"bmsql_new_order",
	"bmsql_history",
	"bmsql_customer",
	"bmsql_district",
	"bmsql_warehouse",
}

// CreateSchema creates the tables and indexes that do not exist yet.
func CreateSchema(ctx context.Context, pool *pgxpool.Pool) error {
	err := crdbpgx.ExecuteTx(ctx, pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, stmt := range schemaStatements {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "creating schema failed")
	}
	log.Infof(ctx, "created %d tables", len(tableNames))
	return nil
}

// DropSchema drops all tables, including their data.
func DropSchema(ctx context.Context, pool *pgxpool.Pool) error {
	err := crdbpgx.ExecuteTx(ctx, pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, name := range tableNames {
			if _, err := tx.Exec(ctx, "DROP TABLE IF EXISTS "+name); err != nil {
				return errors.Wrapf(err, "dropping %s", name)
			}
		}
		return nil
	})
	return errors.Wrap(err, "dropping schema failed")
}
