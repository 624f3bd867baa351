// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package tpcc

import (
	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
)

// ErrDataIntegrity is wrapped by errors raised when a row that the schema
// guarantees to exist is missing.
var ErrDataIntegrity = errors.New("data integrity violation")

// integrityErrorf returns an error wrapping ErrDataIntegrity.
func integrityErrorf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrDataIntegrity, format, args...)
}

// errInvalidItem aborts a New-Order that ran into its deliberately unused
// item id. It never leaves the New-Order profile.
var errInvalidItem = errors.New("item number is not valid")

// wrapNotFound turns pgx.ErrNoRows into a data integrity violation described
// by the format arguments. Other errors are wrapped with the same message.
func wrapNotFound(err error, format string, args ...interface{}) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return integrityErrorf(format+" not found", args...)
	}
	return errors.Wrapf(err, format, args...)
}

// txResult is the outcome of a transaction profile that did not fail.
type txResult struct {
	// data is the profile's output carrier.
	data interface{}
	// rollback is set when the profile ended its unit of work with a
	// rollback, which is the expected outcome of Order-Status, Stock-Level
	// and New-Orders with an invalid item.
	rollback bool
	// skipped is the number of districts Delivery found no order for.
	skipped int
}
