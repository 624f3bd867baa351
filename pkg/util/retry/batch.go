// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package retry

import (
	"context"

	"github.com/cockroachdb/errors"
)

// Batch manages a batched operation over Total items, allowing retries for
// failures. It processes items in chunks, halving the chunk size whenever a
// retriable error is encountered. Users must provide a `Do` function to
// define the batch operation and can optionally define retry behavior using
// `IsRetriableError` and `OnRetry`.
type Batch struct {
	// Total is the number of items to process across all batches.
	Total int64

	// Do executes the batch operation. It receives the number of items already
	// processed in previous successful batches and the size of the next batch.
	// If the entire batch is processed successfully, it returns nil.
	Do func(ctx context.Context, processed, batchSize int64) error

	// IsRetriableError determines whether an error is retriable. If it is nil
	// or returns false, the error is returned to the caller.
	IsRetriableError func(error) bool

	// OnRetry is an optional function for handling retries (e.g., logging
	// errors). It receives the last encountered error and the batch size of the
	// next attempt. It must return nil if you want to retry with a smaller batch.
	OnRetry func(err error, batchSize int64) error

	batchSize int64
	processed int64
}

// Processed returns the number of items processed so far.
func (b *Batch) Processed() int64 {
	return b.processed
}

// Start processes all Total items, starting with chunks of batchSize. The
// size of a successful batch is kept for the following ones, capped by the
// number of items left.
func (b *Batch) Start(ctx context.Context, batchSize int64) error {
	const minBatchSize = 1

	if batchSize <= 0 {
		return errors.AssertionFailedf("batch size must be a positive number: %d", batchSize)
	}
	if b.Total < 0 {
		return errors.AssertionFailedf("total must not be negative: %d", b.Total)
	}

	b.batchSize = min(batchSize, b.Total)
	for b.processed = 0; b.processed < b.Total; {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := b.Do(ctx, b.processed, b.batchSize)
		if err == nil {
			b.processed += b.batchSize
			b.batchSize = min(b.batchSize, b.Total-b.processed)
			continue
		}

		// Stop retrying if the batch is already at the minimum size.
		if b.batchSize == minBatchSize {
			return err
		}

		if b.IsRetriableError != nil && b.IsRetriableError(err) {
			b.batchSize = max(b.batchSize/2, minBatchSize)
			if b.OnRetry != nil {
				if retryErr := b.OnRetry(err, b.batchSize); retryErr != nil {
					return retryErr
				}
			}
			continue
		}

		return err
	}

	return nil
}
