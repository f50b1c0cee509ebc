package datastore

import (
	"context"

	"github.com/sharedcode/flagstore"
)

// batchOperations commits ops in consecutive transactions of at most batchSize operations,
// waiting for each to complete before sending the next. Order is preserved across batches.
// The first failing batch stops the run; batches before it stay committed.
func batchOperations[T comparable](ctx context.Context, backend flagstore.Backend[T], batchSize int, ops []flagstore.TxnOp) error {
	total := (len(ops) + batchSize - 1) / batchSize
	for i, batch := 0, 0; i < len(ops); i, batch = i+batchSize, batch+1 {
		end := min(i+batchSize, len(ops))
		if err := backend.Txn(ctx, ops[i:end]); err != nil {
			return flagstore.Error{
				Code: flagstore.TransactionFailure,
				Err:  err,
				UserData: flagstore.BatchFailure{
					Batch:     batch,
					Committed: batch,
					Total:     total,
				},
			}
		}
	}
	return nil
}
