package datastore

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/sharedcode/flagstore"
	"github.com/sharedcode/flagstore/inmemory"
)

func setOps(n int) []flagstore.TxnOp {
	ops := make([]flagstore.TxnOp, n)
	for i := range ops {
		ops[i] = flagstore.TxnOp{Verb: flagstore.TxnSet, Key: fmt.Sprintf("k%03d", i), Value: []byte("v")}
	}
	return ops
}

func TestBatchOperations_Chunking(t *testing.T) {
	rec := &txnRecorder{}
	b := inmemory.NewBackend(inmemory.Options{Hooks: inmemory.Hooks{BeforeTxn: rec.hook}})
	ops := setOps(130)

	if err := batchOperations[uint64](context.Background(), b, 64, ops); err != nil {
		t.Fatalf("batchOperations failed: %v", err)
	}
	if len(rec.calls) != 3 {
		t.Fatalf("got %d transactions, expected 3", len(rec.calls))
	}
	sizes := []int{64, 64, 2}
	n := 0
	for i, c := range rec.calls {
		if len(c) != sizes[i] {
			t.Errorf("transaction %d has %d ops, expected %d", i, len(c), sizes[i])
		}
		for _, op := range c {
			if op.Key != ops[n].Key {
				t.Fatalf("op %d out of order: got %s, expected %s", n, op.Key, ops[n].Key)
			}
			n++
		}
	}
}

func TestBatchOperations_ExactMultiple(t *testing.T) {
	rec := &txnRecorder{}
	b := inmemory.NewBackend(inmemory.Options{Hooks: inmemory.Hooks{BeforeTxn: rec.hook}})
	if err := batchOperations[uint64](context.Background(), b, 64, setOps(128)); err != nil {
		t.Fatalf("batchOperations failed: %v", err)
	}
	if len(rec.calls) != 2 {
		t.Errorf("got %d transactions, expected 2", len(rec.calls))
	}
}

func TestBatchOperations_StopsAtFirstFailure(t *testing.T) {
	ctx := context.Background()
	failure := errors.New("txn rejected")
	calls := 0
	b := inmemory.NewBackend(inmemory.Options{Hooks: inmemory.Hooks{
		BeforeTxn: func(ctx context.Context, ops []flagstore.TxnOp) error {
			calls++
			if calls == 2 {
				return failure
			}
			return nil
		},
	}})

	err := batchOperations[uint64](ctx, b, 64, setOps(130))
	if !errors.Is(err, failure) {
		t.Fatalf("expected wrapped failure, got %v", err)
	}
	var e flagstore.Error
	if !errors.As(err, &e) || e.Code != flagstore.TransactionFailure {
		t.Fatalf("expected TransactionFailure, got %v", err)
	}
	bf, ok := e.UserData.(flagstore.BatchFailure)
	if !ok || bf.Batch != 1 || bf.Committed != 1 || bf.Total != 3 {
		t.Errorf("unexpected batch failure details %+v", e.UserData)
	}
	if calls != 2 {
		t.Errorf("got %d transaction calls, expected 2", calls)
	}
	// The first batch stays committed.
	if b.Count() != 64 {
		t.Errorf("got %d keys, expected the 64 of the first batch", b.Count())
	}
}

func TestBatchOperations_Empty(t *testing.T) {
	rec := &txnRecorder{}
	b := inmemory.NewBackend(inmemory.Options{Hooks: inmemory.Hooks{BeforeTxn: rec.hook}})
	if err := batchOperations[uint64](context.Background(), b, 64, nil); err != nil {
		t.Fatalf("batchOperations failed: %v", err)
	}
	if len(rec.calls) != 0 {
		t.Errorf("got %d transactions for no operations", len(rec.calls))
	}
}
