package inmemory

import (
	"context"
	"errors"
	"testing"

	"github.com/sharedcode/flagstore"
)

func TestBackend_CompareAndSwap(t *testing.T) {
	ctx := context.Background()
	b := NewBackend(Options{})

	ok, err := b.CompareAndSwap(ctx, "k", []byte("v1"), 0)
	if err != nil || !ok {
		t.Fatalf("create with zero token failed, ok: %v, err: %v", ok, err)
	}
	ok, err = b.CompareAndSwap(ctx, "k", []byte("v2"), 0)
	if err != nil {
		t.Fatalf("CompareAndSwap failed: %v", err)
	}
	if ok {
		t.Errorf("create with zero token succeeded on an existing key")
	}

	p, _ := b.Get(ctx, "k")
	ok, _ = b.CompareAndSwap(ctx, "k", []byte("v2"), p.ModifyToken)
	if !ok {
		t.Fatalf("CompareAndSwap with current token failed")
	}
	ok, _ = b.CompareAndSwap(ctx, "k", []byte("v3"), p.ModifyToken)
	if ok {
		t.Errorf("CompareAndSwap with outdated token succeeded")
	}
	p, _ = b.Get(ctx, "k")
	if string(p.Value) != "v2" {
		t.Errorf("got %s, expected v2", p.Value)
	}
}

func TestBackend_TokenNotReusedAfterDelete(t *testing.T) {
	ctx := context.Background()
	b := NewBackend(Options{})
	b.Put(ctx, "k", []byte("a"))
	p, _ := b.Get(ctx, "k")
	b.Delete(ctx, "k")
	b.Put(ctx, "k", []byte("b"))
	if ok, _ := b.CompareAndSwap(ctx, "k", []byte("c"), p.ModifyToken); ok {
		t.Errorf("CompareAndSwap succeeded with the token of a deleted incarnation of the key")
	}
}

func TestBackend_TxnLimitAndAtomicity(t *testing.T) {
	ctx := context.Background()
	b := NewBackend(Options{MaxTxnOps: 2})
	ops := []flagstore.TxnOp{
		{Verb: flagstore.TxnSet, Key: "a", Value: []byte("1")},
		{Verb: flagstore.TxnSet, Key: "b", Value: []byte("2")},
		{Verb: flagstore.TxnSet, Key: "c", Value: []byte("3")},
	}
	if err := b.Txn(ctx, ops); err == nil {
		t.Fatalf("expected error for transaction over the limit")
	}
	if b.Count() != 0 {
		t.Errorf("rejected transaction applied %d keys", b.Count())
	}

	failure := errors.New("boom")
	b.SetHooks(Hooks{BeforeTxn: func(ctx context.Context, ops []flagstore.TxnOp) error { return failure }})
	if err := b.Txn(ctx, ops[:2]); !errors.Is(err, failure) {
		t.Fatalf("expected hook error, got %v", err)
	}
	if b.Count() != 0 {
		t.Errorf("failed transaction applied %d keys", b.Count())
	}

	b.SetHooks(Hooks{})
	if err := b.Txn(ctx, ops[:2]); err != nil {
		t.Fatalf("Txn failed: %v", err)
	}
	if err := b.Txn(ctx, []flagstore.TxnOp{{Verb: flagstore.TxnDelete, Key: "a"}}); err != nil {
		t.Fatalf("Txn failed: %v", err)
	}
	keys, _ := b.Keys(ctx, "")
	if len(keys) != 1 || keys[0] != "b" {
		t.Errorf("got keys %v, expected [b]", keys)
	}
}

func TestBackend_ListIsOrderedAndPrefixScoped(t *testing.T) {
	ctx := context.Background()
	b := NewBackend(Options{})
	for _, k := range []string{"p/b", "p/a", "q/a", "p"} {
		b.Put(ctx, k, []byte(k))
	}
	pairs, err := b.List(ctx, "p/")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(pairs) != 2 || pairs[0].Key != "p/a" || pairs[1].Key != "p/b" {
		t.Errorf("got %v, expected p/a, p/b", pairs)
	}
}

func TestBackend_HonorsCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := NewBackend(Options{})
	if _, err := b.Get(ctx, "k"); !errors.Is(err, context.Canceled) {
		t.Errorf("Get: expected context.Canceled, got %v", err)
	}
	if _, err := b.CompareAndSwap(ctx, "k", nil, 0); !errors.Is(err, context.Canceled) {
		t.Errorf("CompareAndSwap: expected context.Canceled, got %v", err)
	}
}
