package datastore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/sharedcode/flagstore"
	"github.com/sharedcode/flagstore/inmemory"
)

func newTestStore(t *testing.T, prefix string, options inmemory.Options) (*Store[uint64], *inmemory.Backend) {
	t.Helper()
	b := inmemory.NewBackend(options)
	s, err := New[uint64](b, flagstore.StoreOptions{Prefix: prefix}, true)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s, b
}

func flag(key string, version int) flagstore.Item {
	return flagstore.Item{Key: key, Version: version, Data: json.RawMessage(fmt.Sprintf(`{"on":true,"v":%d}`, version))}
}

// txnRecorder records the operations of every transaction a backend receives.
type txnRecorder struct {
	mu    sync.Mutex
	calls [][]flagstore.TxnOp
}

func (r *txnRecorder) hook(ctx context.Context, ops []flagstore.TxnOp) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, append([]flagstore.TxnOp(nil), ops...))
	return nil
}

func mustInit(t *testing.T, s *Store[uint64], d flagstore.Dataset) {
	t.Helper()
	if err := s.Init(context.Background(), d); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
}

func assertItems(t *testing.T, got map[string]flagstore.Item, want map[string]flagstore.Item) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d items, expected %d", len(got), len(want))
	}
	for k, w := range want {
		g, ok := got[k]
		if !ok {
			t.Errorf("item %s missing", k)
			continue
		}
		if g.Key != w.Key || g.Version != w.Version || g.Deleted != w.Deleted || string(g.Data) != string(w.Data) {
			t.Errorf("item %s: got %+v, expected %+v", k, g, w)
		}
	}
}
