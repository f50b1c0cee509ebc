// Package inmemory contains a process local flagstore.Backend. It is useful for standalone or
// embedded applications running in a single process and as a test double: its hooks let tests
// interleave "other writers" with compare-and-swap calls and fail transactions on purpose.
package inmemory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/sharedcode/flagstore"
)

// Hooks are invoked by the Backend around mutations. All of them are optional.
type Hooks struct {
	// BeforeCompareAndSwap runs before the modify token of key is checked, without holding
	// the backend's lock, so it may write to the backend itself.
	BeforeCompareAndSwap func(ctx context.Context, key string)
	// BeforeTxn runs before ops are applied. A non-nil error fails the transaction without
	// applying any of them.
	BeforeTxn func(ctx context.Context, ops []flagstore.TxnOp) error
}

// Options configures a Backend.
type Options struct {
	// MaxTxnOps is the transaction size limit enforced by Txn. Zero means flagstore.DefaultMaxTxnOps.
	MaxTxnOps int
	Hooks     Hooks
}

type entry struct {
	value       []byte
	modifyIndex uint64
}

// Backend keeps pairs in a map. Modify tokens are taken from a counter that grows with every
// write, like Consul's ModifyIndex, so a token is never reused for a key.
type Backend struct {
	mu        sync.RWMutex
	data      map[string]entry
	lastIndex uint64
	maxTxnOps int
	hooks     Hooks
}

// NewBackend returns an empty Backend.
func NewBackend(options Options) *Backend {
	if options.MaxTxnOps <= 0 {
		options.MaxTxnOps = flagstore.DefaultMaxTxnOps
	}
	return &Backend{
		data:      make(map[string]entry),
		maxTxnOps: options.MaxTxnOps,
		hooks:     options.Hooks,
	}
}

// SetHooks replaces the hooks of the backend.
func (b *Backend) SetHooks(hooks Hooks) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hooks = hooks
}

func (b *Backend) getHooks() Hooks {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.hooks
}

// Get returns the pair at key or nil.
func (b *Backend) Get(ctx context.Context, key string) (*flagstore.KVPair[uint64], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.data[key]
	if !ok {
		return nil, nil
	}
	return &flagstore.KVPair[uint64]{Key: key, Value: slices.Clone(e.value), ModifyToken: e.modifyIndex}, nil
}

// List returns the pairs under prefix ordered by key.
func (b *Backend) List(ctx context.Context, prefix string) ([]flagstore.KVPair[uint64], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	keys := b.keys(prefix)
	r := make([]flagstore.KVPair[uint64], 0, len(keys))
	for _, k := range keys {
		e := b.data[k]
		r = append(r, flagstore.KVPair[uint64]{Key: k, Value: slices.Clone(e.value), ModifyToken: e.modifyIndex})
	}
	return r, nil
}

// Keys returns the keys under prefix in order.
func (b *Backend) Keys(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.keys(prefix), nil
}

func (b *Backend) keys(prefix string) []string {
	r := make([]string, 0)
	for k := range b.data {
		if strings.HasPrefix(k, prefix) {
			r = append(r, k)
		}
	}
	slices.Sort(r)
	return r
}

// Delete removes key.
func (b *Backend) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.data, key)
	return nil
}

// Put writes value at key unconditionally and returns the new modify token.
func (b *Backend) Put(ctx context.Context, key string, value []byte) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.set(key, value), nil
}

// CompareAndSwap writes value if the modify token of key is expected (0 for absent).
func (b *Backend) CompareAndSwap(ctx context.Context, key string, value []byte, expected uint64) (bool, error) {
	if h := b.getHooks().BeforeCompareAndSwap; h != nil {
		h(ctx, key)
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.data[key].modifyIndex != expected {
		return false, nil
	}
	b.set(key, value)
	return true, nil
}

// Txn applies ops atomically.
func (b *Backend) Txn(ctx context.Context, ops []flagstore.TxnOp) error {
	if len(ops) > b.maxTxnOps {
		return fmt.Errorf("transaction contains too many operations (%d > %d)", len(ops), b.maxTxnOps)
	}
	if h := b.getHooks().BeforeTxn; h != nil {
		if err := h(ctx, ops); err != nil {
			return err
		}
	}
	for _, op := range ops {
		if op.Verb != flagstore.TxnSet && op.Verb != flagstore.TxnDelete {
			return fmt.Errorf("unsupported transaction verb %d", int(op.Verb))
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, op := range ops {
		if op.Verb == flagstore.TxnDelete {
			delete(b.data, op.Key)
			continue
		}
		b.set(op.Key, op.Value)
	}
	return nil
}

func (b *Backend) set(key string, value []byte) uint64 {
	b.lastIndex++
	b.data[key] = entry{value: slices.Clone(value), modifyIndex: b.lastIndex}
	return b.lastIndex
}

// MaxTxnOps returns the transaction size limit.
func (b *Backend) MaxTxnOps() int {
	return b.maxTxnOps
}

// Address returns "inmemory".
func (b *Backend) Address() string {
	return "inmemory"
}

// Close does nothing.
func (b *Backend) Close() error {
	return nil
}

// Count returns the number of stored keys.
func (b *Backend) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.data)
}

var _ flagstore.Backend[uint64] = (*Backend)(nil)
