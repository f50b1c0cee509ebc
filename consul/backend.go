package consul

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/hashicorp/consul/api"

	"github.com/sharedcode/flagstore"
)

// maxTxnOps is the number of operations Consul accepts in one transaction.
const maxTxnOps = 64

// Backend is a flagstore.Backend using Consul's KV endpoints. Modify tokens are Consul
// ModifyIndex values; Consul treats a CAS with index 0 as "create only if absent".
type Backend struct {
	client    *api.Client
	kv        *api.KV
	address   string
	maxTxnOps int
	// httpClient is set when the backend created the client itself.
	httpClient *http.Client
}

// NewBackend wraps an existing client. maxOps of zero means Consul's limit of 64.
func NewBackend(client *api.Client, address string, maxOps int) *Backend {
	if maxOps <= 0 || maxOps > maxTxnOps {
		maxOps = maxTxnOps
	}
	return &Backend{
		client:    client,
		kv:        client.KV(),
		address:   address,
		maxTxnOps: maxOps,
	}
}

// OpenBackend creates a Consul client from options and wraps it.
func OpenBackend(options Options) (*Backend, error) {
	cfg := ToClientConfig(options)
	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("can't create consul client for %s: %w", cfg.Address, err)
	}
	b := NewBackend(client, cfg.Address, options.MaxTxnOps)
	// api.NewClient fills in the HTTP client of cfg when it creates one.
	b.httpClient = cfg.HttpClient
	return b, nil
}

func queryOptions(ctx context.Context) *api.QueryOptions {
	return (&api.QueryOptions{}).WithContext(ctx)
}

func writeOptions(ctx context.Context) *api.WriteOptions {
	return (&api.WriteOptions{}).WithContext(ctx)
}

// Get reads key.
func (b *Backend) Get(ctx context.Context, key string) (*flagstore.KVPair[uint64], error) {
	p, _, err := b.kv.Get(key, queryOptions(ctx))
	if err != nil {
		return nil, fmt.Errorf("consul get %s failed: %w", key, err)
	}
	if p == nil {
		return nil, nil
	}
	return &flagstore.KVPair[uint64]{Key: p.Key, Value: p.Value, ModifyToken: p.ModifyIndex}, nil
}

// List reads all pairs under prefix. Consul returns them sorted by key.
func (b *Backend) List(ctx context.Context, prefix string) ([]flagstore.KVPair[uint64], error) {
	pairs, _, err := b.kv.List(prefix, queryOptions(ctx))
	if err != nil {
		return nil, fmt.Errorf("consul list %s failed: %w", prefix, err)
	}
	r := make([]flagstore.KVPair[uint64], 0, len(pairs))
	for _, p := range pairs {
		r = append(r, flagstore.KVPair[uint64]{Key: p.Key, Value: p.Value, ModifyToken: p.ModifyIndex})
	}
	return r, nil
}

// Keys lists the keys under prefix.
func (b *Backend) Keys(ctx context.Context, prefix string) ([]string, error) {
	keys, _, err := b.kv.Keys(prefix, "", queryOptions(ctx))
	if err != nil {
		return nil, fmt.Errorf("consul keys %s failed: %w", prefix, err)
	}
	return keys, nil
}

// Delete removes key.
func (b *Backend) Delete(ctx context.Context, key string) error {
	if _, err := b.kv.Delete(key, writeOptions(ctx)); err != nil {
		return fmt.Errorf("consul delete %s failed: %w", key, err)
	}
	return nil
}

// CompareAndSwap writes value at key if its ModifyIndex is still expected.
func (b *Backend) CompareAndSwap(ctx context.Context, key string, value []byte, expected uint64) (bool, error) {
	ok, _, err := b.kv.CAS(&api.KVPair{Key: key, Value: value, ModifyIndex: expected}, writeOptions(ctx))
	if err != nil {
		return false, fmt.Errorf("consul cas %s failed: %w", key, err)
	}
	return ok, nil
}

// Txn applies ops in one Consul transaction.
func (b *Backend) Txn(ctx context.Context, ops []flagstore.TxnOp) error {
	if len(ops) > b.maxTxnOps {
		return fmt.Errorf("consul transaction can't have more than %d operations, got %d", b.maxTxnOps, len(ops))
	}
	txn := make(api.TxnOps, 0, len(ops))
	for _, op := range ops {
		kvOp := &api.KVTxnOp{Key: op.Key}
		switch op.Verb {
		case flagstore.TxnSet:
			kvOp.Verb = api.KVSet
			kvOp.Value = op.Value
		case flagstore.TxnDelete:
			kvOp.Verb = api.KVDelete
		default:
			return fmt.Errorf("unsupported transaction verb %d", int(op.Verb))
		}
		txn = append(txn, &api.TxnOp{KV: kvOp})
	}
	ok, resp, _, err := b.client.Txn().Txn(txn, queryOptions(ctx))
	if err != nil {
		return fmt.Errorf("consul txn failed: %w", err)
	}
	if !ok {
		return fmt.Errorf("consul txn rolled back: %s", txnErrors(resp))
	}
	return nil
}

func txnErrors(resp *api.TxnResponse) string {
	if resp == nil || len(resp.Errors) == 0 {
		return "no details"
	}
	msgs := make([]string, 0, len(resp.Errors))
	for _, e := range resp.Errors {
		msgs = append(msgs, fmt.Sprintf("op %d: %s", e.OpIndex, e.What))
	}
	return strings.Join(msgs, "; ")
}

// MaxTxnOps returns the transaction size limit.
func (b *Backend) MaxTxnOps() int {
	return b.maxTxnOps
}

// Address returns the Consul agent address.
func (b *Backend) Address() string {
	return b.address
}

// Close releases idle connections if the backend created the client.
func (b *Backend) Close() error {
	if b.httpClient != nil {
		b.httpClient.CloseIdleConnections()
	}
	return nil
}

var _ flagstore.Backend[uint64] = (*Backend)(nil)
