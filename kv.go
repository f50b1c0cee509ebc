package flagstore

import "context"

// KVPair is a value read from a Backend together with its modify token.
type KVPair[T comparable] struct {
	Key   string
	Value []byte
	// ModifyToken changes on every write of Key. It is the precondition of CompareAndSwap.
	ModifyToken T
}

// TxnVerb is the kind of a transaction operation.
type TxnVerb int

const (
	// TxnSet writes Value at Key.
	TxnSet TxnVerb = iota
	// TxnDelete removes Key.
	TxnDelete
)

func (v TxnVerb) String() string {
	if v == TxnDelete {
		return "delete"
	}
	return "set"
}

// TxnOp is one operation of a Backend transaction.
type TxnOp struct {
	Verb  TxnVerb
	Key   string
	Value []byte
}

// Backend is the contract a distributed key-value service has to offer to host a data store.
//
// T is the type of the service's modify token, e.g. Consul's ModifyIndex. The zero value of T
// means "the key does not exist": CompareAndSwap with a zero expected token only succeeds if
// the key is absent.
//
// Implementations must be safe for concurrent use and must honor context cancellation.
type Backend[T comparable] interface {
	// Get returns the pair stored at key, or nil if there is none.
	Get(ctx context.Context, key string) (*KVPair[T], error)
	// List returns all pairs whose key starts with prefix, ordered by key.
	List(ctx context.Context, prefix string) ([]KVPair[T], error)
	// Keys returns all keys starting with prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// CompareAndSwap writes value at key only if the key's current modify token equals
	// expected. It returns false, without error, if the precondition did not hold.
	CompareAndSwap(ctx context.Context, key string, value []byte, expected T) (bool, error)
	// Txn applies ops atomically. Callers never pass more than MaxTxnOps operations.
	Txn(ctx context.Context, ops []TxnOp) error
	// MaxTxnOps is the maximum number of operations a single Txn call accepts.
	MaxTxnOps() int
	// Address describes where the service is, for logging.
	Address() string
	// Close releases the connection, if the backend owns it.
	Close() error
}
