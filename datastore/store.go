// Package datastore implements the synchronization core shared by all backends: full data set
// initialization under a bounded transaction size, versioned single item upsert on top of
// compare-and-swap, key namespacing and the "initialized" marker.
//
// Several Store instances, in one or many processes, may work against the same backend at the
// same time. They coordinate only through the backend's compare-and-swap and transactions,
// there is no client side locking.
package datastore

import (
	"context"
	"fmt"

	"github.com/sharedcode/flagstore"
)

// Store is a flagstore.DataStore on top of a Backend whose modify tokens are of type T.
type Store[T comparable] struct {
	backend   flagstore.Backend[T]
	keys      Keys
	batchSize int
	retry     flagstore.ConflictRetryPolicy
	ownsConn  bool
}

// New returns a Store using backend. If ownsBackend is true, Close closes the backend.
func New[T comparable](backend flagstore.Backend[T], options flagstore.StoreOptions, ownsBackend bool) (*Store[T], error) {
	if backend == nil {
		return nil, fmt.Errorf("backend can't be nil")
	}
	batchSize := options.MaxTxnOps
	if batchSize <= 0 {
		batchSize = flagstore.DefaultMaxTxnOps
	}
	if m := backend.MaxTxnOps(); m > 0 && m < batchSize {
		batchSize = m
	}
	retry := options.ConflictRetry
	if retry == nil {
		retry = flagstore.RetryForever()
	}
	return &Store[T]{
		backend:   backend,
		keys:      NewKeys(options.Prefix),
		batchSize: batchSize,
		retry:     retry,
		ownsConn:  ownsBackend,
	}, nil
}

// Keys returns the key mapper of the store.
func (s *Store[T]) Keys() Keys {
	return s.keys
}

// Backend returns the backend the store works on.
func (s *Store[T]) Backend() flagstore.Backend[T] {
	return s.backend
}

// IsAvailable probes the backend with a read of the marker key.
func (s *Store[T]) IsAvailable(ctx context.Context) bool {
	_, err := s.backend.Get(ctx, s.keys.InitedKey())
	return err == nil
}

// Close closes the backend if the store owns it.
func (s *Store[T]) Close() error {
	if !s.ownsConn {
		return nil
	}
	return s.backend.Close()
}

var _ flagstore.DataStore = (*Store[uint64])(nil)
