package datastore

import (
	"context"
	log "log/slog"
	"maps"
	"slices"

	"github.com/sharedcode/flagstore"
)

// Init replaces the content of the store with dataset.
//
// Items are written before unreferenced keys get deleted, and the marker is written last. If
// another process upserts an item while Init runs, the worst case is that Init overwrites it;
// deleting everything first could lose such an update entirely. Init is not atomic when it
// needs more than one transaction: readers may see a mix of old and new data until it is done,
// and a failed Init leaves that mix behind. Running Init again converges the store.
func (s *Store[T]) Init(ctx context.Context, dataset flagstore.Dataset) error {
	// Start by reading the existing keys; we will later delete any of these that weren't in dataset.
	existing, err := s.backend.Keys(ctx, s.keys.StoreKey())
	if err != nil {
		return err
	}
	unusedOldKeys := make(map[string]struct{}, len(existing))
	for _, k := range existing {
		unusedOldKeys[k] = struct{}{}
	}

	ops := make([]flagstore.TxnOp, 0, dataset.Count()+len(existing)+1)
	numItems := 0
	for _, kind := range orderedKinds(dataset) {
		items := dataset[kind]
		for _, key := range slices.Sorted(maps.Keys(items)) {
			item := items[key]
			if item.Key == "" {
				item.Key = key
			}
			ba, err := flagstore.EncodeItem(kind, item)
			if err != nil {
				return err
			}
			k := s.keys.ItemKey(kind, item.Key)
			ops = append(ops, flagstore.TxnOp{Verb: flagstore.TxnSet, Key: k, Value: ba})
			delete(unusedOldKeys, k)
			numItems++
		}
	}

	// An existing marker is deleted with the other unused keys and only written again by the
	// last operation, so a partially applied Init never looks initialized.
	for _, k := range slices.Sorted(maps.Keys(unusedOldKeys)) {
		ops = append(ops, flagstore.TxnOp{Verb: flagstore.TxnDelete, Key: k})
	}

	ops = append(ops, flagstore.TxnOp{Verb: flagstore.TxnSet, Key: s.keys.InitedKey(), Value: []byte{}})

	if err := batchOperations(ctx, s.backend, s.batchSize, ops); err != nil {
		return err
	}
	log.Info("Initialized data store", "items", numItems, "deleted", len(unusedOldKeys), "prefix", s.keys.StoreKey())
	return nil
}

// orderedKinds returns the kinds of dataset in AllDataKinds order. Kinds outside of it come
// last so that encoding reports them as unknown.
func orderedKinds(dataset flagstore.Dataset) []flagstore.DataKind {
	kinds := make([]flagstore.DataKind, 0, len(dataset))
	for _, k := range flagstore.AllDataKinds() {
		if _, ok := dataset[k]; ok {
			kinds = append(kinds, k)
		}
	}
	for k := range dataset {
		if !slices.Contains(kinds, k) {
			kinds = append(kinds, k)
		}
	}
	return kinds
}
