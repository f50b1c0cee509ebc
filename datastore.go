package flagstore

import "context"

// DataStore is what a flag evaluation engine (or a cache in front of it) uses to persist its
// configuration data.
type DataStore interface {
	// IsInitialized reports whether Init has completed at least once on the underlying storage,
	// by this or any other process.
	IsInitialized(ctx context.Context) (bool, error)
	// Init replaces the whole content of the store with dataset.
	Init(ctx context.Context, dataset Dataset) error
	// Get returns the item of kind stored under key. The bool is false if there is none.
	Get(ctx context.Context, kind DataKind, key string) (Item, bool, error)
	// GetAll returns all items of kind keyed by item key. It never returns a nil map on success.
	GetAll(ctx context.Context, kind DataKind) (map[string]Item, error)
	// Upsert stores item unless an item with the same or a higher version is already stored.
	// It returns the item that is stored once the call completes.
	Upsert(ctx context.Context, kind DataKind, item Item) (Item, error)
	// IsAvailable reports whether the underlying storage can currently be reached.
	IsAvailable(ctx context.Context) bool
	// Close releases resources held by the store.
	Close() error
}
