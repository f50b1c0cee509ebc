package consul

import (
	log "log/slog"

	"github.com/sharedcode/flagstore"
	"github.com/sharedcode/flagstore/cache"
	"github.com/sharedcode/flagstore/datastore"
)

// NewDataStore returns a data store kept in Consul. It creates its own Consul client unless
// options.Client is set.
func NewDataStore(options Options) (*datastore.Store[uint64], error) {
	var b *Backend
	ownsClient := options.Client == nil
	if ownsClient {
		var err error
		if b, err = OpenBackend(options); err != nil {
			return nil, err
		}
	} else {
		address := options.Address
		if address == "" {
			address = "existing client"
		}
		b = NewBackend(options.Client, address, options.MaxTxnOps)
	}

	prefix := flagstore.PrefixOrDefault(options.Prefix)
	log.Info("Using Consul data store", "address", b.Address(), "prefix", prefix)

	return datastore.New[uint64](b, flagstore.StoreOptions{
		Prefix:        prefix,
		MaxTxnOps:     options.MaxTxnOps,
		ConflictRetry: options.ConflictRetry,
	}, ownsClient)
}

// NewCachingDataStore returns the data store of NewDataStore behind a cache configured by
// options.Cache. With a zero cache TTL it returns the uncached store.
func NewCachingDataStore(options Options) (flagstore.DataStore, error) {
	s, err := NewDataStore(options)
	if err != nil {
		return nil, err
	}
	if options.Cache.TTL == 0 {
		return s, nil
	}
	log.Debug("Caching Consul data store", "ttl", options.Cache.TTL, "capacity", options.Cache.Capacity)
	return cache.New(s, options.Cache), nil
}
