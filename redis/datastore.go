package redis

import (
	log "log/slog"

	"github.com/sharedcode/flagstore"
	"github.com/sharedcode/flagstore/datastore"
)

// NewDataStore opens a Redis connection and returns a data store kept in it. Closing the
// store closes the connection.
func NewDataStore(options Options) (*datastore.Store[string], error) {
	conn, err := OpenConnection(options)
	if err != nil {
		return nil, err
	}
	return newDataStore(conn, options, true)
}

// NewDataStoreWithConnection returns a data store over an existing connection, which the store
// never closes. Connection fields of options are ignored.
func NewDataStoreWithConnection(conn *Connection, options Options) (*datastore.Store[string], error) {
	return newDataStore(conn, options, false)
}

func newDataStore(conn *Connection, options Options, ownsConn bool) (*datastore.Store[string], error) {
	b := NewBackend(conn, options.MaxTxnOps, ownsConn)
	prefix := flagstore.PrefixOrDefault(options.Prefix)
	log.Info("Using Redis data store", "address", b.Address(), "prefix", prefix)
	return datastore.New[string](b, flagstore.StoreOptions{
		Prefix:        prefix,
		MaxTxnOps:     options.MaxTxnOps,
		ConflictRetry: options.ConflictRetry,
	}, ownsConn)
}
