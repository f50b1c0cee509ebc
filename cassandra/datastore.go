package cassandra

import (
	log "log/slog"

	"github.com/gocql/gocql"

	"github.com/sharedcode/flagstore"
	"github.com/sharedcode/flagstore/datastore"
)

// NewDataStore opens a session and returns a data store kept in Cassandra. Closing the store
// closes the session.
func NewDataStore(config Config) (*datastore.Store[gocql.UUID], error) {
	conn, err := OpenConnection(config)
	if err != nil {
		return nil, err
	}
	return newDataStore(conn, true)
}

// NewDataStoreWithConnection returns a data store over an open connection, which the store never
// closes.
func NewDataStoreWithConnection(conn *Connection) (*datastore.Store[gocql.UUID], error) {
	return newDataStore(conn, false)
}

func newDataStore(conn *Connection, ownsConn bool) (*datastore.Store[gocql.UUID], error) {
	b := NewBackend(conn, ownsConn)
	prefix := flagstore.PrefixOrDefault(conn.Prefix)
	log.Info("Using Cassandra data store", "address", b.Address(), "keyspace", conn.Keyspace, "table", conn.Table, "prefix", prefix)
	return datastore.New[gocql.UUID](b, flagstore.StoreOptions{
		Prefix:        prefix,
		MaxTxnOps:     conn.MaxTxnOps,
		ConflictRetry: conn.ConflictRetry,
	}, ownsConn)
}
