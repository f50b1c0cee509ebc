// Package cassandra contains a flagstore.Backend over a Cassandra table and the builder of
// Cassandra backed data stores. All keys of a store live in one partition of the table so
// transactions are single partition logged batches and prefix listings are clustering range
// scans. Compare-and-swap uses lightweight transactions on a timeuuid modify token.
package cassandra

import (
	"fmt"
	"strings"
	"time"

	"github.com/gocql/gocql"

	"github.com/sharedcode/flagstore"
)

// Config contains configuration for connecting to a Cassandra cluster and the flag store table.
type Config struct {
	// ClusterHosts lists contact points for the Cassandra cluster.
	ClusterHosts []string `json:"cluster_hosts"`
	// Keyspace holding the table. Defaults to "flagstore".
	Keyspace string `json:"keyspace,omitempty"`
	// Table holding the items. Defaults to "kv".
	Table string `json:"table,omitempty"`
	// Partition is the partition key value all keys of this store are written under.
	// Defaults to "flagstore".
	Partition string `json:"partition,omitempty"`
	// Consistency is the default consistency level for queries.
	Consistency gocql.Consistency `json:"consistency,omitempty"`
	// SerialConsistency is used by the compare-and-swap lightweight transactions.
	// Defaults to LocalSerial.
	SerialConsistency gocql.SerialConsistency `json:"-"`
	// ConnectionTimeout is the session connection timeout.
	ConnectionTimeout time.Duration `json:"connection_timeout,omitempty"`
	// Authenticator is used when the cluster requires authentication.
	Authenticator gocql.Authenticator `json:"-"`
	// ReplicationClause defines the keyspace replication (e.g., SimpleStrategy).
	ReplicationClause string `json:"replication_clause,omitempty"`

	// Prefix namespaces all keys of the store. Empty means flagstore.DefaultPrefix.
	Prefix string `json:"prefix,omitempty"`
	// MaxTxnOps caps statements per logged batch. Zero means flagstore.DefaultMaxTxnOps.
	MaxTxnOps int `json:"max_txn_ops,omitempty"`
	// ConflictRetry paces Upsert retries after lost compare-and-swap races. Nil retries forever.
	ConflictRetry flagstore.ConflictRetryPolicy `json:"-"`
}

// Connection wraps a Cassandra session and its configuration.
type Connection struct {
	Session *gocql.Session
	Config
}

// withDefaults fills in the unset fields of config.
func (config Config) withDefaults() Config {
	if config.Keyspace == "" {
		config.Keyspace = "flagstore"
	}
	if config.Table == "" {
		config.Table = "kv"
	}
	if config.Partition == "" {
		config.Partition = "flagstore"
	}
	if config.Consistency == gocql.Any {
		// Defaults to LocalQuorum consistency. You should set it to an appropriate level.
		config.Consistency = gocql.LocalQuorum
	}
	if config.SerialConsistency == 0 {
		config.SerialConsistency = gocql.LocalSerial
	}
	if config.ReplicationClause == "" {
		// Specify an appropriate replication feature.
		config.ReplicationClause = "{'class':'SimpleStrategy', 'replication_factor':1}"
	}
	return config
}

// isIdentifier reports whether s can be used unquoted as a keyspace or table name.
func isIdentifier(s string) bool {
	if s == "" || len(s) > 48 {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// OpenConnection opens a new session using the provided config and creates the keyspace and
// table if they don't exist yet.
func OpenConnection(config Config) (*Connection, error) {
	config = config.withDefaults()
	if len(config.ClusterHosts) == 0 {
		return nil, fmt.Errorf("cassandra config needs at least one cluster host")
	}
	if !isIdentifier(config.Keyspace) || !isIdentifier(config.Table) {
		return nil, fmt.Errorf("invalid cassandra keyspace %q or table %q", config.Keyspace, config.Table)
	}
	cluster := gocql.NewCluster(config.ClusterHosts...)
	cluster.Consistency = config.Consistency
	cluster.SerialConsistency = config.SerialConsistency
	if config.ConnectionTimeout > 0 {
		cluster.ConnectTimeout = config.ConnectionTimeout
	}
	if config.Authenticator != nil {
		cluster.Authenticator = config.Authenticator
		// Don't keep the credentials hanging around.
		config.Authenticator = nil
	}
	s, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("can't connect to cassandra %s: %w", strings.Join(config.ClusterHosts, ","), err)
	}

	if err := s.Query(fmt.Sprintf("CREATE KEYSPACE IF NOT EXISTS %s WITH REPLICATION = %s;", config.Keyspace, config.ReplicationClause)).Exec(); err != nil {
		s.Close()
		return nil, err
	}
	if err := s.Query(fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s.%s (part text, key text, value blob, token timeuuid, PRIMARY KEY(part, key));",
		config.Keyspace, config.Table)).Exec(); err != nil {
		s.Close()
		return nil, err
	}
	return &Connection{Session: s, Config: config}, nil
}

// Close closes the session if open.
func (c *Connection) Close() {
	if c == nil || c.Session == nil {
		return
	}
	c.Session.Close()
	c.Session = nil
}
