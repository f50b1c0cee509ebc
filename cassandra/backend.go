package cassandra

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gocql/gocql"

	"github.com/sharedcode/flagstore"
)

// Backend is a flagstore.Backend over one partition of a Cassandra table. Modify tokens are
// time UUIDs.
type Backend struct {
	conn      *Connection
	maxTxnOps int
	ownsConn  bool

	selectOne  string
	selectFrom string
	insert     string
	insertNew  string
	update     string
	remove     string
}

// NewBackend returns a backend on an open connection. If ownsConn is true, Close closes the session.
func NewBackend(conn *Connection, ownsConn bool) *Backend {
	maxOps := conn.MaxTxnOps
	if maxOps <= 0 {
		maxOps = flagstore.DefaultMaxTxnOps
	}
	t := conn.Keyspace + "." + conn.Table
	return &Backend{
		conn:       conn,
		maxTxnOps:  maxOps,
		ownsConn:   ownsConn,
		selectOne:  fmt.Sprintf("SELECT value, token FROM %s WHERE part = ? AND key = ?;", t),
		selectFrom: fmt.Sprintf("SELECT key, value, token FROM %s WHERE part = ? AND key >= ?;", t),
		insert:     fmt.Sprintf("INSERT INTO %s (part, key, value, token) VALUES (?, ?, ?, ?);", t),
		insertNew:  fmt.Sprintf("INSERT INTO %s (part, key, value, token) VALUES (?, ?, ?, ?) IF NOT EXISTS;", t),
		update:     fmt.Sprintf("UPDATE %s SET value = ?, token = ? WHERE part = ? AND key = ? IF token = ?;", t),
		remove:     fmt.Sprintf("DELETE FROM %s WHERE part = ? AND key = ?;", t),
	}
}

func (b *Backend) session() (*gocql.Session, error) {
	if b.conn == nil || b.conn.Session == nil {
		return nil, fmt.Errorf("cassandra connection is closed, call OpenConnection(config) to open it")
	}
	return b.conn.Session, nil
}

// Get reads key.
func (b *Backend) Get(ctx context.Context, key string) (*flagstore.KVPair[gocql.UUID], error) {
	s, err := b.session()
	if err != nil {
		return nil, err
	}
	var value []byte
	var token gocql.UUID
	err = s.Query(b.selectOne, b.conn.Partition, key).WithContext(ctx).Scan(&value, &token)
	if errors.Is(err, gocql.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cassandra get %s failed: %w", key, err)
	}
	return &flagstore.KVPair[gocql.UUID]{Key: key, Value: value, ModifyToken: token}, nil
}

// scan walks the partition from prefix onward in clustering order and stops at the first key
// outside prefix.
func (b *Backend) scan(ctx context.Context, prefix string, f func(key string, value []byte, token gocql.UUID)) error {
	s, err := b.session()
	if err != nil {
		return err
	}
	iter := s.Query(b.selectFrom, b.conn.Partition, prefix).WithContext(ctx).Iter()
	var key string
	var value []byte
	var token gocql.UUID
	for iter.Scan(&key, &value, &token) {
		if !strings.HasPrefix(key, prefix) {
			break
		}
		f(key, value, token)
		value = nil
	}
	if err := iter.Close(); err != nil {
		return fmt.Errorf("cassandra scan %s failed: %w", prefix, err)
	}
	return nil
}

// List reads all pairs under prefix, sorted by key.
func (b *Backend) List(ctx context.Context, prefix string) ([]flagstore.KVPair[gocql.UUID], error) {
	var r []flagstore.KVPair[gocql.UUID]
	err := b.scan(ctx, prefix, func(key string, value []byte, token gocql.UUID) {
		r = append(r, flagstore.KVPair[gocql.UUID]{Key: key, Value: value, ModifyToken: token})
	})
	return r, err
}

// Keys lists the keys under prefix, sorted.
func (b *Backend) Keys(ctx context.Context, prefix string) ([]string, error) {
	var r []string
	err := b.scan(ctx, prefix, func(key string, _ []byte, _ gocql.UUID) {
		r = append(r, key)
	})
	return r, err
}

// Delete removes key.
func (b *Backend) Delete(ctx context.Context, key string) error {
	s, err := b.session()
	if err != nil {
		return err
	}
	if err := s.Query(b.remove, b.conn.Partition, key).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("cassandra delete %s failed: %w", key, err)
	}
	return nil
}

// CompareAndSwap writes value at key with a lightweight transaction. A zero expected token
// means the row must not exist.
func (b *Backend) CompareAndSwap(ctx context.Context, key string, value []byte, expected gocql.UUID) (bool, error) {
	s, err := b.session()
	if err != nil {
		return false, err
	}
	var qry *gocql.Query
	if expected == (gocql.UUID{}) {
		qry = s.Query(b.insertNew, b.conn.Partition, key, value, gocql.TimeUUID())
	} else {
		qry = s.Query(b.update, value, gocql.TimeUUID(), b.conn.Partition, key, expected)
	}
	applied, err := qry.WithContext(ctx).SerialConsistency(b.conn.SerialConsistency).MapScanCAS(map[string]interface{}{})
	if err != nil {
		return false, fmt.Errorf("cassandra cas %s failed: %w", key, err)
	}
	return applied, nil
}

// Txn applies ops in one logged batch. All rows share a partition, so the batch is applied
// in isolation.
func (b *Backend) Txn(ctx context.Context, ops []flagstore.TxnOp) error {
	if len(ops) > b.maxTxnOps {
		return fmt.Errorf("cassandra batch can't have more than %d operations, got %d", b.maxTxnOps, len(ops))
	}
	s, err := b.session()
	if err != nil {
		return err
	}
	batch := s.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	for _, op := range withoutOverwrittenDeletes(ops) {
		switch op.Verb {
		case flagstore.TxnSet:
			batch.Query(b.insert, b.conn.Partition, op.Key, op.Value, gocql.TimeUUID())
		case flagstore.TxnDelete:
			batch.Query(b.remove, b.conn.Partition, op.Key)
		default:
			return fmt.Errorf("unsupported transaction verb %d", int(op.Verb))
		}
	}
	if err := s.ExecuteBatch(batch); err != nil {
		return fmt.Errorf("cassandra batch failed: %w", err)
	}
	return nil
}

// withoutOverwrittenDeletes drops deletes of keys that a later operation of the same batch
// sets again. Statements of a batch share one write timestamp and a tombstone wins a timestamp
// tie, so such a delete would remove the row the batch is meant to leave behind.
func withoutOverwrittenDeletes(ops []flagstore.TxnOp) []flagstore.TxnOp {
	lastSet := make(map[string]int, len(ops))
	for i, op := range ops {
		if op.Verb == flagstore.TxnSet {
			lastSet[op.Key] = i
		}
	}
	r := make([]flagstore.TxnOp, 0, len(ops))
	for i, op := range ops {
		if op.Verb == flagstore.TxnDelete {
			if j, ok := lastSet[op.Key]; ok && j > i {
				continue
			}
		}
		r = append(r, op)
	}
	return r
}

// MaxTxnOps returns the batch size limit.
func (b *Backend) MaxTxnOps() int {
	return b.maxTxnOps
}

// Address returns the cluster contact points.
func (b *Backend) Address() string {
	return strings.Join(b.conn.ClusterHosts, ",")
}

// Close closes the session if the backend owns it.
func (b *Backend) Close() error {
	if b.ownsConn {
		b.conn.Close()
	}
	return nil
}

var _ flagstore.Backend[gocql.UUID] = (*Backend)(nil)
