package redis

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/sharedcode/flagstore"
)

const (
	valueField = "v"
	tokenField = "m"
	scanCount  = 256
)

var errTokenMismatch = errors.New("modify token mismatch")

// Backend is a flagstore.Backend over a Redis client. Modify tokens are random UUID strings.
type Backend struct {
	conn      *Connection
	maxTxnOps int
	ownsConn  bool
}

// NewBackend wraps an open connection. If ownsConn is true, Close closes the connection.
func NewBackend(conn *Connection, maxOps int, ownsConn bool) *Backend {
	if maxOps <= 0 {
		maxOps = flagstore.DefaultMaxTxnOps
	}
	return &Backend{conn: conn, maxTxnOps: maxOps, ownsConn: ownsConn}
}

func (b *Backend) client() (*redis.Client, error) {
	if b.conn == nil || b.conn.Client == nil {
		return nil, fmt.Errorf("redis connection is not open")
	}
	return b.conn.Client, nil
}

func toPair(key string, fields map[string]string) *flagstore.KVPair[string] {
	token, ok := fields[tokenField]
	if !ok || token == "" {
		return nil
	}
	return &flagstore.KVPair[string]{Key: key, Value: []byte(fields[valueField]), ModifyToken: token}
}

// Get reads key.
func (b *Backend) Get(ctx context.Context, key string) (*flagstore.KVPair[string], error) {
	c, err := b.client()
	if err != nil {
		return nil, err
	}
	fields, err := c.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get %s failed: %w", key, err)
	}
	return toPair(key, fields), nil
}

// escapeGlob escapes the characters SCAN MATCH treats as wildcards.
func escapeGlob(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// Keys lists the keys under prefix, sorted.
func (b *Backend) Keys(ctx context.Context, prefix string) ([]string, error) {
	c, err := b.client()
	if err != nil {
		return nil, err
	}
	seen := map[string]struct{}{}
	pattern := escapeGlob(prefix) + "*"
	var cursor uint64
	for {
		var page []string
		page, cursor, err = c.Scan(ctx, cursor, pattern, scanCount).Result()
		if err != nil {
			return nil, fmt.Errorf("redis scan %s failed: %w", prefix, err)
		}
		for _, k := range page {
			if strings.HasPrefix(k, prefix) {
				seen[k] = struct{}{}
			}
		}
		if cursor == 0 {
			break
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys, nil
}

// List reads all pairs under prefix, sorted by key. Keys deleted while listing are skipped.
func (b *Backend) List(ctx context.Context, prefix string) ([]flagstore.KVPair[string], error) {
	keys, err := b.Keys(ctx, prefix)
	if err != nil || len(keys) == 0 {
		return nil, err
	}
	c, _ := b.client()
	cmds := make([]*redis.MapStringStringCmd, len(keys))
	if _, err := c.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, k := range keys {
			cmds[i] = p.HGetAll(ctx, k)
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("redis list %s failed: %w", prefix, err)
	}
	r := make([]flagstore.KVPair[string], 0, len(keys))
	for i, cmd := range cmds {
		if p := toPair(keys[i], cmd.Val()); p != nil {
			r = append(r, *p)
		}
	}
	return r, nil
}

// Delete removes key.
func (b *Backend) Delete(ctx context.Context, key string) error {
	c, err := b.client()
	if err != nil {
		return err
	}
	if err := c.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis delete %s failed: %w", key, err)
	}
	return nil
}

// CompareAndSwap writes value at key under WATCH if the key's token is still expected.
// An empty expected token means the key must not exist.
func (b *Backend) CompareAndSwap(ctx context.Context, key string, value []byte, expected string) (bool, error) {
	c, err := b.client()
	if err != nil {
		return false, err
	}
	err = c.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, key, tokenField).Result()
		if err != nil && err != redis.Nil {
			return err
		}
		if current != expected {
			return errTokenMismatch
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, key, valueField, value, tokenField, uuid.NewString())
			return nil
		})
		return err
	}, key)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errTokenMismatch), errors.Is(err, redis.TxFailedErr):
		return false, nil
	default:
		return false, fmt.Errorf("redis cas %s failed: %w", key, err)
	}
}

// Txn applies ops in one MULTI/EXEC block.
func (b *Backend) Txn(ctx context.Context, ops []flagstore.TxnOp) error {
	if len(ops) > b.maxTxnOps {
		return fmt.Errorf("redis transaction can't have more than %d operations, got %d", b.maxTxnOps, len(ops))
	}
	for _, op := range ops {
		if op.Verb != flagstore.TxnSet && op.Verb != flagstore.TxnDelete {
			return fmt.Errorf("unsupported transaction verb %d", int(op.Verb))
		}
	}
	c, err := b.client()
	if err != nil {
		return err
	}
	_, err = c.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, op := range ops {
			if op.Verb == flagstore.TxnDelete {
				p.Del(ctx, op.Key)
				continue
			}
			// Replace rather than merge so no stale field survives.
			p.Del(ctx, op.Key)
			p.HSet(ctx, op.Key, valueField, op.Value, tokenField, uuid.NewString())
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis txn failed: %w", err)
	}
	return nil
}

// MaxTxnOps returns the transaction size limit.
func (b *Backend) MaxTxnOps() int {
	return b.maxTxnOps
}

// Address returns the Redis server address.
func (b *Backend) Address() string {
	return b.conn.Address()
}

// Close closes the connection if the backend owns it.
func (b *Backend) Close() error {
	if !b.ownsConn {
		return nil
	}
	return b.conn.Close()
}

var _ flagstore.Backend[string] = (*Backend)(nil)
