package flagstore

const (
	// DefaultPrefix is the key prefix used when none is configured.
	DefaultPrefix = "launchdarkly"
	// DefaultMaxTxnOps is the transaction size limit used when neither the options nor the
	// backend say otherwise. Consul can't do more than this in one transaction.
	DefaultMaxTxnOps = 64
)

// StoreOptions configures a data store on top of a Backend.
type StoreOptions struct {
	// Prefix namespaces all keys of the store. Use different prefixes for different
	// environments sharing one key-value service. An empty prefix puts keys at the root.
	Prefix string `json:"prefix"`
	// MaxTxnOps caps the number of operations sent in one transaction. Zero means
	// DefaultMaxTxnOps; the backend's own limit applies if it is lower.
	MaxTxnOps int `json:"max_txn_ops,omitempty"`
	// ConflictRetry decides how Upsert retries after losing a compare-and-swap race.
	// Nil means RetryForever.
	ConflictRetry ConflictRetryPolicy `json:"-"`
}

// PrefixOrDefault returns prefix, or DefaultPrefix if prefix is empty. Builders use it so that
// an unset prefix never makes a store own the whole key space.
func PrefixOrDefault(prefix string) string {
	if prefix == "" {
		return DefaultPrefix
	}
	return prefix
}
