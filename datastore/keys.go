package datastore

import "github.com/sharedcode/flagstore"

const initedKeyName = "$inited"

// Keys maps kinds and item keys to storage keys under a prefix.
type Keys struct {
	root string
}

// NewKeys returns the mapper for prefix. An empty prefix maps keys to the root of the key space.
func NewKeys(prefix string) Keys {
	if prefix == "" {
		return Keys{}
	}
	return Keys{root: prefix + "/"}
}

// StoreKey is the prefix under which every key of the store lives, "" when there is no prefix.
func (k Keys) StoreKey() string {
	return k.root
}

// KindKey is the listing prefix of kind, "{prefix}/{namespace}/".
func (k Keys) KindKey(kind flagstore.DataKind) string {
	return k.root + kind.Namespace() + "/"
}

// ItemKey is the storage key of item key of kind.
func (k Keys) ItemKey(kind flagstore.DataKind, key string) string {
	return k.KindKey(kind) + key
}

// InitedKey is the key of the "initialized" marker.
func (k Keys) InitedKey() string {
	return k.root + initedKeyName
}
