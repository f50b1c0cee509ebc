package flagstore

import (
	"fmt"
	"sync"
)

// DataKind identifies a category of stored items. The set of kinds is closed; each kind has a
// namespace used in storage keys and a codec used to encode its items.
type DataKind int

const (
	// UnknownKind is the zero DataKind and is never stored.
	UnknownKind DataKind = iota
	// Features are feature flags.
	Features
	// Segments are user segments referenced by flag rules.
	Segments
)

type kindInfo struct {
	namespace string
	codec     ItemCodec
}

var (
	kindsLock sync.RWMutex
	kinds     = map[DataKind]kindInfo{
		Features: {namespace: "features", codec: JSONCodec{}},
		Segments: {namespace: "segments", codec: JSONCodec{}},
	}
)

// AllDataKinds returns every registered kind, in the order Init writes them. Segments go
// first since flags refer to them.
func AllDataKinds() []DataKind {
	return []DataKind{Segments, Features}
}

// Namespace returns the storage namespace of the kind, e.g. "features".
func (k DataKind) Namespace() string {
	kindsLock.RLock()
	defer kindsLock.RUnlock()
	return kinds[k].namespace
}

// String returns the namespace, or a placeholder for an unknown kind.
func (k DataKind) String() string {
	if ns := k.Namespace(); ns != "" {
		return ns
	}
	return fmt.Sprintf("DataKind(%d)", int(k))
}

// IsValid reports whether k is one of the registered kinds.
func (k DataKind) IsValid() bool {
	kindsLock.RLock()
	defer kindsLock.RUnlock()
	_, ok := kinds[k]
	return ok
}

// Codec returns the codec bound to the kind.
func (k DataKind) Codec() ItemCodec {
	kindsLock.RLock()
	defer kindsLock.RUnlock()
	if ki, ok := kinds[k]; ok {
		return ki.codec
	}
	return nil
}

// ParseDataKind returns the kind whose namespace is ns.
func ParseDataKind(ns string) (DataKind, error) {
	for _, k := range AllDataKinds() {
		if k.Namespace() == ns {
			return k, nil
		}
	}
	return UnknownKind, Error{
		Code:     UnknownDataKind,
		Err:      fmt.Errorf("no data kind has namespace %q", ns),
		UserData: ns,
	}
}

// RegisterCodec replaces the codec bound to kind. It is meant to be called at startup, before
// any store is created.
func RegisterCodec(kind DataKind, codec ItemCodec) error {
	if codec == nil {
		return fmt.Errorf("codec for %v can't be nil", kind)
	}
	kindsLock.Lock()
	defer kindsLock.Unlock()
	ki, ok := kinds[kind]
	if !ok {
		return Error{
			Code:     UnknownDataKind,
			Err:      fmt.Errorf("can't register codec for data kind %d", int(kind)),
			UserData: kind,
		}
	}
	ki.codec = codec
	kinds[kind] = ki
	return nil
}
