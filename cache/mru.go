package cache

import "time"

type mruEntry[K comparable, V any] struct {
	value V
	// expires is zero for entries that never expire.
	expires time.Time
	node    *node[K]
}

// mru is a map bounded to capacity entries; the least recently used entry goes first.
// A capacity of zero or less means unbounded. mru is not safe for concurrent use.
type mru[K comparable, V any] struct {
	capacity int
	lookup   map[K]*mruEntry[K, V]
	dll      doublyLinkedList[K]
}

func newMru[K comparable, V any](capacity int) *mru[K, V] {
	return &mru[K, V]{
		capacity: capacity,
		lookup:   make(map[K]*mruEntry[K, V]),
	}
}

// get returns the live value of key and marks it most recently used. Expired entries are
// removed.
func (m *mru[K, V]) get(key K, now time.Time) (V, bool) {
	e, ok := m.lookup[key]
	if !ok {
		var zero V
		return zero, false
	}
	if !e.expires.IsZero() && !now.Before(e.expires) {
		m.delete(key)
		var zero V
		return zero, false
	}
	m.dll.moveToHead(e.node)
	return e.value, true
}

func (m *mru[K, V]) set(key K, value V, expires time.Time) {
	if e, ok := m.lookup[key]; ok {
		e.value = value
		e.expires = expires
		m.dll.moveToHead(e.node)
		return
	}
	m.lookup[key] = &mruEntry[K, V]{value: value, expires: expires, node: m.dll.addToHead(key)}
	m.evict()
}

func (m *mru[K, V]) delete(key K) {
	if e, ok := m.lookup[key]; ok {
		m.dll.unlink(e.node)
		delete(m.lookup, key)
	}
}

func (m *mru[K, V]) clear() {
	m.lookup = make(map[K]*mruEntry[K, V])
	m.dll = doublyLinkedList[K]{}
}

func (m *mru[K, V]) count() int {
	return len(m.lookup)
}

// evict removes entries from the tail while the map is over capacity.
func (m *mru[K, V]) evict() {
	if m.capacity <= 0 {
		return
	}
	for m.dll.count() > m.capacity {
		key, ok := m.dll.removeTail()
		if !ok {
			return
		}
		delete(m.lookup, key)
	}
}
