// Package cache contains a caching flagstore.DataStore that wraps another one, typically a
// backend data store shared by many processes.
package cache

import (
	"context"
	"maps"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sharedcode/flagstore"
)

// Options configures the caching wrapper.
type Options struct {
	// TTL is how long cached results stay valid. Zero disables caching, a negative value caches
	// until the next Init.
	TTL time.Duration `json:"ttl"`
	// Capacity bounds the number of cached items. Zero or less means unbounded.
	Capacity int `json:"capacity,omitempty"`
}

type itemKey struct {
	kind flagstore.DataKind
	key  string
}

// itemResult caches absent items as well as present ones.
type itemResult struct {
	item  flagstore.Item
	found bool
}

// Store caches the results of a core flagstore.DataStore. Concurrent misses of the same entry
// trigger a single read of the core store.
type Store struct {
	core flagstore.DataStore
	ttl  time.Duration
	now  func() time.Time

	lock  sync.Mutex
	items *mru[itemKey, itemResult]
	all   *mru[flagstore.DataKind, map[string]flagstore.Item]
	// generation changes on every write so loads started before a write don't cache stale data.
	generation uint64
	inited     bool
	// uninitedUntil is when a cached "not initialized" answer expires.
	uninitedUntil time.Time

	group singleflight.Group
}

// New returns a Store caching the results of core.
func New(core flagstore.DataStore, options Options) *Store {
	return &Store{
		core:  core,
		ttl:   options.TTL,
		now:   time.Now,
		items: newMru[itemKey, itemResult](options.Capacity),
		all:   newMru[flagstore.DataKind, map[string]flagstore.Item](0),
	}
}

func (s *Store) enabled() bool {
	return s.ttl != 0
}

// expiry returns the expiration time of an entry cached now.
func (s *Store) expiry() time.Time {
	if s.ttl < 0 {
		return time.Time{}
	}
	return s.now().Add(s.ttl)
}

// flightKey identifies a load. Loads started in different generations are never shared.
func flightKey(prefix string, generation uint64, kind flagstore.DataKind, key string) string {
	return prefix + strconv.FormatUint(generation, 10) + ":" + kind.Namespace() + "/" + key
}

// IsInitialized reports whether the core store has been initialized. A true answer is
// remembered for the lifetime of the Store, a false one for at most TTL.
func (s *Store) IsInitialized(ctx context.Context) (bool, error) {
	if !s.enabled() {
		return s.core.IsInitialized(ctx)
	}
	s.lock.Lock()
	if s.inited {
		s.lock.Unlock()
		return true, nil
	}
	if s.now().Before(s.uninitedUntil) {
		s.lock.Unlock()
		return false, nil
	}
	s.lock.Unlock()

	v, err, _ := s.group.Do("inited", func() (any, error) {
		ok, err := s.core.IsInitialized(ctx)
		if err != nil {
			return false, err
		}
		s.lock.Lock()
		defer s.lock.Unlock()
		if ok {
			s.inited = true
		} else if s.ttl > 0 {
			s.uninitedUntil = s.now().Add(s.ttl)
		}
		return ok, nil
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// Init initializes the core store and, on success, replaces the cached data with dataset.
func (s *Store) Init(ctx context.Context, dataset flagstore.Dataset) error {
	err := s.core.Init(ctx, dataset)
	if !s.enabled() {
		return err
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	s.generation++
	s.items.clear()
	s.all.clear()
	if err != nil {
		return err
	}
	expires := s.expiry()
	for _, kind := range flagstore.AllDataKinds() {
		items := make(map[string]flagstore.Item, len(dataset[kind]))
		for k, item := range dataset[kind] {
			if item.Key == "" {
				item.Key = k
			}
			items[item.Key] = item
			s.items.set(itemKey{kind, item.Key}, itemResult{item: item, found: true}, expires)
		}
		s.all.set(kind, items, expires)
	}
	s.inited = true
	return nil
}

// Get returns the item of kind at key, from the cache when possible.
func (s *Store) Get(ctx context.Context, kind flagstore.DataKind, key string) (flagstore.Item, bool, error) {
	if !s.enabled() {
		return s.core.Get(ctx, kind, key)
	}
	k := itemKey{kind, key}
	s.lock.Lock()
	r, ok := s.items.get(k, s.now())
	generation := s.generation
	s.lock.Unlock()
	if ok {
		return r.item, r.found, nil
	}

	v, err, _ := s.group.Do(flightKey("item:", generation, kind, key), func() (any, error) {
		item, found, err := s.core.Get(ctx, kind, key)
		if err != nil {
			return itemResult{}, err
		}
		r := itemResult{item: item, found: found}
		s.lock.Lock()
		defer s.lock.Unlock()
		if s.generation == generation {
			s.items.set(k, r, s.expiry())
		}
		return r, nil
	})
	if err != nil {
		return flagstore.Item{}, false, err
	}
	r = v.(itemResult)
	return r.item, r.found, nil
}

// GetAll returns all items of kind, from the cache when possible. The returned map belongs to
// the caller.
func (s *Store) GetAll(ctx context.Context, kind flagstore.DataKind) (map[string]flagstore.Item, error) {
	if !s.enabled() {
		return s.core.GetAll(ctx, kind)
	}
	s.lock.Lock()
	items, ok := s.all.get(kind, s.now())
	generation := s.generation
	s.lock.Unlock()
	if ok {
		return maps.Clone(items), nil
	}

	v, err, _ := s.group.Do(flightKey("all:", generation, kind, ""), func() (any, error) {
		items, err := s.core.GetAll(ctx, kind)
		if err != nil {
			return nil, err
		}
		s.lock.Lock()
		defer s.lock.Unlock()
		if s.generation == generation {
			expires := s.expiry()
			s.all.set(kind, items, expires)
			for k, item := range items {
				s.items.set(itemKey{kind, k}, itemResult{item: item, found: true}, expires)
			}
		}
		return items, nil
	})
	if err != nil {
		return nil, err
	}
	return maps.Clone(v.(map[string]flagstore.Item)), nil
}

// Upsert writes item through to the core store and caches the item the core store kept.
func (s *Store) Upsert(ctx context.Context, kind flagstore.DataKind, item flagstore.Item) (flagstore.Item, error) {
	r, err := s.core.Upsert(ctx, kind, item)
	if !s.enabled() {
		return r, err
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	s.generation++
	s.all.delete(kind)
	k := itemKey{kind, item.Key}
	if err != nil {
		s.items.delete(k)
		return r, err
	}
	s.items.set(k, itemResult{item: r, found: true}, s.expiry())
	return r, nil
}

// IsAvailable asks the core store.
func (s *Store) IsAvailable(ctx context.Context) bool {
	return s.core.IsAvailable(ctx)
}

// Close drops the cached data and closes the core store.
func (s *Store) Close() error {
	s.lock.Lock()
	s.items.clear()
	s.all.clear()
	s.lock.Unlock()
	return s.core.Close()
}

var _ flagstore.DataStore = (*Store)(nil)
