package datastore

import (
	"context"
	"fmt"
	"strings"

	"github.com/sharedcode/flagstore"
)

// IsInitialized reports whether the marker key exists. Its value is irrelevant.
func (s *Store[T]) IsInitialized(ctx context.Context) (bool, error) {
	p, err := s.backend.Get(ctx, s.keys.InitedKey())
	if err != nil {
		return false, err
	}
	return p != nil, nil
}

// Get returns the item of kind stored under key.
func (s *Store[T]) Get(ctx context.Context, kind flagstore.DataKind, key string) (flagstore.Item, bool, error) {
	if err := checkKind(kind); err != nil {
		return flagstore.Item{}, false, err
	}
	item, _, err := s.getWithToken(ctx, kind, s.keys.ItemKey(kind, key))
	if err != nil || item == nil {
		return flagstore.Item{}, false, err
	}
	return *item, true, nil
}

// GetAll returns all items of kind keyed by item key.
func (s *Store[T]) GetAll(ctx context.Context, kind flagstore.DataKind) (map[string]flagstore.Item, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	kindKey := s.keys.KindKey(kind)
	pairs, err := s.backend.List(ctx, kindKey)
	if err != nil {
		return nil, err
	}
	r := make(map[string]flagstore.Item, len(pairs))
	for _, p := range pairs {
		item, err := flagstore.DecodeItem(kind, p.Value)
		if err != nil {
			return nil, err
		}
		if item.Key == "" {
			item.Key = strings.TrimPrefix(p.Key, kindKey)
		}
		r[item.Key] = item
	}
	return r, nil
}

// getWithToken reads and decodes storageKey. The returned token is zero if the key is absent.
func (s *Store[T]) getWithToken(ctx context.Context, kind flagstore.DataKind, storageKey string) (*flagstore.Item, T, error) {
	var zero T
	p, err := s.backend.Get(ctx, storageKey)
	if err != nil || p == nil {
		return nil, zero, err
	}
	item, err := flagstore.DecodeItem(kind, p.Value)
	if err != nil {
		return nil, zero, err
	}
	if item.Key == "" {
		item.Key = strings.TrimPrefix(storageKey, s.keys.KindKey(kind))
	}
	return &item, p.ModifyToken, nil
}

func checkKind(kind flagstore.DataKind) error {
	if !kind.IsValid() {
		return flagstore.Error{
			Code:     flagstore.UnknownDataKind,
			Err:      fmt.Errorf("data kind %d is not registered", int(kind)),
			UserData: kind,
		}
	}
	return nil
}
