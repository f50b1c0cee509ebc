package datastore

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"

	"github.com/sethvargo/go-retry"

	"github.com/sharedcode/flagstore"
)

// errConcurrentModification marks a lost compare-and-swap race. It never leaves Upsert.
var errConcurrentModification = errors.New("concurrent modification detected")

// Upsert writes item unless the store already has a version of it that is at least as new,
// and returns what is stored afterwards: item itself, or the newer stored item.
//
// The write is a compare-and-swap conditioned on the modify token read just before, so it
// fails if any other writer touched the key in between. In that case the whole read, compare,
// write sequence is repeated as the store's ConflictRetryPolicy allows.
func (s *Store[T]) Upsert(ctx context.Context, kind flagstore.DataKind, item flagstore.Item) (flagstore.Item, error) {
	if err := checkKind(kind); err != nil {
		return flagstore.Item{}, err
	}
	if item.Key == "" {
		return flagstore.Item{}, fmt.Errorf("can't upsert %v item with an empty key", kind)
	}
	key := s.keys.ItemKey(kind, item.Key)
	ba, err := flagstore.EncodeItem(kind, item)
	if err != nil {
		return flagstore.Item{}, err
	}

	var result flagstore.Item
	attempts := 0
	err = retry.Do(ctx, s.retry(), func(ctx context.Context) error {
		attempts++
		stored, token, err := s.getWithToken(ctx, kind, key)
		if err != nil {
			return err
		}

		// Stale: keep the stored item and hand it back so the caller can cache it.
		if stored != nil && stored.Version >= item.Version {
			result = *stored
			return nil
		}

		// A zero token means the key did not exist, then the write only succeeds if it
		// still doesn't.
		ok, err := s.backend.CompareAndSwap(ctx, key, ba, token)
		if err != nil {
			return err
		}
		if !ok {
			log.Debug("Concurrent modification detected, retrying", "key", key, "attempt", attempts)
			return retry.RetryableError(errConcurrentModification)
		}
		result = item
		return nil
	})
	if err != nil {
		if errors.Is(err, errConcurrentModification) {
			return flagstore.Item{}, flagstore.Error{
				Code:     flagstore.ConflictRetriesExhausted,
				Err:      fmt.Errorf("upsert of %s gave up after %d attempts: %w", key, attempts, err),
				UserData: key,
			}
		}
		return flagstore.Item{}, err
	}
	return result, nil
}
