package datastore

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sharedcode/flagstore"
	"github.com/sharedcode/flagstore/inmemory"
)

func TestUpsert_CreatesNewItem(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, "p", inmemory.Options{})

	got, err := s.Upsert(ctx, flagstore.Features, flag("f", 1))
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if got.Version != 1 {
		t.Errorf("got version %d, expected 1", got.Version)
	}
	stored, found, _ := s.Get(ctx, flagstore.Features, "f")
	if !found || stored.Version != 1 {
		t.Errorf("got %+v, found: %v", stored, found)
	}
}

func TestUpsert_Monotonic(t *testing.T) {
	ctx := context.Background()
	for _, order := range [][]int{{1, 2}, {2, 1}} {
		s, _ := newTestStore(t, "p", inmemory.Options{})
		for _, v := range order {
			if _, err := s.Upsert(ctx, flagstore.Features, flag("f", v)); err != nil {
				t.Fatalf("Upsert failed: %v", err)
			}
		}
		got, _, _ := s.Get(ctx, flagstore.Features, "f")
		if got.Version != 2 {
			t.Errorf("order %v: got version %d, expected 2", order, got.Version)
		}
	}
}

func TestUpsert_StaleReturnsStoredItem(t *testing.T) {
	ctx := context.Background()
	s, b := newTestStore(t, "p", inmemory.Options{})
	newer := flag("f", 5)
	if _, err := s.Upsert(ctx, flagstore.Features, newer); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	before, _ := b.Get(ctx, "p/features/f")

	for _, v := range []int{5, 3} {
		got, err := s.Upsert(ctx, flagstore.Features, flagstore.Item{Key: "f", Version: v})
		if err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
		if got.Version != 5 || string(got.Data) != string(newer.Data) {
			t.Errorf("stale upsert of version %d returned %+v, expected the stored item", v, got)
		}
	}
	after, _ := b.Get(ctx, "p/features/f")
	if after.ModifyToken != before.ModifyToken {
		t.Errorf("stale upsert wrote to the backend")
	}
}

func TestUpsert_Tombstone(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, "p", inmemory.Options{})
	s.Upsert(ctx, flagstore.Segments, flagstore.Item{Key: "s", Version: 1})
	if _, err := s.Upsert(ctx, flagstore.Segments, flagstore.Item{Key: "s", Version: 2, Deleted: true}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	got, found, _ := s.Get(ctx, flagstore.Segments, "s")
	if !found || !got.Deleted || got.Version != 2 {
		t.Errorf("got %+v, found: %v, expected tombstone at version 2", got, found)
	}
	// A late write of an older version does not resurrect the item.
	got, _ = s.Upsert(ctx, flagstore.Segments, flagstore.Item{Key: "s", Version: 1})
	if !got.Deleted {
		t.Errorf("older version replaced the tombstone")
	}
}

func TestUpsert_RetriesAfterConcurrentModification(t *testing.T) {
	ctx := context.Background()
	s, b := newTestStore(t, "p", inmemory.Options{})
	s.Upsert(ctx, flagstore.Features, flag("f", 1))

	// Another writer sneaks in version 2 right before our first compare-and-swap.
	var interfered atomic.Bool
	b.SetHooks(inmemory.Hooks{BeforeCompareAndSwap: func(ctx context.Context, key string) {
		if interfered.CompareAndSwap(false, true) {
			ba, _ := flagstore.EncodeItem(flagstore.Features, flag("f", 2))
			b.Put(ctx, key, ba)
		}
	}})

	got, err := s.Upsert(ctx, flagstore.Features, flag("f", 3))
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if got.Version != 3 {
		t.Errorf("got version %d, expected 3", got.Version)
	}
	stored, _, _ := s.Get(ctx, flagstore.Features, "f")
	if stored.Version != 3 {
		t.Errorf("stored version %d, expected 3", stored.Version)
	}
}

func TestUpsert_LosesToNewerConcurrentWrite(t *testing.T) {
	ctx := context.Background()
	s, b := newTestStore(t, "p", inmemory.Options{})

	b.SetHooks(inmemory.Hooks{BeforeCompareAndSwap: func(ctx context.Context, key string) {
		b.SetHooks(inmemory.Hooks{})
		ba, _ := flagstore.EncodeItem(flagstore.Features, flag("f", 10))
		b.Put(ctx, key, ba)
	}})

	got, err := s.Upsert(ctx, flagstore.Features, flag("f", 3))
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if got.Version != 10 {
		t.Errorf("got version %d, expected the concurrent writer's 10", got.Version)
	}
}

func TestUpsert_BoundedRetryGivesUp(t *testing.T) {
	ctx := context.Background()
	b := inmemory.NewBackend(inmemory.Options{})
	s, _ := New[uint64](b, flagstore.StoreOptions{Prefix: "p", ConflictRetry: flagstore.RetryAtMost(3)}, true)

	var attempts atomic.Int32
	b.SetHooks(inmemory.Hooks{BeforeCompareAndSwap: func(ctx context.Context, key string) {
		attempts.Add(1)
		// Always touch the key, without ever making the upsert stale.
		ba, _ := flagstore.EncodeItem(flagstore.Features, flag("f", 0))
		b.Put(ctx, key, ba)
	}})

	_, err := s.Upsert(ctx, flagstore.Features, flag("f", 1))
	if flagstore.ErrorCodeOf(err) != flagstore.ConflictRetriesExhausted {
		t.Fatalf("expected ConflictRetriesExhausted, got %v", err)
	}
	if attempts.Load() != 4 {
		t.Errorf("got %d compare-and-swap attempts, expected 4", attempts.Load())
	}
}

func TestUpsert_ContextCancelStopsRetries(t *testing.T) {
	b := inmemory.NewBackend(inmemory.Options{})
	s, _ := New[uint64](b, flagstore.StoreOptions{
		Prefix:        "p",
		ConflictRetry: flagstore.RetryWithBackoff(1000, 10*time.Millisecond, 50*time.Millisecond),
	}, true)
	ctx, cancel := context.WithCancel(context.Background())
	b.SetHooks(inmemory.Hooks{BeforeCompareAndSwap: func(hctx context.Context, key string) {
		b.Put(context.Background(), key, []byte(`{"key":"f","version":0}`))
		cancel()
	}})

	_, err := s.Upsert(ctx, flagstore.Features, flag("f", 1))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestUpsert_TransportErrorIsNotRetried(t *testing.T) {
	b := inmemory.NewBackend(inmemory.Options{})
	s, _ := New[uint64](b, flagstore.StoreOptions{Prefix: "p"}, true)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Upsert(ctx, flagstore.Features, flag("f", 1)); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestUpsert_ConcurrentRaceHigherVersionWins(t *testing.T) {
	ctx := context.Background()
	for round := 0; round < 20; round++ {
		b := inmemory.NewBackend(inmemory.Options{})
		s1, _ := New[uint64](b, flagstore.StoreOptions{Prefix: "p"}, false)
		s2, _ := New[uint64](b, flagstore.StoreOptions{Prefix: "p"}, false)

		var g errgroup.Group
		var r1, r2 flagstore.Item
		g.Go(func() (err error) {
			r1, err = s1.Upsert(ctx, flagstore.Features, flag("f", 7))
			return err
		})
		g.Go(func() (err error) {
			r2, err = s2.Upsert(ctx, flagstore.Features, flag("f", 8))
			return err
		})
		if err := g.Wait(); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
		if r2.Version != 8 {
			t.Errorf("round %d: higher version upsert returned %d", round, r2.Version)
		}
		if r1.Version != 7 && r1.Version != 8 {
			t.Errorf("round %d: lower version upsert returned %d", round, r1.Version)
		}
		got, _, _ := s1.Get(ctx, flagstore.Features, "f")
		if got.Version != 8 {
			t.Errorf("round %d: stored version %d, expected 8", round, got.Version)
		}
	}
}

func TestUpsert_EqualVersionsFirstWriterWins(t *testing.T) {
	ctx := context.Background()
	b := inmemory.NewBackend(inmemory.Options{})
	s, _ := New[uint64](b, flagstore.StoreOptions{Prefix: "p"}, false)

	first := flagstore.Item{Key: "f", Version: 4, Data: []byte(`"first"`)}
	second := flagstore.Item{Key: "f", Version: 4, Data: []byte(`"second"`)}
	b.SetHooks(inmemory.Hooks{BeforeCompareAndSwap: func(hctx context.Context, key string) {
		b.SetHooks(inmemory.Hooks{})
		if _, err := s.Upsert(hctx, flagstore.Features, first); err != nil {
			t.Errorf("inner Upsert failed: %v", err)
		}
	}})

	got, err := s.Upsert(ctx, flagstore.Features, second)
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if string(got.Data) != `"first"` {
		t.Errorf("got %s, expected the item of the writer whose compare-and-swap succeeded first", got.Data)
	}
}

func TestUpsert_RejectsEmptyKeyAndUnknownKind(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, "p", inmemory.Options{})
	if _, err := s.Upsert(ctx, flagstore.Features, flagstore.Item{Version: 1}); err == nil {
		t.Errorf("expected error for empty key")
	}
	if _, err := s.Upsert(ctx, flagstore.UnknownKind, flag("f", 1)); flagstore.ErrorCodeOf(err) != flagstore.UnknownDataKind {
		t.Errorf("expected UnknownDataKind, got %v", err)
	}
}
