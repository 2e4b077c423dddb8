package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newSessionStoreTest(t *testing.T, maxActive int) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return NewStore(rdb, "art", maxActive), mr
}

func TestAddContainsRemove(t *testing.T) {
	store, _ := newSessionStoreTest(t, 0)
	ctx := context.Background()
	now := time.Now()

	if err := store.Add(ctx, "u1", "d1", now.Add(time.Hour), now); err != nil {
		t.Fatalf("Add: %v", err)
	}

	ok, err := store.Contains(ctx, "u1", "d1", now)
	if err != nil || !ok {
		t.Fatalf("expected member, got %v (%v)", ok, err)
	}

	removed, err := store.Remove(ctx, "u1", "d1")
	if err != nil || !removed {
		t.Fatalf("expected removal, got %v (%v)", removed, err)
	}

	removed, err = store.Remove(ctx, "u1", "d1")
	if err != nil {
		t.Fatalf("second Remove must be idempotent: %v", err)
	}
	if removed {
		t.Fatal("second Remove reported a removal")
	}

	ok, _ = store.Contains(ctx, "u1", "d1", now)
	if ok {
		t.Fatal("removed digest still a member")
	}
}

func TestContainsIgnoresExpiredMembers(t *testing.T) {
	store, _ := newSessionStoreTest(t, 0)
	ctx := context.Background()
	now := time.Now()

	_ = store.Add(ctx, "u1", "d1", now.Add(time.Minute), now)

	ok, err := store.Contains(ctx, "u1", "d1", now.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("Contains: %v", err)
	}
	if ok {
		t.Fatal("expired digest reported as member")
	}
}

func TestRemoveAllEmptiesSet(t *testing.T) {
	store, mr := newSessionStoreTest(t, 0)
	ctx := context.Background()
	now := time.Now()

	for _, d := range []string{"d1", "d2", "d3"} {
		if err := store.Add(ctx, "u1", d, now.Add(time.Hour), now); err != nil {
			t.Fatalf("Add %s: %v", d, err)
		}
	}

	n, err := store.RemoveAll(ctx, "u1")
	if err != nil || n != 3 {
		t.Fatalf("expected 3 removed, got %d (%v)", n, err)
	}
	if mr.Exists("art:u1") {
		t.Fatal("expected set key gone")
	}
	if n, _ := store.Count(ctx, "u1", now); n != 0 {
		t.Fatalf("expected empty set, got %d", n)
	}
}

func TestRotate(t *testing.T) {
	store, _ := newSessionStoreTest(t, 0)
	ctx := context.Background()
	now := time.Now()

	_ = store.Add(ctx, "u1", "old", now.Add(time.Hour), now)

	if err := store.Rotate(ctx, "u1", "old", "new", now.Add(2*time.Hour), now); err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if ok, _ := store.Contains(ctx, "u1", "old", now); ok {
		t.Fatal("old digest survived rotation")
	}
	if ok, _ := store.Contains(ctx, "u1", "new", now); !ok {
		t.Fatal("new digest missing after rotation")
	}

	err := store.Rotate(ctx, "u1", "old", "newer", now.Add(2*time.Hour), now)
	if !errors.Is(err, ErrRefreshNotFound) {
		t.Fatalf("expected ErrRefreshNotFound on reuse, got %v", err)
	}
}

func TestRotateRejectsExpired(t *testing.T) {
	store, _ := newSessionStoreTest(t, 0)
	ctx := context.Background()
	now := time.Now()

	_ = store.Add(ctx, "u1", "old", now.Add(time.Minute), now)

	later := now.Add(2 * time.Minute)
	err := store.Rotate(ctx, "u1", "old", "new", later.Add(time.Hour), later)
	if !errors.Is(err, ErrRefreshNotFound) {
		t.Fatalf("expected ErrRefreshNotFound, got %v", err)
	}
	if ok, _ := store.Contains(ctx, "u1", "new", later); ok {
		t.Fatal("expired rotation must not add the new digest")
	}
}

func TestConcurrentRotateSingleWinner(t *testing.T) {
	store, _ := newSessionStoreTest(t, 0)
	ctx := context.Background()
	now := time.Now()

	_ = store.Add(ctx, "u1", "old", now.Add(time.Hour), now)

	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			next := "new-" + string(rune('a'+i))
			if err := store.Rotate(ctx, "u1", "old", next, now.Add(time.Hour), now); err == nil {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Fatalf("expected one rotation winner, got %d", wins.Load())
	}
	if n, _ := store.Count(ctx, "u1", now); n != 1 {
		t.Fatalf("expected exactly one live digest, got %d", n)
	}
}

func TestMaxActiveEvictsSoonestExpiring(t *testing.T) {
	store, _ := newSessionStoreTest(t, 2)
	ctx := context.Background()
	now := time.Now()

	_ = store.Add(ctx, "u1", "d1", now.Add(1*time.Hour), now)
	_ = store.Add(ctx, "u1", "d2", now.Add(2*time.Hour), now)
	_ = store.Add(ctx, "u1", "d3", now.Add(3*time.Hour), now)

	if ok, _ := store.Contains(ctx, "u1", "d1", now); ok {
		t.Fatal("expected oldest digest evicted")
	}
	if n, _ := store.Count(ctx, "u1", now); n != 2 {
		t.Fatalf("expected 2 live digests, got %d", n)
	}
}

func TestKeyExpiresWithTokens(t *testing.T) {
	store, mr := newSessionStoreTest(t, 0)
	now := time.Now()

	_ = store.Add(context.Background(), "u1", "d1", now.Add(time.Hour), now)
	if ttl := mr.TTL("art:u1"); ttl <= 0 || ttl > time.Hour {
		t.Fatalf("expected key ttl armed, got %v", ttl)
	}
}

func TestStoreRedisDown(t *testing.T) {
	store, mr := newSessionStoreTest(t, 0)
	mr.Close()

	_, err := store.Contains(context.Background(), "u1", "d1", time.Now())
	if !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}
