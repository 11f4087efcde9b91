package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type stubSlot struct {
	getFn func(ctx context.Context, key string) ([]byte, error)
	putFn func(ctx context.Context, key string, value []byte) error
}

func (s *stubSlot) Get(ctx context.Context, key string) ([]byte, error) {
	if s.getFn == nil {
		return nil, errors.New("unexpected Get call")
	}
	return s.getFn(ctx, key)
}

func (s *stubSlot) Put(ctx context.Context, key string, value []byte) error {
	if s.putFn == nil {
		return errors.New("unexpected Put call")
	}
	return s.putFn(ctx, key, value)
}

func newMiniredis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestCacheGetMissThenHit(t *testing.T) {
	mr, client := newMiniredis(t)
	ctx := context.Background()
	key := DefaultKey
	expected := []byte(`[{"id":"t1"}]`)

	var calls int
	cache := NewCache(&stubSlot{
		getFn: func(ctx context.Context, k string) ([]byte, error) {
			calls++
			if k != key {
				t.Fatalf("unexpected key: %s", k)
			}
			return expected, nil
		},
	}, client, time.Minute)

	data, err := cache.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(data) != string(expected) {
		t.Fatalf("unexpected data: %s", data)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call to base, got %d", calls)
	}
	if ttl := mr.TTL(cacheKey(key)); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected TTL: %v", ttl)
	}

	cached, err := cache.Get(ctx, key)
	if err != nil {
		t.Fatalf("get cached: %v", err)
	}
	if string(cached) != string(expected) {
		t.Fatalf("unexpected cached data: %s", cached)
	}
	if calls != 1 {
		t.Fatalf("expected cached get to avoid base, calls=%d", calls)
	}
}

func TestCacheDoesNotCacheEmptySlot(t *testing.T) {
	mr, client := newMiniredis(t)
	cache := NewCache(&stubSlot{
		getFn: func(context.Context, string) ([]byte, error) { return nil, ErrSlotEmpty },
	}, client, time.Minute)

	if _, err := cache.Get(context.Background(), DefaultKey); !errors.Is(err, ErrSlotEmpty) {
		t.Fatalf("expected ErrSlotEmpty, got %v", err)
	}
	if mr.Exists(cacheKey(DefaultKey)) {
		t.Fatalf("empty slot should not be cached")
	}
}

func TestCachePutEvictsKey(t *testing.T) {
	mr, client := newMiniredis(t)
	ctx := context.Background()
	if err := client.Set(ctx, cacheKey(DefaultKey), []byte("[]"), time.Hour).Err(); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	var written []byte
	cache := NewCache(&stubSlot{
		putFn: func(_ context.Context, _ string, value []byte) error {
			written = value
			return nil
		},
	}, client, time.Minute)

	if err := cache.Put(ctx, DefaultKey, []byte(`[{"id":"t2"}]`)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if string(written) != `[{"id":"t2"}]` {
		t.Fatalf("base did not receive write: %s", written)
	}
	if mr.Exists(cacheKey(DefaultKey)) {
		t.Fatalf("cache key should be evicted")
	}
}

func TestCachePutErrorPreservesCache(t *testing.T) {
	mr, client := newMiniredis(t)
	ctx := context.Background()
	if err := client.Set(ctx, cacheKey(DefaultKey), []byte("[]"), time.Hour).Err(); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	cache := NewCache(&stubSlot{
		putFn: func(context.Context, string, []byte) error { return errors.New("boom") },
	}, client, time.Minute)

	if err := cache.Put(ctx, DefaultKey, []byte("[]")); err == nil {
		t.Fatalf("expected put error")
	}
	if !mr.Exists(cacheKey(DefaultKey)) {
		t.Fatalf("cache should remain on error")
	}
}

func TestCacheFallsBackWhenRedisDown(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	var calls int
	cache := NewCache(&stubSlot{
		getFn: func(context.Context, string) ([]byte, error) {
			calls++
			return []byte("[]"), nil
		},
	}, client, time.Minute)

	data, err := cache.Get(context.Background(), DefaultKey)
	if err != nil {
		t.Fatalf("get with redis down: %v", err)
	}
	if string(data) != "[]" || calls != 1 {
		t.Fatalf("expected base fallback, data=%s calls=%d", data, calls)
	}
}

func TestCacheWithoutClientPassesThrough(t *testing.T) {
	base := NewMemorySlot()
	cache := NewCache(base, nil, time.Minute)
	ctx := context.Background()

	if err := cache.Put(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := cache.Get(ctx, "k")
	if err != nil || string(got) != "v" {
		t.Fatalf("get: %q %v", got, err)
	}
}
