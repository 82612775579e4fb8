package device

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisStoreTest(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(rdb, "dev", "pool:client", ttl)
	return store, mr, func() {
		rdb.Close()
		mr.Close()
	}
}

func testMetadata() *Metadata {
	return &Metadata{
		DeviceKey:      "us-east-1_device-1",
		DeviceGroupKey: "group-1",
		CreatedAt:      time.Unix(1700000000, 0).UTC(),
	}
}

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	md, err := store.Get(ctx, "alice")
	if err != nil {
		t.Fatalf("get unknown: %v", err)
	}
	if md != nil {
		t.Fatalf("expected no device, got %+v", md)
	}

	if err := store.Put(ctx, "alice", testMetadata()); err != nil {
		t.Fatalf("put: %v", err)
	}
	md, err = store.Get(ctx, "alice")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if md == nil || *md != *testMetadata() {
		t.Fatalf("unexpected metadata %+v", md)
	}

	if err := store.Put(ctx, "alice", &Metadata{}); !errors.Is(err, ErrInvalidMetadata) {
		t.Fatalf("expected ErrInvalidMetadata, got %v", err)
	}

	if err := store.Delete(ctx, "alice"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Delete(ctx, "alice"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if md, err := store.Get(ctx, "alice"); err != nil || md != nil {
		t.Fatalf("expected no device after delete, got %+v, %v", md, err)
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestRedisStoreRoundTrip(t *testing.T) {
	store, _, done := newRedisStoreTest(t, 0)
	defer done()
	exerciseStore(t, store)
}

func TestRedisStoreNamespacesKeys(t *testing.T) {
	store, mr, done := newRedisStoreTest(t, time.Hour)
	defer done()

	if err := store.Put(context.Background(), "bob", testMetadata()); err != nil {
		t.Fatalf("put: %v", err)
	}
	key := "dev:pool:client:bob"
	if !mr.Exists(key) {
		t.Fatalf("expected key %q, have %v", key, mr.Keys())
	}
	if ttl := mr.TTL(key); ttl != time.Hour {
		t.Fatalf("expected ttl 1h, got %v", ttl)
	}

	mr.FastForward(2 * time.Hour)
	md, err := store.Get(context.Background(), "bob")
	if err != nil {
		t.Fatalf("get after expiry: %v", err)
	}
	if md != nil {
		t.Fatalf("expected expired device, got %+v", md)
	}
}

func TestRedisStoreRejectsCorruptTimestamp(t *testing.T) {
	store, mr, done := newRedisStoreTest(t, 0)
	defer done()

	mr.HSet("dev:pool:client:carol", fieldDeviceKey, "k", fieldCreatedAt, "not-a-number")
	if _, err := store.Get(context.Background(), "carol"); err == nil {
		t.Fatal("expected corrupt timestamp error")
	}
}

func TestRedisStoreUnavailable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	store := NewRedisStore(rdb, "dev", "pool:client", 0)
	mr.Close()

	if _, err := store.Get(context.Background(), "alice"); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
	if _, err := store.Ping(context.Background()); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable from ping, got %v", err)
	}
}
