package cache

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type fakeStore struct {
	data   map[string]string
	ttls   map[string]time.Duration
	getErr error
	delErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeStore) Get(ctx context.Context, key string) (string, error) {
	if f.getErr != nil {
		return "", f.getErr
	}
	v, ok := f.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (f *fakeStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	f.data[key] = fmt.Sprint(value)
	f.ttls[key] = ttl
	return nil
}

func (f *fakeStore) Del(ctx context.Context, keys ...string) error {
	if f.delErr != nil {
		return f.delErr
	}
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func (f *fakeStore) CacheKey(entity, id string) string {
	return entity + ":" + id
}

type snapshot struct {
	Status  string
	Version int
}

func TestSnapshotsRoundTripAndInvalidate(t *testing.T) {
	store := newFakeStore()
	c := New[snapshot](store, "order", 5*time.Second, nil)
	ctx := context.Background()
	id := uuid.New()

	if _, ok := c.Get(ctx, id); ok {
		t.Fatal("expected miss on empty cache")
	}

	c.Put(ctx, id, &snapshot{Status: "shipped", Version: 2})
	if store.ttls["order:"+id.String()] != 5*time.Second {
		t.Fatalf("expected ttl to be applied")
	}
	got, ok := c.Get(ctx, id)
	if !ok || got.Status != "shipped" || got.Version != 2 {
		t.Fatalf("unexpected snapshot %+v ok=%v", got, ok)
	}

	c.Invalidate(ctx, id)
	if _, ok := c.Get(ctx, id); ok {
		t.Fatal("expected miss after invalidate")
	}
}

func TestSnapshotsDegradeToMiss(t *testing.T) {
	store := newFakeStore()
	store.getErr = errors.New("connection refused")
	c := New[snapshot](store, "order", time.Second, nil)
	if _, ok := c.Get(context.Background(), uuid.New()); ok {
		t.Fatal("expected miss when redis fails")
	}

	store.getErr = nil
	id := uuid.New()
	store.data["order:"+id.String()] = "{not json"
	if _, ok := c.Get(context.Background(), id); ok {
		t.Fatal("expected miss for corrupt entry")
	}
}

func TestDisabledCacheIsNil(t *testing.T) {
	if c := New[snapshot](newFakeStore(), "order", 0, nil); c != nil {
		t.Fatal("zero ttl should disable the cache")
	}
	var c *Snapshots[snapshot]
	c.Put(context.Background(), uuid.New(), &snapshot{})
	c.Invalidate(context.Background(), uuid.New())
	if _, ok := c.Get(context.Background(), uuid.New()); ok {
		t.Fatal("nil cache must always miss")
	}
}
