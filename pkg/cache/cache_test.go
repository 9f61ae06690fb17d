package cache_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yeisme/tagstore/pkg/cache"
	"github.com/yeisme/tagstore/pkg/configs"
	"github.com/yeisme/tagstore/pkg/internal/storage/kv"
)

type headInfo struct {
	Length int64  `json:"length"`
	Type   string `json:"type"`
}

func newCache(t *testing.T) *cache.Cache {
	t.Helper()

	cfg := configs.Defaults().KV
	cfg.Type = configs.KVTypeMemory

	store, err := kv.NewKVStore(context.Background(), &cfg)
	if err != nil {
		t.Fatalf("memory kv: %v", err)
	}

	return cache.NewCache(store)
}

func TestKey(t *testing.T) {
	a := cache.Key("archive:head", "http://example.com/a")
	b := cache.Key("archive:head", "http://example.com/b")

	if a == b {
		t.Fatal("different inputs produced the same key")
	}

	if !strings.HasPrefix(a, "archive:head:") {
		t.Fatalf("key %q lacks namespace", a)
	}

	if a != cache.Key("archive:head", "http://example.com/a") {
		t.Fatal("key is not deterministic")
	}
}

func TestSetGet(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)

	want := headInfo{Length: 42, Type: "text/plain"}
	if err := cache.Set(ctx, c, "k", want, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, err := cache.Get[headInfo](ctx, c, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}

	if _, err := cache.Get[headInfo](ctx, c, "other"); !errors.Is(err, kv.ErrKeyNotFound) {
		t.Fatalf("expected miss, got %v", err)
	}
}

func TestGetOrSet(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)
	calls := 0

	getter := func() (int64, error) {
		calls++
		return 1024, nil
	}

	for range 3 {
		v, err := cache.GetOrSet(ctx, c, "len", getter, time.Minute)
		if err != nil || v != 1024 {
			t.Fatalf("GetOrSet = %d, %v", v, err)
		}
	}

	if calls != 1 {
		t.Fatalf("getter called %d times, want 1", calls)
	}
}

func TestGetOrSetGetterError(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)
	boom := errors.New("boom")

	_, err := cache.GetOrSet(ctx, c, "len", func() (int64, error) { return 0, boom }, time.Minute)
	if !errors.Is(err, boom) {
		t.Fatalf("expected getter error, got %v", err)
	}

	if ok, _ := c.Exists(ctx, "len"); ok {
		t.Fatal("failed getter result must not be cached")
	}
}

func TestClearNamespace(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)

	_ = cache.Set(ctx, c, cache.Key("a", "1"), 1, 0)
	_ = cache.Set(ctx, c, cache.Key("a", "2"), 2, 0)
	_ = cache.Set(ctx, c, cache.Key("b", "1"), 3, 0)

	if err := c.Clear(ctx, "a"); err != nil {
		t.Fatalf("clear: %v", err)
	}

	if ok, _ := c.Exists(ctx, cache.Key("a", "1")); ok {
		t.Fatal("namespace a not cleared")
	}

	if ok, _ := c.Exists(ctx, cache.Key("b", "1")); !ok {
		t.Fatal("namespace b must survive")
	}
}

func TestGetOrSetCollapsesConcurrentMisses(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)

	var calls atomic.Int32

	release := make(chan struct{})
	getter := func() (int64, error) {
		calls.Add(1)
		<-release

		return 7, nil
	}

	var wg sync.WaitGroup

	results := make([]int64, 8)
	for i := range results {
		wg.Add(1)

		go func() {
			defer wg.Done()

			results[i], _ = cache.GetOrSet(ctx, c, cache.Key("archive:head", "http://example.com/slow"), getter, time.Minute)
		}()
	}

	// 让所有 goroutine 先进入 singleflight
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i, v := range results {
		if v != 7 {
			t.Fatalf("result %d = %d", i, v)
		}
	}

	if n := calls.Load(); n < 1 || n > 2 {
		t.Fatalf("getter called %d times", n)
	}
}
