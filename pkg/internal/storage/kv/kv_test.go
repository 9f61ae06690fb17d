package kv_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"testing"
	"time"

	"github.com/yeisme/tagstore/pkg/configs"
	"github.com/yeisme/tagstore/pkg/internal/storage/kv"
)

func newStore(t testing.TB, typ configs.KVType) kv.KVStore {
	t.Helper()

	cfg := configs.Defaults().KV
	cfg.Type = typ

	store, err := kv.NewKVStore(context.Background(), &cfg)
	if err != nil {
		t.Fatalf("create %s kv: %v", typ, err)
	}

	t.Cleanup(func() { _ = store.Close() })

	return store
}

func TestLocalStores(t *testing.T) {
	for _, typ := range []configs.KVType{configs.KVTypeMemory, configs.KVTypeGroupcache} {
		t.Run(string(typ), func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t, typ)

			if _, err := store.Get(ctx, "missing"); !errors.Is(err, kv.ErrKeyNotFound) {
				t.Fatalf("expected ErrKeyNotFound, got %v", err)
			}

			if err := store.Set(ctx, "a", []byte("1"), 0); err != nil {
				t.Fatalf("set: %v", err)
			}

			if err := store.Set(ctx, "a", []byte("2"), 0); err != nil {
				t.Fatalf("overwrite: %v", err)
			}

			got, err := store.Get(ctx, "a")
			if err != nil || string(got) != "2" {
				t.Fatalf("get after overwrite = %q, %v", got, err)
			}

			if err := store.Delete(ctx, "a"); err != nil {
				t.Fatalf("delete: %v", err)
			}

			if ok, _ := store.Exists(ctx, "a"); ok {
				t.Fatal("key still exists after delete")
			}

			if err := store.Set(ctx, "a", []byte("3"), 0); err != nil {
				t.Fatalf("recreate: %v", err)
			}

			if got, _ := store.Get(ctx, "a"); string(got) != "3" {
				t.Fatalf("recreated key = %q, want 3", got)
			}

			_ = store.Set(ctx, "head:1", []byte("x"), 0)

			keys, err := store.Keys(ctx, "head:*")
			if err != nil {
				t.Fatalf("keys: %v", err)
			}

			if !slices.Equal(keys, []string{"head:1"}) {
				t.Fatalf("keys = %v", keys)
			}
		})
	}
}

func TestMemoryTTL(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, configs.KVTypeMemory)

	if err := store.Set(ctx, "short", []byte("v"), 200*time.Millisecond); err != nil {
		t.Fatalf("set: %v", err)
	}

	if got, err := store.Get(ctx, "short"); err != nil || string(got) != "v" {
		t.Fatalf("fresh value = %q, %v", got, err)
	}

	time.Sleep(300 * time.Millisecond)

	if _, err := store.Get(ctx, "short"); !errors.Is(err, kv.ErrKeyNotFound) {
		t.Fatalf("expected expiry, got %v", err)
	}

	// 过期项被删除后可以重新写入
	if ok, _ := store.Exists(ctx, "short"); ok {
		t.Fatal("expired key still exists")
	}

	if err := store.Set(ctx, "short", []byte("w"), time.Minute); err != nil {
		t.Fatalf("set again: %v", err)
	}

	if got, err := store.Get(ctx, "short"); err != nil || string(got) != "w" {
		t.Fatalf("value after reset = %q, %v", got, err)
	}
}

func BenchmarkMemoryKV(b *testing.B) {
	benchKV(b, "memory", newStore(b, configs.KVTypeMemory))
}

func BenchmarkGroupcacheKV(b *testing.B) {
	benchKV(b, "groupcache", newStore(b, configs.KVTypeGroupcache))
}

// Optional: enable with ENABLE_REDIS_BENCH=1 and REDIS_ADDR set (default 127.0.0.1:6379).
func BenchmarkRedisKV(b *testing.B) {
	if os.Getenv("ENABLE_REDIS_BENCH") == "" {
		b.Skip("set ENABLE_REDIS_BENCH=1 to enable")
	}

	cfg := configs.Defaults().KV
	cfg.Type = configs.KVTypeRedis

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}

	store, err := kv.NewKVStore(context.Background(), &cfg)
	if err != nil {
		b.Skipf("redis not available: %v", err)
	}

	benchKV(b, "redis", store)
	_ = store.Close()
}

// benchKV 执行基本的 Set/Get/Delete 基准测试.
func benchKV(b *testing.B, name string, store kv.KVStore) {
	ctx := context.Background()
	payload := []byte("1048576")

	for _, ttl := range []time.Duration{0, 5 * time.Second} {
		b.Run(fmt.Sprintf("%s/ttl=%s", name, ttl), func(b *testing.B) {
			b.ReportAllocs()

			for i := 0; b.Loop(); i++ {
				key := fmt.Sprintf("bench-%s-%d", name, i)
				if err := store.Set(ctx, key, payload, ttl); err != nil {
					b.Fatalf("set failed: %v", err)
				}

				if _, err := store.Get(ctx, key); err != nil {
					b.Fatalf("get failed: %v", err)
				}

				if err := store.Delete(ctx, key); err != nil {
					b.Fatalf("delete failed: %v", err)
				}
			}
		})
	}
}
