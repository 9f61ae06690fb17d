// Package cache 在 kv.KVStore 之上提供带类型的缓存，值用 sonic 编码.
//
// 键用 Key 生成：命名空间加原始字符串的 xxhash 摘要，任意长度的 URI 都能安全地做键.
//
//	c := cache.NewCache(store)
//
//	size, err := cache.GetOrSet(ctx, c, cache.Key("archive:head", uri), func() (int64, error) {
//		return probe(ctx, uri)
//	}, time.Minute)
//
// 未命中不是错误；GetOrSet 写回失败时仍返回 getter 的结果.
package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/singleflight"

	"github.com/yeisme/tagstore/pkg/internal/storage/kv"
)

// Cache 可并发使用. 同一个键上并发的 GetOrSet 未命中只调用一次 getter.
type Cache struct {
	store  kv.KVStore
	flight singleflight.Group
}

func NewCache(store kv.KVStore) *Cache {
	return &Cache{store: store}
}

// Key 返回 "<namespace>:<xxhash 十六进制>".
func Key(namespace, raw string) string {
	return namespace + ":" + strconv.FormatUint(xxhash.Sum64String(raw), 16)
}

// Get 未命中时返回的错误满足 errors.Is(err, kv.ErrKeyNotFound).
func Get[T any](ctx context.Context, c *Cache, key string) (T, error) {
	var v T

	raw, err := c.store.Get(ctx, key)
	if err != nil {
		return v, err
	}

	if err := sonic.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("cache: decode %s: %w", key, err)
	}

	return v, nil
}

// Set ttl<=0 表示不过期.
func Set[T any](ctx context.Context, c *Cache, key string, v T, ttl time.Duration) error {
	raw, err := sonic.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", key, err)
	}

	return c.store.Set(ctx, key, raw, ttl)
}

func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.store.Delete(ctx, key)
}

func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	return c.store.Exists(ctx, key)
}

// GetOrSet 先读缓存，未命中（或值无法解码）时调用 getter 并写回. getter 的错误不缓存.
func GetOrSet[T any](ctx context.Context, c *Cache, key string, getter func() (T, error), ttl time.Duration) (T, error) {
	if v, err := Get[T](ctx, c, key); err == nil {
		return v, nil
	}

	res, err, _ := c.flight.Do(key, func() (any, error) {
		v, err := getter()
		if err != nil {
			return v, err
		}

		_ = Set(ctx, c, key, v, ttl)

		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}

	v, _ := res.(T)

	return v, nil
}

// Clear 删除 namespace 下的全部键.
func (c *Cache) Clear(ctx context.Context, namespace string) error {
	keys, err := c.store.Keys(ctx, namespace+":*")
	if err != nil {
		return err
	}

	for _, k := range keys {
		if err := c.store.Delete(ctx, k); err != nil {
			return fmt.Errorf("cache: clear %s: %w", k, err)
		}
	}

	return nil
}
