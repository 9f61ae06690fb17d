package kv

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/groupcache"

	"github.com/yeisme/tagstore/pkg/configs"
)

// groupSeq 避免同名 group 重复注册时 groupcache panic.
var groupSeq atomic.Uint64

var (
	poolOnce sync.Once
	pool     *groupcache.HTTPPool
)

// GroupcacheKV 基于 Groupcache 的 KV 实现.
// groupcache 的缓存条目不可变，所以每个键带一个代数，Set/Delete 时递增代数使旧条目失效.
type GroupcacheKV struct {
	cache *groupcache.Group
	data  map[string][]byte // 本地存储数据，键为 key#gen
	gens  map[string]uint64 // 每个 key 的当前代数
	mu    sync.RWMutex
}

// groupcacheGetter 实现 groupcache.Getter 接口.
type groupcacheGetter struct {
	kv *GroupcacheKV
}

func (g *groupcacheGetter) Get(_ context.Context, key string, dest groupcache.Sink) error {
	g.kv.mu.RLock()
	value, exists := g.kv.data[key]
	g.kv.mu.RUnlock()

	if !exists {
		return notFound(key)
	}

	if err := dest.SetBytes(value); err != nil {
		return fmt.Errorf("failed to set bytes to sink: %w", err)
	}

	return nil
}

// NewGroupcacheKV 创建 Groupcache KV 实例.
func NewGroupcacheKV(_ context.Context, cfg *configs.KVConfig) (KVStore, error) {
	gcConfig := cfg.Groupcache

	kv := &GroupcacheKV{
		data: make(map[string][]byte),
		gens: make(map[string]uint64),
	}

	name := gcConfig.Name
	if groupcache.GetGroup(name) != nil {
		name = name + "-" + strconv.FormatUint(groupSeq.Add(1), 10)
	}

	kv.cache = groupcache.NewGroup(name, gcConfig.CacheBytes, &groupcacheGetter{kv: kv})

	// 如果有对等节点，设置 HTTP 池（进程内只能注册一次）
	if len(gcConfig.Peers) > 0 {
		poolOnce.Do(func() {
			pool = groupcache.NewHTTPPoolOpts(gcConfig.Self, &groupcache.HTTPPoolOptions{})
		})
		pool.Set(gcConfig.Peers...)
	}

	return kv, nil
}

func (g *GroupcacheKV) versioned(key string) (string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	vkey := key + "#" + strconv.FormatUint(g.gens[key], 10)
	_, ok := g.data[vkey]

	return vkey, ok
}

// Get 获取键的值.
func (g *GroupcacheKV) Get(ctx context.Context, key string) ([]byte, error) {
	vkey, ok := g.versioned(key)
	if !ok {
		return nil, notFound(key)
	}

	var data []byte
	if err := g.cache.Get(ctx, vkey, groupcache.AllocatingByteSliceSink(&data)); err != nil {
		return nil, fmt.Errorf("failed to get key: %w", err)
	}

	val, expired, _, err := decodeWithTTL(data, time.Now())
	if err != nil {
		return nil, err
	}

	if expired {
		return nil, notFound(key)
	}

	return val, nil
}

// Set 设置键的值.
func (g *GroupcacheKV) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	encoded, wrapped, err := encodeWithTTL(value, ttl)
	if err != nil {
		return err
	}

	if !wrapped {
		encoded = make([]byte, len(value))
		copy(encoded, value)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	old := g.gens[key]
	delete(g.data, key+"#"+strconv.FormatUint(old, 10))

	gen := old + 1
	g.gens[key] = gen
	g.data[key+"#"+strconv.FormatUint(gen, 10)] = encoded

	return nil
}

// Delete 删除键.
func (g *GroupcacheKV) Delete(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	// 代数只增不减，避免删除后重建的键命中 groupcache 中的旧条目
	if gen, ok := g.gens[key]; ok {
		delete(g.data, key+"#"+strconv.FormatUint(gen, 10))
		g.gens[key] = gen + 1
	}

	return nil
}

// Exists 检查键是否存在.
func (g *GroupcacheKV) Exists(ctx context.Context, key string) (bool, error) {
	if _, err := g.Get(ctx, key); err != nil {
		return false, nil
	}

	return true, nil
}

// Keys 获取匹配 glob 模式的键.
func (g *GroupcacheKV) Keys(_ context.Context, pattern string) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	keys := make([]string, 0, len(g.gens))
	for key, gen := range g.gens {
		if _, live := g.data[key+"#"+strconv.FormatUint(gen, 10)]; !live {
			continue
		}

		if pattern == "" || pattern == "*" {
			keys = append(keys, key)
		} else if ok, _ := path.Match(pattern, key); ok {
			keys = append(keys, key)
		}
	}

	return keys, nil
}

// Close 关闭缓存.
func (g *GroupcacheKV) Close() error {
	// Groupcache 没有显式的关闭方法
	return nil
}

func init() {
	RegisterKVFactory(configs.KVTypeGroupcache, NewGroupcacheKV)
}
