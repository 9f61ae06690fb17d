package kv

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/yeisme/tagstore/pkg/configs"
)

// NATS KV 的键只允许 [-/_=.a-zA-Z0-9]，缓存键中的 ':' 存为 '='.
var natsKeys = strings.NewReplacer(":", "=")

var natsKeysBack = strings.NewReplacer("=", ":")

// NATSKV 基于 JetStream KV bucket 的实现. bucket 不支持条目级 TTL，由 ttl 包装处理过期.
type NATSKV struct {
	kv   nats.KeyValue
	conn *nats.Conn
}

// NewNATSKV 连接 NATS 并创建或打开 bucket.
func NewNATSKV(_ context.Context, cfg *configs.KVConfig) (KVStore, error) {
	var opts []nats.Option
	if cfg.NATS.User != "" {
		opts = append(opts, nats.UserInfo(cfg.NATS.User, cfg.NATS.Password))
	}

	nc, err := nats.Connect(cfg.NATS.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	kv, err := js.KeyValue(cfg.NATS.Bucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{Bucket: cfg.NATS.Bucket})
	}

	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("open KV bucket %s: %w", cfg.NATS.Bucket, err)
	}

	return &NATSKV{kv: kv, conn: nc}, nil
}

// live 读取未过期的值；过期条目顺便删除.
func (n *NATSKV) live(key string) ([]byte, bool, error) {
	entry, err := n.kv.Get(natsKeys.Replace(key))
	if errors.Is(err, nats.ErrKeyNotFound) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("nats kv get %s: %w", key, err)
	}

	val, expired, _, err := decodeWithTTL(entry.Value(), time.Now())
	if err != nil {
		return nil, false, err
	}

	if expired {
		_ = n.kv.Delete(natsKeys.Replace(key))
		return nil, false, nil
	}

	return val, true, nil
}

func (n *NATSKV) Get(_ context.Context, key string) ([]byte, error) {
	val, ok, err := n.live(key)
	if err != nil {
		return nil, err
	}

	if !ok {
		return nil, notFound(key)
	}

	return val, nil
}

func (n *NATSKV) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	encoded, _, err := encodeWithTTL(value, ttl)
	if err != nil {
		return err
	}

	if _, err := n.kv.Put(natsKeys.Replace(key), encoded); err != nil {
		return fmt.Errorf("nats kv put %s: %w", key, err)
	}

	return nil
}

func (n *NATSKV) Delete(_ context.Context, key string) error {
	err := n.kv.Delete(natsKeys.Replace(key))
	if err != nil && !errors.Is(err, nats.ErrKeyNotFound) {
		return fmt.Errorf("nats kv delete %s: %w", key, err)
	}

	return nil
}

func (n *NATSKV) Exists(_ context.Context, key string) (bool, error) {
	_, ok, err := n.live(key)
	return ok, err
}

// Keys 列出未过期且匹配 pattern（path.Match 语法）的键.
func (n *NATSKV) Keys(_ context.Context, pattern string) ([]string, error) {
	raw, err := n.kv.Keys()
	if errors.Is(err, nats.ErrNoKeysFound) {
		return []string{}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("nats kv keys: %w", err)
	}

	keys := make([]string, 0, len(raw))

	for _, k := range raw {
		key := natsKeysBack.Replace(k)

		if pattern != "" && pattern != "*" {
			if ok, _ := path.Match(pattern, key); !ok {
				continue
			}
		}

		if _, ok, err := n.live(key); err != nil || !ok {
			continue
		}

		keys = append(keys, key)
	}

	return keys, nil
}

func (n *NATSKV) Close() error {
	n.conn.Close()
	return nil
}

func init() {
	RegisterKVFactory(configs.KVTypeNATS, NewNATSKV)
}
