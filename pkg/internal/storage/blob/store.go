package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/yeisme/tagstore/pkg/configs"
	nlog "github.com/yeisme/tagstore/pkg/log"
)

// Store 单 bucket 的 Blob 存储门面.
type Store struct {
	cfg       configs.BlobConfig
	backend   Backend
	index     *fileIndex
	construct *ReentrantLock
	now       func() time.Time
	log       zerolog.Logger
}

// Option 配置 Store.
type Option func(*Store)

// WithClock 替换时钟，测试中用来伪造修改时间.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithBackend 使用给定后端，忽略 cfg.Backend.
func WithBackend(b Backend) Option {
	return func(s *Store) { s.backend = b }
}

// Open 在构造锁内创建后端并加载索引.
func Open(ctx context.Context, cfg *configs.BlobConfig, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(cfg.Root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}

	lockOpts := LockOptions{
		Timeout:         cfg.LockTimeout,
		InitialInterval: cfg.LockInitialInterval,
		MaxInterval:     cfg.LockMaxInterval,
	}

	construct, err := NewReentrantLock(filepath.Join(cfg.Root, ".construct.lock"), lockOpts)
	if err != nil {
		return nil, err
	}

	indexLock, err := NewReentrantLock(filepath.Join(cfg.Root, cfg.Bucket+".index.lock"), lockOpts)
	if err != nil {
		return nil, err
	}

	s := &Store{
		cfg:       *cfg,
		construct: construct,
		index:     newFileIndex(filepath.Join(cfg.Root, cfg.Bucket+".index.json"), cfg.Bucket, indexLock),
		now:       time.Now,
		log:       nlog.Component("blob"),
	}

	for _, opt := range opts {
		opt(s)
	}

	// 构造锁只覆盖打开过程，随后立即释放
	err = construct.With(ctx, func(ctx context.Context) error {
		if s.backend == nil {
			b, err := newBackend(ctx, cfg)
			if err != nil {
				return err
			}

			s.backend = b
		}

		return s.index.revert(ctx)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("backend", string(cfg.Backend)).
		Str("root", cfg.Root).
		Str("bucket", cfg.Bucket).
		Msg("blob store opened")

	return s, nil
}

// Close 在构造锁内关闭后端.
func (s *Store) Close(ctx context.Context) error {
	return s.construct.With(ctx, func(context.Context) error {
		return s.backend.Close()
	})
}

// Bucket 返回 bucket 名.
func (s *Store) Bucket() string {
	return s.cfg.Bucket
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(TimeLayout)
}

// countingHash 统计写入字节数并计算 sha256.
type countingHash struct {
	n   int64
	sum hash.Hash
}

func (c *countingHash) Write(p []byte) (int, error) {
	c.n += int64(len(p))
	return c.sum.Write(p)
}

// Put 写入（或覆盖）label 的内容，meta 中的键合并进已有元数据.
// 门面维护的键（除 _format 外）不能由调用方设置.
func (s *Store) Put(ctx context.Context, label string, r io.Reader, meta Metadata) (Metadata, error) {
	if !ValidLabel(label) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLabel, label)
	}

	ch := &countingHash{sum: sha256.New()}
	if err := s.backend.Put(ctx, label, io.TeeReader(r, ch), -1, meta.Format()); err != nil {
		return nil, fmt.Errorf("put blob %s: %w", label, err)
	}

	var out Metadata

	err := s.index.update(ctx, func(entries map[string]Metadata) (bool, error) {
		now := s.timestamp()

		m := entries[label].Clone()
		if _, ok := m[KeyCreationDate]; !ok {
			m[KeyCreationDate] = now
		}

		mergeUserKeys(m, meta)
		m[KeyContentLength] = ch.n
		m[KeyLastModified] = now
		m[KeyChecksum] = hex.EncodeToString(ch.sum.Sum(nil))

		entries[label] = m
		out = m.Clone()

		return true, nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Debug().Str("label", label).Int64("size", ch.n).Msg("blob stored")

	return out, nil
}

// Get 打开 label 的内容. 未知 label 与缺失字节都返回 ErrNotFound（后者为 ErrBytesMissing）.
func (s *Store) Get(ctx context.Context, label string) (io.ReadCloser, Metadata, error) {
	meta, err := s.GetMetadata(ctx, label)
	if err != nil {
		return nil, nil, err
	}

	rc, err := s.backend.Get(ctx, label)
	if err != nil {
		if errors.Is(err, ErrBytesMissing) {
			return nil, nil, fmt.Errorf("get blob %s: %w", label, ErrBytesMissing)
		}

		return nil, nil, fmt.Errorf("get blob %s: %w", label, err)
	}

	return rc, meta, nil
}

// Delete 删除 label 并如实报告结果:
// 两者都不存在返回 ErrNotFound，只有索引记录时返回 ErrBytesMissing.
func (s *Store) Delete(ctx context.Context, label string) error {
	if !ValidLabel(label) {
		return fmt.Errorf("%w: %q", ErrInvalidLabel, label)
	}

	bytesErr := s.backend.Delete(ctx, label)
	if bytesErr != nil && !errors.Is(bytesErr, ErrBytesMissing) {
		return fmt.Errorf("delete blob %s: %w", label, bytesErr)
	}

	indexed := false

	err := s.index.update(ctx, func(entries map[string]Metadata) (bool, error) {
		if _, ok := entries[label]; !ok {
			return false, nil
		}

		delete(entries, label)

		indexed = true

		return true, nil
	})
	if err != nil {
		return err
	}

	switch {
	case !indexed && bytesErr != nil:
		return fmt.Errorf("delete blob %s: %w", label, ErrNotFound)
	case bytesErr != nil:
		return fmt.Errorf("delete blob %s: %w", label, ErrBytesMissing)
	}

	s.log.Debug().Str("label", label).Msg("blob deleted")

	return nil
}

// Exists 判断 label 是否在索引中.
func (s *Store) Exists(ctx context.Context, label string) (bool, error) {
	_, err := s.GetMetadata(ctx, label)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}

	return err == nil, err
}

// GetMetadata 返回元数据副本.
func (s *Store) GetMetadata(ctx context.Context, label string) (Metadata, error) {
	var out Metadata

	err := s.index.view(ctx, func(entries map[string]Metadata) error {
		m, ok := entries[label]
		if !ok {
			return fmt.Errorf("blob %s: %w", label, ErrNotFound)
		}

		out = m.Clone()

		return nil
	})

	return out, err
}

// UpdateMetadata 合并用户元数据，返回更新后的副本.
func (s *Store) UpdateMetadata(ctx context.Context, label string, meta Metadata) (Metadata, error) {
	var out Metadata

	err := s.index.update(ctx, func(entries map[string]Metadata) (bool, error) {
		m, ok := entries[label]
		if !ok {
			return false, fmt.Errorf("blob %s: %w", label, ErrNotFound)
		}

		m = m.Clone()
		mergeUserKeys(m, meta)
		entries[label] = m
		out = m.Clone()

		return true, nil
	})

	return out, err
}

// Touch 把最后修改时间设为 t，供运维脚本与测试使用.
func (s *Store) Touch(ctx context.Context, label string, t time.Time) error {
	return s.index.update(ctx, func(entries map[string]Metadata) (bool, error) {
		m, ok := entries[label]
		if !ok {
			return false, fmt.Errorf("blob %s: %w", label, ErrNotFound)
		}

		m = m.Clone()
		m[KeyLastModified] = t.UTC().Format(TimeLayout)
		entries[label] = m

		return true, nil
	})
}

// ListLabels 返回已排序的 label 列表.
func (s *Store) ListLabels(ctx context.Context) ([]string, error) {
	var labels []string

	err := s.index.view(ctx, func(entries map[string]Metadata) error {
		labels = make([]string, 0, len(entries))
		for label := range entries {
			labels = append(labels, label)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.Sort(labels)

	return labels, nil
}

// Snapshot 一次性复制全部元数据，回收器据此判断年龄.
func (s *Store) Snapshot(ctx context.Context) (map[string]Metadata, error) {
	out := map[string]Metadata{}

	err := s.index.view(ctx, func(entries map[string]Metadata) error {
		for label, m := range entries {
			out[label] = m.Clone()
		}

		return nil
	})

	return out, err
}

// mergeUserKeys 把 src 中允许调用方设置的键写入 dst.
func mergeUserKeys(dst, src Metadata) {
	for k, v := range src {
		if strings.HasPrefix(k, "_") && k != KeyFormat {
			continue
		}

		dst[k] = v
	}
}
