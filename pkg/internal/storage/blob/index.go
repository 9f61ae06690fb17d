package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/bytedance/sonic"
	"github.com/google/renameio"
)

// indexAPI 整数保持为 int64，键有序便于 diff.
var indexAPI = sonic.Config{UseInt64: true, SortMapKeys: true}.Froze()

const indexVersion = 1

type indexFile struct {
	Version int                 `json:"version"`
	Bucket  string              `json:"bucket"`
	Labels  map[string]Metadata `json:"labels"`
}

// fileIndex 是 label -> 元数据的持久化索引.
// entries 只能在持有 lock 时访问.
type fileIndex struct {
	path    string
	bucket  string
	lock    *ReentrantLock
	entries map[string]Metadata
}

func newFileIndex(path, bucket string, lock *ReentrantLock) *fileIndex {
	return &fileIndex{
		path:    path,
		bucket:  bucket,
		lock:    lock,
		entries: map[string]Metadata{},
	}
}

// revert 丢弃内存状态，从磁盘重新加载.
func (ix *fileIndex) revert(ctx context.Context) error {
	return ix.lock.With(ctx, func(context.Context) error {
		data, err := os.ReadFile(ix.path)
		if errors.Is(err, fs.ErrNotExist) {
			ix.entries = map[string]Metadata{}
			return nil
		}

		if err != nil {
			return fmt.Errorf("read index: %w", err)
		}

		var f indexFile
		if err := indexAPI.Unmarshal(data, &f); err != nil {
			return fmt.Errorf("decode index %s: %w", ix.path, err)
		}

		if f.Labels == nil {
			f.Labels = map[string]Metadata{}
		}

		ix.entries = f.Labels

		return nil
	})
}

// sync 原子地把内存状态写回磁盘.
func (ix *fileIndex) sync(ctx context.Context) error {
	return ix.lock.With(ctx, func(context.Context) error {
		data, err := indexAPI.Marshal(indexFile{
			Version: indexVersion,
			Bucket:  ix.bucket,
			Labels:  ix.entries,
		})
		if err != nil {
			return fmt.Errorf("encode index: %w", err)
		}

		if err := renameio.WriteFile(ix.path, data, 0o644); err != nil {
			return fmt.Errorf("write index: %w", err)
		}

		return nil
	})
}

// view 在锁内重新加载后只读访问.
func (ix *fileIndex) view(ctx context.Context, fn func(entries map[string]Metadata) error) error {
	return ix.lock.With(ctx, func(ctx context.Context) error {
		if err := ix.revert(ctx); err != nil {
			return err
		}

		return fn(ix.entries)
	})
}

// update 在锁内执行 revert -> fn -> sync. fn 返回 false 时不写盘.
func (ix *fileIndex) update(ctx context.Context, fn func(entries map[string]Metadata) (bool, error)) error {
	return ix.lock.With(ctx, func(ctx context.Context) error {
		if err := ix.revert(ctx); err != nil {
			return err
		}

		dirty, err := fn(ix.entries)
		if err != nil {
			return err
		}

		if !dirty {
			return nil
		}

		return ix.sync(ctx)
	})
}
