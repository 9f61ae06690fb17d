package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio"

	"github.com/yeisme/tagstore/pkg/configs"
)

// pairtreeRoot 本地后端的 pairtree 根目录名.
const pairtreeRoot = "pairtree_root"

// LocalBackend 把 bucket 存为 pairtree 对象目录，每个 label 一个文件.
//
//	<root>/pairtree_root/<pairtree(bucket)>/obj/<label>
type LocalBackend struct {
	dir string
}

// NewLocalBackend 创建本地后端.
func NewLocalBackend(_ context.Context, cfg *configs.BlobConfig) (Backend, error) {
	dir := filepath.Join(cfg.Root, pairtreeRoot, PairtreePath(cfg.Bucket), "obj")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create bucket dir: %w", err)
	}

	return &LocalBackend{dir: dir}, nil
}

// PairtreePath 把标识符切成两字符一段的目录路径，例如 "abcde" -> "ab/cd/e".
// 标识符中的 '/'、':'、'.' 按 pairtree 规则替换.
func PairtreePath(id string) string {
	cleaned := strings.NewReplacer("/", "=", ":", "+", ".", ",").Replace(id)

	var parts []string
	for len(cleaned) > 2 {
		parts = append(parts, cleaned[:2])
		cleaned = cleaned[2:]
	}

	if cleaned != "" {
		parts = append(parts, cleaned)
	}

	return filepath.Join(parts...)
}

func (b *LocalBackend) path(key string) string {
	return filepath.Join(b.dir, key)
}

func (b *LocalBackend) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	pf, err := renameio.TempFile(b.dir, b.path(key))
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer pf.Cleanup()

	if _, err := io.Copy(pf, r); err != nil {
		return fmt.Errorf("write blob: %w", err)
	}

	return pf.CloseAtomicallyReplace()
}

func (b *LocalBackend) Get(_ context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(b.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrBytesMissing
	}

	return f, err
}

func (b *LocalBackend) Delete(_ context.Context, key string) error {
	err := os.Remove(b.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrBytesMissing
	}

	return err
}

func (b *LocalBackend) Exists(_ context.Context, key string) (bool, error) {
	_, err := os.Stat(b.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}

	return err == nil, err
}

func (b *LocalBackend) Close() error {
	return nil
}
