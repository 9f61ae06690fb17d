// Package storagetest 为测试构造内存 sqlite 与临时目录 blob 存储组成的 storage.Manager.
package storagetest

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"

	"github.com/yeisme/tagstore/pkg/configs"
	"github.com/yeisme/tagstore/pkg/internal/storage"
	"github.com/yeisme/tagstore/pkg/internal/storage/blob"
	"github.com/yeisme/tagstore/pkg/internal/storage/db"
)

// Config 返回测试用配置：静默 SQL 日志、不发布事件、blob 与临时文件放在 t 的临时目录.
func Config(t testing.TB) configs.AppConfig {
	t.Helper()

	cfg := configs.Defaults()
	cfg.DB.LogLevel = "silent"
	cfg.Events.Enabled = false
	cfg.Metrics.Enabled = false
	cfg.Blob.Root = t.TempDir()
	cfg.Archive.ScratchDir = t.TempDir()

	return cfg
}

// New 按 cfg 打开存储并设为全局配置. 测试结束时关闭.
func New(t testing.TB, cfg configs.AppConfig) *storage.Manager {
	t.Helper()

	configs.SetConfig(cfg)

	ctx := context.Background()

	dbc, err := db.Open(ctx, sqlite.Open("file::memory:"), &cfg.DB)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	if err := dbc.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	st, err := blob.Open(ctx, &cfg.Blob)
	if err != nil {
		t.Fatalf("open blob store: %v", err)
	}

	mgr := &storage.Manager{DB: dbc, Blob: st}
	t.Cleanup(func() { _ = mgr.Close(context.Background()) })

	return mgr
}
