// Package storage 聚合 tagstore 使用的全部存储资源: 关系库、Blob 门面、KV 与消息队列.
//
// Example:
//
// 初始化
//
//	ctx := context.Background()
//	mgr, err := storage.Init(ctx)
//	if err != nil {
//	    // 处理错误
//	}
//	defer mgr.Close(ctx)
//
// 获取存储客户端
//
//	st := mgr.GetBlobStore()
//	dbClient := mgr.GetDBClient()
package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/yeisme/tagstore/pkg/configs"
	"github.com/yeisme/tagstore/pkg/internal/storage/blob"
	dbc "github.com/yeisme/tagstore/pkg/internal/storage/db"
	kvc "github.com/yeisme/tagstore/pkg/internal/storage/kv"
	mqc "github.com/yeisme/tagstore/pkg/internal/storage/mq"
	// 注册 s3 blob 后端
	_ "github.com/yeisme/tagstore/pkg/internal/storage/s3"
	nlog "github.com/yeisme/tagstore/pkg/log"
)

// Manager 聚合所有存储资源.
// MQ 可以为 nil，此时不发布领域事件.
type Manager struct {
	DB   *dbc.Client
	Blob *blob.Store
	KV   *kvc.Client
	MQ   *mqc.Client
}

var (
	mgr     *Manager
	mgrErr  error
	mgrOnce sync.Once
)

// Init 初始化默认存储，使用全局配置. 重复调用只返回已初始化实例.
func Init(ctx context.Context) (*Manager, error) {
	mgrOnce.Do(func() {
		mgr, mgrErr = New(ctx, configs.GetConfig())
	})

	return mgr, mgrErr
}

// New 按配置创建全部存储资源并执行数据库迁移. 任一资源失败时关闭已创建的资源.
func New(ctx context.Context, cfg *configs.AppConfig) (_ *Manager, err error) {
	m := &Manager{}

	defer func() {
		if err != nil {
			_ = m.Close(ctx)
		}
	}()

	if m.DB, err = dbc.New(ctx, &cfg.DB); err != nil {
		return nil, fmt.Errorf("init db: %w", err)
	}

	if err = m.DB.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate db: %w", err)
	}

	if m.Blob, err = blob.Open(ctx, &cfg.Blob); err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}

	if m.KV, err = kvc.NewKVClient(ctx, &cfg.KV); err != nil {
		return nil, fmt.Errorf("init kv: %w", err)
	}

	if cfg.Events.Enabled {
		if m.MQ, err = mqc.New(ctx, &cfg.MQ); err != nil {
			return nil, fmt.Errorf("init mq: %w", err)
		}
	}

	nlog.Logger().Info().Msg("storage manager initialized")

	return m, nil
}

// Close 释放全部资源.
func (m *Manager) Close(ctx context.Context) error {
	var errs []error

	if m.MQ != nil {
		errs = append(errs, m.MQ.Close())
	}

	if m.KV != nil {
		errs = append(errs, m.KV.Close())
	}

	if m.Blob != nil {
		errs = append(errs, m.Blob.Close(ctx))
	}

	if m.DB != nil {
		errs = append(errs, m.DB.Close())
	}

	return errors.Join(errs...)
}

// GetBlobStore 获取 Blob 门面.
func (m *Manager) GetBlobStore() *blob.Store {
	return m.Blob
}

// GetDBClient 获取 DB 客户端.
func (m *Manager) GetDBClient() *dbc.Client {
	return m.DB
}

// GetKVClient 获取 KV 客户端.
func (m *Manager) GetKVClient() *kvc.Client {
	return m.KV
}

// GetMQClient 获取 MQ 客户端.
func (m *Manager) GetMQClient() *mqc.Client {
	return m.MQ
}
