// Package context 在 context.Context 上携带请求需要的共享资源：存储管理器与调度器.
// service 构造函数从这里取依赖，handler 不直接持有它们.
package context

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/yeisme/tagstore/pkg/internal/storage"
	"github.com/yeisme/tagstore/pkg/internal/storage/blob"
	dbc "github.com/yeisme/tagstore/pkg/internal/storage/db"
	kvc "github.com/yeisme/tagstore/pkg/internal/storage/kv"
	mqc "github.com/yeisme/tagstore/pkg/internal/storage/mq"
	"github.com/yeisme/tagstore/pkg/scheduler"
)

type (
	managerKey   struct{}
	schedulerKey struct{}
)

func WithStorageManager(ctx context.Context, mgr *storage.Manager) context.Context {
	return context.WithValue(ctx, managerKey{}, mgr)
}

// GetManager 未注入时返回 nil.
func GetManager(ctx context.Context) *storage.Manager {
	mgr, _ := ctx.Value(managerKey{}).(*storage.Manager)
	return mgr
}

func WithScheduler(ctx context.Context, s *scheduler.Scheduler) context.Context {
	return context.WithValue(ctx, schedulerKey{}, s)
}

// GetScheduler 服务未启用调度器时返回 nil.
func GetScheduler(ctx context.Context) *scheduler.Scheduler {
	s, _ := ctx.Value(schedulerKey{}).(*scheduler.Scheduler)
	return s
}

func GetBlobStore(ctx context.Context) *blob.Store {
	if mgr := GetManager(ctx); mgr != nil {
		return mgr.GetBlobStore()
	}

	return nil
}

func GetDBClient(ctx context.Context) *dbc.Client {
	if mgr := GetManager(ctx); mgr != nil {
		return mgr.GetDBClient()
	}

	return nil
}

// GetMQClient 事件总线未启用时返回 nil，发布方据此跳过.
func GetMQClient(ctx context.Context) *mqc.Client {
	if mgr := GetManager(ctx); mgr != nil {
		return mgr.GetMQClient()
	}

	return nil
}

func GetKVClient(ctx context.Context) *kvc.Client {
	if mgr := GetManager(ctx); mgr != nil {
		return mgr.GetKVClient()
	}

	return nil
}

// WithTraceContext 给 logger 加上当前 span 的 trace_id 与 span_id.
func WithTraceContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return logger
	}

	return logger.With().
		Str("trace_id", sc.TraceID().String()).
		Str("span_id", sc.SpanID().String()).
		Logger()
}
