package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/yeisme/tagstore/pkg/context"
	"github.com/yeisme/tagstore/pkg/internal/storage"
	"github.com/yeisme/tagstore/pkg/scheduler"
)

// Inject 把存储管理器与调度器放进请求 context. sched 可以为 nil.
func Inject(mgr *storage.Manager, sched *scheduler.Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := context.WithStorageManager(c.Request.Context(), mgr)
		if sched != nil {
			ctx = context.WithScheduler(ctx, sched)
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
