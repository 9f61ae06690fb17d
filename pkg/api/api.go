// Package api 组装对外的 HTTP 接口：全局中间件与 /api/v1 路由.
package api

import (
	"github.com/gin-gonic/gin"

	"github.com/yeisme/tagstore/pkg/configs"
	"github.com/yeisme/tagstore/pkg/internal/router"
	"github.com/yeisme/tagstore/pkg/internal/storage"
	"github.com/yeisme/tagstore/pkg/middleware"
	"github.com/yeisme/tagstore/pkg/scheduler"
)

// BasePath 接口前缀.
const BasePath = "/api/v1"

// NewEngine 创建 gin 引擎并注册全部路由. sched 可以为 nil，此时调度器接口返回 503.
func NewEngine(cfg *configs.AppConfig, mgr *storage.Manager, sched *scheduler.Scheduler) *gin.Engine {
	e := gin.New()
	e.Use(middleware.Default(cfg)...)

	RegisterGroup(e, mgr, sched)

	return e
}

// RegisterGroup 在 e 上注册 /api/v1 路由组.
func RegisterGroup(e *gin.Engine, mgr *storage.Manager, sched *scheduler.Scheduler) *gin.RouterGroup {
	g := e.Group(BasePath, middleware.Inject(mgr, sched))
	router.Register(g)

	return g
}
