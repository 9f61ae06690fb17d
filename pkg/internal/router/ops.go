package router

import (
	"github.com/gin-gonic/gin"

	"github.com/yeisme/tagstore/pkg/internal/handle"
)

// RegisterOpsRoutes 运维接口：各依赖的健康检查与定时任务管理.
func RegisterOpsRoutes(g *gin.RouterGroup) {
	g.GET("/health", handle.Health)

	health := g.Group("/health")
	{
		health.GET("/db", handle.Health)
		health.GET("/blob", handle.HealthBlob)
		health.GET("/kv", handle.HealthKV)
		health.GET("/mq", handle.HealthMQ)
	}

	jobs := g.Group("/scheduler/jobs")
	{
		jobs.GET("", handle.SchedulerJobs)
		jobs.POST("/stop", handle.SchedulerStopJobs)
		jobs.POST("/run/:name", handle.SchedulerRunJob)
		jobs.DELETE("/:id", handle.SchedulerRemoveJob)
	}
}
