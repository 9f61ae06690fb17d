// Package middleware 提供 gin 中间件：日志、追踪、指标、跨域、限流、熔断，
// 以及把存储资源与调度器注入请求 context.
package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/yeisme/tagstore/pkg/configs"
)

// Default 返回全局中间件，顺序即执行顺序.
func Default(cfg *configs.AppConfig) []gin.HandlerFunc {
	return []gin.HandlerFunc{
		gin.Recovery(),
		GinLoggerMiddleware(),
		CORSMiddleware(cfg.Server),
		TracingMiddleware(),
		PrometheusMiddleware(),
		RateLimitMiddleware(cfg.RateLimit),
		CircuitBreakerMiddleware(cfg.CircuitBreaker),
	}
}
