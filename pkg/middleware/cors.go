package middleware

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yeisme/tagstore/pkg/configs"
)

// CORSMiddleware CORS中间件. 允许任意来源，并暴露下载相关的响应头.
func CORSMiddleware(cfg configs.ServerConfig) gin.HandlerFunc {
	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	config.AllowHeaders = append(config.AllowHeaders, "X-As-Attachment")
	config.ExposeHeaders = []string{"Content-Disposition", "Content-Length", "X-Archive-Max-Size"}

	if cfg.Debug {
		config.AllowFiles = true
	}

	return cors.New(config)
}
