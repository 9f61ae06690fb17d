// Package router 管理路由配置，把 /api/v1 下的路径绑定到 handle 包中的处理器.
package router

import (
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
)

// Register 在 g（通常为 /api/v1）下注册全部路由.
// JSON 接口启用 gzip；ofs 与 archive 的 Content-Length 必须与实际字节一致，不压缩.
func Register(g *gin.RouterGroup) {
	api := g.Group("", gzip.Gzip(gzip.DefaultCompression))

	RegisterOpsRoutes(api)
	RegisterDataRoutes(api)
	RegisterTagRoutes(api)

	RegisterOFSRoutes(g, api)
	RegisterArchiveRoute(g)
}
