package router

import (
	"github.com/gin-gonic/gin"

	"github.com/yeisme/tagstore/pkg/internal/handle"
)

// RegisterOFSRoutes 注册 blob 路由. 内容下载走 raw，其余 JSON 响应走 api.
func RegisterOFSRoutes(raw, api *gin.RouterGroup) {
	api.POST("/ofs", handle.UploadBlob)
	api.POST("/ofs/gc", handle.CollectBlobs)
	api.PUT("/ofs/:label", handle.UpdateBlob)

	blobs := raw.Group("/ofs")
	{
		blobs.HEAD("/:label", handle.HeadBlob)
		blobs.GET("/:label", handle.GetBlob)
		blobs.DELETE("/:label", handle.DeleteBlob)
	}
}

// RegisterArchiveRoute 注册打包下载路由.
func RegisterArchiveRoute(g *gin.RouterGroup) {
	g.POST("/archive", handle.Archive)
}
