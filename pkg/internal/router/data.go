package router

import (
	"github.com/gin-gonic/gin"

	"github.com/yeisme/tagstore/pkg/internal/handle"
)

// RegisterDataRoutes 注册记录相关路由.
func RegisterDataRoutes(g *gin.RouterGroup) {
	data := g.Group("/data")
	{
		data.GET("", handle.QueryData)
		data.POST("", handle.CreateDatum)
		data.GET("/:id", handle.GetDatum)
		data.PUT("/:id", handle.EditDatum)
		data.PATCH("/:id", handle.EditDatum)
		data.DELETE("/:id", handle.DeleteDatum)
	}
}

// RegisterTagRoutes 注册标签相关路由.
func RegisterTagRoutes(g *gin.RouterGroup) {
	tags := g.Group("/tags")
	{
		tags.GET("", handle.ListTags)
		tags.POST("/swap", handle.SwapTags)
		tags.GET("/:id", handle.GetTag)
		tags.PUT("/:id", handle.RenameTag)
		tags.PATCH("/:id", handle.RenameTag)
		tags.DELETE("/:id", handle.DeleteTag)
	}
}
