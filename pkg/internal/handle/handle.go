// Package handle 提供 HTTP 请求处理器，业务逻辑委托给 service 层.
package handle

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	ctxPkg "github.com/yeisme/tagstore/pkg/context"
	"github.com/yeisme/tagstore/pkg/internal/service"
	"github.com/yeisme/tagstore/pkg/log"
	"github.com/yeisme/tagstore/pkg/rule"
)

// 409 响应体沿用 {"description": ...} 形式，客户端据此区分冲突类型.
const (
	DescAlreadyPresent = "Already present"
	DescTagReferenced  = "Tag is referenced"
)

// fail 把 service 层错误映射为 HTTP 状态码.
func fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"description": DescAlreadyPresent})
	case errors.Is(err, service.ErrReferenced):
		c.JSON(http.StatusConflict, gin.H{"description": DescTagReferenced})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		l := ctxPkg.WithTraceContext(c.Request.Context(), *log.Logger())
		l.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")

		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

// bindJSON 解析请求体并按 rule 标签校验，失败时已写出 400.
func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}

	if err := rule.ValidateStruct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": rule.Errors(err)})
		return false
	}

	return true
}

// idParam 解析路径中的 :id，非法时写出 404.
func idParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return 0, false
	}

	return uint(id), true
}
