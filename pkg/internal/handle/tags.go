package handle

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/tagstore/pkg/internal/service"
	"github.com/yeisme/tagstore/pkg/internal/types"
)

// ListTags 分页列出标签，q 的字段为 tag.
//
//	@Summary	标签列表
//	@Tags		tags
//	@Produce	json
//	@Param		q					query		string	false	"JSON 谓词"
//	@Param		page				query		int		false	"页码"
//	@Param		results_per_page	query		int		false	"每页条数"
//	@Success	200					{object}	types.Page[types.Tag]
//	@Router		/api/v1/tags [get]
func ListTags(c *gin.Context) {
	req, ok := bindPage(c)
	if !ok {
		return
	}

	page, err := service.NewTagService(c.Request.Context()).List(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, page)
}

// GetTag 返回单个标签.
func GetTag(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	t, err := service.NewTagService(c.Request.Context()).Get(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, t)
}

// RenameTag 改名；目标名已存在时合并，返回保留下来的标签.
//
//	@Summary	标签改名或合并
//	@Tags		tags
//	@Accept		json
//	@Produce	json
//	@Param		id	path		int						true	"标签 ID"
//	@Param		tag	body		types.RenameTagRequest	true	"新名称"
//	@Success	200	{object}	types.Tag
//	@Failure	404	{object}	map[string]string
//	@Router		/api/v1/tags/{id} [put]
func RenameTag(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	var req types.RenameTagRequest
	if !bindJSON(c, &req) {
		return
	}

	t, err := service.NewTagService(c.Request.Context()).RenameOrMerge(c.Request.Context(), id, req.Tag)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, t)
}

// DeleteTag 删除未被引用的标签.
//
//	@Summary	删除标签
//	@Tags		tags
//	@Param		id	path	int	true	"标签 ID"
//	@Success	204
//	@Failure	404	{object}	map[string]string
//	@Failure	409	{object}	map[string]string	"Tag is referenced"
//	@Router		/api/v1/tags/{id} [delete]
func DeleteTag(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	if err := service.NewTagService(c.Request.Context()).DeleteTag(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// SwapTags 在满足 q 的记录上把 old 替换为 new.
func SwapTags(c *gin.Context) {
	var req types.SwapTagsRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := service.NewTagService(c.Request.Context()).Swap(c.Request.Context(), req.Old, req.New, req.Q)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}
