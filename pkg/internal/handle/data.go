package handle

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/tagstore/pkg/internal/service"
	"github.com/yeisme/tagstore/pkg/internal/types"
	"github.com/yeisme/tagstore/pkg/rule"
)

// bindPage 解析分页与 q 参数.
func bindPage(c *gin.Context) (types.PageRequest, bool) {
	var req types.PageRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return req, false
	}

	if err := rule.ValidateStruct(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": rule.Errors(err)})
		return req, false
	}

	return req, true
}

// QueryData 按谓词分页查询记录.
//
//	@Summary	查询记录
//	@Tags		data
//	@Produce	json
//	@Param		q					query		string	false	"JSON 谓词"
//	@Param		page				query		int		false	"页码，从 1 开始"
//	@Param		results_per_page	query		int		false	"每页条数"
//	@Success	200					{object}	types.Page[types.Datum]
//	@Failure	400					{object}	map[string]string
//	@Router		/api/v1/data [get]
func QueryData(c *gin.Context) {
	req, ok := bindPage(c)
	if !ok {
		return
	}

	page, err := service.NewDataService(c.Request.Context()).Query(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, page)
}

// GetDatum 返回单条记录.
//
//	@Summary	获取记录
//	@Tags		data
//	@Produce	json
//	@Param		id	path		int	true	"记录 ID"
//	@Success	200	{object}	types.Datum
//	@Failure	404	{object}	map[string]string
//	@Router		/api/v1/data/{id} [get]
func GetDatum(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	d, err := service.NewDataService(c.Request.Context()).Get(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, d)
}

// CreateDatum 新建记录.
//
//	@Summary	新建记录
//	@Tags		data
//	@Accept		json
//	@Produce	json
//	@Param		datum	body		types.CreateDatumRequest	true	"uri、fname 与标签"
//	@Success	201		{object}	types.Datum
//	@Failure	400		{object}	map[string]string
//	@Failure	409		{object}	map[string]string	"Already present"
//	@Router		/api/v1/data [post]
func CreateDatum(c *gin.Context) {
	var req types.CreateDatumRequest
	if !bindJSON(c, &req) {
		return
	}

	d, err := service.NewDataService(c.Request.Context()).Create(c.Request.Context(), &req)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, d)
}

// EditDatum 部分更新记录，PUT 与 PATCH 语义相同.
//
//	@Summary	修改记录
//	@Tags		data
//	@Accept		json
//	@Produce	json
//	@Param		id		path		int						true	"记录 ID"
//	@Param		datum	body		types.EditDatumRequest	true	"需要修改的字段"
//	@Success	200		{object}	types.Datum
//	@Failure	404		{object}	map[string]string
//	@Failure	409		{object}	map[string]string	"Already present"
//	@Router		/api/v1/data/{id} [put]
func EditDatum(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	var req types.EditDatumRequest
	if !bindJSON(c, &req) {
		return
	}

	d, err := service.NewDataService(c.Request.Context()).Edit(c.Request.Context(), id, &req)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, d)
}

// DeleteDatum 删除记录，本地 blob 一并尽力删除.
//
//	@Summary	删除记录
//	@Tags		data
//	@Param		id	path	int	true	"记录 ID"
//	@Success	204
//	@Failure	404	{object}	map[string]string
//	@Router		/api/v1/data/{id} [delete]
func DeleteDatum(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	if err := service.NewDataService(c.Request.Context()).Delete(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
