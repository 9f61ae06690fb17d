package handle

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/tagstore/pkg/configs"
	ctxPkg "github.com/yeisme/tagstore/pkg/context"
	"github.com/yeisme/tagstore/pkg/internal/service"
	"github.com/yeisme/tagstore/pkg/internal/types"
	"github.com/yeisme/tagstore/pkg/log"
)

// HeaderArchiveMaxSize 响应体字节数的上界.
const HeaderArchiveMaxSize = "X-Archive-Max-Size"

// Archive 把一组记录的内容打包为 zip 流式返回.
//
// 取不到内容的条目被跳过，所以实际长度可能小于 X-Archive-Max-Size.
// 只有开启 archive.declare_content_length 时才把上界写入 Content-Length.
//
//	@Summary	打包下载
//	@Tags		archive
//	@Accept		json
//	@Produce	application/zip
//	@Param		items	body	types.ArchiveRequest	true	"记录 ID 与 zip 内路径"
//	@Success	200
//	@Failure	400	{object}	map[string]string
//	@Router		/api/v1/archive [post]
func Archive(c *gin.Context) {
	var req types.ArchiveRequest
	if !bindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	svc := service.NewArchiveService(ctx)

	plan, err := svc.Plan(ctx, req.Items)
	if err != nil {
		fail(c, err)
		return
	}

	size := strconv.FormatInt(plan.MaxSize, 10)

	c.Header(HeaderArchiveMaxSize, size)
	c.Header("Content-Type", "application/zip")
	c.Header("Content-Disposition", `attachment; filename="archive.zip"`)

	if configs.GetConfig().Archive.DeclareContentLength {
		c.Header("Content-Length", size)
	}

	c.Status(http.StatusOK)

	l := ctxPkg.WithTraceContext(ctx, *log.Logger())

	var written int64

	for chunk, err := range svc.StreamPlan(ctx, plan) {
		if err != nil {
			l.Error().Err(err).Int64("written", written).Msg("archive stream aborted")
			_ = c.Error(err)

			return
		}

		n, err := c.Writer.Write(chunk)
		written += int64(n)

		if err != nil {
			l.Debug().Err(err).Int64("written", written).Msg("archive client went away")
			return
		}
	}

	c.Writer.Flush()
}
