package handle

import (
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/tagstore/pkg/configs"
	"github.com/yeisme/tagstore/pkg/internal/service"
	"github.com/yeisme/tagstore/pkg/internal/storage/blob"
	"github.com/yeisme/tagstore/pkg/internal/types"
)

const (
	// FormBlob multipart 中内容字段名.
	FormBlob = "blob"
	// FormFName multipart 中文件名字段名.
	FormFName = "fname"
	// HeaderAsAttachment 值为 yes 时以附件形式下载.
	HeaderAsAttachment = "X-As-Attachment"
)

// publicBase 生成 blob uri 使用的根地址.
func publicBase(c *gin.Context) string {
	if base := configs.GetConfig().Server.PublicURL; base != "" {
		return base
	}

	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}

	if p := c.GetHeader("X-Forwarded-Proto"); p != "" {
		scheme = p
	}

	return scheme + "://" + c.Request.Host
}

// partContentType 客户端没有声明具体类型时返回空串，交给扩展名推断.
func partContentType(h *multipart.FileHeader) string {
	ct := h.Header.Get("Content-Type")
	if ct == "" || ct == service.DefaultContentType {
		return ""
	}

	return ct
}

// limitBody 限制上传体积.
func limitBody(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, configs.GetConfig().Server.MaxUploadBytes())
}

func uploadError(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "upload too large"})
		return
	}

	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// UploadBlob 保存上传的内容并返回其 uri.
//
//	@Summary	上传 blob
//	@Tags		ofs
//	@Accept		multipart/form-data
//	@Produce	json
//	@Param		blob	formData	file	true	"内容"
//	@Param		fname	formData	string	false	"文件名，缺省使用上传文件名"
//	@Success	200		{object}	types.UploadResponse
//	@Failure	400		{object}	map[string]string
//	@Router		/api/v1/ofs [post]
func UploadBlob(c *gin.Context) {
	limitBody(c)

	fh, err := c.FormFile(FormBlob)
	if err != nil {
		uploadError(c, err)
		return
	}

	fname := c.PostForm(FormFName)
	if fname == "" {
		fname = fh.Filename
	}

	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer f.Close()

	svc := service.NewBlobService(c.Request.Context())

	res, err := svc.Upload(c.Request.Context(), f, fname, partContentType(fh), publicBase(c))
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

// blobHeaders 写出 Content-Disposition、Content-Type 与 Content-Length.
func blobHeaders(c *gin.Context, meta blob.Metadata) (int64, string) {
	disposition := "inline"
	if strings.EqualFold(c.GetHeader(HeaderAsAttachment), "yes") {
		disposition = "attachment"
	}

	if fname := meta.FName(); fname != "" {
		disposition = mime.FormatMediaType(disposition, map[string]string{"filename": fname})
	}

	c.Header("Content-Disposition", disposition)

	ct := service.ContentType(meta)
	c.Header("Content-Type", ct)

	n, ok := meta.ContentLength()
	if !ok {
		n = -1
	} else {
		c.Header("Content-Length", strconv.FormatInt(n, 10))
	}

	return n, ct
}

// labelParam 校验 :label，非法时写出 404.
func labelParam(c *gin.Context) (string, bool) {
	label := c.Param("label")
	if !blob.ValidLabel(label) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return "", false
	}

	return label, true
}

// HeadBlob 只返回内容相关的响应头.
func HeadBlob(c *gin.Context) {
	label, ok := labelParam(c)
	if !ok {
		return
	}

	meta, err := service.NewBlobService(c.Request.Context()).Stat(c.Request.Context(), label)
	if err != nil {
		fail(c, err)
		return
	}

	blobHeaders(c, meta)
	c.Status(http.StatusOK)
}

// GetBlob 下载内容.
//
//	@Summary	下载 blob
//	@Tags		ofs
//	@Param		label			path	string	true	"blob label"
//	@Param		X-As-Attachment	header	string	false	"yes 时以附件下载"
//	@Success	200
//	@Failure	404	{object}	map[string]string
//	@Router		/api/v1/ofs/{label} [get]
func GetBlob(c *gin.Context) {
	label, ok := labelParam(c)
	if !ok {
		return
	}

	rc, meta, err := service.NewBlobService(c.Request.Context()).Open(c.Request.Context(), label)
	if err != nil {
		fail(c, err)
		return
	}
	defer rc.Close()

	n, ct := blobHeaders(c, meta)
	c.DataFromReader(http.StatusOK, n, ct, rc, nil)
}

// UpdateBlob 可选修改文件名 (fname) 与替换内容 (blob).
func UpdateBlob(c *gin.Context) {
	label, ok := labelParam(c)
	if !ok {
		return
	}

	limitBody(c)

	var (
		fname *string
		body  io.Reader
		ct    string
	)

	if v, ok := c.GetPostForm(FormFName); ok {
		fname = &v
	}

	fh, err := c.FormFile(FormBlob)

	switch {
	case err == nil:
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		defer f.Close()

		body, ct = f, partContentType(fh)
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
	default:
		uploadError(c, err)
		return
	}

	meta, err := service.NewBlobService(c.Request.Context()).Update(c.Request.Context(), label, fname, body, ct)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, types.UploadResponse{URI: blob.URI(publicBase(c), label), FName: meta.FName()})
}

// DeleteBlob 尽力删除，总是返回 204.
func DeleteBlob(c *gin.Context) {
	if label := c.Param("label"); blob.ValidLabel(label) {
		if err := service.NewBlobService(c.Request.Context()).Delete(c.Request.Context(), label); err != nil {
			_ = c.Error(err)
		}
	}

	c.Status(http.StatusNoContent)
}

// CollectBlobs 立即执行一轮未引用 blob 回收.
//
//	@Summary	回收未引用的 blob
//	@Tags		ofs
//	@Produce	json
//	@Success	200	{object}	types.CollectResponse
//	@Router		/api/v1/ofs/gc [post]
func CollectBlobs(c *gin.Context) {
	grace := configs.GetConfig().GC.GetGracePeriod()

	res, err := service.NewCollector(c.Request.Context()).Collect(c.Request.Context(), grace)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}
