package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/bytedance/sonic"

	"github.com/yeisme/tagstore/pkg/internal/types"
)

// HeaderArchiveMaxSize 服务端声明的 zip 字节数上界.
// 默认不发送 Content-Length：跳过的条目会让实际长度小于上界.
const HeaderArchiveMaxSize = "X-Archive-Max-Size"

// ArchiveItem 打包条目，Path 为 nil 时服务端跳过该条目.
type ArchiveItem = types.ArchiveItem

// Archive 流式 zip 响应. 调用方负责关闭 Body.
type Archive struct {
	// MaxSize 响应体长度上界，未声明时为 -1
	MaxSize int64
	Body    io.ReadCloser
}

// Archive 请求把 items 打包为 zip.
func (c *Client) Archive(ctx context.Context, items []ArchiveItem) (*Archive, error) {
	b, err := sonic.Marshal(types.ArchiveRequest{Items: items})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("archive"), bytes.NewReader(b))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/zip")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}

	if err := checkStatus(resp, http.StatusOK); err != nil {
		resp.Body.Close()
		return nil, err
	}

	out := &Archive{MaxSize: -1, Body: resp.Body}
	if n, err := strconv.ParseInt(resp.Header.Get(HeaderArchiveMaxSize), 10, 64); err == nil {
		out.MaxSize = n
	}

	return out, nil
}
