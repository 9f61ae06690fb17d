package client

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/yeisme/tagstore/pkg/internal/types"
)

// OFS 记录所指向字节的存储位置.
type OFS interface {
	// Put 保存 r 并返回可以写入记录的 URI.
	Put(ctx context.Context, r io.Reader, fname string) (string, error)
	// Delete 删除 uri 指向的 blob. uri 不属于该存储或已不存在时不报错.
	Delete(ctx context.Context, uri string) error
}

// remoteOFS 通过服务端 /ofs 接口存取 blob.
type remoteOFS struct {
	c *Client
}

func (o *remoteOFS) Put(ctx context.Context, r io.Reader, fname string) (string, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		part, err := mw.CreateFormFile("blob", fname)
		if err == nil {
			_, err = io.Copy(part, r)
		}

		if err == nil {
			err = mw.Close()
		}

		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.c.url("ofs"), pr)
	if err != nil {
		pr.Close()
		return "", err
	}

	req.Header.Set("Content-Type", mw.FormDataContentType())

	var res types.UploadResponse

	if _, err := o.c.do(req, &res, http.StatusOK); err != nil {
		// 让写入协程退出
		pr.CloseWithError(err)
		return "", err
	}

	if res.URI == "" {
		return "", fmt.Errorf("upload %q: empty uri in response", fname)
	}

	return res.URI, nil
}

func (o *remoteOFS) Delete(ctx context.Context, uri string) error {
	_, err := o.c.doJSON(ctx, http.MethodDelete, uri, nil, nil, http.StatusNoContent)
	return err
}
