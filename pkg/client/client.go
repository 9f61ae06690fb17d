// Package client 是 tagstore HTTP 接口的 Go 客户端.
//
// Example:
//
//	c := client.New("http://127.0.0.1:8080/api/v1")
//
//	d, err := c.Upload(ctx, f, "report.pdf", []string{"year:2024", "pdf"})
//	if errors.Is(err, client.ErrAlreadyPresent) {
//		// d 是已存在的记录
//	}
//
//	res, err := c.Query(ctx, client.TagFilter("pdf"))
//	for d, err := range res.All() {
//		...
//	}
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/yeisme/tagstore/pkg/internal/types"
)

type (
	// Datum 服务端返回的记录.
	Datum = types.Datum
	// Tag 服务端返回的标签.
	Tag = types.Tag
	// Filter 查询条件树.
	Filter = types.Filter
)

var (
	// ErrAlreadyPresent 相同 URI 的记录已存在.
	ErrAlreadyPresent = errors.New("already present")
	// ErrNotFound 记录或 blob 不存在.
	ErrNotFound = errors.New("not found")
)

// APIError 非预期的响应状态.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tagstore: unexpected status %d: %s", e.Status, e.Body)
}

// Client tagstore 客户端，可并发使用.
type Client struct {
	endpoint string
	http     *http.Client
	ofs      OFS
}

// Option 客户端选项.
type Option func(*Client)

// WithHTTPClient 使用自定义 http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithOFS 使用自定义 blob 存储，默认上传到服务端的 /ofs.
func WithOFS(ofs OFS) Option {
	return func(c *Client) { c.ofs = ofs }
}

// New 创建客户端，endpoint 为接口前缀，例如 http://host:8080/api/v1.
func New(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		http:     &http.Client{Timeout: 60 * time.Second},
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.ofs == nil {
		c.ofs = &remoteOFS{c: c}
	}

	return c
}

// NewFilter 构造叶子条件.
func NewFilter(name, op string, val any) Filter {
	return Filter{Name: name, Op: op, Val: val}
}

// TagFilter 匹配带有 tag 标签的记录.
func TagFilter(tag string) Filter {
	return types.TagFilter(tag)
}

func (c *Client) url(segments ...string) string {
	u, err := url.JoinPath(c.endpoint, segments...)
	if err != nil {
		return c.endpoint + "/" + strings.Join(segments, "/")
	}

	return u
}

func tagRefs(tags []string) []types.TagRef {
	refs := make([]types.TagRef, 0, len(tags))
	for _, t := range tags {
		refs = append(refs, types.ByString(t))
	}

	return refs
}

// Create 以 uri 创建记录. URI 已存在时返回已有记录与 ErrAlreadyPresent.
func (c *Client) Create(ctx context.Context, uri, fname string, tags []string) (*Datum, error) {
	req := types.CreateDatumRequest{URI: uri, Tags: tagRefs(tags)}
	if fname != "" {
		req.FName = &fname
	}

	var d Datum

	status, err := c.doJSON(ctx, http.MethodPost, c.url("data"), req, &d, http.StatusCreated, http.StatusConflict)
	if err != nil {
		return nil, err
	}

	if status == http.StatusConflict {
		existing, err := c.lookupURI(ctx, uri)
		if err != nil {
			return nil, fmt.Errorf("%w: %s (lookup: %w)", ErrAlreadyPresent, uri, err)
		}

		return existing, fmt.Errorf("%w: %s", ErrAlreadyPresent, uri)
	}

	return &d, nil
}

// Upload 先把 r 存入 blob 存储，再以得到的 URI 创建记录.
// 记录创建失败时删除刚上传的 blob.
func (c *Client) Upload(ctx context.Context, r io.Reader, fname string, tags []string) (*Datum, error) {
	uri, err := c.ofs.Put(ctx, r, fname)
	if err != nil {
		return nil, fmt.Errorf("store blob: %w", err)
	}

	d, err := c.Create(ctx, uri, fname, tags)
	if err != nil && !errors.Is(err, ErrAlreadyPresent) {
		_ = c.ofs.Delete(ctx, uri)
	}

	return d, err
}

// Get 按 id 获取记录.
func (c *Client) Get(ctx context.Context, id uint) (*Datum, error) {
	var d Datum

	if _, err := c.doJSON(ctx, http.MethodGet, c.url("data", idString(id)), nil, &d, http.StatusOK); err != nil {
		return nil, err
	}

	return &d, nil
}

// Edit 替换记录的 uri 与标签集合.
func (c *Client) Edit(ctx context.Context, id uint, uri string, tags []string) (*Datum, error) {
	// fname 不出现在请求体中，服务端保持原值
	req := struct {
		URI  string         `json:"uri"`
		Tags []types.TagRef `json:"tags"`
	}{URI: uri, Tags: tagRefs(tags)}

	var d Datum

	status, err := c.doJSON(ctx, http.MethodPut, c.url("data", idString(id)), req, &d, http.StatusOK, http.StatusConflict)
	if err != nil {
		return nil, err
	}

	if status == http.StatusConflict {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyPresent, uri)
	}

	return &d, nil
}

// Delete 删除记录. 服务端会一并删除它自己的 blob；使用自定义 OFS 时再交给 OFS 删除.
func (c *Client) Delete(ctx context.Context, id uint) error {
	d, err := c.Get(ctx, id)
	if err != nil {
		return err
	}

	if _, err := c.doJSON(ctx, http.MethodDelete, c.url("data", idString(id)), nil, nil, http.StatusNoContent); err != nil {
		return err
	}

	if _, remote := c.ofs.(*remoteOFS); remote {
		return nil
	}

	if err := c.ofs.Delete(ctx, d.URI); err != nil {
		return fmt.Errorf("delete blob: %w", err)
	}

	return nil
}

func (c *Client) lookupURI(ctx context.Context, uri string) (*Datum, error) {
	res, err := c.Query(ctx, NewFilter("uri", types.OpEq, uri))
	if err != nil {
		return nil, err
	}

	for d, err := range res.All() {
		if err != nil {
			return nil, err
		}

		return &d, nil
	}

	return nil, ErrNotFound
}

func idString(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

// doJSON 发送 JSON 请求. 响应状态不在 accept 中时返回错误；out 为 nil 时丢弃响应体.
func (c *Client) doJSON(ctx context.Context, method, u string, in, out any, accept ...int) (int, error) {
	var body io.Reader

	if in != nil {
		b, err := sonic.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}

		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return 0, err
	}

	req.Header.Set("Accept", "application/json")

	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.do(req, out, accept...)
}

func (c *Client) do(req *http.Request, out any, accept ...int) (int, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, accept...); err != nil {
		return resp.StatusCode, err
	}

	if out == nil || resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusConflict {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}

	if err := sonic.ConfigDefault.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}

	return resp.StatusCode, nil
}

func checkStatus(resp *http.Response, accept ...int) error {
	for _, s := range accept {
		if resp.StatusCode == s {
			return nil
		}
	}

	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, resp.Request.URL.Path)
	}

	return &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
}
