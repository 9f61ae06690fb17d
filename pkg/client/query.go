package client

import (
	"context"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"strconv"

	"github.com/bytedance/sonic"

	"github.com/yeisme/tagstore/pkg/internal/types"
)

// Result 分页查询结果. 第一页在 Query 中取回，其余页在遍历时按需获取.
type Result struct {
	c     *Client
	ctx   context.Context
	q     string
	first types.Page[Datum]
}

// Query 查询同时满足全部 filters 的记录.
func (c *Client) Query(ctx context.Context, filters ...Filter) (*Result, error) {
	if filters == nil {
		filters = []Filter{}
	}

	q, err := sonic.MarshalString(types.Query{Filters: filters})
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}

	r := &Result{c: c, ctx: ctx, q: q}

	page, err := r.fetch(1)
	if err != nil {
		return nil, err
	}

	r.first = *page

	return r, nil
}

// Len 返回匹配的记录总数.
func (r *Result) Len() int64 {
	return r.first.NumResults
}

// All 按页遍历全部记录. 取页失败时产出一次错误后结束.
func (r *Result) All() iter.Seq2[Datum, error] {
	return func(yield func(Datum, error) bool) {
		page := &r.first

		for {
			for _, d := range page.Objects {
				if !yield(d, nil) {
					return
				}
			}

			if page.Page >= page.TotalPages {
				return
			}

			next, err := r.fetch(page.Page + 1)
			if err != nil {
				yield(Datum{}, err)
				return
			}

			page = next
		}
	}
}

func (r *Result) fetch(n int) (*types.Page[Datum], error) {
	v := url.Values{}
	v.Set("q", r.q)
	v.Set("page", strconv.Itoa(n))

	var page types.Page[Datum]

	if _, err := r.c.doJSON(r.ctx, http.MethodGet, r.c.url("data")+"?"+v.Encode(), nil, &page, http.StatusOK); err != nil {
		return nil, fmt.Errorf("fetch page %d: %w", n, err)
	}

	return &page, nil
}
