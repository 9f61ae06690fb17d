package types

// Filter 查询条件树.
// 叶子为 {name, op, val}；分组为 {or: [...]} 或 {and: [...]}.
// op 为 any/not_any 时 val 是作用于关联集合的子条件.
type Filter struct {
	Name string   `json:"name,omitempty"`
	Op   string   `json:"op,omitempty"`
	Val  any      `json:"val,omitempty"`
	Or   []Filter `json:"or,omitempty"`
	And  []Filter `json:"and,omitempty"`
}

// 支持的操作符.
const (
	OpEq        = "eq"
	OpNeq       = "neq"
	OpLt        = "lt"
	OpLe        = "le"
	OpGt        = "gt"
	OpGe        = "ge"
	OpLike      = "like"
	OpNotLike   = "not_like"
	OpILike     = "ilike"
	OpNotILike  = "not_ilike"
	OpIn        = "in"
	OpNotIn     = "not_in"
	OpIsNull    = "is_null"
	OpIsNotNull = "is_not_null"
	OpAny       = "any"
	OpNotAny    = "not_any"
)

// OrderBy 排序项，direction 为 asc 或 desc.
type OrderBy struct {
	Field     string `json:"field"`
	Direction string `json:"direction"`
}

// Query GET /data?q=... 中 q 的 JSON 结构.
// 顶层 filters 默认以 AND 连接，disjunction 为 true 时以 OR 连接.
type Query struct {
	Filters     []Filter  `json:"filters"`
	OrderBy     []OrderBy `json:"order_by"`
	Disjunction bool      `json:"disjunction"`
}

// TagFilter 匹配带有某个标签的记录.
func TagFilter(tag string) Filter {
	return Filter{Name: "tags", Op: OpAny, Val: Filter{Name: "tag", Op: OpEq, Val: tag}}
}

const (
	DefaultResultsPerPage = 10
	MaxResultsPerPage     = 100
)

// PageRequest 分页与查询参数.
type PageRequest struct {
	Q              string `form:"q"`
	Page           int    `form:"page"             rule:"min=0"`
	ResultsPerPage int    `form:"results_per_page" rule:"min=0,max=100"`
}

// Normalize 填充默认值.
func (p *PageRequest) Normalize() {
	if p.Page < 1 {
		p.Page = 1
	}

	if p.ResultsPerPage < 1 {
		p.ResultsPerPage = DefaultResultsPerPage
	}

	p.ResultsPerPage = min(p.ResultsPerPage, MaxResultsPerPage)
}

// Page 分页响应.
type Page[T any] struct {
	Objects    []T   `json:"objects"`
	NumResults int64 `json:"num_results"`
	Page       int   `json:"page"`
	TotalPages int   `json:"total_pages"`
}
