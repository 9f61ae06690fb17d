package service

import (
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"gorm.io/gorm"

	"github.com/yeisme/tagstore/pkg/internal/types"
)

// schema 可查询的表：字段白名单与多对多关系.
type schema struct {
	table   string
	columns map[string]string
	rels    map[string]relation
}

// relation 经由关联表 join 的多对多关系.
type relation struct {
	target    *schema
	joinTable string
	ownKey    string // 关联表中指向本表的列
	otherKey  string // 关联表中指向目标表的列
}

var (
	dataSchema = &schema{
		table: "data",
		columns: map[string]string{
			"id":         "id",
			"uri":        "uri",
			"fname":      "fname",
			"created_at": "created_at",
			"updated_at": "updated_at",
		},
	}
	tagSchema = &schema{
		table: "tags",
		columns: map[string]string{
			"id":  "id",
			"tag": "tag",
		},
	}
)

func init() {
	dataSchema.rels = map[string]relation{
		"tags": {target: tagSchema, joinTable: "data_tags", ownKey: "datum_id", otherKey: "tag_id"},
	}
	tagSchema.rels = map[string]relation{
		"data": {target: dataSchema, joinTable: "data_tags", ownKey: "tag_id", otherKey: "datum_id"},
	}
}

var comparisons = map[string]string{
	types.OpEq:      "=",
	types.OpNeq:     "<>",
	types.OpLt:      "<",
	types.OpLe:      "<=",
	types.OpGt:      ">",
	types.OpGe:      ">=",
	types.OpLike:    "LIKE",
	types.OpNotLike: "NOT LIKE",
}

// compiledQuery 编译后的 WHERE 与 ORDER BY.
type compiledQuery struct {
	cond  string
	args  []any
	order []string
}

// where 只附加过滤条件，供 Count 与 Pluck 使用.
func (c *compiledQuery) where(tx *gorm.DB) *gorm.DB {
	if c == nil || c.cond == "" {
		return tx
	}

	return tx.Where(c.cond, c.args...)
}

// ordered 附加过滤与排序，最后总是按主键排序保证分页稳定.
func (c *compiledQuery) ordered(tx *gorm.DB, sc *schema) *gorm.DB {
	tx = c.where(tx)
	if c != nil {
		for _, o := range c.order {
			tx = tx.Order(o)
		}
	}

	return tx.Order(sc.table + ".id ASC")
}

// parseQuery 解析 ?q= 中的 JSON，空串表示不过滤.
func parseQuery(raw string) (*types.Query, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var q types.Query
	if err := sonic.UnmarshalString(raw, &q); err != nil {
		return nil, invalidf("malformed q: %v", err)
	}

	return &q, nil
}

// compileQuery 把条件树编译为参数化 SQL，未知字段或操作符返回 ErrInvalid.
func compileQuery(sc *schema, q *types.Query) (*compiledQuery, error) {
	out := &compiledQuery{}
	if q == nil {
		return out, nil
	}

	c := &compiler{}

	parts := make([]string, 0, len(q.Filters))
	for _, f := range q.Filters {
		sql, args, err := c.filter(sc, sc.table, f)
		if err != nil {
			return nil, err
		}

		parts = append(parts, "("+sql+")")
		out.args = append(out.args, args...)
	}

	sep := " AND "
	if q.Disjunction {
		sep = " OR "
	}

	out.cond = strings.Join(parts, sep)

	for _, ob := range q.OrderBy {
		col, ok := sc.columns[ob.Field]
		if !ok {
			return nil, invalidf("cannot order by %q", ob.Field)
		}

		dir := strings.ToUpper(ob.Direction)
		switch dir {
		case "":
			dir = "ASC"
		case "ASC", "DESC":
		default:
			return nil, invalidf("bad direction %q", ob.Direction)
		}

		out.order = append(out.order, sc.table+"."+col+" "+dir)
	}

	return out, nil
}

// compiler 为嵌套子查询分配不重复的别名.
type compiler struct {
	n int
}

func (c *compiler) filter(sc *schema, alias string, f types.Filter) (string, []any, error) {
	if len(f.Or) > 0 || len(f.And) > 0 {
		return c.group(sc, alias, f)
	}

	if f.Name == "" {
		return "", nil, invalidf("filter needs a name or a group")
	}

	if rel, ok := sc.rels[f.Name]; ok {
		return c.related(rel, alias, f)
	}

	col, ok := sc.columns[f.Name]
	if !ok {
		return "", nil, invalidf("unknown field %q", f.Name)
	}

	return leaf(alias+"."+col, f)
}

func (c *compiler) group(sc *schema, alias string, f types.Filter) (string, []any, error) {
	var (
		clauses []string
		args    []any
	)

	for _, g := range []struct {
		items []types.Filter
		sep   string
	}{{f.Or, " OR "}, {f.And, " AND "}} {
		if len(g.items) == 0 {
			continue
		}

		parts := make([]string, 0, len(g.items))
		for _, sub := range g.items {
			sql, a, err := c.filter(sc, alias, sub)
			if err != nil {
				return "", nil, err
			}

			parts = append(parts, "("+sql+")")
			args = append(args, a...)
		}

		clauses = append(clauses, "("+strings.Join(parts, g.sep)+")")
	}

	return strings.Join(clauses, " AND "), args, nil
}

// related 编译 any / not_any 为 EXISTS 子查询，val 为空时匹配任意关联行.
func (c *compiler) related(rel relation, alias string, f types.Filter) (string, []any, error) {
	var neg bool

	switch f.Op {
	case types.OpAny:
	case types.OpNotAny:
		neg = true
	default:
		return "", nil, invalidf("relation %q only supports any/not_any", f.Name)
	}

	c.n++
	jt := fmt.Sprintf("dt%d", c.n)
	ta := fmt.Sprintf("%s%d", rel.target.table, c.n)

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT 1 FROM %s %s JOIN %s %s ON %s.id = %s.%s WHERE %s.%s = %s.id",
		rel.joinTable, jt, rel.target.table, ta, ta, jt, rel.otherKey, jt, rel.ownKey, alias)

	var args []any

	if f.Val != nil {
		sub, err := decodeFilter(f.Val)
		if err != nil {
			return "", nil, err
		}

		sql, a, err := c.filter(rel.target, ta, sub)
		if err != nil {
			return "", nil, err
		}

		sb.WriteString(" AND (" + sql + ")")

		args = a
	}

	if neg {
		return "NOT EXISTS (" + sb.String() + ")", args, nil
	}

	return "EXISTS (" + sb.String() + ")", args, nil
}

func leaf(col string, f types.Filter) (string, []any, error) {
	switch f.Op {
	case types.OpIsNull:
		return col + " IS NULL", nil, nil
	case types.OpIsNotNull:
		return col + " IS NOT NULL", nil, nil
	case types.OpIn, types.OpNotIn:
		vals, ok := f.Val.([]any)
		if !ok {
			return "", nil, invalidf("%s on %q needs a list", f.Op, f.Name)
		}

		if len(vals) == 0 {
			if f.Op == types.OpIn {
				return "1 = 0", nil, nil
			}

			return "1 = 1", nil, nil
		}

		if f.Op == types.OpIn {
			return col + " IN ?", []any{vals}, nil
		}

		return col + " NOT IN ?", []any{vals}, nil
	case types.OpILike:
		return "LOWER(" + col + ") LIKE LOWER(?)", []any{f.Val}, scalar(f)
	case types.OpNotILike:
		return "LOWER(" + col + ") NOT LIKE LOWER(?)", []any{f.Val}, scalar(f)
	}

	cmp, ok := comparisons[f.Op]
	if !ok {
		return "", nil, invalidf("unknown op %q", f.Op)
	}

	if f.Val == nil {
		switch f.Op {
		case types.OpEq:
			return col + " IS NULL", nil, nil
		case types.OpNeq:
			return col + " IS NOT NULL", nil, nil
		}
	}

	if err := scalar(f); err != nil {
		return "", nil, err
	}

	return col + " " + cmp + " ?", []any{f.Val}, nil
}

func scalar(f types.Filter) error {
	switch f.Val.(type) {
	case string, float64, int, int64, uint, bool:
		return nil
	default:
		return invalidf("%s on %q needs a scalar value", f.Op, f.Name)
	}
}

// decodeFilter 嵌套条件在 JSON 解码后是 map，重新解码为 Filter.
func decodeFilter(v any) (types.Filter, error) {
	switch t := v.(type) {
	case types.Filter:
		return t, nil
	case *types.Filter:
		return *t, nil
	}

	raw, err := sonic.Marshal(v)
	if err != nil {
		return types.Filter{}, invalidf("nested filter: %v", err)
	}

	var f types.Filter
	if err := sonic.Unmarshal(raw, &f); err != nil {
		return types.Filter{}, invalidf("nested filter: %v", err)
	}

	return f, nil
}

// pageOf 计算总页数.
func pageOf[T any](objects []T, total int64, req types.PageRequest) *types.Page[T] {
	pages := int((total + int64(req.ResultsPerPage) - 1) / int64(req.ResultsPerPage))

	return &types.Page[T]{
		Objects:    objects,
		NumResults: total,
		Page:       req.Page,
		TotalPages: pages,
	}
}
