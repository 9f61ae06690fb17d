package types

// TagRefKind 标签引用的形态.
type TagRefKind int

const (
	// TagRefInvalid 既没有 id 也没有 tag.
	TagRefInvalid TagRefKind = iota
	// TagRefByString 只有 tag: 有同名标签则挂载，否则新建.
	TagRefByString
	// TagRefByID 只有 id: 挂载这个已存在的标签.
	TagRefByID
	// TagRefRename id 与 tag 同时给出: 先改名（或合并）再挂载.
	TagRefRename
)

// TagRef 请求中的标签引用，{"tag": "x"} 或 {"id": 3}.
type TagRef struct {
	ID  uint   `json:"id,omitempty"`
	Tag string `json:"tag,omitempty"`
}

// ByString 构造按字符串引用的 TagRef.
func ByString(tag string) TagRef { return TagRef{Tag: tag} }

// ByID 构造按 ID 引用的 TagRef.
func ByID(id uint) TagRef { return TagRef{ID: id} }

// Kind 返回引用形态.
func (r TagRef) Kind() TagRefKind {
	switch {
	case r.ID == 0 && r.Tag == "":
		return TagRefInvalid
	case r.ID == 0:
		return TagRefByString
	case r.Tag == "":
		return TagRefByID
	default:
		return TagRefRename
	}
}

// Tag 对外的标签表示.
type Tag struct {
	ID  uint   `json:"id"`
	Tag string `json:"tag"`
}

// RenameTagRequest PUT/PATCH /tags/:id.
type RenameTagRequest struct {
	Tag string `json:"tag" rule:"tagname"`
}

// SwapTagsRequest POST /tags/swap.
// Q 为空时作用于全部记录.
type SwapTagsRequest struct {
	Old string `json:"old" rule:"tagname"`
	New string `json:"new" rule:"tagname"`
	Q   *Query `json:"q"`
}

// SwapTagsResponse 替换结果.
type SwapTagsResponse struct {
	Added    int64 `json:"added"`
	Removed  int64 `json:"removed"`
	TwoPhase bool  `json:"two_phase"`
}
