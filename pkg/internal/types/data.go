package types

import (
	"bytes"
	"time"

	"github.com/bytedance/sonic"
)

// Datum 对外的记录表示，tags 按 tag 字符串升序（相同时按 id）.
type Datum struct {
	ID        uint      `json:"id"`
	URI       string    `json:"uri"`
	FName     *string   `json:"fname"`
	Tags      []Tag     `json:"tags"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateDatumRequest POST /data.
type CreateDatumRequest struct {
	URI   string   `json:"uri"   rule:"required,max=2048"`
	FName *string  `json:"fname" rule:"omitempty,max=1024"`
	Tags  []TagRef `json:"tags"`
}

// EditDatumRequest PUT/PATCH /data/:id，缺省字段保持不变.
// Tags 给出时整体替换关联集合.
type EditDatumRequest struct {
	URI   *string          `json:"uri"   rule:"omitempty,min=1,max=2048"`
	FName Nullable[string] `json:"fname"`
	Tags  *[]TagRef        `json:"tags"`
}

// Nullable 区分 JSON 中字段缺省与显式 null.
type Nullable[T any] struct {
	Set   bool
	Value *T
}

// NullableOf 构造已设置的值.
func NullableOf[T any](v T) Nullable[T] {
	return Nullable[T]{Set: true, Value: &v}
}

// Null 构造显式 null.
func Null[T any]() Nullable[T] {
	return Nullable[T]{Set: true}
}

func (n *Nullable[T]) UnmarshalJSON(b []byte) error {
	n.Set = true

	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		n.Value = nil
		return nil
	}

	var v T
	if err := sonic.Unmarshal(b, &v); err != nil {
		return err
	}

	n.Value = &v

	return nil
}

func (n Nullable[T]) MarshalJSON() ([]byte, error) {
	if n.Value == nil {
		return []byte("null"), nil
	}

	return sonic.Marshal(*n.Value)
}
