// Package model 定义持久化模型.
package model

import (
	"cmp"
	"slices"
	"time"
)

const (
	// MaxURILength uri 列长度.
	MaxURILength = 2048
	// MaxFNameLength 文件名列长度.
	MaxFNameLength = 1024
)

// Datum 一条带标签的内容记录，uri 全局唯一.
type Datum struct {
	ID  uint   `gorm:"primaryKey"                json:"id"`
	URI string `gorm:"size:2048;not null;uniqueIndex" json:"uri"`
	// FName 可选的显示文件名
	FName *string `gorm:"column:fname;size:1024" json:"fname"`
	Tags  []Tag   `gorm:"many2many:data_tags;" json:"tags"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName 与历史库表名保持一致.
func (Datum) TableName() string {
	return "data"
}

// SortTags 按 tag 字符串升序排序，字符串相同（理论上不会出现）再按 id.
func (d *Datum) SortTags() {
	slices.SortFunc(d.Tags, func(a, b Tag) int {
		return cmp.Or(cmp.Compare(a.Tag, b.Tag), cmp.Compare(a.ID, b.ID))
	})
}

// TagStrings 返回排序后的 tag 字符串.
func (d *Datum) TagStrings() []string {
	out := make([]string, 0, len(d.Tags))
	for _, t := range d.Tags {
		out = append(out, t.Tag)
	}

	slices.Sort(out)

	return out
}
