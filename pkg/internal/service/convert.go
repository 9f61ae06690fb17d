package service

import (
	"github.com/yeisme/tagstore/pkg/internal/model"
	"github.com/yeisme/tagstore/pkg/internal/types"
)

func toTag(t model.Tag) types.Tag {
	return types.Tag{ID: t.ID, Tag: t.Tag}
}

// toDatum 转换为响应结构，标签按 tag 升序.
func toDatum(d *model.Datum) types.Datum {
	d.SortTags()

	tags := make([]types.Tag, 0, len(d.Tags))
	for _, t := range d.Tags {
		tags = append(tags, toTag(t))
	}

	return types.Datum{
		ID:        d.ID,
		URI:       d.URI,
		FName:     d.FName,
		Tags:      tags,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}
