package model

// MaxTagLength tag 列长度.
const MaxTagLength = 128

// Tag 唯一的字符串标签，与 Datum 多对多.
type Tag struct {
	ID  uint   `gorm:"primaryKey"                    json:"id"`
	Tag string `gorm:"size:128;not null;uniqueIndex" json:"tag"`
}

// DataTag data_tags 关联表的行，合并/交换标签时直接操作关联行.
type DataTag struct {
	DatumID uint `gorm:"primaryKey" json:"datum_id"`
	TagID   uint `gorm:"primaryKey;index" json:"tag_id"`
}

// TableName 关联表名.
func (DataTag) TableName() string {
	return "data_tags"
}
