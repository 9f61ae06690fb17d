package queue

import "time"

// EventHeader 定义所有事件的通用头部元数据.
type EventHeader struct {
	// EventID 单调递增的 ULID.
	EventID string `json:"event_id"`
	// Topic 冗余记录消息主题，便于离线处理或转储后定位来源主题.
	Topic string `json:"topic"`
	// TraceID 分布式追踪/关联 ID，可来自中间件或业务生成.
	TraceID string `json:"trace_id,omitempty"`
	// Producer 生产者服务名或节点标识.
	Producer string `json:"producer,omitempty"`
	// OccurredAt 事件发生时间（UTC，RFC3339）.
	OccurredAt time.Time `json:"occurred_at"`
	// Version 事件负载版本，便于向后兼容演进.
	Version string `json:"version,omitempty"`
}

// Message 是统一的消息封装，Header + Payload.
type Message[T any] struct {
	Header  EventHeader `json:"header"`
	Payload T           `json:"payload"`
}

// -------------------------- 数据记录领域 --------------------------

// DatumPayload 记录的当前快照.
type DatumPayload struct {
	ID    uint     `json:"id"`
	URI   string   `json:"uri"`
	FName *string  `json:"fname,omitempty"`
	Tags  []string `json:"tags"`
	// BlobLabel 记录指向本地 blob 时的 label.
	BlobLabel string `json:"blob_label,omitempty"`
}

// -------------------------- 标签领域 --------------------------

// TagRenamedPayload 改名或合并.
type TagRenamedPayload struct {
	// FromID 被改名（或被合并掉）的标签.
	FromID  uint   `json:"from_id"`
	FromTag string `json:"from_tag"`
	// ToID 合并时为已存在标签的 ID，改名时等于 FromID.
	ToID  uint   `json:"to_id"`
	ToTag string `json:"to_tag"`
	// Repointed 合并时被改指向的关联数.
	Repointed int64 `json:"repointed,omitempty"`
}

// TagDeletedPayload 标签删除.
type TagDeletedPayload struct {
	ID  uint   `json:"id"`
	Tag string `json:"tag"`
}

// TagSwappedPayload 批量替换.
type TagSwappedPayload struct {
	Old      string `json:"old"`
	New      string `json:"new"`
	Added    int64  `json:"added"`
	Removed  int64  `json:"removed"`
	TwoPhase bool   `json:"two_phase"`
}

// -------------------------- Blob 领域 --------------------------

// BlobPayload 单个 blob 的事件.
type BlobPayload struct {
	Label         string `json:"label"`
	FName         string `json:"fname,omitempty"`
	ContentLength int64  `json:"content_length,omitempty"`
	Checksum      string `json:"checksum,omitempty"`
}

// BlobCollectedPayload 一轮回收的统计.
type BlobCollectedPayload struct {
	Deleted    []string      `json:"deleted"`
	Retained   int           `json:"retained"`
	Referenced int           `json:"referenced"`
	Grace      time.Duration `json:"grace_ns"`
}
