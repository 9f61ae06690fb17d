// Package queue 定义领域事件的消息封装，供 Datum/Tag/Blob 变更通知下游使用.
//
// 概览
//   - 采用发布/订阅模型，写路径只负责发布，消费者自行订阅
//   - 统一的消息封装：Message[Payload] = Header + Payload
//   - 主题常量见 topics.go，负载结构体见 payloads.go
//   - 默认 JSON 编解码（bytedance/sonic），跨语言易解析
//
// 消息信封（Envelope）JSON 结构
//
//	{
//	  "header": {
//	    "event_id": "01J8Z3K2Q7W8X9Y0ZABCDEF123",
//	    "topic": "ts.datum.created",
//	    "trace_id": "optional-trace-id",
//	    "producer": "tagstore",
//	    "occurred_at": "2025-01-02T03:04:05.123456Z",
//	    "version": "v1"
//	  },
//	  "payload": { ... 取决于具体主题 ... }
//	}
//
// Go 端：发布/订阅示例
//
//	payload := queue.DatumPayload{ID: 7, URI: "http://host/api/v1/ofs/<label>", Tags: []string{"a"}}
//	msg, _ := queue.NewWatermillMessage(queue.TopicDatumCreated, payload, queue.WithProducer("tagstore"))
//	_ = client.Publish(ctx, queue.TopicDatumCreated, msg)
//
//	ch, _ := client.Subscribe(ctx, queue.TopicDatumCreated)
//	for m := range ch {
//	    env, _ := queue.ParseWatermillMessage[queue.DatumPayload](m)
//	    // 使用 env.Header / env.Payload ...
//	    m.Ack()
//	}
//
// 注意事项
//  1. occurred_at 为 UTC，RFC3339 格式
//  2. event_id 为单调递增的 ULID，可用于消费端幂等与排序
//  3. Header.topic 与消息中间件的 Subject/Topic 重复，意在离线可追踪
package queue

import (
	crand "crypto/rand"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/bytedance/sonic"
	"github.com/oklog/ulid"
)

const (
	PayloadVersionV1 string = "v1"
)

var (
	entropyMu   sync.Mutex
	ulidEntropy = ulid.Monotonic(crand.Reader, 0)
)

// NewEventID 生成单调递增的事件 ID.
func NewEventID(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(t), ulidEntropy).String()
}

// NewEventHeader 便捷创建事件头.
func NewEventHeader(topic string, opts ...func(*EventHeader)) EventHeader {
	now := time.Now().UTC()
	hdr := EventHeader{
		EventID:    NewEventID(now),
		Topic:      topic,
		OccurredAt: now,
		Version:    PayloadVersionV1,
	}

	for _, opt := range opts {
		opt(&hdr)
	}

	return hdr
}

// WithTraceID 设置 TraceID.
func WithTraceID(id string) func(*EventHeader) { return func(h *EventHeader) { h.TraceID = id } }

// WithProducer 设置 Producer.
func WithProducer(p string) func(*EventHeader) { return func(h *EventHeader) { h.Producer = p } }

// Encode 将消息封装为 JSON 字节切片.
func Encode[T any](msg Message[T]) ([]byte, error) { return sonic.Marshal(msg) }

// Decode 从 JSON 字节解码为消息.
func Decode[T any](b []byte) (Message[T], error) {
	var m Message[T]

	err := sonic.Unmarshal(b, &m)

	return m, err
}

// NewWatermillMessage 构造一个 watermill 消息，消息 ID 即事件 ID.
func NewWatermillMessage[T any](topic string, payload T, opts ...func(*EventHeader)) (*message.Message, error) {
	header := NewEventHeader(topic, opts...)
	env := Message[T]{Header: header, Payload: payload}

	data, err := Encode(env)
	if err != nil {
		return nil, err
	}

	msg := message.NewMessage(header.EventID, data)
	msg.Metadata.Set("topic", topic)

	if header.TraceID != "" {
		msg.Metadata.Set("trace_id", header.TraceID)
	}

	if header.Producer != "" {
		msg.Metadata.Set("producer", header.Producer)
	}

	msg.Metadata.Set("occurred_at", header.OccurredAt.Format(time.RFC3339Nano))

	if header.Version != "" {
		msg.Metadata.Set("version", header.Version)
	}

	return msg, nil
}

// ParseWatermillMessage 解出泛型负载.
func ParseWatermillMessage[T any](msg *message.Message) (Message[T], error) {
	return Decode[T](msg.Payload)
}
