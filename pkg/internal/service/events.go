package service

import (
	"context"

	"go.opentelemetry.io/otel/trace"

	"github.com/yeisme/tagstore/pkg/configs"
	mqc "github.com/yeisme/tagstore/pkg/internal/storage/mq"
	nlog "github.com/yeisme/tagstore/pkg/log"
	"github.com/yeisme/tagstore/pkg/queue"
)

// Producer 事件头中的生产者名.
const Producer = "tagstore"

// eventEnabled 按配置判断主题是否需要发布.
func eventEnabled(topic string) bool {
	ev := configs.GetConfig().Events
	if !ev.Enabled {
		return false
	}

	switch topic {
	case queue.TopicDatumCreated:
		return ev.Datum.Created
	case queue.TopicDatumUpdated:
		return ev.Datum.Updated
	case queue.TopicDatumDeleted:
		return ev.Datum.Deleted
	case queue.TopicTagRenamed:
		return ev.Tag.Renamed
	case queue.TopicTagMerged:
		return ev.Tag.Merged
	case queue.TopicTagDeleted:
		return ev.Tag.Deleted
	case queue.TopicTagSwapped:
		return ev.Tag.Swapped
	case queue.TopicBlobStored:
		return ev.Blob.Stored
	case queue.TopicBlobDeleted:
		return ev.Blob.Deleted
	case queue.TopicBlobCollected:
		return ev.Blob.Collected
	default:
		return false
	}
}

// publish 在事务提交之后调用. 发布失败只记录日志，不影响已经完成的写操作.
func publish[T any](ctx context.Context, client *mqc.Client, topic string, payload T) {
	if client == nil || !eventEnabled(topic) {
		return
	}

	opts := []func(*queue.EventHeader){queue.WithProducer(Producer)}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		opts = append(opts, queue.WithTraceID(sc.TraceID().String()))
	}

	msg, err := queue.NewWatermillMessage(topic, payload, opts...)
	if err == nil {
		err = client.Publish(ctx, topic, msg)
	}

	if err != nil {
		nlog.Logger().Warn().Err(err).Str("topic", topic).Msg("publish event failed")
	}
}
