package queue

import "github.com/ThreeDotsLabs/watermill/message"

// 以下为消费端按主题解析消息的快捷函数.

// ParseDatum 解析 ts.datum.created / updated / deleted.
func ParseDatum(msg *message.Message) (Message[DatumPayload], error) {
	return ParseWatermillMessage[DatumPayload](msg)
}

// ParseTagRenamed 解析 ts.tag.renamed / ts.tag.merged.
func ParseTagRenamed(msg *message.Message) (Message[TagRenamedPayload], error) {
	return ParseWatermillMessage[TagRenamedPayload](msg)
}

func ParseTagDeleted(msg *message.Message) (Message[TagDeletedPayload], error) {
	return ParseWatermillMessage[TagDeletedPayload](msg)
}

func ParseTagSwapped(msg *message.Message) (Message[TagSwappedPayload], error) {
	return ParseWatermillMessage[TagSwappedPayload](msg)
}

// ParseBlob 解析 ts.blob.stored / ts.blob.deleted.
func ParseBlob(msg *message.Message) (Message[BlobPayload], error) {
	return ParseWatermillMessage[BlobPayload](msg)
}

// ParseBlobCollected 解析 ts.blob.collected.
func ParseBlobCollected(msg *message.Message) (Message[BlobCollectedPayload], error) {
	return ParseWatermillMessage[BlobCollectedPayload](msg)
}
