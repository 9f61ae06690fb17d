// Package queue 定义消息主题常量，供发布/订阅使用.
package queue

// 主题命名规范：ts.<域>.<动作>，尽量稳定且向后兼容.
// 域：datum(数据记录)、tag(标签)、blob(本地字节存储)

const (
	// 数据记录领域.
	TopicDatumCreated = "ts.datum.created" // 新建记录并提交事务后
	TopicDatumUpdated = "ts.datum.updated" // 记录字段或标签集合被修改
	TopicDatumDeleted = "ts.datum.deleted" // 记录被删除（blob 已尽力删除）

	// 标签领域.
	TopicTagRenamed = "ts.tag.renamed" // 标签改名
	TopicTagMerged  = "ts.tag.merged"  // 标签并入已存在的同名标签
	TopicTagDeleted = "ts.tag.deleted" // 未被引用的标签被删除
	TopicTagSwapped = "ts.tag.swapped" // 按条件批量替换标签

	// Blob 领域.
	TopicBlobStored    = "ts.blob.stored"    // 上传或覆盖
	TopicBlobDeleted   = "ts.blob.deleted"   // 显式删除
	TopicBlobCollected = "ts.blob.collected" // 回收器完成一轮清理
)

// 主题分组，用于批量订阅.
var (
	DatumTopics = []string{TopicDatumCreated, TopicDatumUpdated, TopicDatumDeleted}
	TagTopics   = []string{TopicTagRenamed, TopicTagMerged, TopicTagDeleted, TopicTagSwapped}
	BlobTopics  = []string{TopicBlobStored, TopicBlobDeleted, TopicBlobCollected}
)
