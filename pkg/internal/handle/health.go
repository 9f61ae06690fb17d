package handle

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	ctxPkg "github.com/yeisme/tagstore/pkg/context"
)

const timeout = 2 * time.Second

func unhealthy(c *gin.Context, component, msg string) {
	c.JSON(http.StatusServiceUnavailable, gin.H{"component": component, "status": "unhealthy", "error": msg})
}

// Health 存活检查，ping 数据库.
func Health(c *gin.Context) {
	dbc := ctxPkg.GetDBClient(c.Request.Context())
	if dbc == nil || dbc.DB == nil {
		unhealthy(c, "db", "db client not initialized")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	defer cancel()

	if err := dbc.Ping(ctx); err != nil {
		unhealthy(c, "db", err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HealthBlob Blob 门面健康检查，读取一次索引.
func HealthBlob(c *gin.Context) {
	st := ctxPkg.GetBlobStore(c.Request.Context())
	if st == nil {
		unhealthy(c, "blob", "blob store not initialized")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	defer cancel()

	labels, err := st.ListLabels(ctx)
	if err != nil {
		unhealthy(c, "blob", err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"component": "blob", "status": "ok", "bucket": st.Bucket(), "labels": len(labels)})
}

// HealthKV KV 缓存健康检查.
func HealthKV(c *gin.Context) {
	if kvc := ctxPkg.GetKVClient(c.Request.Context()); kvc == nil {
		unhealthy(c, "kv", "kv client not initialized")
		return
	}

	c.JSON(http.StatusOK, gin.H{"component": "kv", "status": "ok"})
}

// HealthMQ 消息队列健康检查. 关闭领域事件时 MQ 不会初始化.
func HealthMQ(c *gin.Context) {
	if mqc := ctxPkg.GetMQClient(c.Request.Context()); mqc == nil {
		unhealthy(c, "mq", "mq client not initialized")
		return
	}

	c.JSON(http.StatusOK, gin.H{"component": "mq", "status": "ok"})
}
