// Package metrics 定义 tagstore 的 Prometheus 指标，并在调试端口上暴露 /metrics 与 pprof.
//
// Example:
//
//	if err := metrics.InitMetrics(cfg.Metrics); err != nil {
//		return err
//	}
//
//	metrics.DataWrites.WithLabelValues("create", "conflict").Inc()
package metrics

import (
	"net/http"
	_ "net/http/pprof" // 注册到 http.DefaultServeMux
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yeisme/tagstore/pkg/configs"
)

const namespace = "tagstore"

// HTTP 层指标.
var (
	RequestCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by method and route.",
	}, []string{"method", "endpoint"})

	RequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by method and route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "endpoint"})

	ActiveConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "in_flight_requests",
		Help:      "Requests currently being served.",
	})

	// Throttled 被限流或熔断拒绝的请求，reason 为 rate_limit 或 circuit_open.
	Throttled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "throttled_total",
		Help:      "Requests rejected before reaching a handler.",
	}, []string{"reason"})
)

// 领域指标.
var (
	// DataWrites outcome 为 ok、conflict、not_found 或 error.
	DataWrites = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "data_writes_total",
		Help:      "Datum write operations by outcome.",
	}, []string{"op", "outcome"})

	TagMerges = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tag_merges_total",
		Help:      "Tag renames that merged into an existing tag.",
	})

	BlobsCollected = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "blobs_collected_total",
		Help:      "Unreferenced blobs removed by the collector.",
	})

	ArchiveBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "archive_bytes_total",
		Help:      "Bytes streamed in zip archives.",
	})

	ArchiveItemsSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "archive_items_skipped_total",
		Help:      "Archive items skipped because their content could not be fetched.",
	}, []string{"reason"})
)

var (
	registry = prometheus.NewRegistry()
	initOnce sync.Once
)

// InitMetrics 注册全部指标，只生效一次. 未启用时指标照常计数但不导出.
func InitMetrics(cfg configs.MetricsConfig) error {
	if !cfg.Enabled {
		return nil
	}

	initOnce.Do(func() {
		// go_* 与 process_* 来自默认注册表，gorm 插件同样注册在那里
		if !cfg.RuntimeMetrics {
			prometheus.Unregister(collectors.NewGoCollector())
			prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		}

		reg := prometheus.WrapRegistererWith(prometheus.Labels(cfg.ConstLabels), registry)
		reg.MustRegister(
			RequestCounter, RequestDuration, ActiveConnections, Throttled,
			DataWrites, TagMerges, BlobsCollected, ArchiveBytes, ArchiveItemsSkipped,
		)
	})

	return nil
}

// StartMetricsServer 在 debugEngine 上注册 /metrics 与可选的 pprof，由调用方监听.
func StartMetricsServer(cfg configs.MetricsConfig, debugEngine *gin.Engine) error {
	if !cfg.Enabled {
		return nil
	}

	gatherers := prometheus.Gatherers{registry, prometheus.DefaultGatherer}
	debugEngine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherers, promhttp.HandlerOpts{})))

	if cfg.Pprof {
		debugEngine.GET("/debug/pprof/*any", gin.WrapH(http.DefaultServeMux))
	}

	return nil
}
