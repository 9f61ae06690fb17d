package service

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"gorm.io/gorm"

	"github.com/yeisme/tagstore/pkg/cache"
	"github.com/yeisme/tagstore/pkg/configs"
	ctxPkg "github.com/yeisme/tagstore/pkg/context"
	"github.com/yeisme/tagstore/pkg/internal/model"
	"github.com/yeisme/tagstore/pkg/internal/storage/blob"
	"github.com/yeisme/tagstore/pkg/internal/types"
	nlog "github.com/yeisme/tagstore/pkg/log"
	"github.com/yeisme/tagstore/pkg/metrics"
	"github.com/yeisme/tagstore/pkg/tracing"
)

// zip 结构的字节数，与 archive/zip 的写出方式一致.
const (
	// EOCDSize 中央目录结束记录.
	EOCDSize = 22
	// EntryOverhead 每个条目除两份文件名与内容外的固定开销:
	// 本地头 30、中央目录头 46、数据描述符 16，扩展时间戳字段 9 在两个头中各出现一次.
	EntryOverhead = 110

	zip64EntryExtra = 36 // 中央目录 zip64 extra 28 + 数据描述符多出的 8
	zip64Trailer    = 76 // zip64 结束记录 56 + 定位器 20
	uint16max       = 0xFFFF
	uint32max       = 0xFFFFFFFF
)

// ArchiveService 把一组记录打包为 zip 流.
type ArchiveService struct {
	db     *gorm.DB
	blobs  *blob.Store
	cache  *cache.Cache
	cfg    configs.ArchiveConfig
	client *http.Client
	log    zerolog.Logger
}

// NewArchiveService 从 context 获取依赖实例. 没有 KV 时不缓存 HEAD 结果.
func NewArchiveService(c context.Context) *ArchiveService {
	dbc := ctxPkg.GetDBClient(c)
	if dbc == nil || dbc.DB == nil {
		nlog.Logger().Fatal().Msg("storage clients not initialized")
	}

	s := &ArchiveService{
		db:     dbc.DB,
		blobs:  ctxPkg.GetBlobStore(c),
		cfg:    configs.GetConfig().Archive,
		client: http.DefaultClient,
		log:    nlog.Component("archive"),
	}

	if kvc := ctxPkg.GetKVClient(c); kvc != nil {
		s.cache = cache.NewCache(kvc)
	}

	return s
}

var (
	fetchBreaker     *gobreaker.CircuitBreaker
	fetchBreakerOnce sync.Once
)

// remoteBreaker 所有打包请求共享一个熔断器，远端持续失败时快速跳过条目.
func remoteBreaker() *gobreaker.CircuitBreaker {
	fetchBreakerOnce.Do(func() {
		cfg := configs.GetConfig().CircuitBreaker
		fetchBreaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "archive-fetch",
			MaxRequests: cfg.HalfOpenMax,
			Interval:    cfg.Interval,
			Timeout:     cfg.OpenFor,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return cfg.Tripped(counts.Requests, counts.TotalFailures)
			},
		})
	})

	return fetchBreaker
}

// archiveEntry 计划中的一个条目.
type archiveEntry struct {
	name     string
	uri      string
	label    string
	size     int64
	modified time.Time
}

// ArchivePlan 已解析长度的条目与 zip 大小上界.
type ArchivePlan struct {
	entries []archiveEntry
	// MaxSize 流的字节数不会超过它.
	MaxSize int64
}

// Len 纳入打包的条目数.
func (p *ArchivePlan) Len() int {
	return len(p.entries)
}

// Plan 加载记录并确定每个条目的长度. path 为空、记录不存在或长度未知的条目不纳入.
func (s *ArchiveService) Plan(ctx context.Context, items []types.ArchiveItem) (*ArchivePlan, error) {
	if limit := s.cfg.MaxItems; limit > 0 && len(items) > limit {
		return nil, invalidf("at most %d items per archive", limit)
	}

	ids := make([]uint, 0, len(items))
	for _, it := range items {
		if it.Path != nil {
			ids = append(ids, it.ID)
		}
	}

	byID := make(map[uint]model.Datum, len(ids))

	if len(ids) > 0 {
		var rows []model.Datum
		if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("load data: %w", err)
		}

		for _, d := range rows {
			byID[d.ID] = d
		}
	}

	plan := &ArchivePlan{entries: make([]archiveEntry, 0, len(ids))}

	for _, it := range items {
		if it.Path == nil {
			continue
		}

		name := strings.TrimLeft(*it.Path, "/")
		d, ok := byID[it.ID]

		if name == "" || strings.HasSuffix(name, "/") || !ok {
			metrics.ArchiveItemsSkipped.WithLabelValues("missing").Inc()
			continue
		}

		e := archiveEntry{name: name, uri: d.URI, modified: d.UpdatedAt}

		size, err := s.sizeOf(ctx, &e)
		if err != nil {
			s.log.Debug().Err(err).Str("uri", d.URI).Msg("size unknown, item excluded")
			metrics.ArchiveItemsSkipped.WithLabelValues("size_unknown").Inc()

			continue
		}

		e.size = size
		plan.entries = append(plan.entries, e)
	}

	plan.MaxSize = estimate(plan.entries)

	return plan, nil
}

// EstimateSize 返回 items 打包后的字节数上界.
func (s *ArchiveService) EstimateSize(ctx context.Context, items []types.ArchiveItem) (int64, error) {
	plan, err := s.Plan(ctx, items)
	if err != nil {
		return 0, err
	}

	return plan.MaxSize, nil
}

// estimate 22 + Σ(EntryOverhead + 2·len(name) + size)，必要时加上 zip64 的额外字节.
func estimate(entries []archiveEntry) int64 {
	var (
		total  int64 = EOCDSize
		offset int64
		zip64  = len(entries) >= uint16max
	)

	for _, e := range entries {
		n := int64(EntryOverhead+2*len(e.name)) + e.size
		if e.size >= uint32max || offset >= uint32max {
			n += zip64EntryExtra
			zip64 = true
		}

		offset += n
		total += n
	}

	if zip64 || offset >= uint32max {
		total += zip64Trailer
	}

	return total
}

// sizeOf 本地 blob 取索引中的长度，远程 http(s) 资源用 HEAD 探测.
func (s *ArchiveService) sizeOf(ctx context.Context, e *archiveEntry) (int64, error) {
	if label, ok := localLabel(e.uri); ok && s.blobs != nil {
		meta, err := s.blobs.GetMetadata(ctx, label)
		if err != nil {
			return 0, err
		}

		n, ok := meta.ContentLength()
		if !ok {
			return 0, fmt.Errorf("blob %s has no length", label)
		}

		e.label = label

		return n, nil
	}

	if !strings.HasPrefix(e.uri, "http://") && !strings.HasPrefix(e.uri, "https://") {
		return 0, fmt.Errorf("cannot fetch %q", e.uri)
	}

	probe := func() (int64, error) { return s.head(ctx, e.uri) }

	if s.cache == nil || s.cfg.HeadCacheTTL <= 0 {
		return probe()
	}

	return cache.GetOrSet(ctx, s.cache, cache.Key("archive:head", e.uri), probe, s.cfg.HeadCacheTTL)
}

func (s *ArchiveService) head(ctx context.Context, uri string) (int64, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.HeadTimeout)
	defer cancel()

	v, err := remoteBreaker().Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, uri, nil)
		if err != nil {
			return nil, err
		}

		resp, err := s.client.Do(req)
		if err != nil {
			return nil, err
		}

		_ = resp.Body.Close()

		if resp.StatusCode >= http.StatusMultipleChoices {
			return nil, fmt.Errorf("HEAD %s: %s", uri, resp.Status)
		}

		return resp.ContentLength, nil
	})
	if err != nil {
		return 0, err
	}

	n := v.(int64)
	if n < 0 {
		return 0, fmt.Errorf("HEAD %s: no content length", uri)
	}

	return n, nil
}

// Stream 规划并输出 zip 流.
func (s *ArchiveService) Stream(ctx context.Context, items []types.ArchiveItem) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		plan, err := s.Plan(ctx, items)
		if err != nil {
			yield(nil, err)
			return
		}

		s.StreamPlan(ctx, plan)(yield)
	}
}

// errStopped 消费方提前结束迭代.
var errStopped = errors.New("archive consumer stopped")

// chunkWriter 把 zip.Writer 的每次写出交给 yield.
type chunkWriter struct {
	yield   func([]byte, error) bool
	n       int64
	stopped bool
}

func (w *chunkWriter) Write(p []byte) (int, error) {
	if w.stopped {
		return 0, errStopped
	}

	if !w.yield(append([]byte(nil), p...), nil) {
		w.stopped = true
		return 0, errStopped
	}

	w.n += int64(len(p))

	return len(p), nil
}

// StreamPlan 按计划惰性输出 zip 字节块，只能迭代一次.
// 每个条目先完整复制到私有临时文件再写入，临时文件在任何退出路径上都会删除.
// 取不到内容或内容比声明的长的条目被跳过.
func (s *ArchiveService) StreamPlan(ctx context.Context, plan *ArchivePlan) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		ctx, span := tracing.StartSpan(ctx, "archive.Stream")
		defer span.End()

		cw := &chunkWriter{yield: yield}
		zw := zip.NewWriter(cw)

		var scratch string

		defer func() {
			if scratch != "" {
				_ = os.Remove(scratch)
			}
		}()

		fail := func(err error) {
			if !cw.stopped {
				yield(nil, err)
			}
		}

		for _, e := range plan.entries {
			if err := ctx.Err(); err != nil {
				fail(err)
				return
			}

			var (
				n   int64
				err error
			)

			scratch, n, err = s.fetch(ctx, e)
			if err == nil && n > e.size {
				err = fmt.Errorf("%s: body longer than %d bytes", e.uri, e.size)
			}

			if err != nil {
				s.log.Warn().Err(err).Str("uri", e.uri).Msg("archive item skipped")
				metrics.ArchiveItemsSkipped.WithLabelValues("fetch").Inc()
				removeScratch(&scratch)

				continue
			}

			if err := s.writeEntry(zw, e, scratch); err != nil {
				fail(err)
				return
			}

			removeScratch(&scratch)

			if cw.stopped {
				return
			}
		}

		if err := zw.Close(); err != nil {
			fail(err)
			return
		}

		metrics.ArchiveBytes.Add(float64(cw.n))
	}
}

func removeScratch(path *string) {
	if *path != "" {
		_ = os.Remove(*path)
		*path = ""
	}
}

func (s *ArchiveService) writeEntry(zw *zip.Writer, e archiveEntry, scratch string) error {
	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:     e.name,
		Method:   zip.Store,
		Modified: e.modified,
	})
	if err != nil {
		return err
	}

	f, err := os.Open(scratch)
	if err != nil {
		return fmt.Errorf("open scratch: %w", err)
	}
	defer f.Close()

	_, err = io.Copy(w, f)

	return err
}

// fetch 把条目内容复制到临时文件，最多读 size+1 字节以发现超长内容.
func (s *ArchiveService) fetch(ctx context.Context, e archiveEntry) (string, int64, error) {
	f, err := os.CreateTemp(s.cfg.ScratchDir, "tagstore-archive-*")
	if err != nil {
		return "", 0, fmt.Errorf("create scratch: %w", err)
	}

	name := f.Name()

	rc, err := s.open(ctx, e)
	if err != nil {
		_ = f.Close()
		return name, 0, err
	}
	defer rc.Close()

	n, err := io.Copy(f, io.LimitReader(rc, e.size+1))

	return name, n, errors.Join(err, f.Close())
}

func (s *ArchiveService) open(ctx context.Context, e archiveEntry) (io.ReadCloser, error) {
	if e.label != "" {
		rc, _, err := s.blobs.Get(ctx, e.label)
		return rc, err
	}

	ctx, cancel := withTimeout(ctx, s.cfg.FetchTimeout)

	v, err := remoteBreaker().Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.uri, nil)
		if err != nil {
			return nil, err
		}

		resp, err := s.client.Do(req)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode >= http.StatusMultipleChoices {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("GET %s: %s", e.uri, resp.Status)
		}

		return resp.Body, nil
	})
	if err != nil {
		cancel()
		return nil, err
	}

	return &cancelReadCloser{ReadCloser: v.(io.ReadCloser), cancel: cancel}, nil
}

// withTimeout d 为 0 时不设超时.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, d)
}

// cancelReadCloser 关闭响应体时一并释放超时 context.
type cancelReadCloser struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelReadCloser) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()

	return err
}
