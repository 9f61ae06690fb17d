package service

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	ctxPkg "github.com/yeisme/tagstore/pkg/context"
	"github.com/yeisme/tagstore/pkg/internal/model"
	"github.com/yeisme/tagstore/pkg/internal/storage/blob"
	mqc "github.com/yeisme/tagstore/pkg/internal/storage/mq"
	"github.com/yeisme/tagstore/pkg/internal/types"
	nlog "github.com/yeisme/tagstore/pkg/log"
	"github.com/yeisme/tagstore/pkg/metrics"
	"github.com/yeisme/tagstore/pkg/queue"
	"github.com/yeisme/tagstore/pkg/tracing"
)

// Collector 删除没有被任何记录引用、且超过宽限期的 blob.
type Collector struct {
	db    *gorm.DB
	blobs *blob.Store
	mq    *mqc.Client
	now   func() time.Time
	log   zerolog.Logger
}

// NewCollector 从 context 获取依赖实例.
func NewCollector(c context.Context) *Collector {
	dbc := ctxPkg.GetDBClient(c)
	st := ctxPkg.GetBlobStore(c)

	if dbc == nil || dbc.DB == nil || st == nil {
		nlog.Logger().Fatal().Msg("storage clients not initialized")
	}

	return &Collector{
		db:    dbc.DB,
		blobs: st,
		mq:    ctxPkg.GetMQClient(c),
		now:   time.Now,
		log:   nlog.Component("collector"),
	}
}

// Collect 执行一轮回收. 元数据无法解析的 label 保留并记录日志.
// 除 Blob 门面自身的锁外不持有其他锁，与上传并发时依赖宽限期保护新 blob.
func (c *Collector) Collect(ctx context.Context, grace time.Duration) (*types.CollectResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "collector.Collect")
	defer span.End()

	var (
		uris  []string
		index map[string]blob.Metadata
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := c.db.WithContext(gctx).Model(&model.Datum{}).
			Where("uri LIKE ?", "%/api/%/ofs/%").
			Pluck("uri", &uris).Error
		if err != nil {
			return fmt.Errorf("scan references: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		var err error

		index, err = c.blobs.Snapshot(gctx)

		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	referenced := make(map[string]struct{}, len(uris))
	for _, uri := range uris {
		if label, ok := blob.LabelFromURI(uri); ok {
			referenced[label] = struct{}{}
		}
	}

	cutoff := c.now().UTC().Add(-grace)
	res := &types.CollectResponse{Deleted: []string{}}

	for _, label := range slices.Sorted(maps.Keys(index)) {
		meta := index[label]

		if _, ok := referenced[label]; ok {
			res.Referenced++
			continue
		}

		modified, err := meta.LastModified()
		if err != nil {
			c.log.Warn().Err(err).Str("label", label).Msg("unparseable metadata, blob kept")

			res.Retained++

			continue
		}

		if !modified.Before(cutoff) {
			res.Retained++
			continue
		}

		if err := c.blobs.Delete(ctx, label); err != nil {
			c.log.Warn().Err(err).Str("label", label).Msg("collect blob failed")

			res.Retained++

			continue
		}

		res.Deleted = append(res.Deleted, label)
	}

	metrics.BlobsCollected.Add(float64(len(res.Deleted)))

	c.log.Info().
		Int("deleted", len(res.Deleted)).
		Int("retained", res.Retained).
		Int("referenced", res.Referenced).
		Msg("blob collection finished")

	publish(ctx, c.mq, queue.TopicBlobCollected, queue.BlobCollectedPayload{
		Deleted:    res.Deleted,
		Retained:   res.Retained,
		Referenced: res.Referenced,
		Grace:      grace,
	})

	return res, nil
}
