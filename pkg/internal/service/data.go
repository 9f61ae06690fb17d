package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/yeisme/tagstore/pkg/configs"
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

// DataService 负责 Datum 的增删改查，不处理 HTTP 细节.
type DataService struct {
	db    *gorm.DB
	blobs *blob.Store
	mq    *mqc.Client
	log   zerolog.Logger
}

// NewDataService 从 context 获取依赖实例.
func NewDataService(c context.Context) *DataService {
	dbc := ctxPkg.GetDBClient(c)
	if dbc == nil || dbc.DB == nil {
		nlog.Logger().Fatal().Msg("storage clients not initialized")
	}

	return &DataService{
		db:    dbc.DB,
		blobs: ctxPkg.GetBlobStore(c),
		mq:    ctxPkg.GetMQClient(c),
		log:   nlog.Component("data"),
	}
}

// Get 按 id 获取记录.
func (s *DataService) Get(ctx context.Context, id uint) (*types.Datum, error) {
	var d model.Datum
	if err := s.db.WithContext(ctx).Preload("Tags").First(&d, id).Error; err != nil {
		return nil, notFound(err)
	}

	out := toDatum(&d)

	return &out, nil
}

// Query 按条件树分页查询.
func (s *DataService) Query(ctx context.Context, req types.PageRequest) (*types.Page[types.Datum], error) {
	req.Normalize()

	q, err := parseQuery(req.Q)
	if err != nil {
		return nil, err
	}

	cq, err := compileQuery(dataSchema, q)
	if err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)

	var total int64
	if err := cq.where(db.Model(&model.Datum{})).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("count data: %w", err)
	}

	var rows []model.Datum
	if err := cq.ordered(db.Model(&model.Datum{}), dataSchema).
		Preload("Tags").
		Offset((req.Page - 1) * req.ResultsPerPage).
		Limit(req.ResultsPerPage).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query data: %w", err)
	}

	objects := make([]types.Datum, 0, len(rows))
	for i := range rows {
		objects = append(objects, toDatum(&rows[i]))
	}

	return pageOf(objects, total, req), nil
}

// Create 解析标签、检查 uri 冲突并写入记录与关联，全部在一个事务内.
func (s *DataService) Create(ctx context.Context, req *types.CreateDatumRequest) (_ *types.Datum, err error) {
	ctx, span := tracing.StartSpan(ctx, "data.Create")

	defer func() {
		metrics.DataWrites.WithLabelValues("create", outcome(err)).Inc()
		tracing.EndSpan(span, err)
	}()

	uri := strings.TrimSpace(req.URI)
	if uri == "" {
		return nil, invalidf("uri is required")
	}

	var (
		ob outbox
		d  model.Datum
	)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		refs, err := prepareRefs(tx, req.Tags, &ob)
		if err != nil {
			return err
		}

		if err := uriTaken(tx, uri, 0); err != nil {
			return err
		}

		ids, err := materialize(tx, refs)
		if err != nil {
			return err
		}

		d = model.Datum{URI: uri, FName: req.FName}
		if err := tx.Omit("Tags").Create(&d).Error; err != nil {
			if isDuplicateKey(err) {
				return fmt.Errorf("%w: %s", ErrConflict, uri)
			}

			return fmt.Errorf("insert datum: %w", err)
		}

		if err := replaceTags(tx, d.ID, ids); err != nil {
			return err
		}

		return tx.Preload("Tags").First(&d, d.ID).Error
	})
	if err != nil {
		return nil, err
	}

	ob.flush(ctx, s.mq)

	out := toDatum(&d)
	publish(ctx, s.mq, queue.TopicDatumCreated, s.payload(&d))

	return &out, nil
}

// Edit 部分更新. 给出 tags 时整体替换标签集合，改名与合并先于挂载执行.
func (s *DataService) Edit(ctx context.Context, id uint, req *types.EditDatumRequest) (_ *types.Datum, err error) {
	ctx, span := tracing.StartSpan(ctx, "data.Edit")

	defer func() {
		metrics.DataWrites.WithLabelValues("edit", outcome(err)).Inc()
		tracing.EndSpan(span, err)
	}()

	var (
		ob outbox
		d  model.Datum
	)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&d, id).Error; err != nil {
			return notFound(err)
		}

		updates := map[string]any{}

		if req.URI != nil {
			uri := strings.TrimSpace(*req.URI)
			if uri == "" {
				return invalidf("uri must not be empty")
			}

			if uri != d.URI {
				if err := uriTaken(tx, uri, d.ID); err != nil {
					return err
				}

				updates["uri"] = uri
			}
		}

		if req.FName.Set {
			updates["fname"] = req.FName.Value
		}

		if req.Tags != nil {
			refs, err := prepareRefs(tx, *req.Tags, &ob)
			if err != nil {
				return err
			}

			ids, err := materialize(tx, refs)
			if err != nil {
				return err
			}

			if err := replaceTags(tx, d.ID, ids); err != nil {
				return err
			}

			updates["updated_at"] = tx.NowFunc()
		}

		if len(updates) > 0 {
			if err := tx.Model(&d).Omit("Tags").Updates(updates).Error; err != nil {
				if isDuplicateKey(err) {
					return fmt.Errorf("%w: %v", ErrConflict, updates["uri"])
				}

				return fmt.Errorf("update datum %d: %w", id, err)
			}
		}

		return tx.Preload("Tags").First(&d, d.ID).Error
	})
	if err != nil {
		return nil, err
	}

	ob.flush(ctx, s.mq)

	out := toDatum(&d)
	publish(ctx, s.mq, queue.TopicDatumUpdated, s.payload(&d))

	return &out, nil
}

// Delete 删除记录. 行在事务内读取并删除，提交后 uri 指向本地 blob 时尽力删除 blob，失败只记录日志；标签不会被清理.
func (s *DataService) Delete(ctx context.Context, id uint) (err error) {
	ctx, span := tracing.StartSpan(ctx, "data.Delete")

	defer func() {
		metrics.DataWrites.WithLabelValues("delete", outcome(err)).Inc()
		tracing.EndSpan(span, err)
	}()

	var d model.Datum

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("Tags").First(&d, id).Error; err != nil {
			return notFound(err)
		}

		if err := tx.Where("datum_id = ?", d.ID).Delete(&model.DataTag{}).Error; err != nil {
			return fmt.Errorf("detach tags: %w", err)
		}

		if err := tx.Delete(&model.Datum{}, d.ID).Error; err != nil {
			return fmt.Errorf("delete datum %d: %w", id, err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	if label, ok := localLabel(d.URI); ok && s.blobs != nil {
		if err := s.blobs.Delete(ctx, label); err != nil {
			s.log.Warn().Err(err).Str("label", label).Uint("datum", d.ID).Msg("delete blob failed")
		} else {
			publish(ctx, s.mq, queue.TopicBlobDeleted, queue.BlobPayload{Label: label})
		}
	}

	publish(ctx, s.mq, queue.TopicDatumDeleted, s.payload(&d))

	return nil
}

func (s *DataService) payload(d *model.Datum) queue.DatumPayload {
	p := queue.DatumPayload{ID: d.ID, URI: d.URI, FName: d.FName, Tags: d.TagStrings()}
	if label, ok := localLabel(d.URI); ok {
		p.BlobLabel = label
	}

	return p
}

// uriTaken 检查 uri 是否已被 self 以外的记录使用. 唯一索引仍是最终依据.
func uriTaken(tx *gorm.DB, uri string, self uint) error {
	var n int64

	q := tx.Model(&model.Datum{}).Where("uri = ?", uri)
	if self != 0 {
		q = q.Where("id <> ?", self)
	}

	if err := q.Count(&n).Error; err != nil {
		return fmt.Errorf("check uri: %w", err)
	}

	if n > 0 {
		return fmt.Errorf("%w: %s", ErrConflict, uri)
	}

	return nil
}

// localLabel 判断 uri 是否指向本服务的 blob. 配置了 public_url 时绝对 uri 必须以它开头.
func localLabel(uri string) (string, bool) {
	label, ok := blob.LabelFromURI(uri)
	if !ok || !blob.ValidLabel(label) {
		return "", false
	}

	if strings.HasPrefix(uri, "/") {
		return label, true
	}

	base := strings.TrimRight(configs.GetConfig().Server.PublicURL, "/")
	if base != "" && !strings.HasPrefix(uri, base+"/") {
		return "", false
	}

	return label, true
}
