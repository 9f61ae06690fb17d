package service

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	ctxPkg "github.com/yeisme/tagstore/pkg/context"
	"github.com/yeisme/tagstore/pkg/internal/model"
	mqc "github.com/yeisme/tagstore/pkg/internal/storage/mq"
	"github.com/yeisme/tagstore/pkg/internal/types"
	nlog "github.com/yeisme/tagstore/pkg/log"
	"github.com/yeisme/tagstore/pkg/metrics"
	"github.com/yeisme/tagstore/pkg/queue"
	"github.com/yeisme/tagstore/pkg/rule"
	"github.com/yeisme/tagstore/pkg/tracing"
)

// idChunk 单条 IN 语句携带的最多 id 数.
const idChunk = 500

// TagService 标签注册表：解析、改名合并、批量替换与删除.
type TagService struct {
	db *gorm.DB
	mq *mqc.Client
}

// NewTagService 从 context 获取依赖实例.
func NewTagService(c context.Context) *TagService {
	dbc := ctxPkg.GetDBClient(c)
	if dbc == nil || dbc.DB == nil {
		nlog.Logger().Fatal().Msg("storage clients not initialized")
	}

	return &TagService{db: dbc.DB, mq: ctxPkg.GetMQClient(c)}
}

// outbox 事务内登记、提交后执行的副作用（事件与计数）.
type outbox []func(ctx context.Context, mq *mqc.Client)

func (o *outbox) add(fn func(ctx context.Context, mq *mqc.Client)) {
	*o = append(*o, fn)
}

func (o outbox) flush(ctx context.Context, mq *mqc.Client) {
	for _, fn := range o {
		fn(ctx, mq)
	}
}

// normalizeTag 去掉首尾空白后校验长度.
func normalizeTag(s string) (string, error) {
	s = strings.TrimSpace(s)
	if err := rule.ValidateVar(s, "tagname"); err != nil {
		return "", invalidf("tag %q must be 1..%d characters", s, rule.MaxTagLength)
	}

	return s, nil
}

// ResolveOrMark 把能匹配到已有标签的 ByString 引用改写为 ByID，其余原样返回.
// 不修改入参，也不写库.
func (s *TagService) ResolveOrMark(ctx context.Context, refs []types.TagRef) ([]types.TagRef, error) {
	return resolveOrMark(s.db.WithContext(ctx), refs)
}

func resolveOrMark(tx *gorm.DB, refs []types.TagRef) ([]types.TagRef, error) {
	out := slices.Clone(refs)

	names := make([]string, 0, len(out))
	for _, r := range out {
		if r.Kind() == types.TagRefByString {
			names = append(names, r.Tag)
		}
	}

	if len(names) == 0 {
		return out, nil
	}

	var found []model.Tag
	if err := tx.Where("tag IN ?", names).Find(&found).Error; err != nil {
		return nil, fmt.Errorf("resolve tags: %w", err)
	}

	ids := make(map[string]uint, len(found))
	for _, t := range found {
		ids[t.Tag] = t.ID
	}

	for i, r := range out {
		if r.Kind() != types.TagRefByString {
			continue
		}

		if id, ok := ids[r.Tag]; ok {
			out[i] = types.ByID(id)
		}
	}

	return out, nil
}

// prepareRefs 先执行引用中的改名，再解析字符串引用.
func prepareRefs(tx *gorm.DB, refs []types.TagRef, ob *outbox) ([]types.TagRef, error) {
	refs = slices.Clone(refs)

	for i, r := range refs {
		if r.Kind() != types.TagRefRename {
			continue
		}

		t, err := renameOrMerge(tx, r.ID, r.Tag, ob)
		if err != nil {
			return nil, err
		}

		refs[i] = types.ByID(t.ID)
	}

	for i, r := range refs {
		if r.Kind() == types.TagRefByString {
			name, err := normalizeTag(r.Tag)
			if err != nil {
				return nil, err
			}

			refs[i].Tag = name
		}
	}

	return resolveOrMark(tx, refs)
}

// materialize 创建仍为 ByString 的标签，校验 ByID 的存在性，返回去重后的 id.
func materialize(tx *gorm.DB, refs []types.TagRef) ([]uint, error) {
	ids := make([]uint, 0, len(refs))

	var want []uint

	for _, r := range refs {
		switch r.Kind() {
		case types.TagRefByID:
			want = append(want, r.ID)
			ids = append(ids, r.ID)
		case types.TagRefByString:
			t := model.Tag{Tag: r.Tag}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&t).Error; err != nil {
				return nil, fmt.Errorf("create tag %q: %w", r.Tag, err)
			}

			if t.ID == 0 {
				if err := tx.Where("tag = ?", r.Tag).First(&t).Error; err != nil {
					return nil, fmt.Errorf("reload tag %q: %w", r.Tag, err)
				}
			}

			ids = append(ids, t.ID)
		}
	}

	if len(want) > 0 {
		var have []uint
		if err := tx.Model(&model.Tag{}).Where("id IN ?", want).Pluck("id", &have).Error; err != nil {
			return nil, fmt.Errorf("check tag ids: %w", err)
		}

		for _, id := range want {
			if !slices.Contains(have, id) {
				return nil, invalidf("unknown tag id %d", id)
			}
		}
	}

	slices.Sort(ids)

	return slices.Compact(ids), nil
}

// replaceTags 用 tagIDs 整体替换记录的标签集合.
func replaceTags(tx *gorm.DB, datumID uint, tagIDs []uint) error {
	if err := tx.Where("datum_id = ?", datumID).Delete(&model.DataTag{}).Error; err != nil {
		return fmt.Errorf("clear tags of %d: %w", datumID, err)
	}

	if len(tagIDs) == 0 {
		return nil
	}

	rows := make([]model.DataTag, 0, len(tagIDs))
	for _, id := range tagIDs {
		rows = append(rows, model.DataTag{DatumID: datumID, TagID: id})
	}

	if err := tx.Create(&rows).Error; err != nil {
		return fmt.Errorf("attach tags to %d: %w", datumID, err)
	}

	return nil
}

// Get 按 id 获取标签.
func (s *TagService) Get(ctx context.Context, id uint) (*types.Tag, error) {
	var t model.Tag
	if err := s.db.WithContext(ctx).First(&t, id).Error; err != nil {
		return nil, notFound(err)
	}

	out := toTag(t)

	return &out, nil
}

// List 分页列出标签，q 为作用于 tags 表的条件树.
func (s *TagService) List(ctx context.Context, req types.PageRequest) (*types.Page[types.Tag], error) {
	req.Normalize()

	q, err := parseQuery(req.Q)
	if err != nil {
		return nil, err
	}

	cq, err := compileQuery(tagSchema, q)
	if err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)

	var total int64
	if err := cq.where(db.Model(&model.Tag{})).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("count tags: %w", err)
	}

	var rows []model.Tag
	if err := cq.ordered(db.Model(&model.Tag{}), tagSchema).
		Offset((req.Page - 1) * req.ResultsPerPage).
		Limit(req.ResultsPerPage).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}

	objects := make([]types.Tag, 0, len(rows))
	for _, t := range rows {
		objects = append(objects, toTag(t))
	}

	return pageOf(objects, total, req), nil
}

// RenameOrMerge 改名；新名字已被其他标签占用时合并到那个标签并返回它.
func (s *TagService) RenameOrMerge(ctx context.Context, id uint, newTag string) (*types.Tag, error) {
	ctx, span := tracing.StartSpan(ctx, "tags.RenameOrMerge")
	defer span.End()

	var (
		ob  outbox
		out *model.Tag
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := renameOrMerge(tx, id, newTag, &ob)
		out = t

		return err
	})
	if err != nil {
		return nil, err
	}

	ob.flush(ctx, s.mq)

	res := toTag(*out)

	return &res, nil
}

func renameOrMerge(tx *gorm.DB, id uint, newTag string, ob *outbox) (*model.Tag, error) {
	name, err := normalizeTag(newTag)
	if err != nil {
		return nil, err
	}

	var cur model.Tag
	if err := tx.First(&cur, id).Error; err != nil {
		return nil, notFound(err)
	}

	if cur.Tag == name {
		return &cur, nil
	}

	var other model.Tag
	if err := tx.Where("tag = ?", name).Limit(1).Find(&other).Error; err != nil {
		return nil, fmt.Errorf("lookup tag %q: %w", name, err)
	}

	if other.ID == 0 {
		// Update 会把新值写回 cur
		from := cur.Tag
		if err := tx.Model(&cur).Update("tag", name).Error; err != nil {
			if isDuplicateKey(err) {
				return nil, fmt.Errorf("%w: tag %q", ErrConflict, name)
			}

			return nil, fmt.Errorf("rename tag %d: %w", id, err)
		}

		payload := queue.TagRenamedPayload{FromID: cur.ID, FromTag: from, ToID: cur.ID, ToTag: name}
		ob.add(func(ctx context.Context, mq *mqc.Client) {
			publish(ctx, mq, queue.TopicTagRenamed, payload)
		})

		cur.Tag = name

		return &cur, nil
	}

	// 已同时带有两个标签的记录只保留 other
	var both []uint
	if err := tx.Model(&model.DataTag{}).Where("tag_id = ?", other.ID).Pluck("datum_id", &both).Error; err != nil {
		return nil, fmt.Errorf("merge tag %d: %w", id, err)
	}

	for chunk := range slices.Chunk(both, idChunk) {
		if err := tx.Where("tag_id = ? AND datum_id IN ?", cur.ID, chunk).Delete(&model.DataTag{}).Error; err != nil {
			return nil, fmt.Errorf("merge tag %d: %w", id, err)
		}
	}

	res := tx.Model(&model.DataTag{}).Where("tag_id = ?", cur.ID).Update("tag_id", other.ID)
	if res.Error != nil {
		return nil, fmt.Errorf("repoint tag %d: %w", id, res.Error)
	}

	if err := tx.Delete(&model.Tag{}, cur.ID).Error; err != nil {
		return nil, fmt.Errorf("delete merged tag %d: %w", id, err)
	}

	payload := queue.TagRenamedPayload{
		FromID:    cur.ID,
		FromTag:   cur.Tag,
		ToID:      other.ID,
		ToTag:     other.Tag,
		Repointed: res.RowsAffected,
	}
	ob.add(func(ctx context.Context, mq *mqc.Client) {
		metrics.TagMerges.Inc()
		publish(ctx, mq, queue.TopicTagMerged, payload)
	})

	return &other, nil
}

// Swap 在满足 q 的、带有 old 的记录上把 old 替换为 new，整个过程在一个事务内.
// new 不存在时分两阶段：先给匹配记录加上新建的 new，再重新求值条件并移除 old.
func (s *TagService) Swap(ctx context.Context, oldTag, newTag string, q *types.Query) (*types.SwapTagsResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "tags.Swap")
	defer span.End()

	oldName, err := normalizeTag(oldTag)
	if err != nil {
		return nil, err
	}

	newName, err := normalizeTag(newTag)
	if err != nil {
		return nil, err
	}

	out := &types.SwapTagsResponse{}
	if oldName == newName {
		return out, nil
	}

	cq, err := compileQuery(dataSchema, q)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var from model.Tag
		if err := tx.Where("tag = ?", oldName).Limit(1).Find(&from).Error; err != nil {
			return fmt.Errorf("lookup tag %q: %w", oldName, err)
		}

		if from.ID == 0 {
			return nil
		}

		match := func() ([]uint, error) {
			var ids []uint

			err := cq.where(tx.Model(&model.Datum{})).
				Where("EXISTS (SELECT 1 FROM data_tags sw WHERE sw.datum_id = data.id AND sw.tag_id = ?)", from.ID).
				Pluck("data.id", &ids).Error
			if err != nil {
				return nil, fmt.Errorf("match data: %w", err)
			}

			return ids, nil
		}

		var to model.Tag
		if err := tx.Where("tag = ?", newName).Limit(1).Find(&to).Error; err != nil {
			return fmt.Errorf("lookup tag %q: %w", newName, err)
		}

		if to.ID != 0 {
			return swapExisting(tx, from.ID, to.ID, match, out)
		}

		return swapTwoPhase(tx, from.ID, newName, match, out)
	})
	if err != nil {
		return nil, err
	}

	publish(ctx, s.mq, queue.TopicTagSwapped, queue.TagSwappedPayload{
		Old:      oldName,
		New:      newName,
		Added:    out.Added,
		Removed:  out.Removed,
		TwoPhase: out.TwoPhase,
	})

	return out, nil
}

func swapExisting(tx *gorm.DB, fromID, toID uint, match func() ([]uint, error), out *types.SwapTagsResponse) error {
	ids, err := match()
	if err != nil || len(ids) == 0 {
		return err
	}

	var both []uint

	for chunk := range slices.Chunk(ids, idChunk) {
		var part []uint
		if err := tx.Model(&model.DataTag{}).
			Where("tag_id = ? AND datum_id IN ?", toID, chunk).
			Pluck("datum_id", &part).Error; err != nil {
			return fmt.Errorf("swap: %w", err)
		}

		both = append(both, part...)
	}

	rest := slices.DeleteFunc(slices.Clone(ids), func(id uint) bool {
		return slices.Contains(both, id)
	})

	for chunk := range slices.Chunk(both, idChunk) {
		res := tx.Where("tag_id = ? AND datum_id IN ?", fromID, chunk).Delete(&model.DataTag{})
		if res.Error != nil {
			return fmt.Errorf("swap: %w", res.Error)
		}

		out.Removed += res.RowsAffected
	}

	for chunk := range slices.Chunk(rest, idChunk) {
		res := tx.Model(&model.DataTag{}).
			Where("tag_id = ? AND datum_id IN ?", fromID, chunk).
			Update("tag_id", toID)
		if res.Error != nil {
			return fmt.Errorf("swap: %w", res.Error)
		}

		out.Added += res.RowsAffected
		out.Removed += res.RowsAffected
	}

	return nil
}

func swapTwoPhase(tx *gorm.DB, fromID uint, newName string, match func() ([]uint, error), out *types.SwapTagsResponse) error {
	out.TwoPhase = true

	ids, err := match()
	if err != nil || len(ids) == 0 {
		return err
	}

	to := model.Tag{Tag: newName}
	if err := tx.Create(&to).Error; err != nil {
		return fmt.Errorf("create tag %q: %w", newName, err)
	}

	for chunk := range slices.Chunk(ids, idChunk) {
		rows := make([]model.DataTag, 0, len(chunk))
		for _, id := range chunk {
			rows = append(rows, model.DataTag{DatumID: id, TagID: to.ID})
		}

		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows)
		if res.Error != nil {
			return fmt.Errorf("swap phase 1: %w", res.Error)
		}

		out.Added += res.RowsAffected
	}

	// 第二阶段重新求值：条件可能引用了刚加上的 new
	ids, err = match()
	if err != nil {
		return err
	}

	for chunk := range slices.Chunk(ids, idChunk) {
		res := tx.Where("tag_id = ? AND datum_id IN ?", fromID, chunk).Delete(&model.DataTag{})
		if res.Error != nil {
			return fmt.Errorf("swap phase 2: %w", res.Error)
		}

		out.Removed += res.RowsAffected
	}

	return nil
}

// DeleteTag 删除未被引用的标签.
func (s *TagService) DeleteTag(ctx context.Context, id uint) error {
	var t model.Tag

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&t, id).Error; err != nil {
			return notFound(err)
		}

		var n int64
		if err := tx.Model(&model.DataTag{}).Where("tag_id = ?", id).Count(&n).Error; err != nil {
			return fmt.Errorf("count references: %w", err)
		}

		if n > 0 {
			return fmt.Errorf("%w: %d data", ErrReferenced, n)
		}

		return tx.Delete(&t).Error
	})
	if err != nil {
		return err
	}

	publish(ctx, s.mq, queue.TopicTagDeleted, queue.TagDeletedPayload{ID: t.ID, Tag: t.Tag})

	return nil
}
