package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"

	"github.com/rs/zerolog"

	ctxPkg "github.com/yeisme/tagstore/pkg/context"
	"github.com/yeisme/tagstore/pkg/internal/storage/blob"
	mqc "github.com/yeisme/tagstore/pkg/internal/storage/mq"
	"github.com/yeisme/tagstore/pkg/internal/types"
	nlog "github.com/yeisme/tagstore/pkg/log"
	"github.com/yeisme/tagstore/pkg/queue"
)

// DefaultContentType 既没有记录格式、也无法从扩展名推断时使用.
const DefaultContentType = "application/octet-stream"

// BlobService 对外的 blob 上传、读取与删除.
type BlobService struct {
	blobs *blob.Store
	mq    *mqc.Client
	log   zerolog.Logger
}

// NewBlobService 从 context 获取依赖实例.
func NewBlobService(c context.Context) *BlobService {
	st := ctxPkg.GetBlobStore(c)
	if st == nil {
		nlog.Logger().Fatal().Msg("blob store not initialized")
	}

	return &BlobService{blobs: st, mq: ctxPkg.GetMQClient(c), log: nlog.Component("ofs")}
}

// Upload 分配新 label 并保存内容，base 为生成 uri 使用的根地址.
func (s *BlobService) Upload(ctx context.Context, r io.Reader, fname, contentType, base string) (*types.UploadResponse, error) {
	label := blob.NewLabel()

	meta := blob.Metadata{blob.KeyFName: fname}
	if contentType != "" {
		meta[blob.KeyFormat] = contentType
	}

	stored, err := s.blobs.Put(ctx, label, r, meta)
	if err != nil {
		return nil, err
	}

	s.stored(ctx, label, stored)

	return &types.UploadResponse{URI: blob.URI(base, label), FName: fname}, nil
}

// Open 返回内容与元数据，调用方负责关闭.
func (s *BlobService) Open(ctx context.Context, label string) (io.ReadCloser, blob.Metadata, error) {
	rc, meta, err := s.blobs.Get(ctx, label)
	if err != nil {
		return nil, nil, notFound(err)
	}

	return rc, meta, nil
}

// Stat 只返回元数据.
func (s *BlobService) Stat(ctx context.Context, label string) (blob.Metadata, error) {
	meta, err := s.blobs.GetMetadata(ctx, label)

	return meta, notFound(err)
}

// Update 可选地修改文件名、替换内容. r 为 nil 时只更新元数据.
func (s *BlobService) Update(ctx context.Context, label string, fname *string, r io.Reader, contentType string) (blob.Metadata, error) {
	if _, err := s.blobs.GetMetadata(ctx, label); err != nil {
		return nil, notFound(err)
	}

	meta := blob.Metadata{}
	if fname != nil {
		meta[blob.KeyFName] = *fname
	}

	if contentType != "" {
		meta[blob.KeyFormat] = contentType
	}

	if r == nil {
		out, err := s.blobs.UpdateMetadata(ctx, label, meta)
		return out, notFound(err)
	}

	out, err := s.blobs.Put(ctx, label, r, meta)
	if err != nil {
		return nil, err
	}

	s.stored(ctx, label, out)

	return out, nil
}

// Delete 尽力删除，不存在不算错误.
func (s *BlobService) Delete(ctx context.Context, label string) error {
	err := s.blobs.Delete(ctx, label)

	switch {
	case err == nil:
		publish(ctx, s.mq, queue.TopicBlobDeleted, queue.BlobPayload{Label: label})
		return nil
	case errors.Is(err, blob.ErrBytesMissing):
		s.log.Warn().Str("label", label).Msg("index entry removed, bytes were already missing")
		return nil
	case errors.Is(err, blob.ErrNotFound), errors.Is(err, blob.ErrInvalidLabel):
		return nil
	default:
		return fmt.Errorf("delete blob %s: %w", label, err)
	}
}

func (s *BlobService) stored(ctx context.Context, label string, meta blob.Metadata) {
	n, _ := meta.ContentLength()
	publish(ctx, s.mq, queue.TopicBlobStored, queue.BlobPayload{
		Label:         label,
		FName:         meta.FName(),
		ContentLength: n,
		Checksum:      meta.Checksum(),
	})
}

// ContentType 依次取记录的格式、按文件名扩展名推断、默认值.
func ContentType(meta blob.Metadata) string {
	if f := meta.Format(); f != "" {
		return f
	}

	if t := mime.TypeByExtension(path.Ext(meta.FName())); t != "" {
		return t
	}

	return DefaultContentType
}
