// Package s3 提供基于 MinIO 客户端的 S3 兼容 Blob 后端.
package s3

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/yeisme/tagstore/pkg/configs"
	"github.com/yeisme/tagstore/pkg/internal/storage/blob"
	nlog "github.com/yeisme/tagstore/pkg/log"
)

// Client 包装 MinIO 客户端.
type Client struct {
	*minio.Client
	cfg configs.S3Config
}

// New 初始化 MinIO 客户端，若 bucket 不存在则尝试创建.
func New(ctx context.Context, cfg *configs.S3Config) (*Client, error) {
	c := *cfg

	endpoint := c.Endpoint
	// 允许用户传完整 schema endpoint（http:// 或 https://）
	if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
		endpoint = u.Host
		if u.Scheme == "https" {
			c.UseSSL = true
		}
	}

	cli, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(c.AccessKeyID, c.SecretAccessKey, ""),
		Secure: c.UseSSL,
		Region: c.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	cli.SetAppInfo("tagstore", configs.AppVersion)

	exists, err := cli.BucketExists(ctx, c.BucketName)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", c.BucketName, err)
	}

	if !exists {
		if err := cli.MakeBucket(ctx, c.BucketName, minio.MakeBucketOptions{Region: c.Region}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", c.BucketName, err)
		}

		nlog.Logger().Info().Str("bucket", c.BucketName).Msg("bucket created")
	}

	nlog.Logger().Info().Str("endpoint", c.Endpoint).Str("bucket", c.BucketName).Msg("s3 connected")

	return &Client{Client: cli, cfg: c}, nil
}

// HealthCheck 检查 bucket 是否可访问.
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.BucketExists(ctx, c.cfg.BucketName)
	return err
}

// Backend 把 blob 存为 <prefix><blob bucket>/<label> 对象.
type Backend struct {
	client *Client
	prefix string
}

// NewBackend 使用全局 s3 配置创建 blob 后端.
func NewBackend(ctx context.Context, cfg *configs.BlobConfig) (blob.Backend, error) {
	client, err := New(ctx, &configs.GetConfig().S3)
	if err != nil {
		return nil, err
	}

	return &Backend{
		client: client,
		prefix: path.Join(client.cfg.Prefix, cfg.Bucket) + "/",
	}, nil
}

func init() {
	blob.RegisterBackend(configs.BlobBackendS3, NewBackend)
}

func (b *Backend) key(label string) string {
	return b.prefix + label
}

func isNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}

func (b *Backend) Put(ctx context.Context, label string, r io.Reader, size int64, contentType string) error {
	_, err := b.client.PutObject(ctx, b.client.cfg.BucketName, b.key(label), r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}

	return nil
}

func (b *Backend) Get(ctx context.Context, label string) (io.ReadCloser, error) {
	// GetObject 是惰性的，先 Stat 才能区分对象不存在
	if _, err := b.client.StatObject(ctx, b.client.cfg.BucketName, b.key(label), minio.StatObjectOptions{}); err != nil {
		if isNotFound(err) {
			return nil, blob.ErrBytesMissing
		}

		return nil, fmt.Errorf("stat object: %w", err)
	}

	obj, err := b.client.GetObject(ctx, b.client.cfg.BucketName, b.key(label), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object: %w", err)
	}

	return obj, nil
}

func (b *Backend) Delete(ctx context.Context, label string) error {
	ok, err := b.Exists(ctx, label)
	if err != nil {
		return err
	}

	if !ok {
		return blob.ErrBytesMissing
	}

	return b.client.RemoveObject(ctx, b.client.cfg.BucketName, b.key(label), minio.RemoveObjectOptions{})
}

func (b *Backend) Exists(ctx context.Context, label string) (bool, error) {
	_, err := b.client.StatObject(ctx, b.client.cfg.BucketName, b.key(label), minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}

		return false, fmt.Errorf("stat object: %w", err)
	}

	return true, nil
}

// Close 无实际操作，MinIO 客户端没有需要释放的连接.
func (b *Backend) Close() error {
	return nil
}
