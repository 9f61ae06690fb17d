package configs

import (
	"time"

	"github.com/spf13/viper"
)

// BlobBackendType Blob 字节存储后端类型.
type BlobBackendType string

const (
	// BlobBackendLocal 本地 pairtree 目录.
	BlobBackendLocal BlobBackendType = "local"
	// BlobBackendS3 S3 兼容对象存储（MinIO）.
	BlobBackendS3 BlobBackendType = "s3"
)

const (
	DefaultBlobRoot          = "data/blobs" // 本地根目录，索引文件与锁文件总是放在这里
	DefaultBlobBucket        = "ts"         // 两个字符的 bucket 名，pairtree 更浅
	DefaultBlobLockTimeout   = 30 * time.Second
	DefaultBlobLockBackoff   = 5 * time.Millisecond
	DefaultBlobLockMaxJitter = 100 * time.Millisecond
)

// BlobConfig Blob 存储配置.
type BlobConfig struct {
	Backend BlobBackendType `mapstructure:"backend" rule:"oneof=local s3"`
	Root    string          `mapstructure:"root"    rule:"required"`
	Bucket  string          `mapstructure:"bucket"  rule:"required,alphanum"`
	// LockTimeout 获取索引锁的最长自旋时间.
	LockTimeout time.Duration `mapstructure:"lock_timeout"`
	// LockInitialInterval / LockMaxInterval 自旋退避区间.
	LockInitialInterval time.Duration `mapstructure:"lock_initial_interval"`
	LockMaxInterval     time.Duration `mapstructure:"lock_max_interval"`
}

func (c *BlobConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("blob.backend", BlobBackendLocal)
	v.SetDefault("blob.root", DefaultBlobRoot)
	v.SetDefault("blob.bucket", DefaultBlobBucket)
	v.SetDefault("blob.lock_timeout", DefaultBlobLockTimeout)
	v.SetDefault("blob.lock_initial_interval", DefaultBlobLockBackoff)
	v.SetDefault("blob.lock_max_interval", DefaultBlobLockMaxJitter)
}
