package configs

import "github.com/spf13/viper"

// S3Config 兼容 S3 的对象存储（MinIO 等），仅在 blob.backend=s3 时使用.
// blob 对象键为 <prefix><blob.bucket>/<label>，元数据存在对象的 user metadata 中.
type S3Config struct {
	// Endpoint host:port，也可以写 https:// 前缀，此时自动启用 TLS.
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
	Region          string `mapstructure:"region"`
	Prefix          string `mapstructure:"prefix"`
}

func (c *S3Config) setDefaults(v *viper.Viper) {
	v.SetDefault("s3.endpoint", "localhost:9000")
	v.SetDefault("s3.access_key_id", "minioadmin")
	v.SetDefault("s3.secret_access_key", "minioadmin")
	v.SetDefault("s3.use_ssl", false)
	v.SetDefault("s3.bucket_name", "tagstore")
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.prefix", "blobs/")
}
