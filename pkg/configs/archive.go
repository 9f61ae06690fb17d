package configs

import (
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultArchiveFetchTimeout  = 60 * time.Second
	DefaultArchiveHeadTimeout   = 10 * time.Second
	DefaultArchiveHeadCacheTTL  = 5 * time.Minute
	DefaultArchiveMaxItems      = 1000
	DefaultArchiveDeclareLength = false
)

// ArchiveConfig 打包下载配置.
type ArchiveConfig struct {
	// ScratchDir 临时文件目录，为空时使用系统临时目录.
	ScratchDir   string        `mapstructure:"scratch_dir"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
	HeadTimeout  time.Duration `mapstructure:"head_timeout"`
	// HeadCacheTTL 远程资源 HEAD 探测结果在 KV 中的缓存时间，0 表示不缓存.
	HeadCacheTTL time.Duration `mapstructure:"head_cache_ttl"`
	MaxItems     int           `mapstructure:"max_items"     rule:"min=1"`
	// DeclareContentLength 为 true 时把估算的上界写入 Content-Length，
	// 否则只写入 X-Archive-Max-Size，响应使用分块传输.
	DeclareContentLength bool `mapstructure:"declare_content_length"`
}

func (c *ArchiveConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("archive.scratch_dir", "")
	v.SetDefault("archive.fetch_timeout", DefaultArchiveFetchTimeout)
	v.SetDefault("archive.head_timeout", DefaultArchiveHeadTimeout)
	v.SetDefault("archive.head_cache_ttl", DefaultArchiveHeadCacheTTL)
	v.SetDefault("archive.max_items", DefaultArchiveMaxItems)
	v.SetDefault("archive.declare_content_length", DefaultArchiveDeclareLength)
}
