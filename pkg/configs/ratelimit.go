package configs

import (
	"time"

	"github.com/spf13/viper"
)

// RateLimitConfig 令牌桶限流.
type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"rps"   rule:"gt=0"`
	Burst   int     `mapstructure:"burst" rule:"min=1"`
	// Key 限流维度：global、ip，或 header:<Name> 按请求头（缺失时退回 IP）.
	Key string `mapstructure:"key"`
	// IdleTTL 按 key 建立的令牌桶闲置超过该时长后释放.
	IdleTTL   time.Duration `mapstructure:"idle_ttl"`
	SkipPaths []string      `mapstructure:"skip_paths"`
}

func (c *RateLimitConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.rps", 50.0)
	v.SetDefault("rate_limit.burst", 100)
	v.SetDefault("rate_limit.key", "ip")
	v.SetDefault("rate_limit.idle_ttl", "10m")
	// blob 下载与健康检查不计入
	v.SetDefault("rate_limit.skip_paths", []string{"/api/v1/health", "/api/v1/ofs/"})
}
