package configs

import (
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultGCEnabled     = true
	DefaultGCCron        = "*/10 * * * *" // 每 10 分钟
	DefaultGCGracePeriod = 60 * time.Second
)

// GCConfig 未引用 blob 回收配置.
type GCConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Cron    string `mapstructure:"cron"         rule:"required"`
	// GracePeriod 新上传的 blob 在这段时间内即使没有被引用也不会被回收.
	GracePeriod time.Duration `mapstructure:"grace_period" rule:"gte=0"`
}

// GetGracePeriod 返回宽限期.
func (c *GCConfig) GetGracePeriod() time.Duration {
	return c.GracePeriod
}

func (c *GCConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("gc.enabled", DefaultGCEnabled)
	v.SetDefault("gc.cron", DefaultGCCron)
	v.SetDefault("gc.grace_period", DefaultGCGracePeriod)
}
