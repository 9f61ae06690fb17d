package configs

import (
	"time"

	"github.com/spf13/viper"
)

// CircuitBreakerConfig 熔断阈值.
// Enabled 只控制 HTTP 入口的熔断中间件，打包拉取远程资源的熔断器总是开启并共用这组阈值.
type CircuitBreakerConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	FailureRate float64       `mapstructure:"failure_rate"  rule:"gte=0,lte=1"`
	MinRequests uint32        `mapstructure:"min_requests"`
	Interval    time.Duration `mapstructure:"interval"      rule:"gte=0"` // 0 表示闭合状态下从不清零计数
	OpenFor     time.Duration `mapstructure:"open_for"      rule:"gt=0"`  // 打开多久后进入半开
	HalfOpenMax uint32        `mapstructure:"half_open_max"`
}

// Tripped 判断一个统计窗口是否应当打开熔断器.
func (c *CircuitBreakerConfig) Tripped(requests, failures uint32) bool {
	if requests == 0 || requests < c.MinRequests {
		return false
	}

	return float64(failures)/float64(requests) >= c.FailureRate
}

func (c *CircuitBreakerConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("circuit_breaker.enabled", false)
	v.SetDefault("circuit_breaker.failure_rate", 0.5)
	v.SetDefault("circuit_breaker.min_requests", 20)
	v.SetDefault("circuit_breaker.interval", "1m")
	v.SetDefault("circuit_breaker.open_for", "30s")
	v.SetDefault("circuit_breaker.half_open_max", 5)
}
