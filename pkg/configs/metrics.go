package configs

import (
	"github.com/spf13/viper"
)

// MetricsConfig Prometheus 指标. 启用后 /metrics 挂在独立的调试端口上.
type MetricsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint" rule:"required_if=Enabled true"`
	// RuntimeMetrics 关闭时不导出 go_* 与 process_* 指标.
	RuntimeMetrics bool `mapstructure:"runtime_metrics"`
	Pprof          bool `mapstructure:"pprof"`
	// ConstLabels 附加到 tagstore 自身每个指标上，例如 instance、region.
	ConstLabels map[string]string `mapstructure:"const_labels"`
}

func (c *MetricsConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.endpoint", ":9090")
	v.SetDefault("metrics.runtime_metrics", true)
	v.SetDefault("metrics.pprof", false)
	v.SetDefault("metrics.const_labels", map[string]string{})
}
