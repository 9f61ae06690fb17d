package configs

import (
	"github.com/spf13/viper"
)

// LogConfig 日志. 控制台总是输出到 stderr；File.Enabled 时另写一份 JSON 到轮转文件.
type LogConfig struct {
	Level string `mapstructure:"level"  rule:"oneof=trace debug info warn error"`
	// Format console 为人读格式，json 为逐行 JSON，适合容器日志采集.
	Format string        `mapstructure:"format" rule:"oneof=console json"`
	File   LogFileConfig `mapstructure:"file"`
}

// LogFileConfig lumberjack 轮转参数.
type LogFileConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"  rule:"min=0"`
	MaxBackups int    `mapstructure:"max_backups"  rule:"min=0"`
	MaxAgeDays int    `mapstructure:"max_age_days" rule:"min=0"`
	Compress   bool   `mapstructure:"compress"`
}

func (l *LogConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file.enabled", false)
	v.SetDefault("log.file.path", "logs/tagstore.log")
	v.SetDefault("log.file.max_size_mb", 100)
	v.SetDefault("log.file.max_backups", 7)
	v.SetDefault("log.file.max_age_days", 28)
	v.SetDefault("log.file.compress", true)
}
