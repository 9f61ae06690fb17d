package configs

import "github.com/spf13/viper"

// EventsConfig 控制领域事件发布的开关（全局与分主题）。
type EventsConfig struct {
	Enabled bool              `mapstructure:"enabled"` // 总开关
	Datum   DatumEventsConfig `mapstructure:"datum"`
	Tag     TagEventsConfig   `mapstructure:"tag"`
	Blob    BlobEventsConfig  `mapstructure:"blob"`
}

// DatumEventsConfig Datum 记录的事件开关。
type DatumEventsConfig struct {
	Created bool `mapstructure:"created"`
	Updated bool `mapstructure:"updated"`
	Deleted bool `mapstructure:"deleted"`
}

// TagEventsConfig Tag 的事件开关。
type TagEventsConfig struct {
	Renamed bool `mapstructure:"renamed"`
	Merged  bool `mapstructure:"merged"`
	Deleted bool `mapstructure:"deleted"`
	Swapped bool `mapstructure:"swapped"`
}

// BlobEventsConfig Blob 的事件开关。
type BlobEventsConfig struct {
	Stored    bool `mapstructure:"stored"`
	Deleted   bool `mapstructure:"deleted"`
	Collected bool `mapstructure:"collected"`
}

func (c *EventsConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("events.enabled", true)

	v.SetDefault("events.datum.created", true)
	v.SetDefault("events.datum.updated", true)
	v.SetDefault("events.datum.deleted", true)

	v.SetDefault("events.tag.renamed", true)
	v.SetDefault("events.tag.merged", true)
	v.SetDefault("events.tag.deleted", true)
	v.SetDefault("events.tag.swapped", true)

	// 上传量大时 stored 事件噪声较多，默认关闭
	v.SetDefault("events.blob.stored", false)
	v.SetDefault("events.blob.deleted", true)
	v.SetDefault("events.blob.collected", true)
}
