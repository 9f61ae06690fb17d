package configs

import (
	"time"

	"github.com/spf13/viper"
)

// MQType 消息队列类型.
type MQType string

const (
	// MQTypeGoChannel 进程内 gochannel，默认选项，无需外部 broker.
	MQTypeGoChannel MQType = "gochannel"
	MQTypeNATS      MQType = "nats"
	MQTypeRedis     MQType = "redis"
)

// MQConfig 消息队列配置. 领域事件（datum/tag/blob 变更）经此发布.
type MQConfig struct {
	Type MQType `mapstructure:"type" rule:"oneof=gochannel nats redis"`
	// TopicPrefix 加在每个事件主题前，多个实例共用一个 broker 时用于隔离.
	TopicPrefix string          `mapstructure:"topic_prefix"`
	Buffer      int64           `mapstructure:"buffer"       rule:"min=0"`
	Metrics     MQMetricsConfig `mapstructure:"metrics"`
	NATS        MQNATSConfig    `mapstructure:"nats"`
	Redis       MQRedisConfig   `mapstructure:"redis"`
}

// MQMetricsConfig watermill 指标，在独立端口暴露.
type MQMetricsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// MQNATSConfig NATS 连接与 JetStream 配置.
type MQNATSConfig struct {
	URLs          []string      `mapstructure:"urls"           rule:"dive,url"`
	Name          string        `mapstructure:"name"`
	User          string        `mapstructure:"user"`
	Password      string        `mapstructure:"password"`
	JWT           string        `mapstructure:"jwt"`
	NKey          string        `mapstructure:"nkey"`
	MaxReconnects int           `mapstructure:"max_reconnects" rule:"min=-1,max=100"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
	PingInterval  time.Duration `mapstructure:"ping_interval"`
	JetStream     bool          `mapstructure:"jetstream"`
	// DurablePrefix JetStream 持久消费者名前缀.
	DurablePrefix string `mapstructure:"durable_prefix"`
}

// MQRedisConfig Redis Pub/Sub 配置.
type MQRedisConfig struct {
	Addr     string `mapstructure:"addr"     rule:"hostname_port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"       rule:"min=0,max=15"`
}

func (c *MQConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("mq.type", MQTypeGoChannel)
	v.SetDefault("mq.topic_prefix", "")
	v.SetDefault("mq.buffer", 256)
	v.SetDefault("mq.metrics.enabled", false)
	v.SetDefault("mq.metrics.endpoint", ":9092")

	v.SetDefault("mq.nats.urls", []string{"nats://localhost:4222"})
	v.SetDefault("mq.nats.name", "tagstore")
	v.SetDefault("mq.nats.max_reconnects", 5)
	v.SetDefault("mq.nats.reconnect_wait", "5s")
	v.SetDefault("mq.nats.ping_interval", "20s")
	v.SetDefault("mq.nats.jetstream", true)
	v.SetDefault("mq.nats.durable_prefix", "tagstore")

	v.SetDefault("mq.redis.addr", "localhost:6379")
	v.SetDefault("mq.redis.db", 0)
}
