package configs

import (
	"time"

	"github.com/spf13/viper"
)

// ServerConfig HTTP 服务.
type ServerConfig struct {
	Port int    `mapstructure:"port" rule:"min=1,max=65535"`
	Host string `mapstructure:"host" rule:"ip"`
	// ReloadConfig 配置文件变化时重新加载；监听地址与存储后端的改动仍需重启.
	ReloadConfig bool `mapstructure:"reload_config"`
	Debug        bool `mapstructure:"debug"`
	// ReadHeaderTimeout 读取请求头的时限. 上传与打包下载的 body 不受限.
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	// PublicURL 对外的根地址，用于生成 blob 的 uri；为空时取请求的 scheme 与 host.
	PublicURL   string `mapstructure:"public_url"    rule:"omitempty,url"`
	MaxUploadMB int64  `mapstructure:"max_upload_mb" rule:"min=1"`
}

// MaxUploadBytes 单次上传的字节上限.
func (s *ServerConfig) MaxUploadBytes() int64 {
	return s.MaxUploadMB << 20
}

func (s *ServerConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.reload_config", true)
	v.SetDefault("server.debug", false)
	v.SetDefault("server.read_header_timeout", "30s")
	v.SetDefault("server.public_url", "")
	v.SetDefault("server.max_upload_mb", 512)
}
