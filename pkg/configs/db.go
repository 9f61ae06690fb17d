package configs

import (
	"github.com/spf13/viper"
)

// DBType 数据库类型. postgresql、pg 与 mariadb 是别名，见 Dialect.
type DBType string

const (
	Postgres DBType = "postgres"
	MySQL    DBType = "mysql"
	SQLite   DBType = "sqlite"

	PostgreSQL DBType = "postgresql"
	Pg         DBType = "pg"
	MariaDB    DBType = "mariadb"
)

// DBConfig 数据库配置. 单机部署默认使用 sqlite 文件库 tagstore.db.
type DBConfig struct {
	Type     DBType `mapstructure:"type"     rule:"oneof=postgresql postgres pg mysql mariadb sqlite"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"     rule:"min=0,max=65535"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	// Database 库名；sqlite 下为文件路径（不含 .db 时自动补全），也可以是 :memory: 或 file: URI.
	Database string `mapstructure:"database" rule:"required"`
	SSLMode  string `mapstructure:"sslmode"`
	// BusyTimeout sqlite 等待写锁的毫秒数.
	BusyTimeout  int `mapstructure:"busy_timeout"   rule:"min=0"`
	MaxOpenConns int `mapstructure:"max_open_conns" rule:"min=0"`
	MaxIdleConns int `mapstructure:"max_idle_conns" rule:"min=0"`
	// LogLevel gorm 日志级别.
	LogLevel string `mapstructure:"log_level" rule:"oneof=silent error warn info"`
}

// Dialect 把别名归一为 postgres、mysql 或 sqlite.
func (c *DBConfig) Dialect() DBType {
	switch c.Type {
	case PostgreSQL, Pg:
		return Postgres
	case MariaDB:
		return MySQL
	default:
		return c.Type
	}
}

func (c *DBConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("db.type", SQLite)
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "")
	v.SetDefault("db.database", "tagstore")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.busy_timeout", 5000)
	v.SetDefault("db.max_open_conns", 0)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.log_level", "warn")
}
