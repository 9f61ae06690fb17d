//go:build !no_mysql

package db

import (
	"fmt"
	"time"

	driver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/yeisme/tagstore/pkg/configs"
)

func mysqlDSN(cfg *configs.DBConfig) string {
	dc := driver.NewConfig()
	dc.User = cfg.User
	dc.Passwd = cfg.Password
	dc.Net = "tcp"
	dc.Addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	dc.DBName = cfg.Database
	dc.ParseTime = true
	dc.Loc = time.UTC
	// uri 与 tag 需要完整的 unicode
	dc.Params = map[string]string{"charset": "utf8mb4"}

	return dc.FormatDSN()
}

func init() {
	RegisterDialectorFactory(configs.MySQL, func(cfg *configs.DBConfig) gorm.Dialector {
		dsn := mysqlDSN(cfg)
		// uri 上有唯一索引，varchar(191) 在 utf8mb4 下不超过索引长度上限
		return mysql.New(mysql.Config{DSN: dsn, DefaultStringSize: 191})
	})
}
