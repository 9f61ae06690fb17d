//go:build !no_sqlite && cgo

package db

import (
	"strconv"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/yeisme/tagstore/pkg/configs"
)

// mattn/go-sqlite3 的参数以下划线开头.
func init() {
	RegisterDialectorFactory(configs.SQLite, func(cfg *configs.DBConfig) gorm.Dialector {
		dsn := sqlitePath(cfg)
		if dsn != ":memory:" {
			dsn = withParams(dsn, "_busy_timeout="+strconv.Itoa(cfg.BusyTimeout), "_journal_mode=WAL")
		}

		return sqlite.Open(dsn)
	})
}
