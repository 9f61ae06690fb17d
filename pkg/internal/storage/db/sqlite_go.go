//go:build !no_sqlite && !cgo

package db

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/yeisme/tagstore/pkg/configs"
)

// 纯 Go 驱动（modernc）用 _pragma 设置 PRAGMA.
func init() {
	RegisterDialectorFactory(configs.SQLite, func(cfg *configs.DBConfig) gorm.Dialector {
		dsn := sqlitePath(cfg)
		if dsn != ":memory:" {
			dsn = withParams(dsn, fmt.Sprintf("_pragma=busy_timeout(%d)", cfg.BusyTimeout), "_pragma=journal_mode(WAL)")
		}

		return sqlite.Open(dsn)
	})
}
