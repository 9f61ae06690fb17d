//go:build !no_sqlite

package db

import (
	"strings"

	"github.com/yeisme/tagstore/pkg/configs"
)

// sqlitePath 把 database 配置转成 sqlite 可识别的文件名或 URI.
func sqlitePath(cfg *configs.DBConfig) string {
	name := cfg.Database

	switch {
	case name == ":memory:", strings.HasPrefix(name, "file:"):
		return name
	case !strings.HasSuffix(name, ".db"):
		name += ".db"
	}

	return "file:" + name
}

// withParams 在 dsn 上追加查询参数.
func withParams(dsn string, params ...string) string {
	if len(params) == 0 {
		return dsn
	}

	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}

	return dsn + sep + strings.Join(params, "&")
}
