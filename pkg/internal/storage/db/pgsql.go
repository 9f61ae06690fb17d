//go:build !no_postgres

package db

import (
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/yeisme/tagstore/pkg/configs"
)

// pgQuote 按 libpq keyword/value 语法转义.
func pgQuote(s string) string {
	return "'" + strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s) + "'"
}

func postgresDSN(cfg *configs.DBConfig) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		pgQuote(cfg.Host), cfg.Port, pgQuote(cfg.User), pgQuote(cfg.Password), pgQuote(cfg.Database), pgQuote(cfg.SSLMode))
}

func init() {
	RegisterDialectorFactory(configs.Postgres, func(cfg *configs.DBConfig) gorm.Dialector {
		return postgres.New(postgres.Config{DSN: postgresDSN(cfg)})
	})
}
