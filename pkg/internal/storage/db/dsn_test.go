package db

import (
	"strings"
	"testing"

	driver "github.com/go-sql-driver/mysql"

	"github.com/yeisme/tagstore/pkg/configs"
)

func TestMySQLDSNEscapesPassword(t *testing.T) {
	cfg := &configs.DBConfig{Type: configs.MariaDB, Host: "db", Port: 3306, User: "u", Password: "p@ss/w:rd", Database: "tags"}

	parsed, err := driver.ParseDSN(mysqlDSN(cfg))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if parsed.Passwd != cfg.Password || parsed.Addr != "db:3306" || parsed.DBName != "tags" || !parsed.ParseTime {
		t.Fatalf("parsed = %+v", parsed)
	}
}

func TestPostgresDSNQuotes(t *testing.T) {
	cfg := &configs.DBConfig{Host: "h", Port: 5432, User: "u", Password: `it's`, Database: "d", SSLMode: "disable"}

	dsn := postgresDSN(cfg)
	if !strings.Contains(dsn, `password='it\'s'`) || !strings.Contains(dsn, "TimeZone=UTC") {
		t.Fatalf("dsn = %s", dsn)
	}
}

func TestSQLitePath(t *testing.T) {
	cases := map[string]string{
		"tagstore":          "file:tagstore.db",
		"data/x.db":         "file:data/x.db",
		":memory:":          ":memory:",
		"file::memory:":     "file::memory:",
		"file:a.db?mode=ro": "file:a.db?mode=ro",
	}

	for in, want := range cases {
		if got := sqlitePath(&configs.DBConfig{Database: in}); got != want {
			t.Errorf("sqlitePath(%q) = %q, want %q", in, got, want)
		}
	}

	if got := withParams("file:a.db?mode=ro", "x=1"); got != "file:a.db?mode=ro&x=1" {
		t.Errorf("withParams = %q", got)
	}
}

func TestDialectAliases(t *testing.T) {
	for typ, want := range map[configs.DBType]configs.DBType{
		configs.PostgreSQL: configs.Postgres,
		configs.Pg:         configs.Postgres,
		configs.MariaDB:    configs.MySQL,
		configs.SQLite:     configs.SQLite,
	} {
		cfg := configs.DBConfig{Type: typ}
		if got := cfg.Dialect(); got != want {
			t.Errorf("%s: dialect %s, want %s", typ, got, want)
		}
	}
}
