package utils

import (
	"fmt"

	"github.com/go-sql-driver/mysql"
)

// MySQLDSN builds a DSN from the MYSQL_* keys. The second return value is false
// when MYSQL_DATABASE is unset and callers should fall back to a local store
func MySQLDSN(cfg *Config) (string, bool) {
	dbConfig := mysql.Config{
		User:                 cfg.Get("MYSQL_USER"),
		Passwd:               cfg.Get("MYSQL_ROOT_PASSWORD"),
		Net:                  "tcp",
		Addr:                 fmt.Sprintf("%s:%s", cfg.GetWithDefault("MYSQL_HOST", "127.0.0.1"), cfg.GetWithDefault("MYSQL_PORT", "3306")),
		DBName:               cfg.Get("MYSQL_DATABASE"),
		ParseTime:            true,
		AllowNativePasswords: true,
	}

	if dbConfig.DBName == "" {
		return "", false
	}
	return dbConfig.FormatDSN(), true
}
