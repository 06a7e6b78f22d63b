package db

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/smallbiznis/invoicecore/internal/config"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Dialect returns the gorm dialector for postgres or sqlite. The schema relies
// on jsonb columns and ON CONFLICT inserts, so other engines are rejected.
func Dialect(cfg config.Config) (gorm.Dialector, error) {
	dsn, err := DSN(cfg)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(strings.TrimSpace(cfg.DBType)) {
	case "postgres":
		return postgres.Open(dsn), nil
	default:
		return sqlite.Open(dsn), nil
	}
}

// DSN builds the connection string for the configured dialect. Every dialect
// runs in UTC so due dates and sweep cutoffs compare consistently.
func DSN(cfg config.Config) (string, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.DBType)) {
	case "postgres":
		return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
			cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort, cfg.DBSSLMode), nil
	case "sqlite":
		path := strings.TrimSpace(cfg.DBPath)
		if path == "" {
			return "", fmt.Errorf("sqlite requires DATABASE_PATH")
		}
		// Payments cascade from sessions, so foreign keys must be enforced.
		q := url.Values{}
		q.Set("_foreign_keys", "1")
		q.Set("_busy_timeout", "5000")
		q.Set("_journal_mode", "WAL")
		return "file:" + path + "?" + q.Encode(), nil
	default:
		return "", fmt.Errorf("unsupported database type %q", cfg.DBType)
	}
}
