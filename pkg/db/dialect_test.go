package db

import (
	"testing"

	"github.com/smallbiznis/invoicecore/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDSN(t *testing.T) {
	pg, err := DSN(config.Config{
		DBType: "postgres", DBHost: "db", DBUser: "app", DBPassword: "pw",
		DBName: "invoicecore", DBPort: "5432", DBSSLMode: "disable",
	})
	require.NoError(t, err)
	assert.Equal(t, "host=db user=app password=pw dbname=invoicecore port=5432 sslmode=disable TimeZone=UTC", pg)

	pgUpper, err := DSN(config.Config{DBType: " Postgres ", DBHost: "db", DBUser: "app", DBPassword: "pw", DBName: "inv", DBPort: "5432", DBSSLMode: "require"})
	require.NoError(t, err)
	assert.Equal(t, "host=db user=app password=pw dbname=inv port=5432 sslmode=require TimeZone=UTC", pgUpper)

	lite, err := DSN(config.Config{DBType: "sqlite", DBPath: "invoicecore.db"})
	require.NoError(t, err)
	assert.Equal(t, "file:invoicecore.db?_busy_timeout=5000&_foreign_keys=1&_journal_mode=WAL", lite)

	_, err = DSN(config.Config{DBType: "sqlite"})
	assert.Error(t, err)
	_, err = DSN(config.Config{DBType: "oracle"})
	assert.Error(t, err)

	_, err = Dialect(config.Config{DBType: "oracle"})
	assert.Error(t, err)
}

func TestDialectRejectsMySQL(t *testing.T) {
	_, err := DSN(config.Config{DBType: "mysql", DBHost: "db", DBUser: "app", DBPassword: "pw", DBName: "inv", DBPort: "3306"})
	assert.Error(t, err)

	dialector, err := Dialect(config.Config{DBType: "MySQL", DBHost: "db", DBUser: "app", DBPassword: "pw", DBName: "inv", DBPort: "3306"})
	assert.Error(t, err)
	assert.Nil(t, dialector)
}
