package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteDSNDefaultsToSharedMemory(t *testing.T) {
	dsn, err := sqliteDSN(Config{})
	require.NoError(t, err)
	assert.Equal(t, "file::memory:?cache=shared&_foreign_keys=1", dsn)
}

func TestMySQLDSN(t *testing.T) {
	dsn, err := mysqlDSN(Config{
		User:     "accounts",
		Password: "secret",
		Name:     "accounts",
		Options:  map[string]string{"loc": "UTC", "tls": "true"},
	})
	require.NoError(t, err)
	assert.Equal(t, "accounts:secret@tcp(127.0.0.1:3306)/accounts?charset=utf8mb4&loc=UTC&parseTime=True&tls=true", dsn)
}

func TestMySQLDSNRequiresUserAndName(t *testing.T) {
	_, err := mysqlDSN(Config{Name: "accounts"})
	require.Error(t, err)
}

func TestPostgresDSN(t *testing.T) {
	dsn, err := postgresDSN(Config{Host: "db.internal", User: "accounts", Name: "accounts"})
	require.NoError(t, err)
	assert.Equal(t, "host=db.internal port=5432 user=accounts dbname=accounts sslmode=disable", dsn)
}

func TestDSNOverrideWinsEverywhere(t *testing.T) {
	for _, build := range []func(Config) (string, error){sqliteDSN, mysqlDSN, postgresDSN} {
		dsn, err := build(Config{DSN: "custom-dsn"})
		require.NoError(t, err)
		assert.Equal(t, "custom-dsn", dsn)
	}
}
