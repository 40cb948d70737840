package database

import (
	"testing"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestBuildPostgresDSNDefaults(t *testing.T) {
	dsn, err := buildPostgresDSN(Config{User: "gotchufam", Name: "family"})
	require.NoError(t, err)
	require.Equal(t, "dbname=family host=localhost port=5432 sslmode=disable user=gotchufam", dsn)
}

func TestBuildPostgresDSNParsesBack(t *testing.T) {
	dsn, err := buildPostgresDSN(Config{
		User:     "presence",
		Name:     "gotchufam",
		Host:     "db.internal",
		Port:     6543,
		Password: `it's a secret`,
		Options:  map[string]string{"search_path": "presence"},
	})
	require.NoError(t, err)

	parsed, err := pgconn.ParseConfig(dsn)
	require.NoError(t, err)
	require.Equal(t, "db.internal", parsed.Host)
	require.Equal(t, uint16(6543), parsed.Port)
	require.Equal(t, "presence", parsed.User)
	require.Equal(t, `it's a secret`, parsed.Password)
	require.Equal(t, "gotchufam", parsed.Database)
	require.Equal(t, "presence", parsed.RuntimeParams["search_path"])
	require.Nil(t, parsed.TLSConfig)
}

func TestBuildPostgresDSNRequiresUserAndName(t *testing.T) {
	_, err := buildPostgresDSN(Config{Host: "db.internal"})
	require.Error(t, err)
}

func TestBuildMySQLDSNDefaults(t *testing.T) {
	dsn, err := buildMySQLDSN(Config{User: "gotchufam", Name: "family"})
	require.NoError(t, err)

	parsed, err := mysqldriver.ParseDSN(dsn)
	require.NoError(t, err)
	require.Equal(t, "tcp", parsed.Net)
	require.Equal(t, "127.0.0.1:3306", parsed.Addr)
	require.Equal(t, "family", parsed.DBName)
	require.True(t, parsed.ParseTime)
	require.Equal(t, time.UTC, parsed.Loc)
	require.Contains(t, dsn, "charset=utf8mb4")
}

func TestBuildMySQLDSNParsesBack(t *testing.T) {
	dsn, err := buildMySQLDSN(Config{
		User:     "presence",
		Password: "s3cr@t",
		Name:     "gotchufam",
		Host:     "db.internal",
		Port:     3307,
		Options:  map[string]string{"sql_mode": "TRADITIONAL"},
	})
	require.NoError(t, err)

	parsed, err := mysqldriver.ParseDSN(dsn)
	require.NoError(t, err)
	require.Equal(t, "presence", parsed.User)
	require.Equal(t, "s3cr@t", parsed.Passwd)
	require.Equal(t, "db.internal:3307", parsed.Addr)
	require.Equal(t, "gotchufam", parsed.DBName)
	require.Equal(t, "TRADITIONAL", parsed.Params["sql_mode"])
}

func TestBuildMySQLDSNRequiresUserAndName(t *testing.T) {
	_, err := buildMySQLDSN(Config{Host: "localhost"})
	require.Error(t, err)
}

func TestDSNOverrideWins(t *testing.T) {
	for _, build := range []func(Config) (string, error){buildPostgresDSN, buildMySQLDSN} {
		dsn, err := build(Config{DSN: "verbatim"})
		require.NoError(t, err)
		require.Equal(t, "verbatim", dsn)
	}
}
