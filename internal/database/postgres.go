package database

import (
	"errors"
	"sort"
	"strconv"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const defaultPostgresPort = 5432

func openPostgres(cfg Config) (*gorm.DB, error) {
	dsn, err := buildPostgresDSN(cfg)
	if err != nil {
		return nil, err
	}
	return gorm.Open(postgres.Open(dsn), gormConfig())
}

// buildPostgresDSN renders a libpq keyword/value string with keys in sorted order.
// Options override the derived settings.
func buildPostgresDSN(cfg Config) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	if cfg.User == "" || cfg.Name == "" {
		return "", errors.New("postgres configuration requires user and database name")
	}

	settings := map[string]string{
		"host":    cfg.Host,
		"port":    strconv.Itoa(cfg.Port),
		"user":    cfg.User,
		"dbname":  cfg.Name,
		"sslmode": "disable",
	}
	if cfg.Host == "" {
		settings["host"] = "localhost"
	}
	if cfg.Port == 0 {
		settings["port"] = strconv.Itoa(defaultPostgresPort)
	}
	if cfg.Password != "" {
		settings["password"] = cfg.Password
	}
	for key, value := range cfg.Options {
		settings[key] = value
	}

	keys := make([]string, 0, len(settings))
	for key := range settings {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, key+"="+quotePostgresValue(settings[key]))
	}
	return strings.Join(pairs, " "), nil
}

var postgresEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

// quotePostgresValue quotes values libpq would otherwise split or misread.
func quotePostgresValue(value string) string {
	if value != "" && !strings.ContainsAny(value, " \t\n'\\") {
		return value
	}
	return "'" + postgresEscaper.Replace(value) + "'"
}
