package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config represents the runtime configuration for the gotchufam server and CLI.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Presence   PresenceConfig   `mapstructure:"presence"`
	Session    SessionConfig    `mapstructure:"session"`
	PeerJS     PeerJSConfig     `mapstructure:"peerjs"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	RateLimit  RateLimitConfig  `mapstructure:"ratelimit"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	LogLevel          string        `mapstructure:"log_level"`
	LogFormat         string        `mapstructure:"log_format"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver       string        `mapstructure:"driver"`
	Path         string        `mapstructure:"path"`
	DSN          string        `mapstructure:"dsn"`
	Postgres     DBAuthConfig  `mapstructure:"postgres"`
	MySQL        DBAuthConfig  `mapstructure:"mysql"`
	QueryTimeout time.Duration `mapstructure:"query_timeout"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// PresenceConfig controls online status lifetimes and the expiration sweeper.
type PresenceConfig struct {
	OnlineTTL          time.Duration `mapstructure:"online_ttl"`
	UserTTL            time.Duration `mapstructure:"user_ttl"`
	SweepSchedule      string        `mapstructure:"sweep_schedule"`
	AllowUnknownFamily bool          `mapstructure:"allow_unknown_family"`
	MaxFaceIconBytes   int64         `mapstructure:"max_face_icon_bytes"`
}

// SessionConfig configures the signed session cookie.
type SessionConfig struct {
	Secret     string        `mapstructure:"secret"`
	CookieName string        `mapstructure:"cookie_name"`
	MaxAge     time.Duration `mapstructure:"max_age"`
	Secure     bool          `mapstructure:"secure"`
}

// PeerJSConfig addresses the external PeerJS broker used by the call page.
type PeerJSConfig struct {
	Host   string `mapstructure:"host"`
	Port   int    `mapstructure:"port"`
	Path   string `mapstructure:"path"`
	Secure bool   `mapstructure:"secure"`
}

// MonitoringConfig enables health checks and metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// RateLimitConfig bounds the login endpoint.
type RateLimitConfig struct {
	LoginPerMinute int `mapstructure:"login_per_minute"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("GOTCHUFAM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &config, nil
}

// LoadConfigFile reads exactly one configuration file, used by the CLI --config flag.
func LoadConfigFile(file string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(file)

	setDefaults(v)

	v.SetEnvPrefix("GOTCHUFAM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")
	v.SetDefault("server.heartbeat_interval", "15s")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/gotchufam.sqlite")
	v.SetDefault("database.query_timeout", "5s")

	v.SetDefault("presence.online_ttl", "30s")
	v.SetDefault("presence.user_ttl", "2160h") // 90 days
	v.SetDefault("presence.sweep_schedule", "@every 1m")
	v.SetDefault("presence.allow_unknown_family", true)
	v.SetDefault("presence.max_face_icon_bytes", 256*1024)

	v.SetDefault("session.secret", "")
	v.SetDefault("session.cookie_name", "gotchufam")
	v.SetDefault("session.max_age", "720h")
	v.SetDefault("session.secure", false)

	v.SetDefault("peerjs.host", "localhost")
	v.SetDefault("peerjs.port", 9000)
	v.SetDefault("peerjs.path", "/gotchufam-peering")
	v.SetDefault("peerjs.secure", false)

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")

	v.SetDefault("ratelimit.login_per_minute", 30)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
