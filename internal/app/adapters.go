package app

import (
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/charlesng35/gotchufam/internal/database"
	"github.com/charlesng35/gotchufam/internal/services"
)

const (
	defaultOnlineTTL    = 30 * time.Second
	defaultUserTTL      = 90 * 24 * time.Hour
	defaultQueryTimeout = 5 * time.Second
)

// ConnectionConfig converts DatabaseConfig into the parameters expected by database.Open.
func (c DatabaseConfig) ConnectionConfig() database.Config {
	driver := strings.ToLower(strings.TrimSpace(c.Driver))
	cfg := database.Config{
		Driver: driver,
		Path:   c.Path,
		DSN:    c.DSN,
	}

	var auth DBAuthConfig
	switch driver {
	case "postgres", "postgresql":
		auth = c.Postgres
	case "mysql":
		auth = c.MySQL
	default:
		return cfg
	}

	cfg.Host = auth.Host
	cfg.Port = auth.Port
	cfg.Name = auth.Database
	cfg.User = auth.Username
	cfg.Password = auth.Password
	return cfg
}

// Timeout returns the per-request storage deadline, defaulting to five seconds.
func (c DatabaseConfig) Timeout() time.Duration {
	if c.QueryTimeout <= 0 {
		return defaultQueryTimeout
	}
	return c.QueryTimeout
}

// IdentityOptions converts PresenceConfig into IdentityService options.
func (c PresenceConfig) IdentityOptions() []services.IdentityOption {
	ttl := c.OnlineTTL
	if ttl <= 0 {
		ttl = defaultOnlineTTL
	}
	return []services.IdentityOption{
		services.WithOnlineTTL(ttl),
		services.WithAllowUnknownFamily(c.AllowUnknownFamily),
	}
}

// PresenceOptions converts PresenceConfig into PresenceService options.
func (c PresenceConfig) PresenceOptions() []services.PresenceOption {
	online := c.OnlineTTL
	if online <= 0 {
		online = defaultOnlineTTL
	}
	user := c.UserTTL
	if user <= 0 {
		user = defaultUserTTL
	}
	return []services.PresenceOption{
		services.WithPresenceTTL(online, user),
	}
}

// Origins lists the broker addresses the call page may connect to, for use in the
// Content-Security-Policy connect-src directive.
func (c PeerJSConfig) Origins() []string {
	host := strings.TrimSpace(c.Host)
	if host == "" {
		return nil
	}
	if c.Port > 0 {
		host = net.JoinHostPort(host, strconv.Itoa(c.Port))
	}
	if c.Secure {
		return []string{"https://" + host, "wss://" + host}
	}
	return []string{"http://" + host, "ws://" + host}
}
