package middleware

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
)

// SecurityHeaders applies common HTTP response headers that harden the pages against
// clickjacking, MIME sniffing and basic XSS. peerOrigins are appended to connect-src so
// the call page can reach the PeerJS broker.
func SecurityHeaders(peerOrigins ...string) gin.HandlerFunc {
	csp := ContentSecurityPolicy(peerOrigins...)
	return func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Content-Security-Policy", csp)
		c.Header("Referrer-Policy", "same-origin")
		c.Header("Permissions-Policy", "geolocation=(), microphone=(self), camera=(self)")
		c.Next()
	}
}

// ContentSecurityPolicy builds the policy served with every response.
func ContentSecurityPolicy(peerOrigins ...string) string {
	connect := []string{"'self'"}
	for _, origin := range peerOrigins {
		if origin = strings.TrimSpace(origin); origin != "" {
			connect = append(connect, origin)
		}
	}
	return fmt.Sprintf("default-src 'self'; script-src 'self' https://unpkg.com; img-src 'self' data: blob:; media-src 'self' blob: mediastream:; connect-src %s",
		strings.Join(connect, " "))
}
