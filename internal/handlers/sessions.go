package handlers

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"

	"github.com/charlesng35/gotchufam/internal/auth"
)

// SessionCookies loads and persists the signed session cookie for a request.
type SessionCookies struct {
	store sessions.Store
	name  string
}

// NewSessionCookies binds a cookie store to the cookie name used by the server.
func NewSessionCookies(store sessions.Store, name string) (*SessionCookies, error) {
	if store == nil {
		return nil, fmt.Errorf("session store must be provided")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = auth.DefaultCookieName
	}
	return &SessionCookies{store: store, name: name}, nil
}

// Load returns the request's session. Tampered or stale cookies yield a fresh session.
func (s *SessionCookies) Load(c *gin.Context) (*auth.CookieSession, error) {
	return auth.LoadCookieSession(s.store, c.Request, s.name)
}

// Save writes the session back as a Set-Cookie header.
func (s *SessionCookies) Save(c *gin.Context, sess *auth.CookieSession) error {
	return sess.Save(c.Request, c.Writer)
}
