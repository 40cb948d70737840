package auth

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"

	"github.com/charlesng35/gotchufam/pkg/crypto"
)

const (
	// DefaultCookieName names the session cookie when none is configured.
	DefaultCookieName = "gotchufam"
	// DefaultCookieMaxAge bounds the lifetime of the session cookie.
	DefaultCookieMaxAge = 30 * 24 * time.Hour

	sessionUserKey = "id"
)

// Session is the per-client state that remembers which user a browser is bound to.
type Session interface {
	UserID() (string, bool)
	Bind(userID string)
	Unbind()
}

// StoreConfig describes the signed cookie store.
type StoreConfig struct {
	Secret string
	MaxAge time.Duration
	Secure bool
}

// NewCookieStore builds an authenticated and encrypted cookie store whose keys are
// derived from the configured secret.
func NewCookieStore(cfg StoreConfig) (*sessions.CookieStore, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errors.New("session store: secret is required")
	}

	keys, err := crypto.DeriveCookieKeys([]byte(secret))
	if err != nil {
		return nil, err
	}

	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = DefaultCookieMaxAge
	}

	store := sessions.NewCookieStore(keys.Hash, keys.Block)
	store.Options = &sessions.Options{
		Path:     "/",
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(maxAge.Seconds()),
	}
	store.MaxAge(store.Options.MaxAge)
	return store, nil
}

// LoadCookieSession fetches the named session from the request. A cookie that fails
// verification (tampered, or signed with a rotated secret) yields a fresh, unbound session.
func LoadCookieSession(store sessions.Store, r *http.Request, name string) (*CookieSession, error) {
	if name == "" {
		name = DefaultCookieName
	}
	raw, err := store.Get(r, name)
	if err != nil && !isDecodeError(err) {
		return nil, err
	}
	if raw == nil {
		raw = sessions.NewSession(store, name)
	}
	return &CookieSession{raw: raw}, nil
}

func isDecodeError(err error) bool {
	var cookieErr securecookie.Error
	if errors.As(err, &cookieErr) {
		return cookieErr.IsDecode()
	}
	return false
}

// CookieSession adapts a gorilla session. Callers persist it with Save.
type CookieSession struct {
	raw *sessions.Session
}

// NewCookieSession wraps an already loaded gorilla session.
func NewCookieSession(raw *sessions.Session) *CookieSession {
	return &CookieSession{raw: raw}
}

func (s *CookieSession) UserID() (string, bool) {
	id, ok := s.raw.Values[sessionUserKey].(string)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

func (s *CookieSession) Bind(userID string) {
	s.raw.Values[sessionUserKey] = userID
}

func (s *CookieSession) Unbind() {
	delete(s.raw.Values, sessionUserKey)
}

// Save writes the cookie to the response.
func (s *CookieSession) Save(r *http.Request, w http.ResponseWriter) error {
	return s.raw.Save(r, w)
}

// MemorySession keeps the binding in process memory.
type MemorySession struct {
	mu     sync.Mutex
	userID string
}

// NewMemorySession returns an unbound in-memory session.
func NewMemorySession() *MemorySession {
	return &MemorySession{}
}

func (s *MemorySession) UserID() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID, s.userID != ""
}

func (s *MemorySession) Bind(userID string) {
	s.mu.Lock()
	s.userID = userID
	s.mu.Unlock()
}

func (s *MemorySession) Unbind() {
	s.Bind("")
}
