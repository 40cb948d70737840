package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/gotchufam/internal/auth"
	"github.com/charlesng35/gotchufam/internal/models"
	"github.com/charlesng35/gotchufam/internal/services"
	appErrors "github.com/charlesng35/gotchufam/pkg/errors"
	"github.com/charlesng35/gotchufam/pkg/logger"
)

const (
	// APIRoot is the prefix of the programmatic API, handed to pages for their scripts.
	APIRoot = "/api/v1/"

	defaultNext = "/video"
)

// PeerJSSettings addresses the PeerJS broker the call page connects to.
type PeerJSSettings struct {
	Host   string
	Port   int
	Path   string
	Secure bool
}

// PageSettings carries the values rendered into every page.
type PageSettings struct {
	HeartbeatInterval time.Duration
	PeerJS            PeerJSSettings
	QueryTimeout      time.Duration
}

// PagesHandler serves the browser-facing HTML routes.
type PagesHandler struct {
	identity *services.IdentityService
	families *services.FamilyService
	binder   *auth.SessionBinder
	cookies  *SessionCookies
	settings PageSettings
	log      *zap.Logger
}

type loginForm struct {
	FamilyID    string `form:"family-id"`
	DisplayName string `form:"display-name" validate:"required,max=64"`
}

// NewPagesHandler constructs the HTML handler set.
func NewPagesHandler(identity *services.IdentityService, families *services.FamilyService, binder *auth.SessionBinder, cookies *SessionCookies, settings PageSettings) (*PagesHandler, error) {
	if identity == nil || families == nil || binder == nil || cookies == nil {
		return nil, fmt.Errorf("pages handler: identity, families, binder and cookies are required")
	}
	if settings.HeartbeatInterval <= 0 {
		settings.HeartbeatInterval = 15 * time.Second
	}
	return &PagesHandler{
		identity: identity,
		families: families,
		binder:   binder,
		cookies:  cookies,
		settings: settings,
		log:      logger.WithModule("pages"),
	}, nil
}

// Home GET /
func (h *PagesHandler) Home(c *gin.Context) {
	c.HTML(http.StatusOK, "home.html", gin.H{"Title": "Welcome"})
}

// LoginForm GET /login
func (h *PagesHandler) LoginForm(c *gin.Context) {
	h.renderLogin(c, http.StatusOK, c.Query("family"), "", "")
}

// Login POST /login
func (h *PagesHandler) Login(c *gin.Context) {
	var form loginForm
	if appErr := bindForm(c, &form); appErr != nil {
		h.renderLogin(c, http.StatusBadRequest, form.FamilyID, form.DisplayName, appErr.Message)
		return
	}

	sess, err := h.cookies.Load(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	ctx, cancel := storageContext(c, h.settings.QueryTimeout)
	defer cancel()

	user, err := h.identity.Login(ctx, sess, form.FamilyID, form.DisplayName)
	if err != nil {
		var appErr *appErrors.AppError
		if errors.As(err, &appErr) && appErr.StatusCode < http.StatusInternalServerError {
			h.renderLogin(c, appErr.StatusCode, form.FamilyID, form.DisplayName, appErr.Message)
			return
		}
		h.fail(c, err)
		return
	}

	if err := h.cookies.Save(c, sess); err != nil {
		h.fail(c, err)
		return
	}

	h.log.Info("user logged in",
		zap.String("user_id", user.ID),
		zap.String("display_name", user.DisplayName),
		zap.Bool("family", user.HasFamily()),
	)
	c.Redirect(http.StatusSeeOther, safeNext(c.Query("next")))
}

// Logout GET /logout
func (h *PagesHandler) Logout(c *gin.Context) {
	sess, err := h.cookies.Load(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.binder.Unbind(sess)
	if err := h.cookies.Save(c, sess); err != nil {
		h.fail(c, err)
		return
	}
	c.Redirect(http.StatusSeeOther, "/login")
}

// Video GET /video
func (h *PagesHandler) Video(c *gin.Context) {
	user, ok := h.requireUser(c)
	if !ok {
		return
	}
	c.HTML(http.StatusOK, "video.html", gin.H{
		"Title":       "Call",
		"User":        user,
		"APIRoot":     APIRoot,
		"HeartbeatMS": h.settings.HeartbeatInterval.Milliseconds(),
		"PeerJS":      h.settings.PeerJS,
	})
}

// Whoami GET /whoami
func (h *PagesHandler) Whoami(c *gin.Context) {
	user, ok := h.requireUser(c)
	if !ok {
		return
	}

	var family *models.Family
	if user.HasFamily() {
		ctx, cancel := storageContext(c, h.settings.QueryTimeout)
		defer cancel()

		found, err := h.families.Get(ctx, *user.FamilyID)
		switch {
		case err == nil:
			family = found
		case errors.Is(err, appErrors.ErrNotFound):
		default:
			h.fail(c, err)
			return
		}
	}

	c.HTML(http.StatusOK, "whoami.html", gin.H{
		"Title":   user.DisplayName,
		"User":    user,
		"Family":  family,
		"APIRoot": APIRoot,
	})
}

// requireUser resolves the session user or redirects to the login page. The boolean is
// false when a response has already been written.
func (h *PagesHandler) requireUser(c *gin.Context) (*models.User, bool) {
	sess, err := h.cookies.Load(c)
	if err != nil {
		h.fail(c, err)
		return nil, false
	}

	ctx, cancel := storageContext(c, h.settings.QueryTimeout)
	defer cancel()

	authz, err := h.binder.CurrentUser(ctx, sess)
	if err != nil {
		h.fail(c, err)
		return nil, false
	}
	if !authz.Authenticated() {
		// CurrentUser may have cleared a stale binding.
		if err := h.cookies.Save(c, sess); err != nil {
			h.fail(c, err)
			return nil, false
		}
		c.Redirect(http.StatusSeeOther, "/login?next="+url.QueryEscape(c.Request.URL.RequestURI()))
		return nil, false
	}
	return authz.User, true
}

func (h *PagesHandler) renderLogin(c *gin.Context, status int, familyID, displayName, message string) {
	c.HTML(status, "login.html", gin.H{
		"Title":       "Log in",
		"Error":       message,
		"Next":        c.Query("next"),
		"FamilyID":    familyID,
		"DisplayName": displayName,
	})
}

func (h *PagesHandler) fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.String(http.StatusInternalServerError, appErrors.ErrInternalServer.Message)
}

// safeNext keeps post-login redirects on this site.
func safeNext(next string) string {
	next = strings.TrimSpace(next)
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.Contains(next, `\`) {
		return defaultNext
	}
	parsed, err := url.Parse(next)
	if err != nil || parsed.Scheme != "" || parsed.Host != "" {
		return defaultNext
	}
	return next
}
