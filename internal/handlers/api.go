package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/gotchufam/internal/auth"
	"github.com/charlesng35/gotchufam/internal/models"
	"github.com/charlesng35/gotchufam/internal/realtime"
	"github.com/charlesng35/gotchufam/internal/services"
	appErrors "github.com/charlesng35/gotchufam/pkg/errors"
	"github.com/charlesng35/gotchufam/pkg/logger"
	"github.com/charlesng35/gotchufam/pkg/response"
)

const (
	defaultMaxFaceIcon = 256 << 10
	multipartOverhead  = 64 << 10
)

// APISettings tunes the programmatic API.
type APISettings struct {
	MaxFaceIconBytes int64
	QueryTimeout     time.Duration
}

// APIHandler serves the JSON endpoints polled by the call page.
type APIHandler struct {
	presence *services.PresenceService
	families *services.FamilyService
	binder   *auth.SessionBinder
	cookies  *SessionCookies
	hub      *realtime.Hub
	settings APISettings
	log      *zap.Logger
}

// NewAPIHandler constructs the API handler set.
func NewAPIHandler(presence *services.PresenceService, families *services.FamilyService, binder *auth.SessionBinder, cookies *SessionCookies, hub *realtime.Hub, settings APISettings) (*APIHandler, error) {
	if presence == nil || families == nil || binder == nil || cookies == nil || hub == nil {
		return nil, fmt.Errorf("api handler: presence, families, binder, cookies and hub are required")
	}
	if settings.MaxFaceIconBytes <= 0 {
		settings.MaxFaceIconBytes = defaultMaxFaceIcon
	}
	return &APIHandler{
		presence: presence,
		families: families,
		binder:   binder,
		cookies:  cookies,
		hub:      hub,
		settings: settings,
		log:      logger.WithModule("api"),
	}, nil
}

// Root GET /api/v1/
func (h *APIHandler) Root(c *gin.Context) {
	response.OK(c, nil)
}

// Heartbeat POST /api/v1/heartbeat
func (h *APIHandler) Heartbeat(c *gin.Context) {
	user, ok := h.requireUser(c)
	if !ok {
		return
	}

	ctx, cancel := storageContext(c, h.settings.QueryTimeout)
	defer cancel()

	online, err := h.presence.Heartbeat(ctx, user, c.PostForm("client_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"online": online})
}

// Logout GET|POST /api/v1/logout
//
// The session is cleared even when it was not bound, so the call always succeeds.
func (h *APIHandler) Logout(c *gin.Context) {
	sess, err := h.cookies.Load(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	clientID := c.Query("client_id")
	if clientID == "" {
		clientID = c.PostForm("client_id")
	}

	if userID, bound := sess.UserID(); bound && clientID != "" {
		ctx, cancel := storageContext(c, h.settings.QueryTimeout)
		defer cancel()

		if err := h.presence.LogoutClient(ctx, userID, clientID); err != nil {
			response.Error(c, err)
			return
		}
	}

	h.binder.Unbind(sess)
	if err := h.cookies.Save(c, sess); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, nil)
}

// Whoswho GET /api/v1/whoswho
func (h *APIHandler) Whoswho(c *gin.Context) {
	user, ok := h.requireUser(c)
	if !ok {
		return
	}

	ctx, cancel := storageContext(c, h.settings.QueryTimeout)
	defer cancel()

	roster, err := h.families.Roster(ctx, user.FamilyKey)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"family": roster})
}

// FaceIcon POST /api/v1/face_icon
func (h *APIHandler) FaceIcon(c *gin.Context) {
	user, ok := h.requireUser(c)
	if !ok {
		return
	}

	limit := h.settings.MaxFaceIconBytes
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+multipartOverhead)

	file, header, err := c.Request.FormFile("face_icon")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(c, appErrors.ErrPayloadTooLarge)
			return
		}
		response.Error(c, appErrors.NewBadRequest("face_icon file is required"))
		return
	}
	defer file.Close()

	if header.Size > limit {
		response.Error(c, appErrors.ErrPayloadTooLarge)
		return
	}
	icon, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		response.Error(c, appErrors.Wrap(err, "failed to read face icon"))
		return
	}
	if int64(len(icon)) > limit {
		response.Error(c, appErrors.ErrPayloadTooLarge)
		return
	}

	ctx, cancel := storageContext(c, h.settings.QueryTimeout)
	defer cancel()

	if err := h.families.SetFaceIcon(ctx, user.ID, icon); err != nil {
		response.Error(c, err)
		return
	}

	h.log.Info("face icon updated", zap.String("user_id", user.ID), zap.Int("bytes", len(icon)))
	response.OK(c, nil)
}

// Stream GET /api/v1/stream upgrades to a websocket carrying the family's online set.
func (h *APIHandler) Stream(c *gin.Context) {
	user, ok := h.requireUser(c)
	if !ok {
		return
	}
	if !user.HasFamily() {
		response.Error(c, appErrors.ErrUnknownFamily)
		return
	}

	ctx, cancel := storageContext(c, h.settings.QueryTimeout)
	online, err := h.presence.ListOnline(ctx, user.FamilyKey)
	cancel()
	if err != nil {
		response.Error(c, err)
		return
	}

	initial := &realtime.Message{Event: realtime.EventOnline, Data: online}
	h.hub.Serve(user.ID, realtime.FamilyStream(user.FamilyKey), initial, c.Writer, c.Request)
}

// requireUser resolves the session user or writes a loggedout error. The boolean is
// false when a response has already been written.
func (h *APIHandler) requireUser(c *gin.Context) (*models.User, bool) {
	sess, err := h.cookies.Load(c)
	if err != nil {
		response.Error(c, err)
		return nil, false
	}

	ctx, cancel := storageContext(c, h.settings.QueryTimeout)
	defer cancel()

	authz, err := h.binder.CurrentUser(ctx, sess)
	if err != nil {
		response.Error(c, err)
		return nil, false
	}
	if !authz.Authenticated() {
		if err := h.cookies.Save(c, sess); err != nil {
			response.Error(c, err)
			return nil, false
		}
		response.Error(c, appErrors.ErrLoggedOut)
		return nil, false
	}
	return authz.User, true
}
