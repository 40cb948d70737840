package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/gotchufam/internal/auth"
	testutil "github.com/charlesng35/gotchufam/internal/database/testutil"
	"github.com/charlesng35/gotchufam/internal/models"
	"github.com/charlesng35/gotchufam/internal/realtime"
	"github.com/charlesng35/gotchufam/internal/services"
	"github.com/charlesng35/gotchufam/web"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

type testEnv struct {
	db       *gorm.DB
	engine   *gin.Engine
	families *services.FamilyService
	hub      *realtime.Hub
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())

	binder, err := auth.NewSessionBinder(db)
	require.NoError(t, err)
	identity, err := services.NewIdentityService(db, binder)
	require.NoError(t, err)
	families, err := services.NewFamilyService(db)
	require.NoError(t, err)

	hub := realtime.NewHub()
	presence, err := services.NewPresenceService(db, services.WithPresenceNotifier(realtime.NewPresencePublisher(hub)))
	require.NoError(t, err)

	store, err := auth.NewCookieStore(auth.StoreConfig{Secret: "handlers-test-secret"})
	require.NoError(t, err)
	cookies, err := NewSessionCookies(store, "")
	require.NoError(t, err)

	pages, err := NewPagesHandler(identity, families, binder, cookies, PageSettings{
		HeartbeatInterval: 10 * time.Second,
		PeerJS:            PeerJSSettings{Host: "peer.test", Port: 9000, Path: "/peering"},
	})
	require.NoError(t, err)
	api, err := NewAPIHandler(presence, families, binder, cookies, hub, APISettings{MaxFaceIconBytes: 1024})
	require.NoError(t, err)

	tmpl, err := web.Templates()
	require.NoError(t, err)

	r := gin.New()
	r.SetHTMLTemplate(tmpl)
	r.GET("/", pages.Home)
	r.GET("/login", pages.LoginForm)
	r.POST("/login", pages.Login)
	r.GET("/logout", pages.Logout)
	r.GET("/video", pages.Video)
	r.GET("/whoami", pages.Whoami)

	v1 := r.Group("/api/v1")
	v1.GET("/", api.Root)
	v1.POST("/heartbeat", api.Heartbeat)
	v1.GET("/logout", api.Logout)
	v1.POST("/logout", api.Logout)
	v1.GET("/whoswho", api.Whoswho)
	v1.POST("/face_icon", api.FaceIcon)
	v1.GET("/stream", api.Stream)

	return &testEnv{db: db, engine: r, families: families, hub: hub}
}

func (e *testEnv) createFamily(t *testing.T, name string) *models.Family {
	t.Helper()
	family, err := e.families.CreateFamily(context.Background(), name)
	require.NoError(t, err)
	return family
}

// client remembers cookies between requests like a browser would.
type client struct {
	env     *testEnv
	cookies map[string]*http.Cookie
}

func (e *testEnv) newClient() *client {
	return &client{env: e, cookies: make(map[string]*http.Cookie)}
}

func (cl *client) do(req *http.Request) *httptest.ResponseRecorder {
	for _, cookie := range cl.cookies {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	cl.env.engine.ServeHTTP(rec, req)
	for _, cookie := range rec.Result().Cookies() {
		cl.cookies[cookie.Name] = cookie
	}
	return rec
}

func (cl *client) get(path string) *httptest.ResponseRecorder {
	return cl.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (cl *client) postForm(path string, values url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return cl.do(req)
}

func (cl *client) upload(t *testing.T, path, field string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile(field, "face.png")
	require.NoError(t, err)
	_, err = io.Copy(part, bytes.NewReader(data))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return cl.do(req)
}

func (cl *client) login(t *testing.T, familyToken, name string) {
	t.Helper()
	rec := cl.postForm("/login", url.Values{"family-id": {familyToken}, "display-name": {name}})
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}
