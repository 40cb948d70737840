package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"github.com/charlesng35/gotchufam/internal/app"
	iauth "github.com/charlesng35/gotchufam/internal/auth"
	"github.com/charlesng35/gotchufam/internal/handlers"
	"github.com/charlesng35/gotchufam/internal/middleware"
	"github.com/charlesng35/gotchufam/internal/monitoring"
	"github.com/charlesng35/gotchufam/internal/monitoring/checks"
	"github.com/charlesng35/gotchufam/internal/realtime"
	"github.com/charlesng35/gotchufam/internal/services"
	"github.com/charlesng35/gotchufam/web"
)

// Dependencies are the collaborators the router wires into handlers.
type Dependencies struct {
	DB       *gorm.DB
	Config   *app.Config
	Store    sessions.Store
	Binder   *iauth.SessionBinder
	Identity *services.IdentityService
	Presence *services.PresenceService
	Families *services.FamilyService
	Hub      *realtime.Hub

	// RateStore backs the login rate limit. Nil disables it.
	RateStore middleware.RateStore
	// Sweeps reports the scheduled sweeper to the readiness probe. Optional.
	Sweeps checks.SweepObserver
}

func (d Dependencies) validate() error {
	switch {
	case d.DB == nil:
		return fmt.Errorf("database handle must be provided")
	case d.Config == nil:
		return fmt.Errorf("config must be provided")
	case d.Store == nil:
		return fmt.Errorf("session store must be provided")
	case d.Binder == nil:
		return fmt.Errorf("session binder must be provided")
	case d.Identity == nil || d.Presence == nil || d.Families == nil:
		return fmt.Errorf("identity, presence and family services must be provided")
	case d.Hub == nil:
		return fmt.Errorf("realtime hub must be provided")
	}
	return nil
}

// NewRouter builds the Gin engine, wires middleware and registers the page and API routes.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	cfg := deps.Config

	tmpl, err := web.Templates()
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	static, err := web.Static()
	if err != nil {
		return nil, fmt.Errorf("load static assets: %w", err)
	}

	cookies, err := handlers.NewSessionCookies(deps.Store, cfg.Session.CookieName)
	if err != nil {
		return nil, err
	}

	timeout := cfg.Database.Timeout()
	pages, err := handlers.NewPagesHandler(deps.Identity, deps.Families, deps.Binder, cookies, handlers.PageSettings{
		HeartbeatInterval: cfg.Server.HeartbeatInterval,
		PeerJS: handlers.PeerJSSettings{
			Host:   cfg.PeerJS.Host,
			Port:   cfg.PeerJS.Port,
			Path:   cfg.PeerJS.Path,
			Secure: cfg.PeerJS.Secure,
		},
		QueryTimeout: timeout,
	})
	if err != nil {
		return nil, err
	}

	apiHandler, err := handlers.NewAPIHandler(deps.Presence, deps.Families, deps.Binder, cookies, deps.Hub, handlers.APISettings{
		MaxFaceIconBytes: cfg.Presence.MaxFaceIconBytes,
		QueryTimeout:     timeout,
	})
	if err != nil {
		return nil, err
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders(cfg.PeerJS.Origins()...))

	r.SetHTMLTemplate(tmpl)
	r.StaticFS("/static", http.FS(static))

	// Health endpoints (public)
	registerHealthRoutes(r, deps, timeout)

	// Pages
	loginLimit := []gin.HandlerFunc{}
	if deps.RateStore != nil && cfg.RateLimit.LoginPerMinute > 0 {
		loginLimit = append(loginLimit, middleware.RateLimit(deps.RateStore, cfg.RateLimit.LoginPerMinute, time.Minute))
	}

	r.GET("/", pages.Home)
	r.GET("/login", pages.LoginForm)
	r.POST("/login", append(loginLimit, pages.Login)...)
	r.GET("/logout", pages.Logout)
	r.GET("/video", pages.Video)
	r.GET("/whoami", pages.Whoami)

	// Programmatic API
	v1 := r.Group(handlers.APIRoot)
	{
		v1.GET("/", apiHandler.Root)
		v1.POST("/heartbeat", apiHandler.Heartbeat)
		v1.GET("/logout", apiHandler.Logout)
		v1.POST("/logout", apiHandler.Logout)
		v1.GET("/whoswho", apiHandler.Whoswho)
		v1.POST("/face_icon", apiHandler.FaceIcon)
		v1.GET("/stream", apiHandler.Stream)
	}

	// Metrics endpoint
	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := cfg.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}

func registerHealthRoutes(r *gin.Engine, deps Dependencies, timeout time.Duration) {
	manager := monitoring.NewHealthManager()
	manager.RegisterLiveness(checks.Realtime(deps.Hub))
	manager.RegisterReadiness(checks.Database(deps.DB, timeout))
	if deps.Sweeps != nil {
		manager.RegisterReadiness(checks.Sweeper(deps.Sweeps, sweepMaxAge(deps.Config), nil))
	}

	health := handlers.NewHealthHandler(manager)
	r.GET("/health", health.Ready)
	r.GET("/health/ready", health.Ready)
	r.GET("/health/live", health.Live)
}

// sweepMaxAge tolerates three missed runs of the configured schedule before readiness
// degrades. Unparseable schedules fall back to the probe's default.
func sweepMaxAge(cfg *app.Config) time.Duration {
	schedule, err := cron.ParseStandard(cfg.Presence.SweepSchedule)
	if err != nil {
		return 0
	}
	first := schedule.Next(time.Now())
	return 3 * schedule.Next(first).Sub(first)
}
