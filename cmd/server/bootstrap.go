package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/gotchufam/internal/api"
	"github.com/charlesng35/gotchufam/internal/app"
	"github.com/charlesng35/gotchufam/internal/app/maintenance"
	iauth "github.com/charlesng35/gotchufam/internal/auth"
	"github.com/charlesng35/gotchufam/internal/database"
	"github.com/charlesng35/gotchufam/internal/middleware"
	"github.com/charlesng35/gotchufam/internal/realtime"
	"github.com/charlesng35/gotchufam/internal/services"
	"github.com/charlesng35/gotchufam/pkg/logger"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB        *gorm.DB
	Hub       *realtime.Hub
	Cleaner   *maintenance.Cleaner
	RateStore *middleware.MemoryRateStore
	Router    *gin.Engine
}

// bootstrapRuntime initialises the database, services, background sweeper and the HTTP router.
func bootstrapRuntime(cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mod
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	store, err := iauth.NewCookieStore(iauth.StoreConfig{
		Secret: cfg.Session.Secret,
		MaxAge: cfg.Session.MaxAge,
		Secure: cfg.Session.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("initialise session store: %w", err)
	}

	binder, err := iauth.NewSessionBinder(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise session binder: %w", err)
	}

	identity, err := services.NewIdentityService(stack.DB, binder, cfg.Presence.IdentityOptions()...)
	if err != nil {
		return nil, fmt.Errorf("initialise identity service: %w", err)
	}

	families, err := services.NewFamilyService(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise family service: %w", err)
	}

	sweeper := services.NewSweeper()
	stack.Hub = realtime.NewHub()

	publisher := realtime.NewPresencePublisher(stack.Hub)
	presenceOpts := append(cfg.Presence.PresenceOptions(),
		services.WithSweeper(sweeper),
		services.WithPresenceNotifier(publisher),
	)
	presence, err := services.NewPresenceService(stack.DB, presenceOpts...)
	if err != nil {
		return nil, fmt.Errorf("initialise presence service: %w", err)
	}

	stack.Cleaner = maintenance.NewCleaner(stack.DB, sweeper,
		maintenance.WithSweepSchedule(cfg.Presence.SweepSchedule),
		maintenance.WithGoneNotifier(publisher),
	)
	if err := stack.Cleaner.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	stack.RateStore = middleware.NewMemoryRateStore(0)

	stack.Router, err = api.NewRouter(api.Dependencies{
		DB:        stack.DB,
		Config:    cfg,
		Store:     store,
		Binder:    binder,
		Identity:  identity,
		Presence:  presence,
		Families:  families,
		Hub:       stack.Hub,
		RateStore: stack.RateStore,
		Sweeps:    stack.Cleaner,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		select {
		case <-s.Cleaner.Stop().Done():
		case <-ctx.Done():
		}
		if err := s.Cleaner.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}

	if s.RateStore != nil {
		s.RateStore.Close()
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.ConnectionConfig()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.Migrate(db); err != nil {
		closeDatabase(db, logger.WithModule("database"))
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", dbCfg.Driver))

	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
