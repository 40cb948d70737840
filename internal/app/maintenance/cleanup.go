package maintenance

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/gotchufam/internal/services"
	"github.com/charlesng35/gotchufam/pkg/logger"
)

const defaultSweepSpec = "@every 1m"

// Cleaner runs the expiration sweeper on a schedule so rows are reclaimed even when no
// family member is sending heartbeats.
type Cleaner struct {
	db      *gorm.DB
	sweeper *services.Sweeper
	cron    *cron.Cron
	now     func() time.Time
	log     *zap.Logger

	sweepSchedule string
	gone          GoneNotifier

	mu     sync.Mutex
	status SweepStatus
}

// SweepStatus summarises the sweeps run so far.
type SweepStatus struct {
	LastRunAt           time.Time
	TotalRuns           int
	ConsecutiveFailures int
	LastError           string
}

// GoneNotifier is told which users a committed sweep deleted.
type GoneNotifier interface {
	NotifyGone(userIDs []string)
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for expiry comparisons.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithSweepSchedule overrides the cron schedule for the sweeper.
func WithSweepSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.sweepSchedule = spec
		}
	}
}

// WithGoneNotifier reports swept users, so their open streams can be closed.
func WithGoneNotifier(n GoneNotifier) Option {
	return func(cleaner *Cleaner) {
		cleaner.gone = n
	}
}

// NewCleaner constructs a Cleaner. A nil sweeper falls back to a fresh one.
func NewCleaner(db *gorm.DB, sweeper *services.Sweeper, opts ...Option) *Cleaner {
	if sweeper == nil {
		sweeper = services.NewSweeper()
	}
	cleaner := &Cleaner{
		db:            db,
		sweeper:       sweeper,
		now:           time.Now,
		sweepSchedule: defaultSweepSpec,
		log:           logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}
	return cleaner
}

// Start registers the sweep job and launches the scheduler.
func (c *Cleaner) Start() error {
	if c.db == nil {
		return errors.New("maintenance: db is required")
	}

	if _, err := c.cron.AddFunc(c.sweepSchedule, func() {
		if err := c.RunOnce(context.Background()); err != nil {
			c.log.Warn("scheduled sweep failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce sweeps immediately. Used by the schedule, in tests and during graceful shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.db == nil {
		return errors.New("maintenance: db is required")
	}

	var (
		errs  error
		stats services.SweepStats
	)
	now := c.now().UTC()
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		stats, err = c.sweeper.Sweep(ctx, tx, now)
		return err
	})
	if err != nil {
		errs = multierr.Append(errs, err)
	}
	if err := ctx.Err(); err != nil {
		errs = multierr.Append(errs, err)
	}

	c.record(errs)

	if err == nil {
		stats.Record()
		if c.gone != nil && len(stats.UserIDs) > 0 {
			c.gone.NotifyGone(stats.UserIDs)
		}
	}
	if errs == nil && (stats.Users > 0 || stats.Presence > 0) {
		c.log.Debug("swept expired rows",
			zap.Int64("users", stats.Users),
			zap.Int64("presence", stats.Presence),
		)
	}
	return errs
}

// Status reports the outcome of the sweeps run so far.
func (c *Cleaner) Status() SweepStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Cleaner) record(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.status.LastRunAt = c.now().UTC()
	c.status.TotalRuns++
	if err != nil {
		c.status.ConsecutiveFailures++
		c.status.LastError = err.Error()
		return
	}
	c.status.ConsecutiveFailures = 0
	c.status.LastError = ""
}
