package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/gotchufam/internal/models"
	apperrors "github.com/charlesng35/gotchufam/pkg/errors"
	"github.com/charlesng35/gotchufam/pkg/logger"
	"github.com/charlesng35/gotchufam/pkg/metrics"
	"github.com/charlesng35/gotchufam/pkg/validator"
)

const defaultUserTTL = 90 * 24 * time.Hour

// OnlineEntry is one live client of a family member.
type OnlineEntry struct {
	DisplayName string `json:"display_name"`
	UserID      string `json:"user_id"`
	ClientID    string `json:"client_id"`
}

// PresenceNotifier is told about committed presence changes. asOf orders the online
// sets of one family: a set older than one already delivered is stale.
type PresenceNotifier interface {
	NotifyOnline(familyID string, asOf time.Time, online []OnlineEntry)
	NotifyGone(userIDs []string)
}

// PresenceOption customises PresenceService behaviour.
type PresenceOption func(*PresenceService)

// WithPresenceClock injects a custom clock primarily for testing.
func WithPresenceClock(clock func() time.Time) PresenceOption {
	return func(s *PresenceService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithPresenceTTL sets the lifetime granted to a presence row and to its user on each heartbeat.
func WithPresenceTTL(online, user time.Duration) PresenceOption {
	return func(s *PresenceService) {
		if online > 0 {
			s.onlineTTL = online
		}
		if user > 0 {
			s.userTTL = user
		}
	}
}

// WithPresenceNotifier publishes online sets after each heartbeat.
func WithPresenceNotifier(n PresenceNotifier) PresenceOption {
	return func(s *PresenceService) {
		s.notifier = n
	}
}

// WithSweeper replaces the sweeper run inside each heartbeat.
func WithSweeper(sw *Sweeper) PresenceOption {
	return func(s *PresenceService) {
		if sw != nil {
			s.sweeper = sw
		}
	}
}

// PresenceService tracks which clients of which users are currently online.
type PresenceService struct {
	db        *gorm.DB
	sweeper   *Sweeper
	notifier  PresenceNotifier
	onlineTTL time.Duration
	userTTL   time.Duration
	now       func() time.Time
	log       *zap.Logger
}

// NewPresenceService constructs a PresenceService.
func NewPresenceService(db *gorm.DB, opts ...PresenceOption) (*PresenceService, error) {
	if db == nil {
		return nil, errors.New("presence service: db is required")
	}

	service := &PresenceService{
		db:        db,
		sweeper:   NewSweeper(),
		onlineTTL: defaultOnlineTTL,
		userTTL:   defaultUserTTL,
		now:       time.Now,
		log:       logger.WithModule("presence"),
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// Heartbeat records that clientID of user is alive, extends the user's lifetime, sweeps
// expired rows and returns the caller's family online set, all in one transaction.
// A user whose lifetime has already lapsed is logged out, even before it is swept.
func (s *PresenceService) Heartbeat(ctx context.Context, user *models.User, clientID string) ([]OnlineEntry, error) {
	if user == nil {
		return nil, apperrors.ErrLoggedOut
	}
	if !validator.IsClientID(clientID) {
		s.log.Error("rejected heartbeat client id",
			zap.String("display_name", user.DisplayName),
			zap.String("client_id", clientID),
		)
		metrics.Heartbeats.WithLabelValues("rejected").Inc()
		return nil, apperrors.ErrInvalidClientID
	}
	clientID = strings.TrimSpace(clientID)

	var (
		now    time.Time
		online []OnlineEntry
		swept  SweepStats
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// read inside the transaction so asOf follows commit order on serialised stores
		now = s.now().UTC()

		refreshed := tx.Model(&models.User{}).
			Where("id = ? AND expires >= ?", user.ID, now).
			Update("expires", now.Add(s.userTTL))
		if refreshed.Error != nil {
			return fmt.Errorf("refresh user: %w", refreshed.Error)
		}
		if refreshed.RowsAffected == 0 {
			// MySQL reports zero rows when the value is unchanged
			var count int64
			if err := tx.Model(&models.User{}).
				Where("id = ? AND expires >= ?", user.ID, now).
				Count(&count).Error; err != nil {
				return fmt.Errorf("check user: %w", err)
			}
			if count == 0 {
				return apperrors.ErrLoggedOut
			}
		}

		userID := user.ID
		presence := models.UserOnline{
			UserID:   &userID,
			ClientID: clientID,
			Expires:  now.Add(s.onlineTTL),
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "client_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"user_id", "expires"}),
		}).Create(&presence).Error; err != nil {
			return fmt.Errorf("upsert presence: %w", err)
		}

		var err error
		if swept, err = s.sweeper.Sweep(ctx, tx, now); err != nil {
			return err
		}

		online, err = queryOnline(tx, models.FamilyKeyFor(user.FamilyID), now)
		return err
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrLoggedOut) {
			metrics.Heartbeats.WithLabelValues("loggedout").Inc()
			return nil, apperrors.ErrLoggedOut
		}
		metrics.Heartbeats.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("presence service: heartbeat: %w", err)
	}

	metrics.Heartbeats.WithLabelValues("ok").Inc()
	swept.Record()
	if s.notifier != nil {
		if len(swept.UserIDs) > 0 {
			s.notifier.NotifyGone(swept.UserIDs)
		}
		if user.HasFamily() {
			s.notifier.NotifyOnline(*user.FamilyID, now, online)
		}
	}
	return online, nil
}

// LogoutClient drops the presence row of one client. Missing rows and blank input are not errors.
func (s *PresenceService) LogoutClient(ctx context.Context, userID, clientID string) error {
	userID = strings.TrimSpace(userID)
	clientID = strings.TrimSpace(clientID)
	if userID == "" || clientID == "" {
		return nil
	}

	if err := s.db.WithContext(ctx).
		Where("client_id = ? AND user_id = ?", clientID, userID).
		Delete(&models.UserOnline{}).Error; err != nil {
		return fmt.Errorf("presence service: logout client: %w", err)
	}
	return nil
}

// ListOnline returns the unexpired clients of a family without mutating anything.
func (s *PresenceService) ListOnline(ctx context.Context, familyID string) ([]OnlineEntry, error) {
	online, err := queryOnline(s.db.WithContext(ctx), familyID, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("presence service: list online: %w", err)
	}
	return online, nil
}

func queryOnline(db *gorm.DB, familyID string, now time.Time) ([]OnlineEntry, error) {
	online := make([]OnlineEntry, 0)
	if familyID == models.NoFamily {
		return online, nil
	}

	err := db.Table("user_online").
		Select("users.display_name AS display_name, user_online.user_id AS user_id, user_online.client_id AS client_id").
		Joins("JOIN users ON users.id = user_online.user_id").
		Where("user_online.expires > ? AND users.family_id = ?", now, familyID).
		Order("users.display_name, user_online.client_id").
		Scan(&online).Error
	if err != nil {
		return nil, fmt.Errorf("query online: %w", err)
	}
	return online, nil
}
