package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/gotchufam/internal/models"
	"github.com/charlesng35/gotchufam/pkg/metrics"
)

// SweepStats captures what one sweep removed.
type SweepStats struct {
	Users    int64
	Presence int64
	// UserIDs lists the users that were deleted.
	UserIDs []string
}

// Record adds the stats to the swept-rows counters. Call it once the sweep is committed.
func (s SweepStats) Record() {
	if s.Users > 0 {
		metrics.SweptRows.WithLabelValues("users").Add(float64(s.Users))
	}
	if s.Presence > 0 {
		metrics.SweptRows.WithLabelValues("user_online").Add(float64(s.Presence))
	}
}

// Sweeper deletes users and presence rows whose expiry has passed.
type Sweeper struct{}

// NewSweeper constructs a Sweeper.
func NewSweeper() *Sweeper {
	return &Sweeper{}
}

// Sweep removes the presence rows of expired users, the expired users, and then expired
// presence rows. Pass a transaction handle to run it inside a larger unit of work.
// Nothing is recorded in metrics; the caller does that after commit.
func (s *Sweeper) Sweep(ctx context.Context, db *gorm.DB, now time.Time) (SweepStats, error) {
	if db == nil {
		return SweepStats{}, errors.New("sweeper: db is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	stats := SweepStats{}
	tx := db.WithContext(ctx)

	var expired []string
	if err := tx.Model(&models.User{}).Where("expires < ?", now).Pluck("id", &expired).Error; err != nil {
		return stats, fmt.Errorf("sweeper: find expired users: %w", err)
	}

	if len(expired) > 0 {
		// expiry is re-checked so a user refreshed since the lookup survives
		result := tx.Where("user_id IN (?)", tx.Model(&models.User{}).Select("id").
			Where("id IN ? AND expires < ?", expired, now)).
			Delete(&models.UserOnline{})
		if result.Error != nil {
			return stats, fmt.Errorf("sweeper: presence of expired users: %w", result.Error)
		}
		stats.Presence += result.RowsAffected

		result = tx.Where("id IN ? AND expires < ?", expired, now).Delete(&models.User{})
		if result.Error != nil {
			return stats, fmt.Errorf("sweeper: users: %w", result.Error)
		}
		stats.Users = result.RowsAffected

		gone, err := confirmDeleted(tx, expired, result.RowsAffected)
		if err != nil {
			return stats, err
		}
		stats.UserIDs = gone
	}

	result := tx.Where("expires < ?", now).Delete(&models.UserOnline{})
	if result.Error != nil {
		return stats, fmt.Errorf("sweeper: presence: %w", result.Error)
	}
	stats.Presence += result.RowsAffected

	return stats, nil
}

// confirmDeleted narrows candidates to the ids that no longer exist.
func confirmDeleted(tx *gorm.DB, candidates []string, deleted int64) ([]string, error) {
	if deleted == int64(len(candidates)) {
		return candidates, nil
	}

	var remaining []string
	if err := tx.Model(&models.User{}).Where("id IN ?", candidates).Pluck("id", &remaining).Error; err != nil {
		return nil, fmt.Errorf("sweeper: confirm deleted users: %w", err)
	}
	kept := make(map[string]struct{}, len(remaining))
	for _, id := range remaining {
		kept[id] = struct{}{}
	}

	gone := make([]string, 0, len(candidates)-len(remaining))
	for _, id := range candidates {
		if _, ok := kept[id]; !ok {
			gone = append(gone, id)
		}
	}
	return gone, nil
}
