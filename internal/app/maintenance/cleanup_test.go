package maintenance

import (
	"context"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	testutil "github.com/charlesng35/gotchufam/internal/database/testutil"
	"github.com/charlesng35/gotchufam/internal/models"
)

func TestCleanerRunOnce(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	clock := fixedClock{current: time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC)}

	live := &models.User{DisplayName: "Live", Expires: clock.Now().Add(time.Hour)}
	gone := &models.User{DisplayName: "Gone", Expires: clock.Now().Add(-time.Hour)}
	require.NoError(t, db.Create(live).Error)
	require.NoError(t, db.Create(gone).Error)

	require.NoError(t, db.Create(&models.UserOnline{UserID: &live.ID, ClientID: "fresh", Expires: clock.Now().Add(time.Minute)}).Error)
	require.NoError(t, db.Create(&models.UserOnline{UserID: &live.ID, ClientID: "stale", Expires: clock.Now().Add(-time.Minute)}).Error)
	require.NoError(t, db.Create(&models.UserOnline{UserID: &gone.ID, ClientID: "orphan", Expires: clock.Now().Add(time.Minute)}).Error)

	swept := &goneRecorder{}
	c := NewCleaner(db, nil,
		WithNow(clock.Now),
		WithCron(cron.New(cron.WithLogger(cron.DiscardLogger))),
		WithGoneNotifier(swept),
	)
	require.NoError(t, c.RunOnce(context.Background()))
	require.Equal(t, [][]string{{gone.ID}}, swept.batches)

	// nothing left to sweep, so nobody is reported twice
	require.NoError(t, c.RunOnce(context.Background()))
	require.Len(t, swept.batches, 1)

	var users []string
	require.NoError(t, db.Model(&models.User{}).Pluck("display_name", &users).Error)
	require.Equal(t, []string{"Live"}, users)

	var clients []string
	require.NoError(t, db.Model(&models.UserOnline{}).Pluck("client_id", &clients).Error)
	require.Equal(t, []string{"fresh"}, clients)

	status := c.Status()
	require.Equal(t, 2, status.TotalRuns)
	require.Zero(t, status.ConsecutiveFailures)
	require.Equal(t, clock.Now(), status.LastRunAt)
}

func TestCleanerRunOnceCollectsErrors(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewCleaner(db, nil)
	err = c.RunOnce(ctx)
	require.Error(t, err)
	require.Len(t, multierr.Errors(err), 2)
	require.ErrorIs(t, err, context.Canceled)

	require.Error(t, c.RunOnce(ctx))
	status := c.Status()
	require.Equal(t, 2, status.TotalRuns)
	require.Equal(t, 2, status.ConsecutiveFailures)
	require.NotEmpty(t, status.LastError)
}

func TestCleanerStartRejectsBadSchedule(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())

	c := NewCleaner(db, nil, WithSweepSchedule("not a schedule"))
	require.Error(t, c.Start())

	require.Error(t, NewCleaner(nil, nil).Start())
}

func TestCleanerStartAndStop(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	scheduler := cron.New(cron.WithLogger(cron.DiscardLogger))

	c := NewCleaner(db, nil, WithCron(scheduler), WithSweepSchedule("@every 1h"))
	require.NoError(t, c.Start())
	require.Len(t, scheduler.Entries(), 1)

	select {
	case <-c.Stop().Done():
	case <-time.After(time.Second):
		t.Fatal("cleaner did not stop")
	}
}

type fixedClock struct {
	current time.Time
}

func (c fixedClock) Now() time.Time {
	return c.current
}

type goneRecorder struct {
	batches [][]string
}

func (r *goneRecorder) NotifyGone(userIDs []string) {
	r.batches = append(r.batches, userIDs)
}
