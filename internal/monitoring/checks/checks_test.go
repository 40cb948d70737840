package checks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/gotchufam/internal/app/maintenance"
	testutil "github.com/charlesng35/gotchufam/internal/database/testutil"
	"github.com/charlesng35/gotchufam/internal/monitoring"
)

type stubSweeps struct {
	status maintenance.SweepStatus
}

func (s stubSweeps) Status() maintenance.SweepStatus { return s.status }

type stubHub int

func (h stubHub) Connections() int { return int(h) }

func TestDatabaseCheck(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	result := Database(db, 0).Run(context.Background())
	require.Equal(t, monitoring.StatusUp, result.Status)
	require.Contains(t, result.Details, "open")
	require.Equal(t, monitoring.StatusDown, Database(nil, 0).Run(context.Background()).Status)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())
	require.Equal(t, monitoring.StatusDown, Database(db, time.Second).Run(context.Background()).Status)
}

func TestDatabaseCheckRequiresSchema(t *testing.T) {
	db := testutil.MustOpenTestDB(t)

	result := Database(db, 0).Run(context.Background())
	require.Equal(t, monitoring.StatusDown, result.Status)
	require.Equal(t, "missing table families", result.Details)
}

func TestSweeperCheck(t *testing.T) {
	now := time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	ctx := context.Background()

	pending := Sweeper(stubSweeps{}, time.Minute, clock).Run(ctx)
	require.Equal(t, monitoring.StatusUp, pending.Status)

	healthy := Sweeper(stubSweeps{maintenance.SweepStatus{LastRunAt: now.Add(-30 * time.Second), TotalRuns: 3}}, time.Minute, clock).Run(ctx)
	require.Equal(t, monitoring.StatusUp, healthy.Status)

	stale := Sweeper(stubSweeps{maintenance.SweepStatus{LastRunAt: now.Add(-time.Hour), TotalRuns: 3}}, time.Minute, clock).Run(ctx)
	require.Equal(t, monitoring.StatusDegraded, stale.Status)

	failing := Sweeper(stubSweeps{maintenance.SweepStatus{LastRunAt: now, TotalRuns: 3, ConsecutiveFailures: 2, LastError: "locked"}}, time.Minute, clock).Run(ctx)
	require.Equal(t, monitoring.StatusDown, failing.Status)
	require.Contains(t, failing.Details, "locked")

	require.Equal(t, monitoring.StatusDegraded, Sweeper(nil, 0, nil).Run(ctx).Status)
}

func TestRealtimeCheck(t *testing.T) {
	result := Realtime(stubHub(3)).Run(context.Background())
	require.Equal(t, monitoring.StatusUp, result.Status)
	require.Equal(t, "3 connections", result.Details)

	require.Equal(t, monitoring.StatusDegraded, Realtime(nil).Run(context.Background()).Status)
}
