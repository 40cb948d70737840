package monitoring_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/gotchufam/internal/monitoring"
)

func TestHealthManagerEvaluate(t *testing.T) {
	t.Parallel()

	manager := monitoring.NewHealthManager()
	manager.RegisterLiveness(monitoring.NewCheck("realtime", func(ctx context.Context) monitoring.ProbeResult {
		return monitoring.ProbeResult{Status: monitoring.StatusUp}
	}))
	manager.RegisterReadiness(monitoring.NewCheck("database", func(ctx context.Context) monitoring.ProbeResult {
		return monitoring.ProbeResult{Status: monitoring.StatusDown, Details: "connection refused"}
	}))
	manager.RegisterReadiness(monitoring.Check{})

	live := manager.EvaluateLiveness(context.Background())
	require.True(t, live.Success)
	require.Equal(t, monitoring.StatusUp, live.Status)
	require.Len(t, live.Checks, 1)

	ready := manager.EvaluateReadiness(context.Background())
	require.False(t, ready.Success)
	require.Equal(t, monitoring.StatusDown, ready.Status)
	require.Len(t, ready.Checks, 2)
	require.Equal(t, "database", ready.Checks[1].Component)
}

func TestHealthManagerRecoversPanickingCheck(t *testing.T) {
	t.Parallel()

	manager := monitoring.NewHealthManager()
	manager.RegisterLiveness(monitoring.NewCheck("boom", func(context.Context) monitoring.ProbeResult {
		panic("exploded")
	}))
	manager.RegisterLiveness(monitoring.NewCheck("unimplemented", nil))

	report := manager.EvaluateLiveness(context.Background())
	require.Equal(t, monitoring.StatusDown, report.Status)
	require.Equal(t, "boom", report.Checks[0].Component)
	require.Contains(t, report.Checks[0].Details, "exploded")
	require.Equal(t, monitoring.StatusDown, report.Checks[1].Status)
}

func TestWorst(t *testing.T) {
	require.Equal(t, monitoring.StatusUp, monitoring.Worst(monitoring.StatusUp, monitoring.StatusUp))
	require.Equal(t, monitoring.StatusDegraded, monitoring.Worst(monitoring.StatusUp, monitoring.StatusDegraded))
	require.Equal(t, monitoring.StatusDown, monitoring.Worst(monitoring.StatusDown, monitoring.StatusDegraded))
}

func TestResultFromError(t *testing.T) {
	require.Equal(t, monitoring.StatusUp, monitoring.ResultFromError("db", nil, -1).Status)
	require.Equal(t, monitoring.StatusDown, monitoring.ResultFromError("db", errors.New("refused"), 0).Status)
	require.Equal(t, monitoring.StatusDegraded, monitoring.ResultFromError("db", context.DeadlineExceeded, 0).Status)
}
