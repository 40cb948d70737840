package checks

import (
	"context"
	"fmt"
	"time"

	"github.com/charlesng35/gotchufam/internal/app/maintenance"
	"github.com/charlesng35/gotchufam/internal/monitoring"
)

const defaultSweepMaxAge = 10 * time.Minute

// SweepObserver exposes the scheduled sweeper's run history.
type SweepObserver interface {
	Status() maintenance.SweepStatus
}

// Sweeper reports down while scheduled sweeps keep failing and degraded when the last
// run is older than maxAge.
func Sweeper(observer SweepObserver, maxAge time.Duration, now func() time.Time) monitoring.Check {
	if maxAge <= 0 {
		maxAge = defaultSweepMaxAge
	}
	if now == nil {
		now = time.Now
	}

	return monitoring.NewCheck("sweeper", func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		if observer == nil {
			return monitoring.ProbeResult{
				Status:   monitoring.StatusDegraded,
				Details:  "sweeper not scheduled",
				Duration: time.Since(start),
			}
		}

		status := observer.Status()
		switch {
		case status.TotalRuns == 0:
			return monitoring.ProbeResult{
				Status:   monitoring.StatusUp,
				Details:  "pending first run",
				Duration: time.Since(start),
			}
		case status.ConsecutiveFailures > 0:
			return monitoring.ProbeResult{
				Status:   monitoring.StatusDown,
				Details:  fmt.Sprintf("%d consecutive failures: %s", status.ConsecutiveFailures, status.LastError),
				Duration: time.Since(start),
			}
		case now().Sub(status.LastRunAt) > maxAge:
			return monitoring.ProbeResult{
				Status:   monitoring.StatusDegraded,
				Details:  "stale run " + status.LastRunAt.UTC().Format(time.RFC3339),
				Duration: time.Since(start),
			}
		}

		return monitoring.ProbeResult{
			Status:   monitoring.StatusUp,
			Duration: time.Since(start),
		}
	})
}
