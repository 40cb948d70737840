package checks

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/gotchufam/internal/monitoring"
)

const defaultDatabaseTimeout = 2 * time.Second

var presenceTables = []string{"families", "users", "user_online"}

// Database reports ready once the store answers a ping and carries the presence schema.
func Database(db *gorm.DB, timeout time.Duration) monitoring.Check {
	if timeout <= 0 {
		timeout = defaultDatabaseTimeout
	}
	return monitoring.NewCheck("database", func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		result := inspectDatabase(ctx, db, timeout)
		result.Duration = time.Since(start)
		return result
	})
}

func inspectDatabase(ctx context.Context, db *gorm.DB, timeout time.Duration) monitoring.ProbeResult {
	if db == nil {
		return monitoring.ProbeResult{Status: monitoring.StatusDown, Details: "database not configured"}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	sqlDB, err := db.DB()
	if err != nil {
		return monitoring.ResultFromError("database", err, 0)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return monitoring.ResultFromError("database", err, 0)
	}

	migrator := db.WithContext(ctx).Migrator()
	for _, table := range presenceTables {
		if !migrator.HasTable(table) {
			return monitoring.ProbeResult{Status: monitoring.StatusDown, Details: "missing table " + table}
		}
	}

	stats := sqlDB.Stats()
	return monitoring.ProbeResult{
		Status:  monitoring.StatusUp,
		Details: fmt.Sprintf("%d open, %d in use", stats.OpenConnections, stats.InUse),
	}
}
