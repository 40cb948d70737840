package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/gotchufam/internal/auth"
	testutil "github.com/charlesng35/gotchufam/internal/database/testutil"
	"github.com/charlesng35/gotchufam/internal/models"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 3, 1, 18, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingNotifier struct {
	mu     sync.Mutex
	events map[string][][]OnlineEntry
	asOf   map[string][]time.Time
	gone   [][]string
}

func (n *recordingNotifier) NotifyOnline(familyID string, asOf time.Time, online []OnlineEntry) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.events == nil {
		n.events = make(map[string][][]OnlineEntry)
		n.asOf = make(map[string][]time.Time)
	}
	n.events[familyID] = append(n.events[familyID], online)
	n.asOf[familyID] = append(n.asOf[familyID], asOf)
}

func (n *recordingNotifier) NotifyGone(userIDs []string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.gone = append(n.gone, userIDs)
}

func openServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	return testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
}

// openConcurrentDB returns a file-backed store with a real connection pool, so
// concurrent callers race on the database instead of queueing on one connection.
func openConcurrentDB(t *testing.T) *gorm.DB {
	t.Helper()
	return testutil.MustOpenFileDB(t, testutil.WithAutoMigrate())
}

func newTestIdentity(t *testing.T, db *gorm.DB, clock *testClock, opts ...IdentityOption) *IdentityService {
	t.Helper()
	binder, err := auth.NewSessionBinder(db)
	require.NoError(t, err)

	opts = append([]IdentityOption{WithIdentityClock(clock.Now)}, opts...)
	svc, err := NewIdentityService(db, binder, opts...)
	require.NoError(t, err)
	return svc
}

func seedFamily(t *testing.T, db *gorm.DB, name string) *models.Family {
	t.Helper()
	svc, err := NewFamilyService(db)
	require.NoError(t, err)
	family, err := svc.CreateFamily(context.Background(), name)
	require.NoError(t, err)
	return family
}

func login(t *testing.T, svc *IdentityService, token, name string) *models.User {
	t.Helper()
	user, err := svc.Login(context.Background(), auth.NewMemorySession(), token, name)
	require.NoError(t, err)
	return user
}

func countRows(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(model).Count(&count).Error)
	return count
}
