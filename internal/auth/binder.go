package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/gotchufam/internal/models"
)

// Authorization is the outcome of resolving a session to a live user.
// The zero value means the caller is not authenticated.
type Authorization struct {
	User *models.User
}

// Authenticated reports whether the session resolved to an existing user.
func (a Authorization) Authenticated() bool {
	return a.User != nil
}

// Unauthenticated is returned when no live user backs a session.
var Unauthenticated = Authorization{}

// SessionBinder maps sessions to user rows.
type SessionBinder struct {
	db  *gorm.DB
	now func() time.Time
}

// BinderOption customises a SessionBinder.
type BinderOption func(*SessionBinder)

// WithBinderClock sets the clock user expiry is compared against.
func WithBinderClock(clock func() time.Time) BinderOption {
	return func(b *SessionBinder) {
		if clock != nil {
			b.now = clock
		}
	}
}

// NewSessionBinder constructs a SessionBinder over the provided store.
func NewSessionBinder(db *gorm.DB, opts ...BinderOption) (*SessionBinder, error) {
	if db == nil {
		return nil, errors.New("session binder: db is required")
	}
	binder := &SessionBinder{db: db, now: time.Now}
	for _, opt := range opts {
		opt(binder)
	}
	return binder, nil
}

// CurrentUser resolves the session to its live user. A binding whose user has expired,
// whether or not the row has been swept yet, is cleared and reported as
// unauthenticated; only storage failures return an error.
func (b *SessionBinder) CurrentUser(ctx context.Context, sess Session) (Authorization, error) {
	if sess == nil {
		return Unauthenticated, nil
	}
	userID, ok := sess.UserID()
	if !ok {
		return Unauthenticated, nil
	}

	var user models.User
	err := b.db.WithContext(ctx).Take(&user, "id = ? AND expires >= ?", userID, b.now().UTC()).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		sess.Unbind()
		return Unauthenticated, nil
	}
	if err != nil {
		return Unauthenticated, fmt.Errorf("session binder: load user: %w", err)
	}
	return Authorization{User: &user}, nil
}

// Bind attaches the user id to the session.
func (b *SessionBinder) Bind(sess Session, userID string) {
	sess.Bind(userID)
}

// Unbind detaches the session from its user. Presence rows are left alone.
func (b *SessionBinder) Unbind(sess Session) {
	sess.Unbind()
}
