package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/gotchufam/internal/auth"
	"github.com/charlesng35/gotchufam/internal/models"
	apperrors "github.com/charlesng35/gotchufam/pkg/errors"
	"github.com/charlesng35/gotchufam/pkg/metrics"
)

const (
	defaultOnlineTTL = 30 * time.Second
	maxDisplayName   = 64
)

var (
	// ErrDisplayNameRequired is returned when the login form carries a blank name.
	ErrDisplayNameRequired = apperrors.New("display_name_required", "display name is required", http.StatusBadRequest)
	// ErrDisplayNameTooLong is returned for names above the column limit.
	ErrDisplayNameTooLong = apperrors.New("display_name_too_long",
		fmt.Sprintf("display name must be at most %d characters", maxDisplayName), http.StatusBadRequest)
)

// IdentityOption customises IdentityService behaviour.
type IdentityOption func(*IdentityService)

// WithIdentityClock injects a custom clock primarily for testing.
func WithIdentityClock(clock func() time.Time) IdentityOption {
	return func(s *IdentityService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithOnlineTTL sets how long a freshly logged in user survives without a heartbeat.
func WithOnlineTTL(d time.Duration) IdentityOption {
	return func(s *IdentityService) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithAllowUnknownFamily controls whether an unresolvable invite token still logs the
// user in without a family.
func WithAllowUnknownFamily(allow bool) IdentityOption {
	return func(s *IdentityService) {
		s.allowUnknown = allow
	}
}

// IdentityService issues family-scoped identities.
type IdentityService struct {
	db           *gorm.DB
	binder       *auth.SessionBinder
	ttl          time.Duration
	allowUnknown bool
	now          func() time.Time
}

// NewIdentityService constructs an IdentityService with the provided dependencies.
func NewIdentityService(db *gorm.DB, binder *auth.SessionBinder, opts ...IdentityOption) (*IdentityService, error) {
	if db == nil {
		return nil, errors.New("identity service: db is required")
	}
	if binder == nil {
		return nil, errors.New("identity service: session binder is required")
	}

	service := &IdentityService{
		db:           db,
		binder:       binder,
		ttl:          defaultOnlineTTL,
		allowUnknown: true,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// Login resolves the invite token, creates or refreshes the (display name, family) user
// and binds sess to it. Repeating a login with the same inputs yields the same user.
func (s *IdentityService) Login(ctx context.Context, sess auth.Session, familyToken, displayName string) (*models.User, error) {
	user, err := s.login(ctx, familyToken, displayName)
	if err != nil {
		metrics.Logins.WithLabelValues("failure").Inc()
		return nil, err
	}

	s.binder.Bind(sess, user.ID)
	metrics.Logins.WithLabelValues("success").Inc()
	return user, nil
}

func (s *IdentityService) login(ctx context.Context, familyToken, displayName string) (*models.User, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return nil, ErrDisplayNameRequired
	}
	if utf8.RuneCountInString(displayName) > maxDisplayName {
		return nil, ErrDisplayNameTooLong
	}

	familyID, err := s.resolveFamily(ctx, familyToken)
	if err != nil {
		return nil, err
	}
	if familyID == nil && !s.allowUnknown {
		return nil, apperrors.ErrUnknownFamily
	}

	key := models.FamilyKeyFor(familyID)
	candidate := models.User{
		FamilyID:    familyID,
		FamilyKey:   key,
		DisplayName: displayName,
		Expires:     s.now().UTC().Add(s.ttl),
	}

	db := s.db.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "display_name"}, {Name: "family_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"expires"}),
	}).Create(&candidate).Error; err != nil {
		return nil, fmt.Errorf("identity service: upsert user: %w", err)
	}

	// The conflict path keeps the existing row, so its id must be read back.
	var user models.User
	if err := db.Where("display_name = ? AND family_key = ?", displayName, key).Take(&user).Error; err != nil {
		return nil, fmt.Errorf("identity service: load user: %w", err)
	}
	return &user, nil
}

func (s *IdentityService) resolveFamily(ctx context.Context, token string) (*string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}

	var family models.Family
	err := s.db.WithContext(ctx).Select("id").Where("login_id = ?", token).Take(&family).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("identity service: resolve family: %w", err)
	}
	return &family.ID, nil
}
