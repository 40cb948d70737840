package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/gotchufam/internal/models"
	"github.com/charlesng35/gotchufam/pkg/crypto"
	apperrors "github.com/charlesng35/gotchufam/pkg/errors"
)

const (
	defaultLoginTokenBytes = 24
	maxTokenAttempts       = 3
	maxFamilyName          = 128
)

// ErrFaceIconNotImage is returned when an uploaded face icon is not a recognised image.
var ErrFaceIconNotImage = apperrors.New("invalid_face_icon", "face icon must be a PNG, JPEG, GIF or WebP image", http.StatusBadRequest)

// RosterEntry is one member of a family as shown by whoswho.
type RosterEntry struct {
	DisplayName string `json:"display_name"`
	FaceIcon    []byte `json:"face_icon"`
}

// FamilyOption customises FamilyService behaviour.
type FamilyOption func(*FamilyService)

// WithLoginTokenSize adjusts the random invite token length in bytes.
func WithLoginTokenSize(size int) FamilyOption {
	return func(s *FamilyService) {
		if size > 0 {
			s.tokenLength = size
		}
	}
}

// FamilyService administers families and reads their membership.
type FamilyService struct {
	db          *gorm.DB
	tokenLength int
}

// NewFamilyService constructs a FamilyService.
func NewFamilyService(db *gorm.DB, opts ...FamilyOption) (*FamilyService, error) {
	if db == nil {
		return nil, errors.New("family service: db is required")
	}
	service := &FamilyService{
		db:          db,
		tokenLength: defaultLoginTokenBytes,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// CreateFamily stores a new family under a freshly generated, unguessable invite token.
func (s *FamilyService) CreateFamily(ctx context.Context, displayName string) (*models.Family, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return nil, apperrors.NewBadRequest("family name is required")
	}
	if len([]rune(displayName)) > maxFamilyName {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("family name must be at most %d characters", maxFamilyName))
	}

	for attempt := 1; ; attempt++ {
		token, err := crypto.GenerateToken(s.tokenLength)
		if err != nil {
			return nil, fmt.Errorf("family service: generate token: %w", err)
		}

		family := &models.Family{LoginID: token, DisplayName: displayName}
		err = s.db.WithContext(ctx).Create(family).Error
		if err == nil {
			return family, nil
		}
		if !isUniqueViolation(err) || attempt >= maxTokenAttempts {
			return nil, fmt.Errorf("family service: create family: %w", err)
		}
	}
}

// ListFamilies returns every family ordered by creation.
func (s *FamilyService) ListFamilies(ctx context.Context) ([]models.Family, error) {
	var families []models.Family
	if err := s.db.WithContext(ctx).Order("created_at, display_name").Find(&families).Error; err != nil {
		return nil, fmt.Errorf("family service: list families: %w", err)
	}
	return families, nil
}

// Get returns the family with the given id.
func (s *FamilyService) Get(ctx context.Context, id string) (*models.Family, error) {
	var family models.Family
	err := s.db.WithContext(ctx).Take(&family, "id = ?", strings.TrimSpace(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("family service: get family: %w", err)
	}
	return &family, nil
}

// Roster lists every member of the family regardless of expiry.
func (s *FamilyService) Roster(ctx context.Context, familyID string) ([]RosterEntry, error) {
	roster := make([]RosterEntry, 0)
	if familyID == models.NoFamily {
		return roster, nil
	}

	if err := s.db.WithContext(ctx).
		Model(&models.User{}).
		Select("display_name, face_icon").
		Where("family_id = ?", familyID).
		Order("display_name").
		Scan(&roster).Error; err != nil {
		return nil, fmt.Errorf("family service: roster: %w", err)
	}
	return roster, nil
}

// SetFaceIcon stores an avatar image on the user. An empty icon clears it.
func (s *FamilyService) SetFaceIcon(ctx context.Context, userID string, icon []byte) error {
	if len(icon) > 0 && !isImage(icon) {
		return ErrFaceIconNotImage
	}

	var value any
	if len(icon) > 0 {
		value = icon
	}

	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Update("face_icon", value).Error; err != nil {
		return fmt.Errorf("family service: set face icon: %w", err)
	}
	return nil
}

func isImage(data []byte) bool {
	switch http.DetectContentType(data) {
	case "image/png", "image/jpeg", "image/gif", "image/webp":
		return true
	}
	return false
}
