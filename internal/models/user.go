package models

import "time"

// NoFamily is the FamilyKey stored for users whose invite token did not resolve.
const NoFamily = ""

// User is a display name claimed inside a family. Expires acts as a soft TTL: heartbeats
// push it forward and the sweeper deletes rows once it passes.
type User struct {
	BaseModel

	FamilyID *string `gorm:"size:36;index" json:"family_id"`
	Family   *Family `gorm:"constraint:OnDelete:RESTRICT" json:"-"`

	// FamilyKey mirrors FamilyID with NoFamily in place of NULL. The unique name index is
	// declared on it because SQL unique indexes never consider two NULLs equal.
	FamilyKey   string `gorm:"size:36;not null;default:'';uniqueIndex:idx_user_name,priority:2" json:"-"`
	DisplayName string `gorm:"size:64;not null;uniqueIndex:idx_user_name,priority:1" json:"display_name"`

	FaceIcon []byte    `json:"face_icon"`
	Expires  time.Time `gorm:"not null;index:idx_user_expiration" json:"expires"`
}

// HasFamily reports whether the user resolved to a family at login.
func (u *User) HasFamily() bool {
	return u != nil && u.FamilyID != nil && *u.FamilyID != ""
}

// FamilyKeyFor converts a nullable family id into the value stored in FamilyKey.
func FamilyKeyFor(familyID *string) string {
	if familyID == nil {
		return NoFamily
	}
	return *familyID
}
