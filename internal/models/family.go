package models

// Family is an invite-scoped group of users sharing one login link. Rows are created by
// administrators and never modified afterwards.
type Family struct {
	BaseModel

	LoginID     string `gorm:"uniqueIndex;size:64;not null" json:"-"`
	DisplayName string `gorm:"size:128;not null" json:"display_name"`
}
