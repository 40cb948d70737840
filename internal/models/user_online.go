package models

import "time"

// UserOnline marks one client (browser tab or device) of a user as live until Expires.
type UserOnline struct {
	BaseModel

	UserID   *string   `gorm:"size:36;index" json:"user_id"`
	User     *User     `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	ClientID string    `gorm:"uniqueIndex;size:128;not null" json:"client_id"`
	Expires  time.Time `gorm:"not null;index:idx_user_online_expiration" json:"expires"`
}

func (UserOnline) TableName() string { return "user_online" }
