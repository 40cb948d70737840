package database

import (
	"gorm.io/gorm"

	"github.com/charlesng35/gotchufam/internal/models"
)

// AutoMigrate creates or updates the families, users and user_online tables. Order
// matters: each table references the previous one.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Family{},
		&models.User{},
		&models.UserOnline{},
	)
}
