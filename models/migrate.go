package models

import "gorm.io/gorm"

// AutoMigrate creates or updates every table the API owns
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&Chapter{},
		&Clue{},
		&Proof{},
		&Qualification{},
		&Winner{},
		&Throttle{},
	)
}
