package models

import "time"

// Throttle holds the answer cooldown for one (user, clue) pair
type Throttle struct {
	UserID        string    `gorm:"primaryKey;type:uuid" json:"user_id"`
	ClueID        uint      `gorm:"primaryKey" json:"clue_id"`
	NextAllowedAt time.Time `gorm:"not null" json:"next_allowed_at"`
	Failures      int       `gorm:"not null;default:0" json:"failures"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
