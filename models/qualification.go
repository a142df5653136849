package models

import "time"

// Qualification marks a user as having completed a chapter. Position is the
// gap-free order of qualification; Rank is set only for positions 1..10.
type Qualification struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      string    `gorm:"type:uuid;not null;uniqueIndex:idx_qualification_user_chapter" json:"user_id"`
	ChapterID   uint      `gorm:"not null;uniqueIndex:idx_qualification_user_chapter;uniqueIndex:idx_qualification_chapter_position" json:"chapter_id"`
	Position    int       `gorm:"not null;uniqueIndex:idx_qualification_chapter_position" json:"position"`
	Rank        *int      `json:"rank"`
	CompletedAt time.Time `gorm:"not null" json:"completed_at"`
}
