package models

import "time"

// Proof records a verified correct answer. Rows are never updated.
type Proof struct {
	ID         string    `gorm:"primaryKey;type:uuid" json:"id"`
	UserID     string    `gorm:"type:uuid;not null;uniqueIndex:idx_proof_user_clue" json:"user_id"`
	ChapterID  uint      `gorm:"not null;index" json:"chapter_id"`
	ClueID     uint      `gorm:"not null;uniqueIndex:idx_proof_user_clue" json:"clue_id"`
	ProofHash  string    `gorm:"not null" json:"-"`
	VerifiedAt time.Time `gorm:"not null" json:"verified_at"`
}
