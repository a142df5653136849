package models

import "time"

type ChapterStatus string

const (
	ChapterStatusScheduled ChapterStatus = "scheduled"
	ChapterStatusActive    ChapterStatus = "active"
	ChapterStatusEnded     ChapterStatus = "ended"
)

// WinnerSlots is the number of ranked winners a chapter pays out
const WinnerSlots = 10

// Chapter is one round of the hunt. Status only moves forward:
// scheduled -> active -> ended.
type Chapter struct {
	ID          uint          `gorm:"primaryKey" json:"id"`
	Title       string        `gorm:"not null" json:"title"`
	StartsAt    time.Time     `gorm:"not null" json:"starts_at"`
	EndsAt      time.Time     `gorm:"not null" json:"ends_at"`
	Status      ChapterStatus `gorm:"type:varchar(16);not null;default:'scheduled';index" json:"status"`
	CodeHash    string        `gorm:"not null" json:"-"`
	PotLamports uint64        `gorm:"not null" json:"pot_lamports"`

	// QualifiedCount is the per-chapter qualification sequence. It is only
	// ever incremented inside the qualifying transaction.
	QualifiedCount int `gorm:"not null;default:0" json:"qualified_count"`

	PackURL   *string    `json:"pack_url,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`

	Clues []Clue `gorm:"foreignKey:ChapterID" json:"clues,omitempty"`
}

// ShareLamports is the fixed payout per winner: floor(pot / 10), independent
// of how many winners end up claiming.
func (c *Chapter) ShareLamports() uint64 {
	return c.PotLamports / WinnerSlots
}
