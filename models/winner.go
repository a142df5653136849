package models

import "time"

type ClaimStatus string

const (
	ClaimStatusUnclaimed ClaimStatus = "unclaimed"
	ClaimStatusPending   ClaimStatus = "pending"
	ClaimStatusPaid      ClaimStatus = "paid"
)

// Winner is a ranked slot (1..10) in a chapter.
//
// Claim lifecycle: unclaimed -> pending (transfer signed, reservation held)
// -> paid, or back to unclaimed when the transfer definitely failed.
// ClaimAddress, ClaimTx and ClaimedAt are written together, only on paid.
type Winner struct {
	ID          uint        `gorm:"primaryKey" json:"id"`
	ChapterID   uint        `gorm:"not null;uniqueIndex:idx_winner_chapter_rank;uniqueIndex:idx_winner_chapter_user" json:"chapter_id"`
	UserID      string      `gorm:"type:uuid;not null;uniqueIndex:idx_winner_chapter_user" json:"user_id"`
	Rank        int         `gorm:"not null;uniqueIndex:idx_winner_chapter_rank" json:"rank"`
	ClaimStatus ClaimStatus `gorm:"type:varchar(16);not null;default:'unclaimed';index" json:"claim_status"`

	ClaimAddress *string    `json:"claim_address,omitempty"`
	ClaimTx      *string    `json:"claim_tx,omitempty"`
	ClaimedAt    *time.Time `json:"claimed_at,omitempty"`

	PendingAddress    *string    `json:"-"`
	PendingTx         *string    `json:"-"`
	PendingValidUntil *uint64    `json:"-"`
	ClaimStartedAt    *time.Time `json:"-"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}
