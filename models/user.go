package models

import "time"

// User is a player known to the API. ExternalID is the identity provider's
// subject (a Privy DID) and is the only link back to the provider.
type User struct {
	ID         string    `gorm:"primaryKey;type:uuid" json:"id"`
	ExternalID string    `gorm:"uniqueIndex;not null" json:"external_id"`
	Email      string    `json:"email,omitempty"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}
