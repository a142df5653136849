package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gosimple/slug"
	"github.com/gowebpki/jcs"

	"luminar-api/models"
)

// ObjectStore publishes immutable documents and returns their public URL
type ObjectStore interface {
	PutObject(ctx context.Context, key, contentType string, body []byte, metadata map[string]string) (string, error)
}

// PackWinner is one ranked slot in a chapter pack
type PackWinner struct {
	Rank           int                `json:"rank"`
	UserID         string             `json:"user_id"`
	Email          string             `json:"email"`
	Address        *string            `json:"address"`
	AmountLamports uint64             `json:"amount_lamports"`
	Tx             *string            `json:"tx"`
	ClaimedAt      *time.Time         `json:"claimed_at"`
	ClaimStatus    models.ClaimStatus `json:"claim_status"`
}

// ChapterPack is the payout manifest published when a chapter closes
type ChapterPack struct {
	ChapterID           uint         `json:"chapter_id"`
	Title               string       `json:"title"`
	CutoffISO           string       `json:"cutoff_iso"`
	PotLamports         uint64       `json:"pot_lamports"`
	ShareAmountLamports uint64       `json:"share_amount_lamports"`
	Winners             []PackWinner `json:"winners"`
}

// BuildChapterPack lists winners in the order given (by rank). Every winner is
// owed the same share as a claim would pay, whether or not they claimed.
func BuildChapterPack(chapter *models.Chapter, winners []models.Winner, cutoff time.Time) *ChapterPack {
	share := chapter.ShareLamports()
	pack := &ChapterPack{
		ChapterID:           chapter.ID,
		Title:               chapter.Title,
		CutoffISO:           cutoff.UTC().Format(time.RFC3339Nano),
		PotLamports:         chapter.PotLamports,
		ShareAmountLamports: share,
		Winners:             make([]PackWinner, 0, len(winners)),
	}
	for _, w := range winners {
		entry := PackWinner{
			Rank:           w.Rank,
			UserID:         w.UserID,
			Address:        w.ClaimAddress,
			AmountLamports: share,
			Tx:             w.ClaimTx,
			ClaimedAt:      w.ClaimedAt,
			ClaimStatus:    w.ClaimStatus,
		}
		if w.User != nil {
			entry.Email = w.User.Email
		}
		pack.Winners = append(pack.Winners, entry)
	}
	return pack
}

// TotalPayout is what the vault owes across all listed winners
func (p *ChapterPack) TotalPayout() uint64 {
	return uint64(len(p.Winners)) * p.ShareAmountLamports
}

// Canonical serialises the pack as RFC 8785 JSON so its digest is stable
func (p *ChapterPack) Canonical() ([]byte, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chapter pack: %w", err)
	}
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize chapter pack: %w", err)
	}
	return out, nil
}

// Digest returns hex SHA-256 of the canonical form
func Digest(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// PackKey is the object key for a chapter's pack
func PackKey(chapter *models.Chapter) string {
	name := slug.Make(chapter.Title)
	if name == "" {
		return fmt.Sprintf("packs/chapter-%d.json", chapter.ID)
	}
	return fmt.Sprintf("packs/chapter-%d-%s.json", chapter.ID, name)
}
