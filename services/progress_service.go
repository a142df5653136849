package services

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"luminar-api/models"
)

type ProgressService struct {
	DB *gorm.DB
}

func NewProgressService(db *gorm.DB) *ProgressService {
	return &ProgressService{DB: db}
}

type ProofProgress struct {
	ClueID     uint      `json:"clue_id"`
	ChapterID  uint      `json:"chapter_id"`
	VerifiedAt time.Time `json:"verified_at"`
}

type QualificationProgress struct {
	ChapterID   uint      `json:"chapter_id"`
	Rank        *int      `json:"rank"`
	Position    int       `json:"position"`
	CompletedAt time.Time `json:"completed_at"`
}

type Progress struct {
	Proofs         []ProofProgress         `json:"proofs"`
	Qualifications []QualificationProgress `json:"qualifications"`
}

// Progress returns the user's solved clues and chapter qualifications
func (s *ProgressService) Progress(ctx context.Context, userID string) (*Progress, error) {
	out := &Progress{
		Proofs:         []ProofProgress{},
		Qualifications: []QualificationProgress{},
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.DB.WithContext(gctx).Model(&models.Proof{}).
			Select("clue_id", "chapter_id", "verified_at").
			Where("user_id = ?", userID).
			Order("verified_at ASC").
			Scan(&out.Proofs).Error
	})
	g.Go(func() error {
		return s.DB.WithContext(gctx).Model(&models.Qualification{}).
			Select("chapter_id", "rank", "position", "completed_at").
			Where("user_id = ?", userID).
			Order("completed_at ASC").
			Scan(&out.Qualifications).Error
	})
	if err := g.Wait(); err != nil {
		return nil, Internal("Failed to fetch user progress", err)
	}
	return out, nil
}
