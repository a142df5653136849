package services

import (
	"context"
	"errors"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"luminar-api/logger"
	"luminar-api/models"
)

// RequiredProofs is how many solved clues a chapter needs before qualifying
const RequiredProofs = 3

type QualificationService struct {
	DB    *gorm.DB
	Clock clockwork.Clock
}

func NewQualificationService(db *gorm.DB) *QualificationService {
	return &QualificationService{DB: db, Clock: clockwork.NewRealClock()}
}

type QualifyResult struct {
	Qualified bool   `json:"qualified"`
	Rank      *int   `json:"rank,omitempty"`
	Position  int    `json:"position,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// Qualify records that userID completed the chapter and assigns its position.
//
// Positions come from the chapter's qualified_count, incremented in the same
// transaction that inserts the qualification. The UPDATE takes the chapter
// row lock, so concurrent qualifiers are serialised and each sees a distinct,
// gap-free position; the first ten become winners.
func (s *QualificationService) Qualify(ctx context.Context, chapterID uint, userID string) (*QualifyResult, error) {
	if existing, err := s.existing(ctx, s.DB, chapterID, userID); err != nil || existing != nil {
		return existing, err
	}

	var proofs int64
	if err := s.DB.WithContext(ctx).Model(&models.Proof{}).
		Where("user_id = ? AND chapter_id = ?", userID, chapterID).
		Count(&proofs).Error; err != nil {
		return nil, Internal("Failed to verify qualifications", err)
	}
	if proofs < RequiredProofs {
		return &QualifyResult{Qualified: false, Reason: "not_enough_proofs"}, nil
	}

	var chapter models.Chapter
	if err := s.DB.WithContext(ctx).Select("id", "status").First(&chapter, chapterID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrChapterNotFound
		}
		return nil, Internal("Failed to load chapter", err)
	}

	if chapter.Status != models.ChapterStatusActive {
		return nil, ErrChapterEnded
	}

	var result *QualifyResult
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Chapter{}).
			Where("id = ? AND status = ?", chapterID, models.ChapterStatusActive).
			UpdateColumn("qualified_count", gorm.Expr("qualified_count + 1"))
		if res.Error != nil {
			return Internal("Failed to qualify user", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrChapterEnded
		}

		var position int
		if err := tx.Model(&models.Chapter{}).Where("id = ?", chapterID).
			Pluck("qualified_count", &position).Error; err != nil {
			return Internal("Failed to qualify user", err)
		}

		q := models.Qualification{
			UserID:      userID,
			ChapterID:   chapterID,
			Position:    position,
			CompletedAt: s.Clock.Now().UTC(),
		}
		if position <= models.WinnerSlots {
			rank := position
			q.Rank = &rank
		}
		if err := tx.Create(&q).Error; err != nil {
			return err
		}

		if q.Rank != nil {
			winner := models.Winner{
				ChapterID:   chapterID,
				UserID:      userID,
				Rank:        *q.Rank,
				ClaimStatus: models.ClaimStatusUnclaimed,
			}
			if err := tx.Create(&winner).Error; err != nil {
				return err
			}
		}

		result = &QualifyResult{Qualified: true, Rank: q.Rank, Position: position}
		return nil
	})
	if err != nil {
		// Same user qualifying twice at once: the loser's insert hits the
		// unique index and its counter increment rolls back with it.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			existing, lookupErr := s.existing(ctx, s.DB, chapterID, userID)
			if lookupErr == nil && existing != nil {
				return existing, nil
			}
		}
		return nil, AsError(err)
	}

	logger.InfoCtx(ctx, "User qualified",
		zap.String("user_id", userID),
		zap.Uint("chapter_id", chapterID),
		zap.Int("position", result.Position),
		zap.Bool("winner", result.Rank != nil),
	)
	return result, nil
}

func (s *QualificationService) existing(ctx context.Context, db *gorm.DB, chapterID uint, userID string) (*QualifyResult, error) {
	var q models.Qualification
	err := db.WithContext(ctx).Where("user_id = ? AND chapter_id = ?", userID, chapterID).Take(&q).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, Internal("Failed to load qualification", err)
	}
	return &QualifyResult{Qualified: true, Rank: q.Rank, Position: q.Position}, nil
}
