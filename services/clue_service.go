package services

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"luminar-api/logger"
	"luminar-api/models"
	"luminar-api/utils"
)

type ClueService struct {
	DB       *gorm.DB
	Clock    clockwork.Clock
	Cooldown time.Duration
}

func NewClueService(db *gorm.DB, cooldown time.Duration) *ClueService {
	return &ClueService{DB: db, Clock: clockwork.NewRealClock(), Cooldown: cooldown}
}

type SubmitResult struct {
	Fragment string `json:"fragment"`
	ProofID  string `json:"proof_id"`
}

// Submit checks an answer for a clue and records a proof when it matches.
// A wrong answer starts a per-(user, clue) cooldown; answers inside the
// cooldown are refused before the hash is compared.
func (s *ClueService) Submit(ctx context.Context, clueID uint, answer, userID string) (*SubmitResult, error) {
	if err := utils.ValidateAnswer(answer); err != nil {
		msg := "Answer cannot be empty"
		if errors.Is(err, utils.ErrAnswerTooLong) {
			msg = "Answer is too long"
		}
		return nil, &Error{Kind: KindInvalidAnswer, Message: msg}
	}

	var clue models.Clue
	if err := s.DB.WithContext(ctx).First(&clue, clueID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrClueNotFound
		}
		return nil, Internal("Failed to load clue", err)
	}

	var chapter models.Chapter
	if err := s.DB.WithContext(ctx).Select("id", "status").First(&chapter, clue.ChapterID).Error; err != nil {
		return nil, Internal("Failed to load chapter", err)
	}
	if chapter.Status != models.ChapterStatusActive {
		return nil, ErrChapterEnded
	}

	var solved int64
	if err := s.DB.WithContext(ctx).Model(&models.Proof{}).
		Where("user_id = ? AND clue_id = ?", userID, clue.ID).
		Count(&solved).Error; err != nil {
		return nil, Internal("Failed to check proofs", err)
	}
	if solved > 0 {
		return nil, ErrAlreadySolved
	}

	answerHash := utils.HashAnswer(answer)
	now := s.Clock.Now().UTC()

	var (
		result *SubmitResult
		wrong  bool
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The row must exist before it is locked, or a burst of first
		// attempts would all pass the cooldown check.
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "clue_id"}},
			DoNothing: true,
		}).Create(&models.Throttle{
			UserID:        userID,
			ClueID:        clue.ID,
			NextAllowedAt: now,
		}).Error; err != nil {
			return Internal("Failed to check cooldown", err)
		}

		var throttle models.Throttle
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND clue_id = ?", userID, clue.ID).
			Take(&throttle).Error
		switch {
		case err == nil:
			if wait := throttle.NextAllowedAt.Sub(now); wait > 0 {
				return cooldownError(int(math.Ceil(wait.Seconds())))
			}
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return Internal("Failed to check cooldown", err)
		}

		if answerHash != clue.AnswerHash {
			wrong = true
			return tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "user_id"}, {Name: "clue_id"}},
				DoUpdates: clause.Assignments(map[string]any{
					"next_allowed_at": now.Add(s.Cooldown),
					"failures":        gorm.Expr("throttles.failures + 1"),
					"updated_at":      now,
				}),
			}).Create(&models.Throttle{
				UserID:        userID,
				ClueID:        clue.ID,
				NextAllowedAt: now.Add(s.Cooldown),
				Failures:      1,
			}).Error
		}

		proof := models.Proof{
			ID:         uuid.NewString(),
			UserID:     userID,
			ChapterID:  clue.ChapterID,
			ClueID:     clue.ID,
			ProofHash:  answerHash,
			VerifiedAt: now,
		}
		if err := tx.Create(&proof).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrAlreadySolved
			}
			return Internal("Failed to record proof", err)
		}
		result = &SubmitResult{Fragment: clue.Fragment, ProofID: proof.ID}
		return nil
	})
	if err != nil {
		return nil, AsError(err)
	}
	if wrong {
		return nil, ErrInvalidAnswer
	}

	logger.InfoCtx(ctx, "Clue solved",
		zap.String("user_id", userID),
		zap.Uint("clue_id", clue.ID),
		zap.String("proof_id", result.ProofID),
	)
	return result, nil
}
