package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"luminar-api/logger"
	"luminar-api/models"
	"luminar-api/utils"
)

var validate = validator.New()

type ChapterService struct {
	DB    *gorm.DB
	Store ObjectStore
	Clock clockwork.Clock
}

func NewChapterService(db *gorm.DB, store ObjectStore) *ChapterService {
	return &ChapterService{DB: db, Store: store, Clock: clockwork.NewRealClock()}
}

// --- Public ---

// Slots returns how many of the ten winner slots are still open. Always a
// fresh count.
func (s *ChapterService) Slots(ctx context.Context, chapterID uint) (int, error) {
	var exists int64
	if err := s.DB.WithContext(ctx).Model(&models.Chapter{}).Where("id = ?", chapterID).Count(&exists).Error; err != nil {
		return 0, Internal("Failed to fetch remaining slots", err)
	}
	if exists == 0 {
		return 0, ErrChapterNotFound
	}

	var winners int64
	if err := s.DB.WithContext(ctx).Model(&models.Winner{}).Where("chapter_id = ?", chapterID).Count(&winners).Error; err != nil {
		return 0, Internal("Failed to fetch remaining slots", err)
	}
	return max(0, models.WinnerSlots-int(winners)), nil
}

// --- Admin ---

type EndResult struct {
	ChapterPackURL string `json:"chapter_pack_url"`
	WinnersCount   int    `json:"winners_count"`
	TotalPayout    uint64 `json:"total_payout"`
}

// EndChapter closes a chapter and publishes its payout manifest. The status
// change and the upload succeed or fail together: if the upload fails the
// transaction rolls back and the chapter stays active.
func (s *ChapterService) EndChapter(ctx context.Context, chapterID uint) (*EndResult, error) {
	var result *EndResult
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var chapter models.Chapter
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&chapter, chapterID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrChapterNotFound
			}
			return Internal("Failed to load chapter", err)
		}
		if chapter.Status == models.ChapterStatusEnded {
			return ErrChapterAlreadyEnded
		}

		cutoff := s.Clock.Now().UTC()
		if err := tx.Model(&chapter).Updates(map[string]any{
			"status":   models.ChapterStatusEnded,
			"ended_at": cutoff,
		}).Error; err != nil {
			return Internal("Failed to end chapter", err)
		}

		var winners []models.Winner
		if err := tx.Preload("User").Where("chapter_id = ?", chapter.ID).Order("rank ASC").Find(&winners).Error; err != nil {
			return Internal("Failed to fetch winners", err)
		}

		pack := BuildChapterPack(&chapter, winners, cutoff)
		body, err := pack.Canonical()
		if err != nil {
			return Internal("Failed to create chapter pack", err)
		}
		url, err := s.Store.PutObject(ctx, PackKey(&chapter), "application/json", body, map[string]string{
			"sha256":     Digest(body),
			"chapter-id": fmt.Sprint(chapter.ID),
		})
		if err != nil {
			return Internal("Failed to create chapter pack", err)
		}

		if err := tx.Model(&chapter).Update("pack_url", url).Error; err != nil {
			return Internal("Failed to end chapter", err)
		}

		result = &EndResult{
			ChapterPackURL: url,
			WinnersCount:   len(pack.Winners),
			TotalPayout:    pack.TotalPayout(),
		}
		return nil
	})
	if err != nil {
		return nil, AsError(err)
	}

	logger.InfoCtx(ctx, "Chapter ended",
		zap.Uint("chapter_id", chapterID),
		zap.Int("winners", result.WinnersCount),
		zap.String("pack_url", result.ChapterPackURL),
	)
	return result, nil
}

type ChapterSummary struct {
	ID             uint                 `json:"id"`
	Title          string               `json:"title"`
	Status         models.ChapterStatus `json:"status"`
	StartsAt       time.Time            `json:"starts_at"`
	EndsAt         time.Time            `json:"ends_at"`
	PotLamports    uint64               `json:"pot_lamports"`
	QualifiedCount int                  `json:"qualified_count"`
	PackURL        *string              `json:"pack_url,omitempty"`
	WinnersCount   int                  `json:"winners_count"`
}

// ListChapters returns every chapter, newest first, with its winner count
func (s *ChapterService) ListChapters(ctx context.Context) ([]ChapterSummary, error) {
	var chapters []models.Chapter
	if err := s.DB.WithContext(ctx).Order("id DESC").Find(&chapters).Error; err != nil {
		return nil, Internal("Failed to fetch chapters", err)
	}

	var counts []struct {
		ChapterID uint
		Total     int
	}
	if err := s.DB.WithContext(ctx).Model(&models.Winner{}).
		Select("chapter_id, COUNT(*) AS total").
		Group("chapter_id").
		Scan(&counts).Error; err != nil {
		return nil, Internal("Failed to fetch chapters", err)
	}
	byChapter := make(map[uint]int, len(counts))
	for _, c := range counts {
		byChapter[c.ChapterID] = c.Total
	}

	out := make([]ChapterSummary, 0, len(chapters))
	for _, c := range chapters {
		out = append(out, ChapterSummary{
			ID:             c.ID,
			Title:          c.Title,
			Status:         c.Status,
			StartsAt:       c.StartsAt,
			EndsAt:         c.EndsAt,
			PotLamports:    c.PotLamports,
			QualifiedCount: c.QualifiedCount,
			PackURL:        c.PackURL,
			WinnersCount:   byChapter[c.ID],
		})
	}
	return out, nil
}

type WinnerView struct {
	Rank        int                `json:"rank"`
	UserID      string             `json:"user_id"`
	Email       string             `json:"email"`
	Address     *string            `json:"address"`
	Tx          *string            `json:"tx"`
	ClaimedAt   *time.Time         `json:"claimed_at"`
	ClaimStatus models.ClaimStatus `json:"claim_status"`
}

// ListWinners returns a chapter's winners by rank
func (s *ChapterService) ListWinners(ctx context.Context, chapterID uint) ([]WinnerView, error) {
	var chapter models.Chapter
	if err := s.DB.WithContext(ctx).Select("id").First(&chapter, chapterID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrChapterNotFound
		}
		return nil, Internal("Failed to fetch winners", err)
	}

	var winners []models.Winner
	if err := s.DB.WithContext(ctx).Preload("User").
		Where("chapter_id = ?", chapterID).
		Order("rank ASC").
		Find(&winners).Error; err != nil {
		return nil, Internal("Failed to fetch winners", err)
	}

	out := make([]WinnerView, 0, len(winners))
	for _, w := range winners {
		v := WinnerView{
			Rank:        w.Rank,
			UserID:      w.UserID,
			Address:     w.ClaimAddress,
			Tx:          w.ClaimTx,
			ClaimedAt:   w.ClaimedAt,
			ClaimStatus: w.ClaimStatus,
		}
		if w.User != nil {
			v.Email = w.User.Email
		}
		out = append(out, v)
	}
	return out, nil
}

// --- Operator tooling ---

type ClueSeed struct {
	Prompt   string `yaml:"prompt" validate:"required"`
	Answer   string `yaml:"answer" validate:"required"`
	Fragment string `yaml:"fragment"`
}

// ChapterSeed describes a chapter in plain text. Answers and the code are
// hashed on creation and never stored.
type ChapterSeed struct {
	Title       string     `yaml:"title" validate:"required"`
	StartsAt    time.Time  `yaml:"starts_at" validate:"required"`
	EndsAt      time.Time  `yaml:"ends_at" validate:"required,gtfield=StartsAt"`
	Code        string     `yaml:"code" validate:"required"`
	PotLamports uint64     `yaml:"pot_lamports" validate:"required,gt=0"`
	Clues       []ClueSeed `yaml:"clues" validate:"required,min=3,dive"`
}

// CreateChapter stores a chapter with its clues. It starts active when its
// start time has already passed.
func (s *ChapterService) CreateChapter(ctx context.Context, seed ChapterSeed) (*models.Chapter, error) {
	if err := validate.Struct(seed); err != nil {
		return nil, fmt.Errorf("invalid chapter seed: %w", err)
	}
	for i, c := range seed.Clues {
		if err := utils.ValidateAnswer(c.Answer); err != nil {
			return nil, fmt.Errorf("clue %d: %w", i+1, err)
		}
	}

	status := models.ChapterStatusScheduled
	if !seed.StartsAt.After(s.Clock.Now()) {
		status = models.ChapterStatusActive
	}

	chapter := models.Chapter{
		Title:       seed.Title,
		StartsAt:    seed.StartsAt.UTC(),
		EndsAt:      seed.EndsAt.UTC(),
		Status:      status,
		CodeHash:    utils.HashCode(seed.Code),
		PotLamports: seed.PotLamports,
	}
	for i, c := range seed.Clues {
		chapter.Clues = append(chapter.Clues, models.Clue{
			OrderIndex: i + 1,
			Prompt:     c.Prompt,
			AnswerHash: utils.HashAnswer(c.Answer),
			Fragment:   c.Fragment,
		})
	}

	if err := s.DB.WithContext(ctx).Create(&chapter).Error; err != nil {
		return nil, fmt.Errorf("failed to create chapter: %w", err)
	}
	logger.InfoCtx(ctx, "Chapter created",
		zap.Uint("chapter_id", chapter.ID),
		zap.String("status", string(chapter.Status)),
		zap.Int("clues", len(chapter.Clues)),
	)
	return &chapter, nil
}

// ActivateDue moves scheduled chapters whose start time has passed to active
func (s *ChapterService) ActivateDue(ctx context.Context) (int64, error) {
	res := s.DB.WithContext(ctx).Model(&models.Chapter{}).
		Where("status = ? AND starts_at <= ?", models.ChapterStatusScheduled, s.Clock.Now().UTC()).
		Update("status", models.ChapterStatusActive)
	return res.RowsAffected, res.Error
}

// DueForClose lists active chapters whose end time has passed
func (s *ChapterService) DueForClose(ctx context.Context) ([]uint, error) {
	var ids []uint
	err := s.DB.WithContext(ctx).Model(&models.Chapter{}).
		Where("status = ? AND ends_at <= ?", models.ChapterStatusActive, s.Clock.Now().UTC()).
		Order("id ASC").
		Pluck("id", &ids).Error
	return ids, err
}
