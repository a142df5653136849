// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"luminar-api/models"
	"luminar-api/utils"
)

// NewDB returns a migrated in-memory SQLite database private to t. It holds a
// single connection, so transactions run one at a time.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%s?mode=memory&cache=shared&_busy_timeout=5000", name, uuid.NewString()[:8])
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, models.AutoMigrate(db))
	return db
}

// CreateUser inserts a user with the given email
func CreateUser(t testing.TB, db *gorm.DB, email string) *models.User {
	t.Helper()
	u := &models.User{ID: uuid.NewString(), ExternalID: "did:privy:" + uuid.NewString(), Email: email}
	require.NoError(t, db.Create(u).Error)
	return u
}

// ChapterOpts tweaks CreateChapter. Zero values pick sensible defaults.
type ChapterOpts struct {
	Title       string
	Status      models.ChapterStatus
	Code        string
	PotLamports uint64
	StartsAt    time.Time
	EndsAt      time.Time
	Answers     []string
}

// CreateChapter inserts a chapter with one clue per answer (three by default)
func CreateChapter(t testing.TB, db *gorm.DB, opts ChapterOpts) *models.Chapter {
	t.Helper()
	if opts.Title == "" {
		opts.Title = "The Lantern"
	}
	if opts.Status == "" {
		opts.Status = models.ChapterStatusActive
	}
	if opts.Code == "" {
		opts.Code = "open sesame"
	}
	if opts.PotLamports == 0 {
		opts.PotLamports = 1_000_000_000
	}
	if opts.StartsAt.IsZero() {
		opts.StartsAt = time.Now().UTC().Add(-time.Hour)
	}
	if opts.EndsAt.IsZero() {
		opts.EndsAt = opts.StartsAt.Add(7 * 24 * time.Hour)
	}
	if opts.Answers == nil {
		opts.Answers = []string{"blue whale", "north star", "silver key"}
	}

	chapter := &models.Chapter{
		Title:       opts.Title,
		StartsAt:    opts.StartsAt.UTC(),
		EndsAt:      opts.EndsAt.UTC(),
		Status:      opts.Status,
		CodeHash:    utils.HashCode(opts.Code),
		PotLamports: opts.PotLamports,
	}
	for i, a := range opts.Answers {
		chapter.Clues = append(chapter.Clues, models.Clue{
			OrderIndex: i + 1,
			Prompt:     fmt.Sprintf("Clue %d", i+1),
			AnswerHash: utils.HashAnswer(a),
			Fragment:   fmt.Sprintf("fragment-%d", i+1),
		})
	}
	require.NoError(t, db.Create(chapter).Error)
	return chapter
}

// AddProofs records a proof for each of the chapter's clues
func AddProofs(t testing.TB, db *gorm.DB, chapter *models.Chapter, userID string) {
	t.Helper()
	for _, c := range chapter.Clues {
		require.NoError(t, db.Create(&models.Proof{
			ID:         uuid.NewString(),
			UserID:     userID,
			ClueID:     c.ID,
			ChapterID:  chapter.ID,
			ProofHash:  c.AnswerHash,
			VerifiedAt: time.Now().UTC(),
		}).Error)
	}
}

// AddWinner inserts an unclaimed winner row at rank
func AddWinner(t testing.TB, db *gorm.DB, chapterID uint, userID string, rank int) *models.Winner {
	t.Helper()
	w := &models.Winner{ChapterID: chapterID, UserID: userID, Rank: rank, ClaimStatus: models.ClaimStatusUnclaimed}
	require.NoError(t, db.Create(w).Error)
	return w
}
