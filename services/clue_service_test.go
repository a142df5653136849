package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"luminar-api/models"
	"luminar-api/testutil"
)

func newClueService(t *testing.T) (*ClueService, *clockwork.FakeClock, *models.Chapter, *models.User) {
	t.Helper()
	db := testutil.NewDB(t)
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	chapter := testutil.CreateChapter(t, db, testutil.ChapterOpts{})
	user := testutil.CreateUser(t, db, "ada@example.com")

	svc := NewClueService(db, 10*time.Second)
	svc.Clock = clock
	return svc, clock, chapter, user
}

func TestSubmit_CorrectAnswer(t *testing.T) {
	svc, _, chapter, user := newClueService(t)
	clue := chapter.Clues[0]

	result, err := svc.Submit(context.Background(), clue.ID, "  Blue-Whale! ", user.ID)
	require.NoError(t, err)
	assert.Equal(t, "fragment-1", result.Fragment)
	assert.NotEmpty(t, result.ProofID)

	var proof models.Proof
	require.NoError(t, svc.DB.First(&proof, "id = ?", result.ProofID).Error)
	assert.Equal(t, chapter.ID, proof.ChapterID)
	assert.Equal(t, clue.AnswerHash, proof.ProofHash)
}

func TestSubmit_AlreadySolved(t *testing.T) {
	svc, _, chapter, user := newClueService(t)
	clue := chapter.Clues[0]

	_, err := svc.Submit(context.Background(), clue.ID, "blue whale", user.ID)
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), clue.ID, "blue whale", user.ID)
	assert.ErrorIs(t, err, ErrAlreadySolved)

	var count int64
	svc.DB.Model(&models.Proof{}).Where("user_id = ? AND clue_id = ?", user.ID, clue.ID).Count(&count)
	assert.EqualValues(t, 1, count)
}

func TestSubmit_WrongAnswerStartsCooldown(t *testing.T) {
	svc, clock, chapter, user := newClueService(t)
	clue := chapter.Clues[0]
	ctx := context.Background()

	_, err := svc.Submit(ctx, clue.ID, "orca", user.ID)
	assert.ErrorIs(t, err, ErrInvalidAnswer)

	// the right answer is refused while cooling down
	clock.Advance(4 * time.Second)
	_, err = svc.Submit(ctx, clue.ID, "blue whale", user.ID)
	assert.ErrorIs(t, err, ErrCooldown)
	assert.Equal(t, 6, AsError(err).RetryAfter)

	clock.Advance(6 * time.Second)
	_, err = svc.Submit(ctx, clue.ID, "narwhal", user.ID)
	assert.ErrorIs(t, err, ErrInvalidAnswer)

	var throttle models.Throttle
	require.NoError(t, svc.DB.Where("user_id = ? AND clue_id = ?", user.ID, clue.ID).Take(&throttle).Error)
	assert.Equal(t, 2, throttle.Failures)
	assert.True(t, throttle.NextAllowedAt.Equal(clock.Now().Add(10*time.Second)))

	clock.Advance(10 * time.Second)
	_, err = svc.Submit(ctx, clue.ID, "blue whale", user.ID)
	assert.NoError(t, err)
}

func TestSubmit_FirstAttemptCreatesThrottleRow(t *testing.T) {
	svc, _, chapter, user := newClueService(t)
	ctx := context.Background()

	_, err := svc.Submit(ctx, chapter.Clues[0].ID, "blue whale", user.ID)
	require.NoError(t, err)
	_, err = svc.Submit(ctx, chapter.Clues[1].ID, "orca", user.ID)
	require.ErrorIs(t, err, ErrInvalidAnswer)

	var throttles []models.Throttle
	require.NoError(t, svc.DB.Where("user_id = ?", user.ID).Order("clue_id").Find(&throttles).Error)
	require.Len(t, throttles, 2)
	assert.Equal(t, 0, throttles[0].Failures)
	assert.Equal(t, 1, throttles[1].Failures)

	// a clean row does not hold back the next clue
	_, err = svc.Submit(ctx, chapter.Clues[2].ID, "silver key", user.ID)
	assert.NoError(t, err)
}

func TestSubmit_CooldownIsPerClue(t *testing.T) {
	svc, _, chapter, user := newClueService(t)
	ctx := context.Background()

	_, err := svc.Submit(ctx, chapter.Clues[0].ID, "orca", user.ID)
	require.ErrorIs(t, err, ErrInvalidAnswer)

	_, err = svc.Submit(ctx, chapter.Clues[1].ID, "north star", user.ID)
	assert.NoError(t, err)
}

func TestSubmit_Rejections(t *testing.T) {
	svc, _, chapter, user := newClueService(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		clueID uint
		answer string
		kind   Kind
	}{
		{"empty after normalizing", chapter.Clues[0].ID, " !!! ", KindInvalidAnswer},
		{"too long", chapter.Clues[0].ID, strings.Repeat("a", 101), KindInvalidAnswer},
		{"unknown clue", 9999, "blue whale", KindClueNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Submit(ctx, tt.clueID, tt.answer, user.ID)
			assert.Equal(t, tt.kind, AsError(err).Kind)
		})
	}
}

func TestSubmit_EndedChapter(t *testing.T) {
	svc, _, chapter, user := newClueService(t)
	require.NoError(t, svc.DB.Model(chapter).Update("status", models.ChapterStatusEnded).Error)

	_, err := svc.Submit(context.Background(), chapter.Clues[0].ID, "blue whale", user.ID)
	assert.ErrorIs(t, err, ErrChapterEnded)
}
