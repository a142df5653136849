package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"luminar-api/testutil"
)

func TestProgress(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	svc := NewProgressService(db)
	user := testutil.CreateUser(t, db, "ada@example.com")

	empty, err := svc.Progress(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, empty.Proofs)
	assert.NotNil(t, empty.Proofs, "empty lists must encode as []")
	assert.NotNil(t, empty.Qualifications)

	chapter := testutil.CreateChapter(t, db, testutil.ChapterOpts{})
	testutil.AddProofs(t, db, chapter, user.ID)
	_, err = NewQualificationService(db).Qualify(ctx, chapter.ID, user.ID)
	require.NoError(t, err)

	progress, err := svc.Progress(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, progress.Proofs, 3)
	assert.Equal(t, chapter.ID, progress.Proofs[0].ChapterID)
	require.Len(t, progress.Qualifications, 1)
	q := progress.Qualifications[0]
	assert.Equal(t, chapter.ID, q.ChapterID)
	assert.Equal(t, 1, q.Position)
	require.NotNil(t, q.Rank)
	assert.Equal(t, 1, *q.Rank)

	other := testutil.CreateUser(t, db, "bob@example.com")
	theirs, err := svc.Progress(ctx, other.ID)
	require.NoError(t, err)
	assert.Empty(t, theirs.Proofs)
}
