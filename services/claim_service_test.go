package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"luminar-api/models"
	"luminar-api/testutil"
)

const recipient = "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"

type claimFixture struct {
	svc     *ClaimService
	payout  *mockPayout
	clock   *clockwork.FakeClock
	chapter *models.Chapter
	user    *models.User
	winner  *models.Winner
}

func newClaimFixture(t *testing.T) *claimFixture {
	t.Helper()
	db := testutil.NewDB(t)
	chapter := testutil.CreateChapter(t, db, testutil.ChapterOpts{Code: "Lantern-42"})
	user := testutil.CreateUser(t, db, "ada@example.com")
	winner := testutil.AddWinner(t, db, chapter.ID, user.ID, 1)

	payout := &mockPayout{}
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := NewClaimService(db, payout, time.Second)
	svc.Clock = clock

	return &claimFixture{svc: svc, payout: payout, clock: clock, chapter: chapter, user: user, winner: winner}
}

func (f *claimFixture) reload(t *testing.T) models.Winner {
	t.Helper()
	var w models.Winner
	require.NoError(t, f.svc.DB.First(&w, f.winner.ID).Error)
	return w
}

func (f *claimFixture) expectPrepare(signature string) {
	f.payout.On("Prepare", mock.Anything, recipient, uint64(100_000_000)).
		Return(&SignedTransfer{Signature: signature, LastValidBlockHeight: 500}, nil).Once()
}

func TestClaim_PaysOnce(t *testing.T) {
	f := newClaimFixture(t)
	ctx := context.Background()
	f.expectPrepare("sig-1")
	f.payout.On("Submit", mock.Anything, mock.Anything).Return(nil).Once()

	result, err := f.svc.Claim(ctx, f.chapter.ID, f.user.ID, "  lantern-42 ", recipient)
	require.NoError(t, err)
	assert.Equal(t, &ClaimResult{Status: ClaimPaid, TxSig: "sig-1"}, result)

	w := f.reload(t)
	assert.Equal(t, models.ClaimStatusPaid, w.ClaimStatus)
	require.NotNil(t, w.ClaimAddress)
	require.NotNil(t, w.ClaimTx)
	require.NotNil(t, w.ClaimedAt)
	assert.Equal(t, recipient, *w.ClaimAddress)
	assert.Equal(t, "sig-1", *w.ClaimTx)
	assert.Nil(t, w.PendingTx)

	_, err = f.svc.Claim(ctx, f.chapter.ID, f.user.ID, "lantern-42", recipient)
	assert.ErrorIs(t, err, ErrAlreadyClaimed)

	f.payout.AssertNumberOfCalls(t, "Prepare", 1)
	f.payout.AssertNumberOfCalls(t, "Submit", 1)
}

func TestClaim_Preconditions(t *testing.T) {
	f := newClaimFixture(t)
	ctx := context.Background()
	stranger := testutil.CreateUser(t, f.svc.DB, "bob@example.com")

	tests := []struct {
		name      string
		chapterID uint
		userID    string
		code      string
		to        string
		want      *Error
	}{
		{"missing code", f.chapter.ID, f.user.ID, "", recipient, BadRequest("")},
		{"unknown chapter", 999, f.user.ID, "lantern-42", recipient, ErrChapterNotFound},
		{"wrong code", f.chapter.ID, f.user.ID, "lantern 42", recipient, ErrBadCode},
		{"not a winner", f.chapter.ID, stranger.ID, "lantern-42", recipient, ErrNotWinner},
		{"bad address", f.chapter.ID, f.user.ID, "lantern-42", "0xdeadbeef", ErrBadAddress},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Claim(ctx, tt.chapterID, tt.userID, tt.code, tt.to)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	f.payout.AssertNotCalled(t, "Prepare", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, models.ClaimStatusUnclaimed, f.reload(t).ClaimStatus)
}

func TestClaim_EndedChapter(t *testing.T) {
	f := newClaimFixture(t)
	require.NoError(t, f.svc.DB.Model(&models.Chapter{}).Where("id = ?", f.chapter.ID).
		Update("status", models.ChapterStatusEnded).Error)

	_, err := f.svc.Claim(context.Background(), f.chapter.ID, f.user.ID, "lantern-42", recipient)
	assert.ErrorIs(t, err, ErrChapterEnded)
}

func TestClaim_RejectedTransferReleasesReservation(t *testing.T) {
	f := newClaimFixture(t)
	ctx := context.Background()
	f.expectPrepare("sig-1")
	f.payout.On("Submit", mock.Anything, mock.Anything).Return(ErrTransferRejected).Once()

	_, err := f.svc.Claim(ctx, f.chapter.ID, f.user.ID, "lantern-42", recipient)
	assert.Equal(t, KindInternal, AsError(err).Kind)

	w := f.reload(t)
	assert.Equal(t, models.ClaimStatusUnclaimed, w.ClaimStatus)
	assert.Nil(t, w.ClaimAddress)
	assert.Nil(t, w.ClaimTx)
	assert.Nil(t, w.ClaimedAt)
	assert.Nil(t, w.PendingTx)

	// the winner can try again
	f.expectPrepare("sig-2")
	f.payout.On("Submit", mock.Anything, mock.Anything).Return(nil).Once()
	result, err := f.svc.Claim(ctx, f.chapter.ID, f.user.ID, "lantern-42", recipient)
	require.NoError(t, err)
	assert.Equal(t, "sig-2", result.TxSig)
}

func TestClaim_InsufficientFundsChangesNothing(t *testing.T) {
	f := newClaimFixture(t)
	f.payout.On("Prepare", mock.Anything, recipient, uint64(100_000_000)).Return(nil, ErrInsufficientFunds).Once()

	_, err := f.svc.Claim(context.Background(), f.chapter.ID, f.user.ID, "lantern-42", recipient)
	assert.Equal(t, KindInternal, AsError(err).Kind)
	assert.Equal(t, models.ClaimStatusUnclaimed, f.reload(t).ClaimStatus)
	f.payout.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
}

func TestClaim_UnknownOutcomeStaysPending(t *testing.T) {
	f := newClaimFixture(t)
	ctx := context.Background()
	f.expectPrepare("sig-1")
	f.payout.On("Submit", mock.Anything, mock.Anything).Return(context.DeadlineExceeded).Once()

	result, err := f.svc.Claim(ctx, f.chapter.ID, f.user.ID, "lantern-42", recipient)
	require.NoError(t, err)
	assert.Equal(t, &ClaimResult{Status: ClaimPending, TxSig: "sig-1"}, result)

	w := f.reload(t)
	assert.Equal(t, models.ClaimStatusPending, w.ClaimStatus)
	require.NotNil(t, w.PendingTx)
	assert.Equal(t, "sig-1", *w.PendingTx)
	require.NotNil(t, w.PendingValidUntil)
	assert.EqualValues(t, 500, *w.PendingValidUntil)
	assert.Nil(t, w.ClaimedAt)

	_, err = f.svc.Claim(ctx, f.chapter.ID, f.user.ID, "lantern-42", recipient)
	assert.ErrorIs(t, err, ErrClaimPending)
	f.payout.AssertNumberOfCalls(t, "Prepare", 1)
}

func TestReconcilePending(t *testing.T) {
	tests := []struct {
		name      string
		status    TransferStatus
		statusErr error
		want      models.ClaimStatus
		summary   ReconcileSummary
	}{
		{"confirmed", TransferConfirmed, nil, models.ClaimStatusPaid, ReconcileSummary{Checked: 1, Paid: 1}},
		{"expired", TransferExpired, nil, models.ClaimStatusUnclaimed, ReconcileSummary{Checked: 1, Released: 1}},
		{"failed", TransferFailed, nil, models.ClaimStatusUnclaimed, ReconcileSummary{Checked: 1, Released: 1}},
		{"still in flight", TransferPending, nil, models.ClaimStatusPending, ReconcileSummary{Checked: 1}},
		{"rpc error", TransferPending, errors.New("rpc down"), models.ClaimStatusPending, ReconcileSummary{Checked: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newClaimFixture(t)
			ctx := context.Background()
			f.expectPrepare("sig-1")
			f.payout.On("Submit", mock.Anything, mock.Anything).Return(context.DeadlineExceeded).Once()
			_, err := f.svc.Claim(ctx, f.chapter.ID, f.user.ID, "lantern-42", recipient)
			require.NoError(t, err)

			// inside the grace period nothing is checked
			summary, err := f.svc.ReconcilePending(ctx, 2*time.Minute)
			require.NoError(t, err)
			assert.Zero(t, summary.Checked)

			f.clock.Advance(3 * time.Minute)
			f.payout.On("Status", mock.Anything, "sig-1", uint64(500)).Return(tt.status, tt.statusErr).Once()

			summary, err = f.svc.ReconcilePending(ctx, 2*time.Minute)
			require.NoError(t, err)
			assert.Equal(t, tt.summary, summary)

			w := f.reload(t)
			assert.Equal(t, tt.want, w.ClaimStatus)
			if tt.want == models.ClaimStatusPaid {
				require.NotNil(t, w.ClaimTx)
				assert.Equal(t, "sig-1", *w.ClaimTx)
				assert.Equal(t, recipient, *w.ClaimAddress)
			} else {
				assert.Nil(t, w.ClaimTx)
			}
		})
	}
}

func TestShareIsFixedTenth(t *testing.T) {
	c := models.Chapter{PotLamports: 1_000_000_000}
	assert.EqualValues(t, 100_000_000, c.ShareLamports())

	c.PotLamports = 1_000_000_009
	assert.EqualValues(t, 100_000_000, c.ShareLamports())
}
