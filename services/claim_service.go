package services

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"luminar-api/logger"
	"luminar-api/models"
	"luminar-api/utils"
)

type ClaimService struct {
	DB             *gorm.DB
	Payout         Payout
	Clock          clockwork.Clock
	ConfirmTimeout time.Duration
}

func NewClaimService(db *gorm.DB, payout Payout, confirmTimeout time.Duration) *ClaimService {
	return &ClaimService{DB: db, Payout: payout, Clock: clockwork.NewRealClock(), ConfirmTimeout: confirmTimeout}
}

type ClaimStatus string

const (
	ClaimPaid    ClaimStatus = "paid"
	ClaimPending ClaimStatus = "pending"
)

type ClaimResult struct {
	Status ClaimStatus `json:"status"`
	TxSig  string      `json:"tx_sig"`
}

// Claim pays a winner's share to address `to`, at most once per winner.
//
// The winner row is locked, the transfer is signed, and the row is moved to
// pending with the signature in one transaction, before anything is sent.
// A second claim for the same winner therefore sees pending or paid and never
// signs a second transfer. If the send outcome is unknown the row stays
// pending and ReconcilePending settles it later.
func (s *ClaimService) Claim(ctx context.Context, chapterID uint, userID, code, to string) (*ClaimResult, error) {
	if code == "" || to == "" {
		return nil, BadRequest("Code and recipient address are required")
	}

	var (
		winner   models.Winner
		transfer *SignedTransfer
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Shared lock: EndChapter's FOR UPDATE waits for the reservation to
		// commit, so a closing chapter never misses an in-flight claim.
		var chapter models.Chapter
		if err := tx.Clauses(clause.Locking{Strength: "SHARE"}).First(&chapter, chapterID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrChapterNotFound
			}
			return Internal("Failed to load chapter", err)
		}
		if chapter.Status != models.ChapterStatusActive {
			return ErrChapterEnded
		}
		if utils.HashCode(code) != chapter.CodeHash {
			return ErrBadCode
		}

		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("chapter_id = ? AND user_id = ?", chapterID, userID).
			Take(&winner).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotWinner
			}
			return Internal("Failed to load winner", err)
		}
		if winner.ClaimedAt != nil || winner.ClaimStatus == models.ClaimStatusPaid {
			return ErrAlreadyClaimed
		}
		if winner.ClaimStatus == models.ClaimStatusPending {
			return ErrClaimPending
		}
		if !utils.ValidSolanaAddress(to) {
			return ErrBadAddress
		}

		var err error
		transfer, err = s.Payout.Prepare(ctx, to, chapter.ShareLamports())
		if err != nil {
			if errors.Is(err, ErrInvalidRecipient) {
				return ErrBadAddress
			}
			return Internal("Failed to prepare transfer", err)
		}

		now := s.Clock.Now().UTC()
		res := tx.Model(&models.Winner{}).
			Where("id = ? AND claim_status = ?", winner.ID, models.ClaimStatusUnclaimed).
			Updates(map[string]any{
				"claim_status":        models.ClaimStatusPending,
				"pending_address":     to,
				"pending_tx":          transfer.Signature,
				"pending_valid_until": transfer.LastValidBlockHeight,
				"claim_started_at":    now,
			})
		if res.Error != nil {
			return Internal("Failed to reserve claim", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrClaimPending
		}
		return nil
	})
	if err != nil {
		return nil, AsError(err)
	}

	logger.InfoCtx(ctx, "Claim reserved",
		zap.Uint("winner_id", winner.ID),
		zap.String("signature", transfer.Signature),
		zap.String("to", to),
	)

	// The outcome must be recorded even if the caller goes away
	settleCtx := context.WithoutCancel(ctx)
	submitCtx, cancel := context.WithTimeout(settleCtx, s.ConfirmTimeout)
	defer cancel()

	switch err := s.Payout.Submit(submitCtx, transfer); {
	case err == nil:
		if err := s.finalize(settleCtx, winner.ID, to, transfer.Signature); err != nil {
			logger.ErrorCtx(ctx, "Transfer landed but claim was not recorded; reconciler will retry", err,
				zap.Uint("winner_id", winner.ID), zap.String("signature", transfer.Signature))
			return &ClaimResult{Status: ClaimPending, TxSig: transfer.Signature}, nil
		}
		return &ClaimResult{Status: ClaimPaid, TxSig: transfer.Signature}, nil

	case errors.Is(err, ErrTransferRejected):
		if relErr := s.release(settleCtx, winner.ID); relErr != nil {
			logger.ErrorCtx(ctx, "Failed to release claim reservation", relErr, zap.Uint("winner_id", winner.ID))
		}
		return nil, Internal("Transfer failed", err)

	default:
		logger.WarnCtx(ctx, "Transfer outcome unknown, left pending",
			zap.Uint("winner_id", winner.ID),
			zap.String("signature", transfer.Signature),
			zap.Error(err),
		)
		return &ClaimResult{Status: ClaimPending, TxSig: transfer.Signature}, nil
	}
}

// finalize records a landed transfer. claim_address, claim_tx and claimed_at
// are written in one statement, and only from pending.
func (s *ClaimService) finalize(ctx context.Context, winnerID uint, address, signature string) error {
	return s.DB.WithContext(ctx).Model(&models.Winner{}).
		Where("id = ? AND claim_status = ?", winnerID, models.ClaimStatusPending).
		Updates(map[string]any{
			"claim_status":        models.ClaimStatusPaid,
			"claim_address":       address,
			"claim_tx":            signature,
			"claimed_at":          s.Clock.Now().UTC(),
			"pending_address":     nil,
			"pending_tx":          nil,
			"pending_valid_until": nil,
		}).Error
}

// release returns a reservation whose transfer can never land
func (s *ClaimService) release(ctx context.Context, winnerID uint) error {
	return s.DB.WithContext(ctx).Model(&models.Winner{}).
		Where("id = ? AND claim_status = ?", winnerID, models.ClaimStatusPending).
		Updates(map[string]any{
			"claim_status":        models.ClaimStatusUnclaimed,
			"pending_address":     nil,
			"pending_tx":          nil,
			"pending_valid_until": nil,
			"claim_started_at":    nil,
		}).Error
}

// ReconcileSummary counts what one reconciliation pass did
type ReconcileSummary struct {
	Checked  int
	Paid     int
	Released int
}

// ReconcilePending settles claims left pending for longer than grace by
// asking the chain what became of their signed transfer.
func (s *ClaimService) ReconcilePending(ctx context.Context, grace time.Duration) (ReconcileSummary, error) {
	var summary ReconcileSummary

	cutoff := s.Clock.Now().UTC().Add(-grace)
	var pending []models.Winner
	if err := s.DB.WithContext(ctx).
		Where("claim_status = ? AND claim_started_at <= ?", models.ClaimStatusPending, cutoff).
		Order("claim_started_at ASC").
		Find(&pending).Error; err != nil {
		return summary, err
	}

	for _, w := range pending {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		if w.PendingTx == nil || w.PendingAddress == nil {
			logger.WarnCtx(ctx, "Pending claim has no transfer, releasing", zap.Uint("winner_id", w.ID))
			if err := s.release(ctx, w.ID); err != nil {
				return summary, err
			}
			summary.Released++
			continue
		}

		var validUntil uint64
		if w.PendingValidUntil != nil {
			validUntil = *w.PendingValidUntil
		}

		summary.Checked++
		status, err := s.Payout.Status(ctx, *w.PendingTx, validUntil)
		if err != nil {
			logger.WarnCtx(ctx, "Failed to check pending transfer", zap.Uint("winner_id", w.ID), zap.Error(err))
			continue
		}

		switch status {
		case TransferConfirmed:
			if err := s.finalize(ctx, w.ID, *w.PendingAddress, *w.PendingTx); err != nil {
				return summary, err
			}
			summary.Paid++
			logger.InfoCtx(ctx, "Reconciled claim as paid", zap.Uint("winner_id", w.ID), zap.String("signature", *w.PendingTx))
		case TransferFailed, TransferExpired:
			if err := s.release(ctx, w.ID); err != nil {
				return summary, err
			}
			summary.Released++
			logger.InfoCtx(ctx, "Released failed claim", zap.Uint("winner_id", w.ID), zap.String("status", string(status)))
		}
	}

	return summary, nil
}
