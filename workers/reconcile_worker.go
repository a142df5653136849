package workers

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"luminar-api/logger"
	"luminar-api/services"
)

// ClaimReconciler periodically settles claims whose transfer outcome was
// unknown when the claim request returned.
type ClaimReconciler struct {
	claims   *services.ClaimService
	interval time.Duration
	grace    time.Duration
	clock    clockwork.Clock

	done chan struct{}
}

func NewClaimReconciler(claims *services.ClaimService, interval, grace time.Duration) *ClaimReconciler {
	return &ClaimReconciler{
		claims:   claims,
		interval: interval,
		grace:    grace,
		clock:    claims.Clock,
		done:     make(chan struct{}),
	}
}

func (w *ClaimReconciler) Start(ctx context.Context) {
	logger.Info("Starting claim reconciler", zap.Duration("interval", w.interval), zap.Duration("grace", w.grace))
	go w.run(ctx)
}

// Done is closed once the worker has stopped
func (w *ClaimReconciler) Done() <-chan struct{} {
	return w.done
}

func (w *ClaimReconciler) run(ctx context.Context) {
	defer close(w.done)

	ticker := w.clock.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			w.tick(ctx)
		case <-ctx.Done():
			logger.Info("Claim reconciler stopped")
			return
		}
	}
}

func (w *ClaimReconciler) tick(ctx context.Context) {
	summary, err := w.claims.ReconcilePending(ctx, w.grace)
	if err != nil {
		if ctx.Err() == nil {
			logger.ErrorCtx(ctx, "Claim reconciliation failed", err)
		}
		return
	}
	if summary.Checked > 0 || summary.Released > 0 {
		logger.InfoCtx(ctx, "Claim reconciliation pass",
			zap.Int("checked", summary.Checked),
			zap.Int("paid", summary.Paid),
			zap.Int("released", summary.Released),
		)
	}
}
