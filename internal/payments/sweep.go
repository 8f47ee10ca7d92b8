package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"creator-platform/internal/logging"
	"creator-platform/internal/models"
)

// SweepReport counts what one sweep did.
type SweepReport struct {
	Scanned      int
	Completed    int
	Failed       int
	Cancelled    int
	StillPending int
	Errors       int
}

// Sweeper settles pending transactions that never received a callback.
type Sweeper struct {
	store      Store
	verifier   *CallbackVerifier
	reconciler *Reconciler
	ttl        time.Duration
	expiry     time.Duration
	batch      int
	logger     *slog.Logger
	now        func() time.Time
}

func NewSweeper(st Store, v *CallbackVerifier, rec *Reconciler, ttl time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		store:      st,
		verifier:   v,
		reconciler: rec,
		ttl:        ttl,
		batch:      100,
		logger:     logging.OrDiscard(logger),
		now:        time.Now,
	}
}

// WithClock replaces the time source.
func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

const expiryMargin = time.Minute

// WithOrderExpiry sets how long gateway checkouts stay payable. Run refuses a
// TTL shorter than that, since the gateway cannot tell an unopened checkout
// from an unknown order.
func (s *Sweeper) WithOrderExpiry(d time.Duration) *Sweeper {
	s.expiry = d
	return s
}

// Run re-queries the gateway for every pending transaction older than the TTL.
// Orders the gateway never saw are cancelled; anything it still reports as
// pending, or cannot answer for, stays pending.
func (s *Sweeper) Run(ctx context.Context) (SweepReport, error) {
	var report SweepReport
	if s.ttl < s.expiry {
		return report, fmt.Errorf("%w: ttl %s, order expiry %s", ErrSweepTTLTooShort, s.ttl, s.expiry)
	}
	cutoff := s.now().UTC().Add(-s.ttl)
	if s.expiry > 0 {
		// The checkout is created a moment after the transaction row.
		cutoff = cutoff.Add(-expiryMargin)
	}

	stale, err := s.store.ListStalePending(ctx, cutoff, s.batch)
	if err != nil {
		return report, fmt.Errorf("list stale pending transactions: %w", err)
	}

	for _, txn := range stale {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Scanned++

		res, err := s.verifier.Recheck(ctx, txn)
		if errors.Is(err, ErrGatewayOrderNotFound) {
			res, err = s.cancel(ctx, txn)
		}
		if err != nil {
			report.Errors++
			s.logger.Warn("stale transaction not settled", "transaction_id", txn.ID, "order_id", txn.GatewayOrderID, "error", err)
			continue
		}

		switch res.Status() {
		case models.StatusCompleted:
			report.Completed++
		case models.StatusFailed:
			report.Failed++
		case models.StatusCancelled:
			report.Cancelled++
		default:
			report.StillPending++
		}
	}

	s.logger.Info("pending sweep finished",
		"scanned", report.Scanned,
		"completed", report.Completed,
		"failed", report.Failed,
		"cancelled", report.Cancelled,
		"still_pending", report.StillPending,
		"errors", report.Errors,
	)
	return report, nil
}

func (s *Sweeper) cancel(ctx context.Context, txn models.Transaction) (VerifiedResult, error) {
	rec, err := s.reconciler.Reconcile(ctx, ReconcileRequest{
		TransactionID: txn.ID,
		Status:        models.StatusCancelled,
	})
	if err != nil {
		return VerifiedResult{Transaction: txn}, err
	}
	return VerifiedResult{Transaction: rec.Transaction, Applied: rec.Applied, Duplicate: !rec.Applied}, nil
}
