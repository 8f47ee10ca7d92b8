package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"creator-platform/internal/logging"
	"creator-platform/internal/models"
	"creator-platform/internal/store"
)

// RenewalPeriod is the fixed membership billing interval.
const RenewalPeriod = 30 * 24 * time.Hour

// ReconcileRequest is a verified gateway outcome for one transaction.
type ReconcileRequest struct {
	TransactionID        string
	Status               models.TransactionStatus
	GatewayTransactionID string
	PaymentMethod        string
}

// ReconciledResult is the stored outcome. Applied is true only for the call
// that performed the transition; every other caller sees the same
// Transaction with Applied false.
type ReconciledResult struct {
	Transaction models.Transaction
	Supporter   *models.Supporter
	Applied     bool
}

// Reconciler applies verified outcomes exactly once.
type Reconciler struct {
	store    Store
	gateway  GatewayClient
	notifier Notifier
	feeBPS   int64
	logger   *slog.Logger
	now      func() time.Time
}

func NewReconciler(st Store, gw GatewayClient, feeBPS int64, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		store:   st,
		gateway: gw,
		feeBPS:  feeBPS,
		logger:  logging.OrDiscard(logger),
		now:     time.Now,
	}
}

// WithNotifier sets the receiver of completed-payment events.
func (r *Reconciler) WithNotifier(n Notifier) *Reconciler {
	r.notifier = n
	return r
}

// WithClock replaces the time source.
func (r *Reconciler) WithClock(now func() time.Time) *Reconciler {
	r.now = now
	return r
}

func (r *Reconciler) Reconcile(ctx context.Context, req ReconcileRequest) (ReconciledResult, error) {
	if !req.Status.Terminal() {
		return ReconciledResult{}, fmt.Errorf("%w: cannot reconcile to status %q", ErrVerification, req.Status)
	}

	txn, err := r.store.GetTransaction(ctx, req.TransactionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ReconciledResult{}, fmt.Errorf("%w: transaction %s", ErrUnknownOrder, req.TransactionID)
		}
		return ReconciledResult{}, fmt.Errorf("load transaction %s: %w", req.TransactionID, err)
	}
	if txn.Status.Terminal() {
		return ReconciledResult{Transaction: txn}, nil
	}

	now := r.now().UTC()
	t := models.Transition{
		TransactionID:        txn.ID,
		Status:               req.Status,
		GatewayTransactionID: req.GatewayTransactionID,
		PaymentMethod:        req.PaymentMethod,
		At:                   now,
	}
	if req.Status == models.StatusCompleted {
		t.PlatformFeeMinor, t.PayoutMinor = Split(txn.AmountMinor, r.feeBPS)
		sync := supporterSync(txn, now)
		t.Supporter = &sync
	}

	res, err := r.store.Transition(ctx, t)
	if err != nil {
		return ReconciledResult{}, fmt.Errorf("transition transaction %s: %w", txn.ID, err)
	}
	if !res.Applied {
		r.logger.Info("reconciliation lost race, using stored result",
			"transaction_id", txn.ID, "status", res.Transaction.Status)
		return ReconciledResult{Transaction: res.Transaction}, nil
	}

	out := ReconciledResult{Transaction: res.Transaction, Supporter: res.Supporter, Applied: true}
	r.logger.Info("transaction reconciled",
		"transaction_id", txn.ID,
		"order_id", txn.GatewayOrderID,
		"status", res.Transaction.Status,
		"amount_minor", txn.AmountMinor,
		"platform_fee_minor", res.Transaction.PlatformFeeMinor,
	)
	if res.Transaction.Status != models.StatusCompleted {
		return out, nil
	}

	// Money has moved at the gateway; nothing below may change the outcome.
	ctx = context.WithoutCancel(ctx)

	if res.SupporterErr != nil {
		r.logger.Error("supporter update failed after transaction completed",
			"alert", "reconciliation",
			"alert_id", res.AlertID,
			"transaction_id", txn.ID,
			"creator_id", txn.CreatorID,
			"user_id", txn.SupporterUserID,
			"error", res.SupporterErr,
		)
	} else if txn.Kind.IsMembership() && res.Supporter != nil && res.Supporter.NextBillingDate != nil {
		r.scheduleNextCharge(ctx, txn, *res.Supporter)
	}

	if r.notifier != nil {
		r.notifier.PaymentCompleted(res.Transaction, res.Supporter)
	}
	return out, nil
}

// ReplayReport summarises one ReplayAlerts pass.
type ReplayReport struct {
	Resolved int
	Skipped  int
	Failed   int
}

// ReplayAlerts retries the work recorded by open reconciliation alerts.
func (r *Reconciler) ReplayAlerts(ctx context.Context, limit int) (ReplayReport, error) {
	var report ReplayReport
	alerts, err := r.store.ListOpenAlerts(ctx, limit)
	if err != nil {
		return report, fmt.Errorf("list open alerts: %w", err)
	}

	for _, alert := range alerts {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		resolved, err := r.replay(ctx, alert)
		switch {
		case err != nil:
			report.Failed++
			r.logger.Error("alert replay failed", "alert_id", alert.ID, "kind", alert.Kind, "error", err)
		case resolved:
			report.Resolved++
		default:
			report.Skipped++
		}
	}
	return report, nil
}

func (r *Reconciler) replay(ctx context.Context, alert models.ReconciliationAlert) (bool, error) {
	if alert.Kind == models.AlertLateSettlement {
		// Money has to be returned or credited by hand.
		return false, nil
	}
	txn, err := r.store.GetTransaction(ctx, alert.TransactionID)
	if err != nil {
		return false, fmt.Errorf("load transaction %s: %w", alert.TransactionID, err)
	}
	if txn.Status != models.StatusCompleted || txn.CompletedAt == nil {
		return false, fmt.Errorf("transaction %s is %s, not completed", txn.ID, txn.Status)
	}
	now := r.now().UTC()

	switch alert.Kind {
	case models.AlertSupporterSync:
		supporter, resolved, err := r.store.ApplySupporterSync(ctx, alert.ID, supporterSync(txn, *txn.CompletedAt), now)
		if err != nil || !resolved {
			return false, err
		}
		r.logger.Info("supporter sync replayed", "alert_id", alert.ID, "transaction_id", txn.ID)
		if txn.Kind.IsMembership() && supporter != nil && supporter.NextBillingDate != nil {
			r.scheduleNextCharge(ctx, txn, *supporter)
		}
		return true, nil

	case models.AlertChargeSchedule:
		supporter, err := r.store.GetSupporter(ctx, txn.CreatorID, txn.SupporterUserID)
		if err != nil {
			return false, fmt.Errorf("load supporter: %w", err)
		}
		if supporter.NextBillingDate == nil {
			return r.store.ResolveAlert(ctx, alert.ID, now)
		}
		if err := r.gateway.ScheduleNextCharge(ctx, supporter.ID, *supporter.NextBillingDate); err != nil {
			return false, fmt.Errorf("schedule next charge: %w", err)
		}
		return r.store.ResolveAlert(ctx, alert.ID, now)
	}
	return false, fmt.Errorf("unknown alert kind %q", alert.Kind)
}

func (r *Reconciler) scheduleNextCharge(ctx context.Context, txn models.Transaction, supporter models.Supporter) {
	err := r.gateway.ScheduleNextCharge(ctx, supporter.ID, *supporter.NextBillingDate)
	if err == nil {
		return
	}
	alert := models.ReconciliationAlert{
		ID:            uuid.NewString(),
		TransactionID: txn.ID,
		Kind:          models.AlertChargeSchedule,
		Detail:        err.Error(),
		CreatedAt:     r.now().UTC(),
	}
	if recErr := r.store.RecordAlert(ctx, alert); recErr != nil {
		r.logger.Error("failed to record charge schedule alert",
			"alert", "reconciliation", "transaction_id", txn.ID, "error", recErr)
	}
	r.logger.Error("next charge scheduling failed after membership payment",
		"alert", "reconciliation",
		"alert_id", alert.ID,
		"transaction_id", txn.ID,
		"supporter_id", supporter.ID,
		"error", err,
	)
}

func supporterSync(txn models.Transaction, paidAt time.Time) models.SupporterSync {
	sync := models.SupporterSync{
		CreatorID:   txn.CreatorID,
		UserID:      txn.SupporterUserID,
		AmountMinor: txn.AmountMinor,
		PaidAt:      paidAt,
	}
	if txn.Kind.IsMembership() {
		next := paidAt.Add(RenewalPeriod)
		sync.TierID = txn.MembershipTierID
		sync.NextBillingDate = &next
	}
	return sync
}
