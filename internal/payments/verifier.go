package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"creator-platform/internal/logging"
	"creator-platform/internal/models"
	"creator-platform/internal/store"
)

// Callback is what the gateway redirect or webhook claims about an order.
// ClaimedStatus is informational only; the gateway is always asked directly.
type Callback struct {
	OrderID              string
	GatewayTransactionID string
	ClaimedStatus        string
}

// VerifiedResult is the transaction state after a callback was handled.
// Duplicate is set when the transaction was already terminal on arrival.
type VerifiedResult struct {
	Transaction models.Transaction
	Supporter   *models.Supporter
	Duplicate   bool
	Applied     bool
}

// Status is the stored status of the transaction.
func (r VerifiedResult) Status() models.TransactionStatus {
	return r.Transaction.Status
}

// CallbackVerifier authenticates gateway callbacks and hands verified
// outcomes to the Reconciler.
type CallbackVerifier struct {
	store      Store
	gateway    GatewayClient
	reconciler *Reconciler
	logger     *slog.Logger
}

func NewCallbackVerifier(st Store, gw GatewayClient, rec *Reconciler, logger *slog.Logger) *CallbackVerifier {
	return &CallbackVerifier{
		store:      st,
		gateway:    gw,
		reconciler: rec,
		logger:     logging.OrDiscard(logger),
	}
}

func (v *CallbackVerifier) HandleCallback(ctx context.Context, cb Callback) (VerifiedResult, error) {
	orderID := strings.TrimSpace(cb.OrderID)
	if orderID == "" {
		return VerifiedResult{}, fmt.Errorf("%w: empty order id", ErrUnknownOrder)
	}

	txn, err := v.store.GetTransactionByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return VerifiedResult{}, fmt.Errorf("%w: %s", ErrUnknownOrder, orderID)
		}
		return VerifiedResult{}, fmt.Errorf("load order %s: %w", orderID, err)
	}

	if txn.Status.Terminal() {
		if txn.Status != models.StatusCompleted && claimsSettlement(cb.ClaimedStatus) {
			if err := v.checkLateSettlement(ctx, txn); err != nil {
				return VerifiedResult{Transaction: txn}, err
			}
		} else if cb.ClaimedStatus != "" && !strings.EqualFold(cb.ClaimedStatus, string(txn.Status)) {
			v.logger.Warn("callback claims a different status than recorded",
				"order_id", orderID, "claimed", cb.ClaimedStatus, "recorded", txn.Status)
		}
		return VerifiedResult{Transaction: txn, Duplicate: true}, nil
	}

	res, err := v.verifyAndReconcile(ctx, txn, cb.GatewayTransactionID)
	if errors.Is(err, ErrGatewayOrderNotFound) {
		return res, fmt.Errorf("%w: gateway has no order %s: %w", ErrVerification, orderID, err)
	}
	return res, err
}

// Recheck asks the gateway for the state of a pending transaction without a
// callback, e.g. when sweeping stale intents. ErrGatewayOrderNotFound is
// returned as is so the caller can decide to cancel.
func (v *CallbackVerifier) Recheck(ctx context.Context, txn models.Transaction) (VerifiedResult, error) {
	if txn.Status.Terminal() {
		return VerifiedResult{Transaction: txn, Duplicate: true}, nil
	}
	return v.verifyAndReconcile(ctx, txn, "")
}

func (v *CallbackVerifier) verifyAndReconcile(ctx context.Context, txn models.Transaction, gatewayTxID string) (VerifiedResult, error) {
	pending := VerifiedResult{Transaction: txn}

	verification, err := v.gateway.VerifyCallback(ctx, txn.GatewayOrderID, gatewayTxID)
	if err != nil {
		if errors.Is(err, ErrGatewayOrderNotFound) {
			return pending, err
		}
		if !errors.Is(err, ErrGatewayUnavailable) {
			err = fmt.Errorf("%w: %w", ErrGatewayUnavailable, err)
		}
		return pending, fmt.Errorf("verify order %s: %w", txn.GatewayOrderID, err)
	}
	if !verification.Authentic {
		return pending, fmt.Errorf("%w: gateway did not confirm order %s", ErrTamperedCallback, txn.GatewayOrderID)
	}
	if verification.AmountMinor != 0 && verification.AmountMinor != txn.AmountMinor {
		return pending, fmt.Errorf("%w: order %s amount %d does not match %d",
			ErrTamperedCallback, txn.GatewayOrderID, verification.AmountMinor, txn.AmountMinor)
	}
	if verification.Currency != "" && !strings.EqualFold(verification.Currency, txn.Currency) {
		return pending, fmt.Errorf("%w: order %s currency %s does not match %s",
			ErrTamperedCallback, txn.GatewayOrderID, verification.Currency, txn.Currency)
	}

	status, err := MapGatewayStatus(verification.Status)
	if err != nil {
		return pending, fmt.Errorf("order %s: %w", txn.GatewayOrderID, err)
	}
	if status == models.StatusPending {
		return pending, nil
	}

	if verification.GatewayTransactionID != "" {
		gatewayTxID = verification.GatewayTransactionID
	}
	rec, err := v.reconciler.Reconcile(ctx, ReconcileRequest{
		TransactionID:        txn.ID,
		Status:               status,
		GatewayTransactionID: gatewayTxID,
		PaymentMethod:        verification.PaymentMethod,
	})
	if err != nil {
		return pending, err
	}
	return VerifiedResult{
		Transaction: rec.Transaction,
		Supporter:   rec.Supporter,
		Duplicate:   !rec.Applied,
		Applied:     rec.Applied,
	}, nil
}

// checkLateSettlement asks the gateway whether a closed, unpaid transaction
// was paid after all. A confirmed payment is recorded as an alert once per
// transaction; the stored status never changes.
func (v *CallbackVerifier) checkLateSettlement(ctx context.Context, txn models.Transaction) error {
	verification, err := v.gateway.VerifyCallback(ctx, txn.GatewayOrderID, "")
	if err != nil {
		if errors.Is(err, ErrGatewayOrderNotFound) {
			return nil
		}
		if !errors.Is(err, ErrGatewayUnavailable) {
			err = fmt.Errorf("%w: %w", ErrGatewayUnavailable, err)
		}
		return fmt.Errorf("verify closed order %s: %w", txn.GatewayOrderID, err)
	}
	status, err := MapGatewayStatus(verification.Status)
	if err != nil || !verification.Authentic || status != models.StatusCompleted {
		return nil
	}

	alert := models.ReconciliationAlert{
		ID:            uuid.NewSHA1(uuid.NameSpaceOID, []byte(string(models.AlertLateSettlement)+":"+txn.ID)).String(),
		TransactionID: txn.ID,
		Kind:          models.AlertLateSettlement,
		Detail: fmt.Sprintf("gateway reports %d %s paid (gateway transaction %s) after the transaction was %s",
			verification.AmountMinor, verification.Currency, verification.GatewayTransactionID, txn.Status),
		CreatedAt: v.reconciler.now().UTC(),
	}
	if err := v.store.RecordAlert(ctx, alert); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil
		}
		return fmt.Errorf("record late settlement for %s: %w", txn.ID, err)
	}
	v.logger.Error("payment settled after transaction was closed",
		"alert", "reconciliation",
		"alert_id", alert.ID,
		"transaction_id", txn.ID,
		"order_id", txn.GatewayOrderID,
		"status", txn.Status,
		"amount_minor", verification.AmountMinor,
	)
	return nil
}

// claimsSettlement reports whether a callback says the order was paid.
func claimsSettlement(claimed string) bool {
	switch strings.ToLower(strings.TrimSpace(claimed)) {
	case "settlement", "capture", string(models.StatusCompleted):
		return true
	}
	return false
}

// MapGatewayStatus is the allow-list applied to every status the gateway reports.
func MapGatewayStatus(raw string) (models.TransactionStatus, error) {
	switch models.TransactionStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case models.StatusCompleted:
		return models.StatusCompleted, nil
	case models.StatusFailed:
		return models.StatusFailed, nil
	case models.StatusPending:
		return models.StatusPending, nil
	}
	return "", fmt.Errorf("%w: unexpected gateway status %q", ErrVerification, raw)
}
