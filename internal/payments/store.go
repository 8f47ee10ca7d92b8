package payments

import (
	"context"
	"time"

	"creator-platform/internal/models"
)

// Store is the persistence the payment core needs. Implementations return
// store.ErrNotFound for missing rows.
//
// Transition is the only way a transaction leaves pending. It must update the
// row only while its status is still pending and apply the supporter mutation
// in the same unit. A failed supporter mutation must not undo a committed
// completed transition; it is reported in TransitionResult.SupporterErr with
// a persisted alert instead.
type Store interface {
	GetTier(ctx context.Context, tierID int64) (models.MembershipTier, error)
	CountActiveSupporters(ctx context.Context, creatorID, tierID int64) (int, error)
	GetSupporter(ctx context.Context, creatorID, userID int64) (models.Supporter, error)

	CreateTransaction(ctx context.Context, txn models.Transaction) error
	SetCheckoutURL(ctx context.Context, transactionID, url string) error
	GetTransaction(ctx context.Context, id string) (models.Transaction, error)
	GetTransactionByOrderID(ctx context.Context, orderID string) (models.Transaction, error)
	ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]models.Transaction, error)
	Transition(ctx context.Context, t models.Transition) (models.TransitionResult, error)

	RecordAlert(ctx context.Context, alert models.ReconciliationAlert) error
	ListOpenAlerts(ctx context.Context, limit int) ([]models.ReconciliationAlert, error)
	// ApplySupporterSync resolves a supporter_sync alert and applies sync in one
	// unit. It reports false when the alert was already resolved.
	ApplySupporterSync(ctx context.Context, alertID string, sync models.SupporterSync, at time.Time) (*models.Supporter, bool, error)
	ResolveAlert(ctx context.Context, alertID string, at time.Time) (bool, error)
}
