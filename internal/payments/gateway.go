package payments

import (
	"context"
	"time"

	"creator-platform/internal/models"
)

//go:generate mockgen -destination=mocks/mock_gateway.go -package=mocks creator-platform/internal/payments GatewayClient

// GatewayOrder is the gateway-side order matching a pending transaction.
type GatewayOrder struct {
	OrderID      string
	AmountMinor  int64
	Currency     string
	Description  string
	CustomerName string
}

// GatewaySession is where the payer is sent to complete checkout.
type GatewaySession struct {
	Token       string
	RedirectURL string
}

// Verification is the gateway's own account of an order. Status is untrusted
// even when Authentic is true and goes through an allow-list before use.
type Verification struct {
	Authentic            bool
	Status               string
	PaymentMethod        string
	GatewayTransactionID string
	AmountMinor          int64
	Currency             string
}

// GatewayClient is the external payment gateway. Implementations wrap
// transient failures in ErrGatewayUnavailable and unknown orders in
// ErrGatewayOrderNotFound. VerifyCallback must not change gateway state.
// CancelOrder stops a pending order from being paid; it fails when the order
// has moved on at the gateway.
type GatewayClient interface {
	CreateOrder(ctx context.Context, order GatewayOrder) (GatewaySession, error)
	VerifyCallback(ctx context.Context, orderID, gatewayTransactionID string) (Verification, error)
	CancelOrder(ctx context.Context, orderID string) error
	ScheduleNextCharge(ctx context.Context, supporterID string, at time.Time) error
}

// Notifier is told about each transaction that completes, once.
type Notifier interface {
	PaymentCompleted(txn models.Transaction, supporter *models.Supporter)
}
