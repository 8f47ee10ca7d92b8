package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"creator-platform/internal/logging"
	"creator-platform/internal/models"
	"creator-platform/internal/money"
	"creator-platform/internal/store"
)

// IntentConfig holds the money rules applied when an intent is created.
type IntentConfig struct {
	Currency    string
	FeeBPS      int64
	MinTipMinor int64
}

// IntentRequest asks for a new pending payment. AmountMinor is used for tips;
// membership kinds are always charged the tier price.
type IntentRequest struct {
	CreatorID       int64
	SupporterUserID int64
	Kind            models.TransactionKind
	AmountMinor     int64
	TierID          int64
	Message         string
	IsPublic        bool
	SupporterName   string
}

// Intent is what the payer needs to continue at the gateway. Preview is
// computed by the same integer split the reconciler records.
type Intent struct {
	TransactionID  string   `json:"transaction_id"`
	GatewayOrderID string   `json:"gateway_order_id"`
	RedirectURL    string   `json:"redirect_url"`
	AmountMinor    int64    `json:"amount_minor"`
	Currency       string   `json:"currency"`
	Preview        FeeSplit `json:"preview"`
}

// IntentService creates pending transactions and their gateway orders.
//
// When the gateway order cannot be created the transaction is moved to failed
// before returning, so no pending row is left without a gateway order.
type IntentService struct {
	store    Store
	gateway  GatewayClient
	verifier *CallbackVerifier
	cfg      IntentConfig
	logger   *slog.Logger
	now      func() time.Time
}

// NewIntentService builds the service. v is used to settle an order with the
// gateway before it is cancelled.
func NewIntentService(st Store, gw GatewayClient, v *CallbackVerifier, cfg IntentConfig, logger *slog.Logger) *IntentService {
	return &IntentService{
		store:    st,
		gateway:  gw,
		verifier: v,
		cfg:      cfg,
		logger:   logging.OrDiscard(logger),
		now:      time.Now,
	}
}

// WithClock replaces the time source.
func (s *IntentService) WithClock(now func() time.Time) *IntentService {
	s.now = now
	return s
}

func (s *IntentService) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	if !req.Kind.Valid() {
		return Intent{}, fmt.Errorf("%w: %q", ErrInvalidKind, req.Kind)
	}

	amount := req.AmountMinor
	currency := s.cfg.Currency
	var tierID *int64

	if req.Kind == models.KindTip {
		if amount < s.cfg.MinTipMinor {
			return Intent{}, fmt.Errorf("%w: tip of %d is below the minimum of %d", ErrInvalidAmount, amount, s.cfg.MinTipMinor)
		}
	} else {
		tier, err := s.checkTier(ctx, req)
		if err != nil {
			return Intent{}, err
		}
		amount = tier.PriceMinor
		if tier.Currency != "" {
			currency = tier.Currency
		}
		tierID = &tier.ID
		if amount <= 0 {
			return Intent{}, fmt.Errorf("%w: tier %d has no price", ErrTierUnavailable, tier.ID)
		}
	}

	if _, err := money.ToGatewayUnits(amount, currency); err != nil {
		if req.Kind == models.KindTip {
			return Intent{}, fmt.Errorf("%w: %w", ErrInvalidAmount, err)
		}
		return Intent{}, fmt.Errorf("%w: tier %d: %w", ErrTierUnavailable, *tierID, err)
	}

	now := s.now().UTC()
	txn := models.Transaction{
		ID:               uuid.NewString(),
		CreatorID:        req.CreatorID,
		SupporterUserID:  req.SupporterUserID,
		Kind:             req.Kind,
		AmountMinor:      amount,
		Currency:         currency,
		Status:           models.StatusPending,
		GatewayOrderID:   newOrderID(),
		MembershipTierID: tierID,
		Message:          strings.TrimSpace(req.Message),
		IsPublic:         req.IsPublic,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.store.CreateTransaction(ctx, txn); err != nil {
		return Intent{}, fmt.Errorf("create pending transaction: %w", err)
	}

	session, err := s.gateway.CreateOrder(ctx, GatewayOrder{
		OrderID:      txn.GatewayOrderID,
		AmountMinor:  txn.AmountMinor,
		Currency:     txn.Currency,
		Description:  describe(txn),
		CustomerName: req.SupporterName,
	})
	if err != nil {
		s.abandon(ctx, txn, err)
		return Intent{}, fmt.Errorf("%w: create order %s: %w", ErrGatewayUnavailable, txn.GatewayOrderID, err)
	}

	if err := s.store.SetCheckoutURL(ctx, txn.ID, session.RedirectURL); err != nil {
		s.logger.Warn("failed to store checkout url", "transaction_id", txn.ID, "error", err)
	}

	s.logger.Info("payment intent created",
		"transaction_id", txn.ID,
		"order_id", txn.GatewayOrderID,
		"kind", txn.Kind,
		"creator_id", txn.CreatorID,
		"amount_minor", txn.AmountMinor,
		"currency", txn.Currency,
	)

	return Intent{
		TransactionID:  txn.ID,
		GatewayOrderID: txn.GatewayOrderID,
		RedirectURL:    session.RedirectURL,
		AmountMinor:    txn.AmountMinor,
		Currency:       txn.Currency,
		Preview:        SplitOf(txn.AmountMinor, s.cfg.FeeBPS),
	}, nil
}

// CancelIntent lets the supporter abandon a checkout that has not been paid.
// The gateway is asked first: an order that was paid in the meantime is
// reconciled instead, and a pending one is stopped at the gateway before the
// transaction is cancelled. A transaction that is already terminal is
// returned as stored.
func (s *IntentService) CancelIntent(ctx context.Context, transactionID string, userID int64) (models.Transaction, error) {
	txn, err := s.Transaction(ctx, transactionID, userID)
	if err != nil {
		return models.Transaction{}, err
	}
	if txn.Status.Terminal() {
		return txn, nil
	}

	res, err := s.verifier.Recheck(ctx, txn)
	switch {
	case errors.Is(err, ErrGatewayOrderNotFound):
		// No payment method chosen yet. The checkout expires on its own and a
		// late payment raises an alert.
	case err != nil:
		return txn, fmt.Errorf("check order %s before cancelling: %w", txn.GatewayOrderID, err)
	case res.Status() != models.StatusPending:
		return res.Transaction, nil
	default:
		if err := s.gateway.CancelOrder(ctx, txn.GatewayOrderID); err != nil && !errors.Is(err, ErrGatewayOrderNotFound) {
			if !errors.Is(err, ErrGatewayUnavailable) {
				err = fmt.Errorf("%w: %w", ErrGatewayUnavailable, err)
			}
			return txn, fmt.Errorf("cancel order %s: %w", txn.GatewayOrderID, err)
		}
	}

	tr, err := s.store.Transition(ctx, models.Transition{
		TransactionID: txn.ID,
		Status:        models.StatusCancelled,
		At:            s.now().UTC(),
	})
	if err != nil {
		return txn, fmt.Errorf("cancel transaction %s: %w", txn.ID, err)
	}
	if tr.Applied {
		s.logger.Info("payment intent cancelled", "transaction_id", txn.ID, "order_id", txn.GatewayOrderID)
	}
	return tr.Transaction, nil
}

// Transaction returns the stored transaction when it belongs to userID.
func (s *IntentService) Transaction(ctx context.Context, transactionID string, userID int64) (models.Transaction, error) {
	txn, err := s.store.GetTransaction(ctx, transactionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Transaction{}, ErrUnknownOrder
		}
		return models.Transaction{}, err
	}
	if txn.SupporterUserID != userID {
		return models.Transaction{}, ErrForbidden
	}
	return txn, nil
}

func (s *IntentService) checkTier(ctx context.Context, req IntentRequest) (models.MembershipTier, error) {
	tier, err := s.store.GetTier(ctx, req.TierID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.MembershipTier{}, fmt.Errorf("%w: tier %d does not exist", ErrTierUnavailable, req.TierID)
		}
		return models.MembershipTier{}, fmt.Errorf("load tier %d: %w", req.TierID, err)
	}
	if tier.CreatorID != req.CreatorID || !tier.IsActive {
		return models.MembershipTier{}, fmt.Errorf("%w: tier %d", ErrTierUnavailable, tier.ID)
	}

	holdsTier := false
	existing, err := s.store.GetSupporter(ctx, req.CreatorID, req.SupporterUserID)
	switch {
	case err == nil:
		holdsTier = existing.Status == models.SupporterActive &&
			existing.TierID != nil && *existing.TierID == tier.ID
	case !errors.Is(err, store.ErrNotFound):
		return models.MembershipTier{}, fmt.Errorf("load supporter: %w", err)
	}

	if req.Kind == models.KindMembershipRenewal && !holdsTier {
		return models.MembershipTier{}, fmt.Errorf("%w: no active membership on tier %d to renew", ErrTierUnavailable, tier.ID)
	}

	// A renewing member already occupies a seat.
	if tier.MaxSupporters != nil && !holdsTier {
		count, err := s.store.CountActiveSupporters(ctx, req.CreatorID, tier.ID)
		if err != nil {
			return models.MembershipTier{}, fmt.Errorf("count supporters for tier %d: %w", tier.ID, err)
		}
		if count >= *tier.MaxSupporters {
			return models.MembershipTier{}, fmt.Errorf("%w: tier %d has %d of %d supporters", ErrTierFull, tier.ID, count, *tier.MaxSupporters)
		}
	}
	return tier, nil
}

func (s *IntentService) abandon(ctx context.Context, txn models.Transaction, cause error) {
	res, err := s.store.Transition(context.WithoutCancel(ctx), models.Transition{
		TransactionID: txn.ID,
		Status:        models.StatusFailed,
		At:            s.now().UTC(),
	})
	if err != nil {
		s.logger.Error("failed to mark transaction failed after gateway error; sweeper will retry",
			"transaction_id", txn.ID, "order_id", txn.GatewayOrderID, "gateway_error", cause, "error", err)
		return
	}
	s.logger.Warn("gateway order creation failed",
		"transaction_id", txn.ID, "order_id", txn.GatewayOrderID,
		"status", res.Transaction.Status, "error", cause)
}

func newOrderID() string {
	return "CP-" + uuid.NewString()
}

func describe(txn models.Transaction) string {
	switch txn.Kind {
	case models.KindMembershipInitial:
		return "Membership"
	case models.KindMembershipRenewal:
		return "Membership renewal"
	default:
		return "Tip"
	}
}
