package payments_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"creator-platform/internal/models"
	"creator-platform/internal/payments"
	"creator-platform/internal/payments/mocks"
	"creator-platform/internal/store"
)

const (
	creatorID   int64 = 10
	supporterID int64 = 20
	feeBPS      int64 = 500
)

var fixedNow = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

type recordingNotifier struct {
	mu    sync.Mutex
	calls []models.Transaction
}

func (n *recordingNotifier) PaymentCompleted(txn models.Transaction, _ *models.Supporter) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, txn)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

type fixture struct {
	store      *store.Memory
	gateway    *mocks.MockGatewayClient
	notifier   *recordingNotifier
	intents    *payments.IntentService
	reconciler *payments.Reconciler
	verifier   *payments.CallbackVerifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	st := store.NewMemory()
	gw := mocks.NewMockGatewayClient(ctrl)
	n := &recordingNotifier{}

	rec := payments.NewReconciler(st, gw, feeBPS, nil).WithNotifier(n).WithClock(clock)
	v := payments.NewCallbackVerifier(st, gw, rec, nil)
	return &fixture{
		store:      st,
		gateway:    gw,
		notifier:   n,
		intents:    payments.NewIntentService(st, gw, v, payments.IntentConfig{Currency: "IDR", FeeBPS: feeBPS, MinTipMinor: 1000}, nil).WithClock(clock),
		reconciler: rec,
		verifier:   v,
	}
}

func (f *fixture) putTier(id int64, price int64, maxSupporters *int) models.MembershipTier {
	tier := models.MembershipTier{
		ID:            id,
		CreatorID:     creatorID,
		Name:          "Gold",
		PriceMinor:    price,
		Currency:      "IDR",
		IsActive:      true,
		MaxSupporters: maxSupporters,
	}
	f.store.PutTier(tier)
	return tier
}

func (f *fixture) pending(t *testing.T, id string, kind models.TransactionKind, amount int64, tierID *int64) models.Transaction {
	t.Helper()
	txn := models.Transaction{
		ID:               id,
		CreatorID:        creatorID,
		SupporterUserID:  supporterID,
		Kind:             kind,
		AmountMinor:      amount,
		Currency:         "IDR",
		Status:           models.StatusPending,
		GatewayOrderID:   "CP-" + id,
		MembershipTierID: tierID,
		CreatedAt:        fixedNow.Add(-time.Hour),
		UpdatedAt:        fixedNow.Add(-time.Hour),
	}
	require.NoError(t, f.store.CreateTransaction(context.Background(), txn))
	return txn
}

func settled(txn models.Transaction) payments.Verification {
	return payments.Verification{
		Authentic:            true,
		Status:               "completed",
		PaymentMethod:        "qris",
		GatewayTransactionID: "mt-" + txn.ID,
		AmountMinor:          txn.AmountMinor,
		Currency:             txn.Currency,
	}
}

func intPtr(v int) *int { return &v }

func int64Ptr(v int64) *int64 { return &v }
