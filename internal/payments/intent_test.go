package payments_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"creator-platform/internal/models"
	"creator-platform/internal/payments"
	"creator-platform/internal/store"
)

func TestCreateIntentTip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.gateway.EXPECT().
		CreateOrder(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, order payments.GatewayOrder) (payments.GatewaySession, error) {
			assert.Equal(t, int64(10000), order.AmountMinor)
			assert.Equal(t, "IDR", order.Currency)
			assert.Equal(t, "Budi", order.CustomerName)
			return payments.GatewaySession{Token: "tok", RedirectURL: "https://pay.example/tok"}, nil
		})

	intent, err := f.intents.CreateIntent(ctx, payments.IntentRequest{
		CreatorID:       creatorID,
		SupporterUserID: supporterID,
		Kind:            models.KindTip,
		AmountMinor:     10000,
		Message:         "  keep going  ",
		SupporterName:   "Budi",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/tok", intent.RedirectURL)
	assert.Equal(t, payments.FeeSplit{PlatformFeeMinor: 500, PayoutMinor: 9500}, intent.Preview)

	txn, err := f.store.GetTransaction(ctx, intent.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, txn.Status)
	assert.Equal(t, intent.GatewayOrderID, txn.GatewayOrderID)
	assert.Equal(t, "keep going", txn.Message)
	assert.Equal(t, "https://pay.example/tok", txn.CheckoutURL)
	assert.Nil(t, txn.MembershipTierID)
	assert.Equal(t, fixedNow, txn.CreatedAt)
}

func TestCreateIntentRejectsSmallTip(t *testing.T) {
	f := newFixture(t)

	_, err := f.intents.CreateIntent(context.Background(), payments.IntentRequest{
		CreatorID: creatorID, SupporterUserID: supporterID, Kind: models.KindTip, AmountMinor: 999,
	})
	assert.ErrorIs(t, err, payments.ErrInvalidAmount)
	assert.True(t, payments.IsInputError(err))
}

func TestCreateIntentRejectsUnknownKind(t *testing.T) {
	f := newFixture(t)

	_, err := f.intents.CreateIntent(context.Background(), payments.IntentRequest{
		CreatorID: creatorID, SupporterUserID: supporterID, Kind: "gift", AmountMinor: 5000,
	})
	assert.ErrorIs(t, err, payments.ErrInvalidKind)
}

func TestCreateIntentMembershipUsesTierPrice(t *testing.T) {
	f := newFixture(t)
	f.putTier(1, 50000, nil)

	f.gateway.EXPECT().
		CreateOrder(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, order payments.GatewayOrder) (payments.GatewaySession, error) {
			assert.Equal(t, int64(50000), order.AmountMinor)
			return payments.GatewaySession{RedirectURL: "https://pay.example/x"}, nil
		})

	intent, err := f.intents.CreateIntent(context.Background(), payments.IntentRequest{
		CreatorID: creatorID, SupporterUserID: supporterID, Kind: models.KindMembershipInitial,
		TierID: 1, AmountMinor: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(50000), intent.AmountMinor)

	txn, err := f.store.GetTransaction(context.Background(), intent.TransactionID)
	require.NoError(t, err)
	require.NotNil(t, txn.MembershipTierID)
	assert.Equal(t, int64(1), *txn.MembershipTierID)
}

func TestCreateIntentTierUnavailable(t *testing.T) {
	f := newFixture(t)
	inactive := f.putTier(2, 50000, nil)
	inactive.IsActive = false
	f.store.PutTier(inactive)
	other := f.putTier(3, 50000, nil)
	other.CreatorID = creatorID + 1
	f.store.PutTier(other)

	for _, tierID := range []int64{1, 2, 3} {
		_, err := f.intents.CreateIntent(context.Background(), payments.IntentRequest{
			CreatorID: creatorID, SupporterUserID: supporterID, Kind: models.KindMembershipInitial, TierID: tierID,
		})
		assert.ErrorIs(t, err, payments.ErrTierUnavailable, "tier %d", tierID)
	}
}

func TestCreateIntentTierFullCreatesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.putTier(1, 50000, intPtr(1))
	f.store.PutSupporter(models.Supporter{CreatorID: creatorID, UserID: 99, Status: models.SupporterActive, TierID: int64Ptr(1)})

	_, err := f.intents.CreateIntent(ctx, payments.IntentRequest{
		CreatorID: creatorID, SupporterUserID: supporterID, Kind: models.KindMembershipInitial, TierID: 1,
	})
	assert.ErrorIs(t, err, payments.ErrTierFull)

	txns, err := f.store.ListCreatorTransactions(ctx, creatorID, "", store.Page{})
	require.NoError(t, err)
	assert.Empty(t, txns)
}

func TestCreateIntentRenewalRequiresMembership(t *testing.T) {
	f := newFixture(t)
	f.putTier(1, 50000, nil)

	_, err := f.intents.CreateIntent(context.Background(), payments.IntentRequest{
		CreatorID: creatorID, SupporterUserID: supporterID, Kind: models.KindMembershipRenewal, TierID: 1,
	})
	assert.ErrorIs(t, err, payments.ErrTierUnavailable)
}

func TestCreateIntentRenewalOnFullTier(t *testing.T) {
	f := newFixture(t)
	f.putTier(1, 50000, intPtr(1))
	f.store.PutSupporter(models.Supporter{CreatorID: creatorID, UserID: supporterID, Status: models.SupporterActive, TierID: int64Ptr(1)})

	f.gateway.EXPECT().CreateOrder(gomock.Any(), gomock.Any()).
		Return(payments.GatewaySession{RedirectURL: "https://pay.example/r"}, nil)

	_, err := f.intents.CreateIntent(context.Background(), payments.IntentRequest{
		CreatorID: creatorID, SupporterUserID: supporterID, Kind: models.KindMembershipRenewal, TierID: 1,
	})
	assert.NoError(t, err)
}

func TestCreateIntentGatewayFailureMarksFailed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.gateway.EXPECT().CreateOrder(gomock.Any(), gomock.Any()).
		Return(payments.GatewaySession{}, errors.New("connection refused"))

	_, err := f.intents.CreateIntent(ctx, payments.IntentRequest{
		CreatorID: creatorID, SupporterUserID: supporterID, Kind: models.KindTip, AmountMinor: 5000,
	})
	assert.ErrorIs(t, err, payments.ErrGatewayUnavailable)

	txns, err := f.store.ListCreatorTransactions(ctx, creatorID, "", store.Page{})
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, models.StatusFailed, txns[0].Status)
}

func TestCreateIntentRejectsFractionalGatewayAmounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rupees := payments.NewIntentService(f.store, f.gateway, f.verifier,
		payments.IntentConfig{Currency: "INR", FeeBPS: feeBPS, MinTipMinor: 100}, nil).WithClock(clock)

	_, err := rupees.CreateIntent(ctx, payments.IntentRequest{
		CreatorID: creatorID, SupporterUserID: supporterID, Kind: models.KindTip, AmountMinor: 1050,
	})
	assert.ErrorIs(t, err, payments.ErrInvalidAmount)
	assert.True(t, payments.IsInputError(err))

	tier := f.putTier(1, 1050, nil)
	tier.Currency = "INR"
	f.store.PutTier(tier)
	_, err = f.intents.CreateIntent(ctx, payments.IntentRequest{
		CreatorID: creatorID, SupporterUserID: supporterID, Kind: models.KindMembershipInitial, TierID: 1,
	})
	assert.ErrorIs(t, err, payments.ErrTierUnavailable)
	assert.NotErrorIs(t, err, payments.ErrGatewayUnavailable)

	txns, err := f.store.ListCreatorTransactions(ctx, creatorID, "", store.Page{})
	require.NoError(t, err)
	assert.Empty(t, txns)
}

func stillPending(txn models.Transaction) payments.Verification {
	v := settled(txn)
	v.Status = string(models.StatusPending)
	return v
}

func TestCancelIntent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	txn := f.pending(t, "a", models.KindTip, 5000, nil)

	_, err := f.intents.CancelIntent(ctx, txn.ID, supporterID+1)
	assert.ErrorIs(t, err, payments.ErrForbidden)

	gomock.InOrder(
		f.gateway.EXPECT().VerifyCallback(gomock.Any(), txn.GatewayOrderID, "").Return(stillPending(txn), nil),
		f.gateway.EXPECT().CancelOrder(gomock.Any(), txn.GatewayOrderID).Return(nil),
	)

	got, err := f.intents.CancelIntent(ctx, txn.ID, supporterID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)

	got, err = f.intents.CancelIntent(ctx, txn.ID, supporterID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)

	_, err = f.intents.CancelIntent(ctx, "missing", supporterID)
	assert.ErrorIs(t, err, payments.ErrUnknownOrder)
}

func TestCancelIntentAfterCompletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	txn := f.pending(t, "a", models.KindTip, 5000, nil)
	f.gateway.EXPECT().VerifyCallback(gomock.Any(), txn.GatewayOrderID, "").Return(settled(txn), nil)

	_, err := f.verifier.HandleCallback(ctx, payments.Callback{OrderID: txn.GatewayOrderID})
	require.NoError(t, err)

	got, err := f.intents.CancelIntent(ctx, txn.ID, supporterID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
	assert.Equal(t, 1, f.notifier.count())
}

func TestCancelIntentSettlesPaidOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	txn := f.pending(t, "a", models.KindTip, 5000, nil)
	f.gateway.EXPECT().VerifyCallback(gomock.Any(), txn.GatewayOrderID, "").Return(settled(txn), nil)

	got, err := f.intents.CancelIntent(ctx, txn.ID, supporterID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
	assert.Equal(t, 1, f.notifier.count())

	s, err := f.store.GetSupporter(ctx, creatorID, supporterID)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), s.TotalContributedMinor)
}

func TestCancelIntentOrderUnknownToGateway(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	txn := f.pending(t, "a", models.KindTip, 5000, nil)
	f.gateway.EXPECT().VerifyCallback(gomock.Any(), txn.GatewayOrderID, "").
		Return(payments.Verification{}, payments.ErrGatewayOrderNotFound)

	got, err := f.intents.CancelIntent(ctx, txn.ID, supporterID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)
}

func TestCancelIntentKeepsPendingWhenGatewayFails(t *testing.T) {
	tests := []struct {
		name   string
		expect func(f *fixture, txn models.Transaction)
	}{
		{"verify unavailable", func(f *fixture, txn models.Transaction) {
			f.gateway.EXPECT().VerifyCallback(gomock.Any(), txn.GatewayOrderID, "").
				Return(payments.Verification{}, errors.New("timeout"))
		}},
		{"expire refused", func(f *fixture, txn models.Transaction) {
			f.gateway.EXPECT().VerifyCallback(gomock.Any(), txn.GatewayOrderID, "").Return(stillPending(txn), nil)
			f.gateway.EXPECT().CancelOrder(gomock.Any(), txn.GatewayOrderID).Return(errors.New("412 transaction status cannot be updated"))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			txn := f.pending(t, "a", models.KindTip, 5000, nil)
			tt.expect(f, txn)

			_, err := f.intents.CancelIntent(ctx, txn.ID, supporterID)
			assert.ErrorIs(t, err, payments.ErrGatewayUnavailable)

			got, err := f.store.GetTransaction(ctx, txn.ID)
			require.NoError(t, err)
			assert.Equal(t, models.StatusPending, got.Status)
		})
	}
}

func TestPaymentAfterCancelRaisesAlert(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	txn := f.pending(t, "a", models.KindTip, 5000, nil)

	f.gateway.EXPECT().VerifyCallback(gomock.Any(), txn.GatewayOrderID, "").
		Return(payments.Verification{}, payments.ErrGatewayOrderNotFound)
	got, err := f.intents.CancelIntent(ctx, txn.ID, supporterID)
	require.NoError(t, err)
	require.Equal(t, models.StatusCancelled, got.Status)

	f.gateway.EXPECT().VerifyCallback(gomock.Any(), txn.GatewayOrderID, "").Return(settled(txn), nil).Times(2)
	for i := 0; i < 2; i++ {
		res, err := f.verifier.HandleCallback(ctx, payments.Callback{
			OrderID: txn.GatewayOrderID, GatewayTransactionID: "mt-a", ClaimedStatus: "settlement",
		})
		require.NoError(t, err)
		assert.True(t, res.Duplicate)
		assert.Equal(t, models.StatusCancelled, res.Status())
	}
	assert.Zero(t, f.notifier.count())

	alerts, err := f.store.ListOpenAlerts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertLateSettlement, alerts[0].Kind)
	assert.Equal(t, txn.ID, alerts[0].TransactionID)

	report, err := f.reconciler.ReplayAlerts(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, payments.ReplayReport{Skipped: 1}, report)
}

func TestLateCallbackForUnpaidCancelledOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	txn := f.pending(t, "a", models.KindTip, 5000, nil)
	_, err := f.store.Transition(ctx, models.Transition{TransactionID: txn.ID, Status: models.StatusCancelled, At: fixedNow})
	require.NoError(t, err)

	f.gateway.EXPECT().VerifyCallback(gomock.Any(), txn.GatewayOrderID, "").Return(stillPending(txn), nil)
	_, err = f.verifier.HandleCallback(ctx, payments.Callback{OrderID: txn.GatewayOrderID, ClaimedStatus: "settlement"})
	require.NoError(t, err)

	_, err = f.verifier.HandleCallback(ctx, payments.Callback{OrderID: txn.GatewayOrderID, ClaimedStatus: "expire"})
	require.NoError(t, err)

	alerts, err := f.store.ListOpenAlerts(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, alerts)
}
