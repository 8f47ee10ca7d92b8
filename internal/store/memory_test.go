package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"creator-platform/internal/models"
)

func pendingTxn(id string, amount int64) models.Transaction {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	return models.Transaction{
		ID:              id,
		CreatorID:       1,
		SupporterUserID: 2,
		Kind:            models.KindTip,
		AmountMinor:     amount,
		Currency:        "IDR",
		Status:          models.StatusPending,
		GatewayOrderID:  "CP-" + id,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func TestMemoryCreateTransactionRejectsDuplicates(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.CreateTransaction(ctx, pendingTxn("a", 100)))

	err := m.CreateTransaction(ctx, pendingTxn("a", 100))
	assert.ErrorIs(t, err, ErrDuplicate)

	dup := pendingTxn("b", 100)
	dup.GatewayOrderID = "CP-a"
	assert.ErrorIs(t, m.CreateTransaction(ctx, dup), ErrDuplicate)
}

func TestMemoryTransitionAppliesOnce(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.CreateTransaction(ctx, pendingTxn("a", 10000)))

	at := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	tr := models.Transition{
		TransactionID:    "a",
		Status:           models.StatusCompleted,
		At:               at,
		PlatformFeeMinor: 500,
		PayoutMinor:      9500,
		Supporter:        &models.SupporterSync{CreatorID: 1, UserID: 2, AmountMinor: 10000, PaidAt: at},
	}

	first, err := m.Transition(ctx, tr)
	require.NoError(t, err)
	assert.True(t, first.Applied)
	require.NotNil(t, first.Supporter)
	assert.Equal(t, int64(10000), first.Supporter.TotalContributedMinor)

	tr.Status = models.StatusFailed
	second, err := m.Transition(ctx, tr)
	require.NoError(t, err)
	assert.False(t, second.Applied)
	assert.Equal(t, models.StatusCompleted, second.Transaction.Status)

	s, err := m.GetSupporter(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), s.TotalContributedMinor)
}

func TestMemoryConcurrentTransitionHasOneWinner(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.CreateTransaction(ctx, pendingTxn("a", 5000)))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			at := time.Now().UTC()
			res, err := m.Transition(ctx, models.Transition{
				TransactionID: "a",
				Status:        models.StatusCompleted,
				At:            at,
				Supporter:     &models.SupporterSync{CreatorID: 1, UserID: 2, AmountMinor: 5000, PaidAt: at},
			})
			if err == nil && res.Applied {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, applied)
	s, err := m.GetSupporter(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), s.TotalContributedMinor)
}

func TestMemorySupporterSyncFailureRecordsAlert(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.CreateTransaction(ctx, pendingTxn("a", 5000)))
	m.FailSupporterSync(errors.New("constraint violated"))

	at := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	res, err := m.Transition(ctx, models.Transition{
		TransactionID: "a",
		Status:        models.StatusCompleted,
		At:            at,
		Supporter:     &models.SupporterSync{CreatorID: 1, UserID: 2, AmountMinor: 5000, PaidAt: at},
	})
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, models.StatusCompleted, res.Transaction.Status)
	assert.Error(t, res.SupporterErr)
	assert.NotEmpty(t, res.AlertID)

	alerts, err := m.ListOpenAlerts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertSupporterSync, alerts[0].Kind)

	_, err = m.GetSupporter(ctx, 1, 2)
	assert.ErrorIs(t, err, ErrNotFound)

	m.FailSupporterSync(nil)
	owed := models.SupporterSync{CreatorID: 1, UserID: 2, AmountMinor: 5000, PaidAt: at}
	s, resolved, err := m.ApplySupporterSync(ctx, res.AlertID, owed, at)
	require.NoError(t, err)
	assert.True(t, resolved)
	assert.Equal(t, int64(5000), s.TotalContributedMinor)

	_, resolved, err = m.ApplySupporterSync(ctx, res.AlertID, owed, at)
	require.NoError(t, err)
	assert.False(t, resolved)

	got, err := m.GetSupporter(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), got.TotalContributedMinor)
}

func TestMemoryMembershipSyncKeepsLatestDates(t *testing.T) {
	m := NewMemory()
	tier := int64(7)
	early := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	late := early.Add(48 * time.Hour)
	earlyNext, lateNext := early.Add(720*time.Hour), late.Add(720*time.Hour)

	m.mu.Lock()
	m.applySyncLocked(models.SupporterSync{CreatorID: 1, UserID: 2, AmountMinor: 100, TierID: &tier, PaidAt: late, NextBillingDate: &lateNext}, late)
	s := m.applySyncLocked(models.SupporterSync{CreatorID: 1, UserID: 2, AmountMinor: 100, TierID: &tier, PaidAt: early, NextBillingDate: &earlyNext}, early)
	m.mu.Unlock()

	assert.Equal(t, int64(200), s.TotalContributedMinor)
	assert.Equal(t, late, *s.LastPaymentAt)
	assert.Equal(t, lateNext, *s.NextBillingDate)
	assert.Equal(t, models.SupporterActive, s.Status)
}

func TestMemoryListStalePendingOrdersOldestFirst(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"c", "a", "b"} {
		txn := pendingTxn(id, 1000)
		txn.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, m.CreateTransaction(ctx, txn))
	}

	stale, err := m.ListStalePending(ctx, base.Add(90*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, stale, 2)
	assert.Equal(t, "c", stale[0].ID)
	assert.Equal(t, "a", stale[1].ID)
}

func TestMemoryAccounts(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	user, err := m.CreateAccount(ctx, "a@example.com", "hash", &models.Creator{Username: "alice", DisplayName: "Alice", WidgetSecretToken: "tok"})
	require.NoError(t, err)

	_, err = m.CreateAccount(ctx, "A@example.com", "hash", nil)
	assert.ErrorIs(t, err, ErrDuplicate)

	c, err := m.GetCreatorByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, user.ID, c.UserID)

	c2, err := m.GetCreatorByWidgetToken(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, c.ID, c2.ID)

	_, err = m.GetCreatorByUserID(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPageNormalized(t *testing.T) {
	assert.Equal(t, Page{Limit: 50}, Page{}.normalized())
	assert.Equal(t, Page{Limit: 50}, Page{Limit: 1000, Offset: -1}.normalized())
	assert.Equal(t, Page{Limit: 10, Offset: 5}, Page{Limit: 10, Offset: 5}.normalized())
}
