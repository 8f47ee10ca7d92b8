package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"creator-platform/internal/models"
)

type supporterKey struct {
	creatorID int64
	userID    int64
}

// Memory is an in-memory store. A single mutex stands in for the database
// transaction, so every method is one atomic unit.
type Memory struct {
	mu           sync.Mutex
	tiers        map[int64]models.MembershipTier
	transactions map[string]models.Transaction
	orders       map[string]string
	supporters   map[supporterKey]models.Supporter
	alerts       map[string]models.ReconciliationAlert
	charges      map[string]ScheduledCharge
	users        map[int64]models.User
	creators     map[int64]models.Creator
	nextID       int64
	supporterErr error
}

// NewMemory instantiates an empty store.
func NewMemory() *Memory {
	return &Memory{
		tiers:        make(map[int64]models.MembershipTier),
		transactions: make(map[string]models.Transaction),
		orders:       make(map[string]string),
		supporters:   make(map[supporterKey]models.Supporter),
		alerts:       make(map[string]models.ReconciliationAlert),
		charges:      make(map[string]ScheduledCharge),
		users:        make(map[int64]models.User),
		creators:     make(map[int64]models.Creator),
	}
}

// PutTier inserts or replaces a membership tier.
func (m *Memory) PutTier(tier models.MembershipTier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tiers[tier.ID] = tier
}

// PutSupporter inserts or replaces a supporter row.
func (m *Memory) PutSupporter(s models.Supporter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	m.supporters[supporterKey{s.CreatorID, s.UserID}] = s
}

// FailSupporterSync makes every subsequent supporter mutation fail with err.
// Pass nil to restore normal behaviour.
func (m *Memory) FailSupporterSync(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.supporterErr = err
}

// Charges returns a copy of the scheduled charges keyed by supporter id.
func (m *Memory) Charges() map[string]ScheduledCharge {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]ScheduledCharge, len(m.charges))
	for k, v := range m.charges {
		out[k] = v
	}
	return out
}

func (m *Memory) GetTier(_ context.Context, tierID int64) (models.MembershipTier, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tier, ok := m.tiers[tierID]
	if !ok {
		return models.MembershipTier{}, ErrNotFound
	}
	return tier, nil
}

func (m *Memory) CountActiveSupporters(_ context.Context, creatorID, tierID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, s := range m.supporters {
		if s.CreatorID == creatorID && s.Status == models.SupporterActive && s.TierID != nil && *s.TierID == tierID {
			count++
		}
	}
	return count, nil
}

func (m *Memory) GetSupporter(_ context.Context, creatorID, userID int64) (models.Supporter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.supporters[supporterKey{creatorID, userID}]
	if !ok {
		return models.Supporter{}, ErrNotFound
	}
	return s, nil
}

func (m *Memory) CreateTransaction(_ context.Context, txn models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.transactions[txn.ID]; ok {
		return ErrDuplicate
	}
	if _, ok := m.orders[txn.GatewayOrderID]; ok {
		return ErrDuplicate
	}
	m.transactions[txn.ID] = txn
	m.orders[txn.GatewayOrderID] = txn.ID
	return nil
}

func (m *Memory) SetCheckoutURL(_ context.Context, transactionID, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	txn, ok := m.transactions[transactionID]
	if !ok {
		return ErrNotFound
	}
	txn.CheckoutURL = url
	m.transactions[transactionID] = txn
	return nil
}

func (m *Memory) GetTransaction(_ context.Context, id string) (models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	txn, ok := m.transactions[id]
	if !ok {
		return models.Transaction{}, ErrNotFound
	}
	return txn, nil
}

func (m *Memory) GetTransactionByOrderID(_ context.Context, orderID string) (models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.orders[orderID]
	if !ok {
		return models.Transaction{}, ErrNotFound
	}
	return m.transactions[id], nil
}

func (m *Memory) ListStalePending(_ context.Context, createdBefore time.Time, limit int) ([]models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Transaction
	for _, txn := range m.transactions {
		if txn.Status == models.StatusPending && txn.CreatedAt.Before(createdBefore) {
			out = append(out, txn)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) Transition(_ context.Context, t models.Transition) (models.TransitionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	txn, ok := m.transactions[t.TransactionID]
	if !ok {
		return models.TransitionResult{}, ErrNotFound
	}
	if txn.Status != models.StatusPending {
		return models.TransitionResult{Transaction: txn}, nil
	}

	at := t.At
	txn.Status = t.Status
	txn.GatewayTransactionID = t.GatewayTransactionID
	txn.PaymentMethod = t.PaymentMethod
	txn.PlatformFeeMinor = t.PlatformFeeMinor
	txn.PayoutMinor = t.PayoutMinor
	txn.UpdatedAt = at
	if t.Status == models.StatusCompleted {
		txn.CompletedAt = &at
	}
	m.transactions[txn.ID] = txn

	res := models.TransitionResult{Transaction: txn, Applied: true}
	if t.Status != models.StatusCompleted || t.Supporter == nil {
		return res, nil
	}

	if m.supporterErr != nil {
		alert := models.ReconciliationAlert{
			ID:            uuid.NewString(),
			TransactionID: txn.ID,
			Kind:          models.AlertSupporterSync,
			Detail:        m.supporterErr.Error(),
			CreatedAt:     at,
		}
		m.alerts[alert.ID] = alert
		res.SupporterErr = m.supporterErr
		res.AlertID = alert.ID
		return res, nil
	}

	s := m.applySyncLocked(*t.Supporter, at)
	res.Supporter = &s
	return res, nil
}

func (m *Memory) applySyncLocked(sync models.SupporterSync, at time.Time) models.Supporter {
	key := supporterKey{sync.CreatorID, sync.UserID}
	s, ok := m.supporters[key]
	if !ok {
		s = models.Supporter{
			ID:        uuid.NewString(),
			CreatorID: sync.CreatorID,
			UserID:    sync.UserID,
			Status:    models.SupporterActive,
			CreatedAt: at,
		}
	}
	s.TotalContributedMinor += sync.AmountMinor
	paidAt := sync.PaidAt
	if s.LastPaymentAt == nil || paidAt.After(*s.LastPaymentAt) {
		s.LastPaymentAt = &paidAt
	}
	if sync.TierID != nil {
		tierID := *sync.TierID
		s.TierID = &tierID
		s.Status = models.SupporterActive
	}
	if sync.NextBillingDate != nil && (s.NextBillingDate == nil || sync.NextBillingDate.After(*s.NextBillingDate)) {
		next := *sync.NextBillingDate
		s.NextBillingDate = &next
	}
	s.UpdatedAt = at
	m.supporters[key] = s
	return s
}

func (m *Memory) RecordAlert(_ context.Context, alert models.ReconciliationAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.alerts[alert.ID]; ok {
		return ErrDuplicate
	}
	m.alerts[alert.ID] = alert
	return nil
}

func (m *Memory) ListOpenAlerts(_ context.Context, limit int) ([]models.ReconciliationAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ReconciliationAlert
	for _, a := range m.alerts {
		if a.ResolvedAt == nil {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) ApplySupporterSync(_ context.Context, alertID string, sync models.SupporterSync, at time.Time) (*models.Supporter, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	alert, ok := m.alerts[alertID]
	if !ok {
		return nil, false, ErrNotFound
	}
	if alert.ResolvedAt != nil {
		return nil, false, nil
	}
	if m.supporterErr != nil {
		return nil, false, m.supporterErr
	}
	s := m.applySyncLocked(sync, at)
	alert.ResolvedAt = &at
	m.alerts[alertID] = alert
	return &s, true, nil
}

func (m *Memory) ResolveAlert(_ context.Context, alertID string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	alert, ok := m.alerts[alertID]
	if !ok {
		return false, ErrNotFound
	}
	if alert.ResolvedAt != nil {
		return false, nil
	}
	alert.ResolvedAt = &at
	m.alerts[alertID] = alert
	return true, nil
}

// ScheduleCharge records the next charge date for a supporter.
func (m *Memory) ScheduleCharge(_ context.Context, supporterID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.charges[supporterID] = ScheduledCharge{SupporterID: supporterID, ChargeAt: at, UpdatedAt: time.Now().UTC()}
	return nil
}
