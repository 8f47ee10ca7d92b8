package store

import (
	"context"
	"sort"
	"strings"
	"time"

	"creator-platform/internal/models"
)

func (m *Memory) CreateAccount(_ context.Context, email, passwordHash string, creator *models.Creator) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return models.User{}, ErrDuplicate
		}
	}
	if creator != nil {
		for _, c := range m.creators {
			if c.Username == creator.Username || c.WidgetSecretToken == creator.WidgetSecretToken {
				return models.User{}, ErrDuplicate
			}
		}
	}

	now := time.Now().UTC()
	m.nextID++
	user := models.User{ID: m.nextID, Email: email, PasswordHash: passwordHash, CreatedAt: now, UpdatedAt: now}
	m.users[user.ID] = user

	if creator != nil {
		m.nextID++
		c := *creator
		c.ID = m.nextID
		c.UserID = user.ID
		c.CreatedAt, c.UpdatedAt = now, now
		m.creators[c.ID] = c
	}
	return user, nil
}

// PutCreator inserts or replaces a creator profile.
func (m *Memory) PutCreator(c models.Creator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creators[c.ID] = c
}

func (m *Memory) GetUserByEmail(_ context.Context, email string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return models.User{}, ErrNotFound
}

func (m *Memory) GetCreatorByUserID(_ context.Context, userID int64) (models.Creator, error) {
	return m.findCreator(func(c models.Creator) bool { return c.UserID == userID })
}

func (m *Memory) GetCreatorByUsername(_ context.Context, username string) (models.Creator, error) {
	return m.findCreator(func(c models.Creator) bool { return c.Username == username })
}

func (m *Memory) GetCreatorByWidgetToken(_ context.Context, token string) (models.Creator, error) {
	return m.findCreator(func(c models.Creator) bool { return c.WidgetSecretToken == token })
}

func (m *Memory) findCreator(match func(models.Creator) bool) (models.Creator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.creators {
		if match(c) {
			return c, nil
		}
	}
	return models.Creator{}, ErrNotFound
}

func (m *Memory) ListActiveTiers(_ context.Context, creatorID int64) ([]models.MembershipTier, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tiers := []models.MembershipTier{}
	for _, t := range m.tiers {
		if t.CreatorID == creatorID && t.IsActive {
			tiers = append(tiers, t)
		}
	}
	sort.Slice(tiers, func(i, j int) bool {
		if tiers[i].TierLevel != tiers[j].TierLevel {
			return tiers[i].TierLevel < tiers[j].TierLevel
		}
		return tiers[i].PriceMinor < tiers[j].PriceMinor
	})
	return tiers, nil
}

func (m *Memory) ListCreatorTransactions(_ context.Context, creatorID int64, status models.TransactionStatus, page Page) ([]models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	txns := []models.Transaction{}
	for _, t := range m.transactions {
		if t.CreatorID == creatorID && (status == "" || t.Status == status) {
			txns = append(txns, t)
		}
	}
	sort.Slice(txns, func(i, j int) bool { return txns[i].CreatedAt.After(txns[j].CreatedAt) })
	return paginate(txns, page), nil
}

func (m *Memory) ListCreatorSupporters(_ context.Context, creatorID int64, page Page) ([]models.Supporter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Supporter{}
	for _, s := range m.supporters {
		if s.CreatorID == creatorID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalContributedMinor != out[j].TotalContributedMinor {
			return out[i].TotalContributedMinor > out[j].TotalContributedMinor
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return paginate(out, page), nil
}

func (m *Memory) DueCharges(_ context.Context, before time.Time, limit int) ([]ScheduledCharge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []ScheduledCharge{}
	for _, c := range m.charges {
		if !c.ChargeAt.After(before) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChargeAt.Before(out[j].ChargeAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Probe always succeeds.
func (m *Memory) Probe(context.Context) error { return nil }

func paginate[T any](items []T, page Page) []T {
	page = page.normalized()
	if page.Offset >= len(items) {
		return items[:0]
	}
	items = items[page.Offset:]
	if len(items) > page.Limit {
		items = items[:page.Limit]
	}
	return items
}
