package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// We use 'db' tags for sqlx to automatically map
// the database column names (snake_case) to our Go fields (CamelCase).

// User represents a user's authentication details.
type User struct {
	ID           int64     `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Creator represents a creator's public profile and settings.
type Creator struct {
	ID                int64     `db:"id" json:"id"`
	UserID            int64     `db:"user_id" json:"user_id"`
	Username          string    `db:"username" json:"username"`
	DisplayName       string    `db:"display_name" json:"display_name"`
	WidgetSecretToken string    `db:"widget_secret_token" json:"widget_secret_token,omitempty"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

type TransactionKind string

const (
	KindTip               TransactionKind = "tip"
	KindMembershipInitial TransactionKind = "membership_initial"
	KindMembershipRenewal TransactionKind = "membership_renewal"
)

func (k TransactionKind) Valid() bool {
	switch k {
	case KindTip, KindMembershipInitial, KindMembershipRenewal:
		return true
	}
	return false
}

// IsMembership reports whether the kind bills against a membership tier.
func (k TransactionKind) IsMembership() bool {
	return k == KindMembershipInitial || k == KindMembershipRenewal
}

type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusCompleted TransactionStatus = "completed"
	StatusFailed    TransactionStatus = "failed"
	StatusCancelled TransactionStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed from s.
func (s TransactionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Transaction is one payment attempt. Rows are never deleted.
type Transaction struct {
	ID                   string            `db:"id" json:"id"`
	CreatorID            int64             `db:"creator_id" json:"creator_id"`
	SupporterUserID      int64             `db:"supporter_user_id" json:"supporter_user_id"`
	Kind                 TransactionKind   `db:"kind" json:"kind"`
	AmountMinor          int64             `db:"amount_minor" json:"amount_minor"`
	Currency             string            `db:"currency" json:"currency"`
	Status               TransactionStatus `db:"status" json:"status"`
	GatewayOrderID       string            `db:"gateway_order_id" json:"gateway_order_id"`
	GatewayTransactionID string            `db:"gateway_transaction_id" json:"gateway_transaction_id,omitempty"`
	PaymentMethod        string            `db:"payment_method" json:"payment_method,omitempty"`
	MembershipTierID     *int64            `db:"membership_tier_id" json:"membership_tier_id,omitempty"`
	Message              string            `db:"message" json:"message,omitempty"`
	IsPublic             bool              `db:"is_public" json:"is_public"`
	CheckoutURL          string            `db:"checkout_url" json:"-"`
	PlatformFeeMinor     int64             `db:"platform_fee_minor" json:"platform_fee_minor"`
	PayoutMinor          int64             `db:"payout_minor" json:"payout_minor"`
	CreatedAt            time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time         `db:"updated_at" json:"updated_at"`
	CompletedAt          *time.Time        `db:"completed_at" json:"completed_at,omitempty"`
}

type SupporterStatus string

const (
	SupporterActive    SupporterStatus = "active"
	SupporterPaused    SupporterStatus = "paused"
	SupporterCancelled SupporterStatus = "cancelled"
)

// Supporter is the creator/user relationship aggregate.
type Supporter struct {
	ID                    string          `db:"id" json:"id"`
	CreatorID             int64           `db:"creator_id" json:"creator_id"`
	UserID                int64           `db:"user_id" json:"user_id"`
	Status                SupporterStatus `db:"status" json:"status"`
	TierID                *int64          `db:"tier_id" json:"tier_id,omitempty"`
	TotalContributedMinor int64           `db:"total_contributed_minor" json:"total_contributed_minor"`
	LastPaymentAt         *time.Time      `db:"last_payment_at" json:"last_payment_at,omitempty"`
	NextBillingDate       *time.Time      `db:"next_billing_date" json:"next_billing_date,omitempty"`
	CreatedAt             time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time       `db:"updated_at" json:"updated_at"`
}

// Benefits is stored as a JSON array so ordering survives the round trip.
type Benefits []string

func (b Benefits) Value() (driver.Value, error) {
	if b == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(b))
}

func (b *Benefits) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*b = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errors.New("benefits: unsupported column type")
	}
	return json.Unmarshal(raw, (*[]string)(b))
}

// MembershipTier is creator-defined pricing. Read-only to the payment core.
type MembershipTier struct {
	ID            int64     `db:"id" json:"id"`
	CreatorID     int64     `db:"creator_id" json:"creator_id"`
	Name          string    `db:"name" json:"name"`
	PriceMinor    int64     `db:"price_minor" json:"price_minor"`
	Currency      string    `db:"currency" json:"currency"`
	TierLevel     int       `db:"tier_level" json:"tier_level"`
	Benefits      Benefits  `db:"benefits" json:"benefits"`
	MaxSupporters *int      `db:"max_supporters" json:"max_supporters,omitempty"`
	IsActive      bool      `db:"is_active" json:"is_active"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

type AlertKind string

const (
	AlertSupporterSync  AlertKind = "supporter_sync"
	AlertChargeSchedule AlertKind = "charge_schedule"
	// AlertLateSettlement: the gateway reports a payment for a transaction
	// that was already closed as failed or cancelled. Needs a refund or a
	// manual credit.
	AlertLateSettlement AlertKind = "late_settlement"
)

// ReconciliationAlert records work that failed after a transaction reached a
// terminal status. It is resolved at most once.
type ReconciliationAlert struct {
	ID            string     `db:"id" json:"id"`
	TransactionID string     `db:"transaction_id" json:"transaction_id"`
	Kind          AlertKind  `db:"kind" json:"kind"`
	Detail        string     `db:"detail" json:"detail"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	ResolvedAt    *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
}

// SupporterSync is the supporter mutation owed by one completed transaction.
type SupporterSync struct {
	CreatorID       int64
	UserID          int64
	AmountMinor     int64
	TierID          *int64
	PaidAt          time.Time
	NextBillingDate *time.Time
}

// Transition asks the store to move a pending transaction to a terminal status.
// Supporter is applied in the same unit only when the guarded update wins.
type Transition struct {
	TransactionID        string
	Status               TransactionStatus
	GatewayTransactionID string
	PaymentMethod        string
	At                   time.Time
	PlatformFeeMinor     int64
	PayoutMinor          int64
	Supporter            *SupporterSync
}

// TransitionResult is the stored state after a Transition call. When Applied is
// false another caller already moved the transaction and Transaction holds the
// winner's result.
type TransitionResult struct {
	Transaction  Transaction
	Applied      bool
	Supporter    *Supporter
	SupporterErr error
	AlertID      string
}
