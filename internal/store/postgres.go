package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	_ "github.com/jackc/pgx/v5/stdlib"

	"creator-platform/internal/config"
	"creator-platform/internal/models"
)

const transactionColumns = `id, creator_id, supporter_user_id, kind, amount_minor, currency, status,
	gateway_order_id, gateway_transaction_id, payment_method, membership_tier_id, message, is_public,
	checkout_url, platform_fee_minor, payout_minor, created_at, updated_at, completed_at`

const supporterColumns = `id, creator_id, user_id, status, tier_id, total_contributed_minor,
	last_payment_at, next_billing_date, created_at, updated_at`

const tierColumns = `id, creator_id, name, price_minor, currency, tier_level, benefits,
	max_supporters, is_active, created_at`

// Postgres is the production store.
type Postgres struct {
	db *sqlx.DB
}

// Open connects to Postgres through the pgx stdlib driver.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Hour)
	return db, nil
}

func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

// Migrate applies the embedded schema. Statements are idempotent.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Probe checks database connectivity.
func (p *Postgres) Probe(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *Postgres) GetTier(ctx context.Context, tierID int64) (models.MembershipTier, error) {
	var tier models.MembershipTier
	err := p.db.GetContext(ctx, &tier, `SELECT `+tierColumns+` FROM membership_tiers WHERE id = $1`, tierID)
	return tier, notFound(err)
}

// ListActiveTiers returns a creator's active tiers ordered by level.
func (p *Postgres) ListActiveTiers(ctx context.Context, creatorID int64) ([]models.MembershipTier, error) {
	tiers := []models.MembershipTier{}
	err := p.db.SelectContext(ctx, &tiers,
		`SELECT `+tierColumns+` FROM membership_tiers
		 WHERE creator_id = $1 AND is_active
		 ORDER BY tier_level, price_minor`, creatorID)
	return tiers, err
}

func (p *Postgres) CountActiveSupporters(ctx context.Context, creatorID, tierID int64) (int, error) {
	var count int
	err := p.db.GetContext(ctx, &count,
		`SELECT count(*) FROM supporters WHERE creator_id = $1 AND tier_id = $2 AND status = 'active'`,
		creatorID, tierID)
	return count, err
}

func (p *Postgres) GetSupporter(ctx context.Context, creatorID, userID int64) (models.Supporter, error) {
	var s models.Supporter
	err := p.db.GetContext(ctx, &s,
		`SELECT `+supporterColumns+` FROM supporters WHERE creator_id = $1 AND user_id = $2`,
		creatorID, userID)
	return s, notFound(err)
}

// ListCreatorSupporters returns a creator's supporters, biggest contributors first.
func (p *Postgres) ListCreatorSupporters(ctx context.Context, creatorID int64, page Page) ([]models.Supporter, error) {
	page = page.normalized()
	supporters := []models.Supporter{}
	err := p.db.SelectContext(ctx, &supporters,
		`SELECT `+supporterColumns+` FROM supporters
		 WHERE creator_id = $1
		 ORDER BY total_contributed_minor DESC, created_at
		 LIMIT $2 OFFSET $3`, creatorID, page.Limit, page.Offset)
	return supporters, err
}

func (p *Postgres) CreateTransaction(ctx context.Context, txn models.Transaction) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO transactions
		   (id, creator_id, supporter_user_id, kind, amount_minor, currency, status,
		    gateway_order_id, membership_tier_id, message, is_public, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		txn.ID, txn.CreatorID, txn.SupporterUserID, string(txn.Kind), txn.AmountMinor, txn.Currency,
		string(txn.Status), txn.GatewayOrderID, txn.MembershipTierID, txn.Message, txn.IsPublic,
		txn.CreatedAt, txn.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (p *Postgres) SetCheckoutURL(ctx context.Context, transactionID, url string) error {
	res, err := p.db.ExecContext(ctx, `UPDATE transactions SET checkout_url = $2 WHERE id = $1`, transactionID, url)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) GetTransaction(ctx context.Context, id string) (models.Transaction, error) {
	if _, err := uuid.Parse(id); err != nil {
		return models.Transaction{}, ErrNotFound
	}
	var txn models.Transaction
	err := p.db.GetContext(ctx, &txn, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id)
	return txn, notFound(err)
}

func (p *Postgres) GetTransactionByOrderID(ctx context.Context, orderID string) (models.Transaction, error) {
	var txn models.Transaction
	err := p.db.GetContext(ctx, &txn, `SELECT `+transactionColumns+` FROM transactions WHERE gateway_order_id = $1`, orderID)
	return txn, notFound(err)
}

// ListCreatorTransactions returns a creator's transactions, newest first.
// An empty status lists every status.
func (p *Postgres) ListCreatorTransactions(ctx context.Context, creatorID int64, status models.TransactionStatus, page Page) ([]models.Transaction, error) {
	page = page.normalized()
	txns := []models.Transaction{}
	err := p.db.SelectContext(ctx, &txns,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE creator_id = $1 AND ($2 = '' OR status = $2)
		 ORDER BY created_at DESC
		 LIMIT $3 OFFSET $4`, creatorID, string(status), page.Limit, page.Offset)
	return txns, err
}

func (p *Postgres) ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]models.Transaction, error) {
	txns := []models.Transaction{}
	err := p.db.SelectContext(ctx, &txns,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE status = 'pending' AND created_at < $1
		 ORDER BY created_at
		 LIMIT $2`, createdBefore, limit)
	return txns, err
}

// Transition moves a pending transaction to a terminal status. The UPDATE only
// matches while the row is still pending, so concurrent callers serialize on
// the row lock and exactly one of them applies. The supporter upsert runs
// under a savepoint; if it fails the transition still commits together with
// an alert row.
func (p *Postgres) Transition(ctx context.Context, t models.Transition) (models.TransitionResult, error) {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.TransitionResult{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var txn models.Transaction
	err = tx.GetContext(ctx, &txn,
		`UPDATE transactions
		 SET status = $2,
		     gateway_transaction_id = $3,
		     payment_method = $4,
		     platform_fee_minor = $5,
		     payout_minor = $6,
		     completed_at = CASE WHEN $2 = 'completed' THEN $7::timestamptz ELSE NULL END,
		     updated_at = $7
		 WHERE id = $1 AND status = 'pending'
		 RETURNING `+transactionColumns,
		t.TransactionID, string(t.Status), t.GatewayTransactionID, t.PaymentMethod,
		t.PlatformFeeMinor, t.PayoutMinor, t.At,
	)
	if errors.Is(err, sql.ErrNoRows) {
		// Already terminal, or lost the race to a concurrent caller.
		_ = tx.Rollback()
		current, err := p.GetTransaction(ctx, t.TransactionID)
		if err != nil {
			return models.TransitionResult{}, err
		}
		return models.TransitionResult{Transaction: current}, nil
	}
	if err != nil {
		return models.TransitionResult{}, fmt.Errorf("conditional update: %w", err)
	}

	res := models.TransitionResult{Transaction: txn, Applied: true}

	if txn.Status == models.StatusCompleted && t.Supporter != nil {
		if _, err := tx.ExecContext(ctx, `SAVEPOINT supporter_sync`); err != nil {
			return models.TransitionResult{}, fmt.Errorf("savepoint: %w", err)
		}
		supporter, syncErr := upsertSupporter(ctx, tx, *t.Supporter, t.At)
		if syncErr != nil {
			if _, err := tx.ExecContext(ctx, `ROLLBACK TO SAVEPOINT supporter_sync`); err != nil {
				return models.TransitionResult{}, fmt.Errorf("rollback to savepoint: %w", err)
			}
			alert := models.ReconciliationAlert{
				ID:            uuid.NewString(),
				TransactionID: txn.ID,
				Kind:          models.AlertSupporterSync,
				Detail:        syncErr.Error(),
				CreatedAt:     t.At,
			}
			if err := insertAlert(ctx, tx, alert); err != nil {
				return models.TransitionResult{}, fmt.Errorf("record supporter sync alert: %w", err)
			}
			res.SupporterErr = syncErr
			res.AlertID = alert.ID
		} else {
			res.Supporter = &supporter
		}
	}

	if err := tx.Commit(); err != nil {
		return models.TransitionResult{}, fmt.Errorf("commit: %w", err)
	}
	return res, nil
}

// upsertSupporter applies one payment to the supporter aggregate. The total is
// incremented by the database, never computed from a value read earlier.
func upsertSupporter(ctx context.Context, tx *sqlx.Tx, sync models.SupporterSync, at time.Time) (models.Supporter, error) {
	var s models.Supporter
	err := tx.GetContext(ctx, &s,
		`INSERT INTO supporters
		   (id, creator_id, user_id, status, tier_id, total_contributed_minor,
		    last_payment_at, next_billing_date, created_at, updated_at)
		 VALUES ($1, $2, $3, 'active', $4, $5, $6, $7, $8, $8)
		 ON CONFLICT (creator_id, user_id) DO UPDATE SET
		     total_contributed_minor = supporters.total_contributed_minor + EXCLUDED.total_contributed_minor,
		     last_payment_at = GREATEST(supporters.last_payment_at, EXCLUDED.last_payment_at),
		     tier_id = COALESCE(EXCLUDED.tier_id, supporters.tier_id),
		     next_billing_date = GREATEST(supporters.next_billing_date, EXCLUDED.next_billing_date),
		     status = CASE WHEN EXCLUDED.tier_id IS NOT NULL THEN 'active' ELSE supporters.status END,
		     updated_at = EXCLUDED.updated_at
		 RETURNING `+supporterColumns,
		uuid.NewString(), sync.CreatorID, sync.UserID, sync.TierID, sync.AmountMinor,
		sync.PaidAt, sync.NextBillingDate, at,
	)
	return s, err
}

func insertAlert(ctx context.Context, ex sqlx.ExecerContext, alert models.ReconciliationAlert) error {
	_, err := ex.ExecContext(ctx,
		`INSERT INTO reconciliation_alerts (id, transaction_id, kind, detail, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		alert.ID, alert.TransactionID, string(alert.Kind), alert.Detail, alert.CreatedAt)
	return err
}

func (p *Postgres) RecordAlert(ctx context.Context, alert models.ReconciliationAlert) error {
	err := insertAlert(ctx, p.db, alert)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (p *Postgres) ListOpenAlerts(ctx context.Context, limit int) ([]models.ReconciliationAlert, error) {
	alerts := []models.ReconciliationAlert{}
	err := p.db.SelectContext(ctx, &alerts,
		`SELECT id, transaction_id, kind, detail, created_at, resolved_at
		 FROM reconciliation_alerts
		 WHERE resolved_at IS NULL
		 ORDER BY created_at
		 LIMIT $1`, limit)
	return alerts, err
}

func (p *Postgres) ApplySupporterSync(ctx context.Context, alertID string, sync models.SupporterSync, at time.Time) (*models.Supporter, bool, error) {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	resolved, err := resolveAlert(ctx, tx, alertID, at)
	if err != nil || !resolved {
		return nil, false, err
	}
	supporter, err := upsertSupporter(ctx, tx, sync, at)
	if err != nil {
		return nil, false, fmt.Errorf("upsert supporter: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit: %w", err)
	}
	return &supporter, true, nil
}

func (p *Postgres) ResolveAlert(ctx context.Context, alertID string, at time.Time) (bool, error) {
	return resolveAlert(ctx, p.db, alertID, at)
}

func resolveAlert(ctx context.Context, q sqlx.QueryerContext, alertID string, at time.Time) (bool, error) {
	var resolved bool
	err := sqlx.GetContext(ctx, q, &resolved,
		`WITH target AS (
		     SELECT id FROM reconciliation_alerts WHERE id = $1
		 ), updated AS (
		     UPDATE reconciliation_alerts SET resolved_at = $2
		     WHERE id = $1 AND resolved_at IS NULL
		     RETURNING id
		 )
		 SELECT EXISTS (SELECT 1 FROM updated) FROM target`, alertID, at)
	if err != nil {
		return false, notFound(err)
	}
	return resolved, nil
}

// ScheduleCharge records the next charge date for a supporter, replacing any
// earlier schedule.
func (p *Postgres) ScheduleCharge(ctx context.Context, supporterID string, at time.Time) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO scheduled_charges (supporter_id, charge_at, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (supporter_id) DO UPDATE SET charge_at = EXCLUDED.charge_at, updated_at = EXCLUDED.updated_at`,
		supporterID, at)
	return err
}

// DueCharges lists scheduled charges due before the given time.
func (p *Postgres) DueCharges(ctx context.Context, before time.Time, limit int) ([]ScheduledCharge, error) {
	charges := []ScheduledCharge{}
	err := p.db.SelectContext(ctx, &charges,
		`SELECT supporter_id, charge_at, updated_at FROM scheduled_charges
		 WHERE charge_at <= $1
		 ORDER BY charge_at
		 LIMIT $2`, before, limit)
	return charges, err
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
