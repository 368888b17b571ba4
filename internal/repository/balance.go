package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/loomperapp-jpg/loomper-backend/internal/model"
)

func (r *Repository) GetWallet(ctx context.Context, userID string) (*model.Wallet, error) {
	var wallet model.Wallet
	err := r.db.GetContext(ctx, &wallet, "SELECT * FROM wallets WHERE user_id = $1", userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return &wallet, nil
}

// UpdateLedger runs one optimistic attempt. The wallet version read at the start must still be
// current when the unit commits; otherwise nothing is written and model.ErrConflict is returned.
func (r *Repository) UpdateLedger(ctx context.Context, userID string, fn func(*Unit) error) (*model.Wallet, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// Wallet first: any commit after this read bumps the version and fails ours.
	var wallet model.Wallet
	if err := tx.GetContext(ctx, &wallet, "SELECT * FROM wallets WHERE user_id = $1", userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}

	var user model.User
	if err := tx.GetContext(ctx, &user, "SELECT * FROM users WHERE id = $1", userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	unit := newUnit(user, wallet, r.now(), func(month string) (int64, error) {
		return monthlyEarned(ctx, tx, userID, month)
	})
	if err := fn(unit); err != nil {
		return nil, err
	}

	if err := commitUnit(ctx, tx, unit, wallet.Version); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	unit.Wallet.Version = wallet.Version + 1
	return &unit.Wallet, nil
}

func commitUnit(ctx context.Context, tx *sqlx.Tx, u *Unit, version int64) error {
	w := u.Wallet
	res, err := tx.ExecContext(ctx, `
		UPDATE wallets SET
			paid_credits = $3,
			promotional_credits = $4,
			campaign_credits = $5,
			last_purchase_at = $6,
			updated_at = $7,
			version = version + 1
		WHERE user_id = $1 AND version = $2`,
		w.UserID, version, w.PaidCredits, w.PromotionalCredits, w.CampaignCredits, w.LastPurchaseAt, u.now)
	if err != nil {
		return fmt.Errorf("failed to update wallet: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrConflict
	}
	u.Wallet.UpdatedAt = u.now

	if p := u.purchase; p != nil {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO purchases (payment_id, user_id, package_id, credits, amount_paid, currency, payment_method, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			p.PaymentID, p.UserID, p.PackageID, p.Credits, p.AmountPaid, p.Currency, p.PaymentMethod, p.Status, p.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("payment %s: %w", p.PaymentID, model.ErrDuplicate)
			}
			return fmt.Errorf("failed to create purchase record: %w", err)
		}
	}

	for _, t := range u.transactions {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO credit_transactions
				(id, user_id, type, amount, credit_type, status, level, expires_at, payment_id, package_id,
				 referred_user_id, tier, description, idempotency_key, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
			t.ID, t.UserID, t.Type, t.Amount, t.CreditType, t.Status, t.Level, t.ExpiresAt, t.PaymentID, t.PackageID,
			t.ReferredUserID, t.Tier, t.Description, t.IdempotencyKey, t.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("transaction %s: %w", deref(t.IdempotencyKey), model.ErrDuplicate)
			}
			return fmt.Errorf("failed to create transaction record: %w", err)
		}
	}

	for _, t := range u.expirations {
		res, err := tx.ExecContext(ctx, `
			UPDATE credit_transactions SET status = 'expired'
			WHERE id = $1 AND user_id = $2 AND status = 'completed'`,
			t.ID, u.User.ID)
		if err != nil {
			return fmt.Errorf("failed to expire transaction: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("transaction %s: %w", t.ID, model.ErrDuplicate)
		}
	}

	for month, amount := range u.earned {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO monthly_earnings (user_id, month, amount) VALUES ($1, $2, $3)
			ON CONFLICT (user_id, month) DO UPDATE SET amount = monthly_earnings.amount + EXCLUDED.amount`,
			u.User.ID, month, amount)
		if err != nil {
			return fmt.Errorf("failed to update monthly earnings: %w", err)
		}
	}

	if u.firstPurchaseDone {
		_, err := tx.ExecContext(ctx,
			"UPDATE users SET is_first_purchase = FALSE, updated_at = $2 WHERE id = $1",
			u.User.ID, u.now)
		if err != nil {
			return fmt.Errorf("failed to update first purchase flag: %w", err)
		}
	}

	if c := u.campaign; c != nil {
		_, err := tx.ExecContext(ctx, `
			UPDATE users SET
				campaign_tier = COALESCE($2, campaign_tier),
				campaign_start_date = COALESCE($3, campaign_start_date),
				campaign_end_date = COALESCE($4, campaign_end_date),
				campaign_status = $5,
				updated_at = $6
			WHERE id = $1`,
			u.User.ID, c.tier, c.startDate, c.endDate, c.status, u.now)
		if err != nil {
			return fmt.Errorf("failed to update campaign membership: %w", err)
		}
	}

	for _, t := range u.tasks {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO commission_tasks (id, payment_id, purchaser_id, credits, status, attempts, next_attempt_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			t.ID, t.PaymentID, t.PurchaserID, t.Credits, t.Status, t.Attempts, t.NextAttemptAt, t.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("commission task %s: %w", t.PaymentID, model.ErrDuplicate)
			}
			return fmt.Errorf("failed to enqueue commission task: %w", err)
		}
	}

	return nil
}

// GetTransactions returns transaction history for a user, newest first
func (r *Repository) GetTransactions(ctx context.Context, userID string, limit, offset int) ([]model.CreditTransaction, error) {
	var transactions []model.CreditTransaction
	err := r.db.SelectContext(ctx, &transactions, `
		SELECT * FROM credit_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	return transactions, err
}

func (r *Repository) HasTransactionKey(ctx context.Context, userID, key string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		"SELECT EXISTS (SELECT 1 FROM credit_transactions WHERE user_id = $1 AND idempotency_key = $2)",
		userID, key)
	return exists, err
}

// HasTransactionBetween reports whether the user has a transaction of txType created in [from, to).
func (r *Repository) HasTransactionBetween(ctx context.Context, userID string, txType model.TransactionType, from, to time.Time) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM credit_transactions
			WHERE user_id = $1 AND type = $2 AND created_at >= $3 AND created_at < $4
		)`,
		userID, txType, from, to)
	return exists, err
}

// ListExpiredPromotional returns completed promotional grants with expires_at <= now, ordered by
// (expires_at, id) and strictly after the cursor.
func (r *Repository) ListExpiredPromotional(ctx context.Context, now time.Time, after ExpiryCursor, limit int) ([]model.CreditTransaction, error) {
	var transactions []model.CreditTransaction
	err := r.db.SelectContext(ctx, &transactions, `
		SELECT * FROM credit_transactions
		WHERE credit_type = 'promotional'
			AND status = 'completed'
			AND expires_at <= $1
			AND (expires_at, id) > ($2, $3)
		ORDER BY expires_at, id
		LIMIT $4`,
		now, after.ExpiresAt, after.ID, limit)
	return transactions, err
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
