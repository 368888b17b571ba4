package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/loomperapp-jpg/loomper-backend/internal/model"
)

func (r *Repository) GetUser(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, "SELECT * FROM users WHERE id = $1", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// CreateUser inserts the user together with its zero-balance wallet.
func (r *Repository) CreateUser(ctx context.Context, user *model.User) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	err = tx.QueryRowxContext(ctx, `
		INSERT INTO users (id, email, display_name, referred_by, is_first_purchase)
		VALUES ($1, $2, $3, $4, TRUE)
		RETURNING is_first_purchase, active_referral_count, created_at, updated_at`,
		user.ID,
		user.Email,
		user.DisplayName,
		user.ReferredBy,
	).Scan(&user.IsFirstPurchase, &user.ActiveReferralCount, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrUserExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO wallets (user_id, paid_credits, promotional_credits, campaign_credits, version)
		VALUES ($1, 0, 0, 0, 0)`, user.ID)
	if err != nil {
		return fmt.Errorf("failed to create wallet: %w", err)
	}

	return tx.Commit()
}

func (r *Repository) SetActiveReferralCount(ctx context.Context, userID string, count int) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE users SET active_referral_count = $2, updated_at = NOW() WHERE id = $1",
		userID, count,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *Repository) ListActiveCampaignUsers(ctx context.Context, afterID string, limit int) ([]model.User, error) {
	var users []model.User
	err := r.db.SelectContext(ctx, &users, `
		SELECT * FROM users
		WHERE campaign_status = 'active' AND id > $1
		ORDER BY id
		LIMIT $2`,
		afterID, limit)
	return users, err
}
