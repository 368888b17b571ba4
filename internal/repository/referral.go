package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/loomperapp-jpg/loomper-backend/internal/model"
)

func (r *Repository) GetMonthlyEarned(ctx context.Context, userID, month string) (int64, error) {
	return monthlyEarned(ctx, r.db, userID, month)
}

func monthlyEarned(ctx context.Context, q sqlx.QueryerContext, userID, month string) (int64, error) {
	var amount int64
	err := sqlx.GetContext(ctx, q, &amount,
		"SELECT amount FROM monthly_earnings WHERE user_id = $1 AND month = $2", userID, month)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return amount, nil
}

// FetchDueCommissionTasks returns pending tasks whose next attempt is due, oldest first
func (r *Repository) FetchDueCommissionTasks(ctx context.Context, now time.Time, limit int) ([]model.CommissionTask, error) {
	var tasks []model.CommissionTask
	err := r.db.SelectContext(ctx, &tasks, `
		SELECT * FROM commission_tasks
		WHERE status = 'pending' AND next_attempt_at <= $1
		ORDER BY next_attempt_at ASC
		LIMIT $2`,
		now, limit)
	return tasks, err
}

func (r *Repository) CompleteCommissionTask(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE commission_tasks SET status = 'done', completed_at = $2, last_error = NULL
		WHERE id = $1`,
		id, at)
	return err
}

func (r *Repository) FailCommissionTask(ctx context.Context, id uuid.UUID, errMsg string, nextAttemptAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE commission_tasks SET attempts = attempts + 1, last_error = $2, next_attempt_at = $3
		WHERE id = $1 AND status = 'pending'`,
		id, errMsg, nextAttemptAt)
	return err
}
