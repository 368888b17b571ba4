package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/loomperapp-jpg/loomper-backend/internal/model"
)

func (r *Repository) GetPurchase(ctx context.Context, paymentID string) (*model.Purchase, error) {
	var purchase model.Purchase
	err := r.db.GetContext(ctx, &purchase, "SELECT * FROM purchases WHERE payment_id = $1", paymentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPurchaseNotFound
		}
		return nil, err
	}
	return &purchase, nil
}
