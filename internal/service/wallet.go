package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/loomperapp-jpg/loomper-backend/internal/model"
	"github.com/loomperapp-jpg/loomper-backend/internal/repository"
)

const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
)

// usageOrder is the order in which service usage draws down credit categories.
var usageOrder = []model.CreditType{
	model.CreditTypeCampaign,
	model.CreditTypePromotional,
	model.CreditTypePaid,
}

type UsageRequest struct {
	Amount      int64   `json:"amount" validate:"required,gt=0"`
	Description string  `json:"description" validate:"max=500"`
	Reference   *string `json:"reference,omitempty" validate:"omitempty,max=128"`
}

type WalletService struct {
	store  repository.Store
	ledger *LedgerService
	log    *zap.Logger
}

func NewWalletService(store repository.Store, ledger *LedgerService, log *zap.Logger) *WalletService {
	return &WalletService{store: store, ledger: ledger, log: log}
}

func (s *WalletService) GetBalance(ctx context.Context, userID string) (*model.Wallet, error) {
	return s.store.GetWallet(ctx, userID)
}

// GetTransactions returns history newest first. limit is clamped to 1..MaxHistoryLimit.
func (s *WalletService) GetTransactions(ctx context.Context, userID string, limit, offset int) ([]model.CreditTransaction, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.store.GetTransactions(ctx, userID, limit, offset)
}

// RecordUsage spends amount credits, campaign first, then promotional, then paid. Unlike the
// ledger clamp it refuses to overdraw: without enough credits nothing is written.
func (s *WalletService) RecordUsage(ctx context.Context, userID string, req UsageRequest) (*model.Wallet, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("usage amount must be positive: %w", model.ErrValidation)
	}

	wallet, err := s.ledger.Mutate(ctx, userID, func(u *repository.Unit) error {
		if total := u.Wallet.Total(); total < req.Amount {
			return fmt.Errorf("need %d credits, have %d: %w", req.Amount, total, model.ErrInsufficientCredits)
		}

		remaining := req.Amount
		for _, ct := range usageOrder {
			if remaining == 0 {
				break
			}
			take := u.Wallet.Balance(ct)
			if take == 0 {
				continue
			}
			if take > remaining {
				take = remaining
			}
			u.Apply(ct, -take)
			remaining -= take

			tx := &model.CreditTransaction{
				Type:       model.TransactionTypeServiceUsage,
				Amount:     take,
				CreditType: ct,
			}
			if req.Description != "" {
				desc := req.Description
				tx.Description = &desc
			}
			if req.Reference != nil && *req.Reference != "" {
				key := "usage:" + *req.Reference + ":" + string(ct)
				tx.IdempotencyKey = &key
			}
			u.Append(tx)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("service usage recorded",
		zap.String("user_id", userID),
		zap.Int64("amount", req.Amount),
	)
	return wallet, nil
}
