package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/loomperapp-jpg/loomper-backend/internal/model"
	"github.com/loomperapp-jpg/loomper-backend/internal/repository"
)

type UserService struct {
	store repository.Store
	log   *zap.Logger
}

func NewUserService(store repository.Store, log *zap.Logger) *UserService {
	return &UserService{store: store, log: log}
}

// CreateUser registers a user with an all-zero wallet. The referrer, if any, must already exist.
func (s *UserService) CreateUser(ctx context.Context, req model.CreateUserRequest) (*model.User, error) {
	id := strings.TrimSpace(req.ID)
	if id == "" {
		return nil, fmt.Errorf("user id missing: %w", model.ErrValidation)
	}

	user := &model.User{
		ID:          id,
		Email:       strings.TrimSpace(req.Email),
		DisplayName: strings.TrimSpace(req.DisplayName),
	}

	if req.ReferredBy != nil && strings.TrimSpace(*req.ReferredBy) != "" {
		referrerID := strings.TrimSpace(*req.ReferredBy)
		if referrerID == id {
			return nil, fmt.Errorf("user cannot refer themselves: %w", model.ErrValidation)
		}
		if _, err := s.store.GetUser(ctx, referrerID); err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return nil, fmt.Errorf("referrer %s: %w", referrerID, model.ErrValidation)
			}
			return nil, err
		}
		user.ReferredBy = &referrerID
	}

	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.log.Info("user created",
		zap.String("user_id", user.ID),
		zap.Bool("referred", user.ReferredBy != nil),
	)
	return user, nil
}

func (s *UserService) GetUser(ctx context.Context, id string) (*model.User, error) {
	return s.store.GetUser(ctx, id)
}

func (s *UserService) SetActiveReferralCount(ctx context.Context, userID string, count int) error {
	if count < 0 {
		return fmt.Errorf("active referral count must not be negative: %w", model.ErrValidation)
	}
	return s.store.SetActiveReferralCount(ctx, userID, count)
}
