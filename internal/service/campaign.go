package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/loomperapp-jpg/loomper-backend/internal/events"
	"github.com/loomperapp-jpg/loomper-backend/internal/metrics"
	"github.com/loomperapp-jpg/loomper-backend/internal/model"
	"github.com/loomperapp-jpg/loomper-backend/internal/repository"
)

// CampaignRenewalAmounts is the monthly campaign credit per membership tier.
var CampaignRenewalAmounts = map[model.CampaignTier]int64{
	model.CampaignTierFounder:      1500,
	model.CampaignTierPioneer:      1000,
	model.CampaignTierEarlyAdopter: 1000,
}

type CampaignService struct {
	store     repository.Store
	ledger    *LedgerService
	publisher events.Publisher
	log       *zap.Logger
	batchSize int
}

func NewCampaignService(store repository.Store, ledger *LedgerService, publisher events.Publisher, log *zap.Logger, batchSize int) *CampaignService {
	if batchSize <= 0 {
		batchSize = DefaultSweepBatchSize
	}
	return &CampaignService{
		store:     store,
		ledger:    ledger,
		publisher: publisher,
		log:       log,
		batchSize: batchSize,
	}
}

// Enroll starts (or replaces) a user's campaign membership.
func (s *CampaignService) Enroll(ctx context.Context, userID string, e model.CampaignEnrollment) (*model.User, error) {
	if _, ok := CampaignRenewalAmounts[e.Tier]; !ok {
		return nil, fmt.Errorf("campaign tier %q: %w", e.Tier, model.ErrValidation)
	}
	if !e.EndDate.After(e.StartDate) {
		return nil, fmt.Errorf("campaign end must be after start: %w", model.ErrValidation)
	}

	var user model.User
	_, err := s.ledger.Mutate(ctx, userID, func(u *repository.Unit) error {
		u.EnrollCampaign(e)
		user = u.User
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// previousMonthWindow returns [first day of previous month, first day of this month) in UTC.
func previousMonthWindow(now time.Time) (time.Time, time.Time) {
	now = now.UTC()
	end := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return end.AddDate(0, -1, 0), end
}

// RunRenewalSweep credits monthly campaign credit to active members who used the service last month.
// Renewals are keyed by the month of now, so repeated runs within a month credit nobody twice.
func (s *CampaignService) RunRenewalSweep(ctx context.Context, now time.Time) (model.SweepReport, error) {
	start := time.Now()
	defer func() { metrics.SweepDuration.WithLabelValues("renewal").Observe(time.Since(start).Seconds()) }()

	var report model.SweepReport
	after := ""
	for {
		users, err := s.store.ListActiveCampaignUsers(ctx, after, s.batchSize)
		if err != nil {
			return report, fmt.Errorf("list campaign members: %w", err)
		}
		if len(users) == 0 {
			break
		}

		for i := range users {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			after = users[i].ID
			report.Scanned++

			outcome, err := s.renew(ctx, &users[i], now)
			switch {
			case err != nil:
				report.Failed++
				metrics.SweepItemsTotal.WithLabelValues("renewal", "failed").Inc()
				s.log.Error("campaign renewal",
					zap.String("user_id", users[i].ID),
					zap.Error(err),
				)
			case outcome == "renewed":
				report.Processed++
				metrics.SweepItemsTotal.WithLabelValues("renewal", outcome).Inc()
			default:
				report.Skipped++
				metrics.SweepItemsTotal.WithLabelValues("renewal", outcome).Inc()
			}
		}

		if len(users) < s.batchSize {
			break
		}
	}

	s.log.Info("renewal sweep finished",
		zap.Int("scanned", report.Scanned),
		zap.Int("renewed", report.Processed),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

func (s *CampaignService) renew(ctx context.Context, user *model.User, now time.Time) (string, error) {
	if user.CampaignEnded(now) {
		_, err := s.ledger.Mutate(ctx, user.ID, func(u *repository.Unit) error {
			u.SetCampaignStatus(model.CampaignStatusExpired)
			return nil
		})
		if err != nil {
			return "", fmt.Errorf("expire membership: %w", err)
		}
		s.log.Info("campaign membership expired", zap.String("user_id", user.ID))
		return "expired", nil
	}

	from, to := previousMonthWindow(now)
	used, err := s.store.HasTransactionBetween(ctx, user.ID, model.TransactionTypeServiceUsage, from, to)
	if err != nil {
		return "", fmt.Errorf("check usage: %w", err)
	}
	if !used {
		return "no_usage", nil
	}

	if user.CampaignTier == nil {
		return "unknown_tier", nil
	}
	tier := *user.CampaignTier
	amount, ok := CampaignRenewalAmounts[tier]
	if !ok {
		s.log.Warn("unknown campaign tier", zap.String("user_id", user.ID), zap.String("tier", string(tier)))
		return "unknown_tier", nil
	}

	_, err = s.ledger.Mutate(ctx, user.ID, func(u *repository.Unit) error {
		u.Apply(model.CreditTypeCampaign, amount)

		tx := model.ExpiringGrant(model.TransactionTypeCampaignRenewal, model.CreditTypeCampaign, amount, u.Now())
		key, tierName := model.CampaignRenewalKey(model.MonthKey(now)), string(tier)
		tx.IdempotencyKey = &key
		tx.Tier = &tierName
		u.Append(tx)
		return nil
	})
	if errors.Is(err, model.ErrDuplicate) {
		return "already_renewed", nil
	}
	if err != nil {
		return "", err
	}

	s.log.Info("campaign credits renewed",
		zap.String("user_id", user.ID),
		zap.String("tier", string(tier)),
		zap.Int64("amount", amount),
	)
	events.Emit(ctx, s.publisher, s.log, events.LedgerEvent{
		Type:       events.TypeCampaignRenewed,
		UserID:     user.ID,
		Amount:     amount,
		CreditType: string(model.CreditTypeCampaign),
	})
	return "renewed", nil
}
