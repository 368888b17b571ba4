package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/loomperapp-jpg/loomper-backend/internal/events"
	"github.com/loomperapp-jpg/loomper-backend/internal/metrics"
	"github.com/loomperapp-jpg/loomper-backend/internal/model"
	"github.com/loomperapp-jpg/loomper-backend/internal/repository"
)

const DefaultCommissionRetryBackoff = time.Minute

// Aborts a ledger unit without writing anything.
var (
	errCapReached       = errors.New("monthly commission cap reached")
	errAlreadyFirstUsed = errors.New("first purchase already processed")
)

type ReferralService struct {
	store        repository.Store
	ledger       *LedgerService
	publisher    events.Publisher
	log          *zap.Logger
	retryBackoff time.Duration
	now          func() time.Time
}

func NewReferralService(store repository.Store, ledger *LedgerService, publisher events.Publisher, log *zap.Logger, retryBackoff time.Duration) *ReferralService {
	if retryBackoff <= 0 {
		retryBackoff = DefaultCommissionRetryBackoff
	}
	return &ReferralService{
		store:        store,
		ledger:       ledger,
		publisher:    publisher,
		log:          log,
		retryBackoff: retryBackoff,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// OnPurchase runs the first-purchase bonus and the commission walk for one purchase. Every write
// is keyed by payment id, so calling it again for the same payment only fills in what is missing.
func (s *ReferralService) OnPurchase(ctx context.Context, purchaserID, paymentID string, credits int64) error {
	purchaser, err := s.store.GetUser(ctx, purchaserID)
	if err != nil {
		return fmt.Errorf("load purchaser: %w", err)
	}
	if purchaser.ReferredBy == nil || *purchaser.ReferredBy == "" {
		return nil
	}

	if err := s.grantWelcomeBonus(ctx, purchaser, paymentID); err != nil {
		return err
	}
	return s.payCommissions(ctx, purchaser, paymentID, credits)
}

// grantWelcomeBonus flips the purchaser's first-purchase flag with +50, then pays the referrer +100.
// The referrer half runs only once the purchaser half exists for this payment.
func (s *ReferralService) grantWelcomeBonus(ctx context.Context, purchaser *model.User, paymentID string) error {
	referrerID := *purchaser.ReferredBy

	if purchaser.IsFirstPurchase {
		_, err := s.ledger.Mutate(ctx, purchaser.ID, func(u *repository.Unit) error {
			if !u.User.IsFirstPurchase {
				return errAlreadyFirstUsed
			}
			u.MarkFirstPurchaseDone()
			u.Apply(model.CreditTypePromotional, model.PurchaserWelcomeBonus)

			tx := model.ExpiringGrant(model.TransactionTypeWelcomeBonus, model.CreditTypePromotional, model.PurchaserWelcomeBonus, u.Now())
			key, pid := model.WelcomeBonusKey(paymentID), paymentID
			tx.IdempotencyKey = &key
			tx.PaymentID = &pid
			u.Append(tx)
			return nil
		})
		switch {
		case err == nil:
			s.log.Info("welcome bonus granted",
				zap.String("user_id", purchaser.ID),
				zap.String("payment_id", paymentID),
			)
			events.Emit(ctx, s.publisher, s.log, events.LedgerEvent{
				Type:       events.TypeWelcomeBonus,
				UserID:     purchaser.ID,
				Amount:     model.PurchaserWelcomeBonus,
				CreditType: string(model.CreditTypePromotional),
				PaymentID:  paymentID,
			})
		case errors.Is(err, errAlreadyFirstUsed), errors.Is(err, model.ErrDuplicate):
		default:
			return fmt.Errorf("welcome bonus for %s: %w", purchaser.ID, err)
		}
	}

	granted, err := s.store.HasTransactionKey(ctx, purchaser.ID, model.WelcomeBonusKey(paymentID))
	if err != nil {
		return fmt.Errorf("check welcome bonus: %w", err)
	}
	if !granted {
		return nil
	}

	_, err = s.ledger.Mutate(ctx, referrerID, func(u *repository.Unit) error {
		u.Apply(model.CreditTypePromotional, model.ReferrerWelcomeBonus)

		tx := model.ExpiringGrant(model.TransactionTypeReferralBonus, model.CreditTypePromotional, model.ReferrerWelcomeBonus, u.Now())
		key, pid, referred := model.ReferrerWelcomeKey(paymentID), paymentID, purchaser.ID
		tx.IdempotencyKey = &key
		tx.PaymentID = &pid
		tx.ReferredUserID = &referred
		u.Append(tx)
		return nil
	})
	switch {
	case err == nil:
		s.log.Info("referral bonus granted",
			zap.String("user_id", referrerID),
			zap.String("referred_user_id", purchaser.ID),
			zap.String("payment_id", paymentID),
		)
		events.Emit(ctx, s.publisher, s.log, events.LedgerEvent{
			Type:       events.TypeWelcomeBonus,
			UserID:     referrerID,
			Amount:     model.ReferrerWelcomeBonus,
			CreditType: string(model.CreditTypePromotional),
			PaymentID:  paymentID,
		})
	case errors.Is(err, model.ErrDuplicate):
	case errors.Is(err, model.ErrNotFound):
		s.log.Warn("referrer not found, skipping referral bonus",
			zap.String("user_id", referrerID),
			zap.String("referred_user_id", purchaser.ID),
		)
	default:
		return fmt.Errorf("referral bonus for %s: %w", referrerID, err)
	}
	return nil
}

// payCommissions walks at most MaxCommissionLevel referrers up from the purchaser. A zero bonus
// ends the walk; a referrer at their monthly cap is skipped and the walk continues above them.
func (s *ReferralService) payCommissions(ctx context.Context, purchaser *model.User, paymentID string, credits int64) error {
	visited := map[string]bool{purchaser.ID: true}
	current := *purchaser.ReferredBy

	for level := 1; level <= model.MaxCommissionLevel && current != ""; level++ {
		if visited[current] {
			s.log.Error("referral cycle detected",
				zap.String("user_id", current),
				zap.String("payment_id", paymentID),
				zap.Int("level", level),
			)
			return fmt.Errorf("user %s at level %d: %w", current, level, model.ErrReferralCycle)
		}
		visited[current] = true

		bonus := model.CommissionFor(level, credits)
		if bonus == 0 {
			metrics.CommissionPayoutsTotal.WithLabelValues(strconv.Itoa(level), "zero").Inc()
			return nil
		}

		next, err := s.payLevel(ctx, current, purchaser.ID, paymentID, level, bonus)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				s.log.Warn("referrer not found, stopping commission chain",
					zap.String("user_id", current),
					zap.String("payment_id", paymentID),
					zap.Int("level", level),
				)
				return nil
			}
			metrics.CommissionPayoutsTotal.WithLabelValues(strconv.Itoa(level), "error").Inc()
			s.log.Error("commission level failed",
				zap.String("user_id", current),
				zap.String("payment_id", paymentID),
				zap.Int("level", level),
				zap.Error(err),
			)
			return fmt.Errorf("commission level %d for %s: %w", level, current, err)
		}
		current = next
	}
	return nil
}

// payLevel credits one referrer and returns that referrer's own referrer.
func (s *ReferralService) payLevel(ctx context.Context, referrerID, purchaserID, paymentID string, level int, bonus int64) (string, error) {
	var (
		next   string
		payout int64
	)
	_, err := s.ledger.Mutate(ctx, referrerID, func(u *repository.Unit) error {
		next, payout = "", 0
		if u.User.ReferredBy != nil {
			next = *u.User.ReferredBy
		}

		month := model.MonthKey(u.Now())
		limit := model.MonthlyCap(u.User.ActiveReferralCount)
		earned, err := u.MonthlyEarned(month)
		if err != nil {
			return err
		}
		if earned >= limit {
			return errCapReached
		}

		payout = bonus
		if remaining := limit - earned; payout > remaining {
			payout = remaining
		}
		u.Apply(model.CreditTypePromotional, payout)
		u.AddMonthlyEarned(month, payout)

		tx := model.ExpiringGrant(model.CommissionTransactionType(level), model.CreditTypePromotional, payout, u.Now())
		lvl, key, pid, referred := level, model.CommissionKey(paymentID, level), paymentID, purchaserID
		tx.Level = &lvl
		tx.IdempotencyKey = &key
		tx.PaymentID = &pid
		tx.ReferredUserID = &referred
		u.Append(tx)
		return nil
	})

	levelLabel := strconv.Itoa(level)
	switch {
	case err == nil:
		metrics.CommissionPayoutsTotal.WithLabelValues(levelLabel, "paid").Inc()
		metrics.CommissionCreditsTotal.Add(float64(payout))
		s.log.Info("commission paid",
			zap.String("user_id", referrerID),
			zap.String("payment_id", paymentID),
			zap.Int("level", level),
			zap.Int64("amount", payout),
		)
		events.Emit(ctx, s.publisher, s.log, events.LedgerEvent{
			Type:       events.TypeCommissionPaid,
			UserID:     referrerID,
			Amount:     payout,
			CreditType: string(model.CreditTypePromotional),
			PaymentID:  paymentID,
			Level:      level,
		})
		return next, nil
	case errors.Is(err, errCapReached):
		metrics.CommissionPayoutsTotal.WithLabelValues(levelLabel, "capped").Inc()
		s.log.Info("monthly commission cap reached",
			zap.String("user_id", referrerID),
			zap.String("payment_id", paymentID),
			zap.Int("level", level),
		)
		return next, nil
	case errors.Is(err, model.ErrDuplicate):
		metrics.CommissionPayoutsTotal.WithLabelValues(levelLabel, "duplicate").Inc()
		return next, nil
	}
	return "", err
}

// ProcessTask runs OnPurchase for a queued task and records the outcome on it.
func (s *ReferralService) ProcessTask(ctx context.Context, task model.CommissionTask) error {
	err := s.OnPurchase(ctx, task.PurchaserID, task.PaymentID, task.Credits)
	if err == nil || errors.Is(err, model.ErrReferralCycle) {
		if cerr := s.store.CompleteCommissionTask(ctx, task.ID, s.now()); cerr != nil {
			return fmt.Errorf("complete commission task %s: %w", task.ID, cerr)
		}
		return err
	}

	next := s.now().Add(time.Duration(task.Attempts+1) * s.retryBackoff)
	if ferr := s.store.FailCommissionTask(ctx, task.ID, err.Error(), next); ferr != nil {
		s.log.Error("record commission task failure",
			zap.String("task_id", task.ID.String()),
			zap.Error(ferr),
		)
	}
	return err
}

// ProcessDueTasks drains up to limit pending tasks whose retry time has come.
func (s *ReferralService) ProcessDueTasks(ctx context.Context, limit int) (model.SweepReport, error) {
	var report model.SweepReport

	tasks, err := s.store.FetchDueCommissionTasks(ctx, s.now(), limit)
	if err != nil {
		return report, fmt.Errorf("fetch commission tasks: %w", err)
	}

	for _, task := range tasks {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		report.Scanned++
		if err := s.ProcessTask(ctx, task); err != nil && !errors.Is(err, model.ErrReferralCycle) {
			report.Failed++
			s.log.Warn("commission task failed",
				zap.String("task_id", task.ID.String()),
				zap.String("payment_id", task.PaymentID),
				zap.Int("attempts", task.Attempts+1),
				zap.Error(err),
			)
			continue
		}
		report.Processed++
	}
	return report, nil
}
