package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/loomperapp-jpg/loomper-backend/internal/metrics"
	"github.com/loomperapp-jpg/loomper-backend/internal/model"
	"github.com/loomperapp-jpg/loomper-backend/internal/repository"
)

const (
	DefaultLedgerMaxRetries = 10
	ledgerRetryBaseDelay    = 5 * time.Millisecond
)

// LedgerService is the only writer of wallet balances. Every change is one per-user atomic
// unit; optimistic conflicts are retried here and never reach callers unless retries run out.
type LedgerService struct {
	store      repository.Store
	log        *zap.Logger
	maxRetries int
	baseDelay  time.Duration
}

func NewLedgerService(store repository.Store, log *zap.Logger, maxRetries int) *LedgerService {
	if maxRetries <= 0 {
		maxRetries = DefaultLedgerMaxRetries
	}
	return &LedgerService{
		store:      store,
		log:        log,
		maxRetries: maxRetries,
		baseDelay:  ledgerRetryBaseDelay,
	}
}

// Apply adds delta to one credit category (clamped at zero) and appends tx in the same unit.
func (s *LedgerService) Apply(ctx context.Context, userID string, ct model.CreditType, delta int64, tx *model.CreditTransaction) (*model.Wallet, error) {
	if !ct.Valid() {
		return nil, fmt.Errorf("credit type %q: %w", ct, model.ErrValidation)
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction record required: %w", model.ErrValidation)
	}
	if tx.Amount < 0 {
		return nil, fmt.Errorf("transaction amount must not be negative: %w", model.ErrValidation)
	}

	return s.Mutate(ctx, userID, func(u *repository.Unit) error {
		record := *tx
		record.CreditType = ct
		u.Apply(ct, delta)
		u.Append(&record)
		return nil
	})
}

// Mutate runs fn as one atomic unit on userID. fn may run more than once and must build its
// writes from the unit's snapshot only. Errors returned by fn abort the unit and are passed through.
func (s *LedgerService) Mutate(ctx context.Context, userID string, fn func(*repository.Unit) error) (*model.Wallet, error) {
	var last *repository.Unit
	wrapped := func(u *repository.Unit) error {
		last = u
		return fn(u)
	}

	for attempt := 1; ; attempt++ {
		wallet, err := s.store.UpdateLedger(ctx, userID, wrapped)
		if err == nil {
			metrics.LedgerMutationsTotal.WithLabelValues("committed").Inc()
			s.reportClamps(userID, last)
			return wallet, nil
		}
		if !errors.Is(err, model.ErrConflict) {
			if errors.Is(err, model.ErrDuplicate) {
				metrics.LedgerMutationsTotal.WithLabelValues("duplicate").Inc()
			} else {
				metrics.LedgerMutationsTotal.WithLabelValues("aborted").Inc()
			}
			return nil, err
		}
		if attempt >= s.maxRetries {
			metrics.LedgerMutationsTotal.WithLabelValues("conflict").Inc()
			return nil, fmt.Errorf("ledger update for %s gave up after %d attempts: %w", userID, attempt, err)
		}

		metrics.LedgerConflictRetriesTotal.Inc()
		if err := s.backoff(ctx, attempt); err != nil {
			return nil, err
		}
	}
}

func (s *LedgerService) backoff(ctx context.Context, attempt int) error {
	delay := s.baseDelay * time.Duration(attempt)
	if s.baseDelay > 0 {
		delay += time.Duration(rand.Int63n(int64(s.baseDelay)))
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *LedgerService) reportClamps(userID string, u *repository.Unit) {
	if u == nil {
		return
	}
	for _, c := range u.Clamps() {
		metrics.ClampedDebitsTotal.WithLabelValues(string(c.CreditType)).Inc()
		s.log.Warn("debit clamped at zero balance",
			zap.String("user_id", userID),
			zap.String("credit_type", string(c.CreditType)),
			zap.Int64("requested", c.Requested),
			zap.Int64("shortfall", c.Shortfall),
		)
	}
}
