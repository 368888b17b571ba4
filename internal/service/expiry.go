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

const DefaultSweepBatchSize = 200

type ExpiryService struct {
	store     repository.Store
	ledger    *LedgerService
	publisher events.Publisher
	log       *zap.Logger
	batchSize int
}

func NewExpiryService(store repository.Store, ledger *LedgerService, publisher events.Publisher, log *zap.Logger, batchSize int) *ExpiryService {
	if batchSize <= 0 {
		batchSize = DefaultSweepBatchSize
	}
	return &ExpiryService{
		store:     store,
		ledger:    ledger,
		publisher: publisher,
		log:       log,
		batchSize: batchSize,
	}
}

// RunExpirySweep expires every completed promotional grant with expires_at <= now. Each grant is
// flipped and debited in one unit on its owner, so a second run finds nothing left to do.
func (s *ExpiryService) RunExpirySweep(ctx context.Context, now time.Time) (model.SweepReport, error) {
	start := time.Now()
	defer func() { metrics.SweepDuration.WithLabelValues("expiry").Observe(time.Since(start).Seconds()) }()

	var (
		report model.SweepReport
		cursor repository.ExpiryCursor
	)
	for {
		batch, err := s.store.ListExpiredPromotional(ctx, now, cursor, s.batchSize)
		if err != nil {
			return report, fmt.Errorf("list expired promotional credits: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		for _, tx := range batch {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			cursor = repository.ExpiryCursor{ExpiresAt: *tx.ExpiresAt, ID: tx.ID}
			report.Scanned++
			s.expire(ctx, tx, &report)
		}

		if len(batch) < s.batchSize {
			break
		}
	}

	s.log.Info("expiry sweep finished",
		zap.Int("scanned", report.Scanned),
		zap.Int("expired", report.Processed),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

func (s *ExpiryService) expire(ctx context.Context, tx model.CreditTransaction, report *model.SweepReport) {
	_, err := s.ledger.Mutate(ctx, tx.UserID, func(u *repository.Unit) error {
		u.Expire(tx)
		u.Apply(model.CreditTypePromotional, -tx.Amount)
		return nil
	})
	switch {
	case err == nil:
		report.Processed++
		metrics.SweepItemsTotal.WithLabelValues("expiry", "processed").Inc()
		events.Emit(ctx, s.publisher, s.log, events.LedgerEvent{
			Type:       events.TypePromotionalExpired,
			UserID:     tx.UserID,
			Amount:     tx.Amount,
			CreditType: string(model.CreditTypePromotional),
		})
	case errors.Is(err, model.ErrDuplicate):
		report.Skipped++
		metrics.SweepItemsTotal.WithLabelValues("expiry", "skipped").Inc()
	default:
		report.Failed++
		metrics.SweepItemsTotal.WithLabelValues("expiry", "failed").Inc()
		s.log.Error("expire promotional credit",
			zap.String("user_id", tx.UserID),
			zap.String("transaction_id", tx.ID.String()),
			zap.Error(err),
		)
	}
}
