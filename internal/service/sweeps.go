package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/loomperapp-jpg/loomper-backend/internal/cache"
	"github.com/loomperapp-jpg/loomper-backend/internal/model"
)

var ErrSweepInProgress = errors.New("sweep already running")

const (
	lockExpirySweep  = "sweep:expiry"
	lockRenewalSweep = "sweep:renewal"
	lockCommissions  = "sweep:commissions"
)

// SweepRunner runs each batch job under a named lock so replicas and manual triggers do not overlap.
type SweepRunner struct {
	expirySvc       *ExpiryService
	campaignSvc     *CampaignService
	referralSvc     *ReferralService
	locker          cache.Locker
	lockTTL         time.Duration
	commissionBatch int
	log             *zap.Logger
	now             func() time.Time
}

func NewSweepRunner(
	expirySvc *ExpiryService,
	campaignSvc *CampaignService,
	referralSvc *ReferralService,
	locker cache.Locker,
	lockTTL time.Duration,
	commissionBatch int,
	log *zap.Logger,
) *SweepRunner {
	if lockTTL <= 0 {
		lockTTL = 30 * time.Minute
	}
	if commissionBatch <= 0 {
		commissionBatch = 50
	}
	return &SweepRunner{
		expirySvc:       expirySvc,
		campaignSvc:     campaignSvc,
		referralSvc:     referralSvc,
		locker:          locker,
		lockTTL:         lockTTL,
		commissionBatch: commissionBatch,
		log:             log,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

func (r *SweepRunner) RunExpiry(ctx context.Context) (model.SweepReport, error) {
	return r.locked(ctx, lockExpirySweep, func(ctx context.Context) (model.SweepReport, error) {
		return r.expirySvc.RunExpirySweep(ctx, r.now())
	})
}

func (r *SweepRunner) RunRenewal(ctx context.Context) (model.SweepReport, error) {
	return r.locked(ctx, lockRenewalSweep, func(ctx context.Context) (model.SweepReport, error) {
		return r.campaignSvc.RunRenewalSweep(ctx, r.now())
	})
}

func (r *SweepRunner) RunCommissions(ctx context.Context) (model.SweepReport, error) {
	return r.locked(ctx, lockCommissions, func(ctx context.Context) (model.SweepReport, error) {
		return r.referralSvc.ProcessDueTasks(ctx, r.commissionBatch)
	})
}

func (r *SweepRunner) locked(ctx context.Context, name string, run func(context.Context) (model.SweepReport, error)) (model.SweepReport, error) {
	release, ok, err := r.locker.TryLock(ctx, name, r.lockTTL)
	if err != nil {
		return model.SweepReport{}, fmt.Errorf("lock %s: %w", name, err)
	}
	if !ok {
		return model.SweepReport{}, ErrSweepInProgress
	}
	defer release()
	return run(ctx)
}

// CommissionWorker retries pending commission tasks on a fixed interval.
type CommissionWorker struct {
	runner   *SweepRunner
	interval time.Duration
	log      *zap.Logger
}

func NewCommissionWorker(runner *SweepRunner, interval time.Duration, log *zap.Logger) *CommissionWorker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &CommissionWorker{runner: runner, interval: interval, log: log}
}

// Start blocks until ctx is cancelled.
func (w *CommissionWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.log.Info("commission worker started", zap.Duration("interval", w.interval))

	for {
		select {
		case <-ctx.Done():
			w.log.Info("commission worker stopped")
			return
		case <-ticker.C:
			report, err := w.runner.RunCommissions(ctx)
			if err != nil {
				if !errors.Is(err, ErrSweepInProgress) && !errors.Is(err, context.Canceled) {
					w.log.Error("commission tasks", zap.Error(err))
				}
				continue
			}
			if report.Scanned > 0 {
				w.log.Info("commission tasks processed",
					zap.Int("processed", report.Processed),
					zap.Int("failed", report.Failed),
				)
			}
		}
	}
}

// SweepScheduler triggers the expiry and renewal sweeps on their own intervals.
type SweepScheduler struct {
	runner          *SweepRunner
	expiryInterval  time.Duration
	renewalInterval time.Duration
	log             *zap.Logger
}

func NewSweepScheduler(runner *SweepRunner, expiryInterval, renewalInterval time.Duration, log *zap.Logger) *SweepScheduler {
	if expiryInterval <= 0 {
		expiryInterval = 24 * time.Hour
	}
	if renewalInterval <= 0 {
		renewalInterval = 24 * time.Hour
	}
	return &SweepScheduler{
		runner:          runner,
		expiryInterval:  expiryInterval,
		renewalInterval: renewalInterval,
		log:             log,
	}
}

func (s *SweepScheduler) Start(ctx context.Context) {
	expiry := time.NewTicker(s.expiryInterval)
	defer expiry.Stop()
	renewal := time.NewTicker(s.renewalInterval)
	defer renewal.Stop()

	s.log.Info("sweep scheduler started",
		zap.Duration("expiry_interval", s.expiryInterval),
		zap.Duration("renewal_interval", s.renewalInterval),
	)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("sweep scheduler stopped")
			return
		case <-expiry.C:
			s.run(ctx, "expiry", s.runner.RunExpiry)
		case <-renewal.C:
			s.run(ctx, "renewal", s.runner.RunRenewal)
		}
	}
}

func (s *SweepScheduler) run(ctx context.Context, name string, fn func(context.Context) (model.SweepReport, error)) {
	if _, err := fn(ctx); err != nil {
		if errors.Is(err, ErrSweepInProgress) {
			s.log.Info("sweep skipped, another run holds the lock", zap.String("sweep", name))
			return
		}
		s.log.Error("sweep failed", zap.String("sweep", name), zap.Error(err))
	}
}
