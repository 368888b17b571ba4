package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/loomperapp-jpg/loomper-backend/internal/config"
	"github.com/loomperapp-jpg/loomper-backend/internal/events"
	"github.com/loomperapp-jpg/loomper-backend/internal/metrics"
	"github.com/loomperapp-jpg/loomper-backend/internal/model"
	"github.com/loomperapp-jpg/loomper-backend/internal/repository"
)

// PaymentGateway fetches payment details from the provider.
type PaymentGateway interface {
	GetPayment(ctx context.Context, paymentID string) (*model.GatewayPayment, error)
}

type CreditRequest struct {
	PaymentID     string
	UserID        string
	PackageID     string
	Credits       int64
	AmountPaid    float64
	Currency      string
	PaymentMethod string
}

type CreditOutcome string

const (
	CreditOutcomeCredited        CreditOutcome = "credited"
	CreditOutcomeAlreadyCredited CreditOutcome = "already_credited"
)

// Notification is the provider webhook body reduced to what classification needs.
type Notification struct {
	Type      string
	Action    string
	PaymentID string
}

// IsPaymentEvent mirrors the provider's event naming: either type "payment" or a payment.* action.
func (n Notification) IsPaymentEvent() bool {
	return n.Type == "payment" || n.Action == "payment.created" || n.Action == "payment.updated"
}

type NotificationResult string

const (
	NotificationIgnored         NotificationResult = "ignored"
	NotificationNotApproved     NotificationResult = "not_approved"
	NotificationCredited        NotificationResult = "credited"
	NotificationAlreadyCredited NotificationResult = "already_credited"
)

type PaymentService struct {
	store       repository.Store
	ledger      *LedgerService
	referralSvc *ReferralService
	gateway     PaymentGateway
	catalog     *config.PackageCatalog
	publisher   events.Publisher
	log         *zap.Logger
}

func NewPaymentService(
	store repository.Store,
	ledger *LedgerService,
	referralSvc *ReferralService,
	gateway PaymentGateway,
	catalog *config.PackageCatalog,
	publisher events.Publisher,
	log *zap.Logger,
) *PaymentService {
	return &PaymentService{
		store:       store,
		ledger:      ledger,
		referralSvc: referralSvc,
		gateway:     gateway,
		catalog:     catalog,
		publisher:   publisher,
		log:         log,
	}
}

// HandleNotification classifies a webhook delivery, fetches the payment and credits it when approved.
// Only failures before any mutation are returned as errors.
func (s *PaymentService) HandleNotification(ctx context.Context, n Notification) (NotificationResult, error) {
	if !n.IsPaymentEvent() {
		metrics.PaymentsTotal.WithLabelValues("ignored").Inc()
		return NotificationIgnored, nil
	}
	if n.PaymentID == "" {
		return "", fmt.Errorf("payment id missing: %w", model.ErrValidation)
	}

	payment, err := s.gateway.GetPayment(ctx, n.PaymentID)
	if err != nil {
		metrics.PaymentsTotal.WithLabelValues("upstream_error").Inc()
		if errors.Is(err, model.ErrUpstream) {
			return "", err
		}
		return "", fmt.Errorf("fetch payment %s: %v: %w", n.PaymentID, err, model.ErrUpstream)
	}

	if payment.Status != model.GatewayStatusApproved {
		s.log.Info("payment not approved yet",
			zap.String("payment_id", n.PaymentID),
			zap.String("status", payment.Status),
		)
		metrics.PaymentsTotal.WithLabelValues("not_approved").Inc()
		return NotificationNotApproved, nil
	}

	userID := payment.Metadata.UserID
	if userID == "" {
		userID = payment.ExternalReference
	}
	if userID == "" {
		return "", fmt.Errorf("payment %s: user id missing: %w", n.PaymentID, model.ErrValidation)
	}

	outcome, err := s.Credit(ctx, CreditRequest{
		PaymentID:     n.PaymentID,
		UserID:        userID,
		PackageID:     payment.Metadata.PackageID,
		Credits:       payment.Metadata.Credits,
		AmountPaid:    payment.TransactionAmount,
		Currency:      payment.CurrencyID,
		PaymentMethod: payment.PaymentMethodID,
	})
	if err != nil {
		return "", err
	}
	if outcome == CreditOutcomeAlreadyCredited {
		return NotificationAlreadyCredited, nil
	}
	return NotificationCredited, nil
}

func (r CreditRequest) validate() error {
	switch {
	case r.PaymentID == "":
		return fmt.Errorf("payment id missing: %w", model.ErrValidation)
	case r.UserID == "":
		return fmt.Errorf("user id missing: %w", model.ErrValidation)
	case r.PackageID == "":
		return fmt.Errorf("package id missing: %w", model.ErrValidation)
	case r.Credits <= 0:
		return fmt.Errorf("credits must be positive, got %d: %w", r.Credits, model.ErrValidation)
	case r.Credits > model.MaxPurchaseCredits:
		return fmt.Errorf("credits %d exceed the per-payment limit of %d: %w", r.Credits, model.MaxPurchaseCredits, model.ErrValidation)
	}
	return nil
}

// Credit applies an approved payment exactly once. The purchase record, the paid credit and the
// commission task commit together; a payment id seen before yields CreditOutcomeAlreadyCredited.
func (s *PaymentService) Credit(ctx context.Context, req CreditRequest) (CreditOutcome, error) {
	if err := req.validate(); err != nil {
		metrics.PaymentsTotal.WithLabelValues("rejected").Inc()
		return "", err
	}
	if s.catalog != nil {
		if _, ok := s.catalog.Get(req.PackageID); !ok {
			metrics.PaymentsTotal.WithLabelValues("rejected").Inc()
			return "", fmt.Errorf("package %s: %w", req.PackageID, model.ErrNotFound)
		}
	}

	if _, err := s.store.GetPurchase(ctx, req.PaymentID); err == nil {
		metrics.PaymentsTotal.WithLabelValues("duplicate").Inc()
		return CreditOutcomeAlreadyCredited, nil
	} else if !errors.Is(err, model.ErrNotFound) {
		return "", err
	}

	var task *model.CommissionTask
	_, err := s.ledger.Mutate(ctx, req.UserID, func(u *repository.Unit) error {
		task = nil
		u.RecordPurchase(&model.Purchase{
			PaymentID:     req.PaymentID,
			PackageID:     req.PackageID,
			Credits:       req.Credits,
			AmountPaid:    req.AmountPaid,
			Currency:      req.Currency,
			PaymentMethod: req.PaymentMethod,
		})
		u.Apply(model.CreditTypePaid, req.Credits)

		paymentID, packageID, key := req.PaymentID, req.PackageID, model.PurchaseKey(req.PaymentID)
		u.Append(&model.CreditTransaction{
			Type:           model.TransactionTypePurchase,
			Amount:         req.Credits,
			CreditType:     model.CreditTypePaid,
			PaymentID:      &paymentID,
			PackageID:      &packageID,
			IdempotencyKey: &key,
		})

		if u.User.ReferredBy != nil {
			task = &model.CommissionTask{
				PaymentID:   req.PaymentID,
				PurchaserID: req.UserID,
				Credits:     req.Credits,
			}
			u.EnqueueCommission(task)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, model.ErrDuplicate) {
			metrics.PaymentsTotal.WithLabelValues("duplicate").Inc()
			return CreditOutcomeAlreadyCredited, nil
		}
		if errors.Is(err, model.ErrNotFound) {
			metrics.PaymentsTotal.WithLabelValues("rejected").Inc()
			return "", fmt.Errorf("user %s: %w", req.UserID, model.ErrNotFound)
		}
		metrics.PaymentsTotal.WithLabelValues("error").Inc()
		return "", err
	}

	metrics.PaymentsTotal.WithLabelValues("credited").Inc()
	s.log.Info("credits purchased",
		zap.String("user_id", req.UserID),
		zap.String("payment_id", req.PaymentID),
		zap.Int64("credits", req.Credits),
	)
	events.Emit(ctx, s.publisher, s.log, events.LedgerEvent{
		Type:       events.TypeCreditsPurchased,
		UserID:     req.UserID,
		Amount:     req.Credits,
		CreditType: string(model.CreditTypePaid),
		PaymentID:  req.PaymentID,
	})

	// Commission never undoes the credit; a failed task stays pending for the worker.
	if task != nil && s.referralSvc != nil {
		if err := s.referralSvc.ProcessTask(ctx, *task); err != nil {
			s.log.Warn("referral processing deferred",
				zap.String("payment_id", req.PaymentID),
				zap.Error(err),
			)
		}
	}

	return CreditOutcomeCredited, nil
}
