package events

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// Event types emitted after ledger units commit.
const (
	TypeCreditsPurchased   = "ledger.credits_purchased"
	TypeCommissionPaid     = "ledger.commission_paid"
	TypeWelcomeBonus       = "ledger.welcome_bonus"
	TypePromotionalExpired = "ledger.promotional_expired"
	TypeCampaignRenewed    = "ledger.campaign_renewed"
)

type LedgerEvent struct {
	Type       string    `json:"type"`
	UserID     string    `json:"user_id"`
	Amount     int64     `json:"amount"`
	CreditType string    `json:"credit_type"`
	PaymentID  string    `json:"payment_id,omitempty"`
	Level      int       `json:"level,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher delivers ledger events. Delivery is best effort: the ledger is the source of truth.
type Publisher interface {
	Publish(ctx context.Context, eventType string, payload []byte, partitionKey string) error
	Close() error
}

// Emit serializes ev and publishes it keyed by user, logging instead of failing.
func Emit(ctx context.Context, p Publisher, log *zap.Logger, ev LedgerEvent) {
	if p == nil {
		return
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Warn("marshal ledger event", zap.String("type", ev.Type), zap.Error(err))
		return
	}
	if err := p.Publish(ctx, ev.Type, payload, ev.UserID); err != nil {
		log.Warn("publish ledger event",
			zap.String("type", ev.Type),
			zap.String("user_id", ev.UserID),
			zap.Error(err),
		)
	}
}

// LogPublisher writes events to the log. Used when no brokers are configured.
type LogPublisher struct {
	log *zap.Logger
}

func NewLogPublisher(log *zap.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(_ context.Context, eventType string, payload []byte, partitionKey string) error {
	p.log.Debug("ledger event",
		zap.String("type", eventType),
		zap.String("key", partitionKey),
		zap.ByteString("payload", payload),
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }
