package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type CreditType string

const (
	CreditTypePaid        CreditType = "paid"
	CreditTypePromotional CreditType = "promotional"
	CreditTypeCampaign    CreditType = "campaign"
)

func (c CreditType) Valid() bool {
	switch c {
	case CreditTypePaid, CreditTypePromotional, CreditTypeCampaign:
		return true
	}
	return false
}

type TransactionType string

const (
	TransactionTypePurchase        TransactionType = "purchase"
	TransactionTypeWelcomeBonus    TransactionType = "welcome_bonus"
	TransactionTypeReferralBonus   TransactionType = "referral_bonus"
	TransactionTypeCampaignRenewal TransactionType = "campaign_renewal"
	TransactionTypeCampaignExpiry  TransactionType = "campaign_expiry"
	TransactionTypeServiceUsage    TransactionType = "service_usage"
)

// CommissionTransactionType returns the mlm_level_N type for a commission level.
func CommissionTransactionType(level int) TransactionType {
	return TransactionType(fmt.Sprintf("mlm_level_%d", level))
}

type TransactionStatus string

const (
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusExpired   TransactionStatus = "expired"
)

// PromotionalCreditTTL is how long promotional and campaign grants stay spendable.
const PromotionalCreditTTL = 30 * 24 * time.Hour

type Wallet struct {
	UserID             string     `json:"user_id" db:"user_id"`
	PaidCredits        int64      `json:"paid_credits" db:"paid_credits"`
	PromotionalCredits int64      `json:"promotional_credits" db:"promotional_credits"`
	CampaignCredits    int64      `json:"campaign_credits" db:"campaign_credits"`
	LastPurchaseAt     *time.Time `json:"last_purchase_at,omitempty" db:"last_purchase_at"`
	Version            int64      `json:"-" db:"version"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at" db:"updated_at"`
}

func (w *Wallet) Balance(ct CreditType) int64 {
	switch ct {
	case CreditTypePaid:
		return w.PaidCredits
	case CreditTypePromotional:
		return w.PromotionalCredits
	case CreditTypeCampaign:
		return w.CampaignCredits
	}
	return 0
}

func (w *Wallet) SetBalance(ct CreditType, value int64) {
	switch ct {
	case CreditTypePaid:
		w.PaidCredits = value
	case CreditTypePromotional:
		w.PromotionalCredits = value
	case CreditTypeCampaign:
		w.CampaignCredits = value
	}
}

func (w *Wallet) Total() int64 {
	return w.PaidCredits + w.PromotionalCredits + w.CampaignCredits
}

type CreditTransaction struct {
	ID             uuid.UUID         `json:"id" db:"id"`
	UserID         string            `json:"user_id" db:"user_id"`
	Type           TransactionType   `json:"type" db:"type"`
	Amount         int64             `json:"amount" db:"amount"`
	CreditType     CreditType        `json:"credit_type" db:"credit_type"`
	Status         TransactionStatus `json:"status" db:"status"`
	Level          *int              `json:"level,omitempty" db:"level"`
	ExpiresAt      *time.Time        `json:"expires_at,omitempty" db:"expires_at"`
	PaymentID      *string           `json:"payment_id,omitempty" db:"payment_id"`
	PackageID      *string           `json:"package_id,omitempty" db:"package_id"`
	ReferredUserID *string           `json:"referred_user_id,omitempty" db:"referred_user_id"`
	Tier           *string           `json:"tier,omitempty" db:"tier"`
	Description    *string           `json:"description,omitempty" db:"description"`
	IdempotencyKey *string           `json:"-" db:"idempotency_key"`
	CreatedAt      time.Time         `json:"created_at" db:"created_at"`
}

// ExpiringGrant builds a completed transaction that expires PromotionalCreditTTL after now.
func ExpiringGrant(txType TransactionType, ct CreditType, amount int64, now time.Time) *CreditTransaction {
	expiresAt := now.Add(PromotionalCreditTTL)
	return &CreditTransaction{
		Type:       txType,
		Amount:     amount,
		CreditType: ct,
		Status:     TransactionStatusCompleted,
		ExpiresAt:  &expiresAt,
	}
}

type SweepReport struct {
	Scanned   int `json:"scanned"`
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}
