package model

import (
	"time"
)

type PurchaseStatus string

const (
	PurchaseStatusCompleted PurchaseStatus = "completed"
)

// Purchase is keyed by the provider payment id; its existence means the payment was credited.
type Purchase struct {
	PaymentID     string         `json:"payment_id" db:"payment_id"`
	UserID        string         `json:"user_id" db:"user_id"`
	PackageID     string         `json:"package_id" db:"package_id"`
	Credits       int64          `json:"credits" db:"credits"`
	AmountPaid    float64        `json:"amount_paid" db:"amount_paid"`
	Currency      string         `json:"currency" db:"currency"`
	PaymentMethod string         `json:"payment_method" db:"payment_method"`
	Status        PurchaseStatus `json:"status" db:"status"`
	CreatedAt     time.Time      `json:"created_at" db:"created_at"`
}

// Gateway-side payment status values that matter to the ledger.
const (
	GatewayStatusApproved = "approved"
)

// GatewayPayment is the subset of provider payment details the ledger consumes.
type GatewayPayment struct {
	ID                string
	Status            string
	TransactionAmount float64
	CurrencyID        string
	PaymentMethodID   string
	ExternalReference string
	Metadata          GatewayMetadata
}

type GatewayMetadata struct {
	UserID    string
	PackageID string
	Credits   int64
}

// CreditPackage is an entry of the purchasable credit catalog.
type CreditPackage struct {
	ID           string  `json:"id" yaml:"id"`
	Name         string  `json:"name" yaml:"name"`
	Credits      int64   `json:"credits" yaml:"credits"`
	BonusCredits int64   `json:"bonus_credits" yaml:"bonus_credits"`
	Price        float64 `json:"price" yaml:"price"`
}

func (p CreditPackage) TotalCredits() int64 {
	return p.Credits + p.BonusCredits
}

type Preference struct {
	PreferenceID     string `json:"preference_id"`
	InitPoint        string `json:"init_point"`
	SandboxInitPoint string `json:"sandbox_init_point"`
}
