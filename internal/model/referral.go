package model

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Fixed first-purchase bonuses, in promotional credits.
const (
	ReferrerWelcomeBonus  int64 = 100
	PurchaserWelcomeBonus int64 = 50
)

// MaxCommissionLevel is the deepest up-line level that earns commission.
const MaxCommissionLevel = 3

// CommissionBasisPoints maps a commission level to its share of the purchase, in 1/10000.
var CommissionBasisPoints = map[int]int64{
	1: 500,
	2: 300,
	3: 200,
}

// MaxPurchaseCredits bounds the credits a single payment may grant.
const MaxPurchaseCredits int64 = 10_000_000

// CommissionFor returns floor(credits * pct) for the level, or 0 for unknown levels.
// The product is split around 10000 so it cannot overflow int64.
func CommissionFor(level int, credits int64) int64 {
	bp, ok := CommissionBasisPoints[level]
	if !ok || credits <= 0 {
		return 0
	}
	return credits/10000*bp + credits%10000*bp/10000
}

// MonthlyCap returns the monthly commission ceiling for a referrer with the given active referrals.
func MonthlyCap(activeReferrals int) int64 {
	switch {
	case activeReferrals > 100:
		return 7500
	case activeReferrals >= 51:
		return 5000
	case activeReferrals >= 26:
		return 3500
	case activeReferrals >= 11:
		return 2000
	default:
		return 1000
	}
}

// MonthKey formats the calendar month used for commission accounting ("2026-01").
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

type CommissionTaskStatus string

const (
	CommissionTaskPending CommissionTaskStatus = "pending"
	CommissionTaskDone    CommissionTaskStatus = "done"
)

// CommissionTask is the durable unit of referral propagation for one purchase.
type CommissionTask struct {
	ID            uuid.UUID            `json:"id" db:"id"`
	PaymentID     string               `json:"payment_id" db:"payment_id"`
	PurchaserID   string               `json:"purchaser_id" db:"purchaser_id"`
	Credits       int64                `json:"credits" db:"credits"`
	Status        CommissionTaskStatus `json:"status" db:"status"`
	Attempts      int                  `json:"attempts" db:"attempts"`
	NextAttemptAt time.Time            `json:"next_attempt_at" db:"next_attempt_at"`
	LastError     *string              `json:"last_error,omitempty" db:"last_error"`
	CreatedAt     time.Time            `json:"created_at" db:"created_at"`
	CompletedAt   *time.Time           `json:"completed_at,omitempty" db:"completed_at"`
}

// Idempotency keys for ledger entries written by the referral engine and the sweeps.

func WelcomeBonusKey(paymentID string) string {
	return "welcome:" + paymentID
}

func ReferrerWelcomeKey(paymentID string) string {
	return "welcome-referrer:" + paymentID
}

func CommissionKey(paymentID string, level int) string {
	return "commission:" + paymentID + ":" + strconv.Itoa(level)
}

func CampaignRenewalKey(month string) string {
	return "campaign:" + month
}

func PurchaseKey(paymentID string) string {
	return "purchase:" + paymentID
}
