package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/loomperapp-jpg/loomper-backend/internal/model"
)

var (
	ErrUserNotFound     = fmt.Errorf("user %w", model.ErrNotFound)
	ErrWalletNotFound   = fmt.Errorf("wallet %w", model.ErrNotFound)
	ErrPurchaseNotFound = fmt.Errorf("purchase %w", model.ErrNotFound)
	ErrUserExists       = fmt.Errorf("user %w", model.ErrDuplicate)
)

// Store is the durable per-user ledger state. UpdateLedger is the only way to mutate a
// wallet: it runs fn against a snapshot of the user's row and wallet and commits the staged
// writes only if no other writer committed in between, returning model.ErrConflict otherwise.
type Store interface {
	Ping(ctx context.Context) error
	Close() error

	CreateUser(ctx context.Context, user *model.User) error
	GetUser(ctx context.Context, id string) (*model.User, error)
	SetActiveReferralCount(ctx context.Context, userID string, count int) error
	ListActiveCampaignUsers(ctx context.Context, afterID string, limit int) ([]model.User, error)

	GetWallet(ctx context.Context, userID string) (*model.Wallet, error)
	UpdateLedger(ctx context.Context, userID string, fn func(*Unit) error) (*model.Wallet, error)

	GetTransactions(ctx context.Context, userID string, limit, offset int) ([]model.CreditTransaction, error)
	HasTransactionKey(ctx context.Context, userID, key string) (bool, error)
	HasTransactionBetween(ctx context.Context, userID string, txType model.TransactionType, from, to time.Time) (bool, error)
	ListExpiredPromotional(ctx context.Context, now time.Time, after ExpiryCursor, limit int) ([]model.CreditTransaction, error)

	GetPurchase(ctx context.Context, paymentID string) (*model.Purchase, error)
	GetMonthlyEarned(ctx context.Context, userID, month string) (int64, error)

	FetchDueCommissionTasks(ctx context.Context, now time.Time, limit int) ([]model.CommissionTask, error)
	CompleteCommissionTask(ctx context.Context, id uuid.UUID, at time.Time) error
	FailCommissionTask(ctx context.Context, id uuid.UUID, errMsg string, nextAttemptAt time.Time) error
}

// ExpiryCursor is the keyset position of the expiry sweep.
type ExpiryCursor struct {
	ExpiresAt time.Time
	ID        uuid.UUID
}

// Clamp records a debit that would have taken a balance below zero.
type Clamp struct {
	CreditType model.CreditType
	Requested  int64
	Shortfall  int64
}

type campaignChange struct {
	tier      *model.CampaignTier
	startDate *time.Time
	endDate   *time.Time
	status    model.CampaignStatus
}

// Unit is one per-user atomic read-modify-write. Reads come from the snapshot taken when the
// unit started; writes are staged and applied by the store on commit.
type Unit struct {
	User   model.User
	Wallet model.Wallet

	now         time.Time
	loadMonthly func(month string) (int64, error)
	monthly     map[string]int64

	transactions      []*model.CreditTransaction
	expirations       []model.CreditTransaction
	purchase          *model.Purchase
	tasks             []*model.CommissionTask
	earned            map[string]int64
	firstPurchaseDone bool
	campaign          *campaignChange
	clamps            []Clamp
}

func newUnit(user model.User, wallet model.Wallet, now time.Time, loadMonthly func(string) (int64, error)) *Unit {
	return &Unit{
		User:        user,
		Wallet:      wallet,
		now:         now,
		loadMonthly: loadMonthly,
		monthly:     make(map[string]int64),
		earned:      make(map[string]int64),
	}
}

func (u *Unit) Now() time.Time {
	return u.now
}

// Apply adds delta to the balance of ct, clamping at zero, and returns the new balance.
func (u *Unit) Apply(ct model.CreditType, delta int64) int64 {
	next := u.Wallet.Balance(ct) + delta
	if next < 0 {
		u.clamps = append(u.clamps, Clamp{CreditType: ct, Requested: -delta, Shortfall: -next})
		next = 0
	}
	u.Wallet.SetBalance(ct, next)
	return next
}

// Append stages a transaction record, filling in identity and timestamps.
func (u *Unit) Append(tx *model.CreditTransaction) {
	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	tx.UserID = u.User.ID
	if tx.Status == "" {
		tx.Status = model.TransactionStatusCompleted
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = u.now
	}
	u.transactions = append(u.transactions, tx)
}

// Expire stages the completed -> expired flip. The commit fails with model.ErrDuplicate if the
// transaction is no longer completed.
func (u *Unit) Expire(tx model.CreditTransaction) {
	u.expirations = append(u.expirations, tx)
}

// RecordPurchase stages the purchase record. The commit fails with model.ErrDuplicate if the
// payment id is already recorded.
func (u *Unit) RecordPurchase(p *model.Purchase) {
	p.UserID = u.User.ID
	if p.CreatedAt.IsZero() {
		p.CreatedAt = u.now
	}
	if p.Status == "" {
		p.Status = model.PurchaseStatusCompleted
	}
	u.Wallet.LastPurchaseAt = &u.now
	u.purchase = p
}

func (u *Unit) EnqueueCommission(task *model.CommissionTask) {
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	if task.Status == "" {
		task.Status = model.CommissionTaskPending
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = u.now
	}
	if task.NextAttemptAt.IsZero() {
		task.NextAttemptAt = u.now
	}
	u.tasks = append(u.tasks, task)
}

// MonthlyEarned returns the commission earned in month, including amounts staged in this unit.
func (u *Unit) MonthlyEarned(month string) (int64, error) {
	base, ok := u.monthly[month]
	if !ok {
		var err error
		base, err = u.loadMonthly(month)
		if err != nil {
			return 0, err
		}
		u.monthly[month] = base
	}
	return base + u.earned[month], nil
}

func (u *Unit) AddMonthlyEarned(month string, amount int64) {
	u.earned[month] += amount
}

func (u *Unit) MarkFirstPurchaseDone() {
	u.User.IsFirstPurchase = false
	u.firstPurchaseDone = true
}

func (u *Unit) EnrollCampaign(e model.CampaignEnrollment) {
	tier := e.Tier
	start, end := e.StartDate.UTC(), e.EndDate.UTC()
	u.User.CampaignTier = &tier
	u.User.CampaignStartDate = &start
	u.User.CampaignEndDate = &end
	status := model.CampaignStatusActive
	u.User.CampaignStatus = &status
	u.campaign = &campaignChange{tier: &tier, startDate: &start, endDate: &end, status: status}
}

func (u *Unit) SetCampaignStatus(status model.CampaignStatus) {
	u.User.CampaignStatus = &status
	if u.campaign == nil {
		u.campaign = &campaignChange{}
	}
	u.campaign.status = status
}

// Clamps lists the debits that were clamped at zero in this unit.
func (u *Unit) Clamps() []Clamp {
	return u.clamps
}

// Transactions lists the records staged in this unit.
func (u *Unit) Transactions() []*model.CreditTransaction {
	return u.transactions
}
