package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loomperapp-jpg/loomper-backend/internal/model"
)

// MemoryStore is an in-process Store with the same optimistic commit rules as the Postgres one.
// The callback of UpdateLedger runs without the lock held, so concurrent writers to one user
// really do race and lose with model.ErrConflict.
type MemoryStore struct {
	mu           sync.Mutex
	now          func() time.Time
	users        map[string]model.User
	wallets      map[string]model.Wallet
	transactions []model.CreditTransaction
	txIndex      map[uuid.UUID]int
	txKeys       map[string]struct{}
	purchases    map[string]model.Purchase
	earnings     map[string]int64
	tasks        map[uuid.UUID]model.CommissionTask
	taskPayments map[string]struct{}
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:          func() time.Time { return time.Now().UTC() },
		users:        make(map[string]model.User),
		wallets:      make(map[string]model.Wallet),
		txIndex:      make(map[uuid.UUID]int),
		txKeys:       make(map[string]struct{}),
		purchases:    make(map[string]model.Purchase),
		earnings:     make(map[string]int64),
		tasks:        make(map[uuid.UUID]model.CommissionTask),
		taskPayments: make(map[string]struct{}),
	}
}

// SetClock overrides the time source used for record timestamps.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) Ping(context.Context) error { return nil }
func (s *MemoryStore) Close() error               { return nil }

func (s *MemoryStore) CreateUser(_ context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.ID]; ok {
		return ErrUserExists
	}
	now := s.now()
	user.IsFirstPurchase = true
	user.CreatedAt, user.UpdatedAt = now, now
	s.users[user.ID] = *user
	s.wallets[user.ID] = model.Wallet{UserID: user.ID, CreatedAt: now, UpdatedAt: now}
	return nil
}

func (s *MemoryStore) GetUser(_ context.Context, id string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &user, nil
}

func (s *MemoryStore) SetActiveReferralCount(_ context.Context, userID string, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	user.ActiveReferralCount = count
	user.UpdatedAt = s.now()
	s.users[userID] = user
	return nil
}

func (s *MemoryStore) ListActiveCampaignUsers(_ context.Context, afterID string, limit int) ([]model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.User
	for _, user := range s.users {
		if user.HasActiveCampaign() && user.ID > afterID {
			out = append(out, user)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) GetWallet(_ context.Context, userID string) (*model.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wallet, ok := s.wallets[userID]
	if !ok {
		return nil, ErrWalletNotFound
	}
	return &wallet, nil
}

func (s *MemoryStore) UpdateLedger(ctx context.Context, userID string, fn func(*Unit) error) (*model.Wallet, error) {
	s.mu.Lock()
	user, ok := s.users[userID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrUserNotFound
	}
	wallet, ok := s.wallets[userID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrWalletNotFound
	}
	now := s.now()
	s.mu.Unlock()

	unit := newUnit(user, wallet, now, func(month string) (int64, error) {
		return s.GetMonthlyEarned(ctx, userID, month)
	})
	if err := fn(unit); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.wallets[userID].Version != wallet.Version {
		return nil, model.ErrConflict
	}
	if err := s.checkUnit(unit); err != nil {
		return nil, err
	}
	s.applyUnit(unit)
	return &unit.Wallet, nil
}

// checkUnit validates uniqueness constraints before anything is written.
func (s *MemoryStore) checkUnit(u *Unit) error {
	if p := u.purchase; p != nil {
		if _, ok := s.purchases[p.PaymentID]; ok {
			return fmt.Errorf("payment %s: %w", p.PaymentID, model.ErrDuplicate)
		}
	}
	seen := make(map[string]struct{})
	for _, t := range u.transactions {
		if t.IdempotencyKey == nil {
			continue
		}
		k := t.UserID + "|" + *t.IdempotencyKey
		if _, ok := s.txKeys[k]; ok {
			return fmt.Errorf("transaction %s: %w", *t.IdempotencyKey, model.ErrDuplicate)
		}
		if _, ok := seen[k]; ok {
			return fmt.Errorf("transaction %s: %w", *t.IdempotencyKey, model.ErrDuplicate)
		}
		seen[k] = struct{}{}
	}
	for _, t := range u.expirations {
		i, ok := s.txIndex[t.ID]
		if !ok || s.transactions[i].UserID != u.User.ID || s.transactions[i].Status != model.TransactionStatusCompleted {
			return fmt.Errorf("transaction %s: %w", t.ID, model.ErrDuplicate)
		}
	}
	for _, t := range u.tasks {
		if _, ok := s.taskPayments[t.PaymentID]; ok {
			return fmt.Errorf("commission task %s: %w", t.PaymentID, model.ErrDuplicate)
		}
	}
	return nil
}

func (s *MemoryStore) applyUnit(u *Unit) {
	u.Wallet.Version++
	u.Wallet.UpdatedAt = u.now
	s.wallets[u.User.ID] = u.Wallet

	if p := u.purchase; p != nil {
		s.purchases[p.PaymentID] = *p
	}
	for _, t := range u.transactions {
		s.txIndex[t.ID] = len(s.transactions)
		s.transactions = append(s.transactions, *t)
		if t.IdempotencyKey != nil {
			s.txKeys[t.UserID+"|"+*t.IdempotencyKey] = struct{}{}
		}
	}
	for _, t := range u.expirations {
		s.transactions[s.txIndex[t.ID]].Status = model.TransactionStatusExpired
	}
	for month, amount := range u.earned {
		s.earnings[u.User.ID+"|"+month] += amount
	}

	user := s.users[u.User.ID]
	if u.firstPurchaseDone {
		user.IsFirstPurchase = false
	}
	if c := u.campaign; c != nil {
		if c.tier != nil {
			user.CampaignTier = c.tier
			user.CampaignStartDate = c.startDate
			user.CampaignEndDate = c.endDate
		}
		status := c.status
		user.CampaignStatus = &status
	}
	if u.firstPurchaseDone || u.campaign != nil {
		user.UpdatedAt = u.now
	}
	s.users[u.User.ID] = user

	for _, t := range u.tasks {
		s.tasks[t.ID] = *t
		s.taskPayments[t.PaymentID] = struct{}{}
	}
}

func (s *MemoryStore) GetTransactions(_ context.Context, userID string, limit, offset int) ([]model.CreditTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.CreditTransaction
	for i := len(s.transactions) - 1; i >= 0; i-- {
		if s.transactions[i].UserID == userID {
			out = append(out, s.transactions[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) HasTransactionKey(_ context.Context, userID, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.txKeys[userID+"|"+key]
	return ok, nil
}

func (s *MemoryStore) HasTransactionBetween(_ context.Context, userID string, txType model.TransactionType, from, to time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.transactions {
		if t.UserID == userID && t.Type == txType && !t.CreatedAt.Before(from) && t.CreatedAt.Before(to) {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) ListExpiredPromotional(_ context.Context, now time.Time, after ExpiryCursor, limit int) ([]model.CreditTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.CreditTransaction
	for _, t := range s.transactions {
		if t.CreditType != model.CreditTypePromotional || t.Status != model.TransactionStatusCompleted || t.ExpiresAt == nil {
			continue
		}
		if t.ExpiresAt.After(now) || !cursorBefore(after, *t.ExpiresAt, t.ID) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ExpiresAt.Equal(*out[j].ExpiresAt) {
			return out[i].ExpiresAt.Before(*out[j].ExpiresAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// cursorBefore reports whether the cursor sorts strictly before (expiresAt, id).
func cursorBefore(c ExpiryCursor, expiresAt time.Time, id uuid.UUID) bool {
	if !c.ExpiresAt.Equal(expiresAt) {
		return c.ExpiresAt.Before(expiresAt)
	}
	return c.ID.String() < id.String()
}

func (s *MemoryStore) GetPurchase(_ context.Context, paymentID string) (*model.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.purchases[paymentID]
	if !ok {
		return nil, ErrPurchaseNotFound
	}
	return &p, nil
}

func (s *MemoryStore) GetMonthlyEarned(_ context.Context, userID, month string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.earnings[userID+"|"+month], nil
}

func (s *MemoryStore) FetchDueCommissionTasks(_ context.Context, now time.Time, limit int) ([]model.CommissionTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.CommissionTask
	for _, t := range s.tasks {
		if t.Status == model.CommissionTaskPending && !t.NextAttemptAt.After(now) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextAttemptAt.Before(out[j].NextAttemptAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) CompleteCommissionTask(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("commission task %s: %w", id, model.ErrNotFound)
	}
	t.Status = model.CommissionTaskDone
	t.CompletedAt = &at
	t.LastError = nil
	s.tasks[id] = t
	return nil
}

func (s *MemoryStore) FailCommissionTask(_ context.Context, id uuid.UUID, errMsg string, nextAttemptAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("commission task %s: %w", id, model.ErrNotFound)
	}
	if t.Status != model.CommissionTaskPending {
		return nil
	}
	t.Attempts++
	t.LastError = &errMsg
	t.NextAttemptAt = nextAttemptAt
	s.tasks[id] = t
	return nil
}
