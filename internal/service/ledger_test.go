package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/loomperapp-jpg/loomper-backend/internal/model"
	"github.com/loomperapp-jpg/loomper-backend/internal/repository"
)

func TestLedgerApplyConcurrentIncrements(t *testing.T) {
	env := newTestEnv(t)
	env.user("u1", "")

	const writers = 50
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.ledger.Apply(env.ctx, "u1", model.CreditTypePaid, 1, &model.CreditTransaction{
				Type:   model.TransactionTypePurchase,
				Amount: 1,
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, int64(writers), env.walletOf("u1").PaidCredits)
	assert.Len(t, env.txOf("u1", model.TransactionTypePurchase), writers)
}

func TestLedgerApplyClampsAtZero(t *testing.T) {
	env := newTestEnv(t)
	env.user("u1", "")
	env.grant("u1", model.CreditTypePromotional, 30)

	w, err := env.ledger.Apply(env.ctx, "u1", model.CreditTypePromotional, -50, &model.CreditTransaction{
		Type:   model.TransactionTypeServiceUsage,
		Amount: 50,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), w.PromotionalCredits)
	assert.Equal(t, int64(0), env.walletOf("u1").PromotionalCredits)
	assert.Len(t, env.txOf("u1", model.TransactionTypeServiceUsage), 1)
}

func TestLedgerApplyValidation(t *testing.T) {
	env := newTestEnv(t)
	env.user("u1", "")

	_, err := env.ledger.Apply(env.ctx, "u1", "gold", 1, &model.CreditTransaction{})
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = env.ledger.Apply(env.ctx, "u1", model.CreditTypePaid, 1, nil)
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = env.ledger.Apply(env.ctx, "u1", model.CreditTypePaid, 1, &model.CreditTransaction{Amount: -1})
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = env.ledger.Apply(env.ctx, "nobody", model.CreditTypePaid, 1, &model.CreditTransaction{Amount: 1})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestLedgerMutatePassesThroughCallbackError(t *testing.T) {
	env := newTestEnv(t)
	env.user("u1", "")
	boom := errors.New("boom")

	_, err := env.ledger.Mutate(env.ctx, "u1", func(u *repository.Unit) error {
		u.Apply(model.CreditTypePaid, 10)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int64(0), env.walletOf("u1").PaidCredits)
}

// conflictingStore fails the first n commits with a conflict.
type conflictingStore struct {
	repository.Store
	mu        sync.Mutex
	conflicts int
	calls     int
}

func (s *conflictingStore) UpdateLedger(ctx context.Context, userID string, fn func(*repository.Unit) error) (*model.Wallet, error) {
	s.mu.Lock()
	s.calls++
	fail := s.conflicts > 0
	if fail {
		s.conflicts--
	}
	s.mu.Unlock()
	if fail {
		return nil, model.ErrConflict
	}
	return s.Store.UpdateLedger(ctx, userID, fn)
}

func TestLedgerRetriesConflicts(t *testing.T) {
	env := newTestEnv(t)
	env.user("u1", "")

	store := &conflictingStore{Store: env.store, conflicts: 3}
	ledger := NewLedgerService(store, zap.NewNop(), 5)
	ledger.baseDelay = 0

	w, err := ledger.Apply(env.ctx, "u1", model.CreditTypePaid, 7, &model.CreditTransaction{Type: model.TransactionTypePurchase, Amount: 7})
	require.NoError(t, err)
	assert.Equal(t, int64(7), w.PaidCredits)
	assert.Equal(t, 4, store.calls)
}

func TestLedgerGivesUpAfterMaxRetries(t *testing.T) {
	env := newTestEnv(t)
	env.user("u1", "")

	store := &conflictingStore{Store: env.store, conflicts: 100}
	ledger := NewLedgerService(store, zap.NewNop(), 3)
	ledger.baseDelay = 0

	_, err := ledger.Apply(env.ctx, "u1", model.CreditTypePaid, 7, &model.CreditTransaction{Type: model.TransactionTypePurchase, Amount: 7})
	assert.ErrorIs(t, err, model.ErrConflict)
	assert.Equal(t, 3, store.calls)
	assert.Equal(t, int64(0), env.walletOf("u1").PaidCredits)
}
