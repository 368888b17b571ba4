package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/loomperapp-jpg/loomper-backend/internal/cache"
	"github.com/loomperapp-jpg/loomper-backend/internal/config"
	"github.com/loomperapp-jpg/loomper-backend/internal/events/eventstest"
	"github.com/loomperapp-jpg/loomper-backend/internal/model"
	"github.com/loomperapp-jpg/loomper-backend/internal/repository"
)

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

type fakeGateway struct {
	payments map[string]*model.GatewayPayment
	err      error
	calls    int
}

func (g *fakeGateway) GetPayment(_ context.Context, id string) (*model.GatewayPayment, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	p, ok := g.payments[id]
	if !ok {
		return nil, model.ErrUpstream
	}
	return p, nil
}

type testEnv struct {
	t         *testing.T
	ctx       context.Context
	clock     time.Time
	store     *repository.MemoryStore
	ledger    *LedgerService
	referral  *ReferralService
	payment   *PaymentService
	expiry    *ExpiryService
	campaign  *CampaignService
	wallet    *WalletService
	users     *UserService
	runner    *SweepRunner
	gateway   *fakeGateway
	publisher *eventstest.Recorder
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		t:         t,
		ctx:       context.Background(),
		clock:     testNow,
		store:     repository.NewMemoryStore(),
		gateway:   &fakeGateway{payments: map[string]*model.GatewayPayment{}},
		publisher: &eventstest.Recorder{},
	}
	env.store.SetClock(func() time.Time { return env.clock })

	log := zap.NewNop()
	catalog, err := config.NewPackageCatalog(
		model.CreditPackage{ID: "starter", Name: "Starter", Credits: 100, Price: 19.9},
		model.CreditPackage{ID: "pro", Name: "Pro", Credits: 1000, BonusCredits: 100, Price: 99.9},
	)
	require.NoError(t, err)

	env.ledger = NewLedgerService(env.store, log, 1000)
	env.ledger.baseDelay = time.Millisecond
	env.referral = NewReferralService(env.store, env.ledger, env.publisher, log, time.Minute)
	env.referral.now = func() time.Time { return env.clock }
	env.payment = NewPaymentService(env.store, env.ledger, env.referral, env.gateway, catalog, env.publisher, log)
	env.expiry = NewExpiryService(env.store, env.ledger, env.publisher, log, 2)
	env.campaign = NewCampaignService(env.store, env.ledger, env.publisher, log, 2)
	env.wallet = NewWalletService(env.store, env.ledger, log)
	env.users = NewUserService(env.store, log)
	env.runner = NewSweepRunner(env.expiry, env.campaign, env.referral, cache.NewLocalLocker(), time.Minute, 10, log)
	env.runner.now = func() time.Time { return env.clock }
	return env
}

// user creates a user, optionally referred by referrer.
func (e *testEnv) user(id, referrer string) *model.User {
	e.t.Helper()
	req := model.CreateUserRequest{ID: id}
	if referrer != "" {
		req.ReferredBy = &referrer
	}
	u, err := e.users.CreateUser(e.ctx, req)
	require.NoError(e.t, err)
	return u
}

func (e *testEnv) walletOf(id string) *model.Wallet {
	e.t.Helper()
	w, err := e.store.GetWallet(e.ctx, id)
	require.NoError(e.t, err)
	return w
}

func (e *testEnv) txOf(id string, txType model.TransactionType) []model.CreditTransaction {
	e.t.Helper()
	all, err := e.store.GetTransactions(e.ctx, id, 1000, 0)
	require.NoError(e.t, err)
	var out []model.CreditTransaction
	for _, tx := range all {
		if tx.Type == txType {
			out = append(out, tx)
		}
	}
	return out
}

func (e *testEnv) purchase(userID, paymentID string, credits int64) CreditOutcome {
	e.t.Helper()
	outcome, err := e.payment.Credit(e.ctx, CreditRequest{
		PaymentID: paymentID,
		UserID:    userID,
		PackageID: "pro",
		Credits:   credits,
	})
	require.NoError(e.t, err)
	return outcome
}

func (e *testEnv) monthlyEarned(userID string) int64 {
	e.t.Helper()
	n, err := e.store.GetMonthlyEarned(e.ctx, userID, model.MonthKey(e.clock))
	require.NoError(e.t, err)
	return n
}

// seedEarned pretends userID already earned amount in commission this month.
func (e *testEnv) seedEarned(userID string, amount int64) {
	e.t.Helper()
	_, err := e.ledger.Mutate(e.ctx, userID, func(u *repository.Unit) error {
		u.AddMonthlyEarned(model.MonthKey(u.Now()), amount)
		return nil
	})
	require.NoError(e.t, err)
}

// grant credits a category directly through the ledger.
func (e *testEnv) grant(userID string, ct model.CreditType, amount int64) {
	e.t.Helper()
	_, err := e.ledger.Apply(e.ctx, userID, ct, amount, model.ExpiringGrant(model.TransactionTypeReferralBonus, ct, amount, e.clock))
	require.NoError(e.t, err)
}
