package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/loomperapp-jpg/loomper-backend/internal/cache"
	"github.com/loomperapp-jpg/loomper-backend/internal/config"
	"github.com/loomperapp-jpg/loomper-backend/internal/events/eventstest"
	"github.com/loomperapp-jpg/loomper-backend/internal/mercadopago"
	"github.com/loomperapp-jpg/loomper-backend/internal/middleware"
	"github.com/loomperapp-jpg/loomper-backend/internal/model"
	"github.com/loomperapp-jpg/loomper-backend/internal/repository"
	"github.com/loomperapp-jpg/loomper-backend/internal/service"
)

const (
	testSecret = "jwt-secret"
	testKey    = "internal-key"
)

type fakeProvider struct {
	payments map[string]*model.GatewayPayment
	fetched  []string
	lastPref mercadopago.PreferenceRequest
	prefErr  error
	getErr   error
}

func (f *fakeProvider) GetPayment(_ context.Context, id string) (*model.GatewayPayment, error) {
	f.fetched = append(f.fetched, id)
	if f.getErr != nil {
		return nil, f.getErr
	}
	p, ok := f.payments[id]
	if !ok {
		return nil, model.ErrUpstream
	}
	return p, nil
}

func (f *fakeProvider) CreatePreference(_ context.Context, req mercadopago.PreferenceRequest) (*model.Preference, error) {
	f.lastPref = req
	if f.prefErr != nil {
		return nil, f.prefErr
	}
	return &model.Preference{PreferenceID: "pref-1", InitPoint: "https://mp/init"}, nil
}

type testServer struct {
	app      *fiber.App
	store    *repository.MemoryStore
	provider *fakeProvider
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	log := zap.NewNop()
	store := repository.NewMemoryStore()
	provider := &fakeProvider{payments: map[string]*model.GatewayPayment{}}
	publisher := &eventstest.Recorder{}

	catalog, err := config.NewPackageCatalog(
		model.CreditPackage{ID: "starter", Name: "Starter", Credits: 100, Price: 19.9},
	)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Server.AppURL = "https://app.test"
	cfg.Server.PublicURL = "https://api.test"

	ledger := service.NewLedgerService(store, log, 10)
	referral := service.NewReferralService(store, ledger, publisher, log, time.Minute)
	expiry := service.NewExpiryService(store, ledger, publisher, log, 10)
	campaign := service.NewCampaignService(store, ledger, publisher, log, 10)
	runner := service.NewSweepRunner(expiry, campaign, referral, cache.NewLocalLocker(), time.Minute, 10, log)

	h := New(
		store,
		service.NewUserService(store, log),
		service.NewWalletService(store, ledger, log),
		service.NewPaymentService(store, ledger, referral, provider, catalog, publisher, log),
		service.NewCheckoutService(store, provider, catalog, cfg, log),
		campaign,
		runner,
		log,
	)

	app := fiber.New()
	h.Register(app, RouteConfig{JWTSecret: testSecret, InternalAPIKey: testKey})

	return &testServer{app: app, store: store, provider: provider}
}

func (s *testServer) do(t *testing.T, method, path, body string, headers map[string]string) (int, map[string]interface{}) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := s.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]interface{}{}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out)
	}
	return resp.StatusCode, out
}

func (s *testServer) user(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, s.store.CreateUser(context.Background(), &model.User{ID: id}))
}

func bearer(t *testing.T, userID string) map[string]string {
	t.Helper()
	token, err := middleware.IssueToken(userID, testSecret, time.Hour)
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + token}
}

var internal = map[string]string{middleware.InternalKeyHeader: testKey}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}

func TestMercadoPagoWebhook(t *testing.T) {
	s := newTestServer(t)
	s.user(t, "buyer")
	s.provider.payments["555"] = &model.GatewayPayment{
		ID:     "555",
		Status: model.GatewayStatusApproved,
		Metadata: model.GatewayMetadata{
			UserID:    "buyer",
			PackageID: "starter",
			Credits:   100,
		},
	}

	// numeric ids are accepted
	status, body := s.do(t, http.MethodPost, "/webhook/mercadopago", `{"type":"payment","data":{"id":555}}`, nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "credited", body["status"])
	assert.Equal(t, []string{"555"}, s.provider.fetched)

	wallet, err := s.store.GetWallet(context.Background(), "buyer")
	require.NoError(t, err)
	assert.Equal(t, int64(100), wallet.PaidCredits)

	status, body = s.do(t, http.MethodPost, "/webhook/mercadopago", `{"action":"payment.updated","data":{"id":"555"}}`, nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "already_credited", body["status"])

	wallet, err = s.store.GetWallet(context.Background(), "buyer")
	require.NoError(t, err)
	assert.Equal(t, int64(100), wallet.PaidCredits)
}

func TestMercadoPagoWebhookQueryFallback(t *testing.T) {
	s := newTestServer(t)
	s.user(t, "buyer")
	s.provider.payments["77"] = &model.GatewayPayment{
		ID:                "77",
		Status:            model.GatewayStatusApproved,
		ExternalReference: "buyer",
		Metadata:          model.GatewayMetadata{PackageID: "starter", Credits: 40},
	}

	status, body := s.do(t, http.MethodPost, "/webhook/mercadopago?topic=payment&id=77", "", nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "credited", body["status"])
}

func TestMercadoPagoWebhookClassification(t *testing.T) {
	s := newTestServer(t)
	s.provider.payments["pending"] = &model.GatewayPayment{ID: "pending", Status: "pending"}
	s.provider.payments["orphan"] = &model.GatewayPayment{ID: "orphan", Status: model.GatewayStatusApproved}

	tests := []struct {
		name   string
		body   string
		status int
		result string
	}{
		{"non payment event", `{"type":"merchant_order","data":{"id":"1"}}`, fiber.StatusOK, "ignored"},
		{"not approved", `{"type":"payment","data":{"id":"pending"}}`, fiber.StatusOK, "not_approved"},
		{"missing payment id", `{"type":"payment","data":{}}`, fiber.StatusBadRequest, ""},
		{"missing user id", `{"type":"payment","data":{"id":"orphan"}}`, fiber.StatusBadRequest, ""},
		{"malformed body", `{"type":`, fiber.StatusBadRequest, ""},
		{"provider failure", `{"type":"payment","data":{"id":"unknown"}}`, fiber.StatusInternalServerError, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := s.do(t, http.MethodPost, "/webhook/mercadopago", tt.body, nil)
			assert.Equal(t, tt.status, status)
			if tt.result != "" {
				assert.Equal(t, tt.result, body["status"])
			} else {
				assert.NotEmpty(t, body["error"])
			}
		})
	}
}

func TestWallet(t *testing.T) {
	s := newTestServer(t)
	s.user(t, "u1")

	status, _ := s.do(t, http.MethodGet, "/api/wallet", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)

	_, err := s.store.UpdateLedger(context.Background(), "u1", func(u *repository.Unit) error {
		u.Apply(model.CreditTypePaid, 30)
		u.Apply(model.CreditTypePromotional, 12)
		u.Append(&model.CreditTransaction{Type: model.TransactionTypePurchase, Amount: 30, CreditType: model.CreditTypePaid})
		return nil
	})
	require.NoError(t, err)

	status, body := s.do(t, http.MethodGet, "/api/wallet", "", bearer(t, "u1"))
	assert.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 30, body["paid_credits"])
	assert.EqualValues(t, 12, body["promotional_credits"])
	assert.EqualValues(t, 42, body["total"])

	status, body = s.do(t, http.MethodGet, "/api/wallet/transactions?limit=5", "", bearer(t, "u1"))
	assert.Equal(t, fiber.StatusOK, status)
	txs, ok := body["transactions"].([]interface{})
	require.True(t, ok)
	assert.Len(t, txs, 1)

	status, _ = s.do(t, http.MethodGet, "/api/wallet", "", bearer(t, "ghost"))
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestCreatePreference(t *testing.T) {
	s := newTestServer(t)
	s.user(t, "u1")

	status, _ := s.do(t, http.MethodPost, "/api/checkout/preference", `{"package_id":"starter"}`, nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, body := s.do(t, http.MethodPost, "/api/checkout/preference", `{"package_id":"starter"}`, bearer(t, "u1"))
	assert.Equal(t, fiber.StatusCreated, status)
	assert.Equal(t, "pref-1", body["preference_id"])
	assert.Equal(t, "https://api.test/webhook/mercadopago", s.provider.lastPref.NotificationURL)
	assert.Equal(t, int64(100), s.provider.lastPref.Metadata.Credits)

	status, _ = s.do(t, http.MethodPost, "/api/checkout/preference", `{}`, bearer(t, "u1"))
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = s.do(t, http.MethodPost, "/api/checkout/preference", `{"package_id":"mega"}`, bearer(t, "u1"))
	assert.Equal(t, fiber.StatusNotFound, status)

	s.provider.prefErr = model.ErrUpstream
	status, _ = s.do(t, http.MethodPost, "/api/checkout/preference", `{"package_id":"starter"}`, bearer(t, "u1"))
	assert.Equal(t, fiber.StatusBadGateway, status)
}

func TestInternalUsers(t *testing.T) {
	s := newTestServer(t)

	status, _ := s.do(t, http.MethodPost, "/internal/users", `{"id":"a"}`, nil)
	assert.Equal(t, fiber.StatusForbidden, status)

	status, body := s.do(t, http.MethodPost, "/internal/users", `{"id":"a","email":"a@loomper.test"}`, internal)
	assert.Equal(t, fiber.StatusCreated, status)
	assert.Equal(t, "a", body["id"])
	assert.Equal(t, true, body["is_first_purchase"])

	status, _ = s.do(t, http.MethodPost, "/internal/users", `{"id":"b","referred_by":"nobody"}`, internal)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = s.do(t, http.MethodPost, "/internal/users", `{"id":"b","email":"not-an-email"}`, internal)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = s.do(t, http.MethodPut, "/internal/users/a/active-referrals", `{"count":3}`, internal)
	assert.Equal(t, fiber.StatusOK, status)
	u, err := s.store.GetUser(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, 3, u.ActiveReferralCount)

	status, _ = s.do(t, http.MethodPut, "/internal/users/a/active-referrals", `{"count":-1}`, internal)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, body = s.do(t, http.MethodPut, "/internal/users/a/campaign",
		`{"tier":"founder","start_date":"2026-01-01T00:00:00Z","end_date":"2027-01-01T00:00:00Z"}`, internal)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "founder", body["campaign_tier"])
	assert.Equal(t, "active", body["campaign_status"])

	status, _ = s.do(t, http.MethodPut, "/internal/users/a/campaign",
		`{"tier":"founder","start_date":"2027-01-01T00:00:00Z","end_date":"2026-01-01T00:00:00Z"}`, internal)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestRecordUsage(t *testing.T) {
	s := newTestServer(t)
	s.user(t, "u1")

	status, _ := s.do(t, http.MethodPost, "/internal/users/u1/usage", `{"amount":10}`, internal)
	assert.Equal(t, fiber.StatusPaymentRequired, status)

	_, err := s.store.UpdateLedger(context.Background(), "u1", func(u *repository.Unit) error {
		u.Apply(model.CreditTypePaid, 25)
		return nil
	})
	require.NoError(t, err)

	status, body := s.do(t, http.MethodPost, "/internal/users/u1/usage", `{"amount":10,"description":"listing boost"}`, internal)
	assert.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 15, body["paid_credits"])

	status, _ = s.do(t, http.MethodPost, "/internal/users/u1/usage", `{"amount":0}`, internal)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestCronTriggers(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/internal/cron/expire", "/internal/cron/renew", "/internal/cron/commissions"} {
		status, body := s.do(t, http.MethodPost, path, "", internal)
		assert.Equal(t, fiber.StatusOK, status, path)
		assert.EqualValues(t, 0, body["failed"], path)
	}

	status, _ := s.do(t, http.MethodPost, "/internal/cron/expire", "", nil)
	assert.Equal(t, fiber.StatusForbidden, status)
}
