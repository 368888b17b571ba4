package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomperapp-jpg/loomper-backend/internal/model"
)

func enroll(t *testing.T, env *testEnv, userID string, tier model.CampaignTier) {
	t.Helper()
	_, err := env.campaign.Enroll(env.ctx, userID, model.CampaignEnrollment{
		Tier:      tier,
		StartDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
}

// useLastMonth records service usage dated in February 2026.
func useLastMonth(t *testing.T, env *testEnv, userID string) {
	t.Helper()
	saved := env.clock
	env.clock = time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	env.grant(userID, model.CreditTypePaid, 1)
	_, err := env.wallet.RecordUsage(env.ctx, userID, UsageRequest{Amount: 1})
	require.NoError(t, err)
	env.clock = saved
}

func TestRenewalSweep(t *testing.T) {
	env := newTestEnv(t)
	env.user("founder", "")
	env.user("idle", "")
	env.user("pioneer", "")
	env.user("plain", "")
	enroll(t, env, "founder", model.CampaignTierFounder)
	enroll(t, env, "idle", model.CampaignTierFounder)
	enroll(t, env, "pioneer", model.CampaignTierPioneer)
	useLastMonth(t, env, "founder")
	useLastMonth(t, env, "pioneer")
	useLastMonth(t, env, "plain")

	env.clock = time.Date(2026, 3, 1, 0, 5, 0, 0, time.UTC)
	report, err := env.campaign.RunRenewalSweep(env.ctx, env.clock)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Scanned)
	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 1, report.Skipped)

	assert.Equal(t, int64(1500), env.walletOf("founder").CampaignCredits)
	assert.Equal(t, int64(1000), env.walletOf("pioneer").CampaignCredits)
	assert.Equal(t, int64(0), env.walletOf("idle").CampaignCredits)
	assert.Equal(t, int64(0), env.walletOf("plain").CampaignCredits)

	renewals := env.txOf("founder", model.TransactionTypeCampaignRenewal)
	require.Len(t, renewals, 1)
	require.NotNil(t, renewals[0].Tier)
	assert.Equal(t, "founder", *renewals[0].Tier)
	assert.Equal(t, model.CreditTypeCampaign, renewals[0].CreditType)
	require.NotNil(t, renewals[0].ExpiresAt)

	// same month: no second renewal
	env.clock = env.clock.AddDate(0, 0, 1)
	report, err = env.campaign.RunRenewalSweep(env.ctx, env.clock)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Processed)
	assert.Equal(t, int64(1500), env.walletOf("founder").CampaignCredits)
}

func TestRenewalSweepIgnoresUsageOutsideWindow(t *testing.T) {
	env := newTestEnv(t)
	env.user("u1", "")
	enroll(t, env, "u1", model.CampaignTierEarlyAdopter)

	// usage in the current month does not count
	env.clock = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	env.grant("u1", model.CreditTypePaid, 1)
	_, err := env.wallet.RecordUsage(env.ctx, "u1", UsageRequest{Amount: 1})
	require.NoError(t, err)

	report, err := env.campaign.RunRenewalSweep(env.ctx, time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 0, report.Processed)

	report, err = env.campaign.RunRenewalSweep(env.ctx, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, int64(1000), env.walletOf("u1").CampaignCredits)
}

func TestRenewalSweepExpiresEndedMembership(t *testing.T) {
	env := newTestEnv(t)
	env.user("u1", "")
	enroll(t, env, "u1", model.CampaignTierFounder)
	useLastMonth(t, env, "u1")

	report, err := env.campaign.RunRenewalSweep(env.ctx, time.Date(2027, 1, 5, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, int64(0), env.walletOf("u1").CampaignCredits)

	u, err := env.store.GetUser(env.ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, u.CampaignStatus)
	assert.Equal(t, model.CampaignStatusExpired, *u.CampaignStatus)
	assert.False(t, u.HasActiveCampaign())

	report, err = env.campaign.RunRenewalSweep(env.ctx, time.Date(2027, 1, 6, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 0, report.Scanned)
}

func TestEnrollValidation(t *testing.T) {
	env := newTestEnv(t)
	env.user("u1", "")
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := env.campaign.Enroll(env.ctx, "u1", model.CampaignEnrollment{Tier: "legend", StartDate: start, EndDate: start.AddDate(1, 0, 0)})
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = env.campaign.Enroll(env.ctx, "u1", model.CampaignEnrollment{Tier: model.CampaignTierFounder, StartDate: start, EndDate: start})
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = env.campaign.Enroll(env.ctx, "ghost", model.CampaignEnrollment{Tier: model.CampaignTierFounder, StartDate: start, EndDate: start.AddDate(1, 0, 0)})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestPreviousMonthWindow(t *testing.T) {
	from, to := previousMonthWindow(time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), to)
}
