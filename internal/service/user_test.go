package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomperapp-jpg/loomper-backend/internal/model"
)

func TestCreateUser(t *testing.T) {
	env := newTestEnv(t)

	u, err := env.users.CreateUser(env.ctx, model.CreateUserRequest{ID: " u1 ", Email: "a@loomper.com.br"})
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)
	assert.True(t, u.IsFirstPurchase)
	assert.Nil(t, u.ReferredBy)

	w := env.walletOf("u1")
	assert.Equal(t, int64(0), w.Total())

	_, err = env.users.CreateUser(env.ctx, model.CreateUserRequest{ID: "u1"})
	assert.ErrorIs(t, err, model.ErrDuplicate)
}

func TestCreateUserReferrerRules(t *testing.T) {
	env := newTestEnv(t)
	env.user("ref", "")

	self := "u2"
	_, err := env.users.CreateUser(env.ctx, model.CreateUserRequest{ID: "u2", ReferredBy: &self})
	assert.ErrorIs(t, err, model.ErrValidation)

	ghost := "ghost"
	_, err = env.users.CreateUser(env.ctx, model.CreateUserRequest{ID: "u2", ReferredBy: &ghost})
	assert.ErrorIs(t, err, model.ErrValidation)

	u := env.user("u2", "ref")
	require.NotNil(t, u.ReferredBy)
	assert.Equal(t, "ref", *u.ReferredBy)
}

func TestSetActiveReferralCount(t *testing.T) {
	env := newTestEnv(t)
	env.user("u1", "")

	require.NoError(t, env.users.SetActiveReferralCount(env.ctx, "u1", 42))
	u, err := env.users.GetUser(env.ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 42, u.ActiveReferralCount)

	assert.ErrorIs(t, env.users.SetActiveReferralCount(env.ctx, "u1", -1), model.ErrValidation)
	assert.ErrorIs(t, env.users.SetActiveReferralCount(env.ctx, "ghost", 1), model.ErrNotFound)
}
