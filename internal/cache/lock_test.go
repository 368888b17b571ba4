package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLockerExclusive(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	release, ok, err := l.TryLock(ctx, "expiry", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.TryLock(ctx, "expiry", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = l.TryLock(ctx, "renewal", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "different names do not contend")

	release()
	release()

	_, ok, err = l.TryLock(ctx, "expiry", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocalLockerTTL(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	l := NewLocalLocker()
	l.nowFn = func() time.Time { return now }
	ctx := context.Background()

	staleRelease, ok, _ := l.TryLock(ctx, "expiry", time.Minute)
	require.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok, _ = l.TryLock(ctx, "expiry", time.Minute)
	require.True(t, ok, "expired lock can be taken over")

	// the stale holder must not release the new holder's lock
	staleRelease()
	_, ok, _ = l.TryLock(ctx, "expiry", time.Minute)
	assert.False(t, ok)
}
