package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"verification-service/internal/bucketing"
)

func TestAllowWithinQuota(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, f.limiter.Allow(ctx, ActionSendOTP, "u1", ""))
	}
	require.ErrorIs(t, f.limiter.Allow(ctx, ActionSendOTP, "u1", ""), ErrTooManyRequests)

	// A different user has their own window
	require.NoError(t, f.limiter.Allow(ctx, ActionSendOTP, "u2", ""))
}

func TestPersistentAbuseEarnsTemporaryLock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Burn through the quota and keep hammering past twice the limit
	for i := 0; i < 11; i++ {
		_ = f.limiter.Allow(ctx, ActionSendOTP, "u1", "")
	}

	locked, err := f.store.IsLocked(ctx, "user:u1")
	require.NoError(t, err)
	require.True(t, locked)

	// Other actions are denied too while the lock holds
	require.ErrorIs(t, f.limiter.Allow(ctx, ActionVerifyOTP, "u1", ""), ErrTooManyRequests)
}

func TestIPQuotaSharedAcrossUsers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Verify quota is 100/user; the IP rolling window admits 10x that
	for i := 0; i < 1000; i++ {
		user := fmt.Sprintf("u%d", i)
		require.NoError(t, f.limiter.Allow(ctx, ActionVerifyOTP, user, "203.0.113.9"))
	}
	err := f.limiter.Allow(ctx, ActionVerifyOTP, "one-more", "203.0.113.9")
	require.ErrorIs(t, err, ErrTooManyRequests)
}

func TestRemaining(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.Equal(t, 5, f.limiter.Remaining(ctx, ActionSendOTP, "u1"))

	require.NoError(t, f.limiter.Allow(ctx, ActionSendOTP, "u1", ""))
	require.Equal(t, 4, f.limiter.Remaining(ctx, ActionSendOTP, "u1"))
}

func TestRemainingUnknownAction(t *testing.T) {
	f := newFixture(t)
	require.Zero(t, f.limiter.Remaining(context.Background(), "no_such_action", "u1"))
}

func TestLockExpires(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	now := time.Now()
	f.store.SetClock(func() time.Time { return now })

	for i := 0; i < 11; i++ {
		_ = f.limiter.Allow(ctx, ActionSendOTP, "u1", "")
	}
	require.ErrorIs(t, f.limiter.Allow(ctx, ActionSendOTP, "u1", ""), ErrTooManyRequests)

	// Past the lock duration and the window, the user is clean again
	f.store.SetClock(func() time.Time { return now.Add(2 * time.Hour) })
	require.NoError(t, f.limiter.Allow(ctx, ActionSendOTP, "u1", ""))
}

func TestFailClosedOnBrokenStore(t *testing.T) {
	f := newFixture(t)
	limiter := NewRateLimiter(brokenCounters{}, bucketing.NewBucketingManager(f.cfg), f.cfg)

	err := limiter.Allow(context.Background(), ActionSendOTP, "u1", "")
	require.ErrorIs(t, err, ErrTooManyRequests)
}

type brokenCounters struct{}

func (brokenCounters) IncrementCounter(ctx context.Context, key string, ttl time.Duration) (int, error) {
	return 0, fmt.Errorf("connection refused")
}

func (brokenCounters) GetCounter(ctx context.Context, key string) (int, error) {
	return 0, fmt.Errorf("connection refused")
}

func (brokenCounters) ResetCounter(ctx context.Context, key string) error {
	return fmt.Errorf("connection refused")
}
