package bucketing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"verification-service/internal/config"
)

func testManager() *BucketingManager {
	return NewBucketingManager(&config.Config{
		Bucketing: config.BucketingConfig{
			UserBuckets:  64,
			EventBuckets: 16,
		},
	})
}

func TestGetUserBucketStable(t *testing.T) {
	bm := testManager()

	first := bm.GetUserBucket("user-123")
	for i := 0; i < 10; i++ {
		require.Equal(t, first, bm.GetUserBucket("user-123"))
	}
	require.GreaterOrEqual(t, first, 0)
	require.Less(t, first, 64)
}

func TestGetEventBucketRange(t *testing.T) {
	bm := testManager()

	for _, id := range []string{"a", "b", "c", "send_otp:user:1"} {
		bucket := bm.GetEventBucket(id)
		require.GreaterOrEqual(t, bucket, 0)
		require.Less(t, bucket, 16)
	}
}

func TestGetDateBucket(t *testing.T) {
	bm := testManager()

	ts := time.Date(2026, 3, 14, 23, 59, 0, 0, time.UTC)
	require.Equal(t, "2026-03-14", bm.GetDateBucket(ts))
}

func TestRateWindowKeyStableWithinWindow(t *testing.T) {
	bm := testManager()

	first := bm.RateWindowKey("send_otp", "user:42", time.Hour)
	second := bm.RateWindowKey("send_otp", "user:42", time.Hour)
	require.Equal(t, first, second)
	require.Contains(t, first, "send_otp:user:42:")
}
