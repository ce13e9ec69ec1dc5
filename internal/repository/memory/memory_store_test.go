package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"verification-service/internal/models"
)

func TestPutCodeSupersedesAndResetsAttempts(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	code := &models.ActiveCode{UserID: "u1", CodeHash: "h1"}
	require.NoError(t, s.PutCode(ctx, "phone-hash", code, 5*time.Minute))

	attempts, err := s.IncrementAttempts(ctx, "phone-hash", 5*time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, attempts)
	attempts, err = s.IncrementAttempts(ctx, "phone-hash", 5*time.Minute)
	require.NoError(t, err)
	require.Equal(t, 2, attempts)

	// Overwriting the code starts the attempt count over
	require.NoError(t, s.PutCode(ctx, "phone-hash", &models.ActiveCode{UserID: "u1", CodeHash: "h2"}, 5*time.Minute))

	stored, err := s.GetCode(ctx, "phone-hash")
	require.NoError(t, err)
	require.Equal(t, "h2", stored.CodeHash)

	attempts, err = s.IncrementAttempts(ctx, "phone-hash", 5*time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, attempts)
}

func TestGetCodeExpires(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	now := time.Now()
	s.SetClock(func() time.Time { return now })

	require.NoError(t, s.PutCode(ctx, "phone-hash", &models.ActiveCode{UserID: "u1"}, 5*time.Minute))

	stored, err := s.GetCode(ctx, "phone-hash")
	require.NoError(t, err)
	require.NotNil(t, stored)

	s.SetClock(func() time.Time { return now.Add(6 * time.Minute) })

	stored, err = s.GetCode(ctx, "phone-hash")
	require.NoError(t, err)
	require.Nil(t, stored)
}

func TestAcquireLockExcludes(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	ok, err := s.AcquireLock(ctx, "k", 10*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.AcquireLock(ctx, "k", 10*time.Second)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.ReleaseLock(ctx, "k"))

	ok, err = s.AcquireLock(ctx, "k", 10*time.Second)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCounterWindowExpiry(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	now := time.Now()
	s.SetClock(func() time.Time { return now })

	for i := 1; i <= 3; i++ {
		count, err := s.IncrementCounter(ctx, "rate", time.Hour)
		require.NoError(t, err)
		require.Equal(t, i, count)
	}

	s.SetClock(func() time.Time { return now.Add(2 * time.Hour) })

	count, err := s.IncrementCounter(ctx, "rate", time.Hour)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestSlidingWindowCountsSameInstant(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	now := time.Now()
	s.SetClock(func() time.Time { return now })

	// A burst landing at one timestamp still counts event by event
	for i := 1; i <= 3; i++ {
		allowed, count, err := s.SlidingWindowRateLimit(ctx, "burst", 3, time.Minute)
		require.NoError(t, err)
		require.True(t, allowed)
		require.Equal(t, i, count)
	}

	allowed, count, err := s.SlidingWindowRateLimit(ctx, "burst", 3, time.Minute)
	require.NoError(t, err)
	require.False(t, allowed)
	require.Equal(t, 3, count)

	// The window rolls; old events age out
	s.SetClock(func() time.Time { return now.Add(2 * time.Minute) })
	allowed, _, err = s.SlidingWindowRateLimit(ctx, "burst", 3, time.Minute)
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestCreateSubmissionWritesAuditAtomically(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	sub := &models.SellerVerification{
		ID:               "sub-1",
		UserID:           "u1",
		NationalIDDigest: "digest-1",
		Status:           models.SubmissionStatusPending,
		SubmittedAt:      time.Now(),
	}
	audit := &models.AuditLogEntry{ID: "a1", UserID: "u1", Action: models.AuditSellerSubmitted}
	require.NoError(t, s.CreateSubmission(ctx, sub, audit))

	stored, err := s.GetSubmission(ctx, "sub-1")
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusPending, stored.Status)

	owner, err := s.FindNationalIDOwner(ctx, "digest-1")
	require.NoError(t, err)
	require.Equal(t, "u1", owner)

	trail, err := s.ListAuditByUser(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	require.Equal(t, models.AuditSellerSubmitted, trail[0].Action)
}

func TestDeleteSubmissionKeepsAudit(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	sub := &models.SellerVerification{
		ID:               "sub-1",
		UserID:           "u1",
		NationalIDDigest: "digest-1",
		Status:           models.SubmissionStatusRejected,
	}
	audit := &models.AuditLogEntry{ID: "a1", UserID: "u1", Action: models.AuditSellerSubmitted}
	require.NoError(t, s.CreateSubmission(ctx, sub, audit))

	require.NoError(t, s.DeleteSubmission(ctx, sub))

	stored, err := s.GetSubmission(ctx, "sub-1")
	require.NoError(t, err)
	require.Nil(t, stored)

	owner, err := s.FindNationalIDOwner(ctx, "digest-1")
	require.NoError(t, err)
	require.Empty(t, owner)

	trail, err := s.ListAuditByUser(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, trail, 1)
}
