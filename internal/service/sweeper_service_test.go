package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"verification-service/internal/models"
)

func seedTerminal(t *testing.T, f *fixture, status string, reviewedAgo time.Duration) *models.SellerVerification {
	t.Helper()
	reviewedAt := time.Now().UTC().Add(-reviewedAgo)
	sub := &models.SellerVerification{
		ID:               uuid.New().String(),
		UserID:           "user-" + uuid.New().String()[:8],
		NationalIDDigest: uuid.New().String(),
		NationalIDMasked: "29805*********",
		Status:           status,
		SubmittedAt:      reviewedAt.Add(-24 * time.Hour),
		ReviewedAt:       &reviewedAt,
	}
	audit := &models.AuditLogEntry{
		ID:     uuid.New().String(),
		UserID: sub.UserID,
		Action: models.AuditSellerSubmitted,
	}
	require.NoError(t, f.store.CreateSubmission(context.Background(), sub, audit))
	return sub
}

func TestSweepPurgesOldRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	old := seedTerminal(t, f, models.SubmissionStatusRejected, 100*24*time.Hour)
	recent := seedTerminal(t, f, models.SubmissionStatusRejected, 10*24*time.Hour)
	approved := seedTerminal(t, f, models.SubmissionStatusApproved, 100*24*time.Hour)

	report, err := f.sweeper.Sweep(ctx, 0, false)
	require.NoError(t, err)
	require.Equal(t, 1, report.Purged)
	require.Equal(t, 1, report.Archived)
	require.Len(t, f.archive.archived, 1)
	require.Equal(t, old.ID, f.archive.archived[0].ID)

	gone, err := f.store.GetSubmission(ctx, old.ID)
	require.NoError(t, err)
	require.Nil(t, gone)

	for _, keep := range []*models.SellerVerification{recent, approved} {
		still, err := f.store.GetSubmission(ctx, keep.ID)
		require.NoError(t, err)
		require.NotNil(t, still)
	}

	// Audit entries outlive the purge
	trail, err := f.store.ListAuditByUser(ctx, old.UserID, 10)
	require.NoError(t, err)
	require.NotEmpty(t, trail)
}

func TestSweepIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	seedTerminal(t, f, models.SubmissionStatusRejected, 100*24*time.Hour)

	first, err := f.sweeper.Sweep(ctx, 0, false)
	require.NoError(t, err)
	require.Equal(t, 1, first.Purged)

	second, err := f.sweeper.Sweep(ctx, 0, false)
	require.NoError(t, err)
	require.Zero(t, second.Purged)
	require.Zero(t, second.Scanned)
}

func TestSweepDryRunDeletesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sub := seedTerminal(t, f, models.SubmissionStatusRejected, 100*24*time.Hour)

	report, err := f.sweeper.Sweep(ctx, 0, true)
	require.NoError(t, err)
	require.True(t, report.DryRun)
	require.Equal(t, 1, report.Scanned)
	require.Zero(t, report.Purged)
	require.Empty(t, f.archive.archived)

	still, err := f.store.GetSubmission(ctx, sub.ID)
	require.NoError(t, err)
	require.NotNil(t, still)
}

func TestSweepHorizonOverride(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	seedTerminal(t, f, models.SubmissionStatusRejected, 10*24*time.Hour)

	report, err := f.sweeper.Sweep(ctx, 5*24*time.Hour, false)
	require.NoError(t, err)
	require.Equal(t, 1, report.Purged)
}

func TestSweepPurgesApprovedWhenConfigured(t *testing.T) {
	f := newFixture(t)
	f.cfg.Retention.PurgeApproved = true
	ctx := context.Background()

	seedTerminal(t, f, models.SubmissionStatusApproved, 400*24*time.Hour)
	seedTerminal(t, f, models.SubmissionStatusApproved, 100*24*time.Hour)

	report, err := f.sweeper.Sweep(ctx, 0, false)
	require.NoError(t, err)
	require.Equal(t, 1, report.Purged)
}
