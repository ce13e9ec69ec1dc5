package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"verification-service/internal/models"
)

const (
	validNationalID = "29805241234567"
	validDOB        = "1998-05-24"
	validAddress    = "14 October City, Giza"
)

func submitValid(t *testing.T, f *fixture, userID string) *models.SellerVerification {
	t.Helper()
	sub, err := f.kyc.Submit(context.Background(), userID, validNationalID, validDOB, validAddress, "203.0.113.1")
	require.NoError(t, err)
	return sub
}

func TestSubmitHappyPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.verifyPhone(t, "u1", "+201033832316")
	sub := submitValid(t, f, "u1")

	require.Equal(t, models.SubmissionStatusPending, sub.Status)
	require.Equal(t, "29805*********", sub.NationalIDMasked)
	require.NotEqual(t, validNationalID, sub.NationalIDEncrypted)
	require.NotEmpty(t, sub.NationalIDDigest)

	trail, err := f.store.ListAuditByUser(ctx, "u1", 10)
	require.NoError(t, err)
	require.Equal(t, models.AuditSellerSubmitted, trail[len(trail)-1].Action)
	require.Equal(t, "203.0.113.1", trail[len(trail)-1].IPAddress)
}

func TestSubmitRequiresVerifiedPhone(t *testing.T) {
	f := newFixture(t)

	_, err := f.kyc.Submit(context.Background(), "u1", validNationalID, validDOB, validAddress, "")
	require.ErrorIs(t, err, ErrPermissionDenied)
}

func TestSubmitRejectsBadNationalID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.verifyPhone(t, "u1", "+201033832316")

	cases := map[string]string{
		"too short":     "123",
		"non-numeric":   "2980524123456x",
		"invalid month": "29813241234567",
		"invalid day":   "29805321234567",
	}
	for name, id := range cases {
		_, err := f.kyc.Submit(ctx, "u1", id, validDOB, validAddress, "")
		require.ErrorIs(t, err, ErrInvalidInput, name)
	}
}

func TestSubmitRejectsUnderage(t *testing.T) {
	f := newFixture(t)

	f.verifyPhone(t, "u1", "+201033832316")

	_, err := f.kyc.Submit(context.Background(), "u1", validNationalID, "2015-05-24", validAddress, "")
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestSubmitRejectsSuspiciousAddress(t *testing.T) {
	f := newFixture(t)

	f.verifyPhone(t, "u1", "+201033832316")

	_, err := f.kyc.Submit(context.Background(), "u1", validNationalID, validDOB, `<script>alert(1)</script>`, "")
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestSubmitDuplicateNationalID(t *testing.T) {
	f := newFixture(t)

	f.verifyPhone(t, "u1", "+201033832316")
	f.verifyPhone(t, "u2", "+201033832317")
	submitValid(t, f, "u1")

	_, err := f.kyc.Submit(context.Background(), "u2", validNationalID, validDOB, validAddress, "")
	require.ErrorIs(t, err, ErrConflict)
}

func TestSubmitWhilePendingConflicts(t *testing.T) {
	f := newFixture(t)

	f.verifyPhone(t, "u1", "+201033832316")
	submitValid(t, f, "u1")

	_, err := f.kyc.Submit(context.Background(), "u1", validNationalID, validDOB, validAddress, "")
	require.ErrorIs(t, err, ErrConflict)
}

func TestApproveFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.verifyPhone(t, "u1", "+201033832316")
	sub := submitValid(t, f, "u1")

	admin := Actor{ID: "admin-1", Role: RoleAdmin, IP: "198.51.100.9"}
	require.NoError(t, f.kyc.Approve(ctx, admin, sub.ID))

	latest, err := f.kyc.Status(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusApproved, latest.Status)
	require.Equal(t, "admin-1", latest.ReviewedBy)
	require.NotNil(t, latest.ReviewedAt)

	allowed, reason, err := f.kyc.CanCreateOffers(ctx, "u1")
	require.NoError(t, err)
	require.True(t, allowed)
	require.Equal(t, "seller verification approved", reason)

	require.Len(t, f.notifier.reviewed, 1)

	trail, err := f.store.ListAuditByUser(ctx, "u1", 10)
	require.NoError(t, err)
	require.Equal(t, models.AuditSellerApproved, trail[len(trail)-1].Action)

	// A terminal submission is gone from the review queue
	require.ErrorIs(t, f.kyc.Approve(ctx, admin, sub.ID), ErrNotFound)
}

func TestRejectFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.verifyPhone(t, "u1", "+201033832316")
	sub := submitValid(t, f, "u1")

	admin := Actor{ID: "admin-1", Role: RoleAdmin}

	err := f.kyc.Reject(ctx, admin, sub.ID, "   ")
	require.ErrorIs(t, err, ErrInvalidInput)

	// Any non-empty reason is accepted, however terse
	require.NoError(t, f.kyc.Reject(ctx, admin, sub.ID, "fake id"))

	latest, err := f.kyc.Status(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusRejected, latest.Status)
	require.Equal(t, "fake id", latest.RejectionReason)

	allowed, reason, err := f.kyc.CanCreateOffers(ctx, "u1")
	require.NoError(t, err)
	require.False(t, allowed)
	require.Equal(t, "seller verification was rejected", reason)
}

func TestResubmitAfterRejection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.verifyPhone(t, "u1", "+201033832316")
	first := submitValid(t, f, "u1")

	admin := Actor{ID: "admin-1", Role: RoleAdmin}
	require.NoError(t, f.kyc.Reject(ctx, admin, first.ID, "document photo is unreadable"))

	second := submitValid(t, f, "u1")
	require.NotEqual(t, first.ID, second.ID)
	require.Equal(t, models.SubmissionStatusPending, second.Status)
}

func TestSupportCannotDecide(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.verifyPhone(t, "u1", "+201033832316")
	sub := submitValid(t, f, "u1")

	support := Actor{ID: "support-1", Role: RoleSupport}
	require.ErrorIs(t, f.kyc.Approve(ctx, support, sub.ID), ErrPermissionDenied)
	require.ErrorIs(t, f.kyc.Reject(ctx, support, sub.ID, "document photo is unreadable"), ErrPermissionDenied)

	// Browsing and viewing stay open to support
	pending, err := f.kyc.ListPending(ctx, support, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
}

func TestViewDetailsDecryptsAndAudits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.verifyPhone(t, "u1", "+201033832316")
	sub := submitValid(t, f, "u1")

	admin := Actor{ID: "admin-1", Role: RoleAdmin, IP: "198.51.100.9"}
	details, err := f.kyc.ViewDetails(ctx, admin, sub.ID)
	require.NoError(t, err)
	require.Equal(t, validNationalID, details.NationalID)

	trail, err := f.store.ListAuditByUser(ctx, "u1", 10)
	require.NoError(t, err)
	last := trail[len(trail)-1]
	require.Equal(t, models.AuditAdminViewed, last.Action)
	require.Equal(t, "admin-1", last.PerformedBy)
	require.Equal(t, "198.51.100.9", last.IPAddress)
}

func TestViewDetailsUnknownSubmission(t *testing.T) {
	f := newFixture(t)

	admin := Actor{ID: "admin-1", Role: RoleAdmin}
	_, err := f.kyc.ViewDetails(context.Background(), admin, "no-such-id")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStatusWithoutSubmission(t *testing.T) {
	f := newFixture(t)

	_, err := f.kyc.Status(context.Background(), "u1")
	require.ErrorIs(t, err, ErrNotFound)
}
