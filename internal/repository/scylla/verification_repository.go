package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"verification-service/internal/bucketing"
	"verification-service/internal/models"
	"verification-service/internal/util"
)

// VerificationRepository persists phone verifications, seller submissions,
// and audit entries in ScyllaDB. seller_verifications_by_user and
// seller_verifications_by_status are materialized views over the base table,
// so only the base table and the digest index take writes.
type VerificationRepository struct {
	client       *ScyllaClient
	bucketingMgr *bucketing.BucketingManager
	logger       *zap.Logger
}

func NewVerificationRepository(client *ScyllaClient, bucketingMgr *bucketing.BucketingManager, logger *zap.Logger) *VerificationRepository {
	return &VerificationRepository{
		client:       client,
		bucketingMgr: bucketingMgr,
		logger:       logger,
	}
}

func (r *VerificationRepository) UpsertPhoneVerification(ctx context.Context, pv *models.PhoneVerification) error {
	pv.UserBucket = r.bucketingMgr.GetUserBucket(pv.UserID)

	query := r.client.Prepared.UpsertPhoneVerification.WithContext(ctx).Bind(
		pv.UserBucket, pv.UserID, pv.PhoneHash, pv.PhoneMasked, pv.Verified,
		pv.CreatedAt, pv.UpdatedAt, pv.VerifiedAt,
	)
	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		return fmt.Errorf("failed to upsert phone verification: %w", err)
	}

	ownerQuery := r.client.Prepared.CreatePhoneToUser.WithContext(ctx).Bind(
		pv.PhoneHash, pv.UserID, pv.CreatedAt,
	)
	if err := r.client.ExecuteWithRetry(ownerQuery, 3); err != nil {
		return fmt.Errorf("failed to record phone owner: %w", err)
	}

	return nil
}

func (r *VerificationRepository) GetPhoneVerification(ctx context.Context, userID string) (*models.PhoneVerification, error) {
	bucket := r.bucketingMgr.GetUserBucket(userID)

	var pv models.PhoneVerification
	query := r.client.Prepared.GetPhoneVerification.WithContext(ctx).Bind(bucket, userID)
	if err := r.client.ScanWithRetry(query,
		&pv.UserBucket, &pv.UserID, &pv.PhoneHash, &pv.PhoneMasked, &pv.Verified,
		&pv.CreatedAt, &pv.UpdatedAt, &pv.VerifiedAt,
	); err != nil {
		if err == gocql.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get phone verification: %w", err)
	}

	return &pv, nil
}

func (r *VerificationRepository) GetPhoneOwner(ctx context.Context, phoneHash string) (string, error) {
	var userID string
	query := r.client.Prepared.GetPhoneOwner.WithContext(ctx).Bind(phoneHash)
	if err := r.client.ScanWithRetry(query, &userID); err != nil {
		if err == gocql.ErrNotFound {
			return "", nil
		}
		return "", fmt.Errorf("failed to get phone owner: %w", err)
	}
	return userID, nil
}

func (r *VerificationRepository) MarkPhoneVerified(ctx context.Context, userID string, at time.Time) error {
	bucket := r.bucketingMgr.GetUserBucket(userID)

	query := r.client.Prepared.MarkPhoneVerified.WithContext(ctx).Bind(
		true, at, at, bucket, userID,
	)
	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		return fmt.Errorf("failed to mark phone verified: %w", err)
	}
	return nil
}

const insertSubmissionCQL = `
    INSERT INTO seller_verifications (
        id, user_bucket, user_id, national_id_encrypted, national_id_dek,
        national_id_key_id, encryption_version, national_id_digest,
        national_id_masked, date_of_birth, billing_address, status,
        submitted_at, reviewed_by, reviewed_at, reviewer_ip, rejection_reason
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const insertAuditCQL = `
    INSERT INTO audit_logs (
        date_bucket, id, user_id, action, performed_by, details,
        ip_address, created_at
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

const updateReviewCQL = `
    UPDATE seller_verifications
    SET status = ?, reviewed_by = ?, reviewed_at = ?, reviewer_ip = ?, rejection_reason = ?
    WHERE id = ?`

// CreateSubmission writes the submission, its digest index entry, and the
// audit entry in one logged batch.
func (r *VerificationRepository) CreateSubmission(ctx context.Context, sub *models.SellerVerification, audit *models.AuditLogEntry) error {
	sub.UserBucket = r.bucketingMgr.GetUserBucket(sub.UserID)

	batch := r.client.Batch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(insertSubmissionCQL,
		sub.ID, sub.UserBucket, sub.UserID, sub.NationalIDEncrypted, sub.NationalIDDEK,
		sub.NationalIDKeyID, sub.EncryptionVersion, sub.NationalIDDigest,
		sub.NationalIDMasked, sub.DateOfBirth, sub.BillingAddress, sub.Status,
		sub.SubmittedAt, sub.ReviewedBy, sub.ReviewedAt, sub.ReviewerIP, sub.RejectionReason,
	)
	batch.Query(`INSERT INTO national_id_index (national_id_digest, submission_id, user_id, created_at) VALUES (?, ?, ?, ?)`,
		sub.NationalIDDigest, sub.ID, sub.UserID, sub.SubmittedAt,
	)
	batch.Query(insertAuditCQL,
		audit.DateBucket, audit.ID, audit.UserID, audit.Action, audit.PerformedBy,
		audit.Details, audit.IPAddress, audit.CreatedAt,
	)

	if err := r.client.ExecuteBatch(batch); err != nil {
		return fmt.Errorf("failed to create submission: %w", err)
	}

	r.logger.Info("Submission created",
		util.String("submission_id", sub.ID),
		util.String("user_id", sub.UserID),
	)
	return nil
}

func (r *VerificationRepository) GetSubmission(ctx context.Context, id string) (*models.SellerVerification, error) {
	query := r.client.Prepared.GetSubmission.WithContext(ctx).Bind(id)
	sub, err := r.scanSubmission(query)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (r *VerificationRepository) scanSubmission(query *gocql.Query) (*models.SellerVerification, error) {
	var sub models.SellerVerification
	if err := r.client.ScanWithRetry(query,
		&sub.ID, &sub.UserBucket, &sub.UserID, &sub.NationalIDEncrypted, &sub.NationalIDDEK,
		&sub.NationalIDKeyID, &sub.EncryptionVersion, &sub.NationalIDDigest,
		&sub.NationalIDMasked, &sub.DateOfBirth, &sub.BillingAddress, &sub.Status,
		&sub.SubmittedAt, &sub.ReviewedBy, &sub.ReviewedAt, &sub.ReviewerIP, &sub.RejectionReason,
	); err != nil {
		if err == gocql.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}
	return &sub, nil
}

func (r *VerificationRepository) iterSubmissions(iter *gocql.Iter) ([]*models.SellerVerification, error) {
	var subs []*models.SellerVerification
	for {
		var sub models.SellerVerification
		if !iter.Scan(
			&sub.ID, &sub.UserBucket, &sub.UserID, &sub.NationalIDEncrypted, &sub.NationalIDDEK,
			&sub.NationalIDKeyID, &sub.EncryptionVersion, &sub.NationalIDDigest,
			&sub.NationalIDMasked, &sub.DateOfBirth, &sub.BillingAddress, &sub.Status,
			&sub.SubmittedAt, &sub.ReviewedBy, &sub.ReviewedAt, &sub.ReviewerIP, &sub.RejectionReason,
		) {
			break
		}
		subCopy := sub
		subs = append(subs, &subCopy)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to iterate submissions: %w", err)
	}
	return subs, nil
}

func (r *VerificationRepository) GetLatestSubmissionByUser(ctx context.Context, userID string) (*models.SellerVerification, error) {
	query := r.client.Prepared.GetSubmissionsByUser.WithContext(ctx).Bind(userID)
	subs, err := r.iterSubmissions(query.Iter())
	if err != nil {
		return nil, err
	}

	var latest *models.SellerVerification
	for _, sub := range subs {
		if latest == nil || sub.SubmittedAt.After(latest.SubmittedAt) {
			latest = sub
		}
	}
	return latest, nil
}

func (r *VerificationRepository) GetPendingSubmissionByUser(ctx context.Context, userID string) (*models.SellerVerification, error) {
	query := r.client.Prepared.GetSubmissionsByUser.WithContext(ctx).Bind(userID)
	subs, err := r.iterSubmissions(query.Iter())
	if err != nil {
		return nil, err
	}

	for _, sub := range subs {
		if sub.Status == models.SubmissionStatusPending {
			return sub, nil
		}
	}
	return nil, nil
}

func (r *VerificationRepository) FindNationalIDOwner(ctx context.Context, digest string) (string, error) {
	var submissionID, userID string
	query := r.client.Prepared.GetSubmissionByDigest.WithContext(ctx).Bind(digest)
	if err := r.client.ScanWithRetry(query, &submissionID, &userID); err != nil {
		if err == gocql.ErrNotFound {
			return "", nil
		}
		return "", fmt.Errorf("failed to look up national id digest: %w", err)
	}
	return userID, nil
}

func (r *VerificationRepository) ListPending(ctx context.Context, limit int) ([]*models.SellerVerification, error) {
	query := r.client.Prepared.ListSubmissionsByStatus.WithContext(ctx).Bind(models.SubmissionStatusPending, limit)
	return r.iterSubmissions(query.Iter())
}

// ApplyReview commits the status transition and its audit entry in one
// logged batch. If the batch fails, neither is visible.
func (r *VerificationRepository) ApplyReview(ctx context.Context, sub *models.SellerVerification, audit *models.AuditLogEntry) error {
	batch := r.client.Batch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(updateReviewCQL,
		sub.Status, sub.ReviewedBy, sub.ReviewedAt, sub.ReviewerIP, sub.RejectionReason, sub.ID,
	)
	batch.Query(insertAuditCQL,
		audit.DateBucket, audit.ID, audit.UserID, audit.Action, audit.PerformedBy,
		audit.Details, audit.IPAddress, audit.CreatedAt,
	)

	if err := r.client.ExecuteBatch(batch); err != nil {
		return fmt.Errorf("failed to apply review: %w", err)
	}

	r.logger.Info("Review applied",
		util.String("submission_id", sub.ID),
		util.String("status", sub.Status),
		util.String("reviewed_by", sub.ReviewedBy),
	)
	return nil
}

func (r *VerificationRepository) ListTerminalOlderThan(ctx context.Context, status string, cutoff time.Time, limit int) ([]*models.SellerVerification, error) {
	query := r.client.Prepared.ListSubmissionsByStatus.WithContext(ctx).Bind(status, limit)
	subs, err := r.iterSubmissions(query.Iter())
	if err != nil {
		return nil, err
	}

	var out []*models.SellerVerification
	for _, sub := range subs {
		if sub.ReviewedAt != nil && sub.ReviewedAt.Before(cutoff) {
			out = append(out, sub)
		}
	}
	return out, nil
}

// DeleteSubmission removes the submission and its digest index entry. Audit
// rows are never deleted.
func (r *VerificationRepository) DeleteSubmission(ctx context.Context, sub *models.SellerVerification) error {
	batch := r.client.Batch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`DELETE FROM seller_verifications WHERE id = ?`, sub.ID)
	batch.Query(`DELETE FROM national_id_index WHERE national_id_digest = ?`, sub.NationalIDDigest)

	if err := r.client.ExecuteBatch(batch); err != nil {
		return fmt.Errorf("failed to delete submission: %w", err)
	}
	return nil
}

func (r *VerificationRepository) AppendAudit(ctx context.Context, entry *models.AuditLogEntry) error {
	query := r.client.Prepared.AppendAudit.WithContext(ctx).Bind(
		entry.DateBucket, entry.ID, entry.UserID, entry.Action, entry.PerformedBy,
		entry.Details, entry.IPAddress, entry.CreatedAt,
	)
	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func (r *VerificationRepository) ListAuditByUser(ctx context.Context, userID string, limit int) ([]*models.AuditLogEntry, error) {
	query := r.client.Prepared.ListAuditByUser.WithContext(ctx).Bind(userID, limit)
	iter := query.Iter()

	var entries []*models.AuditLogEntry
	for {
		var e models.AuditLogEntry
		if !iter.Scan(&e.ID, &e.DateBucket, &e.UserID, &e.Action, &e.PerformedBy,
			&e.Details, &e.IPAddress, &e.CreatedAt) {
			break
		}
		entryCopy := e
		entries = append(entries, &entryCopy)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit entries: %w", err)
	}
	return entries, nil
}
