package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"verification-service/internal/bucketing"
	"verification-service/internal/config"
	"verification-service/internal/encryption"
	"verification-service/internal/models"
	"verification-service/internal/util"
)

// Back-office roles. SUPPORT can browse the queue and view details; only
// ADMIN decides.
const (
	RoleAdmin   = "ADMIN"
	RoleSupport = "SUPPORT"
)

const (
	nationalIDLength = 14
	minAge           = 18
	maxAddressLength = 500
)

// Actor identifies the authenticated caller of a review operation.
type Actor struct {
	ID   string
	Role string
	IP   string
}

// SubmissionDetails is the admin read model. It carries the decrypted
// national ID and is only ever built after an ADMIN_VIEWED audit entry has
// been committed.
type SubmissionDetails struct {
	Submission *models.SellerVerification
	NationalID string
	AuditTrail []*models.AuditLogEntry
}

// KYCService owns the seller verification lifecycle: submission, review,
// and the eligibility check the marketplace gates offer creation on.
type KYCService struct {
	store      VerificationStore
	locker     KeyLocker
	limiter    *RateLimiter
	encryption *encryption.EncryptionManager
	notifier   ReviewNotifier
	indexer    AuditIndexer
	bucketing  *bucketing.BucketingManager
	config     *config.Config
}

func NewKYCService(
	store VerificationStore,
	locker KeyLocker,
	limiter *RateLimiter,
	em *encryption.EncryptionManager,
	notifier ReviewNotifier,
	indexer AuditIndexer,
	bm *bucketing.BucketingManager,
	cfg *config.Config,
) *KYCService {
	return &KYCService{
		store:      store,
		locker:     locker,
		limiter:    limiter,
		encryption: em,
		notifier:   notifier,
		indexer:    indexer,
		bucketing:  bm,
		config:     cfg,
	}
}

// Submit files a new seller verification. The national ID is validated,
// checked for reuse across accounts, then stored as ciphertext plus digest.
// The submission row and its SELLER_SUBMITTED audit entry commit together.
func (s *KYCService) Submit(ctx context.Context, userID, nationalID, dateOfBirth, billingAddress, ip string) (*models.SellerVerification, error) {
	if userID == "" {
		return nil, fmt.Errorf("missing user: %w", ErrUnauthorized)
	}

	if err := s.limiter.Allow(ctx, ActionSubmit, userID, ip); err != nil {
		return nil, err
	}

	phone, err := s.store.GetPhoneVerification(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load phone record: %w", err)
	}
	if phone == nil || !phone.Verified {
		return nil, fmt.Errorf("phone verification required before seller submission: %w", ErrPermissionDenied)
	}

	if err := ValidateNationalID(nationalID); err != nil {
		return nil, err
	}

	dob, err := time.Parse("2006-01-02", dateOfBirth)
	if err != nil {
		return nil, fmt.Errorf("date_of_birth must be YYYY-MM-DD: %w", ErrInvalidInput)
	}
	if age(dob, time.Now().UTC()) < minAge {
		return nil, fmt.Errorf("seller must be at least %d years old: %w", minAge, ErrInvalidInput)
	}

	address := util.SanitizeInput(billingAddress)
	if address == "" || len(address) > maxAddressLength {
		return nil, fmt.Errorf("billing address required: %w", ErrInvalidInput)
	}
	if util.ContainsSuspicious(billingAddress) {
		return nil, fmt.Errorf("billing address contains disallowed content: %w", ErrInvalidInput)
	}

	digest := encryption.HashIdentifier(nationalID)
	owner, err := s.store.FindNationalIDOwner(ctx, digest)
	if err != nil {
		return nil, fmt.Errorf("failed to check national id reuse: %w", err)
	}
	if owner != "" && owner != userID {
		return nil, fmt.Errorf("national id already submitted by another account: %w", ErrConflict)
	}

	latest, err := s.store.GetLatestSubmissionByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load prior submissions: %w", err)
	}
	if latest != nil {
		switch latest.Status {
		case models.SubmissionStatusPending:
			return nil, fmt.Errorf("a submission is already under review: %w", ErrConflict)
		case models.SubmissionStatusApproved:
			return nil, fmt.Errorf("seller already approved: %w", ErrConflict)
		}
	}

	encrypted, err := s.encryption.EncryptField(ctx, nationalID, "national_id")
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt national id: %w", err)
	}

	now := time.Now().UTC()
	sub := &models.SellerVerification{
		ID:                  uuid.New().String(),
		UserBucket:          s.bucketing.GetUserBucket(userID),
		UserID:              userID,
		NationalIDEncrypted: encrypted.EncryptedValue,
		NationalIDDEK:       encrypted.EncryptedDEK,
		NationalIDKeyID:     encrypted.KeyID,
		EncryptionVersion:   encrypted.Version,
		NationalIDDigest:    digest,
		NationalIDMasked:    util.MaskNationalID(nationalID),
		DateOfBirth:         dob,
		BillingAddress:      address,
		Status:              models.SubmissionStatusPending,
		SubmittedAt:         now,
	}

	audit := s.auditEntry(userID, models.AuditSellerSubmitted, userID, ip, map[string]string{
		"submission_id":      sub.ID,
		"national_id_masked": sub.NationalIDMasked,
	})
	if err := s.store.CreateSubmission(ctx, sub, audit); err != nil {
		return nil, fmt.Errorf("failed to create submission: %w", err)
	}
	s.indexAudit(ctx, audit)

	return sub, nil
}

// Status returns the user's latest submission.
func (s *KYCService) Status(ctx context.Context, userID string) (*models.SellerVerification, error) {
	if userID == "" {
		return nil, fmt.Errorf("missing user: %w", ErrUnauthorized)
	}
	latest, err := s.store.GetLatestSubmissionByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load submission: %w", err)
	}
	if latest == nil {
		return nil, fmt.Errorf("no submission on file: %w", ErrNotFound)
	}
	return latest, nil
}

// CanCreateOffers reports whether the user may list offers: phone verified
// and latest submission approved. The reason is safe to show the user.
func (s *KYCService) CanCreateOffers(ctx context.Context, userID string) (bool, string, error) {
	if userID == "" {
		return false, "", fmt.Errorf("missing user: %w", ErrUnauthorized)
	}

	pv, err := s.store.GetPhoneVerification(ctx, userID)
	if err != nil {
		return false, "", fmt.Errorf("failed to load phone verification: %w", err)
	}
	if pv == nil || !pv.Verified {
		return false, "phone number is not verified", nil
	}

	latest, err := s.store.GetLatestSubmissionByUser(ctx, userID)
	if err != nil {
		return false, "", fmt.Errorf("failed to load submission: %w", err)
	}
	switch {
	case latest == nil:
		return false, "seller verification has not been submitted", nil
	case latest.Status == models.SubmissionStatusPending:
		return false, "seller verification is under review", nil
	case latest.Status == models.SubmissionStatusRejected:
		return false, "seller verification was rejected", nil
	}
	return true, "seller verification approved", nil
}

// ListPending returns the review queue.
func (s *KYCService) ListPending(ctx context.Context, actor Actor, limit int) ([]*models.SellerVerification, error) {
	if err := requireRole(actor, RoleAdmin, RoleSupport); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	subs, err := s.store.ListPending(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending submissions: %w", err)
	}
	return subs, nil
}

// ViewDetails decrypts a submission for review. The ADMIN_VIEWED audit
// entry must commit before any PII is returned; if it cannot be written,
// the reviewer sees nothing.
func (s *KYCService) ViewDetails(ctx context.Context, actor Actor, submissionID string) (*SubmissionDetails, error) {
	if err := requireRole(actor, RoleAdmin, RoleSupport); err != nil {
		return nil, err
	}

	sub, err := s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load submission: %w", err)
	}
	if sub == nil {
		return nil, fmt.Errorf("submission %s: %w", submissionID, ErrNotFound)
	}

	audit := s.auditEntry(sub.UserID, models.AuditAdminViewed, actor.ID, actor.IP, map[string]string{
		"submission_id": sub.ID,
	})
	if err := s.store.AppendAudit(ctx, audit); err != nil {
		return nil, fmt.Errorf("disclosure audit failed, refusing to decrypt: %w", err)
	}
	s.indexAudit(ctx, audit)

	nationalID, err := s.encryption.DecryptField(ctx, &encryption.EncryptedData{
		EncryptedValue: sub.NationalIDEncrypted,
		EncryptedDEK:   sub.NationalIDDEK,
		KeyID:          sub.NationalIDKeyID,
		Version:        sub.EncryptionVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt national id: %w", err)
	}

	trail, err := s.store.ListAuditByUser(ctx, sub.UserID, 100)
	if err != nil {
		util.Warn("Failed to load audit trail for detail view", util.ErrorField(err))
	}

	return &SubmissionDetails{
		Submission: sub,
		NationalID: nationalID,
		AuditTrail: trail,
	}, nil
}

// Approve moves a pending submission to APPROVED.
func (s *KYCService) Approve(ctx context.Context, actor Actor, submissionID string) error {
	return s.review(ctx, actor, submissionID, models.SubmissionStatusApproved, "")
}

// Reject moves a pending submission to REJECTED with a reason the seller
// will see. REJECTED is terminal; the seller resubmits from scratch.
func (s *KYCService) Reject(ctx context.Context, actor Actor, submissionID, reason string) error {
	reason = util.SanitizeInput(reason)
	if reason == "" {
		return fmt.Errorf("rejection reason is required: %w", ErrInvalidInput)
	}
	return s.review(ctx, actor, submissionID, models.SubmissionStatusRejected, reason)
}

func (s *KYCService) review(ctx context.Context, actor Actor, submissionID, status, reason string) error {
	if err := requireRole(actor, RoleAdmin); err != nil {
		return err
	}

	lockKey := "review:" + submissionID
	acquired, err := s.locker.AcquireLock(ctx, lockKey, 30*time.Second)
	if err != nil {
		return fmt.Errorf("failed to acquire review lock: %w", err)
	}
	if !acquired {
		return fmt.Errorf("submission is being reviewed: %w", ErrConflict)
	}
	defer s.locker.ReleaseLock(ctx, lockKey)

	sub, err := s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return fmt.Errorf("failed to load submission: %w", err)
	}
	if sub == nil {
		return fmt.Errorf("submission %s: %w", submissionID, ErrNotFound)
	}
	// A terminal submission is no longer reviewable; to the reviewer it is
	// indistinguishable from one that never existed.
	if sub.Status != models.SubmissionStatusPending {
		return fmt.Errorf("no pending submission %s: %w", submissionID, ErrNotFound)
	}

	now := time.Now().UTC()
	sub.Status = status
	sub.ReviewedBy = actor.ID
	sub.ReviewedAt = &now
	sub.ReviewerIP = actor.IP
	sub.RejectionReason = reason

	action := models.AuditSellerApproved
	details := map[string]string{
		"submission_id":      sub.ID,
		"national_id_masked": sub.NationalIDMasked,
	}
	if status == models.SubmissionStatusRejected {
		action = models.AuditSellerRejected
		details["reason"] = reason
	}

	audit := s.auditEntry(sub.UserID, action, actor.ID, actor.IP, details)
	if err := s.store.ApplyReview(ctx, sub, audit); err != nil {
		return fmt.Errorf("failed to apply review: %w", err)
	}
	s.indexAudit(ctx, audit)

	if err := s.notifier.NotifyReviewed(ctx, sub); err != nil {
		util.Warn("Review notification failed",
			util.String("submission_id", sub.ID),
			util.ErrorField(err),
		)
	}

	return nil
}

func (s *KYCService) auditEntry(userID, action, performedBy, ip string, details map[string]string) *models.AuditLogEntry {
	payload, _ := json.Marshal(details)
	now := time.Now().UTC()
	return &models.AuditLogEntry{
		ID:          uuid.New().String(),
		DateBucket:  s.bucketing.GetDateBucket(now),
		UserID:      userID,
		Action:      action,
		PerformedBy: performedBy,
		Details:     string(payload),
		IPAddress:   ip,
		CreatedAt:   now,
	}
}

func (s *KYCService) indexAudit(ctx context.Context, entry *models.AuditLogEntry) {
	if err := s.indexer.Index(ctx, entry); err != nil {
		util.Warn("Audit index failed", util.String("action", entry.Action), util.ErrorField(err))
	}
}

func requireRole(actor Actor, roles ...string) error {
	if actor.ID == "" {
		return fmt.Errorf("missing actor: %w", ErrUnauthorized)
	}
	for _, role := range roles {
		if actor.Role == role {
			return nil
		}
	}
	return fmt.Errorf("role %s not allowed: %w", actor.Role, ErrPermissionDenied)
}

// ValidateNationalID checks the 14-digit format: all digits, with a
// plausible embedded birth month (positions 3-4) and day (positions 5-6).
func ValidateNationalID(id string) error {
	if len(id) != nationalIDLength {
		return fmt.Errorf("national id must be %d digits: %w", nationalIDLength, ErrInvalidInput)
	}
	for _, c := range id {
		if c < '0' || c > '9' {
			return fmt.Errorf("national id must be numeric: %w", ErrInvalidInput)
		}
	}
	month, _ := strconv.Atoi(id[3:5])
	if month < 1 || month > 12 {
		return fmt.Errorf("national id has invalid birth month: %w", ErrInvalidInput)
	}
	day, _ := strconv.Atoi(id[5:7])
	if day < 1 || day > 31 {
		return fmt.Errorf("national id has invalid birth day: %w", ErrInvalidInput)
	}
	return nil
}

func age(dob, now time.Time) int {
	years := now.Year() - dob.Year()
	if now.YearDay() < dob.YearDay() {
		years--
	}
	return years
}
