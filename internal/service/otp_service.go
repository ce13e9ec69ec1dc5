package service

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"regexp"
	"time"

	"github.com/google/uuid"

	"verification-service/internal/bucketing"
	"verification-service/internal/config"
	"verification-service/internal/encryption"
	"verification-service/internal/hashing"
	"verification-service/internal/models"
	"verification-service/internal/util"
)

var phonePattern = regexp.MustCompile(`^\+[1-9]\d{7,14}$`)

// PhoneStatus is the read model for the phone verification status endpoint.
type PhoneStatus struct {
	Status      string     `json:"status"`
	PhoneMasked string     `json:"phone_masked,omitempty"`
	VerifiedAt  *time.Time `json:"verified_at,omitempty"`
	SendsLeft   int        `json:"sends_left"`
}

// OTPService issues and verifies one-time codes for phone ownership. Only a
// salted argon2id digest of the code ever leaves this service; the code
// itself goes out through the SMS dispatcher and is gone.
type OTPService struct {
	store      VerificationStore
	codes      OTPStore
	locker     KeyLocker
	limiter    *RateLimiter
	hasher     *hashing.Hasher
	dispatcher SMSDispatcher
	indexer    AuditIndexer
	bucketing  *bucketing.BucketingManager
	config     *config.Config
}

func NewOTPService(
	store VerificationStore,
	codes OTPStore,
	locker KeyLocker,
	limiter *RateLimiter,
	hasher *hashing.Hasher,
	dispatcher SMSDispatcher,
	indexer AuditIndexer,
	bm *bucketing.BucketingManager,
	cfg *config.Config,
) *OTPService {
	return &OTPService{
		store:      store,
		codes:      codes,
		locker:     locker,
		limiter:    limiter,
		hasher:     hasher,
		dispatcher: dispatcher,
		indexer:    indexer,
		bucketing:  bm,
		config:     cfg,
	}
}

// SendOTP issues a fresh code for the phone and dispatches it. Issuing
// while a code is already live supersedes the old one and resets its
// attempt counter.
func (s *OTPService) SendOTP(ctx context.Context, userID, phone, ip string) error {
	if userID == "" {
		return fmt.Errorf("missing user: %w", ErrUnauthorized)
	}
	if !phonePattern.MatchString(phone) {
		return fmt.Errorf("phone must be E.164: %w", ErrInvalidInput)
	}

	if err := s.limiter.Allow(ctx, ActionSendOTP, userID, ip); err != nil {
		return err
	}

	phoneHash := encryption.HashIdentifier(phone)

	owner, err := s.store.GetPhoneOwner(ctx, phoneHash)
	if err != nil {
		return fmt.Errorf("failed to look up phone owner: %w", err)
	}
	if owner != "" && owner != userID {
		ownerRecord, err := s.store.GetPhoneVerification(ctx, owner)
		if err != nil {
			return fmt.Errorf("failed to load phone owner record: %w", err)
		}
		if ownerRecord != nil && ownerRecord.Verified && ownerRecord.PhoneHash == phoneHash {
			return fmt.Errorf("phone already verified by another account: %w", ErrConflict)
		}
	}

	acquired, err := s.locker.AcquireLock(ctx, phoneHash, 10*time.Second)
	if err != nil {
		return fmt.Errorf("failed to acquire send lock: %w", err)
	}
	if !acquired {
		return fmt.Errorf("concurrent send in progress: %w", ErrTooManyRequests)
	}
	defer s.locker.ReleaseLock(ctx, phoneHash)

	code, err := s.generateCode()
	if err != nil {
		return fmt.Errorf("failed to generate code: %w", err)
	}

	hashed, err := s.hasher.HashOTP(code)
	if err != nil {
		return fmt.Errorf("failed to hash code: %w", err)
	}

	now := time.Now().UTC()
	active := &models.ActiveCode{
		UserID:        userID,
		CodeHash:      hashed.Hash,
		Salt:          hashed.Salt,
		PepperVersion: hashed.PepperVersion,
		Algorithm:     hashed.Algorithm,
		IssuedAt:      now,
		ExpiresAt:     now.Add(s.config.OTP.Expiry),
	}
	if err := s.codes.PutCode(ctx, phoneHash, active, s.config.OTP.Expiry); err != nil {
		return fmt.Errorf("failed to store code: %w", err)
	}

	existing, err := s.store.GetPhoneVerification(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load phone record: %w", err)
	}
	record := &models.PhoneVerification{
		UserBucket:  s.bucketing.GetUserBucket(userID),
		UserID:      userID,
		PhoneHash:   phoneHash,
		PhoneMasked: util.MaskPhone(phone),
		Verified:    false,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if existing != nil {
		record.CreatedAt = existing.CreatedAt
	}
	if err := s.store.UpsertPhoneVerification(ctx, record); err != nil {
		return fmt.Errorf("failed to upsert phone record: %w", err)
	}

	if err := s.audit(ctx, userID, models.AuditOTPSent, userID, ip, map[string]string{
		"phone_masked": record.PhoneMasked,
	}); err != nil {
		return err
	}

	// Dispatch failure is recoverable: the code stays live and the user
	// can retry or wait for it to expire.
	dispatchCtx, cancel := context.WithTimeout(ctx, s.config.OTP.DispatchTimeout)
	defer cancel()
	message := fmt.Sprintf("Your verification code is %s. It expires in %d minutes.",
		code, int(s.config.OTP.Expiry.Minutes()))
	if err := s.dispatcher.Send(dispatchCtx, phone, message); err != nil {
		util.Warn("SMS dispatch failed, code remains active",
			util.String("phone_masked", record.PhoneMasked),
			util.ErrorField(err),
		)
	}

	return nil
}

// VerifyOTP checks a submitted code. Attempts are counted before the
// comparison, so a flood of guesses burns the ceiling even when every
// guess is wrong.
func (s *OTPService) VerifyOTP(ctx context.Context, userID, phone, code, ip string) error {
	if userID == "" {
		return fmt.Errorf("missing user: %w", ErrUnauthorized)
	}
	if !phonePattern.MatchString(phone) {
		return fmt.Errorf("phone must be E.164: %w", ErrInvalidInput)
	}
	if len(code) != s.config.OTP.CodeLength {
		return fmt.Errorf("code must be %d digits: %w", s.config.OTP.CodeLength, ErrInvalidInput)
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return fmt.Errorf("code must be numeric: %w", ErrInvalidInput)
		}
	}

	if err := s.limiter.Allow(ctx, ActionVerifyOTP, userID, ip); err != nil {
		return err
	}

	phoneHash := encryption.HashIdentifier(phone)

	acquired, err := s.locker.AcquireLock(ctx, phoneHash, 10*time.Second)
	if err != nil {
		return fmt.Errorf("failed to acquire verify lock: %w", err)
	}
	if !acquired {
		return fmt.Errorf("concurrent verify in progress: %w", ErrTooManyRequests)
	}
	defer s.locker.ReleaseLock(ctx, phoneHash)

	active, err := s.codes.GetCode(ctx, phoneHash)
	if err != nil {
		return fmt.Errorf("failed to load active code: %w", err)
	}
	if active == nil || active.UserID != userID {
		record, err := s.store.GetPhoneVerification(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to load phone record: %w", err)
		}
		if record != nil && !record.Verified && record.PhoneHash == phoneHash {
			return fmt.Errorf("code expired: %w", ErrExpired)
		}
		return fmt.Errorf("no active code for phone: %w", ErrNotFound)
	}

	now := time.Now().UTC()
	if now.After(active.ExpiresAt) {
		return fmt.Errorf("code expired: %w", ErrExpired)
	}

	attempts, err := s.codes.IncrementAttempts(ctx, phoneHash, s.config.OTP.Expiry)
	if err != nil {
		return fmt.Errorf("failed to count attempt: %w", err)
	}
	// The exhausted code stays in place until it expires or a fresh send
	// supersedes it, so further guesses keep hitting the ceiling instead of
	// learning the code is gone.
	if attempts > s.config.OTP.MaxAttempts {
		return fmt.Errorf("code invalidated after %d attempts: %w",
			s.config.OTP.MaxAttempts, ErrAttemptsExceeded)
	}

	match, err := s.hasher.VerifyOTP(code, &hashing.HashResult{
		Hash:          active.CodeHash,
		Salt:          active.Salt,
		PepperVersion: active.PepperVersion,
		Algorithm:     active.Algorithm,
	})
	if err != nil {
		return fmt.Errorf("failed to verify code: %w", err)
	}
	if !match {
		return fmt.Errorf("wrong code: %w", ErrCodeMismatch)
	}

	if err := s.store.MarkPhoneVerified(ctx, userID, now); err != nil {
		return fmt.Errorf("failed to mark phone verified: %w", err)
	}
	if err := s.codes.DeleteCode(ctx, phoneHash); err != nil {
		util.Warn("Failed to delete consumed code", util.ErrorField(err))
	}

	return s.audit(ctx, userID, models.AuditOTPVerified, userID, ip, map[string]string{
		"phone_masked": util.MaskPhone(phone),
	})
}

// Status reports the user's phone verification state.
func (s *OTPService) Status(ctx context.Context, userID string) (*PhoneStatus, error) {
	if userID == "" {
		return nil, fmt.Errorf("missing user: %w", ErrUnauthorized)
	}

	record, err := s.store.GetPhoneVerification(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load phone record: %w", err)
	}

	status := &PhoneStatus{
		Status:    models.PhoneStatusNone,
		SendsLeft: s.limiter.Remaining(ctx, ActionSendOTP, userID),
	}
	if record == nil {
		return status, nil
	}

	status.PhoneMasked = record.PhoneMasked
	if record.Verified {
		status.Status = models.PhoneStatusVerified
		status.VerifiedAt = record.VerifiedAt
	} else {
		status.Status = models.PhoneStatusPending
	}
	return status, nil
}

func (s *OTPService) generateCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < s.config.OTP.CodeLength; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", s.config.OTP.CodeLength, n), nil
}

func (s *OTPService) audit(ctx context.Context, userID, action, performedBy, ip string, details map[string]string) error {
	payload, _ := json.Marshal(details)
	now := time.Now().UTC()
	entry := &models.AuditLogEntry{
		ID:          uuid.New().String(),
		DateBucket:  s.bucketing.GetDateBucket(now),
		UserID:      userID,
		Action:      action,
		PerformedBy: performedBy,
		Details:     string(payload),
		IPAddress:   ip,
		CreatedAt:   now,
	}
	if err := s.store.AppendAudit(ctx, entry); err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	if err := s.indexer.Index(ctx, entry); err != nil {
		util.Warn("Audit index failed", util.String("action", action), util.ErrorField(err))
	}
	return nil
}
