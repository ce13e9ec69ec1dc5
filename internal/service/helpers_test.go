package service

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"verification-service/internal/bucketing"
	"verification-service/internal/config"
	"verification-service/internal/encryption"
	"verification-service/internal/hashing"
	"verification-service/internal/models"
	"verification-service/internal/repository/memory"
)

func testConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		Hashing: config.HashingConfig{
			Argon2MemoryCost:   1024,
			Argon2TimeCost:     1,
			Argon2Parallelism:  1,
			PepperRotationDays: 30,
		},
		OTP: config.OTPConfig{
			CodeLength:      6,
			Expiry:          5 * time.Minute,
			MaxAttempts:     3,
			DispatchTimeout: time.Second,
			DispatchRate:    50,
			DispatchBurst:   100,
		},
		RateLimit: config.RateLimitConfig{
			SendOTPLimit:  5,
			SendOTPWindow: time.Hour,
			VerifyLimit:   100,
			VerifyWindow:  time.Hour,
			SubmitLimit:   10,
			SubmitWindow:  24 * time.Hour,
			LockDuration:  15 * time.Minute,
		},
		Retention: config.RetentionConfig{
			Horizon:        90 * 24 * time.Hour,
			SweepBatchSize: 100,
			ApprovedAfter:  365 * 24 * time.Hour,
		},
		Bucketing: config.BucketingConfig{
			UserBuckets:  64,
			EventBuckets: 16,
		},
	}
}

// captureDispatcher records outbound SMS so tests can read the code back.
type captureDispatcher struct {
	phones   []string
	messages []string
}

func (d *captureDispatcher) Send(ctx context.Context, phone, message string) error {
	d.phones = append(d.phones, phone)
	d.messages = append(d.messages, message)
	return nil
}

var codePattern = regexp.MustCompile(`\d{6}`)

func (d *captureDispatcher) lastCode(t *testing.T) string {
	t.Helper()
	require.NotEmpty(t, d.messages)
	code := codePattern.FindString(d.messages[len(d.messages)-1])
	require.Len(t, code, 6)
	return code
}

type captureNotifier struct {
	reviewed []*models.SellerVerification
}

func (n *captureNotifier) NotifyReviewed(ctx context.Context, sub *models.SellerVerification) error {
	n.reviewed = append(n.reviewed, sub)
	return nil
}

type noopIndexer struct{}

func (noopIndexer) Index(ctx context.Context, entry *models.AuditLogEntry) error { return nil }

type captureArchive struct {
	archived []*models.SellerVerification
}

func (a *captureArchive) ArchiveSubmission(ctx context.Context, sub *models.SellerVerification, trail []*models.AuditLogEntry) error {
	a.archived = append(a.archived, sub)
	return nil
}

type fixture struct {
	cfg        *config.Config
	store      *memory.Store
	dispatcher *captureDispatcher
	notifier   *captureNotifier
	archive    *captureArchive
	otp        *OTPService
	kyc        *KYCService
	limiter    *RateLimiter
	sweeper    *RetentionSweeper
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := testConfig()
	store := memory.NewStore()
	bm := bucketing.NewBucketingManager(cfg)
	hasher := hashing.NewHasher(cfg)
	em := encryption.NewEncryptionManager(cfg, nil)
	dispatcher := &captureDispatcher{}
	notifier := &captureNotifier{}
	archive := &captureArchive{}
	limiter := NewRateLimiter(store, bm, cfg)

	return &fixture{
		cfg:        cfg,
		store:      store,
		dispatcher: dispatcher,
		notifier:   notifier,
		archive:    archive,
		limiter:    limiter,
		otp:        NewOTPService(store, store, store, limiter, hasher, dispatcher, noopIndexer{}, bm, cfg),
		kyc:        NewKYCService(store, store, limiter, em, notifier, noopIndexer{}, bm, cfg),
		sweeper:    NewRetentionSweeper(store, archive, cfg),
	}
}

// verifyPhone walks a user through the full send/verify flow.
func (f *fixture) verifyPhone(t *testing.T, userID, phone string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.otp.SendOTP(ctx, userID, phone, "203.0.113.1"))
	require.NoError(t, f.otp.VerifyOTP(ctx, userID, phone, f.dispatcher.lastCode(t), "203.0.113.1"))
}
