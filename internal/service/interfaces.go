package service

import (
	"context"
	"errors"
	"time"

	"verification-service/internal/models"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrExpired           = errors.New("code expired")
	ErrCodeMismatch      = errors.New("code mismatch")
	ErrAttemptsExceeded  = errors.New("attempt limit exceeded")
	ErrTooManyRequests   = errors.New("too many requests")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrDependencyFailure = errors.New("dependency failure")
)

// OTPStore holds the active one-time code per phone hash. Writing over an
// existing entry supersedes the prior code and resets its attempt counter.
type OTPStore interface {
	PutCode(ctx context.Context, phoneHash string, code *models.ActiveCode, ttl time.Duration) error
	// GetCode returns nil when no active code exists.
	GetCode(ctx context.Context, phoneHash string) (*models.ActiveCode, error)
	DeleteCode(ctx context.Context, phoneHash string) error
	IncrementAttempts(ctx context.Context, phoneHash string, ttl time.Duration) (int, error)
	ResetAttempts(ctx context.Context, phoneHash string) error
}

// KeyLocker serializes operations on a single key across instances.
type KeyLocker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key string) error
}

// CounterStore backs the fixed-window rate limiter.
type CounterStore interface {
	IncrementCounter(ctx context.Context, key string, ttl time.Duration) (int, error)
	GetCounter(ctx context.Context, key string) (int, error)
	ResetCounter(ctx context.Context, key string) error
}

// AbuseLocker is an optional CounterStore capability: a short deny-all lock
// for identities that keep hammering an exhausted quota.
type AbuseLocker interface {
	SetTemporaryLock(ctx context.Context, key string, ttl time.Duration) error
	IsLocked(ctx context.Context, key string) (bool, error)
}

// SlidingLimiter is an optional CounterStore capability: a rolling-window
// admission check used for IP identities, where fixed windows are too easy
// to straddle.
type SlidingLimiter interface {
	SlidingWindowRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, int, error)
}

// VerificationStore persists phone verifications, seller submissions, and the
// audit log. CreateSubmission and ApplyReview write the record and its audit
// entry as one atomic unit; if the audit write cannot happen, neither does
// the transition.
type VerificationStore interface {
	UpsertPhoneVerification(ctx context.Context, pv *models.PhoneVerification) error
	GetPhoneVerification(ctx context.Context, userID string) (*models.PhoneVerification, error)
	// GetPhoneOwner returns the owning user id for a phone hash, or "".
	GetPhoneOwner(ctx context.Context, phoneHash string) (string, error)
	MarkPhoneVerified(ctx context.Context, userID string, at time.Time) error

	CreateSubmission(ctx context.Context, sub *models.SellerVerification, audit *models.AuditLogEntry) error
	GetSubmission(ctx context.Context, id string) (*models.SellerVerification, error)
	GetLatestSubmissionByUser(ctx context.Context, userID string) (*models.SellerVerification, error)
	GetPendingSubmissionByUser(ctx context.Context, userID string) (*models.SellerVerification, error)
	// FindNationalIDOwner returns the user id that already submitted the
	// digest, or "".
	FindNationalIDOwner(ctx context.Context, digest string) (string, error)
	ListPending(ctx context.Context, limit int) ([]*models.SellerVerification, error)
	ApplyReview(ctx context.Context, sub *models.SellerVerification, audit *models.AuditLogEntry) error
	ListTerminalOlderThan(ctx context.Context, status string, cutoff time.Time, limit int) ([]*models.SellerVerification, error)
	DeleteSubmission(ctx context.Context, sub *models.SellerVerification) error

	AppendAudit(ctx context.Context, entry *models.AuditLogEntry) error
	ListAuditByUser(ctx context.Context, userID string, limit int) ([]*models.AuditLogEntry, error)
}

// SMSDispatcher delivers one-time codes out of band. Dispatch failures are
// recoverable; the issued code stays valid.
type SMSDispatcher interface {
	Send(ctx context.Context, phone, message string) error
}

// ReviewNotifier tells downstream systems about review outcomes.
type ReviewNotifier interface {
	NotifyReviewed(ctx context.Context, sub *models.SellerVerification) error
}

// AuditIndexer mirrors committed audit entries into a search index,
// best-effort after commit.
type AuditIndexer interface {
	Index(ctx context.Context, entry *models.AuditLogEntry) error
}

// ArchiveSink receives audit snapshots of submissions before the retention
// sweeper purges them.
type ArchiveSink interface {
	ArchiveSubmission(ctx context.Context, sub *models.SellerVerification, trail []*models.AuditLogEntry) error
}
