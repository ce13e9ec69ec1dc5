package service

import (
	"go.uber.org/zap"

	"verification-service/internal/bucketing"
	"verification-service/internal/config"
	"verification-service/internal/encryption"
	"verification-service/internal/hashing"
)

// Deps bundles everything the services are built from. The factory package
// decides which implementations go in; tests pass the in-memory store for
// all four store slots.
type Deps struct {
	Store    VerificationStore
	Codes    OTPStore
	Locker   KeyLocker
	Counters CounterStore

	Dispatcher SMSDispatcher
	Notifier   ReviewNotifier
	Indexer    AuditIndexer
	Archive    ArchiveSink

	Hasher        *hashing.Hasher
	EncryptionMgr *encryption.EncryptionManager
	BucketingMgr  *bucketing.BucketingManager
	Config        *config.Config
	Logger        *zap.Logger
}

// ServiceFactory creates and caches service instances.
type ServiceFactory struct {
	deps Deps

	limiter    *RateLimiter
	otpService *OTPService
	kycService *KYCService
	sweeper    *RetentionSweeper
}

func NewServiceFactory(deps Deps) *ServiceFactory {
	return &ServiceFactory{deps: deps}
}

// RateLimiter returns the shared fixed-window limiter (singleton).
func (f *ServiceFactory) RateLimiter() *RateLimiter {
	if f.limiter == nil {
		f.limiter = NewRateLimiter(f.deps.Counters, f.deps.BucketingMgr, f.deps.Config)
	}
	return f.limiter
}

// OTPService returns the phone verification service (singleton).
func (f *ServiceFactory) OTPService() *OTPService {
	if f.otpService == nil {
		f.otpService = NewOTPService(
			f.deps.Store,
			f.deps.Codes,
			f.deps.Locker,
			f.RateLimiter(),
			f.deps.Hasher,
			f.deps.Dispatcher,
			f.deps.Indexer,
			f.deps.BucketingMgr,
			f.deps.Config,
		)
	}
	return f.otpService
}

// KYCService returns the seller verification service (singleton).
func (f *ServiceFactory) KYCService() *KYCService {
	if f.kycService == nil {
		f.kycService = NewKYCService(
			f.deps.Store,
			f.deps.Locker,
			f.RateLimiter(),
			f.deps.EncryptionMgr,
			f.deps.Notifier,
			f.deps.Indexer,
			f.deps.BucketingMgr,
			f.deps.Config,
		)
	}
	return f.kycService
}

// RetentionSweeper returns the purge service (singleton).
func (f *ServiceFactory) RetentionSweeper() *RetentionSweeper {
	if f.sweeper == nil {
		f.sweeper = NewRetentionSweeper(f.deps.Store, f.deps.Archive, f.deps.Config)
	}
	return f.sweeper
}
