package service

import (
	"context"
	"fmt"
	"time"

	"verification-service/internal/bucketing"
	"verification-service/internal/config"
	"verification-service/internal/util"
)

// Rate-limited actions. Each maps to its own quota in config.
const (
	ActionSendOTP   = "send_otp"
	ActionVerifyOTP = "verify_otp"
	ActionSubmit    = "seller_submit"
)

// RateLimiter enforces fixed-window quotas per user and per IP. When the
// counter store is unreachable the limiter denies the request; an outage
// must not become an unlimited window.
type RateLimiter struct {
	counters  CounterStore
	bucketing *bucketing.BucketingManager
	config    *config.Config
}

func NewRateLimiter(counters CounterStore, bm *bucketing.BucketingManager, cfg *config.Config) *RateLimiter {
	return &RateLimiter{
		counters:  counters,
		bucketing: bm,
		config:    cfg,
	}
}

// Allow consumes one unit of the action's quota for both identities. It
// returns ErrTooManyRequests when either quota is exhausted or the store
// cannot be reached.
func (r *RateLimiter) Allow(ctx context.Context, action, userID, ip string) error {
	limit, window := r.quotaFor(action)
	if limit <= 0 {
		return nil
	}

	userIdentity := "user:" + userID

	if locker, ok := r.counters.(AbuseLocker); ok {
		locked, err := locker.IsLocked(ctx, userIdentity)
		if err != nil {
			return r.denyClosed(action, err)
		}
		if locked {
			return fmt.Errorf("%s temporarily locked: %w", action, ErrTooManyRequests)
		}
	}

	key := r.bucketing.RateWindowKey(action, userIdentity, window)
	count, err := r.counters.IncrementCounter(ctx, key, window)
	if err != nil {
		return r.denyClosed(action, err)
	}
	if count > limit {
		// Hammering an exhausted quota earns a deny-all lock
		if locker, ok := r.counters.(AbuseLocker); ok && count > 2*limit {
			if err := locker.SetTemporaryLock(ctx, userIdentity, r.config.RateLimit.LockDuration); err != nil {
				util.Warn("Failed to set abuse lock",
					util.String("action", action),
					util.ErrorField(err),
				)
			}
		}
		return fmt.Errorf("%s quota exhausted: %w", action, ErrTooManyRequests)
	}

	if ip != "" {
		if err := r.allowIP(ctx, action, "ip:"+ip, limit, window); err != nil {
			return err
		}
	}

	return nil
}

// allowIP admits the IP identity. A rolling window is used when the store
// supports one; shared NATs straddle fixed windows too easily.
func (r *RateLimiter) allowIP(ctx context.Context, action, identity string, limit int, window time.Duration) error {
	// IP quotas run wider than user quotas; one address may serve many users
	ipLimit := limit * 10

	if sliding, ok := r.counters.(SlidingLimiter); ok {
		allowed, _, err := sliding.SlidingWindowRateLimit(ctx, action+":"+identity, ipLimit, window)
		if err != nil {
			return r.denyClosed(action, err)
		}
		if !allowed {
			return fmt.Errorf("%s quota exhausted for address: %w", action, ErrTooManyRequests)
		}
		return nil
	}

	key := r.bucketing.RateWindowKey(action, identity, window)
	count, err := r.counters.IncrementCounter(ctx, key, window)
	if err != nil {
		return r.denyClosed(action, err)
	}
	if count > ipLimit {
		return fmt.Errorf("%s quota exhausted for address: %w", action, ErrTooManyRequests)
	}
	return nil
}

// denyClosed is the fail-closed path: a broken counter store must not
// become an unlimited window.
func (r *RateLimiter) denyClosed(action string, err error) error {
	util.Warn("Rate limit store unavailable, denying request",
		util.String("action", action),
		util.ErrorField(err),
	)
	return fmt.Errorf("rate limit check failed: %w", ErrTooManyRequests)
}

// Remaining reports how much of the user's quota is left in the current
// window. Used by the status endpoint; errors degrade to zero.
func (r *RateLimiter) Remaining(ctx context.Context, action, userID string) int {
	limit, window := r.quotaFor(action)
	if limit <= 0 {
		return 0
	}

	key := r.bucketing.RateWindowKey(action, "user:"+userID, window)
	count, err := r.counters.GetCounter(ctx, key)
	if err != nil {
		return 0
	}
	if count >= limit {
		return 0
	}
	return limit - count
}

func (r *RateLimiter) quotaFor(action string) (int, time.Duration) {
	rl := r.config.RateLimit
	switch action {
	case ActionSendOTP:
		return rl.SendOTPLimit, rl.SendOTPWindow
	case ActionVerifyOTP:
		return rl.VerifyLimit, rl.VerifyWindow
	case ActionSubmit:
		return rl.SubmitLimit, rl.SubmitWindow
	default:
		return 0, 0
	}
}
