package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"verification-service/internal/client"
	"verification-service/internal/models"
	"verification-service/internal/util"
)

const (
	otpPrefix        = "otp:"
	otpAttemptPrefix = "otp_attempts:"
	otpLockPrefix    = "otp_lock:"
)

// OTPCache keeps the active one-time code per phone hash. The key TTL is the
// code lifetime; writing over an existing key supersedes the prior code.
type OTPCache struct {
	client *client.RedisClient
}

func NewOTPCache(client *client.RedisClient) *OTPCache {
	return &OTPCache{client: client}
}

func (c *OTPCache) PutCode(ctx context.Context, phoneHash string, code *models.ActiveCode, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	payload, err := json.Marshal(code)
	if err != nil {
		return fmt.Errorf("failed to marshal active code: %w", err)
	}

	key := otpPrefix + phoneHash
	if err := c.client.Set(ctx, key, payload, ttl); err != nil {
		util.Error("Failed to cache active code",
			zap.String("phone_hash", phoneHash),
			zap.Duration("ttl", ttl),
			zap.Error(err))
		return fmt.Errorf("failed to cache active code: %w", err)
	}

	// A superseded code starts its attempt count from zero
	if err := c.ResetAttempts(ctx, phoneHash); err != nil {
		return err
	}

	util.Debug("Active code cached",
		zap.String("phone_hash", phoneHash),
		zap.Duration("ttl", ttl))
	return nil
}

// GetCode returns the active code, or nil when none exists (absent or expired).
func (c *OTPCache) GetCode(ctx context.Context, phoneHash string) (*models.ActiveCode, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	key := otpPrefix + phoneHash

	payload, err := c.client.Get(ctx, key)
	if err != nil {
		if strings.Contains(err.Error(), "key not found") {
			return nil, nil
		}
		util.Error("Failed to get active code",
			zap.String("phone_hash", phoneHash),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get active code: %w", err)
	}

	var code models.ActiveCode
	if err := json.Unmarshal([]byte(payload), &code); err != nil {
		return nil, fmt.Errorf("invalid active code payload: %w", err)
	}

	return &code, nil
}

func (c *OTPCache) DeleteCode(ctx context.Context, phoneHash string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	keys := []string{otpPrefix + phoneHash, otpAttemptPrefix + phoneHash}
	if err := c.client.Del(ctx, keys...); err != nil {
		util.Error("Failed to delete active code",
			zap.String("phone_hash", phoneHash),
			zap.Error(err))
		return fmt.Errorf("failed to delete active code: %w", err)
	}

	util.Debug("Active code deleted", zap.String("phone_hash", phoneHash))
	return nil
}

// IncrementAttempts bumps the verification attempt counter. The counter TTL
// matches the code TTL so stale counters never outlive their code.
func (c *OTPCache) IncrementAttempts(ctx context.Context, phoneHash string, ttl time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	key := otpAttemptPrefix + phoneHash

	count, err := c.client.IncrWithExpire(ctx, key, ttl)
	if err != nil {
		util.Error("Failed to increment attempts",
			zap.String("phone_hash", phoneHash),
			zap.Error(err))
		return 0, fmt.Errorf("failed to increment attempts: %w", err)
	}

	return int(count), nil
}

func (c *OTPCache) ResetAttempts(ctx context.Context, phoneHash string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := c.client.Del(ctx, otpAttemptPrefix+phoneHash); err != nil {
		util.Error("Failed to reset attempts",
			zap.String("phone_hash", phoneHash),
			zap.Error(err))
		return fmt.Errorf("failed to reset attempts: %w", err)
	}
	return nil
}

// AcquireLock serializes concurrent issue/verify calls for one phone.
func (c *OTPCache) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	ok, err := c.client.SetNX(ctx, otpLockPrefix+key, "locked", ttl)
	if err != nil {
		util.Error("Failed to acquire lock",
			zap.String("key", key),
			zap.Error(err))
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	return ok, nil
}

func (c *OTPCache) ReleaseLock(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := c.client.Del(ctx, otpLockPrefix+key); err != nil {
		util.Error("Failed to release lock",
			zap.String("key", key),
			zap.Error(err))
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}
