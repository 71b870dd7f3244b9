package redis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"kyc-service/internal/client"
	"kyc-service/internal/util"
)

const (
	otpPrefix        = "otp:"
	otpAttemptPrefix = "otp_attempts:"
	resetPrefix      = "pwd_reset:"
)

// OTPCache keeps one-time codes in Redis with their TTL instead of on the
// user row, so expiry needs no sweeper and a restart cannot leak stale
// codes. Keys are per-email.
type OTPCache struct {
	client *client.RedisClient
}

func NewOTPCache(client *client.RedisClient) *OTPCache {
	return &OTPCache{client: client}
}

func (c *OTPCache) SetOTP(ctx context.Context, email, code string, ttl time.Duration) error {
	key := otpPrefix + email
	if err := c.client.Set(ctx, key, code, ttl); err != nil {
		util.Error("Failed to set OTP in cache", zap.String("email", email), zap.Error(err))
		return fmt.Errorf("failed to set OTP in cache: %w", err)
	}
	util.Debug("OTP cached", zap.String("email", email), zap.Duration("ttl", ttl))
	return nil
}

func (c *OTPCache) GetOTP(ctx context.Context, email string) (string, error) {
	code, err := c.client.Get(ctx, otpPrefix+email)
	if err != nil {
		return "", fmt.Errorf("no OTP found for email: %s", email)
	}
	return code, nil
}

func (c *OTPCache) DeleteOTP(ctx context.Context, email string) error {
	if err := c.client.Del(ctx, otpPrefix+email); err != nil {
		util.Error("Failed to delete OTP from cache", zap.String("email", email), zap.Error(err))
		return fmt.Errorf("failed to delete OTP from cache: %w", err)
	}
	return nil
}

func (c *OTPCache) IncrementAttempts(ctx context.Context, email string, ttl time.Duration) (int, error) {
	count, err := c.client.IncrWithExpire(ctx, otpAttemptPrefix+email, ttl)
	if err != nil {
		return 0, fmt.Errorf("failed to increment OTP attempts: %w", err)
	}
	return int(count), nil
}

func (c *OTPCache) SetResetCode(ctx context.Context, email, code string, ttl time.Duration) error {
	if err := c.client.Set(ctx, resetPrefix+email, code, ttl); err != nil {
		util.Error("Failed to set reset code in cache", zap.String("email", email), zap.Error(err))
		return fmt.Errorf("failed to set reset code in cache: %w", err)
	}
	return nil
}

func (c *OTPCache) GetResetCode(ctx context.Context, email string) (string, error) {
	code, err := c.client.Get(ctx, resetPrefix+email)
	if err != nil {
		return "", fmt.Errorf("no reset code found for email: %s", email)
	}
	return code, nil
}

func (c *OTPCache) DeleteResetCode(ctx context.Context, email string) error {
	return c.client.Del(ctx, resetPrefix+email)
}
