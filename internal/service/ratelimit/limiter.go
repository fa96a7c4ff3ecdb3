package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nkiryanov/courseauth/internal/apperrors"
	"github.com/nkiryanov/courseauth/internal/logger"
)

const (
	defaultMaxAttempts = 5
	defaultCooldown    = 15 * time.Minute
)

type Config struct {
	// Failed logins allowed within one window
	MaxAttempts int

	// Window length, starts with the first failed attempt
	Cooldown time.Duration
}

// Fixed window limiter of failed logins per email backed by redis
// Nil redis client disables it: every login is allowed
// Redis errors are logged and login is allowed too
type LoginLimiter struct {
	redis  redis.UniversalClient
	config Config
	logger logger.Logger
}

func New(client redis.UniversalClient, cfg Config, l logger.Logger) *LoginLimiter {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = defaultCooldown
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &LoginLimiter{
		redis:  client,
		config: cfg,
		logger: l,
	}
}

// Check returns apperrors.ErrLoginRateLimited when the email used all attempts of the window
func (l *LoginLimiter) Check(ctx context.Context, email string) error {
	if l.redis == nil {
		return nil
	}

	count, err := l.redis.Get(ctx, loginKey(email)).Int64()
	switch {
	case errors.Is(err, redis.Nil):
		return nil
	case err != nil:
		l.logger.Warn("login limiter unavailable, allow login", "error", err)
		return nil
	case count >= int64(l.config.MaxAttempts):
		return apperrors.ErrLoginRateLimited
	default:
		return nil
	}
}

// Fail records one failed login
func (l *LoginLimiter) Fail(ctx context.Context, email string) {
	if l.redis == nil {
		return
	}

	if _, err := l.incrementWithTTL(ctx, loginKey(email)); err != nil {
		l.logger.Warn("login limiter could not count failed attempt", "error", err)
	}
}

// Reset forgets failed logins after successful one
func (l *LoginLimiter) Reset(ctx context.Context, email string) {
	if l.redis == nil {
		return
	}

	if err := l.redis.Del(ctx, loginKey(email)).Err(); err != nil {
		l.logger.Warn("login limiter could not reset counter", "error", err)
	}
}

// Attempts returns failed logins counted in current window
func (l *LoginLimiter) Attempts(ctx context.Context, email string) (int, error) {
	if l.redis == nil {
		return 0, nil
	}

	count, err := l.redis.Get(ctx, loginKey(email)).Int64()
	switch {
	case errors.Is(err, redis.Nil):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("redis error: %w", err)
	default:
		return int(count), nil
	}
}

func (l *LoginLimiter) incrementWithTTL(ctx context.Context, key string) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis error: %w", err)
	}

	// Window starts with the first hit
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.Cooldown).Err(); err != nil {
			return 0, fmt.Errorf("redis error: %w", err)
		}
	}

	return count, nil
}

func loginKey(email string) string {
	return "login:" + strings.ToLower(strings.TrimSpace(email))
}
