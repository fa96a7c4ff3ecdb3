package denylist

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Denylist of revoked access token ids (jti) backed by redis
// Entry lives as long as the token would be valid
// Nil redis client disables it: nothing is ever revoked
type Denylist struct {
	redis redis.UniversalClient
	now   func() time.Time
}

func New(client redis.UniversalClient) *Denylist {
	return &Denylist{redis: client, now: time.Now}
}

func (d *Denylist) Enabled() bool {
	return d.redis != nil
}

// Revoke token until it expires. Already expired token is skipped
func (d *Denylist) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	if d.redis == nil {
		return nil
	}

	ttl := expiresAt.Sub(d.now())
	if ttl <= 0 {
		return nil
	}

	if err := d.redis.Set(ctx, denyKey(tokenID), 1, ttl).Err(); err != nil {
		return fmt.Errorf("redis error: %w", err)
	}

	return nil
}

func (d *Denylist) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	if d.redis == nil {
		return false, nil
	}

	n, err := d.redis.Exists(ctx, denyKey(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis error: %w", err)
	}

	return n > 0, nil
}

func denyKey(tokenID string) string {
	return "deny:" + tokenID
}
