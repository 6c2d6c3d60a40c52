package repository

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-assess/internal/config"
)

// TokenDenylist records revoked token ids in Redis until they expire.
type TokenDenylist struct {
	rdb *redis.Client
}

// NewTokenDenylist creates a new TokenDenylist.
func NewTokenDenylist(rdb *redis.Client) *TokenDenylist {
	return &TokenDenylist{rdb: rdb}
}

// Revoke marks jti as revoked for ttl.
func (d *TokenDenylist) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	return d.rdb.Set(ctx, config.CacheKey.RevokedTokenKey(jti), 1, ttl).Err()
}

// IsRevoked reports whether jti was revoked.
func (d *TokenDenylist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := d.rdb.Exists(ctx, config.CacheKey.RevokedTokenKey(jti)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
