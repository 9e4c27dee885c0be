// Package rediscache holds positive revocation markers in Redis so that
// replicas can answer "is this token revoked" without a database round trip.
package rediscache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Poneaswaran/College-Management-System-Backend/config"
)

const keyPrefix = "cms:revoked:"

// NewClient creates a Redis client and verifies it answers.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("rediscache: ping: %w", err)
	}

	return client, nil
}

// RevocationCache stores one key per revoked token id, expiring with the token.
// Only revocations are cached; a miss says nothing and callers must ask the ledger.
type RevocationCache struct {
	client *redis.Client
	now    func() time.Time
}

// NewRevocationCache creates a cache over client
func NewRevocationCache(client *redis.Client) *RevocationCache {
	return &RevocationCache{client: client, now: time.Now}
}

// MarkRevoked records id until expiresAt. Already expired ids are skipped.
func (c *RevocationCache) MarkRevoked(ctx context.Context, id uuid.UUID, expiresAt time.Time) error {
	ttl := expiresAt.Sub(c.now())
	if ttl <= 0 {
		return nil
	}
	if err := c.client.Set(ctx, key(id), "1", ttl).Err(); err != nil {
		return fmt.Errorf("rediscache: mark revoked: %w", err)
	}
	return nil
}

// AnyRevoked reports whether a marker exists for any of ids
func (c *RevocationCache) AnyRevoked(ctx context.Context, ids ...uuid.UUID) (bool, error) {
	if len(ids) == 0 {
		return false, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = key(id)
	}

	n, err := c.client.Exists(ctx, keys...).Result()
	if err != nil {
		return false, fmt.Errorf("rediscache: exists: %w", err)
	}
	return n > 0, nil
}

// Ping checks connectivity for readiness probes
func (c *RevocationCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func key(id uuid.UUID) string {
	return keyPrefix + id.String()
}
