package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache keeps role permission sets in Redis. It is a read-through helper: a
// miss or a Redis failure falls back to Postgres, never to an error.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func permissionsKey(roleID int64) string {
	return fmt.Sprintf("rbac:role:%d:permissions", roleID)
}

// Get loads the cached permission set for a role.
func (c *Cache) Get(ctx context.Context, roleID int64) ([]Permission, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	payload, err := c.client.Get(ctx, permissionsKey(roleID)).Bytes()
	if err != nil {
		return nil, false
	}
	var perms []Permission
	if err := json.Unmarshal(payload, &perms); err != nil {
		return nil, false
	}
	return perms, true
}

// Set stores the permission set for a role.
func (c *Cache) Set(ctx context.Context, roleID int64, perms []Permission) error {
	if c == nil || c.client == nil {
		return nil
	}
	payload, err := json.Marshal(perms)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, permissionsKey(roleID), payload, c.ttl).Err()
}

// Invalidate drops the cached set after a permission replacement or role
// mutation.
func (c *Cache) Invalidate(ctx context.Context, roleID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	err := c.client.Del(ctx, permissionsKey(roleID)).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}
