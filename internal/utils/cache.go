package utils

import (
	"context"       // Context for Redis operations
	"encoding/json" // JSON encoding/decoding
	"errors"        // Redis miss detection
	"fmt"           // Key formatting
	"time"          // Time durations

	"github.com/redis/go-redis/v9" // Redis client
)

// Cache key layout
const (
	adminUsersPrefix = "admin:users:" // Paginated admin account listing
	accountPrefix    = "account:"     // Profile of one account
)

// AccountCacheKey is the cached profile of one account
func AccountCacheKey(accountID uint) string {
	return fmt.Sprintf("%s%d", accountPrefix, accountID)
}

// AdminUsersCacheKey is one page of the admin account listing
func AdminUsersCacheKey(page, limit int) string {
	return fmt.Sprintf("%s%d:%d", adminUsersPrefix, page, limit)
}

// GetCache retrieves a value from Redis and unmarshals it into dest.
// A nil client behaves like a permanent miss.
func GetCache(ctx context.Context, rdb redis.Cmdable, key string, dest any) (bool, error) {
	if rdb == nil {
		return false, nil // Cache disabled
	}
	val, err := rdb.Get(ctx, key).Result() // Get value from Redis
	if errors.Is(err, redis.Nil) {
		return false, nil // Key does not exist
	} else if err != nil {
		return false, err // Other Redis error
	}
	return true, json.Unmarshal([]byte(val), dest) // Unmarshal JSON into dest
}

// SetCache sets a value in Redis with a specified TTL
func SetCache(ctx context.Context, rdb redis.Cmdable, key string, value any, ttl time.Duration) error {
	if rdb == nil {
		return nil // Cache disabled
	}
	b, err := json.Marshal(value) // Marshal value to JSON
	if err != nil {
		return err // Return error if marshaling fails
	}
	return rdb.Set(ctx, key, b, ttl).Err() // Set value in Redis with TTL
}

// DeleteCache deletes keys from Redis
func DeleteCache(ctx context.Context, rdb redis.Cmdable, keys ...string) error {
	if rdb == nil || len(keys) == 0 {
		return nil // Nothing to delete
	}
	return rdb.Del(ctx, keys...).Err() // Delete keys from Redis
}

// DeletePrefix removes every key starting with prefix, walking the keyspace with SCAN
func DeletePrefix(ctx context.Context, rdb redis.Cmdable, prefix string) error {
	if rdb == nil {
		return nil // Cache disabled
	}
	iter := rdb.Scan(ctx, 0, prefix+"*", 100).Iterator() // Non-blocking keyspace walk
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err // Scan failed
	}
	return DeleteCache(ctx, rdb, keys...)
}

// InvalidateAccount drops every cached view that shows the account's balance or profile
func InvalidateAccount(ctx context.Context, rdb redis.Cmdable, accountID uint) error {
	if err := DeleteCache(ctx, rdb, AccountCacheKey(accountID)); err != nil {
		return err
	}
	return DeletePrefix(ctx, rdb, adminUsersPrefix) // Admin listing shows balances too
}
