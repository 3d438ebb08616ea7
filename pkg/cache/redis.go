package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps entries in Redis so several gateway instances share one
// cache. Each entry is a JSON string whose Redis TTL is set to its
// retention, so Redis purges expired entries itself and Sweep has nothing
// to do.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
}

// RedisStoreOption configures a RedisStore.
type RedisStoreOption func(*RedisStore)

// WithRedisPrefix sets the key prefix. Default: "conduit:cache".
func WithRedisPrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) {
		if p := strings.Trim(prefix, ":"); p != "" {
			s.prefix = p
		}
	}
}

// NewRedisStore creates a store on an existing client.
func NewRedisStore(rdb redis.UniversalClient, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{rdb: rdb, prefix: "conduit:cache"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) key(fingerprint string) string {
	return s.prefix + ":" + fingerprint
}

// Get loads the entry for fingerprint.
func (s *RedisStore) Get(ctx context.Context, fingerprint string) (*Entry, error) {
	data, err := s.rdb.Get(ctx, s.key(fingerprint)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cache entry: %w", err)
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to decode cache entry: %w", err)
	}
	return &e, nil
}

// Set stores entry with a Redis TTL equal to its remaining retention.
func (s *RedisStore) Set(ctx context.Context, entry *Entry) error {
	if entry == nil || entry.Fingerprint == "" {
		return ErrInvalidEntry
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}

	var expiration time.Duration
	if !entry.RetainUntil.IsZero() {
		expiration = time.Until(entry.RetainUntil)
		if expiration <= 0 {
			return s.Delete(ctx, entry.Fingerprint)
		}
	}

	if err := s.rdb.Set(ctx, s.key(entry.Fingerprint), data, expiration).Err(); err != nil {
		return fmt.Errorf("failed to save cache entry: %w", err)
	}
	return nil
}

// Delete removes the entry for fingerprint.
func (s *RedisStore) Delete(ctx context.Context, fingerprint string) error {
	if err := s.rdb.Del(ctx, s.key(fingerprint)).Err(); err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// Sweep is a no-op; Redis expires entries on its own.
func (s *RedisStore) Sweep(ctx context.Context, now time.Time, limit int) (int, error) {
	return 0, nil
}

// Len counts the keys under the prefix with SCAN.
func (s *RedisStore) Len(ctx context.Context) (int, error) {
	n := 0
	iter := s.rdb.Scan(ctx, 0, s.prefix+":*", 500).Iterator()
	for iter.Next(ctx) {
		n++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("failed to count cache entries: %w", err)
	}
	return n, nil
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
