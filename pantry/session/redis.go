// session/redis.go
package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key prefixes. Stamps live under their own prefix so they expire
// independently of the session record.
const (
	DefaultSessionPrefix = "contact:session:"
	DefaultStampPrefix   = "contact:last:"
)

// ConnectRedisURL parses a redis:// or rediss:// URL, connects, and pings.
func ConnectRedisURL(ctx context.Context, rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("session: invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("session: redis ping %s: %w", opts.Addr, err)
	}
	return client, nil
}

// RedisStore implements Redis-backed session storage. Records are JSON
// with a TTL matching the session expiry.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
	owned     bool
}

// NewRedisStore wraps an existing client. Close does not close a client
// that is shared; pass owned=true when the store should close it.
func NewRedisStore(client redis.UniversalClient, keyPrefix string, owned bool) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = DefaultSessionPrefix
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix, owned: owned}
}

func (s *RedisStore) key(id string) string {
	return s.keyPrefix + id
}

// Load retrieves session data by ID.
func (s *RedisStore) Load(ctx context.Context, id string) (*Record, error) {
	raw, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var data Record
	if err := data.UnmarshalBinary(raw); err != nil {
		return nil, err
	}
	if time.Now().After(data.ExpiresAt) {
		return nil, ErrExpired
	}
	return &data, nil
}

// Save stores session data with a TTL until its expiry. Already-expired
// data is not written.
func (s *RedisStore) Save(ctx context.Context, data *Record) error {
	ttl := time.Until(data.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	return s.client.Set(ctx, s.key(data.ID), data, ttl).Err()
}

// Delete removes a session by ID.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, s.key(id)).Err()
}

// Close closes the Redis connection when the store owns it.
func (s *RedisStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}

// RedisStamps stores last-submission times as Unix milliseconds.
type RedisStamps struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
	owned     bool
}

// NewRedisStamps wraps client. Entries expire ttl after each write.
func NewRedisStamps(client redis.UniversalClient, keyPrefix string, ttl time.Duration, owned bool) *RedisStamps {
	if keyPrefix == "" {
		keyPrefix = DefaultStampPrefix
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStamps{client: client, keyPrefix: keyPrefix, ttl: ttl, owned: owned}
}

// Get returns the recorded time for id.
func (s *RedisStamps) Get(ctx context.Context, id string) (time.Time, bool, error) {
	v, err := s.client.Get(ctx, s.keyPrefix+id).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("session: get stamp: %w", err)
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("session: corrupt stamp %q: %w", v, err)
	}
	return time.UnixMilli(ms), true, nil
}

// Set records at for id.
func (s *RedisStamps) Set(ctx context.Context, id string, at time.Time) error {
	if err := s.client.Set(ctx, s.keyPrefix+id, at.UnixMilli(), s.ttl).Err(); err != nil {
		return fmt.Errorf("session: set stamp: %w", err)
	}
	return nil
}

// Ping checks the Redis connection.
func (s *RedisStamps) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection when the stamp store owns it.
func (s *RedisStamps) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}
