package device

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	fieldDeviceKey      = "dk"
	fieldDeviceGroupKey = "dgk"
	fieldCreatedAt      = "ca"
)

// RedisStore keeps one hash per user under prefix:namespace:username.
// The namespace is usually the user pool and app client pair so several
// pools can share one Redis.
type RedisStore struct {
	redis     redis.UniversalClient
	prefix    string
	namespace string
	ttl       time.Duration
}

// NewRedisStore creates a RedisStore. A zero ttl keeps entries until deleted.
func NewRedisStore(rdb redis.UniversalClient, prefix, namespace string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "srpdev"
	}
	return &RedisStore{
		redis:     rdb,
		prefix:    prefix,
		namespace: normalizeNamespace(namespace),
		ttl:       ttl,
	}
}

func normalizeNamespace(ns string) string {
	if ns == "" {
		return "0"
	}
	return ns
}

func (s *RedisStore) key(username string) string {
	return s.prefix + ":" + s.namespace + ":" + username
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, username string) (*Metadata, error) {
	fields, err := s.redis.HGetAll(ctx, s.key(username)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(fields) == 0 || fields[fieldDeviceKey] == "" {
		return nil, nil
	}

	md := &Metadata{
		DeviceKey:      fields[fieldDeviceKey],
		DeviceGroupKey: fields[fieldDeviceGroupKey],
	}
	if raw := fields[fieldCreatedAt]; raw != "" {
		unix, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("device: corrupt created_at for %q: %w", username, err)
		}
		md.CreatedAt = time.Unix(unix, 0).UTC()
	}
	return md, nil
}

// Put implements Store. The hash is replaced as a whole.
func (s *RedisStore) Put(ctx context.Context, username string, md *Metadata) error {
	if err := validate(md); err != nil {
		return err
	}
	createdAt := md.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	key := s.key(username)
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			fieldDeviceKey, md.DeviceKey,
			fieldDeviceGroupKey, md.DeviceGroupKey,
			fieldCreatedAt, strconv.FormatInt(createdAt.Unix(), 10),
		)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, username string) error {
	if err := s.redis.Del(ctx, s.key(username)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *RedisStore) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}
