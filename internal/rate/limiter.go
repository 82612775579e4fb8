package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds limiter tuning parameters.
type Config struct {
	MaxFailedSignIns int
	Cooldown         time.Duration
	Prefix           string
	Namespace        string
}

// Limiter counts failed sign-ins per username in fixed Redis windows.
// A nil Limiter allows everything.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// Check returns ErrRateLimited when username has used up its failure
// budget for the current window.
func (l *Limiter) Check(ctx context.Context, username string) error {
	if l == nil {
		return nil
	}
	count, err := l.Failures(ctx, username)
	if err != nil {
		return err
	}
	if count >= l.config.MaxFailedSignIns {
		return ErrRateLimited
	}
	return nil
}

// RecordFailure counts one failed sign-in and returns the new count.
// It returns ErrRateLimited together with the count once the budget is
// used up.
func (l *Limiter) RecordFailure(ctx context.Context, username string) (int, error) {
	if l == nil {
		return 0, nil
	}
	count, err := l.incrementWithTTL(ctx, l.key(username), l.config.Cooldown)
	if err != nil {
		return 0, err
	}
	if count >= int64(l.config.MaxFailedSignIns) {
		return int(count), ErrRateLimited
	}
	return int(count), nil
}

// Reset clears the failure counter. Called after a successful sign-in.
func (l *Limiter) Reset(ctx context.Context, username string) error {
	if l == nil {
		return nil
	}
	if err := l.redis.Del(ctx, l.key(username)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Failures returns the current failure count for username. Missing keys
// return zero.
func (l *Limiter) Failures(ctx context.Context, username string) (int, error) {
	if l == nil {
		return 0, nil
	}
	count, err := l.redis.Get(ctx, l.key(username)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

func (l *Limiter) key(username string) string {
	return l.config.Prefix + ":" + l.config.Namespace + ":" + username
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}
