package account

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const failPrefix = "loginfail:"

// LockoutStore tracks consecutive credential failures per username within
// a sliding window.
type LockoutStore interface {
	// Failures returns the current failure count for the username.
	Failures(ctx context.Context, username string) (int, error)

	// RecordFailure increments the counter and returns the new count. The
	// window starts with the first failure.
	RecordFailure(ctx context.Context, username string, window time.Duration) (int, error)

	// Clear resets the counter after a successful login.
	Clear(ctx context.Context, username string) error
}

type redisLockoutStore struct {
	client *redis.Client
}

// NewLockoutStore creates a Redis-backed failure counter.
func NewLockoutStore(client *redis.Client) LockoutStore {
	return &redisLockoutStore{client: client}
}

func (s *redisLockoutStore) Failures(ctx context.Context, username string) (int, error) {
	count, err := s.client.Get(ctx, failPrefix+username).Int()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, fmt.Errorf("reading failure count: %w", err)
	}
	return count, nil
}

func (s *redisLockoutStore) RecordFailure(ctx context.Context, username string, window time.Duration) (int, error) {
	key := failPrefix + username
	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("incrementing failure count: %w", err)
	}
	if count == 1 {
		if err := s.client.Expire(ctx, key, window).Err(); err != nil {
			return 0, fmt.Errorf("setting failure window: %w", err)
		}
	}
	return int(count), nil
}

func (s *redisLockoutStore) Clear(ctx context.Context, username string) error {
	if err := s.client.Del(ctx, failPrefix+username).Err(); err != nil {
		return fmt.Errorf("clearing failure count: %w", err)
	}
	return nil
}
