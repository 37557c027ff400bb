// Package captcha issues and verifies image captcha challenges backing
// the login flow. Challenge answers live in Redis keyed by a
// client-supplied key and are consumed on first verification attempt.
package captcha

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "captcha:"

// Store persists captcha answers with a TTL.
type Store interface {
	// Save stores the answer under the challenge key, replacing any
	// previous challenge for the same key.
	Save(ctx context.Context, key, answer string, ttl time.Duration) error

	// Consume atomically fetches and deletes the stored answer. Returns
	// ok=false when no challenge exists for the key.
	Consume(ctx context.Context, key string) (answer string, ok bool, err error)
}

type redisStore struct {
	client *redis.Client
}

// NewStore returns a Redis-backed captcha store.
func NewStore(client *redis.Client) Store {
	return &redisStore{client: client}
}

func (s *redisStore) Save(ctx context.Context, key, answer string, ttl time.Duration) error {
	if err := s.client.Set(ctx, keyPrefix+key, answer, ttl).Err(); err != nil {
		return fmt.Errorf("saving captcha: %w", err)
	}
	return nil
}

func (s *redisStore) Consume(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.GetDel(ctx, keyPrefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("consuming captcha: %w", err)
	}
	return val, true, nil
}
