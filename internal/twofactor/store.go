// Package twofactor manages the email second factor: enabling it per
// account, issuing short-lived challenges during login, and verifying
// the emailed codes against an attempt budget.
package twofactor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	challengePrefix = "twofactor:"
	attemptsPrefix  = "twofactor:attempts:"
)

// consumeRetries bounds the optimistic transaction retries when two
// requests race to consume the same challenge.
const consumeRetries = 3

// ErrNotFound is returned when no challenge exists for a temp token.
var ErrNotFound = errors.New("challenge not found")

// Challenge is the pending second-factor state between the credential
// check and code verification. Only a hash of the code is stored.
type Challenge struct {
	AccountID     int64     `json:"account_id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	CodeHash      string    `json:"code_hash"`
	CodeExpiresAt time.Time `json:"code_expires_at"`
	DeviceID      string    `json:"device_id"`
	IssuedAt      time.Time `json:"issued_at"`
}

// Store persists challenges and their attempt counters.
type Store interface {
	// Save creates the challenge and resets any previous attempt counter
	// for the token.
	Save(ctx context.Context, token string, ch *Challenge, ttl time.Duration) error

	Get(ctx context.Context, token string) (*Challenge, error)

	// ReplaceCode swaps the code hash and code expiry inside the existing
	// record without touching the challenge TTL.
	ReplaceCode(ctx context.Context, token, codeHash string, codeExpiresAt time.Time) error

	// IncrAttempts bumps the attempt counter and returns the new count.
	IncrAttempts(ctx context.Context, token string, ttl time.Duration) (int, error)

	// Consume atomically removes the challenge and returns it. When two
	// requests race, exactly one gets the challenge; the loser gets
	// ErrNotFound.
	Consume(ctx context.Context, token string) (*Challenge, error)

	// Delete removes the challenge and its attempt counter.
	Delete(ctx context.Context, token string) error
}

type redisStore struct {
	client *redis.Client
}

// NewStore creates a Redis-backed challenge store.
func NewStore(client *redis.Client) Store {
	return &redisStore{client: client}
}

func (s *redisStore) Save(ctx context.Context, token string, ch *Challenge, ttl time.Duration) error {
	data, err := json.Marshal(ch)
	if err != nil {
		return fmt.Errorf("encoding challenge: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, challengePrefix+token, data, ttl)
	pipe.Del(ctx, attemptsPrefix+token)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("saving challenge: %w", err)
	}
	return nil
}

func (s *redisStore) Get(ctx context.Context, token string) (*Challenge, error) {
	data, err := s.client.Get(ctx, challengePrefix+token).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading challenge: %w", err)
	}
	var ch Challenge
	if err := json.Unmarshal(data, &ch); err != nil {
		return nil, fmt.Errorf("decoding challenge: %w", err)
	}
	return &ch, nil
}

func (s *redisStore) ReplaceCode(ctx context.Context, token, codeHash string, codeExpiresAt time.Time) error {
	key := challengePrefix + token
	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			return err
		}
		var ch Challenge
		if err := json.Unmarshal(data, &ch); err != nil {
			return fmt.Errorf("decoding challenge: %w", err)
		}
		ch.CodeHash = codeHash
		ch.CodeExpiresAt = codeExpiresAt

		updated, err := json.Marshal(&ch)
		if err != nil {
			return fmt.Errorf("encoding challenge: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, redis.KeepTTL)
			return nil
		})
		return err
	}

	for i := 0; i < consumeRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("replacing challenge code: %w", err)
	}
	return fmt.Errorf("replacing challenge code: too many conflicts")
}

func (s *redisStore) IncrAttempts(ctx context.Context, token string, ttl time.Duration) (int, error) {
	key := attemptsPrefix + token
	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("incrementing attempts: %w", err)
	}
	if count == 1 {
		if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("setting attempts ttl: %w", err)
		}
	}
	return int(count), nil
}

func (s *redisStore) Consume(ctx context.Context, token string) (*Challenge, error) {
	key := challengePrefix + token
	var ch *Challenge

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			return err
		}
		var parsed Challenge
		if err := json.Unmarshal(data, &parsed); err != nil {
			return fmt.Errorf("decoding challenge: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.Del(ctx, attemptsPrefix+token)
			return nil
		})
		if err != nil {
			return err
		}
		ch = &parsed
		return nil
	}

	for i := 0; i < consumeRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return ch, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("consuming challenge: %w", err)
	}
	return nil, ErrNotFound
}

func (s *redisStore) Delete(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, challengePrefix+token, attemptsPrefix+token).Err(); err != nil {
		return fmt.Errorf("deleting challenge: %w", err)
	}
	return nil
}
