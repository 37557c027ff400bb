package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	tokenPrefix   = "session:"
	devicePrefix  = "sessdev:"
	accountPrefix = "sessacct:"
)

// revokeRetries bounds the optimistic transaction retries when revocation
// races with the record expiring.
const revokeRetries = 3

// ErrNotFound is returned when no session record exists for a token.
var ErrNotFound = errors.New("session not found")

// Store persists session records and the device/account token indexes
// used for cascading revocation.
type Store interface {
	Save(ctx context.Context, token string, sess *Session, ttl time.Duration) error
	Get(ctx context.Context, token string) (*Session, error)

	// MarkRevoked flips the revoked flag in place, preserving the
	// record's remaining TTL.
	MarkRevoked(ctx context.Context, token string) error

	// TokensForDevice and TokensForAccount return the indexed tokens.
	TokensForDevice(ctx context.Context, deviceID string) ([]string, error)
	TokensForAccount(ctx context.Context, accountID int64) ([]string, error)
}

type redisStore struct {
	client *redis.Client
}

// NewStore creates a Redis-backed session store.
func NewStore(client *redis.Client) Store {
	return &redisStore{client: client}
}

func accountKey(accountID int64) string {
	return fmt.Sprintf("%s%d", accountPrefix, accountID)
}

func (s *redisStore) Save(ctx context.Context, token string, sess *Session, ttl time.Duration) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, tokenPrefix+token, data, ttl)
	pipe.SAdd(ctx, devicePrefix+sess.DeviceID, token)
	pipe.Expire(ctx, devicePrefix+sess.DeviceID, ttl)
	pipe.SAdd(ctx, accountKey(sess.AccountID), token)
	pipe.Expire(ctx, accountKey(sess.AccountID), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

func (s *redisStore) Get(ctx context.Context, token string) (*Session, error) {
	data, err := s.client.Get(ctx, tokenPrefix+token).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	return &sess, nil
}

func (s *redisStore) MarkRevoked(ctx context.Context, token string) error {
	key := tokenPrefix + token
	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil
			}
			return err
		}
		var sess Session
		if err := json.Unmarshal(data, &sess); err != nil {
			return fmt.Errorf("decoding session: %w", err)
		}
		if sess.Revoked {
			return nil
		}
		sess.Revoked = true

		updated, err := json.Marshal(&sess)
		if err != nil {
			return fmt.Errorf("encoding session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			// KEEPTTL so the revoked marker decays on the original
			// schedule. The WATCH keeps a key that expires mid-write
			// from being recreated without a TTL.
			pipe.Set(ctx, key, updated, redis.KeepTTL)
			return nil
		})
		return err
	}

	for i := 0; i < revokeRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return fmt.Errorf("marking session revoked: %w", err)
	}
	return fmt.Errorf("marking session revoked: too many conflicts")
}

func (s *redisStore) TokensForDevice(ctx context.Context, deviceID string) ([]string, error) {
	tokens, err := s.client.SMembers(ctx, devicePrefix+deviceID).Result()
	if err != nil {
		return nil, fmt.Errorf("reading device sessions: %w", err)
	}
	return tokens, nil
}

func (s *redisStore) TokensForAccount(ctx context.Context, accountID int64) ([]string, error) {
	tokens, err := s.client.SMembers(ctx, accountKey(accountID)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading account sessions: %w", err)
	}
	return tokens, nil
}
