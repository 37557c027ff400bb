package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/lumenwerk/gatehouse/internal/apperror"
	"github.com/lumenwerk/gatehouse/internal/config"
)

// Service issues, validates, and revokes session tokens.
type Service struct {
	store Store
	cfg   config.AuthConfig
	now   func() time.Time
}

// NewService creates a session service.
func NewService(store Store, cfg config.AuthConfig) *Service {
	return &Service{store: store, cfg: cfg, now: time.Now}
}

// generateToken returns a 64-character hex token from 32 random bytes.
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating session token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Issue creates a session for the account on the given device and returns
// the opaque token.
func (s *Service) Issue(ctx context.Context, accountID int64, username, deviceID string) (string, *Session, error) {
	token, err := generateToken()
	if err != nil {
		return "", nil, apperror.NewInternal(err)
	}

	now := s.now()
	sess := &Session{
		AccountID: accountID,
		DeviceID:  deviceID,
		Username:  username,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.cfg.SessionTTL),
	}
	if err := s.store.Save(ctx, token, sess, s.cfg.SessionTTL); err != nil {
		return "", nil, apperror.NewInternal(err)
	}
	return token, sess, nil
}

// Validate resolves a token to its live session. Unknown, revoked, and
// expired tokens fail with distinct error types.
func (s *Service) Validate(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, apperror.NewTokenUnknown()
	}

	sess, err := s.store.Get(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperror.NewTokenUnknown()
		}
		return nil, apperror.NewInternal(err)
	}
	if sess.Revoked {
		return nil, apperror.NewTokenRevoked()
	}
	if !s.now().Before(sess.ExpiresAt) {
		return nil, apperror.NewTokenExpired()
	}
	return sess, nil
}

// Revoke invalidates a single token. Revoking an already-revoked or
// unknown token is a no-op.
func (s *Service) Revoke(ctx context.Context, token string) error {
	if err := s.store.MarkRevoked(ctx, token); err != nil {
		return apperror.NewInternal(err)
	}
	return nil
}

// RevokeDevice invalidates every session issued to the device.
func (s *Service) RevokeDevice(ctx context.Context, deviceID string) error {
	tokens, err := s.store.TokensForDevice(ctx, deviceID)
	if err != nil {
		return apperror.NewInternal(err)
	}
	for _, token := range tokens {
		if err := s.store.MarkRevoked(ctx, token); err != nil {
			return apperror.NewInternal(err)
		}
	}
	return nil
}

// RevokeAccount invalidates every session for the account.
func (s *Service) RevokeAccount(ctx context.Context, accountID int64) error {
	tokens, err := s.store.TokensForAccount(ctx, accountID)
	if err != nil {
		return apperror.NewInternal(err)
	}
	for _, token := range tokens {
		if err := s.store.MarkRevoked(ctx, token); err != nil {
			return apperror.NewInternal(err)
		}
	}
	return nil
}
