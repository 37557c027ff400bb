package device

import (
	"context"
	"errors"

	"github.com/lumenwerk/gatehouse/internal/apperror"
)

// sessionRevoker invalidates every session bound to a device. Satisfied by
// the session service.
type sessionRevoker interface {
	RevokeDevice(ctx context.Context, deviceID string) error
}

// Service manages the remembered-device list for an account.
type Service struct {
	repo     Repository
	sessions sessionRevoker
}

// NewService creates a device service.
func NewService(repo Repository, sessions sessionRevoker) *Service {
	return &Service{repo: repo, sessions: sessions}
}

// RecordLogin folds a login into the device row for the request
// fingerprint, creating it on first sight. The returned row carries the
// trust and revocation state the login flow decides on.
func (s *Service) RecordLogin(ctx context.Context, accountID int64, meta Meta) (*Device, error) {
	deviceType, name := Classify(meta.UserAgent)
	d := &Device{
		AccountID: accountID,
		DeviceID:  Fingerprint(meta),
		Name:      name,
		Type:      deviceType,
		IPAddress: meta.IP,
		UserAgent: meta.UserAgent,
	}
	updated, err := s.repo.Upsert(ctx, d)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}
	return updated, nil
}

// List returns the account's devices, most recent login first, marking
// the one matching the caller's fingerprint.
func (s *Service) List(ctx context.Context, accountID int64, currentFingerprint string) ([]Device, error) {
	devices, err := s.repo.List(ctx, accountID)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}
	for i := range devices {
		devices[i].IsCurrent = devices[i].DeviceID == currentFingerprint
	}
	return devices, nil
}

// Get returns the account's device row for the fingerprint.
func (s *Service) Get(ctx context.Context, accountID int64, deviceID string) (*Device, error) {
	d, err := s.repo.Get(ctx, accountID, deviceID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperror.NewDevice("device not found")
		}
		return nil, apperror.NewInternal(err)
	}
	return d, nil
}

// SetTrust marks a device trusted or untrusted. Revoked devices cannot be
// trusted again without a fresh login creating a new row state.
func (s *Service) SetTrust(ctx context.Context, accountID int64, deviceID string, trusted bool) error {
	d, err := s.repo.Get(ctx, accountID, deviceID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return apperror.NewDevice("device not found")
		}
		return apperror.NewInternal(err)
	}
	if d.Revoked && trusted {
		return apperror.NewDevice("revoked device cannot be trusted")
	}
	if d.Trusted == trusted {
		return nil
	}
	if err := s.repo.SetTrusted(ctx, accountID, deviceID, trusted); err != nil {
		return apperror.NewInternal(err)
	}
	return nil
}

// Revoke marks the device revoked and invalidates every session issued to
// it before returning. The row is kept for audit. Revoking an
// already-revoked device is a no-op beyond the session sweep.
func (s *Service) Revoke(ctx context.Context, accountID int64, deviceID string) error {
	d, err := s.repo.Get(ctx, accountID, deviceID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return apperror.NewDevice("device not found")
		}
		return apperror.NewInternal(err)
	}

	if !d.Revoked {
		if err := s.repo.SetRevoked(ctx, accountID, deviceID); err != nil && !errors.Is(err, ErrNotFound) {
			return apperror.NewInternal(err)
		}
	}

	if err := s.sessions.RevokeDevice(ctx, deviceID); err != nil {
		return apperror.NewInternal(err)
	}
	return nil
}
