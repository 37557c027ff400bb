package account

import (
	"context"
	"errors"
	"time"

	"github.com/lumenwerk/gatehouse/internal/apperror"
	"github.com/lumenwerk/gatehouse/internal/config"
	"github.com/lumenwerk/gatehouse/internal/security"
)

// credentialsMessage is the single message for every credential failure.
// It never distinguishes an unknown username from a wrong password.
const credentialsMessage = "invalid username or password"

// RequestMeta carries the client context attached to recorded events.
type RequestMeta struct {
	IP        string
	UserAgent string
	Path      string
}

// SessionRevoker invalidates every live session for an account. Satisfied
// by the session service.
type SessionRevoker interface {
	RevokeAccount(ctx context.Context, accountID int64) error
}

// Service verifies credentials and enforces the password policy.
type Service struct {
	repo     Repository
	lockout  LockoutStore
	recorder security.Recorder
	sessions SessionRevoker
	authCfg  config.AuthConfig
	pwCfg    config.PasswordConfig
	now      func() time.Time
}

// NewService creates an account service.
func NewService(repo Repository, lockout LockoutStore, recorder security.Recorder,
	sessions SessionRevoker, authCfg config.AuthConfig, pwCfg config.PasswordConfig) *Service {
	return &Service{
		repo:     repo,
		lockout:  lockout,
		recorder: recorder,
		sessions: sessions,
		authCfg:  authCfg,
		pwCfg:    pwCfg,
		now:      time.Now,
	}
}

// VerifyCredentials checks a username and password pair. Failures feed the
// per-username lockout counter and the security trail; once the counter
// reaches the threshold the account stays locked until the window expires,
// and no hashing work is done for locked accounts.
func (s *Service) VerifyCredentials(ctx context.Context, username, password string, meta RequestMeta) (*Account, error) {
	if username == "" || password == "" {
		return nil, apperror.NewValidation("username and password are required")
	}

	count, err := s.lockout.Failures(ctx, username)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}
	if count >= s.authCfg.FailureThreshold {
		return nil, apperror.NewLocked("account temporarily locked, try again later")
	}

	acct, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, s.credentialFailure(ctx, username, "unknown username", meta)
		}
		return nil, apperror.NewInternal(err)
	}
	if !acct.Active {
		return nil, s.credentialFailure(ctx, username, "inactive account", meta)
	}

	ok, err := VerifyPassword(password, acct.PasswordHash)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}
	if !ok {
		return nil, s.credentialFailure(ctx, username, "wrong password", meta)
	}

	if err := s.lockout.Clear(ctx, username); err != nil {
		return nil, apperror.NewInternal(err)
	}
	return acct, nil
}

// credentialFailure bumps the lockout counter and records the trail
// entries. Crossing the threshold records exactly one brute-force event.
func (s *Service) credentialFailure(ctx context.Context, username, reason string, meta RequestMeta) error {
	count, err := s.lockout.RecordFailure(ctx, username, s.authCfg.FailureWindow)
	if err != nil {
		return apperror.NewInternal(err)
	}

	s.recorder.Record(ctx, security.Event{
		IncidentType: security.IncidentLoginFailure,
		Level:        security.LevelLow,
		Username:     username,
		IPAddress:    meta.IP,
		UserAgent:    meta.UserAgent,
		Path:         meta.Path,
		Description:  reason,
	})

	if count == s.authCfg.FailureThreshold {
		s.recorder.Record(ctx, security.Event{
			IncidentType: security.IncidentBruteForceAttempt,
			Level:        security.LevelHigh,
			Username:     username,
			IPAddress:    meta.IP,
			UserAgent:    meta.UserAgent,
			Path:         meta.Path,
			Description:  "login failure threshold reached, account locked",
		})
		return apperror.NewLocked("account temporarily locked, try again later")
	}

	return apperror.NewAuth(credentialsMessage)
}

// Get returns the account by id.
func (s *Service) Get(ctx context.Context, id int64) (*Account, error) {
	acct, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperror.NewAuth("account not found")
		}
		return nil, apperror.NewInternal(err)
	}
	return acct, nil
}

// PasswordStatus reports the account's standing against the expiry policy.
func (s *Service) PasswordStatus(acct *Account) PasswordStatus {
	return ExpiryStatus(acct, s.pwCfg, s.now())
}

// ChangePassword verifies the current password and applies the complexity
// and reuse rules before storing the new hash. The replaced hash is
// archived so it counts against future reuse checks, and every live
// session for the account is revoked so clients must log in again.
func (s *Service) ChangePassword(ctx context.Context, accountID int64, current, next, confirm string) error {
	if next != confirm {
		return apperror.NewValidation("password confirmation does not match")
	}

	acct, err := s.Get(ctx, accountID)
	if err != nil {
		return err
	}

	ok, err := VerifyPassword(current, acct.PasswordHash)
	if err != nil {
		return apperror.NewInternal(err)
	}
	if !ok {
		return apperror.NewAuth("current password is incorrect")
	}

	if err := CheckComplexity(next, s.pwCfg); err != nil {
		return err
	}

	// Reuse check covers the current hash plus the archived history.
	recent := []string{acct.PasswordHash}
	history, err := s.repo.PasswordHistory(ctx, accountID, s.pwCfg.HistoryCount)
	if err != nil {
		return apperror.NewInternal(err)
	}
	recent = append(recent, history...)
	for _, hash := range recent {
		match, err := VerifyPassword(next, hash)
		if err != nil {
			return apperror.NewInternal(err)
		}
		if match {
			return apperror.NewPolicy("password was used recently, choose a different one")
		}
	}

	newHash, err := HashPassword(next)
	if err != nil {
		return apperror.NewInternal(err)
	}
	if err := s.repo.UpdatePassword(ctx, accountID, newHash, acct.PasswordHash, s.pwCfg.HistoryCount); err != nil {
		return apperror.NewInternal(err)
	}

	if err := s.sessions.RevokeAccount(ctx, accountID); err != nil {
		return apperror.NewInternal(err)
	}
	return nil
}

// SetTwoFactor toggles the email second factor. Enabling requires the
// account to have an email address on file.
func (s *Service) SetTwoFactor(ctx context.Context, accountID int64, enabled bool) error {
	if enabled {
		acct, err := s.Get(ctx, accountID)
		if err != nil {
			return err
		}
		if acct.Email == "" {
			return apperror.NewPolicy("an email address is required to enable the second factor")
		}
	}
	if err := s.repo.SetTwoFactor(ctx, accountID, enabled); err != nil {
		return apperror.NewInternal(err)
	}
	return nil
}
