package twofactor

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/lumenwerk/gatehouse/internal/account"
	"github.com/lumenwerk/gatehouse/internal/apperror"
	"github.com/lumenwerk/gatehouse/internal/config"
	"github.com/lumenwerk/gatehouse/internal/mailer"
	"github.com/lumenwerk/gatehouse/internal/security"
)

// accountToggler is the slice of the account service used here.
type accountToggler interface {
	Get(ctx context.Context, id int64) (*account.Account, error)
	SetTwoFactor(ctx context.Context, id int64, enabled bool) error
}

// Service manages second-factor settings and login challenges.
type Service struct {
	accounts accountToggler
	store    Store
	mail     mailer.Mailer
	recorder security.Recorder
	cfg      config.AuthConfig
	now      func() time.Time
}

// NewService creates a twofactor service.
func NewService(accounts accountToggler, store Store, mail mailer.Mailer,
	recorder security.Recorder, cfg config.AuthConfig) *Service {
	return &Service{
		accounts: accounts,
		store:    store,
		mail:     mail,
		recorder: recorder,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Enable turns on the email second factor for the account. Fails when no
// email address is on file.
func (s *Service) Enable(ctx context.Context, accountID int64) error {
	return s.accounts.SetTwoFactor(ctx, accountID, true)
}

// Disable turns off the email second factor.
func (s *Service) Disable(ctx context.Context, accountID int64) error {
	return s.accounts.SetTwoFactor(ctx, accountID, false)
}

// generateTempToken returns a 64-character hex token from 32 random bytes.
func generateTempToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating temp token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// generateCode returns a zero-padded numeric code of the given length.
func generateCode(length int) (string, error) {
	max := big.NewInt(1)
	for i := 0; i < length; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("generating code: %w", err)
	}
	return fmt.Sprintf("%0*d", length, n), nil
}

func hashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// MaskEmail hides most of the local part: "alice@example.com" becomes
// "ali***@example.com". Short local parts keep only the first character.
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "***"
	}
	local, domain := email[:at], email[at:]
	keep := 3
	if len(local) <= keep {
		keep = 1
	}
	return local[:keep] + "***" + domain
}

// IssueChallenge starts a second-factor challenge for the account and
// dispatches the code by email. Returns the temp token the client must
// present to Verify, and the masked destination address.
func (s *Service) IssueChallenge(ctx context.Context, acct *account.Account, deviceID string) (tempToken, maskedEmail string, err error) {
	if acct.Email == "" {
		return "", "", apperror.NewPolicy("no email address on file for the second factor")
	}

	tempToken, err = generateTempToken()
	if err != nil {
		return "", "", apperror.NewInternal(err)
	}
	code, err := generateCode(s.cfg.CodeLength)
	if err != nil {
		return "", "", apperror.NewInternal(err)
	}

	now := s.now()
	ch := &Challenge{
		AccountID:     acct.ID,
		Username:      acct.Username,
		Email:         acct.Email,
		CodeHash:      hashCode(code),
		CodeExpiresAt: now.Add(s.cfg.CodeTTL),
		DeviceID:      deviceID,
		IssuedAt:      now,
	}
	if err := s.store.Save(ctx, tempToken, ch, s.cfg.TempTokenTTL); err != nil {
		return "", "", apperror.NewInternal(err)
	}

	s.dispatchCode(acct.Email, code)
	return tempToken, MaskEmail(acct.Email), nil
}

// Verify checks the submitted code against the pending challenge. A
// correct code consumes the challenge so the same token and code pair
// cannot be replayed. Wrong codes burn attempts; exhausting the budget
// destroys the challenge and forces a restart from credentials.
func (s *Service) Verify(ctx context.Context, tempToken, code string) (*Challenge, error) {
	if tempToken == "" || code == "" {
		return nil, apperror.NewValidation("token and code are required")
	}

	ch, err := s.store.Get(ctx, tempToken)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperror.NewTwoFactorInvalid("challenge expired, log in again")
		}
		return nil, apperror.NewInternal(err)
	}

	attempts, err := s.store.IncrAttempts(ctx, tempToken, s.cfg.TempTokenTTL)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}
	if attempts > s.cfg.MaxCodeAttempts {
		return nil, s.exhaust(ctx, tempToken, ch)
	}

	match := subtle.ConstantTimeCompare([]byte(hashCode(code)), []byte(ch.CodeHash)) == 1
	if !match {
		remaining := s.cfg.MaxCodeAttempts - attempts
		if remaining <= 0 {
			return nil, s.exhaust(ctx, tempToken, ch)
		}
		return nil, apperror.NewTwoFactorInvalid(
			fmt.Sprintf("incorrect code, %d attempts remaining", remaining))
	}

	if s.now().After(ch.CodeExpiresAt) {
		return nil, apperror.NewTwoFactorInvalid("code expired, request a new one")
	}

	consumed, err := s.store.Consume(ctx, tempToken)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Lost the race to a concurrent correct submission.
			return nil, apperror.NewTwoFactorInvalid("challenge already completed")
		}
		return nil, apperror.NewInternal(err)
	}
	return consumed, nil
}

// exhaust destroys the challenge after too many wrong codes and records
// the incident.
func (s *Service) exhaust(ctx context.Context, tempToken string, ch *Challenge) error {
	if err := s.store.Delete(ctx, tempToken); err != nil {
		return apperror.NewInternal(err)
	}
	s.recorder.Record(ctx, security.Event{
		IncidentType: security.IncidentSuspiciousActivity,
		Level:        security.LevelMedium,
		Username:     ch.Username,
		Description:  "second factor attempt budget exhausted",
	})
	return apperror.NewTwoFactorInvalid("too many incorrect codes, log in again")
}

// Resend issues a fresh code for an existing challenge without extending
// the challenge's lifetime, and redispatches the email.
func (s *Service) Resend(ctx context.Context, tempToken string) (maskedEmail string, err error) {
	if tempToken == "" {
		return "", apperror.NewValidation("token is required")
	}

	ch, err := s.store.Get(ctx, tempToken)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", apperror.NewTwoFactorInvalid("challenge expired, log in again")
		}
		return "", apperror.NewInternal(err)
	}

	code, err := generateCode(s.cfg.CodeLength)
	if err != nil {
		return "", apperror.NewInternal(err)
	}
	if err := s.store.ReplaceCode(ctx, tempToken, hashCode(code), s.now().Add(s.cfg.CodeTTL)); err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", apperror.NewTwoFactorInvalid("challenge expired, log in again")
		}
		return "", apperror.NewInternal(err)
	}

	s.dispatchCode(ch.Email, code)
	return MaskEmail(ch.Email), nil
}

// SendTest emails a throwaway code so an admin can confirm delivery works
// before relying on the second factor.
func (s *Service) SendTest(ctx context.Context, accountID int64) (maskedEmail string, err error) {
	acct, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return "", err
	}
	if acct.Email == "" {
		return "", apperror.NewPolicy("no email address on file")
	}

	code, err := generateCode(s.cfg.CodeLength)
	if err != nil {
		return "", apperror.NewInternal(err)
	}
	s.dispatchCode(acct.Email, code)
	return MaskEmail(acct.Email), nil
}

// dispatchCode sends the code asynchronously with a single retry.
// Delivery failure never rolls back the challenge; the client can ask
// for a resend.
func (s *Service) dispatchCode(email, code string) {
	subject := "Your verification code"
	body := fmt.Sprintf("Your verification code is %s. It expires in %d minutes.",
		code, int(s.cfg.CodeTTL.Minutes()))

	go func() {
		err := s.mail.Send(email, subject, body)
		if err == nil {
			return
		}
		slog.Warn("verification mail failed, retrying",
			slog.String("to", MaskEmail(email)),
			slog.String("error", err.Error()))
		time.Sleep(2 * time.Second)
		if err := s.mail.Send(email, subject, body); err != nil {
			slog.Error("verification mail failed",
				slog.String("to", MaskEmail(email)),
				slog.String("error", err.Error()))
		}
	}()
}
