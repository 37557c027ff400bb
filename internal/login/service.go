// Package login orchestrates the admin login flow across captcha,
// credentials, password policy, devices, the second factor, and session
// issuance.
package login

import (
	"context"
	"fmt"

	"github.com/lumenwerk/gatehouse/internal/account"
	"github.com/lumenwerk/gatehouse/internal/apperror"
	"github.com/lumenwerk/gatehouse/internal/captcha"
	"github.com/lumenwerk/gatehouse/internal/config"
	"github.com/lumenwerk/gatehouse/internal/device"
	"github.com/lumenwerk/gatehouse/internal/security"
	"github.com/lumenwerk/gatehouse/internal/session"
	"github.com/lumenwerk/gatehouse/internal/twofactor"
)

// Input carries everything the client submits at the first factor.
type Input struct {
	Username    string
	Password    string
	CaptchaKey  string
	CaptchaCode string

	// DeviceHint is the optional client-chosen device identifier folded
	// into the fingerprint.
	DeviceHint string
	IP         string
	UserAgent  string
}

// State names the two successful login outcomes.
type State string

const (
	// StateSessionIssued means the flow is complete and Token is set.
	StateSessionIssued State = "session_issued"

	// StateTwoFactorPending means a code was emailed and the client must
	// call VerifySecondFactor with TempToken.
	StateTwoFactorPending State = "two_factor_pending"
)

// Result is the tagged outcome of a successful Login or VerifySecondFactor
// call. Exactly the fields for its State are set.
type Result struct {
	State State

	// Set when State == StateSessionIssued.
	Token    string
	Username string

	// PasswordWarning is set alongside an issued session when the
	// password is inside the expiry warning window.
	PasswordWarning *account.PasswordStatus

	// Set when State == StateTwoFactorPending.
	TempToken   string
	EmailMasked string
}

// Service drives the login state machine.
type Service struct {
	captchas  *captcha.Service
	accounts  *account.Service
	devices   *device.Service
	twoFactor *twofactor.Service
	sessions  *session.Service
	recorder  security.Recorder
	cfg       config.AuthConfig
}

// NewService creates a login service.
func NewService(captchas *captcha.Service, accounts *account.Service, devices *device.Service,
	twoFactor *twofactor.Service, sessions *session.Service, recorder security.Recorder,
	cfg config.AuthConfig) *Service {
	return &Service{
		captchas:  captchas,
		accounts:  accounts,
		devices:   devices,
		twoFactor: twoFactor,
		sessions:  sessions,
		recorder:  recorder,
		cfg:       cfg,
	}
}

// Login runs the first factor: captcha, credentials, the password expiry
// gate, the device check, and then either issues a session or opens a
// second-factor challenge.
func (s *Service) Login(ctx context.Context, in Input) (*Result, error) {
	// A failed captcha burns the challenge and leaves no trail entry; the
	// client just fetches a new image.
	if err := s.captchas.Verify(ctx, in.CaptchaKey, in.CaptchaCode); err != nil {
		if apperror.IsType(err, apperror.TypeValidation) {
			return nil, apperror.NewAuth("captcha verification failed")
		}
		return nil, err
	}

	meta := account.RequestMeta{IP: in.IP, UserAgent: in.UserAgent, Path: "/api/admin/login"}
	acct, err := s.accounts.VerifyCredentials(ctx, in.Username, in.Password, meta)
	if err != nil {
		return nil, err
	}

	status := s.accounts.PasswordStatus(acct)
	if status.Expired {
		return nil, apperror.NewPolicy("password expired, change it before logging in")
	}

	dev, err := s.devices.RecordLogin(ctx, acct.ID, device.Meta{
		Hint:      in.DeviceHint,
		IP:        in.IP,
		UserAgent: in.UserAgent,
	})
	if err != nil {
		return nil, err
	}
	if dev.Revoked {
		s.recordRevokedDevice(ctx, acct.Username, in.IP, in.UserAgent, "/api/admin/login")
		return nil, apperror.NewDevice("this device has been revoked")
	}

	needSecondFactor := acct.TwoFactorEnabled
	if needSecondFactor && dev.Trusted && s.cfg.TrustedDeviceSkipSecondFactor {
		needSecondFactor = false
	}

	if needSecondFactor {
		tempToken, masked, err := s.twoFactor.IssueChallenge(ctx, acct, dev.DeviceID)
		if err != nil {
			return nil, err
		}
		return &Result{
			State:       StateTwoFactorPending,
			TempToken:   tempToken,
			EmailMasked: masked,
		}, nil
	}

	return s.issueSession(ctx, acct, dev.DeviceID, in.IP, in.UserAgent, status)
}

// VerifySecondFactor completes a pending challenge and issues the session.
func (s *Service) VerifySecondFactor(ctx context.Context, tempToken, code, ip, userAgent string) (*Result, error) {
	ch, err := s.twoFactor.Verify(ctx, tempToken, code)
	if err != nil {
		return nil, err
	}

	acct, err := s.accounts.Get(ctx, ch.AccountID)
	if err != nil {
		return nil, err
	}
	if !acct.Active {
		return nil, apperror.NewAuth("invalid username or password")
	}

	// Revocation may have happened while the challenge was pending; the
	// device gate applies at every issuance point.
	dev, err := s.devices.Get(ctx, ch.AccountID, ch.DeviceID)
	if err != nil {
		return nil, err
	}
	if dev.Revoked {
		s.recordRevokedDevice(ctx, acct.Username, ip, userAgent, "/api/admin/login/verify-2fa")
		return nil, apperror.NewDevice("this device has been revoked")
	}

	// The password may have crossed its deadline while the challenge was
	// pending; the gate applies at every issuance point.
	status := s.accounts.PasswordStatus(acct)
	if status.Expired {
		return nil, apperror.NewPolicy("password expired, change it before logging in")
	}

	return s.issueSession(ctx, acct, ch.DeviceID, ip, userAgent, status)
}

// ResendSecondFactor issues a fresh code for a pending challenge.
func (s *Service) ResendSecondFactor(ctx context.Context, tempToken string) (emailMasked string, err error) {
	return s.twoFactor.Resend(ctx, tempToken)
}

// Logout revokes the presented session token. Unknown tokens are ignored.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.sessions.Revoke(ctx, token)
}

func (s *Service) recordRevokedDevice(ctx context.Context, username, ip, userAgent, path string) {
	s.recorder.Record(ctx, security.Event{
		IncidentType: security.IncidentSuspiciousActivity,
		Level:        security.LevelMedium,
		Username:     username,
		IPAddress:    ip,
		UserAgent:    userAgent,
		Path:         path,
		Description:  "login attempt from revoked device",
	})
}

func (s *Service) issueSession(ctx context.Context, acct *account.Account, deviceID, ip, userAgent string,
	status account.PasswordStatus) (*Result, error) {
	token, _, err := s.sessions.Issue(ctx, acct.ID, acct.Username, deviceID)
	if err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, security.Event{
		IncidentType: security.IncidentLoginSuccess,
		Level:        security.LevelLow,
		Username:     acct.Username,
		IPAddress:    ip,
		UserAgent:    userAgent,
		Path:         "/api/admin/login",
		Description:  fmt.Sprintf("session issued for device %.12s", deviceID),
	})

	result := &Result{
		State:    StateSessionIssued,
		Token:    token,
		Username: acct.Username,
	}
	if status.Warn {
		warning := status
		result.PasswordWarning = &warning
	}
	return result, nil
}
