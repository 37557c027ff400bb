package login

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/lumenwerk/gatehouse/internal/account"
	"github.com/lumenwerk/gatehouse/internal/apperror"
	"github.com/lumenwerk/gatehouse/internal/captcha"
	"github.com/lumenwerk/gatehouse/internal/config"
	"github.com/lumenwerk/gatehouse/internal/device"
	"github.com/lumenwerk/gatehouse/internal/security"
	"github.com/lumenwerk/gatehouse/internal/session"
	"github.com/lumenwerk/gatehouse/internal/twofactor"
)

// --- in-memory doubles for the SQL-backed repositories ---

type accountRepo struct {
	mu       sync.Mutex
	accounts map[string]*account.Account
	history  map[int64][]string
}

func newAccountRepo(accounts ...*account.Account) *accountRepo {
	r := &accountRepo{
		accounts: make(map[string]*account.Account),
		history:  make(map[int64][]string),
	}
	for _, a := range accounts {
		r.accounts[a.Username] = a
	}
	return r
}

func (r *accountRepo) GetByID(_ context.Context, id int64) (*account.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.ID == id {
			copied := *a
			return &copied, nil
		}
	}
	return nil, account.ErrNotFound
}

func (r *accountRepo) GetByUsername(_ context.Context, username string) (*account.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[username]
	if !ok {
		return nil, account.ErrNotFound
	}
	copied := *a
	return &copied, nil
}

func (r *accountRepo) UpdatePassword(_ context.Context, id int64, newHash, oldHash string, keepHistory int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.ID == id {
			a.PasswordHash = newHash
			a.PasswordChangedAt = time.Now()
			r.history[id] = append([]string{oldHash}, r.history[id]...)
			if len(r.history[id]) > keepHistory {
				r.history[id] = r.history[id][:keepHistory]
			}
			return nil
		}
	}
	return account.ErrNotFound
}

func (r *accountRepo) PasswordHistory(_ context.Context, id int64, limit int) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	hashes := r.history[id]
	if len(hashes) > limit {
		hashes = hashes[:limit]
	}
	return hashes, nil
}

func (r *accountRepo) SetTwoFactor(_ context.Context, id int64, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.ID == id {
			a.TwoFactorEnabled = enabled
			return nil
		}
	}
	return account.ErrNotFound
}

type deviceRepo struct {
	mu      sync.Mutex
	devices map[string]*device.Device
	nextID  int64
}

func newDeviceRepo() *deviceRepo {
	return &deviceRepo{devices: make(map[string]*device.Device)}
}

func (r *deviceRepo) key(accountID int64, deviceID string) string {
	return fmt.Sprintf("%d|%s", accountID, deviceID)
}

func (r *deviceRepo) Upsert(_ context.Context, d *device.Device) (*device.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := r.key(d.AccountID, d.DeviceID)
	if existing, ok := r.devices[key]; ok {
		existing.LoginCount++
		existing.LastLogin = time.Now()
		existing.IPAddress = d.IPAddress
		existing.UserAgent = d.UserAgent
		copied := *existing
		return &copied, nil
	}
	r.nextID++
	created := *d
	created.ID = r.nextID
	created.LoginCount = 1
	created.FirstSeen = time.Now()
	created.LastLogin = created.FirstSeen
	r.devices[key] = &created
	copied := created
	return &copied, nil
}

func (r *deviceRepo) Get(_ context.Context, accountID int64, deviceID string) (*device.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[r.key(accountID, deviceID)]
	if !ok {
		return nil, device.ErrNotFound
	}
	copied := *d
	return &copied, nil
}

func (r *deviceRepo) List(_ context.Context, accountID int64) ([]device.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []device.Device
	for _, d := range r.devices {
		if d.AccountID == accountID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (r *deviceRepo) SetTrusted(_ context.Context, accountID int64, deviceID string, trusted bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[r.key(accountID, deviceID)]
	if !ok {
		return device.ErrNotFound
	}
	d.Trusted = trusted
	return nil
}

func (r *deviceRepo) SetRevoked(_ context.Context, accountID int64, deviceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[r.key(accountID, deviceID)]
	if !ok {
		return device.ErrNotFound
	}
	d.Revoked = true
	d.Trusted = false
	return nil
}

type eventLog struct {
	mu     sync.Mutex
	events []security.Event
}

func (l *eventLog) Record(_ context.Context, event security.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *eventLog) byType(incidentType string) []security.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []security.Event
	for _, e := range l.events {
		if e.IncidentType == incidentType {
			out = append(out, e)
		}
	}
	return out
}

type sentMail struct {
	to   string
	body string
}

type mailLog struct {
	mails chan sentMail
}

func (m *mailLog) Send(to, _, body string) error {
	m.mails <- sentMail{to: to, body: body}
	return nil
}

// --- harness ---

type harness struct {
	svc      *Service
	sessions *session.Service
	accounts *accountRepo
	devices  *deviceRepo
	events   *eventLog
	mails    chan sentMail
	redis    *miniredis.Miniredis
	cfg      config.AuthConfig
}

func newHarness(t *testing.T, accts ...*account.Account) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	authCfg := config.AuthConfig{
		SessionTTL:       24 * time.Hour,
		TempTokenTTL:     10 * time.Minute,
		CodeTTL:          5 * time.Minute,
		CodeLength:       6,
		MaxCodeAttempts:  5,
		FailureThreshold: 5,
		FailureWindow:    15 * time.Minute,
	}
	pwCfg := config.PasswordConfig{ExpireDays: 90, WarnDays: 7, HistoryCount: 5, MinLength: 8}
	capCfg := config.CaptchaConfig{TTL: 5 * time.Minute, Length: 4, Width: 140, Height: 60}

	events := &eventLog{}
	mails := make(chan sentMail, 4)

	acctRepo := newAccountRepo(accts...)
	devRepo := newDeviceRepo()

	sessionSvc := session.NewService(session.NewStore(client), authCfg)
	accountSvc := account.NewService(acctRepo, account.NewLockoutStore(client), events,
		sessionSvc, authCfg, pwCfg)
	captchaSvc := captcha.NewService(captcha.NewStore(client), capCfg)
	deviceSvc := device.NewService(devRepo, sessionSvc)
	twoFactorSvc := twofactor.NewService(accountSvc, twofactor.NewStore(client),
		&mailLog{mails: mails}, events, authCfg)
	loginSvc := NewService(captchaSvc, accountSvc, deviceSvc, twoFactorSvc,
		sessionSvc, events, authCfg)

	return &harness{
		svc:      loginSvc,
		sessions: sessionSvc,
		accounts: acctRepo,
		devices:  devRepo,
		events:   events,
		mails:    mails,
		redis:    mr,
		cfg:      authCfg,
	}
}

// seedCaptcha plants a solved captcha so a test can pass the first gate.
func (h *harness) seedCaptcha(key string) {
	h.redis.Set("captcha:"+key, "1234")
}

func (h *harness) input(key string) Input {
	h.seedCaptcha(key)
	return Input{
		Username:    "admin",
		Password:    "Str0ng!pass",
		CaptchaKey:  key,
		CaptchaCode: "1234",
		IP:          "10.0.0.1",
		UserAgent:   "Mozilla/5.0 (Windows NT 10.0) Chrome/126.0",
	}
}

func (h *harness) emailedCode(t *testing.T) string {
	t.Helper()
	select {
	case mail := <-h.mails:
		code := regexp.MustCompile(`\d{6}`).FindString(mail.body)
		if code == "" {
			t.Fatalf("no code in mail body %q", mail.body)
		}
		return code
	case <-time.After(2 * time.Second):
		t.Fatal("no mail dispatched")
		return ""
	}
}

func adminAccount(t *testing.T) *account.Account {
	t.Helper()
	hash, err := account.HashPassword("Str0ng!pass")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	return &account.Account{
		ID:                1,
		Username:          "admin",
		Email:             "admin@example.com",
		PasswordHash:      hash,
		Active:            true,
		PasswordChangedAt: time.Now().AddDate(0, 0, -10),
	}
}

// --- scenarios ---

func TestLoginIssuesSessionWithoutSecondFactor(t *testing.T) {
	h := newHarness(t, adminAccount(t))
	ctx := context.Background()

	result, err := h.svc.Login(ctx, h.input("k1"))
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if result.State != StateSessionIssued {
		t.Fatalf("expected session issued, got %s", result.State)
	}
	if result.Username != "admin" || result.Token == "" {
		t.Errorf("result incomplete: %+v", result)
	}

	sess, err := h.sessions.Validate(ctx, result.Token)
	if err != nil {
		t.Fatalf("issued token does not validate: %v", err)
	}
	if sess.AccountID != 1 {
		t.Errorf("session bound to wrong account: %+v", sess)
	}

	if got := len(h.events.byType(security.IncidentLoginSuccess)); got != 1 {
		t.Errorf("expected 1 login success event, got %d", got)
	}
}

func TestLoginWrongCaptcha(t *testing.T) {
	h := newHarness(t, adminAccount(t))
	ctx := context.Background()

	in := h.input("k1")
	in.CaptchaCode = "9999"
	_, err := h.svc.Login(ctx, in)
	if !apperror.IsType(err, apperror.TypeAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}

	// Captcha failures leave no trail entry.
	if len(h.events.events) != 0 {
		t.Errorf("captcha failure recorded events: %+v", h.events.events)
	}

	// The challenge was consumed by the failed attempt: retrying with the
	// right code and the same key fails until a new captcha is fetched.
	in.CaptchaCode = "1234"
	if _, err := h.svc.Login(ctx, in); !apperror.IsType(err, apperror.TypeAuth) {
		t.Errorf("expected consumed captcha to fail, got %v", err)
	}
}

func TestLoginCaptchaSingleUse(t *testing.T) {
	h := newHarness(t, adminAccount(t))
	ctx := context.Background()

	in := h.input("k1")
	if _, err := h.svc.Login(ctx, in); err != nil {
		t.Fatalf("Login: %v", err)
	}

	// Same captcha again without reseeding.
	if _, err := h.svc.Login(ctx, in); !apperror.IsType(err, apperror.TypeAuth) {
		t.Errorf("captcha must be single use, got %v", err)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	h := newHarness(t, adminAccount(t))
	ctx := context.Background()

	in := h.input("k1")
	in.Password = "wrong"
	_, err := h.svc.Login(ctx, in)
	if !apperror.IsType(err, apperror.TypeAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if got := len(h.events.byType(security.IncidentLoginFailure)); got != 1 {
		t.Errorf("expected 1 login failure event, got %d", got)
	}
}

func TestLoginExpiredPasswordBlocksSession(t *testing.T) {
	acct := adminAccount(t)
	acct.PasswordChangedAt = time.Now().AddDate(0, 0, -91)
	h := newHarness(t, acct)

	_, err := h.svc.Login(context.Background(), h.input("k1"))
	if !apperror.IsType(err, apperror.TypePolicy) {
		t.Fatalf("expected policy error, got %v", err)
	}
	if got := len(h.events.byType(security.IncidentLoginSuccess)); got != 0 {
		t.Error("expired password must not produce a login success")
	}
}

func TestLoginPasswordWarning(t *testing.T) {
	acct := adminAccount(t)
	acct.PasswordChangedAt = time.Now().AddDate(0, 0, -85)
	h := newHarness(t, acct)

	result, err := h.svc.Login(context.Background(), h.input("k1"))
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if result.PasswordWarning == nil {
		t.Fatal("expected password warning inside the expiry window")
	}
	if result.PasswordWarning.DaysRemaining > 7 {
		t.Errorf("warning outside window: %+v", result.PasswordWarning)
	}
}

func TestLoginRevokedDevice(t *testing.T) {
	h := newHarness(t, adminAccount(t))
	ctx := context.Background()

	// First login creates the device row.
	result, err := h.svc.Login(ctx, h.input("k1"))
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	sess, _ := h.sessions.Validate(ctx, result.Token)
	if err := h.devices.SetRevoked(ctx, 1, sess.DeviceID); err != nil {
		t.Fatalf("SetRevoked: %v", err)
	}

	_, err = h.svc.Login(ctx, h.input("k2"))
	if !apperror.IsType(err, apperror.TypeDevice) {
		t.Fatalf("expected device error, got %v", err)
	}
	if got := len(h.events.byType(security.IncidentSuspiciousActivity)); got != 1 {
		t.Errorf("expected suspicious activity event, got %d", got)
	}
}

func TestLoginSecondFactorFlow(t *testing.T) {
	acct := adminAccount(t)
	acct.TwoFactorEnabled = true
	h := newHarness(t, acct)
	ctx := context.Background()

	result, err := h.svc.Login(ctx, h.input("k1"))
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if result.State != StateTwoFactorPending {
		t.Fatalf("expected pending second factor, got %s", result.State)
	}
	if result.TempToken == "" || result.EmailMasked != "adm***@example.com" {
		t.Errorf("pending result incomplete: %+v", result)
	}
	if result.Token != "" {
		t.Error("no session token before the second factor")
	}

	code := h.emailedCode(t)
	final, err := h.svc.VerifySecondFactor(ctx, result.TempToken, code, "10.0.0.1", "ua")
	if err != nil {
		t.Fatalf("VerifySecondFactor: %v", err)
	}
	if final.State != StateSessionIssued || final.Token == "" {
		t.Fatalf("expected issued session, got %+v", final)
	}
	if _, err := h.sessions.Validate(ctx, final.Token); err != nil {
		t.Errorf("issued token does not validate: %v", err)
	}

	// The temp token is consumed.
	if _, err := h.svc.VerifySecondFactor(ctx, result.TempToken, code, "10.0.0.1", "ua"); !apperror.IsType(err, apperror.TypeTwoFactorInvalid) {
		t.Errorf("expected consumed challenge, got %v", err)
	}
}

func TestTempTokenIsNotASessionToken(t *testing.T) {
	acct := adminAccount(t)
	acct.TwoFactorEnabled = true
	h := newHarness(t, acct)
	ctx := context.Background()

	result, err := h.svc.Login(ctx, h.input("k1"))
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if result.TempToken == "" {
		t.Fatal("expected a pending second factor")
	}

	if _, err := h.sessions.Validate(ctx, result.TempToken); !apperror.IsType(err, apperror.TypeTokenUnknown) {
		t.Errorf("temp token must not validate as a session, got %v", err)
	}
}

func TestLoginTrustedDeviceSkip(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T, skip bool) (*harness, string) {
		acct := adminAccount(t)
		acct.TwoFactorEnabled = true
		h := newHarness(t, acct)
		h.svc.cfg.TrustedDeviceSkipSecondFactor = skip

		// Complete one full login so the device row exists, then trust it.
		result, err := h.svc.Login(ctx, h.input("k1"))
		if err != nil {
			t.Fatalf("Login: %v", err)
		}
		code := h.emailedCode(t)
		final, err := h.svc.VerifySecondFactor(ctx, result.TempToken, code, "10.0.0.1", "ua")
		if err != nil {
			t.Fatalf("VerifySecondFactor: %v", err)
		}
		sess, _ := h.sessions.Validate(ctx, final.Token)
		if err := h.devices.SetTrusted(ctx, 1, sess.DeviceID, true); err != nil {
			t.Fatalf("SetTrusted: %v", err)
		}
		return h, sess.DeviceID
	}

	t.Run("skip enabled", func(t *testing.T) {
		h, _ := setup(t, true)
		result, err := h.svc.Login(ctx, h.input("k2"))
		if err != nil {
			t.Fatalf("Login: %v", err)
		}
		if result.State != StateSessionIssued {
			t.Errorf("trusted device with skip flag should bypass the second factor, got %s", result.State)
		}
	})

	t.Run("skip disabled", func(t *testing.T) {
		h, _ := setup(t, false)
		result, err := h.svc.Login(ctx, h.input("k2"))
		if err != nil {
			t.Fatalf("Login: %v", err)
		}
		if result.State != StateTwoFactorPending {
			t.Errorf("trust must not bypass the second factor without the flag, got %s", result.State)
		}
	})
}

func TestLogout(t *testing.T) {
	h := newHarness(t, adminAccount(t))
	ctx := context.Background()

	result, err := h.svc.Login(ctx, h.input("k1"))
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := h.svc.Logout(ctx, result.Token); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	if _, err := h.sessions.Validate(ctx, result.Token); !apperror.IsType(err, apperror.TypeTokenRevoked) {
		t.Errorf("expected revoked token after logout, got %v", err)
	}

	// Idempotent, including for unknown tokens.
	if err := h.svc.Logout(ctx, result.Token); err != nil {
		t.Errorf("second logout: %v", err)
	}
	if err := h.svc.Logout(ctx, ""); err != nil {
		t.Errorf("empty token logout: %v", err)
	}
}

func TestSecondFactorExpiredPasswordGate(t *testing.T) {
	acct := adminAccount(t)
	acct.TwoFactorEnabled = true
	acct.PasswordChangedAt = time.Now().AddDate(0, 0, -89)
	h := newHarness(t, acct)
	ctx := context.Background()

	result, err := h.svc.Login(ctx, h.input("k1"))
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	code := h.emailedCode(t)

	// The password crosses its deadline while the challenge is pending.
	h.accounts.mu.Lock()
	h.accounts.accounts["admin"].PasswordChangedAt = time.Now().AddDate(0, 0, -91)
	h.accounts.mu.Unlock()

	_, err = h.svc.VerifySecondFactor(ctx, result.TempToken, code, "10.0.0.1", "ua")
	if !apperror.IsType(err, apperror.TypePolicy) {
		t.Errorf("expected policy error at issuance, got %v", err)
	}
}

func TestSecondFactorRevokedDeviceGate(t *testing.T) {
	acct := adminAccount(t)
	acct.TwoFactorEnabled = true
	h := newHarness(t, acct)
	ctx := context.Background()

	in := h.input("k1")
	result, err := h.svc.Login(ctx, in)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	code := h.emailedCode(t)

	// The admin revokes the device while the challenge is pending.
	deviceID := device.Fingerprint(device.Meta{Hint: in.DeviceHint, IP: in.IP, UserAgent: in.UserAgent})
	if err := h.devices.SetRevoked(ctx, 1, deviceID); err != nil {
		t.Fatalf("SetRevoked: %v", err)
	}

	final, err := h.svc.VerifySecondFactor(ctx, result.TempToken, code, in.IP, in.UserAgent)
	if !apperror.IsType(err, apperror.TypeDevice) {
		t.Fatalf("expected device error, got %v", err)
	}
	if final != nil {
		t.Fatalf("no session for a revoked device, got %+v", final)
	}
	if got := len(h.events.byType(security.IncidentLoginSuccess)); got != 0 {
		t.Errorf("no success event for a revoked device, got %d", got)
	}
	if got := len(h.events.byType(security.IncidentSuspiciousActivity)); got != 1 {
		t.Errorf("expected suspicious activity event, got %d", got)
	}
}

func TestSecondFactorInactiveAccountGate(t *testing.T) {
	acct := adminAccount(t)
	acct.TwoFactorEnabled = true
	h := newHarness(t, acct)
	ctx := context.Background()

	result, err := h.svc.Login(ctx, h.input("k1"))
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	code := h.emailedCode(t)

	// The account is deactivated while the challenge is pending.
	h.accounts.mu.Lock()
	h.accounts.accounts["admin"].Active = false
	h.accounts.mu.Unlock()

	if _, err := h.svc.VerifySecondFactor(ctx, result.TempToken, code, "10.0.0.1", "ua"); !apperror.IsType(err, apperror.TypeAuth) {
		t.Errorf("expected auth error for a deactivated account, got %v", err)
	}
}
