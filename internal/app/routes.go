package app

import (
	"github.com/lumenwerk/gatehouse/internal/account"
	"github.com/lumenwerk/gatehouse/internal/captcha"
	"github.com/lumenwerk/gatehouse/internal/device"
	"github.com/lumenwerk/gatehouse/internal/login"
	"github.com/lumenwerk/gatehouse/internal/mailer"
	"github.com/lumenwerk/gatehouse/internal/security"
	"github.com/lumenwerk/gatehouse/internal/session"
	"github.com/lumenwerk/gatehouse/internal/twofactor"
)

// registerRoutes builds the service graph and mounts every endpoint under
// /api/admin.
func (a *App) registerRoutes() {
	cfg := a.Config

	securitySvc := security.NewService(security.NewRepository(a.DB))
	sessionSvc := session.NewService(session.NewStore(a.Redis), cfg.Auth)
	accountSvc := account.NewService(
		account.NewRepository(a.DB),
		account.NewLockoutStore(a.Redis),
		securitySvc,
		sessionSvc,
		cfg.Auth,
		cfg.Password,
	)
	captchaSvc := captcha.NewService(captcha.NewStore(a.Redis), cfg.Captcha)
	deviceSvc := device.NewService(device.NewRepository(a.DB), sessionSvc)
	twoFactorSvc := twofactor.NewService(accountSvc, twofactor.NewStore(a.Redis),
		mailer.New(cfg.SMTP), securitySvc, cfg.Auth)
	loginSvc := login.NewService(captchaSvc, accountSvc, deviceSvc, twoFactorSvc,
		sessionSvc, securitySvc, cfg.Auth)

	api := a.Echo.Group("/api/admin", security.Scanner(securitySvc))

	// Public surface: captcha and the login flow.
	captcha.RegisterRoutes(api, captcha.NewHandler(captchaSvc))
	loginHandler := login.NewHandler(loginSvc, sessionSvc, accountSvc, deviceSvc)
	login.RegisterPublicRoutes(api, loginHandler)

	// Everything else requires a live session.
	protected := api.Group("", session.RequireSession(sessionSvc, securitySvc))
	login.RegisterProtectedRoutes(protected, loginHandler)
	account.RegisterRoutes(protected, account.NewHandler(accountSvc))
	twofactor.RegisterRoutes(protected, twofactor.NewHandler(twoFactorSvc))
	device.RegisterRoutes(protected, device.NewHandler(deviceSvc))
	security.RegisterRoutes(protected, security.NewHandler(securitySvc))
}
