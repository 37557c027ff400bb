package login

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/lumenwerk/gatehouse/internal/account"
	"github.com/lumenwerk/gatehouse/internal/apperror"
	"github.com/lumenwerk/gatehouse/internal/device"
	"github.com/lumenwerk/gatehouse/internal/response"
	"github.com/lumenwerk/gatehouse/internal/session"
)

// Handler exposes the login flow endpoints plus the per-account security
// overview.
type Handler struct {
	service  *Service
	sessions *session.Service
	accounts *account.Service
	devices  *device.Service
}

// NewHandler creates a login handler.
func NewHandler(service *Service, sessions *session.Service, accounts *account.Service,
	devices *device.Service) *Handler {
	return &Handler{service: service, sessions: sessions, accounts: accounts, devices: devices}
}

type loginRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	CaptchaKey  string `json:"captcha_key"`
	CaptchaCode string `json:"captcha_code"`
	DeviceHint  string `json:"device_hint"`
}

// Login handles POST /api/admin/login.
func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewValidation("invalid request body")
	}

	result, err := h.service.Login(c.Request().Context(), Input{
		Username:    req.Username,
		Password:    req.Password,
		CaptchaKey:  req.CaptchaKey,
		CaptchaCode: req.CaptchaCode,
		DeviceHint:  req.DeviceHint,
		IP:          c.RealIP(),
		UserAgent:   c.Request().UserAgent(),
	})
	if err != nil {
		return err
	}
	return h.respond(c, result)
}

type verifyRequest struct {
	TempToken string `json:"temp_token"`
	Code      string `json:"code"`
}

// VerifySecondFactor handles POST /api/admin/login/verify-2fa.
func (h *Handler) VerifySecondFactor(c echo.Context) error {
	var req verifyRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewValidation("invalid request body")
	}

	result, err := h.service.VerifySecondFactor(c.Request().Context(),
		req.TempToken, req.Code, c.RealIP(), c.Request().UserAgent())
	if err != nil {
		return err
	}
	return h.respond(c, result)
}

type resendRequest struct {
	TempToken string `json:"temp_token"`
}

// ResendSecondFactor handles POST /api/admin/login/resend-2fa.
func (h *Handler) ResendSecondFactor(c echo.Context) error {
	var req resendRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewValidation("invalid request body")
	}

	masked, err := h.service.ResendSecondFactor(c.Request().Context(), req.TempToken)
	if err != nil {
		return err
	}
	return response.OK(c, "verification code sent", map[string]string{
		"email_masked": masked,
	})
}

// VerifyToken handles POST /api/admin/verify-token. Route guards poll this,
// so it answers success=false instead of an error envelope.
func (h *Handler) VerifyToken(c echo.Context) error {
	_, err := h.sessions.Validate(c.Request().Context(), session.TokenFromRequest(c))
	return response.OK(c, "ok", map[string]bool{
		"success": err == nil,
	})
}

// Logout handles POST /api/admin/logout.
func (h *Handler) Logout(c echo.Context) error {
	if err := h.service.Logout(c.Request().Context(), session.TokenFromRequest(c)); err != nil {
		return err
	}
	h.clearCookie(c)
	return response.OK(c, "logged out", nil)
}

// Overview handles GET /api/admin/security/overview: the caller's second
// factor state, password standing, and device counts.
func (h *Handler) Overview(c echo.Context) error {
	sess := session.FromContext(c)
	ctx := c.Request().Context()

	acct, err := h.accounts.Get(ctx, sess.AccountID)
	if err != nil {
		return err
	}
	devices, err := h.devices.List(ctx, sess.AccountID, sess.DeviceID)
	if err != nil {
		return err
	}

	var trusted, revoked int
	for _, d := range devices {
		if d.Trusted {
			trusted++
		}
		if d.Revoked {
			revoked++
		}
	}

	return response.OK(c, "ok", map[string]any{
		"username":           acct.Username,
		"two_factor_enabled": acct.TwoFactorEnabled,
		"password":           h.accounts.PasswordStatus(acct),
		"devices": map[string]int{
			"total":   len(devices),
			"trusted": trusted,
			"revoked": revoked,
		},
	})
}

func (h *Handler) respond(c echo.Context, result *Result) error {
	switch result.State {
	case StateTwoFactorPending:
		return response.TwoFactorRequired(c, map[string]string{
			"temp_token":   result.TempToken,
			"email_masked": result.EmailMasked,
		})
	default:
		h.setCookie(c, result.Token)
		data := map[string]any{
			"admin_token": result.Token,
			"username":    result.Username,
		}
		if result.PasswordWarning != nil {
			data["password_warning"] = result.PasswordWarning
		}
		return response.OK(c, "login successful", data)
	}
}

func (h *Handler) setCookie(c echo.Context, token string) {
	c.SetCookie(&http.Cookie{
		Name:     session.CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     session.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}
