package twofactor

import (
	"github.com/labstack/echo/v4"

	"github.com/lumenwerk/gatehouse/internal/response"
	"github.com/lumenwerk/gatehouse/internal/session"
)

// Handler exposes the second-factor settings endpoints. Challenge
// verification during login is handled by the login handler.
type Handler struct {
	service *Service
}

// NewHandler creates a twofactor handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Enable handles POST /api/admin/2fa/enable.
func (h *Handler) Enable(c echo.Context) error {
	sess := session.FromContext(c)
	if err := h.service.Enable(c.Request().Context(), sess.AccountID); err != nil {
		return err
	}
	return response.OK(c, "second factor enabled", nil)
}

// Disable handles POST /api/admin/2fa/disable.
func (h *Handler) Disable(c echo.Context) error {
	sess := session.FromContext(c)
	if err := h.service.Disable(c.Request().Context(), sess.AccountID); err != nil {
		return err
	}
	return response.OK(c, "second factor disabled", nil)
}

// SendTest handles POST /api/admin/2fa/send.
func (h *Handler) SendTest(c echo.Context) error {
	sess := session.FromContext(c)
	masked, err := h.service.SendTest(c.Request().Context(), sess.AccountID)
	if err != nil {
		return err
	}
	return response.OK(c, "test code sent", map[string]string{
		"email": masked,
	})
}

// RegisterRoutes mounts the settings endpoints on a session-guarded group.
func RegisterRoutes(g *echo.Group, h *Handler) {
	tfa := g.Group("/2fa")
	tfa.POST("/enable", h.Enable)
	tfa.POST("/disable", h.Disable)
	tfa.POST("/send", h.SendTest)
}
