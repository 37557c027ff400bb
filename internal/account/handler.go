package account

import (
	"github.com/labstack/echo/v4"

	"github.com/lumenwerk/gatehouse/internal/apperror"
	"github.com/lumenwerk/gatehouse/internal/response"
	"github.com/lumenwerk/gatehouse/internal/session"
)

// Handler exposes the password change endpoint.
type Handler struct {
	service *Service
}

// NewHandler creates an account handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

// ChangePassword handles POST /api/admin/password/change. A successful
// change revokes every session, including the caller's.
func (h *Handler) ChangePassword(c echo.Context) error {
	var req changePasswordRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewValidation("invalid request body")
	}

	sess := session.FromContext(c)
	err := h.service.ChangePassword(c.Request().Context(), sess.AccountID,
		req.CurrentPassword, req.NewPassword, req.ConfirmPassword)
	if err != nil {
		return err
	}
	return response.OK(c, "password changed, log in again", nil)
}

// RegisterRoutes mounts the account endpoints on a session-guarded group.
func RegisterRoutes(g *echo.Group, h *Handler) {
	g.POST("/password/change", h.ChangePassword)
}
