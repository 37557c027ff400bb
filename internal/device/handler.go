package device

import (
	"github.com/labstack/echo/v4"

	"github.com/lumenwerk/gatehouse/internal/apperror"
	"github.com/lumenwerk/gatehouse/internal/response"
	"github.com/lumenwerk/gatehouse/internal/session"
)

// Handler exposes the device management endpoints.
type Handler struct {
	service *Service
}

// NewHandler creates a device handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// List handles GET /api/admin/devices. The device bound to the caller's
// session is flagged is_current.
func (h *Handler) List(c echo.Context) error {
	sess := session.FromContext(c)
	devices, err := h.service.List(c.Request().Context(), sess.AccountID, sess.DeviceID)
	if err != nil {
		return err
	}
	return response.OK(c, "ok", map[string]any{
		"devices": devices,
	})
}

type trustRequest struct {
	DeviceID string `json:"device_id"`
	Trusted  *bool  `json:"trusted"`
}

// Trust handles POST /api/admin/devices/trust.
func (h *Handler) Trust(c echo.Context) error {
	var req trustRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewValidation("invalid request body")
	}
	if req.DeviceID == "" || req.Trusted == nil {
		return apperror.NewValidation("device_id and trusted are required")
	}

	sess := session.FromContext(c)
	if err := h.service.SetTrust(c.Request().Context(), sess.AccountID, req.DeviceID, *req.Trusted); err != nil {
		return err
	}
	msg := "device untrusted"
	if *req.Trusted {
		msg = "device trusted"
	}
	return response.OK(c, msg, nil)
}

type revokeRequest struct {
	DeviceID string `json:"device_id"`
}

// Revoke handles POST /api/admin/devices/revoke. Revoking your own
// current device logs you out with everything else.
func (h *Handler) Revoke(c echo.Context) error {
	var req revokeRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewValidation("invalid request body")
	}
	if req.DeviceID == "" {
		return apperror.NewValidation("device_id is required")
	}

	sess := session.FromContext(c)
	if err := h.service.Revoke(c.Request().Context(), sess.AccountID, req.DeviceID); err != nil {
		return err
	}
	return response.OK(c, "device revoked", nil)
}

// RegisterRoutes mounts the device endpoints on a session-guarded group.
func RegisterRoutes(g *echo.Group, h *Handler) {
	devices := g.Group("/devices")
	devices.GET("", h.List)
	devices.POST("/trust", h.Trust)
	devices.POST("/revoke", h.Revoke)
}
