package security

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/lumenwerk/gatehouse/internal/response"
)

// Handler exposes the audit query endpoints.
type Handler struct {
	service *Service
}

// NewHandler creates a security handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// List handles GET /api/admin/security/list.
func (h *Handler) List(c echo.Context) error {
	filter := ListFilter{
		Search:       c.QueryParam("search"),
		IncidentType: c.QueryParam("incident_type"),
		Level:        c.QueryParam("level"),
		StartDate:    c.QueryParam("start_date"),
		EndDate:      c.QueryParam("end_date"),
		Page:         intParam(c, "page", 1),
		PageSize:     intParam(c, "page_size", 20),
	}

	events, total, err := h.service.List(c.Request().Context(), filter)
	if err != nil {
		return err
	}
	return response.OK(c, "ok", map[string]any{
		"items": events,
		"total": total,
		"page":  max(filter.Page, 1),
	})
}

// Stats handles GET /api/admin/security/stats.
func (h *Handler) Stats(c echo.Context) error {
	stats, err := h.service.Stats(c.Request().Context())
	if err != nil {
		return err
	}
	return response.OK(c, "ok", stats)
}

// Report handles GET /api/admin/security/report.
func (h *Handler) Report(c echo.Context) error {
	report, err := h.service.Report(c.Request().Context(), intParam(c, "days", 7))
	if err != nil {
		return err
	}
	return response.OK(c, "ok", map[string]any{
		"days":   len(report),
		"report": report,
	})
}

func intParam(c echo.Context, name string, fallback int) int {
	if v := c.QueryParam(name); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
