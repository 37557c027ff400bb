package security

import "github.com/labstack/echo/v4"

// RegisterRoutes mounts the audit query endpoints on a session-guarded group.
func RegisterRoutes(g *echo.Group, h *Handler) {
	sec := g.Group("/security")
	sec.GET("/list", h.List)
	sec.GET("/stats", h.Stats)
	sec.GET("/report", h.Report)
}
