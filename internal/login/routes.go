package login

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/lumenwerk/gatehouse/internal/middleware"
)

// RegisterPublicRoutes mounts the unauthenticated login endpoints.
func RegisterPublicRoutes(g *echo.Group, h *Handler) {
	limited := middleware.RateLimit(10, time.Minute)
	g.POST("/login", h.Login, limited)
	g.POST("/login/verify-2fa", h.VerifySecondFactor, limited)
	g.POST("/login/resend-2fa", h.ResendSecondFactor, limited)
	g.POST("/verify-token", h.VerifyToken)
}

// RegisterProtectedRoutes mounts the endpoints that need a live session.
func RegisterProtectedRoutes(g *echo.Group, h *Handler) {
	g.POST("/logout", h.Logout)
	g.GET("/security/overview", h.Overview)
}
