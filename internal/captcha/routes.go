package captcha

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/lumenwerk/gatehouse/internal/middleware"
)

// RegisterRoutes mounts the captcha endpoints under the admin API group.
func RegisterRoutes(g *echo.Group, h *Handler) {
	limited := g.Group("/captcha", middleware.RateLimit(30, time.Minute))
	limited.GET("/key", h.NewKey)
	limited.GET("", h.Image)
}
