package captcha

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/lumenwerk/gatehouse/internal/response"
)

// Handler exposes the captcha endpoints.
type Handler struct {
	service *Service
}

// NewHandler creates a captcha handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// NewKey handles GET /api/admin/captcha/key.
func (h *Handler) NewKey(c echo.Context) error {
	return response.OK(c, "ok", map[string]string{
		"captcha_key": h.service.NewKey(),
	})
}

// Image handles GET /api/admin/captcha?key=<key>. Returns the rendered
// challenge as a PNG.
func (h *Handler) Image(c echo.Context) error {
	img, err := h.service.Generate(c.Request().Context(), c.QueryParam("key"))
	if err != nil {
		return err
	}
	c.Response().Header().Set("Cache-Control", "no-store")
	return c.Blob(http.StatusOK, "image/png", img)
}
