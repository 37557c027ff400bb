// Package middleware provides HTTP middleware shared across routes.
package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/labstack/echo/v4"
)

// Recovery catches panics in handlers, logs the stack trace, and returns
// a 500 response instead of crashing the server.
func Recovery() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			defer func() {
				if r := recover(); r != nil {
					err, ok := r.(error)
					if !ok {
						err = fmt.Errorf("%v", r)
					}
					slog.Error("panic recovered",
						slog.String("error", err.Error()),
						slog.String("path", c.Request().URL.Path),
						slog.String("method", c.Request().Method),
						slog.String("stack", string(debug.Stack())))
					c.JSON(http.StatusInternalServerError, map[string]any{
						"code": 9,
						"msg":  "internal server error",
					})
				}
			}()
			return next(c)
		}
	}
}
