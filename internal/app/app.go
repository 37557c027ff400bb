// Package app wires configuration, storage, services, and routes into a
// runnable HTTP application.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/lumenwerk/gatehouse/internal/apperror"
	"github.com/lumenwerk/gatehouse/internal/config"
	"github.com/lumenwerk/gatehouse/internal/middleware"
	"github.com/lumenwerk/gatehouse/internal/response"
)

// App holds the application's long-lived resources.
type App struct {
	Config *config.Config
	DB     *sql.DB
	Redis  *redis.Client
	Echo   *echo.Echo
}

// New assembles the application: echo instance, middleware, services, and
// routes.
func New(cfg *config.Config, db *sql.DB, rdb *redis.Client) *App {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler

	e.Use(middleware.Recovery())
	e.Use(middleware.RequestLogger())
	e.Use(middleware.SecurityHeaders())

	if len(cfg.TrustedProxyCIDRs) > 0 {
		if err := middleware.TrustedProxies(e, cfg.TrustedProxyCIDRs); err != nil {
			slog.Warn("invalid trusted proxy range, using peer addresses",
				slog.String("error", err.Error()))
		}
	}

	a := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
		Echo:   e,
	}
	a.registerRoutes()
	return a
}

// Start begins serving HTTP on the configured port.
func (a *App) Start() error {
	addr := fmt.Sprintf(":%d", a.Config.Port)
	slog.Info("server listening", slog.String("addr", addr))
	return a.Echo.Start(addr)
}

// Shutdown gracefully stops the server and closes connections.
func (a *App) Shutdown(ctx context.Context) error {
	if err := a.Echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	if err := a.DB.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	if err := a.Redis.Close(); err != nil {
		return fmt.Errorf("closing redis: %w", err)
	}
	return nil
}

// errorHandler translates errors into the {code, msg} envelope. Domain
// errors carry their own status and code; anything else is a 500 with a
// generic message.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		if appErr.Internal != nil {
			slog.Error("request failed",
				slog.String("type", appErr.Type),
				slog.String("path", c.Request().URL.Path),
				slog.String("error", appErr.Internal.Error()))
		}
		response.Fail(c, appErr.Status, appErr.Code, appErr.Message)
		return
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		msg := http.StatusText(httpErr.Code)
		if s, ok := httpErr.Message.(string); ok {
			msg = s
		}
		response.Fail(c, httpErr.Code, apperror.CodeValidation, msg)
		return
	}

	slog.Error("unhandled error",
		slog.String("path", c.Request().URL.Path),
		slog.String("error", err.Error()))
	response.Fail(c, http.StatusInternalServerError, apperror.CodeInternal, "internal server error")
}
