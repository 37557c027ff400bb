package session

import (
	"github.com/labstack/echo/v4"

	"github.com/lumenwerk/gatehouse/internal/security"
)

// HeaderName and CookieName are the two places a client may present its
// session token. The header wins when both are set.
const (
	HeaderName = "admintoken"
	CookieName = "gatehouse_session"
)

const contextKey = "gatehouse.session"

// TokenFromRequest extracts the session token from the request, or "".
func TokenFromRequest(c echo.Context) string {
	if token := c.Request().Header.Get(HeaderName); token != "" {
		return token
	}
	if cookie, err := c.Cookie(CookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// FromContext returns the session attached by RequireSession, or nil on
// unguarded routes.
func FromContext(c echo.Context) *Session {
	sess, _ := c.Get(contextKey).(*Session)
	return sess
}

// RequireSession guards a route group. Requests without a valid session
// fail with the token error taxonomy and leave an UNAUTHORIZED_ACCESS
// entry in the trail.
func RequireSession(svc *Service, recorder security.Recorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sess, err := svc.Validate(c.Request().Context(), TokenFromRequest(c))
			if err != nil {
				recorder.Record(c.Request().Context(), security.Event{
					IncidentType: security.IncidentUnauthorizedAccess,
					Level:        security.LevelMedium,
					IPAddress:    c.RealIP(),
					UserAgent:    c.Request().UserAgent(),
					Path:         c.Request().URL.Path,
					Description:  "protected route without valid session",
				})
				return err
			}
			c.Set(contextKey, sess)
			return next(c)
		}
	}
}
