package security

import (
	"bytes"
	"io"
	"net/http"
	"net/url"
	"regexp"

	"github.com/labstack/echo/v4"
)

// Injection signatures. Deliberately coarse: the scanner is a tripwire
// for the audit trail, not an input sanitizer. Parameterized SQL and JSON
// encoding remain the actual defenses.
var (
	sqlPattern = regexp.MustCompile(`(?i)(\bunion\b.{0,40}\bselect\b|\bor\b\s+\d+\s*=\s*\d+|'\s*or\s*'|--\s|;\s*(drop|delete|truncate|alter)\b|\bsleep\s*\(|\bbenchmark\s*\()`)
	xssPattern = regexp.MustCompile(`(?i)(<\s*script|javascript\s*:|\bon(error|load|click|mouseover)\s*=|<\s*iframe|document\.cookie|\balert\s*\()`)
)

// maxScanBody bounds how much of a request body the scanner reads.
const maxScanBody = 64 * 1024

// Scanner inspects the query string and body of incoming requests for SQL
// injection and XSS signatures. A hit is recorded to the trail and the
// request is rejected.
func Scanner(recorder Recorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			payload, err := url.QueryUnescape(req.URL.RawQuery)
			if err != nil {
				payload = req.URL.RawQuery
			}
			if req.Body != nil && req.ContentLength > 0 && req.ContentLength <= maxScanBody {
				body, err := io.ReadAll(io.LimitReader(req.Body, maxScanBody))
				if err == nil {
					req.Body = io.NopCloser(bytes.NewReader(body))
					payload += "\n" + string(body)
				}
			}

			incident := ""
			switch {
			case sqlPattern.MatchString(payload):
				incident = IncidentSQLInjectionAttempt
			case xssPattern.MatchString(payload):
				incident = IncidentXSSAttempt
			}

			if incident != "" {
				recorder.Record(req.Context(), Event{
					IncidentType: incident,
					Level:        LevelHigh,
					IPAddress:    c.RealIP(),
					UserAgent:    req.UserAgent(),
					Path:         req.URL.Path,
					Description:  "request blocked by injection scanner",
				})
				return c.JSON(http.StatusBadRequest, map[string]any{
					"code": 1,
					"msg":  "request rejected",
				})
			}

			return next(c)
		}
	}
}
