package security

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
)

type captureRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (c *captureRecorder) Record(_ context.Context, event Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func scanRequest(t *testing.T, method, target, body string) (*httptest.ResponseRecorder, *captureRecorder, bool) {
	t.Helper()

	recorder := &captureRecorder{}
	e := echo.New()

	var reached bool
	handler := Scanner(recorder)(func(c echo.Context) error {
		reached = true
		return c.NoContent(http.StatusOK)
	})

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := handler(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec, recorder, reached
}

func TestScannerBlocksSQLInjection(t *testing.T) {
	rec, recorder, reached := scanRequest(t, http.MethodGet,
		"/api/admin/security/list?search=1%27%20OR%20%271%27=%271", "")

	if reached {
		t.Error("handler must not run for an injection attempt")
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	if len(recorder.events) != 1 || recorder.events[0].IncidentType != IncidentSQLInjectionAttempt {
		t.Errorf("expected one SQL injection event, got %+v", recorder.events)
	}
	if recorder.events[0].Level != LevelHigh {
		t.Errorf("expected HIGH level, got %s", recorder.events[0].Level)
	}
}

func TestScannerBlocksXSSInBody(t *testing.T) {
	_, recorder, reached := scanRequest(t, http.MethodPost, "/api/admin/login",
		`{"username":"<script>alert(1)</script>"}`)

	if reached {
		t.Error("handler must not run for an XSS attempt")
	}
	if len(recorder.events) != 1 || recorder.events[0].IncidentType != IncidentXSSAttempt {
		t.Errorf("expected one XSS event, got %+v", recorder.events)
	}
}

func TestScannerPassesCleanRequest(t *testing.T) {
	rec, recorder, reached := scanRequest(t, http.MethodPost, "/api/admin/login",
		`{"username":"admin","password":"Str0ng!pass"}`)

	if !reached {
		t.Error("clean request must reach the handler")
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if len(recorder.events) != 0 {
		t.Errorf("clean request recorded events: %+v", recorder.events)
	}
}

func TestScannerPreservesBodyForHandler(t *testing.T) {
	recorder := &captureRecorder{}
	e := echo.New()

	var seen string
	handler := Scanner(recorder)(func(c echo.Context) error {
		var payload struct {
			Username string `json:"username"`
		}
		if err := c.Bind(&payload); err != nil {
			return err
		}
		seen = payload.Username
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/admin/login",
		strings.NewReader(`{"username":"admin"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())

	if err := handler(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if seen != "admin" {
		t.Errorf("body not readable after scan, got %q", seen)
	}
}
