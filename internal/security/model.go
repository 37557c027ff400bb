// Package security maintains the append-only security event trail:
// recording incidents from the rest of the application, querying and
// aggregating them, and scanning inbound requests for injection patterns.
package security

import "time"

// Incident types. Stored as strings so the trail stays readable in raw
// SQL and log output.
const (
	IncidentLoginFailure        = "LOGIN_FAILURE"
	IncidentLoginSuccess        = "LOGIN_SUCCESS"
	IncidentPermissionDenied    = "PERMISSION_DENIED"
	IncidentSQLInjectionAttempt = "SQL_INJECTION_ATTEMPT"
	IncidentXSSAttempt          = "XSS_ATTEMPT"
	IncidentCSRFAttempt         = "CSRF_ATTEMPT"
	IncidentFileUploadViolation = "FILE_UPLOAD_VIOLATION"
	IncidentBruteForceAttempt   = "BRUTE_FORCE_ATTEMPT"
	IncidentUnauthorizedAccess  = "UNAUTHORIZED_ACCESS"
	IncidentSuspiciousActivity  = "SUSPICIOUS_ACTIVITY"
)

// Severity levels.
const (
	LevelLow      = "LOW"
	LevelMedium   = "MEDIUM"
	LevelHigh     = "HIGH"
	LevelCritical = "CRITICAL"
)

// validIncidentTypes and validLevels guard inserts so the trail never
// accumulates free-form categories.
var validIncidentTypes = map[string]bool{
	IncidentLoginFailure:        true,
	IncidentLoginSuccess:        true,
	IncidentPermissionDenied:    true,
	IncidentSQLInjectionAttempt: true,
	IncidentXSSAttempt:          true,
	IncidentCSRFAttempt:         true,
	IncidentFileUploadViolation: true,
	IncidentBruteForceAttempt:   true,
	IncidentUnauthorizedAccess:  true,
	IncidentSuspiciousActivity:  true,
}

var validLevels = map[string]bool{
	LevelLow:      true,
	LevelMedium:   true,
	LevelHigh:     true,
	LevelCritical: true,
}

// Event is one entry in the security trail. Events are append-only; there
// is no update or delete path.
type Event struct {
	ID           int64     `json:"id"`
	IncidentType string    `json:"incident_type"`
	Level        string    `json:"level"`
	Username     string    `json:"username"`
	IPAddress    string    `json:"ip_address"`
	UserAgent    string    `json:"user_agent"`
	Path         string    `json:"path"`
	Description  string    `json:"description"`
	CreatedAt    time.Time `json:"created_at"`
}

// ListFilter narrows an event query. All set fields are combined with AND.
type ListFilter struct {
	// Search matches against username, IP address, and description.
	Search string

	// IncidentType and Level filter exactly when non-empty.
	IncidentType string
	Level        string

	// StartDate and EndDate bound created_at. EndDate is inclusive for the
	// whole day.
	StartDate string
	EndDate   string

	// Page is 1-based. PageSize caps at 100.
	Page     int
	PageSize int
}

// Stats summarizes the trail for the dashboard.
type Stats struct {
	TotalIncidents    int64 `json:"total_incidents"`
	HighIncidents     int64 `json:"high_incidents"`
	CriticalIncidents int64 `json:"critical_incidents"`
	TodayIncidents    int64 `json:"today_incidents"`
}

// ReportRow is one day of the per-day incident breakdown.
type ReportRow struct {
	Date    string           `json:"date"`
	Total   int64            `json:"total"`
	ByLevel map[string]int64 `json:"by_level"`
	ByType  map[string]int64 `json:"by_type"`
}
