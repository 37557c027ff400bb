// Package device tracks the devices an administrator logs in from, keyed
// by a request fingerprint, with trust and revocation controls.
package device

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Device is one remembered login device for an account. Rows are never
// deleted; revoked devices stay for the audit trail.
type Device struct {
	ID         int64     `json:"id"`
	AccountID  int64     `json:"-"`
	DeviceID   string    `json:"device_id"`
	Name       string    `json:"name"`
	Type       string    `json:"type"`
	IPAddress  string    `json:"ip_address"`
	UserAgent  string    `json:"user_agent"`
	Trusted    bool      `json:"trusted"`
	Revoked    bool      `json:"revoked"`
	LoginCount int64     `json:"login_count"`
	FirstSeen  time.Time `json:"first_seen"`
	LastLogin  time.Time `json:"last_login"`

	// IsCurrent is derived per request, never stored.
	IsCurrent bool `json:"is_current"`
}

// Meta is the request context a device record is built from.
type Meta struct {
	// Hint is the optional client-supplied device identifier.
	Hint      string
	IP        string
	UserAgent string
}

// Fingerprint derives the stable device id for the request. Clients
// behind the same NAT with identical browsers collide; the hint lets a
// client disambiguate itself.
func Fingerprint(meta Meta) string {
	sum := sha256.Sum256([]byte(meta.Hint + "|" + meta.IP + "|" + meta.UserAgent))
	return hex.EncodeToString(sum[:])[:64]
}

// Device type classification by User-Agent keyword.
const (
	TypeMobile  = "mobile"
	TypeTablet  = "tablet"
	TypeDesktop = "desktop"
)

// Classify derives a device type and a human-readable name from the
// User-Agent string.
func Classify(userAgent string) (deviceType, name string) {
	ua := strings.ToLower(userAgent)

	deviceType = TypeDesktop
	switch {
	case strings.Contains(ua, "ipad") || strings.Contains(ua, "tablet"):
		deviceType = TypeTablet
	case strings.Contains(ua, "mobile") || strings.Contains(ua, "iphone") || strings.Contains(ua, "android"):
		deviceType = TypeMobile
	}

	os := "Unknown OS"
	switch {
	case strings.Contains(ua, "windows"):
		os = "Windows"
	case strings.Contains(ua, "iphone") || strings.Contains(ua, "ipad"):
		os = "iOS"
	case strings.Contains(ua, "android"):
		os = "Android"
	case strings.Contains(ua, "mac os") || strings.Contains(ua, "macintosh"):
		os = "macOS"
	case strings.Contains(ua, "linux"):
		os = "Linux"
	}

	browser := "Unknown Browser"
	switch {
	case strings.Contains(ua, "edg/") || strings.Contains(ua, "edge"):
		browser = "Edge"
	case strings.Contains(ua, "opr/") || strings.Contains(ua, "opera"):
		browser = "Opera"
	case strings.Contains(ua, "chrome"):
		browser = "Chrome"
	case strings.Contains(ua, "firefox"):
		browser = "Firefox"
	case strings.Contains(ua, "safari"):
		browser = "Safari"
	}

	return deviceType, browser + " on " + os
}
