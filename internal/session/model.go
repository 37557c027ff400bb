// Package session issues and validates opaque session tokens backed by
// Redis, and enforces them on protected routes.
package session

import "time"

// Session is the server-side state behind an opaque token. Tokens carry no
// information themselves; everything lives here.
type Session struct {
	AccountID int64     `json:"account_id"`
	DeviceID  string    `json:"device_id"`
	Username  string    `json:"username"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`

	// Revoked is flipped in place rather than deleting the record, so a
	// revoked token stays distinguishable from an unknown one until the
	// record's TTL runs out.
	Revoked bool `json:"revoked"`
}
