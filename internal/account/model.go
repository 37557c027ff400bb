// Package account manages administrator accounts: credential verification
// with brute-force lockout, and the password policy (expiry, history,
// complexity).
package account

import "time"

// Account represents an administrator account.
type Account struct {
	ID                int64     `json:"id"`
	Username          string    `json:"username"`
	Role              string    `json:"role"`
	Email             string    `json:"email"`
	Mobile            string    `json:"mobile,omitempty"`
	PasswordHash      string    `json:"-"`
	TwoFactorEnabled  bool      `json:"two_factor_enabled"`
	TwoFactorMethod   string    `json:"two_factor_method"`
	PasswordChangedAt time.Time `json:"password_changed_at"`
	Active            bool      `json:"active"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// PasswordStatus describes where an account stands against the password
// expiry policy.
type PasswordStatus struct {
	// Expired is true when the password is past its deadline. An expired
	// password blocks session issuance until it is changed.
	Expired bool `json:"expired"`

	// DaysRemaining is the number of whole days until expiry. Zero or
	// negative when expired.
	DaysRemaining int `json:"days_remaining"`

	// Warn is true inside the warning window before expiry.
	Warn bool `json:"warn"`

	// ExpireDays echoes the configured expiry period.
	ExpireDays int `json:"expire_days"`

	// LastChanged and ExpireDate bound the current password's lifetime.
	LastChanged time.Time `json:"last_changed"`
	ExpireDate  time.Time `json:"expire_date"`
}
