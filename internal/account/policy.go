package account

import (
	"fmt"
	"time"
	"unicode"

	"github.com/lumenwerk/gatehouse/internal/apperror"
	"github.com/lumenwerk/gatehouse/internal/config"
)

// CheckComplexity validates a candidate password against the complexity
// rules: minimum length plus at least one upper-case letter, one lower-case
// letter, one digit, and one symbol.
func CheckComplexity(password string, cfg config.PasswordConfig) error {
	if len(password) < cfg.MinLength {
		return apperror.NewPolicy(fmt.Sprintf("password must be at least %d characters", cfg.MinLength))
	}

	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSymbol = true
		}
	}
	if !hasUpper || !hasLower || !hasDigit || !hasSymbol {
		return apperror.NewPolicy("password must contain upper and lower case letters, a digit, and a symbol")
	}
	return nil
}

// ExpiryStatus computes where the account stands against the password
// expiry deadline at the given time. Accounts without a recorded change
// date are treated as if the password were set now.
func ExpiryStatus(acct *Account, cfg config.PasswordConfig, now time.Time) PasswordStatus {
	changed := acct.PasswordChangedAt
	if changed.IsZero() {
		changed = now
	}
	deadline := changed.AddDate(0, 0, cfg.ExpireDays)
	remaining := int(deadline.Sub(now).Hours() / 24)

	return PasswordStatus{
		Expired:       !now.Before(deadline),
		DaysRemaining: remaining,
		Warn:          now.Before(deadline) && remaining <= cfg.WarnDays,
		ExpireDays:    cfg.ExpireDays,
		LastChanged:   changed,
		ExpireDate:    deadline,
	}
}
