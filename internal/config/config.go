// Package config handles loading application configuration from environment
// variables. All config is centralized here so no other package reads env
// vars directly. Sensible defaults are provided for development.
package config

import (
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Config holds all application configuration. Populated from environment
// variables at startup. Passed to other packages via dependency injection.
type Config struct {
	// Env is the runtime environment: "development" or "production".
	Env string

	// Port is the HTTP listen port (default: 8080).
	Port int

	// BaseURL is the public-facing URL used in outbound email.
	BaseURL string

	// LogLevel controls log verbosity: "debug", "info", "warn", "error".
	LogLevel string

	// TrustedProxyCIDRs lists the proxy ranges whose X-Forwarded-For
	// header is honored when resolving client IPs. Empty means the
	// direct peer address is used.
	TrustedProxyCIDRs []string

	// Database holds MariaDB connection settings.
	Database DatabaseConfig

	// Redis holds Redis connection settings.
	Redis RedisConfig

	// Auth holds login and session settings.
	Auth AuthConfig

	// Password holds password policy settings.
	Password PasswordConfig

	// Captcha holds captcha challenge settings.
	Captcha CaptchaConfig

	// SMTP holds outbound mail settings for second-factor codes.
	SMTP SMTPConfig
}

// DatabaseConfig holds MariaDB connection parameters. Individual fields are
// read from separate env vars so container orchestrators can manage each
// independently. If DATABASE_URL is set, it takes precedence.
type DatabaseConfig struct {
	// Host is the MariaDB address in host:port format (default: "localhost:3306").
	// If no port is specified, 3306 is appended automatically.
	Host string

	// User is the MariaDB username (default: "gatehouse").
	User string

	// Password is the MariaDB password (default: "gatehouse").
	Password string

	// Name is the database name (default: "gatehouse").
	Name string

	// dsnOverride is set when DATABASE_URL is provided, bypassing individual fields.
	dsnOverride string

	// MaxOpenConns is the maximum number of open connections in the pool.
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections in the pool.
	MaxIdleConns int

	// ConnMaxLifetime is how long a connection can be reused.
	ConnMaxLifetime time.Duration
}

// DSN returns the go-sql-driver/mysql connection string. If DATABASE_URL was
// set, it is returned as-is. Otherwise the DSN is built from the individual
// fields using the driver's Config.FormatDSN() to safely handle special
// characters in passwords.
func (d DatabaseConfig) DSN() string {
	if d.dsnOverride != "" {
		return d.dsnOverride
	}
	cfg := mysql.NewConfig()
	cfg.User = d.User
	cfg.Passwd = d.Password
	cfg.Net = "tcp"
	cfg.Addr = ensurePort(d.Host, "3306")
	cfg.DBName = d.Name
	cfg.ParseTime = true
	return cfg.FormatDSN()
}

// ensurePort appends the default port if the host string doesn't include one.
func ensurePort(host, defaultPort string) string {
	_, _, err := net.SplitHostPort(host)
	if err != nil {
		return net.JoinHostPort(host, defaultPort)
	}
	return host
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g., "redis://localhost:6379").
	URL string
}

// AuthConfig holds login and session settings.
type AuthConfig struct {
	// SessionTTL is how long a session token lives (default: 24h).
	SessionTTL time.Duration

	// TempTokenTTL bounds the whole pending-2FA window (default: 10m).
	TempTokenTTL time.Duration

	// CodeTTL is how long an individual emailed code stays valid (default: 5m).
	CodeTTL time.Duration

	// CodeLength is the number of digits in a second-factor code (default: 6).
	CodeLength int

	// MaxCodeAttempts is the verification budget per challenge (default: 5).
	MaxCodeAttempts int

	// FailureThreshold is the number of consecutive credential failures
	// before an account locks (default: 5).
	FailureThreshold int

	// FailureWindow is the sliding window for the failure counter (default: 15m).
	FailureWindow time.Duration

	// TrustedDeviceSkipSecondFactor lets logins from trusted devices skip
	// the second factor. Off by default; it never bypasses captcha or
	// credential checks.
	TrustedDeviceSkipSecondFactor bool
}

// PasswordConfig holds the password policy knobs.
type PasswordConfig struct {
	// ExpireDays forces a password change this many days after the last
	// one (default: 90).
	ExpireDays int

	// WarnDays starts expiry warnings this many days before the deadline
	// (default: 7).
	WarnDays int

	// HistoryCount is how many previous password hashes a new password is
	// checked against (default: 5).
	HistoryCount int

	// MinLength is the minimum password length (default: 8).
	MinLength int
}

// CaptchaConfig holds captcha challenge settings.
type CaptchaConfig struct {
	// TTL is how long an unconsumed challenge lives (default: 5m).
	TTL time.Duration

	// Length is the number of digits in the challenge code (default: 4).
	Length int

	// Width and Height are the rendered image dimensions in pixels.
	Width  int
	Height int
}

// SMTPConfig holds outbound mail settings. When Host is empty, mail
// dispatch is disabled and second-factor codes are only logged (useful in
// development).
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string

	// FromAddress and FromName populate the From header.
	FromAddress string
	FromName    string

	// Encryption is "starttls" (default), "ssl", or "none".
	Encryption string
}

// Load reads configuration from environment variables with sensible
// defaults. Returns an error if required production variables are missing.
func Load() (*Config, error) {
	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		Port:     getEnvInt("PORT", 8080),
		BaseURL:  getEnv("BASE_URL", "http://localhost:8080"),
		LogLevel: getEnv("LOG_LEVEL", "debug"),

		TrustedProxyCIDRs: getEnvList("TRUSTED_PROXIES"),

		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost:3306"),
			User:            getEnv("DB_USER", "gatehouse"),
			Password:        getEnv("DB_PASSWORD", "gatehouse"),
			Name:            getEnv("DB_NAME", "gatehouse"),
			dsnOverride:     getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},

		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", "redis://localhost:6379"),
		},

		Auth: AuthConfig{
			SessionTTL:                    getEnvDuration("SESSION_TTL", 24*time.Hour),
			TempTokenTTL:                  getEnvDuration("TEMP_TOKEN_TTL", 10*time.Minute),
			CodeTTL:                       getEnvDuration("TWO_FACTOR_CODE_TTL", 5*time.Minute),
			CodeLength:                    getEnvInt("TWO_FACTOR_CODE_LENGTH", 6),
			MaxCodeAttempts:               getEnvInt("TWO_FACTOR_MAX_ATTEMPTS", 5),
			FailureThreshold:              getEnvInt("LOGIN_FAILURE_THRESHOLD", 5),
			FailureWindow:                 getEnvDuration("LOGIN_FAILURE_WINDOW", 15*time.Minute),
			TrustedDeviceSkipSecondFactor: getEnvBool("AUTH_TRUSTED_DEVICE_SKIP_2FA", false),
		},

		Password: PasswordConfig{
			ExpireDays:   getEnvInt("PASSWORD_EXPIRE_DAYS", 90),
			WarnDays:     getEnvInt("PASSWORD_WARN_DAYS", 7),
			HistoryCount: getEnvInt("PASSWORD_HISTORY_COUNT", 5),
			MinLength:    getEnvInt("PASSWORD_MIN_LENGTH", 8),
		},

		Captcha: CaptchaConfig{
			TTL:    getEnvDuration("CAPTCHA_TTL", 5*time.Minute),
			Length: getEnvInt("CAPTCHA_LENGTH", 4),
			Width:  getEnvInt("CAPTCHA_WIDTH", 140),
			Height: getEnvInt("CAPTCHA_HEIGHT", 60),
		},

		SMTP: SMTPConfig{
			Host:        getEnv("SMTP_HOST", ""),
			Port:        getEnvInt("SMTP_PORT", 587),
			Username:    getEnv("SMTP_USERNAME", ""),
			Password:    getEnv("SMTP_PASSWORD", ""),
			FromAddress: getEnv("SMTP_FROM_ADDRESS", "no-reply@localhost"),
			FromName:    getEnv("SMTP_FROM_NAME", "Gatehouse Security"),
			Encryption:  getEnv("SMTP_ENCRYPTION", "starttls"),
		},
	}

	return cfg, nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	env := strings.ToLower(c.Env)
	return env == "development" || env == "dev"
}

// --- Helper functions for reading environment variables ---

// getEnv reads a string env var or returns the default.
func getEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

// getEnvInt reads an integer env var or returns the default.
func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvBool reads a boolean env var ("true"/"1") or returns the default.
func getEnvBool(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

// getEnvList reads a comma-separated env var into a slice, trimming
// whitespace and dropping empty entries.
func getEnvList(key string) []string {
	val, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// getEnvDuration reads a duration env var (e.g., "24h") or returns the default.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
