package adminauth

import (
	"errors"
	"time"
)

// Config defines a public type used by adminauth APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Lockout       LockoutConfig
	TOTP          TOTPConfig
	Idle          IdleConfig
	PasswordReset PasswordResetConfig
	Audit         AuditConfig
	Metrics       MetricsConfig
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig defines a public type used by adminauth APIs.
//
// LockoutConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type LockoutConfig struct {
	// MaxLoginAttempts is the failed-attempt budget before the profile is
	// locked. Raw password rejections from the identity service do not
	// count against it; second-factor failures do.
	MaxLoginAttempts int

	// LockoutDuration is how far into the future locked_until is set when
	// the budget is exhausted.
	LockoutDuration time.Duration
}

/*
====================================
TOTP CONFIG
====================================
*/

// TOTPConfig defines a public type used by adminauth APIs.
//
// TOTPConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type TOTPConfig struct {
	Issuer           string
	Digits           int
	Period           int
	Skew             int
	BackupCodeCount  int
	BackupCodeLength int
}

/*
====================================
IDLE TIMEOUT CONFIG
====================================
*/

// IdleConfig defines a public type used by adminauth APIs.
//
// IdleConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type IdleConfig struct {
	Enabled bool

	// Timeout is the maximum gap between observed activity before the
	// session is forcibly signed out.
	Timeout time.Duration

	// CheckInterval is how often the monitor compares now - lastActivity
	// against Timeout.
	CheckInterval time.Duration
}

/*
====================================
PASSWORD RESET CONFIG
====================================
*/

// PasswordResetConfig defines a public type used by adminauth APIs.
//
// PasswordResetConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type PasswordResetConfig struct {
	// RedirectURL is passed through to the identity service's reset-email
	// mechanism.
	RedirectURL string
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig defines a public type used by adminauth APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig defines a public type used by adminauth APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled bool
}

/*
====================================
DEFAULTS
====================================
*/

func defaultConfig() Config {
	return Config{
		Lockout: LockoutConfig{
			MaxLoginAttempts: 5,
			LockoutDuration:  15 * time.Minute,
		},
		TOTP: TOTPConfig{
			Issuer:           "Admin",
			Digits:           6,
			Period:           30,
			Skew:             1,
			BackupCodeCount:  10,
			BackupCodeLength: 10,
		},
		Idle: IdleConfig{
			Enabled:       true,
			Timeout:       15 * time.Minute,
			CheckInterval: 60 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Config) Validate() error {
	// Lockout
	if c.Lockout.MaxLoginAttempts <= 0 {
		return errors.New("Lockout MaxLoginAttempts must be > 0")
	}
	if c.Lockout.LockoutDuration <= 0 {
		return errors.New("Lockout LockoutDuration must be > 0")
	}

	// TOTP
	if c.TOTP.Digits != 6 && c.TOTP.Digits != 8 {
		return errors.New("TOTP Digits must be 6 or 8")
	}
	if c.TOTP.Period <= 0 {
		return errors.New("TOTP Period must be > 0")
	}
	if c.TOTP.Skew < 0 {
		return errors.New("TOTP Skew must be >= 0")
	}
	if c.TOTP.BackupCodeCount < 0 {
		return errors.New("TOTP BackupCodeCount must be >= 0")
	}
	if c.TOTP.BackupCodeCount > 0 && c.TOTP.BackupCodeLength < 8 {
		return errors.New("TOTP BackupCodeLength must be >= 8")
	}

	// Idle
	if c.Idle.Enabled {
		if c.Idle.Timeout <= 0 {
			return errors.New("Idle Timeout must be > 0 when enabled")
		}
		if c.Idle.CheckInterval <= 0 {
			return errors.New("Idle CheckInterval must be > 0 when enabled")
		}
		if c.Idle.CheckInterval > c.Idle.Timeout {
			return errors.New("Idle CheckInterval must not exceed Timeout")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}
