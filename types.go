package adminauth

import (
	"context"
	"fmt"
	"time"
)

// RoleAdmin is the role the role store is consulted for on every login.
const RoleAdmin = "admin"

// SessionPhase represents where a session sits in the
// SignedOut → AwaitingSecondFactor → Authenticated state machine.
type SessionPhase uint8

const (
	// PhaseSignedOut is an exported constant or variable used by the authentication engine.
	PhaseSignedOut SessionPhase = iota
	// PhaseAwaitingSecondFactor is an exported constant or variable used by the authentication engine.
	PhaseAwaitingSecondFactor
	// PhaseAuthenticated is an exported constant or variable used by the authentication engine.
	PhaseAuthenticated
)

func (p SessionPhase) String() string {
	switch p {
	case PhaseSignedOut:
		return "signed_out"
	case PhaseAwaitingSecondFactor:
		return "awaiting_second_factor"
	case PhaseAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// AdminProfile is the persisted per-user security record owned by the
// profile store. The engine reads and mutates it but never creates it;
// provisioning happens out of band.
type AdminProfile struct {
	UserID              string
	FailedLoginAttempts int
	LockedUntil         *time.Time
	TOTPEnabled         bool
	TOTPSecret          string
	BackupCodes         []string
	LastLogin           *time.Time
}

// ProfileUpdate is a partial update applied by [ProfileStore.Update].
// Nil pointer fields are left untouched. LockedUntil and BackupCodes carry
// explicit set flags so the zero value can be distinguished from "no change".
type ProfileUpdate struct {
	FailedLoginAttempts *int

	LockedUntil    *time.Time
	SetLockedUntil bool

	LastLogin *time.Time

	BackupCodes    []string
	SetBackupCodes bool

	TOTPEnabled *bool
	TOTPSecret  *string
}

// SessionState is the engine-owned local view of the in-progress or
// completed login. It is destroyed on logout, forced timeout, or when the
// identity service reports the session gone.
type SessionState struct {
	UserID            string
	Email             string
	TwoFactorVerified bool
	TrustedDevice     bool
	LastActivity      time.Time
}

// LoginResult is returned by [Engine.Login]. Requires2FA true means the
// password step succeeded but the session is NOT authenticated until
// [Engine.VerifySecondFactor] succeeds.
type LoginResult struct {
	UserID      string
	Email       string
	Requires2FA bool
}

// SecondFactorMethod identifies which credential satisfied the second
// factor.
type SecondFactorMethod uint8

const (
	// MethodTOTP is an exported constant or variable used by the authentication engine.
	MethodTOTP SecondFactorMethod = iota
	// MethodBackupCode is an exported constant or variable used by the authentication engine.
	MethodBackupCode
)

// SecondFactorResult is returned by [Engine.VerifySecondFactor] on success.
// RemainingBackupCodes is only meaningful when Method is MethodBackupCode.
type SecondFactorResult struct {
	Method               SecondFactorMethod
	RemainingBackupCodes int
}

// SecondFactorError reports a rejected second-factor submission together
// with the attempts left before lockout. It unwraps to
// [ErrSecondFactorInvalid].
type SecondFactorError struct {
	Remaining int
}

func (e *SecondFactorError) Error() string {
	if e.Remaining == 1 {
		return "invalid verification code: 1 attempt remaining"
	}
	return fmt.Sprintf("invalid verification code: %d attempts remaining", e.Remaining)
}

func (e *SecondFactorError) Unwrap() error { return ErrSecondFactorInvalid }

// LogoutReason distinguishes the transitions that all end in PhaseSignedOut.
type LogoutReason uint8

const (
	// LogoutUser is an exported constant or variable used by the authentication engine.
	LogoutUser LogoutReason = iota
	// LogoutIdleTimeout is an exported constant or variable used by the authentication engine.
	LogoutIdleTimeout
	// LogoutLockout is an exported constant or variable used by the authentication engine.
	LogoutLockout
	// LogoutExternal is an exported constant or variable used by the authentication engine.
	LogoutExternal
)

func (r LogoutReason) String() string {
	switch r {
	case LogoutUser:
		return "user"
	case LogoutIdleTimeout:
		return "idle_timeout"
	case LogoutLockout:
		return "lockout"
	case LogoutExternal:
		return "external"
	default:
		return "unknown"
	}
}

// IdentityUser is the identity service's view of an authenticated user.
type IdentityUser struct {
	ID    string
	Email string
}

// AuthChangeEvent mirrors the identity service's session lifecycle
// notifications.
type AuthChangeEvent struct {
	Type   AuthChangeType
	UserID string
}

// AuthChangeType defines a public type used by adminauth APIs.
type AuthChangeType uint8

const (
	// AuthSignedIn is an exported constant or variable used by the authentication engine.
	AuthSignedIn AuthChangeType = iota
	// AuthSignedOut is an exported constant or variable used by the authentication engine.
	AuthSignedOut
	// AuthTokenRefreshed is an exported constant or variable used by the authentication engine.
	AuthTokenRefreshed
)

// IdentityService is the hosted credential store the engine delegates
// password checks and session lifetime to.
//
// SignInWithPassword returns an error wrapping [ErrInvalidCredentials] when
// the service rejects the pair; the wrapped message is surfaced to the
// caller verbatim. Any other error is treated as a transport failure and
// reported as [ErrUnexpected].
type IdentityService interface {
	SignInWithPassword(ctx context.Context, email, password string) (*IdentityUser, error)
	SignOut(ctx context.Context) error
	ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error

	// OnAuthStateChange registers fn for session lifecycle events and
	// returns its unsubscribe function. The engine subscribes exactly once
	// at Build and unsubscribes on Close.
	OnAuthStateChange(fn func(AuthChangeEvent)) (unsubscribe func())
}

// ProfileStore persists AdminProfile rows. Get returns
// [ErrProfileNotFound] when no row exists for the user id.
type ProfileStore interface {
	Get(ctx context.Context, userID string) (*AdminProfile, error)
	Update(ctx context.Context, userID string, update ProfileUpdate) error
}

// RoleStore answers role-membership existence checks.
type RoleStore interface {
	HasRole(ctx context.Context, userID, role string) (bool, error)
}

// Notifier receives the per-attempt toast wording. Implementations must not
// block; the engine calls them inline on its flow paths.
type Notifier interface {
	Success(message string)
	Error(message string)
}

// NoopNotifier discards all notifications. It is the default.
type NoopNotifier struct{}

// Success implements [Notifier].
func (NoopNotifier) Success(string) {}

// Error implements [Notifier].
func (NoopNotifier) Error(string) {}
