package adminauth

import "errors"

var (
	// ErrInvalidCredentials is an exported constant or variable used by the authentication engine.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNotAdmin is an exported constant or variable used by the authentication engine.
	ErrNotAdmin = errors.New("access denied: admin role required")
	// ErrAccountLocked is an exported constant or variable used by the authentication engine.
	ErrAccountLocked = errors.New("account locked, try again later")
	// ErrSecondFactorRequired is an exported constant or variable used by the authentication engine.
	ErrSecondFactorRequired = errors.New("second factor required")
	// ErrSecondFactorInvalid is an exported constant or variable used by the authentication engine.
	ErrSecondFactorInvalid = errors.New("invalid verification code")
	// ErrNoPendingSecondFactor is an exported constant or variable used by the authentication engine.
	ErrNoPendingSecondFactor = errors.New("no second-factor verification pending")
	// ErrTOTPNotConfigured is an exported constant or variable used by the authentication engine.
	ErrTOTPNotConfigured = errors.New("two-factor enabled but no secret provisioned")
	// ErrNotAuthenticated is an exported constant or variable used by the authentication engine.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrAttemptInFlight is an exported constant or variable used by the authentication engine.
	ErrAttemptInFlight = errors.New("authentication attempt already in flight")
	// ErrProfileNotFound is an exported constant or variable used by the authentication engine.
	ErrProfileNotFound = errors.New("admin profile not found")
	// ErrProfileUnavailable is an exported constant or variable used by the authentication engine.
	ErrProfileUnavailable = errors.New("profile store unavailable")
	// ErrRoleUnavailable is an exported constant or variable used by the authentication engine.
	ErrRoleUnavailable = errors.New("role store unavailable")
	// ErrUnexpected is an exported constant or variable used by the authentication engine.
	ErrUnexpected = errors.New("unexpected authentication error")
	// ErrEngineNotReady is an exported constant or variable used by the authentication engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrEngineClosed is an exported constant or variable used by the authentication engine.
	ErrEngineClosed = errors.New("engine closed")
)
