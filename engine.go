package adminauth

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Engine defines a public type used by adminauth APIs.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config   Config
	identity IdentityService
	profiles ProfileStore
	roles    RoleStore
	verifier *secondFactorVerifier
	idle     *idleMonitor
	audit    *auditDispatcher
	metrics  *Metrics
	notifier Notifier
	logger   zerolog.Logger

	onForcedLogout func(LogoutReason)

	clock func() time.Time

	// attemptInFlight rejects overlapping Login/VerifySecondFactor calls so
	// a double-submit cannot increment the lockout counter twice for one
	// user action.
	attemptInFlight atomic.Bool
	closed          atomic.Bool

	unsubscribe func()

	mu           sync.Mutex
	phase        SessionPhase
	state        SessionState
	twoFAEnabled bool
}

// Close tears down the engine: the idle monitor stops, the auth-state
// subscription is released, and the audit dispatcher drains. The engine
// must not be used afterwards.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if !e.closed.CompareAndSwap(false, true) {
		return
	}
	if e.idle != nil {
		e.idle.Disarm()
	}
	if e.unsubscribe != nil {
		e.unsubscribe()
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// Phase describes the phase operation and its observable behavior.
//
// Phase may return an error when input validation, dependency calls, or security checks fail.
// Phase does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Phase() SessionPhase {
	if e == nil {
		return PhaseSignedOut
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

// State returns a copy of the local session state.
func (e *Engine) State() SessionState {
	if e == nil {
		return SessionState{}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// IsAdmin reports whether the current session is fully authorized: the role
// store confirmed the admin role and, when the profile has TOTP enabled, a
// second factor has been verified. Sessions awaiting their second factor
// report false.
func (e *Engine) IsAdmin() bool {
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase == PhaseAuthenticated && e.state.TwoFactorVerified
}

// Requires2FA reports whether a password check succeeded and a second-factor
// submission is pending.
func (e *Engine) Requires2FA() bool {
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase == PhaseAwaitingSecondFactor
}

// TwoFAEnabled reports whether the profile behind the current session has
// TOTP enrolled. False when signed out.
func (e *Engine) TwoFAEnabled() bool {
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase != PhaseSignedOut && e.twoFAEnabled
}

// Loading reports whether a Login or VerifySecondFactor call is in flight.
// UI layers disable their submit controls while it is true.
func (e *Engine) Loading() bool {
	return e != nil && e.attemptInFlight.Load()
}

// Touch records user activity (click/keypress) for the idle-timeout monitor.
// It is a no-op unless the session is authenticated.
func (e *Engine) Touch() {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase != PhaseAuthenticated {
		return
	}
	e.state.LastActivity = e.clock()
}

// beginAttempt claims the single-attempt slot, returning false when another
// Login/VerifySecondFactor call already holds it.
func (e *Engine) beginAttempt() bool {
	return e.attemptInFlight.CompareAndSwap(false, true)
}

func (e *Engine) endAttempt() {
	e.attemptInFlight.Store(false)
}

// handleAuthChange mirrors identity-service session invalidation: when the
// service reports the session gone for the locally tracked user, the local
// state is cleared without a redundant SignOut round-trip.
func (e *Engine) handleAuthChange(event AuthChangeEvent) {
	if e == nil || event.Type != AuthSignedOut {
		return
	}

	e.mu.Lock()
	if e.phase == PhaseSignedOut || (event.UserID != "" && event.UserID != e.state.UserID) {
		e.mu.Unlock()
		return
	}
	e.phase = PhaseSignedOut
	e.state = SessionState{}
	e.twoFAEnabled = false
	e.mu.Unlock()

	if e.idle != nil {
		e.idle.Disarm()
	}
	e.metricInc(MetricExternalSignOut)
	e.emitAudit(context.Background(), auditEventExternalSignOut, true, event.UserID, "", nil, nil)
	e.notifier.Error("Signed out")
	if e.onForcedLogout != nil {
		e.onForcedLogout(LogoutExternal)
	}
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot may return an error when input validation, dependency calls, or security checks fail.
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

// AuditDropped describes the auditdropped operation and its observable behavior.
//
// AuditDropped may return an error when input validation, dependency calls, or security checks fail.
// AuditDropped does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}
