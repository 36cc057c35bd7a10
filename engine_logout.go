package adminauth

import "context"

// Logout unconditionally signs out of the identity service, clears the
// local session, and returns the engine to PhaseSignedOut. It is safe to
// call from any phase.
func (e *Engine) Logout(ctx context.Context) error {
	if e == nil || e.identity == nil {
		return ErrEngineNotReady
	}
	e.forceLogout(ctx, LogoutUser)
	return nil
}

// forceLogout is the single SignedOut transition shared by explicit logout,
// the idle-timeout monitor, and lockout enforcement. Local state clears
// before the identity round-trip so the auth-change mirror sees an already
// signed-out engine.
func (e *Engine) forceLogout(ctx context.Context, reason LogoutReason) {
	prior, hadSession := e.clearSession()
	e.signOutIdentity(ctx)

	if !hadSession {
		return
	}

	switch reason {
	case LogoutIdleTimeout:
		e.metricInc(MetricIdleTimeout)
		e.emitAudit(ctx, auditEventIdleTimeout, true, prior.UserID, prior.Email, nil, nil)
		e.notifier.Error("Session expired")
	default:
		e.metricInc(MetricLogout)
		e.emitAudit(ctx, auditEventLogout, true, prior.UserID, prior.Email, nil, nil)
		e.notifier.Success("Signed out")
	}

	if reason != LogoutUser && e.onForcedLogout != nil {
		e.onForcedLogout(reason)
	}
}

// clearSession wipes local state and disarms the idle monitor. It returns
// the state that was cleared and whether a session (complete or awaiting
// its second factor) was present.
func (e *Engine) clearSession() (SessionState, bool) {
	e.mu.Lock()
	prior := e.state
	hadSession := e.phase != PhaseSignedOut
	e.phase = PhaseSignedOut
	e.state = SessionState{}
	e.twoFAEnabled = false
	e.mu.Unlock()

	if e.idle != nil {
		e.idle.Disarm()
	}
	return prior, hadSession
}

// ResetPassword delegates to the identity service's reset-email mechanism.
// It never touches session state.
func (e *Engine) ResetPassword(ctx context.Context, email string) error {
	if e == nil || e.identity == nil {
		return ErrEngineNotReady
	}

	if err := e.identity.ResetPasswordForEmail(ctx, email, e.config.PasswordReset.RedirectURL); err != nil {
		e.logger.Warn().Err(err).Str("email", email).Msg("password reset request failed")
		e.notifier.Error("Could not send the reset email")
		return err
	}

	e.metricInc(MetricPasswordResetRequest)
	e.emitAudit(ctx, auditEventPasswordReset, true, "", email, nil, nil)
	e.notifier.Success("Password reset email sent")
	return nil
}
