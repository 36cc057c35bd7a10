package adminauth

import (
	"context"
	"errors"
)

// Login runs the full password step: identity-service credential check,
// admin-role check, lockout check, then either direct authentication or the
// transition to AwaitingSecondFactor when the profile has TOTP enabled.
//
// A LoginResult with Requires2FA true is NOT a completed login; the session
// stays unauthorized until [Engine.VerifySecondFactor] succeeds. Overlapping
// calls are rejected with [ErrAttemptInFlight].
func (e *Engine) Login(ctx context.Context, email, password string, rememberMe bool) (result *LoginResult, err error) {
	if e == nil || e.identity == nil || e.profiles == nil || e.roles == nil {
		return nil, ErrEngineNotReady
	}
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}
	if !e.beginAttempt() {
		return nil, ErrAttemptInFlight
	}
	defer e.endAttempt()

	// Nothing below may escape as a panic: an unwound stack must never
	// strand the session half-authenticated.
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().Interface("panic", r).Str("email", email).Msg("login panicked")
			e.metricInc(MetricUnexpectedError)
			result, err = nil, ErrUnexpected
		}
	}()

	return e.login(ctx, email, password, rememberMe)
}

func (e *Engine) login(ctx context.Context, email, password string, rememberMe bool) (*LoginResult, error) {
	user, err := e.identity.SignInWithPassword(ctx, email, password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			// The identity service's own message goes to the caller
			// verbatim. No lockout counter changes here: brute-force
			// protection on the password step is the service's job.
			e.metricInc(MetricLoginFailure)
			e.emitAudit(ctx, auditEventLoginFailure, false, "", email, err, nil)
			e.notifier.Error(err.Error())
			return nil, err
		}
		e.logger.Error().Err(err).Str("email", email).Msg("identity sign-in failed")
		e.metricInc(MetricUnexpectedError)
		e.notifier.Error("An unexpected error occurred")
		return nil, ErrUnexpected
	}
	if user == nil || user.ID == "" {
		e.logger.Error().Str("email", email).Msg("identity sign-in returned no user")
		e.metricInc(MetricUnexpectedError)
		return nil, ErrUnexpected
	}

	isAdmin, err := e.roles.HasRole(ctx, user.ID, RoleAdmin)
	if err != nil {
		e.signOutIdentity(ctx)
		e.logger.Error().Err(err).Str("user_id", user.ID).Msg("role check failed")
		e.metricInc(MetricUnexpectedError)
		e.notifier.Error("An unexpected error occurred")
		return nil, ErrUnexpected
	}
	if !isAdmin {
		// The identity session is valid but unauthorized. Sign it out so no
		// half-authenticated state lingers server-side.
		e.signOutIdentity(ctx)
		e.metricInc(MetricLoginDenied)
		e.emitAudit(ctx, auditEventLoginDenied, false, user.ID, email, ErrNotAdmin, nil)
		e.notifier.Error("Access denied")
		return nil, ErrNotAdmin
	}

	profile, err := e.profiles.Get(ctx, user.ID)
	if err != nil && !errors.Is(err, ErrProfileNotFound) {
		e.signOutIdentity(ctx)
		e.logger.Error().Err(err).Str("user_id", user.ID).Msg("profile load failed")
		e.metricInc(MetricUnexpectedError)
		e.notifier.Error("An unexpected error occurred")
		return nil, ErrUnexpected
	}

	if status := e.checkLockout(profile); status.Locked {
		e.signOutIdentity(ctx)
		e.metricInc(MetricLoginLocked)
		e.emitAudit(ctx, auditEventLoginLocked, false, user.ID, email, ErrAccountLocked, nil)
		e.notifier.Error("Account locked. Try again later.")
		return nil, ErrAccountLocked
	}

	if profile != nil && profile.TOTPEnabled {
		e.mu.Lock()
		e.phase = PhaseAwaitingSecondFactor
		e.state = SessionState{
			UserID:        user.ID,
			Email:         user.Email,
			TrustedDevice: rememberMe,
		}
		e.twoFAEnabled = true
		e.mu.Unlock()

		e.metricInc(MetricSecondFactorRequired)
		return &LoginResult{UserID: user.ID, Email: user.Email, Requires2FA: true}, nil
	}

	if err := e.resetFailedAttempts(ctx, user.ID); err != nil {
		// Stale counters are not worth failing an otherwise valid login.
		e.logger.Warn().Err(err).Str("user_id", user.ID).Msg("failed-attempt reset did not persist")
	}

	// This branch is only reached without TOTP; the enabled case returned
	// at the AwaitingSecondFactor transition above.
	e.completeAuthentication(user.ID, user.Email, rememberMe, false)
	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, user.ID, email, nil, nil)
	e.notifier.Success("Signed in")
	return &LoginResult{UserID: user.ID, Email: user.Email, Requires2FA: false}, nil
}

// completeAuthentication moves the session to PhaseAuthenticated and arms
// the idle monitor.
func (e *Engine) completeAuthentication(userID, email string, trustedDevice, twoFAEnabled bool) {
	now := e.clock()

	e.mu.Lock()
	e.phase = PhaseAuthenticated
	e.state = SessionState{
		UserID:            userID,
		Email:             email,
		TwoFactorVerified: true,
		TrustedDevice:     trustedDevice,
		LastActivity:      now,
	}
	e.twoFAEnabled = twoFAEnabled
	e.mu.Unlock()

	if e.idle != nil {
		e.idle.Arm()
	}
}

func (e *Engine) signOutIdentity(ctx context.Context) {
	if err := e.identity.SignOut(ctx); err != nil {
		e.logger.Warn().Err(err).Msg("identity sign-out failed")
	}
}
