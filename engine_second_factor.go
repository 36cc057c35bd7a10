package adminauth

import (
	"context"
	"errors"
	"strconv"
)

// VerifySecondFactor completes a login that stopped at
// AwaitingSecondFactor. The submitted code is checked as a TOTP first, then
// as a single-use backup code. An invalid submission counts against the
// same lockout budget as the password step; exhausting the budget signs the
// user out entirely, not just out of the 2FA step.
func (e *Engine) VerifySecondFactor(ctx context.Context, code string) (result *SecondFactorResult, err error) {
	if e == nil || e.identity == nil || e.profiles == nil || e.verifier == nil {
		return nil, ErrEngineNotReady
	}
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}
	if !e.beginAttempt() {
		return nil, ErrAttemptInFlight
	}
	defer e.endAttempt()

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().Interface("panic", r).Msg("second-factor verification panicked")
			e.metricInc(MetricUnexpectedError)
			result, err = nil, ErrUnexpected
		}
	}()

	return e.verifySecondFactor(ctx, code)
}

func (e *Engine) verifySecondFactor(ctx context.Context, code string) (*SecondFactorResult, error) {
	e.mu.Lock()
	if e.phase != PhaseAwaitingSecondFactor {
		e.mu.Unlock()
		return nil, ErrNoPendingSecondFactor
	}
	userID := e.state.UserID
	email := e.state.Email
	trustedDevice := e.state.TrustedDevice
	e.mu.Unlock()

	profile, err := e.profiles.Get(ctx, userID)
	if err != nil {
		e.logger.Error().Err(err).Str("user_id", userID).Msg("profile load failed")
		e.metricInc(MetricUnexpectedError)
		e.notifier.Error("An unexpected error occurred")
		return nil, ErrUnexpected
	}

	outcome, remainingCodes, err := e.verifier.Verify(profile, code, e.clock())
	if err != nil {
		if errors.Is(err, ErrTOTPNotConfigured) {
			// Provisioning defect, not a wrong code. Non-retryable.
			e.logger.Error().Str("user_id", userID).Msg("totp enabled without a provisioned secret")
			e.emitAudit(ctx, auditEventSecondFactorFail, false, userID, email, err, func() map[string]string {
				return map[string]string{"reason": "not_configured"}
			})
			e.notifier.Error("Two-factor authentication is misconfigured for this account")
			return nil, err
		}
		e.logger.Error().Err(err).Str("user_id", userID).Msg("second-factor verification failed")
		e.metricInc(MetricUnexpectedError)
		return nil, ErrUnexpected
	}

	switch outcome {
	case outcomeTOTPValid:
		return e.finishSecondFactor(ctx, userID, email, trustedDevice, &SecondFactorResult{Method: MethodTOTP})

	case outcomeBackupValid:
		if err := e.profiles.Update(ctx, userID, ProfileUpdate{
			BackupCodes:    remainingCodes,
			SetBackupCodes: true,
		}); err != nil {
			// The code must not remain spendable a second time. Refuse the
			// attempt rather than authenticate with the spend unrecorded.
			e.logger.Error().Err(err).Str("user_id", userID).Msg("backup-code spend did not persist")
			e.metricInc(MetricUnexpectedError)
			e.notifier.Error("An unexpected error occurred")
			return nil, ErrUnexpected
		}
		e.metricInc(MetricBackupCodeUsed)
		e.emitAudit(ctx, auditEventBackupCodeUsed, true, userID, email, nil, func() map[string]string {
			return map[string]string{"remaining": strconv.Itoa(len(remainingCodes))}
		})
		return e.finishSecondFactor(ctx, userID, email, trustedDevice, &SecondFactorResult{
			Method:               MethodBackupCode,
			RemainingBackupCodes: len(remainingCodes),
		})

	default:
		return e.failSecondFactorAttempt(ctx, userID, email)
	}
}

func (e *Engine) finishSecondFactor(ctx context.Context, userID, email string, trustedDevice bool, result *SecondFactorResult) (*SecondFactorResult, error) {
	if err := e.resetFailedAttempts(ctx, userID); err != nil {
		e.logger.Warn().Err(err).Str("user_id", userID).Msg("failed-attempt reset did not persist")
	}

	e.completeAuthentication(userID, email, trustedDevice, true)
	e.metricInc(MetricSecondFactorSuccess)
	e.emitAudit(ctx, auditEventSecondFactorOK, true, userID, email, nil, nil)
	e.notifier.Success("Signed in")
	return result, nil
}

func (e *Engine) failSecondFactorAttempt(ctx context.Context, userID, email string) (*SecondFactorResult, error) {
	remaining, nowLocked, err := e.recordFailedAttempt(ctx, userID)
	if err != nil {
		e.logger.Error().Err(err).Str("user_id", userID).Msg("failed-attempt record did not persist")
		e.metricInc(MetricUnexpectedError)
		return nil, ErrUnexpected
	}

	e.metricInc(MetricSecondFactorFailure)
	e.emitAudit(ctx, auditEventSecondFactorFail, false, userID, email, ErrSecondFactorInvalid, func() map[string]string {
		return map[string]string{"remaining": strconv.Itoa(remaining)}
	})

	if nowLocked {
		// Budget exhausted: the whole session goes, not just the 2FA step.
		_, _ = e.clearSession()
		e.signOutIdentity(ctx)
		e.notifier.Error("Account locked. Try again later.")
		if e.onForcedLogout != nil {
			e.onForcedLogout(LogoutLockout)
		}
		return nil, ErrAccountLocked
	}

	if remaining < 0 {
		remaining = 0
	}
	sfErr := &SecondFactorError{Remaining: remaining}
	e.notifier.Error(sfErr.Error())
	return nil, sfErr
}
