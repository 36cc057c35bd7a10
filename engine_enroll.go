package adminauth

import (
	"context"
	"errors"
	"strconv"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// ProvisionTOTP generates and stores a fresh TOTP secret for the
// authenticated user, returning the base32 secret and its otpauth://
// provisioning URI. Enrollment stays inactive until [Engine.ConfirmTOTP]
// proves the authenticator was set up.
//
// When the profile already has an active enrollment, currentCode must be a
// valid code from the existing authenticator: re-provisioning replaces the
// secret and disables the second factor until re-confirmed, and a stolen
// session alone must not be enough to do that. An empty currentCode against
// an active enrollment returns [ErrSecondFactorRequired].
func (e *Engine) ProvisionTOTP(ctx context.Context, currentCode string) (string, string, error) {
	if e == nil || e.profiles == nil || e.verifier == nil {
		return "", "", ErrEngineNotReady
	}

	userID, email, ok := e.authenticatedUser()
	if !ok {
		return "", "", ErrNotAuthenticated
	}

	profile, err := e.profiles.Get(ctx, userID)
	if err != nil && !errors.Is(err, ErrProfileNotFound) {
		return "", "", ErrProfileUnavailable
	}
	if profile != nil && profile.TOTPEnabled && profile.TOTPSecret != "" {
		if currentCode == "" {
			return "", "", ErrSecondFactorRequired
		}
		if !e.validTOTPCode(profile.TOTPSecret, currentCode) {
			return "", "", ErrSecondFactorInvalid
		}
	}

	secret, uri, err := e.verifier.GenerateSecret(email)
	if err != nil {
		return "", "", err
	}

	disabled := false
	if err := e.profiles.Update(ctx, userID, ProfileUpdate{
		TOTPSecret:  &secret,
		TOTPEnabled: &disabled,
	}); err != nil {
		e.logger.Error().Err(err).Str("user_id", userID).Msg("totp provisioning did not persist")
		return "", "", ErrProfileUnavailable
	}

	return secret, uri, nil
}

// ConfirmTOTP activates a provisioned secret after the user proves their
// authenticator produces valid codes, and issues the initial backup-code
// set. The returned codes are display-formatted and shown once.
func (e *Engine) ConfirmTOTP(ctx context.Context, code string) ([]string, error) {
	if e == nil || e.profiles == nil || e.verifier == nil {
		return nil, ErrEngineNotReady
	}

	userID, email, ok := e.authenticatedUser()
	if !ok {
		return nil, ErrNotAuthenticated
	}

	profile, err := e.profiles.Get(ctx, userID)
	if err != nil {
		return nil, ErrProfileUnavailable
	}
	if profile.TOTPSecret == "" {
		return nil, ErrTOTPNotConfigured
	}
	if !e.validTOTPCode(profile.TOTPSecret, code) {
		return nil, ErrSecondFactorInvalid
	}

	stored, display, err := e.newBackupCodeSet()
	if err != nil {
		return nil, err
	}

	enabled := true
	if err := e.profiles.Update(ctx, userID, ProfileUpdate{
		TOTPEnabled:    &enabled,
		BackupCodes:    stored,
		SetBackupCodes: true,
	}); err != nil {
		e.logger.Error().Err(err).Str("user_id", userID).Msg("totp confirmation did not persist")
		return nil, ErrProfileUnavailable
	}

	e.mu.Lock()
	e.twoFAEnabled = true
	e.mu.Unlock()

	e.metricInc(MetricBackupCodesIssued)
	e.emitAudit(ctx, auditEventBackupCodesIssued, true, userID, email, nil, func() map[string]string {
		return map[string]string{"count": strconv.Itoa(len(stored))}
	})

	return display, nil
}

// RegenerateBackupCodes replaces the authenticated user's backup codes. A
// valid TOTP code is required: a stolen session alone must not be enough to
// mint fresh recovery codes.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, totpCode string) ([]string, error) {
	if e == nil || e.profiles == nil || e.verifier == nil {
		return nil, ErrEngineNotReady
	}

	userID, email, ok := e.authenticatedUser()
	if !ok {
		return nil, ErrNotAuthenticated
	}

	profile, err := e.profiles.Get(ctx, userID)
	if err != nil {
		return nil, ErrProfileUnavailable
	}
	if !profile.TOTPEnabled || profile.TOTPSecret == "" {
		return nil, ErrTOTPNotConfigured
	}
	if !e.validTOTPCode(profile.TOTPSecret, totpCode) {
		return nil, ErrSecondFactorInvalid
	}

	stored, display, err := e.newBackupCodeSet()
	if err != nil {
		return nil, err
	}

	if err := e.profiles.Update(ctx, userID, ProfileUpdate{
		BackupCodes:    stored,
		SetBackupCodes: true,
	}); err != nil {
		e.logger.Error().Err(err).Str("user_id", userID).Msg("backup-code replacement did not persist")
		return nil, ErrProfileUnavailable
	}

	e.metricInc(MetricBackupCodesIssued)
	e.emitAudit(ctx, auditEventBackupCodesIssued, true, userID, email, nil, func() map[string]string {
		return map[string]string{"count": strconv.Itoa(len(stored))}
	})

	return display, nil
}

func (e *Engine) authenticatedUser() (userID, email string, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase != PhaseAuthenticated {
		return "", "", false
	}
	return e.state.UserID, e.state.Email, true
}

func (e *Engine) validTOTPCode(secret, code string) bool {
	ok, err := totp.ValidateCustom(code, secret, e.clock(), totp.ValidateOpts{
		Period:    uint(e.config.TOTP.Period),
		Skew:      uint(e.config.TOTP.Skew),
		Digits:    otp.Digits(e.config.TOTP.Digits),
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

// newBackupCodeSet returns the canonical codes for storage and their
// display-formatted counterparts in matching order.
func (e *Engine) newBackupCodeSet() ([]string, []string, error) {
	count := e.config.TOTP.BackupCodeCount
	length := e.config.TOTP.BackupCodeLength

	stored := make([]string, 0, count)
	display := make([]string, 0, count)
	for i := 0; i < count; i++ {
		code, err := newBackupCode(length)
		if err != nil {
			return nil, nil, err
		}
		stored = append(stored, code)
		display = append(display, formatBackupCode(code))
	}
	return stored, display, nil
}
