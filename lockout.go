package adminauth

import (
	"context"
	"errors"
	"time"
)

// LockoutStatus is the result of evaluating the lockout policy against a
// profile.
type LockoutStatus struct {
	Locked            bool
	RemainingAttempts int
}

// CheckLockout evaluates the lockout policy over profile fields. A nil
// profile (no row provisioned yet) is never locked and carries the full
// attempt budget.
//
// An expired locked_until is NOT cleared here: the stored value persists
// until the next fully successful authentication resets it, and this check
// only compares timestamps. A stale past value therefore reads as "not
// locked".
func CheckLockout(profile *AdminProfile, now time.Time, maxAttempts int) LockoutStatus {
	if profile == nil {
		return LockoutStatus{Locked: false, RemainingAttempts: maxAttempts}
	}
	if profile.LockedUntil != nil && profile.LockedUntil.After(now) {
		return LockoutStatus{Locked: true, RemainingAttempts: 0}
	}
	remaining := maxAttempts - profile.FailedLoginAttempts
	if remaining < 0 {
		remaining = 0
	}
	return LockoutStatus{Locked: false, RemainingAttempts: remaining}
}

func (e *Engine) checkLockout(profile *AdminProfile) LockoutStatus {
	return CheckLockout(profile, e.clock(), e.config.Lockout.MaxLoginAttempts)
}

// recordFailedAttempt increments the profile's failure counter and, when the
// counter reaches the budget, stamps locked_until. It returns the attempts
// left (may be <= 0) and whether this attempt triggered the lock.
func (e *Engine) recordFailedAttempt(ctx context.Context, userID string) (int, bool, error) {
	attempts := 1
	profile, err := e.profiles.Get(ctx, userID)
	switch {
	case err == nil:
		attempts = profile.FailedLoginAttempts + 1
	case errors.Is(err, ErrProfileNotFound):
		// Counting proceeds from zero; Update provisions the counter row.
	default:
		return 0, false, err
	}

	update := ProfileUpdate{FailedLoginAttempts: &attempts}
	nowLocked := false
	if attempts >= e.config.Lockout.MaxLoginAttempts {
		until := e.clock().Add(e.config.Lockout.LockoutDuration)
		update.LockedUntil = &until
		update.SetLockedUntil = true
		nowLocked = true
	}

	if err := e.profiles.Update(ctx, userID, update); err != nil {
		return 0, false, err
	}
	if nowLocked {
		e.metricInc(MetricLockoutTriggered)
		e.emitAudit(ctx, auditEventLockoutTriggered, false, userID, "", ErrAccountLocked, nil)
	}

	return e.config.Lockout.MaxLoginAttempts - attempts, nowLocked, nil
}

// resetFailedAttempts zeroes the counter, clears locked_until, and stamps
// last_login. Called only after a fully successful authentication (password
// alone without 2FA, password plus valid second factor with it).
func (e *Engine) resetFailedAttempts(ctx context.Context, userID string) error {
	zero := 0
	now := e.clock()
	return e.profiles.Update(ctx, userID, ProfileUpdate{
		FailedLoginAttempts: &zero,
		LockedUntil:         nil,
		SetLockedUntil:      true,
		LastLogin:           &now,
	})
}
