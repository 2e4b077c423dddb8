package goBankAuth

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goBankAuth/internal/limiters"
	"github.com/MrEthical07/goBankAuth/password"
	"go.uber.org/zap"
)

func lockState(u *User) limiters.LockState {
	return limiters.LockState{
		FailedLoginCount: u.FailedLoginCount,
		LockedUntil:      u.LockedUntil,
	}
}

// CheckLock returns a *LockedError while user's lock is active, whatever
// the failure count says.
func (e *Engine) CheckLock(user *User) error {
	if user == nil {
		return ErrUserNotFound
	}
	if e.lockout.IsLocked(lockState(user), e.now()) {
		return &LockedError{Until: *user.LockedUntil}
	}
	return nil
}

func checkStatus(user *User) error {
	if !user.IsActive {
		return ErrAccountInactive
	}
	if user.IsSuspended {
		return ErrAccountSuspended
	}
	return nil
}

// VerifyPassword compares candidate with the stored digest. It never
// touches storage; on a mismatch the caller records the failure.
func (e *Engine) VerifyPassword(user *User, candidate string) (bool, error) {
	if user == nil || candidate == "" {
		return false, nil
	}
	ok, err := e.passwords.Verify(candidate, user.PasswordHash)
	if err != nil {
		if errors.Is(err, password.ErrUnsupportedHash) || errors.Is(err, password.ErrMalformedHash) {
			e.logger.Warn("stored password hash not recognized", zap.String("user_id", user.ID))
			return false, nil
		}
		return false, err
	}
	return ok, nil
}

// RecordFailure applies one failed credential check to user and returns
// the stored result. Crossing the threshold locks the account.
func (e *Engine) RecordFailure(ctx context.Context, user *User) (*User, error) {
	now := e.now()
	updated, err := e.users.RecordLoginFailure(ctx, user.ID, now, e.lockout.Threshold(), e.lockout.Duration())
	if err != nil {
		e.logger.Error("record login failure failed", zap.String("user_id", user.ID), zap.Error(err))
		return nil, unavailable(err)
	}

	if !e.lockout.IsLocked(lockState(user), now) && e.lockout.IsLocked(lockState(updated), now) {
		e.metricInc(MetricAccountLocked)
		e.emitAudit(ctx, auditEventAccountLocked, true, user.ID, nil, func() map[string]string {
			return map[string]string{
				"locked_until": updated.LockedUntil.UTC().Format(time.RFC3339),
			}
		})
	}

	return updated, nil
}

// RecordSuccess clears the failure count and any lock.
func (e *Engine) RecordSuccess(ctx context.Context, userID string) error {
	if err := e.users.RecordLoginSuccess(ctx, userID); err != nil {
		e.logger.Error("record login success failed", zap.String("user_id", userID), zap.Error(err))
		return unavailable(err)
	}
	return nil
}
