package goBankAuth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrEthical07/goBankAuth/internal/normalize"
	"github.com/MrEthical07/goBankAuth/password"
	"go.uber.org/zap"
)

func (e *Engine) checkPolicy(pw string) error {
	if err := e.policy.Validate(pw); err != nil {
		detail := strings.TrimPrefix(err.Error(), password.ErrPolicy.Error()+": ")
		return fmt.Errorf("%w: %s", ErrPasswordPolicy, detail)
	}
	return nil
}

// ForgotPassword sends a password_reset code to the account registered
// under email. It returns nil whether or not such an account exists.
func (e *Engine) ForgotPassword(ctx context.Context, email string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.admitFor(ctx, RatePasswordReset, email); err != nil {
		return err
	}

	normalized, err := normalize.Email(email)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	e.metricInc(MetricPasswordResetRequest)
	user, err := e.findUser(ctx, "forgot_password", func() (*User, error) {
		return e.users.FindUserByEmail(ctx, normalized)
	})
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.emitAudit(ctx, auditEventPasswordResetRequest, false, "", ErrUserNotFound, nil)
			return nil
		}
		return err
	}
	if checkStatus(user) != nil {
		return nil
	}

	if _, err := e.issueCode(ctx, user, VerificationPasswordReset, user.Email); err != nil {
		if errors.Is(err, ErrDeliveryFailed) {
			return nil
		}
		return err
	}
	e.emitAudit(ctx, auditEventPasswordResetRequest, true, user.ID, nil, nil)
	return nil
}

// ResetPassword checks a password_reset code and sets newPassword. An
// unknown email fails exactly like a wrong code. On success every refresh
// token of the user is revoked.
func (e *Engine) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.admitFor(ctx, RatePasswordReset, email); err != nil {
		return err
	}

	normalized, err := normalize.Email(email)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := e.validateCode(code); err != nil {
		return err
	}
	if err := e.checkPolicy(newPassword); err != nil {
		return err
	}

	user, err := e.findUser(ctx, "reset_password", func() (*User, error) {
		return e.users.FindUserByEmail(ctx, normalized)
	})
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return e.resetFailed(ctx, "", ErrCodeInvalid)
		}
		return err
	}

	_, recordID, err := e.attemptCode(ctx, user.ID, VerificationPasswordReset, code)
	if err != nil {
		return e.resetFailed(ctx, user.ID, err)
	}

	if err := e.setPassword(ctx, user.ID, newPassword); err != nil {
		e.reopenCode(ctx, user.ID, VerificationPasswordReset, recordID)
		return err
	}
	e.consumeCode(ctx, user.ID, VerificationPasswordReset, recordID)

	e.metricInc(MetricPasswordResetSuccess)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, true, user.ID, nil, nil)
	return nil
}

func (e *Engine) resetFailed(ctx context.Context, userID string, err error) error {
	e.metricInc(MetricPasswordResetFailure)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, false, userID, err, nil)
	return err
}

// ChangePassword replaces the password of userID after checking current.
// A wrong current password counts toward lockout. On success every
// refresh token of the user is revoked.
func (e *Engine) ChangePassword(ctx context.Context, userID, current, next string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if current == "" || next == "" {
		return fmt.Errorf("%w: current and new password required", ErrInvalidInput)
	}

	user, err := e.findUser(ctx, "change_password", func() (*User, error) {
		return e.users.FindUserByID(ctx, userID)
	})
	if err != nil {
		return err
	}
	if err := e.CheckLock(user); err != nil {
		return e.changeFailed(ctx, user.ID, "account_locked", err)
	}

	ok, err := e.VerifyPassword(user, current)
	if err != nil {
		return unavailable(err)
	}
	if !ok {
		if _, err := e.RecordFailure(ctx, user); err != nil {
			return err
		}
		e.metricInc(MetricPasswordChangeInvalidOld)
		return e.changeFailed(ctx, user.ID, "invalid_current", ErrInvalidCredentials)
	}

	if err := e.checkPolicy(next); err != nil {
		return e.changeFailed(ctx, user.ID, "policy", err)
	}
	if next == current {
		e.metricInc(MetricPasswordChangeReuseRejected)
		return e.changeFailed(ctx, user.ID, "reuse", ErrPasswordReuse)
	}

	if err := e.setPassword(ctx, user.ID, next); err != nil {
		return err
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChangeSuccess, true, user.ID, nil, nil)
	return nil
}

func (e *Engine) changeFailed(ctx context.Context, userID, reason string, err error) error {
	e.emitAudit(ctx, auditEventPasswordChangeFailure, false, userID, err, func() map[string]string {
		return map[string]string{"reason": reason}
	})
	return err
}

// setPassword revokes every refresh token and then stores a new digest.
// A failed revoke leaves the old password in place; a failed update after
// the revoke only signs the user out.
func (e *Engine) setPassword(ctx context.Context, userID, pw string) error {
	hash, err := e.passwords.Hash(pw)
	if err != nil {
		e.logger.Error("password hash failed", zap.String("user_id", userID), zap.Error(err))
		return unavailable(err)
	}
	if _, err := e.RevokeAll(ctx, userID); err != nil {
		return err
	}
	if err := e.users.UpdatePasswordHash(ctx, userID, hash); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrUserNotFound
		}
		e.logger.Error("password update failed", zap.String("user_id", userID), zap.Error(err))
		return unavailable(err)
	}
	return nil
}
