package goBankAuth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/goBankAuth/internal/normalize"
	"go.uber.org/zap"
)

// Login checks email and password and issues a session.
//
// Order: rate limit, user lookup, lock, active and suspended flags,
// password, optional verified-email gate. An unknown email is answered
// exactly like a wrong password, after an equally expensive hash compare.
func (e *Engine) Login(ctx context.Context, email, pw string) (*Session, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() {
		if e.metrics.LatencyEnabled() {
			e.metrics.Observe(MetricLoginLatency, time.Since(start))
		}
	}()

	if err := e.admitFor(ctx, RateLogin, email); err != nil {
		e.metricInc(MetricLoginRateLimited)
		return nil, err
	}

	if strings.TrimSpace(email) == "" || pw == "" {
		return nil, e.loginFailed(ctx, "", "empty_credentials", ErrInvalidInput)
	}
	normalized, err := normalize.Email(email)
	if err != nil {
		return nil, e.loginFailed(ctx, "", "malformed_email", ErrInvalidInput)
	}

	user, err := e.findUser(ctx, "login", func() (*User, error) {
		return e.users.FindUserByEmail(ctx, normalized)
	})
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			_, _ = e.passwords.Verify(pw, e.dummyHash)
			return nil, e.loginFailed(ctx, "", "user_not_found", ErrInvalidCredentials)
		}
		return nil, err
	}

	if err := e.CheckLock(user); err != nil {
		e.metricInc(MetricLoginLocked)
		return nil, e.loginFailed(ctx, user.ID, "account_locked", err)
	}
	if err := checkStatus(user); err != nil {
		return nil, e.loginFailed(ctx, user.ID, "account_status", err)
	}

	ok, err := e.VerifyPassword(user, pw)
	if err != nil {
		e.logger.Error("password verify failed", zap.String("user_id", user.ID), zap.Error(err))
		return nil, unavailable(err)
	}
	if !ok {
		if _, err := e.RecordFailure(ctx, user); err != nil {
			return nil, err
		}
		return nil, e.loginFailed(ctx, user.ID, "password_mismatch", ErrInvalidCredentials)
	}

	if e.config.RequireVerifiedEmail && !user.EmailVerified {
		return nil, e.loginFailed(ctx, user.ID, "email_unverified", ErrEmailNotVerified)
	}

	if user.FailedLoginCount > 0 || user.LockedUntil != nil {
		if err := e.RecordSuccess(ctx, user.ID); err != nil {
			return nil, err
		}
		user.FailedLoginCount = 0
		user.LockedUntil = nil
	}

	e.upgradePasswordHash(ctx, user, pw)

	sess, err := e.IssueSession(ctx, user)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, user.ID, nil, nil)
	return sess, nil
}

func (e *Engine) loginFailed(ctx context.Context, userID, reason string, err error) error {
	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, userID, err, func() map[string]string {
		return map[string]string{"reason": reason}
	})
	return err
}

// upgradePasswordHash rehashes with the primary scheme when the stored
// digest is legacy or under-costed. Failures never block the login.
func (e *Engine) upgradePasswordHash(ctx context.Context, user *User, pw string) {
	if !e.config.Password.UpgradeOnLogin {
		return
	}
	needs, err := e.passwords.NeedsUpgrade(user.PasswordHash)
	if err != nil || !needs {
		return
	}

	upgraded, err := e.passwords.Hash(pw)
	if err != nil {
		e.logger.Warn("password hash upgrade generation failed", zap.String("user_id", user.ID), zap.Error(err))
		return
	}
	if err := e.users.UpdatePasswordHash(ctx, user.ID, upgraded); err != nil {
		e.logger.Warn("password hash upgrade update failed", zap.String("user_id", user.ID), zap.Error(err))
		return
	}
	user.PasswordHash = upgraded
	e.metricInc(MetricPasswordHashUpgraded)
}
