package goBankAuth

import (
	"context"
	"errors"

	"github.com/MrEthical07/goBankAuth/internal"
	"github.com/MrEthical07/goBankAuth/session"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// IssueSession mints an access token for user and adds a new refresh
// token to the user's active set.
func (e *Engine) IssueSession(ctx context.Context, user *User) (*Session, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	uid, err := uuid.Parse(user.ID)
	if err != nil {
		return nil, unavailable(err)
	}

	access, accessExp, err := e.tokens.CreateAccess(user.ID, user.Role)
	if err != nil {
		e.logger.Error("access token signing failed", zap.String("user_id", user.ID), zap.Error(err))
		return nil, unavailable(err)
	}

	secret, err := internal.NewRefreshSecret()
	if err != nil {
		return nil, unavailable(err)
	}
	now := e.now()
	refreshExp := now.Add(e.config.Session.RefreshTTL)

	if err := e.refresh.Add(ctx, user.ID, internal.HashRefreshSecret(secret), refreshExp, now); err != nil {
		e.logger.Error("refresh token store failed", zap.String("user_id", user.ID), zap.Error(err))
		return nil, unavailable(err)
	}

	e.metricInc(MetricSessionCreated)
	return &Session{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     internal.EncodeRefreshToken(uid, secret),
		RefreshExpiresAt: refreshExp,
		User:             user,
	}, nil
}

// Refresh exchanges a live refresh token for a new session. The old token
// is consumed in the same step, so two concurrent refreshes with one token
// yield one session.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	uid, secret, err := internal.DecodeRefreshToken(refreshToken)
	if err != nil {
		return nil, e.refreshFailed(ctx, "", "malformed")
	}
	userID := uid.String()

	user, err := e.findUser(ctx, "refresh", func() (*User, error) {
		return e.users.FindUserByID(ctx, userID)
	})
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, e.refreshFailed(ctx, userID, "user_not_found")
		}
		return nil, err
	}
	if err := e.CheckLock(user); err != nil {
		return nil, err
	}
	if err := checkStatus(user); err != nil {
		return nil, err
	}

	access, accessExp, err := e.tokens.CreateAccess(user.ID, user.Role)
	if err != nil {
		return nil, unavailable(err)
	}
	next, err := internal.NewRefreshSecret()
	if err != nil {
		return nil, unavailable(err)
	}
	now := e.now()
	refreshExp := now.Add(e.config.Session.RefreshTTL)

	err = e.refresh.Rotate(ctx, userID,
		internal.HashRefreshSecret(secret),
		internal.HashRefreshSecret(next),
		refreshExp, now,
	)
	if err != nil {
		if errors.Is(err, session.ErrRefreshNotFound) {
			return nil, e.refreshFailed(ctx, userID, "not_in_set")
		}
		e.logger.Error("refresh rotation failed", zap.String("user_id", userID), zap.Error(err))
		return nil, unavailable(err)
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, userID, nil, nil)
	return &Session{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     internal.EncodeRefreshToken(uid, next),
		RefreshExpiresAt: refreshExp,
		User:             user,
	}, nil
}

func (e *Engine) refreshFailed(ctx context.Context, userID, reason string) error {
	e.metricInc(MetricRefreshFailure)
	e.emitAudit(ctx, auditEventRefreshInvalid, false, userID, ErrRefreshInvalid, func() map[string]string {
		return map[string]string{"reason": reason}
	})
	return ErrRefreshInvalid
}

// Logout revokes one refresh token owned by userID. Unknown, foreign or
// already revoked tokens are ignored.
func (e *Engine) Logout(ctx context.Context, userID, refreshToken string) error {
	if err := e.ready(); err != nil {
		return err
	}

	uid, secret, err := internal.DecodeRefreshToken(refreshToken)
	if err != nil || uid.String() != userID {
		return nil
	}

	removed, err := e.refresh.Remove(ctx, userID, internal.HashRefreshSecret(secret))
	if err != nil {
		e.logger.Error("refresh revoke failed", zap.String("user_id", userID), zap.Error(err))
		return unavailable(err)
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, userID, nil, func() map[string]string {
		if removed {
			return map[string]string{"revoked": "1"}
		}
		return map[string]string{"revoked": "0"}
	})
	return nil
}

// RevokeAll empties userID's refresh set and returns how many tokens it held.
func (e *Engine) RevokeAll(ctx context.Context, userID string) (int, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}

	n, err := e.refresh.RemoveAll(ctx, userID)
	if err != nil {
		e.logger.Error("refresh revoke-all failed", zap.String("user_id", userID), zap.Error(err))
		return 0, unavailable(err)
	}

	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, auditEventLogoutAll, true, userID, nil, nil)
	return n, nil
}

// ActiveSessions counts userID's live refresh tokens.
func (e *Engine) ActiveSessions(ctx context.Context, userID string) (int, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	n, err := e.refresh.Count(ctx, userID, e.now())
	if err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

// ValidateAccess checks signature and expiry only. No store is consulted.
func (e *Engine) ValidateAccess(token string) (*Principal, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.tokens.ParseAccess(token)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	p := &Principal{
		UserID:  claims.UID,
		Role:    claims.Role,
		TokenID: claims.ID,
	}
	if claims.ExpiresAt != nil {
		p.ExpiresAt = claims.ExpiresAt.Time
	}
	return p, nil
}
