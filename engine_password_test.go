package goBankAuth

import (
	"context"
	"errors"
	"testing"

	"github.com/MrEthical07/goBankAuth/delivery"
)

const newTestPassword = "N3w&Better"

func TestForgotPasswordIsGeneric(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.engine.ForgotPassword(ctx, "nobody@bank.test"); err != nil {
		t.Fatalf("unknown email must look like success, got %v", err)
	}
	if h.sender.count() != 0 {
		t.Fatal("expected no code for unknown email")
	}

	if err := h.engine.ForgotPassword(ctx, testEmail); err != nil {
		t.Fatalf("ForgotPassword failed: %v", err)
	}
	h.sender.lastCode(t, testEmail, delivery.PurposePasswordReset)

	h.sender.err = errors.New("smtp down")
	if err := h.engine.ForgotPassword(ctx, testEmail); err != nil {
		t.Fatalf("delivery failure must look like success, got %v", err)
	}
}

func TestResetPasswordRevokesSessions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sess := login(t, h)

	if err := h.engine.ForgotPassword(ctx, testEmail); err != nil {
		t.Fatalf("ForgotPassword failed: %v", err)
	}
	code := h.sender.lastCode(t, testEmail, delivery.PurposePasswordReset)

	if err := h.engine.ResetPassword(ctx, testEmail, code, newTestPassword); err != nil {
		t.Fatalf("ResetPassword failed: %v", err)
	}
	if _, err := h.engine.Refresh(ctx, sess.RefreshToken); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected sessions revoked, got %v", err)
	}
	if _, err := h.engine.Login(ctx, testEmail, newTestPassword); err != nil {
		t.Fatalf("login with new password failed: %v", err)
	}
	if err := h.engine.ResetPassword(ctx, testEmail, code, "An0ther&One"); !errors.Is(err, ErrCodeInvalid) {
		t.Fatalf("expected used reset code to be invalid, got %v", err)
	}
}

func TestResetPasswordWrongCodeAndUnknownEmail(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.engine.ForgotPassword(ctx, testEmail); err != nil {
		t.Fatalf("ForgotPassword failed: %v", err)
	}
	code := h.sender.lastCode(t, testEmail, delivery.PurposePasswordReset)

	err := h.engine.ResetPassword(ctx, testEmail, wrongCode(code), newTestPassword)
	var codeErr *CodeError
	if !errors.As(err, &codeErr) || codeErr.Remaining != 4 {
		t.Fatalf("expected CodeError with 4 remaining, got %v", err)
	}

	err = h.engine.ResetPassword(ctx, "nobody@bank.test", code, newTestPassword)
	if !errors.Is(err, ErrCodeInvalid) {
		t.Fatalf("unknown email must fail like a wrong code, got %v", err)
	}

	if err := h.engine.ResetPassword(ctx, testEmail, code, "weak"); !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("expected ErrPasswordPolicy, got %v", err)
	}
	if err := h.engine.ResetPassword(ctx, testEmail, code, newTestPassword); err != nil {
		t.Fatalf("policy rejection must not consume the code, got %v", err)
	}
}

func TestChangePasswordRevokesAllRefreshTokens(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sess := login(t, h)

	if err := h.engine.ChangePassword(ctx, h.user.ID, testPassword, newTestPassword); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}
	if n, _ := h.engine.ActiveSessions(ctx, h.user.ID); n != 0 {
		t.Fatalf("expected empty refresh set, got %d", n)
	}
	if err := h.engine.Logout(ctx, h.user.ID, sess.RefreshToken); err != nil {
		t.Fatalf("logout of a revoked token must be silent, got %v", err)
	}
	if _, err := h.engine.Refresh(ctx, sess.RefreshToken); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected refresh to fail, got %v", err)
	}
}

func TestChangePasswordRejections(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.engine.ChangePassword(ctx, h.user.ID, "Wrong#Pass1", newTestPassword); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if got := h.store.get(h.user.ID).FailedLoginCount; got != 1 {
		t.Fatalf("expected failure recorded, got %d", got)
	}

	if err := h.engine.ChangePassword(ctx, h.user.ID, testPassword, testPassword); !errors.Is(err, ErrPasswordReuse) {
		t.Fatalf("expected ErrPasswordReuse, got %v", err)
	}
	if err := h.engine.ChangePassword(ctx, h.user.ID, testPassword, "short"); !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("expected ErrPasswordPolicy, got %v", err)
	}

	snap := h.engine.MetricsSnapshot()
	if snap.Counters[MetricPasswordChangeInvalidOld] != 1 || snap.Counters[MetricPasswordChangeReuseRejected] != 1 {
		t.Fatalf("unexpected counters %+v", snap.Counters)
	}
}

func TestChangePasswordKeepsOldPasswordWhenRevokeFails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sess := login(t, h)

	h.mr.Close()
	if err := h.engine.ChangePassword(ctx, h.user.ID, testPassword, newTestPassword); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if err := h.mr.Restart(); err != nil {
		t.Fatalf("miniredis restart failed: %v", err)
	}

	if _, err := h.engine.Login(ctx, testEmail, newTestPassword); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("password must not change when revocation failed, got %v", err)
	}
	if _, err := h.engine.Login(ctx, testEmail, testPassword); err != nil {
		t.Fatalf("login with old password failed: %v", err)
	}

	if err := h.engine.ChangePassword(ctx, h.user.ID, testPassword, newTestPassword); err != nil {
		t.Fatalf("ChangePassword retry failed: %v", err)
	}
	if _, err := h.engine.Refresh(ctx, sess.RefreshToken); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected old refresh token revoked, got %v", err)
	}
}

func TestChangePasswordUpdateFailureSignsOut(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sess := login(t, h)

	h.store.failUpdates(errors.New("db blip"))
	err := h.engine.ChangePassword(ctx, h.user.ID, testPassword, newTestPassword)
	h.store.failUpdates(nil)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}

	if _, err := h.engine.Refresh(ctx, sess.RefreshToken); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected sessions revoked before the update, got %v", err)
	}
	if _, err := h.engine.Login(ctx, testEmail, testPassword); err != nil {
		t.Fatalf("old password must still work, got %v", err)
	}
}

func TestResetCodeRetriableAfterStoreFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sess := login(t, h)

	if err := h.engine.ForgotPassword(ctx, testEmail); err != nil {
		t.Fatalf("ForgotPassword failed: %v", err)
	}
	code := h.sender.lastCode(t, testEmail, delivery.PurposePasswordReset)

	h.store.failUpdates(errors.New("db blip"))
	if err := h.engine.ResetPassword(ctx, testEmail, code, newTestPassword); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	h.store.failUpdates(nil)

	if _, err := h.engine.Refresh(ctx, sess.RefreshToken); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected sessions revoked before the update, got %v", err)
	}
	if err := h.engine.ResetPassword(ctx, testEmail, code, newTestPassword); err != nil {
		t.Fatalf("retry with the same code failed: %v", err)
	}
	if _, err := h.engine.Login(ctx, testEmail, newTestPassword); err != nil {
		t.Fatalf("login with new password failed: %v", err)
	}
}
