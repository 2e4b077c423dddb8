package goBankAuth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func login(t *testing.T, h *harness) *Session {
	t.Helper()
	sess, err := h.engine.Login(context.Background(), testEmail, testPassword)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	return sess
}

func TestRefreshRotatesToken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	first := login(t, h)

	next, err := h.engine.Refresh(ctx, first.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if next.RefreshToken == first.RefreshToken {
		t.Fatal("expected a new refresh token")
	}
	if _, err := h.engine.Refresh(ctx, first.RefreshToken); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected rotated token to be invalid, got %v", err)
	}
	if n, _ := h.engine.ActiveSessions(ctx, h.user.ID); n != 1 {
		t.Fatalf("expected one live token after rotation, got %d", n)
	}
}

func TestRefreshRejectsMalformedAndExpired(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.engine.Refresh(ctx, "not-a-token"); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected ErrRefreshInvalid, got %v", err)
	}

	sess := login(t, h)
	h.clock.Advance(7*24*time.Hour + time.Second)
	if _, err := h.engine.Refresh(ctx, sess.RefreshToken); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected expired refresh token to be invalid, got %v", err)
	}
}

func TestRefreshBlockedByLock(t *testing.T) {
	h := newHarness(t)
	sess := login(t, h)

	until := h.clock.Now().Add(time.Hour)
	u := h.store.get(h.user.ID)
	u.LockedUntil = &until
	h.store.put(u)

	if _, err := h.engine.Refresh(context.Background(), sess.RefreshToken); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}
}

func TestConcurrentRefreshHasOneWinner(t *testing.T) {
	h := newHarness(t)
	sess := login(t, h)

	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.engine.Refresh(context.Background(), sess.RefreshToken); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Fatalf("expected exactly one refresh to win, got %d", wins.Load())
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sess := login(t, h)

	for i := 0; i < 2; i++ {
		if err := h.engine.Logout(ctx, h.user.ID, sess.RefreshToken); err != nil {
			t.Fatalf("Logout %d failed: %v", i+1, err)
		}
	}
	if _, err := h.engine.Refresh(ctx, sess.RefreshToken); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected logged-out token to be invalid, got %v", err)
	}
	if err := h.engine.Logout(ctx, h.user.ID, "garbage"); err != nil {
		t.Fatalf("Logout with garbage token must be silent, got %v", err)
	}
}

func TestLogoutIgnoresForeignToken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sess := login(t, h)
	other := h.seedUser(t, "ben@bank.test", "+15550100002", testPassword)

	if err := h.engine.Logout(ctx, other.ID, sess.RefreshToken); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if _, err := h.engine.Refresh(ctx, sess.RefreshToken); err != nil {
		t.Fatalf("another user must not revoke the token, got %v", err)
	}
}

func TestRevokeAllEmptiesSet(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := login(t, h)
	b := login(t, h)

	n, err := h.engine.RevokeAll(ctx, h.user.ID)
	if err != nil {
		t.Fatalf("RevokeAll failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 revoked, got %d", n)
	}
	for _, s := range []*Session{a, b} {
		if _, err := h.engine.Refresh(ctx, s.RefreshToken); !errors.Is(err, ErrRefreshInvalid) {
			t.Fatalf("expected revoked token to be invalid, got %v", err)
		}
	}
}

func TestMaxActiveEvictsOldestToken(t *testing.T) {
	h := newHarness(t, func(cfg *Config) {
		cfg.Session.MaxActive = 2
	})
	ctx := context.Background()

	first := login(t, h)
	h.clock.Advance(time.Second)
	login(t, h)
	h.clock.Advance(time.Second)
	login(t, h)

	if n, _ := h.engine.ActiveSessions(ctx, h.user.ID); n != 2 {
		t.Fatalf("expected cap of 2 tokens, got %d", n)
	}
	if _, err := h.engine.Refresh(ctx, first.RefreshToken); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected oldest token evicted, got %v", err)
	}
}

func TestValidateAccessIsStateless(t *testing.T) {
	h := newHarness(t)
	sess := login(t, h)

	if _, err := h.engine.RevokeAll(context.Background(), h.user.ID); err != nil {
		t.Fatalf("RevokeAll failed: %v", err)
	}
	if _, err := h.engine.ValidateAccess(sess.AccessToken); err != nil {
		t.Fatalf("access token must stay valid until expiry, got %v", err)
	}

	h.clock.Advance(15*time.Minute + time.Second)
	if _, err := h.engine.ValidateAccess(sess.AccessToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected expired access token to fail, got %v", err)
	}

	tampered := sess.AccessToken[:len(sess.AccessToken)-2] + "xx"
	if _, err := h.engine.ValidateAccess(tampered); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected tampered token to fail, got %v", err)
	}
}
