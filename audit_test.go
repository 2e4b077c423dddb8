package goBankAuth

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

// auditedEngine builds a second engine over h's stores with auditing on.
func auditedEngine(t *testing.T, h *harness, sink AuditSink) *Engine {
	t.Helper()

	cfg := h.engine.Config()
	cfg.Audit.Enabled = true
	cfg.Audit.DropIfFull = false

	engine, err := New().
		WithConfig(cfg).
		WithRedis(h.rdb).
		WithUserStore(h.store).
		WithSender(h.sender).
		WithClock(h.clock.Now).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return engine
}

func TestLoginFailureEmitsAuditEvent(t *testing.T) {
	h := newHarness(t)
	sink := NewChannelSink(16)
	engine := auditedEngine(t, h, sink)
	defer engine.Close()

	ctx := WithUserAgent(WithClientIP(context.Background(), "192.0.2.10"), "bank-app/3.1")
	if _, err := engine.Login(ctx, testEmail, "Wrong#Pass1"); err == nil {
		t.Fatal("expected login failure")
	}

	select {
	case ev := <-sink.Events():
		if ev.EventType != auditEventLoginFailure || ev.Success {
			t.Fatalf("unexpected event %+v", ev)
		}
		if ev.UserID != h.user.ID || ev.IP != "192.0.2.10" || ev.UserAgent != "bank-app/3.1" {
			t.Fatalf("unexpected identity fields %+v", ev)
		}
		if ev.Error != string(auditErrInvalidCredentials) || ev.Metadata["reason"] != "password_mismatch" {
			t.Fatalf("unexpected error fields %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for audit event")
	}
}

func TestAuditNeverCarriesSecrets(t *testing.T) {
	var buf bytes.Buffer
	h := newHarness(t)
	engine := auditedEngine(t, h, NewJSONWriterSink(&buf))

	ctx := context.Background()
	issued, err := engine.IssueCode(ctx, h.user.ID, VerificationEmail, "")
	if err != nil {
		t.Fatalf("IssueCode failed: %v", err)
	}
	sess, err := engine.Login(ctx, testEmail, testPassword)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	engine.Close()

	out := buf.String()
	for _, secret := range []string{issued.Code, testPassword, sess.RefreshToken, sess.AccessToken} {
		if strings.Contains(out, secret) {
			t.Fatalf("audit output leaked a secret: %s", out)
		}
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 audit lines, got %d: %s", len(lines), out)
	}
	var ev AuditEvent
	if err := json.Unmarshal([]byte(lines[0]), &ev); err != nil {
		t.Fatalf("invalid JSON line: %v", err)
	}
	if ev.EventType != auditEventCodeIssued {
		t.Fatalf("expected first event %q, got %q", auditEventCodeIssued, ev.EventType)
	}
}

func TestAuditErrorCodeMapping(t *testing.T) {
	cases := []struct {
		err  error
		want AuditErrorCode
	}{
		{nil, ""},
		{ErrInvalidCredentials, auditErrInvalidCredentials},
		{&LockedError{}, auditErrAccountLocked},
		{&CodeError{Remaining: 2}, auditErrCodeInvalid},
		{ErrCodeAttemptsExhausted, auditErrCodeExhausted},
		{unavailable(context.Canceled), auditErrUnavailable},
	}
	for _, tc := range cases {
		if got := auditErrorCode(tc.err); got != tc.want {
			t.Fatalf("auditErrorCode(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestPasswordChangeAuditCarriesRequestID(t *testing.T) {
	h := newHarness(t)
	sink := NewChannelSink(16)
	engine := auditedEngine(t, h, sink)
	defer engine.Close()

	ctx := WithRequestID(WithClientIP(context.Background(), "192.0.2.10"), "req-42")
	if err := engine.ChangePassword(ctx, h.user.ID, testPassword, newTestPassword); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}

	select {
	case ev := <-sink.Events():
		if ev.EventType != auditEventPasswordChangeSuccess || !ev.Success {
			t.Fatalf("unexpected event %+v", ev)
		}
		if ev.RequestID != "req-42" || ev.IP != "192.0.2.10" {
			t.Fatalf("unexpected request fields %+v", ev)
		}
		if !ev.Critical {
			t.Fatal("expected password change to be a critical event")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for audit event")
	}
}
