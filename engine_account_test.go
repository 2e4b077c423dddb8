package goBankAuth

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/MrEthical07/goBankAuth/delivery"
)

func validRegistration() RegisterRequest {
	return RegisterRequest{
		FullName:    "Carla Mendes",
		Email:       "Carla@Bank.test",
		PhoneNumber: "+351 912-345-678",
		Password:    "Sup3r$ecret",
	}
}

func TestRegisterCreatesUserAndSendsCodes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.engine.Register(ctx, validRegistration())
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if !res.EmailCodeSent || !res.PhoneCodeSent {
		t.Fatalf("expected both codes sent, got %+v", res)
	}
	if res.User.Email != "carla@bank.test" || res.User.PhoneNumber != "+351912345678" {
		t.Fatalf("expected normalized contacts, got %q %q", res.User.Email, res.User.PhoneNumber)
	}
	if res.User.EmailVerified || res.User.PhoneVerified || !res.User.IsActive {
		t.Fatalf("unexpected initial flags %+v", res.User)
	}

	raw, _ := json.Marshal(res)
	if strings.Contains(string(raw), res.User.PasswordHash) || strings.Contains(string(raw), "passwordHash") {
		t.Fatalf("password hash leaked: %s", raw)
	}

	code := h.sender.lastCode(t, "+351912345678", delivery.PurposePhoneVerification)
	if _, err := h.engine.VerifyCode(ctx, res.User.ID, VerificationPhone, code); err != nil {
		t.Fatalf("VerifyCode failed: %v", err)
	}
}

func TestRegisterDuplicateContact(t *testing.T) {
	h := newHarness(t)

	req := validRegistration()
	req.Email = strings.ToUpper(testEmail)
	if _, err := h.engine.Register(context.Background(), req); !errors.Is(err, ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists, got %v", err)
	}
	if got := h.engine.MetricsSnapshot().Counters[MetricRegisterDuplicate]; got != 1 {
		t.Fatalf("expected duplicate counted, got %d", got)
	}
}

func TestRegisterSucceedsWhenDeliveryFails(t *testing.T) {
	h := newHarness(t)
	h.sender.err = errors.New("provider down")

	res, err := h.engine.Register(context.Background(), validRegistration())
	if err != nil {
		t.Fatalf("Register must succeed without delivery, got %v", err)
	}
	if res.EmailCodeSent || res.PhoneCodeSent {
		t.Fatalf("expected no codes sent, got %+v", res)
	}
	if h.store.get(res.User.ID) == nil {
		t.Fatal("expected user to be stored")
	}
}

func TestRegisterValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*RegisterRequest)
		want   error
	}{
		{"empty name", func(r *RegisterRequest) { r.FullName = "  " }, ErrInvalidInput},
		{"bad email", func(r *RegisterRequest) { r.Email = "carla@" }, ErrInvalidInput},
		{"bad phone", func(r *RegisterRequest) { r.PhoneNumber = "12ab" }, ErrInvalidInput},
		{"weak password", func(r *RegisterRequest) { r.Password = "password" }, ErrPasswordPolicy},
	}
	for _, tc := range cases {
		req := validRegistration()
		tc.mutate(&req)
		if _, err := h.engine.Register(ctx, req); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
	if h.sender.count() != 0 {
		t.Fatal("rejected registrations must not send codes")
	}
}

func TestDeleteAccount(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sess := login(t, h)
	if _, err := h.engine.IssueCode(ctx, h.user.ID, VerificationEmail, ""); err != nil {
		t.Fatalf("IssueCode failed: %v", err)
	}

	if err := h.engine.DeleteAccount(ctx, h.user.ID, testPassword, "delete"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for wrong confirmation, got %v", err)
	}
	if err := h.engine.DeleteAccount(ctx, h.user.ID, "Wrong#Pass1", DeleteConfirmation); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if got := h.store.get(h.user.ID).FailedLoginCount; got != 1 {
		t.Fatalf("wrong password must count toward lockout, got %d", got)
	}

	if err := h.engine.DeleteAccount(ctx, h.user.ID, testPassword, DeleteConfirmation); err != nil {
		t.Fatalf("DeleteAccount failed: %v", err)
	}
	if h.store.get(h.user.ID) != nil {
		t.Fatal("expected user to be deleted")
	}
	if _, err := h.engine.Refresh(ctx, sess.RefreshToken); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected refresh to fail after deletion, got %v", err)
	}
	if keys := h.mr.Keys(); len(keys) != 0 {
		t.Fatalf("expected no redis state left, got %v", keys)
	}
}
