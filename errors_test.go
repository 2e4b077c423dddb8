package goBankAuth

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorKind
	}{
		{nil, KindNone},
		{fmt.Errorf("%w: bad email", ErrInvalidInput), KindValidation},
		{ErrPasswordReuse, KindValidation},
		{ErrUserNotFound, KindNotFound},
		{ErrAccountExists, KindConflict},
		{&LockedError{Until: time.Now()}, KindLocked},
		{ErrInvalidCredentials, KindInvalid},
		{&CodeError{Remaining: 3}, KindInvalid},
		{ErrCodeExpired, KindExpired},
		{ErrCodeAttemptsExhausted, KindAttemptsExhausted},
		{ErrRateLimited, KindRateLimited},
		{fmt.Errorf("%w: timeout", ErrDeliveryFailed), KindDeliveryFailure},
		{ErrRefreshInvalid, KindUnauthorized},
		{ErrAccountSuspended, KindForbidden},
		{unavailable(errors.New("conn refused")), KindInternal},
		{errors.New("boom"), KindInternal},
	}
	for _, tc := range cases {
		if got := KindOf(tc.err); got != tc.want {
			t.Fatalf("KindOf(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}

func TestCodeErrorMessage(t *testing.T) {
	if got := (&CodeError{Remaining: 4}).Error(); got != "invalid verification code: 4 attempts remaining" {
		t.Fatalf("unexpected message %q", got)
	}
	if got := (&CodeError{}).Error(); got != ErrCodeInvalid.Error() {
		t.Fatalf("unexpected message %q", got)
	}
}
