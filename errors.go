package goBankAuth

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidInput wraps malformed requests rejected before any state changes.
	ErrInvalidInput = errors.New("invalid input")
	// ErrPasswordPolicy is returned when a new password misses a policy rule.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrPasswordReuse is returned when a new password equals the current one.
	ErrPasswordReuse = errors.New("new password must be different from current password")
	// ErrInvalidCredentials covers both an unknown email and a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is matched by every *LockedError.
	ErrAccountLocked = errors.New("account locked")
	// ErrAccountInactive is returned for deactivated accounts.
	ErrAccountInactive = errors.New("account inactive")
	// ErrAccountSuspended is returned for suspended accounts.
	ErrAccountSuspended = errors.New("account suspended")
	// ErrEmailNotVerified is returned by Login when Config.RequireVerifiedEmail is set.
	ErrEmailNotVerified = errors.New("email not verified")
	// ErrAccountExists is returned by Register when the email or phone is taken.
	ErrAccountExists = errors.New("account already exists")
	// ErrUserNotFound is returned by UserStore lookups for absent users.
	ErrUserNotFound = errors.New("user not found")
	// ErrDuplicateContact is returned by UserStore.CreateUser on a unique conflict.
	ErrDuplicateContact = errors.New("email or phone already registered")
	// ErrAlreadyVerified is returned when a code is requested for a verified contact.
	ErrAlreadyVerified = errors.New("contact already verified")
	// ErrCodeInvalid covers a wrong code and a code that does not exist.
	ErrCodeInvalid = errors.New("invalid verification code")
	// ErrCodeExpired is returned when the code outlived its TTL.
	ErrCodeExpired = errors.New("verification code expired")
	// ErrCodeAttemptsExhausted is returned when the attempt cap deleted the code.
	ErrCodeAttemptsExhausted = errors.New("verification attempts exhausted")
	// ErrDeliveryFailed is returned when a code could not be dispatched.
	ErrDeliveryFailed = errors.New("code delivery failed")
	// ErrRateLimited is the uniform signal for every throttled request.
	ErrRateLimited = errors.New("too many attempts, please try again later")
	// ErrRefreshInvalid is returned for unknown, revoked or malformed refresh tokens.
	ErrRefreshInvalid = errors.New("invalid refresh token")
	// ErrTokenInvalid is returned for access tokens failing signature or expiry checks.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrForbidden is returned when the caller may not act on the target user.
	ErrForbidden = errors.New("forbidden")
	// ErrUnavailable wraps storage and other internal failures.
	ErrUnavailable = errors.New("service unavailable")
	// ErrEngineNotReady is returned by methods on a nil or unbuilt Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// LockedError reports an active lock and when it lifts.
type LockedError struct {
	Until time.Time
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account locked until %s", e.Until.UTC().Format(time.RFC3339))
}

func (e *LockedError) Is(target error) bool {
	return target == ErrAccountLocked
}

// CodeError carries the remaining-attempts hint for a wrong code.
// Remaining is zero when no hint may be given.
type CodeError struct {
	Remaining int
}

func (e *CodeError) Error() string {
	if e.Remaining > 0 {
		return fmt.Sprintf("%s: %d attempts remaining", ErrCodeInvalid, e.Remaining)
	}
	return ErrCodeInvalid.Error()
}

func (e *CodeError) Is(target error) bool {
	return target == ErrCodeInvalid
}

// ErrorKind is the coarse class of an engine error.
type ErrorKind uint8

const (
	KindNone ErrorKind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindLocked
	KindInvalid
	KindExpired
	KindAttemptsExhausted
	KindRateLimited
	KindDeliveryFailure
	KindUnauthorized
	KindForbidden
	KindInternal
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindLocked:
		return "locked"
	case KindInvalid:
		return "invalid"
	case KindExpired:
		return "expired"
	case KindAttemptsExhausted:
		return "attempts_exhausted"
	case KindRateLimited:
		return "rate_limited"
	case KindDeliveryFailure:
		return "delivery_failure"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	default:
		return "internal"
	}
}

// KindOf classifies err. Unknown errors are KindInternal.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrPasswordPolicy),
		errors.Is(err, ErrPasswordReuse):
		return KindValidation
	case errors.Is(err, ErrUserNotFound):
		return KindNotFound
	case errors.Is(err, ErrAccountExists),
		errors.Is(err, ErrDuplicateContact),
		errors.Is(err, ErrAlreadyVerified):
		return KindConflict
	case errors.Is(err, ErrAccountLocked):
		return KindLocked
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrCodeInvalid):
		return KindInvalid
	case errors.Is(err, ErrCodeExpired):
		return KindExpired
	case errors.Is(err, ErrCodeAttemptsExhausted):
		return KindAttemptsExhausted
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, ErrDeliveryFailed):
		return KindDeliveryFailure
	case errors.Is(err, ErrTokenInvalid),
		errors.Is(err, ErrRefreshInvalid):
		return KindUnauthorized
	case errors.Is(err, ErrForbidden),
		errors.Is(err, ErrAccountInactive),
		errors.Is(err, ErrAccountSuspended),
		errors.Is(err, ErrEmailNotVerified):
		return KindForbidden
	default:
		return KindInternal
	}
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
