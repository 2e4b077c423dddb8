package httpapi

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	goBankAuth "github.com/MrEthical07/goBankAuth"
	"go.uber.org/zap"
)

// Response is the envelope of every reply.
type Response struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Data    any          `json:"data,omitempty"`
	Errors  []FieldError `json:"errors,omitempty"`
}

// FieldError names one request field that failed validation.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

const (
	msgInternal       = "Internal server error"
	msgValidation     = "Validation failed"
	msgBadBody        = "Invalid request body"
	msgUnauthorized   = "Invalid or expired token"
	msgForbidden      = "Access denied"
	msgCredentials    = "Invalid email or password"
	msgCodeInvalid    = "Invalid verification code"
	msgCodeExpired    = "Verification code has expired"
	msgCodeExhausted  = "Too many verification attempts. Please request a new code"
	msgRefreshInvalid = "Invalid or expired refresh token"
)

func writeJSON(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func writeSuccess(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, Response{Success: true, Message: message, Data: data})
}

func writeFailure(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, Response{Success: false, Message: message})
}

// writeError maps an engine error to status and message. Internal errors
// are logged and answered generically.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := s.errorResponse(err)
	if status == http.StatusInternalServerError || status == http.StatusServiceUnavailable {
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}

	var locked *goBankAuth.LockedError
	if errors.As(err, &locked) {
		w.Header().Set("Retry-After", retryAfter(locked.Until, s.now()))
	}
	writeJSON(w, status, resp)
}

func (s *Server) errorResponse(err error) (int, Response) {
	fail := func(status int, message string) (int, Response) {
		return status, Response{Success: false, Message: message}
	}

	switch goBankAuth.KindOf(err) {
	case goBankAuth.KindValidation:
		return fail(http.StatusBadRequest, err.Error())
	case goBankAuth.KindNotFound:
		return fail(http.StatusNotFound, "User not found")
	case goBankAuth.KindConflict:
		return fail(http.StatusConflict, err.Error())
	case goBankAuth.KindLocked:
		var locked *goBankAuth.LockedError
		if errors.As(err, &locked) {
			return fail(http.StatusLocked, "Account is locked until "+locked.Until.UTC().Format(time.RFC3339))
		}
		return fail(http.StatusLocked, "Account is locked")
	case goBankAuth.KindInvalid:
		if errors.Is(err, goBankAuth.ErrInvalidCredentials) {
			return fail(http.StatusUnauthorized, msgCredentials)
		}
		resp := Response{Success: false, Message: msgCodeInvalid}
		var codeErr *goBankAuth.CodeError
		if errors.As(err, &codeErr) && codeErr.Remaining > 0 {
			resp.Data = map[string]int{"remainingAttempts": codeErr.Remaining}
		}
		return http.StatusBadRequest, resp
	case goBankAuth.KindExpired:
		return fail(http.StatusBadRequest, msgCodeExpired)
	case goBankAuth.KindAttemptsExhausted:
		return fail(http.StatusTooManyRequests, msgCodeExhausted)
	case goBankAuth.KindRateLimited:
		return fail(http.StatusTooManyRequests, goBankAuth.ErrRateLimited.Error())
	case goBankAuth.KindDeliveryFailure:
		return fail(http.StatusServiceUnavailable, "Could not deliver verification code")
	case goBankAuth.KindUnauthorized:
		if errors.Is(err, goBankAuth.ErrRefreshInvalid) {
			return fail(http.StatusUnauthorized, msgRefreshInvalid)
		}
		return fail(http.StatusUnauthorized, msgUnauthorized)
	case goBankAuth.KindForbidden:
		switch {
		case errors.Is(err, goBankAuth.ErrAccountInactive):
			return fail(http.StatusForbidden, "Account is deactivated")
		case errors.Is(err, goBankAuth.ErrAccountSuspended):
			return fail(http.StatusForbidden, "Account is suspended")
		case errors.Is(err, goBankAuth.ErrEmailNotVerified):
			return fail(http.StatusForbidden, "Email address is not verified")
		}
		return fail(http.StatusForbidden, msgForbidden)
	default:
		if errors.Is(err, goBankAuth.ErrUnavailable) {
			return fail(http.StatusServiceUnavailable, msgInternal)
		}
		return fail(http.StatusInternalServerError, msgInternal)
	}
}

// retryAfter renders whole seconds until until, at least 1.
func retryAfter(until, now time.Time) string {
	secs := math.Ceil(until.Sub(now).Seconds())
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(int64(secs), 10)
}
