package goBankAuth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/goBankAuth/delivery"
	"github.com/MrEthical07/goBankAuth/internal"
	"github.com/MrEthical07/goBankAuth/internal/normalize"
	"github.com/MrEthical07/goBankAuth/internal/stores"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// cleanupTimeout bounds the detached rollback of an undelivered code.
const cleanupTimeout = 3 * time.Second

func codeHash(userID string, t VerificationType, code string) string {
	return internal.HashCode(userID+":"+string(t), code)
}

// IssueCode replaces any pending code for (userID, t) with a new one and
// delivers it to contact. An empty contact means the user's own email or
// phone. A code is never left live unless it was dispatched.
func (e *Engine) IssueCode(ctx context.Context, userID string, t VerificationType, contact string) (*IssuedCode, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if !t.Valid() {
		return nil, fmt.Errorf("%w: unknown verification type", ErrInvalidInput)
	}

	user, err := e.findUser(ctx, "issue_code", func() (*User, error) {
		return e.users.FindUserByID(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	if contact == "" {
		contact = user.contact(t)
	}
	return e.issueCode(ctx, user, t, contact)
}

// ResendCode issues a fresh code to the user's current contact. The old
// code and its attempt count are discarded.
func (e *Engine) ResendCode(ctx context.Context, userID string, t VerificationType) (*IssuedCode, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if !t.Valid() {
		return nil, fmt.Errorf("%w: unknown verification type", ErrInvalidInput)
	}

	user, err := e.findUser(ctx, "resend_code", func() (*User, error) {
		return e.users.FindUserByID(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	if user.contactVerified(t) {
		return nil, ErrAlreadyVerified
	}
	return e.issueCode(ctx, user, t, user.contact(t))
}

func (e *Engine) issueCode(ctx context.Context, user *User, t VerificationType, contact string) (*IssuedCode, error) {
	if contact == "" {
		return nil, fmt.Errorf("%w: no contact for %s", ErrInvalidInput, t)
	}

	code, err := internal.NewOTP(e.config.Verification.CodeDigits)
	if err != nil {
		return nil, unavailable(err)
	}

	now := e.now()
	record := &stores.VerificationRecord{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Purpose:   string(t),
		CodeHash:  codeHash(user.ID, t, code),
		Contact:   contact,
		ExpiresAt: now.Add(e.config.Verification.CodeTTL),
		CreatedAt: now,
	}

	superseded, err := e.codes.Issue(ctx, record, now, e.config.Verification.ExpiredGrace)
	if err != nil {
		e.logger.Error("verification issue failed",
			zap.String("user_id", user.ID),
			zap.String("type", string(t)),
			zap.Error(err),
		)
		return nil, unavailable(err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, e.config.Delivery.Timeout)
	err = e.sender.SendCode(sendCtx, delivery.Message{
		Contact:     contact,
		Code:        code,
		DisplayName: user.FullName,
		Channel:     t.channel(),
		Purpose:     t.purpose(),
		ExpiresIn:   record.ExpiresAt.Sub(now),
	})
	cancel()
	if err != nil {
		e.rollbackCode(ctx, user.ID, t, record.ID)
		e.logger.Warn("verification delivery failed",
			zap.String("user_id", user.ID),
			zap.String("type", string(t)),
			zap.Error(err),
		)
		e.metricInc(MetricCodeDeliveryFailed)
		e.emitAudit(ctx, auditEventCodeDeliveryFailed, false, user.ID, ErrDeliveryFailed, func() map[string]string {
			return map[string]string{"type": string(t)}
		})
		return nil, fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	e.metricInc(MetricCodeIssued)
	e.emitAudit(ctx, auditEventCodeIssued, true, user.ID, nil, func() map[string]string {
		m := map[string]string{"type": string(t)}
		if superseded {
			m["superseded"] = "1"
		}
		return m
	})

	return &IssuedCode{
		RecordID:   record.ID,
		Type:       t,
		Contact:    contact,
		Code:       code,
		ExpiresAt:  record.ExpiresAt,
		Superseded: superseded,
	}, nil
}

func (e *Engine) rollbackCode(ctx context.Context, userID string, t VerificationType, recordID string) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	if _, err := e.codes.DeleteIfMatches(cleanupCtx, userID, string(t), recordID); err != nil {
		e.logger.Error("verification rollback failed",
			zap.String("user_id", userID),
			zap.String("type", string(t)),
			zap.Error(err),
		)
	}
}

// VerifyCode runs one attempt against the pending email or phone code of
// userID. The returned error is nil only for VerifyVerified. A wrong code
// on a live record returns a *CodeError with the remaining attempts.
func (e *Engine) VerifyCode(ctx context.Context, userID string, t VerificationType, code string) (VerifyResult, error) {
	if err := e.ready(); err != nil {
		return VerifyResult{}, err
	}
	if err := e.admitFor(ctx, RateVerification, userID); err != nil {
		return VerifyResult{}, err
	}
	if !t.contactFlag() {
		return VerifyResult{}, fmt.Errorf("%w: type must be email or phone", ErrInvalidInput)
	}
	if strings.TrimSpace(userID) == "" {
		return VerifyResult{}, fmt.Errorf("%w: user id required", ErrInvalidInput)
	}
	if err := e.validateCode(code); err != nil {
		return VerifyResult{}, err
	}

	res, recordID, err := e.attemptCode(ctx, userID, t, code)
	if err != nil {
		return res, err
	}

	if err := e.users.MarkContactVerified(ctx, userID, t); err != nil {
		e.logger.Error("mark contact verified failed",
			zap.String("user_id", userID),
			zap.String("type", string(t)),
			zap.Error(err),
		)
		if errors.Is(err, ErrUserNotFound) {
			e.consumeCode(ctx, userID, t, recordID)
			return VerifyResult{Status: VerifyInvalid}, ErrCodeInvalid
		}
		e.reopenCode(ctx, userID, t, recordID)
		return VerifyResult{}, unavailable(err)
	}
	e.consumeCode(ctx, userID, t, recordID)
	return res, nil
}

func (e *Engine) validateCode(code string) error {
	if len(code) != e.config.Verification.CodeDigits {
		return fmt.Errorf("%w: code must have %d digits", ErrInvalidInput, e.config.Verification.CodeDigits)
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return fmt.Errorf("%w: code must be numeric", ErrInvalidInput)
		}
	}
	return nil
}

// attemptCode maps one store attempt onto a VerifyResult. On success the
// record is marked verified and its id returned for the caller to delete
// once its own side effects are done.
func (e *Engine) attemptCode(ctx context.Context, userID string, t VerificationType, code string) (VerifyResult, string, error) {
	maxAttempts := e.config.Verification.MaxAttempts

	res, err := e.codes.Attempt(ctx, userID, string(t), codeHash(userID, t, code), maxAttempts, e.now())
	if err != nil {
		e.logger.Error("verification attempt failed",
			zap.String("user_id", userID),
			zap.String("type", string(t)),
			zap.Error(err),
		)
		return VerifyResult{}, "", unavailable(err)
	}

	out := VerifyResult{Attempts: res.Attempts}
	var verr error
	switch res.Outcome {
	case stores.OutcomeVerified:
		out.Status = VerifyVerified
		e.metricInc(MetricCodeVerified)
		e.emitAudit(ctx, auditEventCodeVerified, true, userID, nil, func() map[string]string {
			return map[string]string{"type": string(t)}
		})
		return out, res.RecordID, nil
	case stores.OutcomeMismatch:
		out.Status = VerifyInvalid
		out.RemainingAttempts = maxAttempts - res.Attempts
		verr = &CodeError{Remaining: out.RemainingAttempts}
		e.metricInc(MetricCodeInvalid)
	case stores.OutcomeExpired:
		out.Status = VerifyExpired
		verr = ErrCodeExpired
		e.metricInc(MetricCodeExpired)
	case stores.OutcomeExhausted:
		out.Status = VerifyExhausted
		verr = ErrCodeAttemptsExhausted
		e.metricInc(MetricCodeExhausted)
	default:
		out.Status = VerifyInvalid
		verr = ErrCodeInvalid
		e.metricInc(MetricCodeInvalid)
	}

	e.emitAudit(ctx, auditEventCodeRejected, false, userID, verr, func() map[string]string {
		return map[string]string{"type": string(t), "status": string(out.Status)}
	})
	return out, "", verr
}

// consumeCode deletes a verified record. Verified records never verify
// again, so a failed delete is only logged.
func (e *Engine) consumeCode(ctx context.Context, userID string, t VerificationType, recordID string) {
	if _, err := e.codes.DeleteIfMatches(ctx, userID, string(t), recordID); err != nil {
		e.logger.Warn("verified record delete failed",
			zap.String("user_id", userID),
			zap.String("type", string(t)),
			zap.Error(err),
		)
	}
}

// reopenCode returns a verified record to pending after the follow-up
// user mutation failed, so the same code can be retried.
func (e *Engine) reopenCode(ctx context.Context, userID string, t VerificationType, recordID string) {
	if _, err := e.codes.Reopen(ctx, userID, string(t), recordID); err != nil {
		e.logger.Warn("verified record reopen failed",
			zap.String("user_id", userID),
			zap.String("type", string(t)),
			zap.Error(err),
		)
	}
}

// SendVerification issues or resends a code for the account named by
// req. UserID wins when set; otherwise the identifier matching req.Type is
// used, email for email and password reset codes and phone for SMS. Unknown
// accounts, already verified contacts and delivery failures all return nil
// so the caller cannot tell them apart from a real send.
func (e *Engine) SendVerification(ctx context.Context, req SendVerificationRequest) error {
	if err := e.ready(); err != nil {
		return err
	}
	if !req.Type.Valid() {
		return fmt.Errorf("%w: unknown verification type", ErrInvalidInput)
	}

	kind, identity := req.identifier()
	if kind == "" {
		if req.anyIdentifier() {
			// The only identifier given does not match the type.
			return nil
		}
		return fmt.Errorf("%w: userId, email or phone is required", ErrInvalidInput)
	}
	if err := e.admitFor(ctx, RateVerification, identity); err != nil {
		return err
	}

	user, err := e.lookupAccount(ctx, kind, identity)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil
		}
		return err
	}
	if !user.IsActive || user.IsSuspended || user.contactVerified(req.Type) {
		return nil
	}

	if _, err := e.issueCode(ctx, user, req.Type, user.contact(req.Type)); err != nil {
		if errors.Is(err, ErrDeliveryFailed) {
			return nil
		}
		return err
	}
	return nil
}

func (e *Engine) lookupAccount(ctx context.Context, kind, identity string) (*User, error) {
	switch kind {
	case "user_id":
		return e.findUser(ctx, "send_verification", func() (*User, error) {
			return e.users.FindUserByID(ctx, identity)
		})
	case "email":
		email, err := normalize.Email(identity)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return e.findUser(ctx, "send_verification", func() (*User, error) {
			return e.users.FindUserByEmail(ctx, email)
		})
	default:
		phone, err := normalize.Phone(identity)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return e.findUser(ctx, "send_verification", func() (*User, error) {
			return e.users.FindUserByPhone(ctx, phone)
		})
	}
}

// VerificationStatus returns the verified flags and pending codes of
// userID. The caller must be that user or an admin.
func (e *Engine) VerificationStatus(ctx context.Context, caller Principal, userID string) (*VerificationStatus, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if !caller.CanAccess(userID) {
		return nil, ErrForbidden
	}

	user, err := e.findUser(ctx, "verification_status", func() (*User, error) {
		return e.users.FindUserByID(ctx, userID)
	})
	if err != nil {
		return nil, err
	}

	records, err := e.codes.ListPending(ctx, userID, verificationPurposes(), e.now())
	if err != nil {
		e.logger.Error("list pending verifications failed", zap.String("user_id", userID), zap.Error(err))
		return nil, unavailable(err)
	}

	status := &VerificationStatus{
		UserID:        user.ID,
		EmailVerified: user.EmailVerified,
		PhoneVerified: user.PhoneVerified,
		Pending:       make([]PendingCode, 0, len(records)),
	}
	for _, r := range records {
		remaining := e.config.Verification.MaxAttempts - r.Attempts
		if remaining < 0 {
			remaining = 0
		}
		status.Pending = append(status.Pending, PendingCode{
			Type:              VerificationType(r.Purpose),
			Contact:           r.Contact,
			ExpiresAt:         r.ExpiresAt,
			RemainingAttempts: remaining,
		})
	}
	return status, nil
}

// ClearPendingVerifications deletes every pending code of userID and
// returns how many were removed. The caller must be that user or an admin.
func (e *Engine) ClearPendingVerifications(ctx context.Context, caller Principal, userID string) (int, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	if !caller.CanAccess(userID) {
		return 0, ErrForbidden
	}

	n, err := e.codes.ClearPending(ctx, userID, verificationPurposes())
	if err != nil {
		e.logger.Error("clear pending verifications failed", zap.String("user_id", userID), zap.Error(err))
		return 0, unavailable(err)
	}

	e.emitAudit(ctx, auditEventVerificationCleared, true, userID, nil, func() map[string]string {
		return map[string]string{"cleared_by": caller.UserID}
	})
	return n, nil
}
