package goBankAuth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/MrEthical07/goBankAuth/internal/normalize"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	maxFullNameLength = 100

	// DeleteConfirmation must be passed verbatim to [Engine.DeleteAccount].
	DeleteConfirmation = "DELETE"
)

// Register creates an account and sends email and phone codes. Delivery
// is best effort: the account exists even when no code went out, and
// RegisterResult reports which codes were sent.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := e.admitFor(ctx, RateRegister, req.Email); err != nil {
		return nil, err
	}

	fullName := strings.TrimSpace(req.FullName)
	if fullName == "" || utf8.RuneCountInString(fullName) > maxFullNameLength {
		return nil, fmt.Errorf("%w: full name must be 1 to %d characters", ErrInvalidInput, maxFullNameLength)
	}
	email, err := normalize.Email(req.Email)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	phone, err := normalize.Phone(req.PhoneNumber)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := e.checkPolicy(req.Password); err != nil {
		return nil, err
	}

	hash, err := e.passwords.Hash(req.Password)
	if err != nil {
		e.logger.Error("password hash failed", zap.String("op", "register"), zap.Error(err))
		return nil, unavailable(err)
	}

	now := e.now().UTC()
	user := &User{
		ID:           uuid.NewString(),
		FullName:     fullName,
		Email:        email,
		PhoneNumber:  phone,
		PasswordHash: hash,
		IsActive:     true,
		Role:         RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := e.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicateContact) {
			e.metricInc(MetricRegisterDuplicate)
			e.emitAudit(ctx, auditEventRegisterDuplicate, false, "", ErrAccountExists, nil)
			return nil, ErrAccountExists
		}
		e.logger.Error("create user failed", zap.Error(err))
		return nil, unavailable(err)
	}

	result := &RegisterResult{User: user}
	for _, t := range []VerificationType{VerificationEmail, VerificationPhone} {
		if _, err := e.issueCode(ctx, user, t, user.contact(t)); err != nil {
			if !errors.Is(err, ErrDeliveryFailed) {
				e.logger.Warn("registration code not issued",
					zap.String("user_id", user.ID),
					zap.String("type", string(t)),
					zap.Error(err),
				)
			}
			continue
		}
		switch t {
		case VerificationEmail:
			result.EmailCodeSent = true
		case VerificationPhone:
			result.PhoneCodeSent = true
		}
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventRegisterSuccess, true, user.ID, nil, func() map[string]string {
		return map[string]string{
			"email_code_sent": fmt.Sprint(result.EmailCodeSent),
			"phone_code_sent": fmt.Sprint(result.PhoneCodeSent),
		}
	})
	return result, nil
}

// DeleteAccount removes userID after re-checking the password. Every
// refresh token and pending code goes with it.
func (e *Engine) DeleteAccount(ctx context.Context, userID, pw, confirmation string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if confirmation != DeleteConfirmation {
		return fmt.Errorf("%w: confirmation must be %q", ErrInvalidInput, DeleteConfirmation)
	}
	if pw == "" {
		return fmt.Errorf("%w: password required", ErrInvalidInput)
	}

	user, err := e.findUser(ctx, "delete_account", func() (*User, error) {
		return e.users.FindUserByID(ctx, userID)
	})
	if err != nil {
		return err
	}
	if err := e.CheckLock(user); err != nil {
		return err
	}

	ok, err := e.VerifyPassword(user, pw)
	if err != nil {
		return unavailable(err)
	}
	if !ok {
		if _, err := e.RecordFailure(ctx, user); err != nil {
			return err
		}
		return ErrInvalidCredentials
	}

	if _, err := e.RevokeAll(ctx, user.ID); err != nil {
		return err
	}
	if _, err := e.codes.ClearPending(ctx, user.ID, verificationPurposes()); err != nil {
		e.logger.Warn("pending verification cleanup failed", zap.String("user_id", user.ID), zap.Error(err))
	}
	if err := e.users.DeleteUser(ctx, user.ID); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrUserNotFound
		}
		e.logger.Error("delete user failed", zap.String("user_id", user.ID), zap.Error(err))
		return unavailable(err)
	}

	e.metricInc(MetricAccountDeleted)
	e.emitAudit(ctx, auditEventAccountDeleted, true, user.ID, nil, nil)
	return nil
}
