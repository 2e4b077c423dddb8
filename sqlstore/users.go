package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	goBankAuth "github.com/MrEthical07/goBankAuth"
	"github.com/MrEthical07/goBankAuth/internal/normalize"
	"github.com/jmoiron/sqlx"
)

var _ goBankAuth.UserStore = (*Store)(nil)

const userColumns = `id, full_name, email, phone_number, password_hash,
	email_verified, phone_verified, failed_login_count, locked_until,
	is_active, is_suspended, role, created_at, updated_at`

type userRow struct {
	ID               string        `db:"id"`
	FullName         string        `db:"full_name"`
	Email            string        `db:"email"`
	PhoneNumber      string        `db:"phone_number"`
	PasswordHash     string        `db:"password_hash"`
	EmailVerified    bool          `db:"email_verified"`
	PhoneVerified    bool          `db:"phone_verified"`
	FailedLoginCount int           `db:"failed_login_count"`
	LockedUntil      sql.NullInt64 `db:"locked_until"`
	IsActive         bool          `db:"is_active"`
	IsSuspended      bool          `db:"is_suspended"`
	Role             string        `db:"role"`
	CreatedAt        int64         `db:"created_at"`
	UpdatedAt        int64         `db:"updated_at"`
}

func (r *userRow) toUser() *goBankAuth.User {
	u := &goBankAuth.User{
		ID:               r.ID,
		FullName:         r.FullName,
		Email:            r.Email,
		PhoneNumber:      r.PhoneNumber,
		PasswordHash:     r.PasswordHash,
		EmailVerified:    r.EmailVerified,
		PhoneVerified:    r.PhoneVerified,
		FailedLoginCount: r.FailedLoginCount,
		IsActive:         r.IsActive,
		IsSuspended:      r.IsSuspended,
		Role:             r.Role,
		CreatedAt:        time.UnixMilli(r.CreatedAt).UTC(),
		UpdatedAt:        time.UnixMilli(r.UpdatedAt).UTC(),
	}
	if r.LockedUntil.Valid {
		until := time.UnixMilli(r.LockedUntil.Int64).UTC()
		u.LockedUntil = &until
	}
	return u
}

func (s *Store) findOne(ctx context.Context, column, value string) (*goBankAuth.User, error) {
	var row userRow
	query := s.db.Rebind(`SELECT ` + userColumns + ` FROM users WHERE ` + column + ` = ?`)
	if err := s.db.GetContext(ctx, &row, query, value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by %s: %w", column, err)
	}
	return row.toUser(), nil
}

func (s *Store) FindUserByID(ctx context.Context, id string) (*goBankAuth.User, error) {
	return s.findOne(ctx, "id", id)
}

// FindUserByEmail looks the address up in canonical form.
func (s *Store) FindUserByEmail(ctx context.Context, email string) (*goBankAuth.User, error) {
	canonical, err := normalize.Email(email)
	if err != nil {
		return nil, ErrUserNotFound
	}
	return s.findOne(ctx, "email", canonical)
}

// FindUserByPhone looks the number up in canonical form.
func (s *Store) FindUserByPhone(ctx context.Context, phone string) (*goBankAuth.User, error) {
	canonical, err := normalize.Phone(phone)
	if err != nil {
		return nil, ErrUserNotFound
	}
	return s.findOne(ctx, "phone_number", canonical)
}

// CreateUser inserts user with canonical contacts. A conflict on either
// contact returns goBankAuth.ErrDuplicateContact.
func (s *Store) CreateUser(ctx context.Context, user *goBankAuth.User) error {
	if user == nil || user.ID == "" {
		return errors.New("user id is required")
	}
	email, err := normalize.Email(user.Email)
	if err != nil {
		return err
	}
	phone, err := normalize.Phone(user.PhoneNumber)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	created, updated := user.CreatedAt, user.UpdatedAt
	if created.IsZero() {
		created = now
	}
	if updated.IsZero() {
		updated = created
	}
	role := user.Role
	if role == "" {
		role = goBankAuth.RoleUser
	}

	row := userRow{
		ID:               user.ID,
		FullName:         user.FullName,
		Email:            email,
		PhoneNumber:      phone,
		PasswordHash:     user.PasswordHash,
		EmailVerified:    user.EmailVerified,
		PhoneVerified:    user.PhoneVerified,
		FailedLoginCount: user.FailedLoginCount,
		IsActive:         user.IsActive,
		IsSuspended:      user.IsSuspended,
		Role:             role,
		CreatedAt:        created.UnixMilli(),
		UpdatedAt:        updated.UnixMilli(),
	}
	if user.LockedUntil != nil {
		row.LockedUntil = sql.NullInt64{Int64: user.LockedUntil.UnixMilli(), Valid: true}
	}

	query := `INSERT INTO users (` + userColumns + `) VALUES (
		:id, :full_name, :email, :phone_number, :password_hash,
		:email_verified, :phone_verified, :failed_login_count, :locked_until,
		:is_active, :is_suspended, :role, :created_at, :updated_at)`
	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// exec runs an update that must touch exactly one row.
func (s *Store) exec(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *Store) UpdatePasswordHash(ctx context.Context, userID, hash string) error {
	return s.exec(ctx, `UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		hash, s.now().UnixMilli(), userID)
}

func (s *Store) MarkContactVerified(ctx context.Context, userID string, t goBankAuth.VerificationType) error {
	var column string
	switch t {
	case goBankAuth.VerificationEmail:
		column = "email_verified"
	case goBankAuth.VerificationPhone:
		column = "phone_verified"
	default:
		return fmt.Errorf("verification type %q has no contact flag", t)
	}
	return s.exec(ctx, `UPDATE users SET `+column+` = ?, updated_at = ? WHERE id = ?`,
		true, s.now().UnixMilli(), userID)
}

// recordFailureQuery applies one failed login in a single statement. Both
// engines evaluate every right-hand side against the pre-update row:
// an elapsed lock restarts the count at 1, an active lock is left alone, and
// reaching the threshold without a lock sets one.
const recordFailureQuery = `UPDATE users SET
	failed_login_count = CASE
		WHEN locked_until IS NOT NULL AND locked_until <= :now THEN 1
		ELSE failed_login_count + 1
	END,
	locked_until = CASE
		WHEN locked_until IS NOT NULL AND locked_until <= :now THEN NULL
		WHEN locked_until IS NULL AND failed_login_count + 1 >= :threshold THEN :lock_until
		ELSE locked_until
	END,
	updated_at = :now
WHERE id = :id
RETURNING ` + userColumns

func (s *Store) RecordLoginFailure(ctx context.Context, userID string, now time.Time, threshold int, lockFor time.Duration) (*goBankAuth.User, error) {
	if threshold <= 0 || lockFor <= 0 {
		return nil, errors.New("invalid lockout configuration")
	}

	query, args, err := sqlx.Named(recordFailureQuery, map[string]any{
		"id":         userID,
		"now":        now.UnixMilli(),
		"threshold":  threshold,
		"lock_until": now.Add(lockFor).UnixMilli(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to bind lockout update: %w", err)
	}

	var row userRow
	if err := s.db.GetContext(ctx, &row, s.db.Rebind(query), args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to record login failure: %w", err)
	}
	return row.toUser(), nil
}

func (s *Store) RecordLoginSuccess(ctx context.Context, userID string) error {
	return s.exec(ctx, `UPDATE users SET failed_login_count = 0, locked_until = NULL, updated_at = ? WHERE id = ?`,
		s.now().UnixMilli(), userID)
}

func (s *Store) DeleteUser(ctx context.Context, userID string) error {
	return s.exec(ctx, `DELETE FROM users WHERE id = ?`, userID)
}

// SetStatus updates the administrative flags. It is not part of
// goBankAuth.UserStore; operators call it directly.
func (s *Store) SetStatus(ctx context.Context, userID string, active, suspended bool) error {
	return s.exec(ctx, `UPDATE users SET is_active = ?, is_suspended = ?, updated_at = ? WHERE id = ?`,
		active, suspended, s.now().UnixMilli(), userID)
}

// SetRole changes the user's role.
func (s *Store) SetRole(ctx context.Context, userID, role string) error {
	if role != goBankAuth.RoleUser && role != goBankAuth.RoleAdmin {
		return fmt.Errorf("unknown role %q", role)
	}
	return s.exec(ctx, `UPDATE users SET role = ?, updated_at = ? WHERE id = ?`,
		role, s.now().UnixMilli(), userID)
}
