package goBankAuth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/goBankAuth/delivery"
	internalaudit "github.com/MrEthical07/goBankAuth/internal/audit"
	"github.com/MrEthical07/goBankAuth/internal/rate"
	"github.com/MrEthical07/goBankAuth/jwt"
)

// Roles carried in access tokens. Only RoleAdmin grants access to other
// users' verification state.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// VerificationType is the closed set of code purposes.
type VerificationType string

const (
	VerificationEmail         VerificationType = "email"
	VerificationPhone         VerificationType = "phone"
	VerificationPasswordReset VerificationType = "password_reset"
)

// AllVerificationTypes lists every type in status order.
var AllVerificationTypes = []VerificationType{
	VerificationEmail,
	VerificationPhone,
	VerificationPasswordReset,
}

// ParseVerificationType accepts the wire names of the three types.
func ParseVerificationType(s string) (VerificationType, error) {
	t := VerificationType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: unknown verification type %q", ErrInvalidInput, s)
	}
	return t, nil
}

func (t VerificationType) Valid() bool {
	switch t {
	case VerificationEmail, VerificationPhone, VerificationPasswordReset:
		return true
	}
	return false
}

// contactFlag reports whether t proves control of a contact on the user.
func (t VerificationType) contactFlag() bool {
	return t == VerificationEmail || t == VerificationPhone
}

func (t VerificationType) channel() delivery.Channel {
	if t == VerificationPhone {
		return delivery.ChannelSMS
	}
	return delivery.ChannelEmail
}

func (t VerificationType) purpose() delivery.Purpose {
	switch t {
	case VerificationPhone:
		return delivery.PurposePhoneVerification
	case VerificationPasswordReset:
		return delivery.PurposePasswordReset
	default:
		return delivery.PurposeEmailVerification
	}
}

func verificationPurposes() []string {
	out := make([]string, len(AllVerificationTypes))
	for i, t := range AllVerificationTypes {
		out[i] = string(t)
	}
	return out
}

// User is the identity and security state of one account. Email and
// PhoneNumber are stored normalized.
type User struct {
	ID               string     `json:"id"`
	FullName         string     `json:"fullName"`
	Email            string     `json:"email"`
	PhoneNumber      string     `json:"phoneNumber"`
	PasswordHash     string     `json:"-"`
	EmailVerified    bool       `json:"emailVerified"`
	PhoneVerified    bool       `json:"phoneVerified"`
	FailedLoginCount int        `json:"-"`
	LockedUntil      *time.Time `json:"-"`
	IsActive         bool       `json:"isActive"`
	IsSuspended      bool       `json:"isSuspended"`
	Role             string     `json:"role"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

func (u *User) contact(t VerificationType) string {
	if t == VerificationPhone {
		return u.PhoneNumber
	}
	return u.Email
}

func (u *User) contactVerified(t VerificationType) bool {
	switch t {
	case VerificationEmail:
		return u.EmailVerified
	case VerificationPhone:
		return u.PhoneVerified
	}
	return false
}

// UserStore is the persistence contract for users. Lookups return
// ErrUserNotFound for absent users; CreateUser returns ErrDuplicateContact
// when the email or phone is taken.
//
// RecordLoginFailure must apply the lockout transition as one atomic
// update: an elapsed lock resets the count to 1 and clears the lock; an
// active lock only increments the count; otherwise the count increments
// and a lock of lockFor is set once it reaches threshold. It returns the
// user as stored after the update.
type UserStore interface {
	FindUserByID(ctx context.Context, id string) (*User, error)
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	FindUserByPhone(ctx context.Context, phone string) (*User, error)
	CreateUser(ctx context.Context, user *User) error
	UpdatePasswordHash(ctx context.Context, userID, hash string) error
	MarkContactVerified(ctx context.Context, userID string, t VerificationType) error
	RecordLoginFailure(ctx context.Context, userID string, now time.Time, threshold int, lockFor time.Duration) (*User, error)
	RecordLoginSuccess(ctx context.Context, userID string) error
	DeleteUser(ctx context.Context, userID string) error
}

// PasswordHasher is the one-way password contract. The password package
// provides argon2id and bcrypt implementations.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
	NeedsUpgrade(encodedHash string) (bool, error)
}

// AccessTokenSigner mints and checks stateless access tokens.
// *jwt.Manager satisfies it.
type AccessTokenSigner interface {
	CreateAccess(uid, role string) (string, time.Time, error)
	ParseAccess(token string) (*jwt.AccessClaims, error)
}

// Principal is the authenticated caller decoded from an access token.
type Principal struct {
	UserID    string
	Role      string
	TokenID   string
	ExpiresAt time.Time
}

// CanAccess reports whether the principal may act on userID.
func (p Principal) CanAccess(userID string) bool {
	return p.UserID != "" && (p.UserID == userID || p.Role == RoleAdmin)
}

// RegisterRequest is the input for [Engine.Register].
type RegisterRequest struct {
	FullName    string
	Email       string
	PhoneNumber string
	Password    string
}

// RegisterResult reports the new account and which codes were dispatched.
type RegisterResult struct {
	User          *User `json:"user"`
	EmailCodeSent bool  `json:"emailCodeSent"`
	PhoneCodeSent bool  `json:"phoneCodeSent"`
}

// Session is a freshly issued token pair.
type Session struct {
	AccessToken      string    `json:"accessToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
	User             *User     `json:"user,omitempty"`
}

// IssuedCode is returned by [Engine.IssueCode]. Code is the plaintext and
// is never serialized.
type IssuedCode struct {
	RecordID   string           `json:"-"`
	Type       VerificationType `json:"type"`
	Contact    string           `json:"contact"`
	Code       string           `json:"-"`
	ExpiresAt  time.Time        `json:"expiresAt"`
	Superseded bool             `json:"-"`
}

// VerifyStatus is the terminal state of one verify call.
type VerifyStatus string

const (
	VerifyVerified  VerifyStatus = "verified"
	VerifyInvalid   VerifyStatus = "invalid"
	VerifyExpired   VerifyStatus = "expired"
	VerifyExhausted VerifyStatus = "exhausted"
)

// VerifyResult is returned by [Engine.VerifyCode] alongside its error.
// RemainingAttempts is set only for a wrong code on a live record.
type VerifyResult struct {
	Status            VerifyStatus `json:"status"`
	RemainingAttempts int          `json:"remainingAttempts,omitempty"`
	Attempts          int          `json:"-"`
}

// SendVerificationRequest identifies the account by UserID, or by the
// contact that Type is sent to. Other identifiers are ignored.
type SendVerificationRequest struct {
	UserID string
	Email  string
	Phone  string
	Type   VerificationType
}

// identifier picks the lookup key for r: UserID first, then the contact
// matching r.Type. kind is empty when nothing usable was given.
func (r SendVerificationRequest) identifier() (kind, value string) {
	if id := strings.TrimSpace(r.UserID); id != "" {
		return "user_id", id
	}
	if r.Type.channel() == delivery.ChannelSMS {
		if phone := strings.TrimSpace(r.Phone); phone != "" {
			return "phone", phone
		}
		return "", ""
	}
	if email := strings.TrimSpace(r.Email); email != "" {
		return "email", email
	}
	return "", ""
}

func (r SendVerificationRequest) anyIdentifier() bool {
	return strings.TrimSpace(r.UserID) != "" || strings.TrimSpace(r.Email) != "" || strings.TrimSpace(r.Phone) != ""
}

// PendingCode describes a live code without its value.
type PendingCode struct {
	Type              VerificationType `json:"type"`
	Contact           string           `json:"contact"`
	ExpiresAt         time.Time        `json:"expiresAt"`
	RemainingAttempts int              `json:"remainingAttempts"`
}

// VerificationStatus is returned by [Engine.VerificationStatus].
type VerificationStatus struct {
	UserID        string        `json:"userId"`
	EmailVerified bool          `json:"emailVerified"`
	PhoneVerified bool          `json:"phoneVerified"`
	Pending       []PendingCode `json:"pendingVerifications"`
}

// RateClass names a rate-limit policy.
type RateClass = rate.Class

const (
	RateLogin         = rate.ClassLogin
	RateVerification  = rate.ClassVerification
	RateRegister      = rate.ClassRegister
	RatePasswordReset = rate.ClassPasswordReset
	RateAPI           = rate.ClassAPI
)

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink
