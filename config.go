package goBankAuth

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goBankAuth/internal/rate"
	"github.com/MrEthical07/goBankAuth/password"
)

// Config is the full engine configuration. Start from [DefaultConfig] and
// override fields; [Builder.Build] validates the result.
type Config struct {
	JWT          JWTConfig
	Session      SessionConfig
	Password     PasswordConfig
	Verification VerificationConfig
	Lockout      LockoutConfig
	RateLimit    RateLimitConfig
	Delivery     DeliveryConfig
	Audit        AuditConfig
	Metrics      MetricsConfig

	// RequireVerifiedEmail makes Login reject accounts whose email is
	// unverified. It is checked after the password.
	RequireVerifiedEmail bool
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures access tokens.
type JWTConfig struct {
	AccessTTL     time.Duration
	SigningMethod string // "ed25519" (default) or "hs256"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig configures refresh tokens. MaxActive caps each user's set;
// the soonest-expiring tokens are evicted first.
type SessionConfig struct {
	RedisPrefix string
	RefreshTTL  time.Duration
	MaxActive   int
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds argon2id costs (Memory in KiB) and the policy new
// passwords must meet. With AcceptBcrypt, legacy bcrypt digests still
// verify and are rehashed on login when UpgradeOnLogin is set.
type PasswordConfig struct {
	Memory         uint32
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	UpgradeOnLogin bool
	AcceptBcrypt   bool
	Policy         password.Policy
}

/*
====================================
VERIFICATION CONFIG
====================================
*/

// VerificationConfig configures one-time codes. The record key outlives
// CodeTTL by ExpiredGrace so late attempts report "expired".
type VerificationConfig struct {
	RedisPrefix  string
	CodeDigits   int
	CodeTTL      time.Duration
	MaxAttempts  int
	ExpiredGrace time.Duration
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig: Threshold consecutive failures lock the account for Duration.
type LockoutConfig struct {
	Threshold int
	Duration  time.Duration
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitPolicy admits Limit requests per key per fixed Window.
type RateLimitPolicy struct {
	Limit  int
	Window time.Duration
}

// RateLimitConfig holds one policy per endpoint class. A zero policy
// disables that class.
type RateLimitConfig struct {
	Enabled       bool
	RedisPrefix   string
	Login         RateLimitPolicy
	Verification  RateLimitPolicy
	Register      RateLimitPolicy
	PasswordReset RateLimitPolicy
	API           RateLimitPolicy
}

/*
====================================
DELIVERY / AUDIT / METRICS
====================================
*/

// DeliveryConfig bounds each outbound send. A send that exceeds Timeout
// counts as failed.
type DeliveryConfig struct {
	Timeout time.Duration
}

// AuditConfig controls the async audit dispatcher. DropIfFull never
// applies to critical events. FlushTimeout bounds the drain on Close.
type AuditConfig struct {
	Enabled      bool
	BufferSize   int
	DropIfFull   bool
	FlushTimeout time.Duration
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns production defaults. JWT keys are left empty and
// must be supplied.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			SigningMethod: "ed25519",
			Issuer:        "gobankauth",
		},
		Session: SessionConfig{
			RedisPrefix: "art",
			RefreshTTL:  7 * 24 * time.Hour,
			MaxActive:   10,
		},
		Password: PasswordConfig{
			Memory:         65536,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			UpgradeOnLogin: true,
			AcceptBcrypt:   true,
			Policy:         password.DefaultPolicy(),
		},
		Verification: VerificationConfig{
			RedisPrefix:  "avc",
			CodeDigits:   6,
			CodeTTL:      15 * time.Minute,
			MaxAttempts:  5,
			ExpiredGrace: 10 * time.Minute,
		},
		Lockout: LockoutConfig{
			Threshold: 5,
			Duration:  2 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			Enabled:       true,
			RedisPrefix:   "arl",
			Login:         RateLimitPolicy{Limit: 5, Window: 15 * time.Minute},
			Verification:  RateLimitPolicy{Limit: 3, Window: 5 * time.Minute},
			Register:      RateLimitPolicy{Limit: 5, Window: time.Hour},
			PasswordReset: RateLimitPolicy{Limit: 3, Window: 15 * time.Minute},
			API:           RateLimitPolicy{Limit: 100, Window: 15 * time.Minute},
		},
		Delivery: DeliveryConfig{
			Timeout: 10 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:      false,
			BufferSize:   1024,
			DropIfFull:   true,
			FlushTimeout: 5 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (c RateLimitConfig) policies() map[rate.Class]rate.Policy {
	out := make(map[rate.Class]rate.Policy, 5)
	add := func(class rate.Class, p RateLimitPolicy) {
		if p.Limit > 0 && p.Window > 0 {
			out[class] = rate.Policy{Limit: p.Limit, Window: p.Window}
		}
	}
	add(rate.ClassLogin, c.Login)
	add(rate.ClassVerification, c.Verification)
	add(rate.ClassRegister, c.Register)
	add(rate.ClassPasswordReset, c.PasswordReset)
	add(rate.ClassAPI, c.API)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	switch c.JWT.SigningMethod {
	case "ed25519":
		if len(c.JWT.PublicKey) == 0 {
			return errors.New("ed25519 requires PublicKey")
		}
		if len(c.JWT.PrivateKey) == 0 {
			return errors.New("ed25519 requires PrivateKey")
		}
	case "hs256":
		if len(c.JWT.PrivateKey) < 32 {
			return errors.New("hs256 requires a PrivateKey of at least 32 bytes")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// Session
	if c.Session.RefreshTTL <= 0 {
		return errors.New("Session RefreshTTL must be > 0")
	}
	if c.Session.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("Session RefreshTTL must exceed JWT AccessTTL")
	}
	if c.Session.MaxActive < 0 {
		return errors.New("Session MaxActive must be >= 0")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.Policy.MinLength < 8 {
		return errors.New("Password Policy MinLength must be >= 8")
	}
	if c.Password.Policy.MaxLength != 0 && c.Password.Policy.MaxLength < c.Password.Policy.MinLength {
		return errors.New("Password Policy MaxLength must be >= MinLength")
	}

	// Verification
	if c.Verification.CodeDigits < 6 || c.Verification.CodeDigits > 10 {
		return errors.New("Verification CodeDigits must be between 6 and 10")
	}
	if c.Verification.CodeTTL < time.Minute || c.Verification.CodeTTL > time.Hour {
		return errors.New("Verification CodeTTL must be between 1m and 1h")
	}
	if c.Verification.MaxAttempts < 1 || c.Verification.MaxAttempts > 10 {
		return errors.New("Verification MaxAttempts must be between 1 and 10")
	}
	if c.Verification.ExpiredGrace < 0 {
		return errors.New("Verification ExpiredGrace must be >= 0")
	}

	// Lockout
	if c.Lockout.Threshold < 1 {
		return errors.New("Lockout Threshold must be >= 1")
	}
	if c.Lockout.Duration <= 0 {
		return errors.New("Lockout Duration must be > 0")
	}

	// Rate limits
	if c.RateLimit.Enabled {
		for name, p := range map[string]RateLimitPolicy{
			"Login":         c.RateLimit.Login,
			"Verification":  c.RateLimit.Verification,
			"Register":      c.RateLimit.Register,
			"PasswordReset": c.RateLimit.PasswordReset,
			"API":           c.RateLimit.API,
		} {
			if p.Limit < 0 || p.Window < 0 {
				return fmt.Errorf("RateLimit %s must not be negative", name)
			}
			if (p.Limit == 0) != (p.Window == 0) {
				return fmt.Errorf("RateLimit %s needs both Limit and Window", name)
			}
		}
	}

	// Delivery
	if c.Delivery.Timeout <= 0 {
		return errors.New("Delivery Timeout must be > 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}
