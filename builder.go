package goBankAuth

import (
	"errors"
	"time"

	"github.com/MrEthical07/goBankAuth/delivery"
	internalaudit "github.com/MrEthical07/goBankAuth/internal/audit"
	"github.com/MrEthical07/goBankAuth/internal/limiters"
	"github.com/MrEthical07/goBankAuth/internal/rate"
	"github.com/MrEthical07/goBankAuth/internal/stores"
	"github.com/MrEthical07/goBankAuth/jwt"
	"github.com/MrEthical07/goBankAuth/password"
	"github.com/MrEthical07/goBankAuth/session"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder assembles an [Engine]. A Builder is single-use.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	users  UserStore
	sender delivery.Sender
	logger *zap.Logger

	auditSink AuditSink
	hasher    PasswordHasher
	signer    AccessTokenSigner
	clock     func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client backing codes, rate counters and refresh sets.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithUserStore(store UserStore) *Builder {
	b.users = store
	return b
}

// WithSender sets the code delivery collaborator.
func (b *Builder) WithSender(sender delivery.Sender) *Builder {
	b.sender = sender
	return b
}

// WithLogger sets the logger for internal failures. Defaults to zap.NewNop.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithPasswordHasher replaces the argon2id/bcrypt chain built from
// Config.Password.
func (b *Builder) WithPasswordHasher(h PasswordHasher) *Builder {
	b.hasher = h
	return b
}

// WithTokenSigner replaces the jwt.Manager built from Config.JWT.
func (b *Builder) WithTokenSigner(s AccessTokenSigner) *Builder {
	b.signer = s
	return b
}

// WithClock sets the engine time source. Intended for tests; Redis TTLs
// still follow the server clock.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.users == nil {
		return nil, errors.New("user store required")
	}
	if b.sender == nil {
		return nil, errors.New("delivery sender required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := b.clock
	if now == nil {
		now = time.Now
	}

	lockout, err := limiters.NewLockoutPolicy(limiters.LockoutConfig{
		Threshold: cfg.Lockout.Threshold,
		Duration:  cfg.Lockout.Duration,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:  cloneConfig(cfg),
		logger:  logger.Named("gobankauth"),
		users:   b.users,
		sender:  b.sender,
		codes:   stores.NewVerificationStore(b.redis, cfg.Verification.RedisPrefix),
		refresh: session.NewStore(b.redis, cfg.Session.RedisPrefix, cfg.Session.MaxActive),
		lockout: lockout,
		policy:  cfg.Password.Policy,
		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:      cfg.Audit.Enabled,
			BufferSize:   cfg.Audit.BufferSize,
			DropIfFull:   cfg.Audit.DropIfFull,
			FlushTimeout: cfg.Audit.FlushTimeout,
		}, b.auditSink),
		metrics: NewMetrics(cfg.Metrics),
		now:     now,
	}

	if cfg.RateLimit.Enabled {
		engine.limiter = rate.New(b.redis, rate.Config{
			Prefix:   cfg.RateLimit.RedisPrefix,
			Policies: cfg.RateLimit.policies(),
		})
	}

	engine.passwords = b.hasher
	if engine.passwords == nil {
		ph, err := password.NewArgon2(password.Config{
			Memory:      cfg.Password.Memory,
			Time:        cfg.Password.Time,
			Parallelism: cfg.Password.Parallelism,
			SaltLength:  cfg.Password.SaltLength,
			KeyLength:   cfg.Password.KeyLength,
		})
		if err != nil {
			return nil, err
		}
		var legacy []password.Scheme
		if cfg.Password.AcceptBcrypt {
			bc, err := password.NewBcrypt(0)
			if err != nil {
				return nil, err
			}
			legacy = append(legacy, bc)
		}
		engine.passwords = password.NewChain(ph, legacy...)
	}

	dummy, err := engine.passwords.Hash(uuid.NewString())
	if err != nil {
		return nil, err
	}
	engine.dummyHash = dummy

	engine.tokens = b.signer
	if engine.tokens == nil {
		jm, err := jwt.NewManager(jwt.Config{
			AccessTTL:     cfg.JWT.AccessTTL,
			SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
			PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
			PublicKey:     cloneBytes(cfg.JWT.PublicKey),
			Issuer:        cfg.JWT.Issuer,
			Audience:      cfg.JWT.Audience,
			Leeway:        cfg.JWT.Leeway,
		})
		if err != nil {
			return nil, err
		}
		jm.SetClock(now)
		engine.tokens = jm
	}

	b.built = true

	return engine, nil
}
