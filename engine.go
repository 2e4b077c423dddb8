package goBankAuth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/goBankAuth/delivery"
	internalaudit "github.com/MrEthical07/goBankAuth/internal/audit"
	"github.com/MrEthical07/goBankAuth/internal/limiters"
	"github.com/MrEthical07/goBankAuth/internal/rate"
	"github.com/MrEthical07/goBankAuth/internal/stores"
	"github.com/MrEthical07/goBankAuth/password"
	"github.com/MrEthical07/goBankAuth/session"
	"go.uber.org/zap"
)

// Engine runs every authentication and verification operation. Build one
// with [New] and share it across goroutines.
type Engine struct {
	config    Config
	logger    *zap.Logger
	users     UserStore
	sender    delivery.Sender
	codes     *stores.VerificationStore
	refresh   *session.Store
	limiter   *rate.Limiter
	lockout   *limiters.LockoutPolicy
	passwords PasswordHasher
	policy    password.Policy
	tokens    AccessTokenSigner
	audit     *internalaudit.Dispatcher
	metrics   *Metrics
	now       func() time.Time

	// dummyHash keeps login timing equal for unknown emails.
	dummyHash string
}

// Close flushes and stops the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns how many audit events were dropped on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// Admit counts one request for key under class and returns ErrRateLimited
// once the class limit is reached inside its window. A failure of the
// counter store is logged and the request admitted.
func (e *Engine) Admit(ctx context.Context, key string, class RateClass) error {
	if e == nil || e.limiter == nil {
		return nil
	}

	err := e.limiter.Admit(ctx, key, class)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rate.ErrRateLimited):
		e.emitRateLimit(ctx, class)
		return ErrRateLimited
	default:
		e.logger.Error("rate limiter unavailable",
			zap.String("class", string(class)),
			zap.Error(err),
		)
		return nil
	}
}

// admitFor keys the limit on the client IP, falling back to identity when
// the caller has no IP.
func (e *Engine) admitFor(ctx context.Context, class RateClass, identity string) error {
	key := clientIPFromContext(ctx)
	if key == "" {
		key = strings.ToLower(strings.TrimSpace(identity))
	}
	if key == "" {
		return nil
	}
	return e.Admit(ctx, key, class)
}

func (e *Engine) ready() error {
	if e == nil || e.users == nil || e.codes == nil || e.tokens == nil || e.passwords == nil {
		return ErrEngineNotReady
	}
	return nil
}

// Config returns a copy of the active configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// findUser loads a user, mapping store failures to ErrUnavailable.
func (e *Engine) findUser(ctx context.Context, op string, find func() (*User, error)) (*User, error) {
	user, err := find()
	if err == nil {
		return user, nil
	}
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrUserNotFound
	}
	e.logger.Error("user lookup failed", zap.String("op", op), zap.Error(err))
	return nil, unavailable(err)
}
