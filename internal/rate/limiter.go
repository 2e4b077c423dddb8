package rate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Class names an endpoint family that shares one budget.
type Class string

const (
	ClassLogin         Class = "login"
	ClassVerification  Class = "verification"
	ClassRegister      Class = "register"
	ClassPasswordReset Class = "password_reset"
	ClassAPI           Class = "api"
)

// Policy is the budget for one class: at most Limit admitted calls per Window.
type Policy struct {
	Limit  int
	Window time.Duration
}

// Config maps classes to policies. Classes without a policy are always admitted.
type Config struct {
	Prefix   string
	Policies map[Class]Policy
}

// incrWindowLua increments the counter and arms the window on the first hit.
// The PTTL guard re-arms keys that lost their expiry.
// KEYS[1] = counter key
// ARGV[1] = window in milliseconds
var incrWindowLua = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 or redis.call('PTTL', KEYS[1]) < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return count
`)

// Limiter admits or rejects calls using Redis fixed-window counters.
// Counters are shared by every process pointed at the same Redis.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "arl"
	}
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// Admit counts the call against key's budget for class and returns
// ErrRateLimited once the budget is spent. The counter grows on every call,
// admitted or not, until the window ages out.
func (l *Limiter) Admit(ctx context.Context, key string, class Class) error {
	if l == nil {
		return nil
	}
	policy, ok := l.config.Policies[class]
	if !ok || policy.Limit <= 0 || policy.Window <= 0 {
		return nil
	}

	count, err := incrWindowLua.Run(ctx, l.redis,
		[]string{l.key(class, key)},
		policy.Window.Milliseconds(),
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if count > int64(policy.Limit) {
		return ErrRateLimited
	}
	return nil
}

// Remaining reports how many calls key may still make in the current window.
func (l *Limiter) Remaining(ctx context.Context, key string, class Class) (int, error) {
	if l == nil {
		return 0, nil
	}
	policy, ok := l.config.Policies[class]
	if !ok {
		return 0, nil
	}

	count, err := l.redis.Get(ctx, l.key(class, key)).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return policy.Limit, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count >= policy.Limit {
		return 0, nil
	}
	return policy.Limit - count, nil
}

func (l *Limiter) key(class Class, key string) string {
	return l.config.Prefix + ":" + string(class) + ":" + strings.ToLower(strings.TrimSpace(key))
}
