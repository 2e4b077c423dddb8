package limiters

import (
	"errors"
	"time"
)

// LockoutConfig holds the lockout threshold and lock length.
type LockoutConfig struct {
	Threshold int
	Duration  time.Duration
}

// ErrInvalidLockoutConfig is returned by NewLockoutPolicy for non-positive values.
var ErrInvalidLockoutConfig = errors.New("invalid lockout configuration")

// LockState is the slice of a user record the lockout machine reads and writes.
type LockState struct {
	FailedLoginCount int
	LockedUntil      *time.Time
}

// LockoutPolicy applies "Threshold consecutive failures lock the account for
// Duration" to a LockState.
//
// The engine reads IsLocked, Threshold and Duration. It never applies the
// transitions itself: UserStore.RecordLoginFailure performs them as one
// atomic update inside the store. RecordFailure and RecordSuccess are the
// reference model those updates must agree with. The in-memory store of the
// engine tests applies them directly, and the sqlstore property test checks
// its single UPDATE statement against them step by step.
type LockoutPolicy struct {
	config LockoutConfig
}

// NewLockoutPolicy validates cfg and returns a policy.
func NewLockoutPolicy(cfg LockoutConfig) (*LockoutPolicy, error) {
	if cfg.Threshold <= 0 || cfg.Duration <= 0 {
		return nil, ErrInvalidLockoutConfig
	}
	return &LockoutPolicy{config: cfg}, nil
}

func (p *LockoutPolicy) Threshold() int { return p.config.Threshold }

func (p *LockoutPolicy) Duration() time.Duration { return p.config.Duration }

// IsLocked reports whether state blocks credential checks at now.
func (p *LockoutPolicy) IsLocked(state LockState, now time.Time) bool {
	return state.LockedUntil != nil && state.LockedUntil.After(now)
}

// RecordFailure returns the state after one more failed attempt.
//
// An elapsed lock resets the count to 1 and clears the lock. An active lock
// is never extended. Otherwise the count grows and the lock is set when it
// reaches the threshold.
func (p *LockoutPolicy) RecordFailure(state LockState, now time.Time) LockState {
	if state.LockedUntil != nil && !state.LockedUntil.After(now) {
		return LockState{FailedLoginCount: 1}
	}

	next := LockState{
		FailedLoginCount: state.FailedLoginCount + 1,
		LockedUntil:      state.LockedUntil,
	}
	if next.LockedUntil == nil && next.FailedLoginCount >= p.config.Threshold {
		until := now.Add(p.config.Duration)
		next.LockedUntil = &until
	}
	return next
}

// RecordSuccess returns the cleared state.
func (p *LockoutPolicy) RecordSuccess(LockState) LockState {
	return LockState{}
}
