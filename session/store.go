package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps token-set backend failures.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrRefreshNotFound is returned by Rotate when the presented digest is not
// an unexpired member of the set.
var ErrRefreshNotFound = errors.New("refresh token not found")

// touchScript prunes expired members and enforces the per-user cap by
// evicting the soonest-expiring members. Every token shares one TTL, so the
// member just written is the longest-lived and its TTL re-arms the key.
const touchScript = `
local function touch(key, now, max_active, ttl)
  redis.call("ZREMRANGEBYSCORE", key, "-inf", now)
  if max_active > 0 then
    local n = redis.call("ZCARD", key)
    if n > max_active then
      redis.call("ZREMRANGEBYRANK", key, 0, n - max_active - 1)
    end
  end
  if ttl > 0 and redis.call("EXISTS", key) == 1 then
    redis.call("PEXPIRE", key, ttl)
  end
end
`

// KEYS[1] = set key
// ARGV[1] = digest, ARGV[2] = expires_at ms, ARGV[3] = now ms,
// ARGV[4] = max active, ARGV[5] = ttl ms
var addRefreshLua = redis.NewScript(touchScript + `
redis.call("ZADD", KEYS[1], ARGV[2], ARGV[1])
touch(KEYS[1], tonumber(ARGV[3]), tonumber(ARGV[4]), tonumber(ARGV[5]))
return 1
`)

// KEYS[1] = set key
// ARGV[1] = old digest, ARGV[2] = new digest, ARGV[3] = new expires_at ms,
// ARGV[4] = now ms, ARGV[5] = max active, ARGV[6] = ttl ms
// Returns 1 on rotation, 0 when the old digest is absent or expired.
var rotateRefreshLua = redis.NewScript(touchScript + `
local score = redis.call("ZSCORE", KEYS[1], ARGV[1])
if not score then
  return 0
end
redis.call("ZREM", KEYS[1], ARGV[1])
if tonumber(score) <= tonumber(ARGV[4]) then
  touch(KEYS[1], tonumber(ARGV[4]), 0, 0)
  return 0
end
redis.call("ZADD", KEYS[1], ARGV[3], ARGV[2])
touch(KEYS[1], tonumber(ARGV[4]), tonumber(ARGV[5]), tonumber(ARGV[6]))
return 1
`)

// Store keeps each user's active refresh-token digests.
type Store struct {
	redis     redis.UniversalClient
	prefix    string
	maxActive int
}

// NewStore returns a Store. maxActive caps live tokens per user; 0 means
// no cap.
func NewStore(redisClient redis.UniversalClient, prefix string, maxActive int) *Store {
	if prefix == "" {
		prefix = "art"
	}
	if maxActive < 0 {
		maxActive = 0
	}
	return &Store{
		redis:     redisClient,
		prefix:    prefix,
		maxActive: maxActive,
	}
}

func (s *Store) key(userID string) string {
	return s.prefix + ":" + userID
}

// Add inserts digest into userID's set until expiresAt.
func (s *Store) Add(ctx context.Context, userID, digest string, expiresAt, now time.Time) error {
	err := addRefreshLua.Run(ctx, s.redis,
		[]string{s.key(userID)},
		digest,
		expiresAt.UnixMilli(),
		now.UnixMilli(),
		s.maxActive,
		ttlMillis(expiresAt, now),
	).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Contains reports whether digest is an unexpired member of userID's set.
func (s *Store) Contains(ctx context.Context, userID, digest string, now time.Time) (bool, error) {
	score, err := s.redis.ZScore(ctx, s.key(userID), digest).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int64(score) > now.UnixMilli(), nil
}

// Remove deletes digest from userID's set. Removing an absent digest is
// not an error; the result reports whether anything was removed.
func (s *Store) Remove(ctx context.Context, userID, digest string) (bool, error) {
	n, err := s.redis.ZRem(ctx, s.key(userID), digest).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n > 0, nil
}

// RemoveAll empties userID's set and returns how many digests it held.
func (s *Store) RemoveAll(ctx context.Context, userID string) (int, error) {
	key := s.key(userID)

	var card *redis.IntCmd
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		card = pipe.ZCard(ctx, key)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(card.Val()), nil
}

// Rotate atomically swaps oldDigest for newDigest. A concurrent Rotate or
// Remove of the same digest makes exactly one caller win.
func (s *Store) Rotate(ctx context.Context, userID, oldDigest, newDigest string, expiresAt, now time.Time) error {
	n, err := rotateRefreshLua.Run(ctx, s.redis,
		[]string{s.key(userID)},
		oldDigest,
		newDigest,
		expiresAt.UnixMilli(),
		now.UnixMilli(),
		s.maxActive,
		ttlMillis(expiresAt, now),
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if n != 1 {
		return ErrRefreshNotFound
	}
	return nil
}

// Count returns the number of unexpired digests in userID's set.
func (s *Store) Count(ctx context.Context, userID string, now time.Time) (int, error) {
	n, err := s.redis.ZCount(ctx, s.key(userID), fmt.Sprintf("(%d", now.UnixMilli()), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(n), nil
}

func ttlMillis(expiresAt, now time.Time) int64 {
	ms := expiresAt.Sub(now).Milliseconds()
	if ms < 1 {
		return 1
	}
	return ms
}
