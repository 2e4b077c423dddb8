package stores

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrVerificationNotFound    = errors.New("verification record not found")
	ErrVerificationUnavailable = errors.New("verification redis unavailable")
)

// AttemptOutcome is the result of one verify attempt against a pending record.
type AttemptOutcome int

const (
	// OutcomeAbsent covers never issued, already consumed and superseded.
	OutcomeAbsent AttemptOutcome = iota
	OutcomeMismatch
	OutcomeExpired
	OutcomeExhausted
	OutcomeVerified
)

func (o AttemptOutcome) String() string {
	switch o {
	case OutcomeMismatch:
		return "mismatch"
	case OutcomeExpired:
		return "expired"
	case OutcomeExhausted:
		return "exhausted"
	case OutcomeVerified:
		return "verified"
	default:
		return "absent"
	}
}

// VerificationRecord is one pending code. CodeHash is a digest; the
// plaintext code is never stored.
type VerificationRecord struct {
	ID        string
	UserID    string
	Purpose   string
	CodeHash  string
	Contact   string
	Verified  bool
	Attempts  int
	ExpiresAt time.Time
	CreatedAt time.Time
}

// AttemptResult reports what an attempt did. Attempts is the count after the
// attempt was recorded.
type AttemptResult struct {
	Outcome  AttemptOutcome
	Attempts int
	RecordID string
}

// issueVerificationLua replaces any record for the pair with a fresh one.
// KEYS[1] = record key
// ARGV[1..7] = id, user_id, purpose, code_hash, contact, expires_at_ms, created_at_ms
// ARGV[8] = key ttl in ms
// Returns 1 if a previous record was superseded.
var issueVerificationLua = redis.NewScript(`
local existed = redis.call('DEL', KEYS[1])
redis.call('HSET', KEYS[1],
  'id', ARGV[1],
  'user_id', ARGV[2],
  'purpose', ARGV[3],
  'code_hash', ARGV[4],
  'contact', ARGV[5],
  'verified', '0',
  'attempts', '0',
  'expires_at', ARGV[6],
  'created_at', ARGV[7])
redis.call('PEXPIRE', KEYS[1], ARGV[8])
return existed
`)

// attemptVerificationLua is the verify state machine.
// KEYS[1] = record key
// ARGV[1] = submitted code hash
// ARGV[2] = max attempts
// ARGV[3] = now in unix ms
// Returns {outcome, attempts, id} using AttemptOutcome numbering.
var attemptVerificationLua = redis.NewScript(`
local rec = redis.call('HMGET', KEYS[1], 'id', 'code_hash', 'verified', 'attempts', 'expires_at')
local id = rec[1]
if not id then
  return {0, 0, ''}
end
local attempts = tonumber(rec[4]) or 0
if rec[3] == '1' then
  return {0, attempts, id}
end

local maxAttempts = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local expiresAt = tonumber(rec[5]) or 0

if now > expiresAt then
  redis.call('DEL', KEYS[1])
  return {2, attempts, id}
end

if attempts >= maxAttempts then
  redis.call('DEL', KEYS[1])
  return {3, attempts, id}
end

if rec[2] ~= ARGV[1] then
  attempts = redis.call('HINCRBY', KEYS[1], 'attempts', 1)
  if attempts >= maxAttempts then
    redis.call('DEL', KEYS[1])
    return {3, attempts, id}
  end
  return {1, attempts, id}
end

redis.call('HSET', KEYS[1], 'verified', '1')
return {4, attempts, id}
`)

// deleteIfMatchesLua deletes the record only while it is still the one
// identified by ARGV[1].
var deleteIfMatchesLua = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'id') == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// reopenVerificationLua clears the verified mark while the record is still
// the one identified by ARGV[1]. Attempts are left as they were.
var reopenVerificationLua = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'id') ~= ARGV[1] then
  return 0
end
if redis.call('HGET', KEYS[1], 'verified') ~= '1' then
  return 0
end
redis.call('HSET', KEYS[1], 'verified', '0')
return 1
`)

// VerificationStore persists pending codes in Redis.
type VerificationStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewVerificationStore(redisClient redis.UniversalClient, prefix string) *VerificationStore {
	if prefix == "" {
		prefix = "avc"
	}
	return &VerificationStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *VerificationStore) key(userID, purpose string) string {
	return s.prefix + ":" + userID + ":" + purpose
}

// Issue stores record as the only record for its (user, purpose) pair and
// reports whether a previous record was superseded. The key outlives
// ExpiresAt by grace so late verifies observe "expired" rather than "absent".
func (s *VerificationStore) Issue(ctx context.Context, record *VerificationRecord, now time.Time, grace time.Duration) (bool, error) {
	if record == nil || record.ID == "" || record.UserID == "" || record.Purpose == "" {
		return false, errors.New("verification record is incomplete")
	}

	ttl := record.ExpiresAt.Sub(now) + grace
	if ttl <= 0 {
		return false, errors.New("verification record already expired")
	}

	existed, err := issueVerificationLua.Run(ctx, s.redis,
		[]string{s.key(record.UserID, record.Purpose)},
		record.ID,
		record.UserID,
		record.Purpose,
		record.CodeHash,
		record.Contact,
		record.ExpiresAt.UnixMilli(),
		record.CreatedAt.UnixMilli(),
		ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrVerificationUnavailable, err)
	}

	return existed == 1, nil
}

// Attempt runs one verify attempt. A mismatch increments attempts; reaching
// maxAttempts deletes the record. A match marks the record verified, after
// which further attempts see it as absent.
func (s *VerificationStore) Attempt(
	ctx context.Context,
	userID, purpose, codeHash string,
	maxAttempts int,
	now time.Time,
) (AttemptResult, error) {
	raw, err := attemptVerificationLua.Run(ctx, s.redis,
		[]string{s.key(userID, purpose)},
		codeHash,
		maxAttempts,
		now.UnixMilli(),
	).Slice()
	if err != nil {
		return AttemptResult{}, fmt.Errorf("%w: %v", ErrVerificationUnavailable, err)
	}
	if len(raw) != 3 {
		return AttemptResult{}, fmt.Errorf("%w: unexpected lua result", ErrVerificationUnavailable)
	}

	outcome, _ := raw[0].(int64)
	attempts, _ := raw[1].(int64)
	id, _ := raw[2].(string)

	return AttemptResult{
		Outcome:  AttemptOutcome(outcome),
		Attempts: int(attempts),
		RecordID: id,
	}, nil
}

// DeleteIfMatches removes the pair's record only if its id is recordID.
func (s *VerificationStore) DeleteIfMatches(ctx context.Context, userID, purpose, recordID string) (bool, error) {
	n, err := deleteIfMatchesLua.Run(ctx, s.redis,
		[]string{s.key(userID, purpose)},
		recordID,
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrVerificationUnavailable, err)
	}
	return n == 1, nil
}

// Reopen turns a verified record back into a pending one so its code can
// be submitted again. It reports false when the record was superseded,
// deleted or never verified.
func (s *VerificationStore) Reopen(ctx context.Context, userID, purpose, recordID string) (bool, error) {
	n, err := reopenVerificationLua.Run(ctx, s.redis,
		[]string{s.key(userID, purpose)},
		recordID,
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrVerificationUnavailable, err)
	}
	return n == 1, nil
}

// Find returns the pending record for the pair. Expired records are deleted
// and reported as not found, as are records already verified.
func (s *VerificationStore) Find(ctx context.Context, userID, purpose string, now time.Time) (*VerificationRecord, error) {
	fields, err := s.redis.HGetAll(ctx, s.key(userID, purpose)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVerificationUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrVerificationNotFound
	}

	record, err := decodeVerificationRecord(fields)
	if err != nil {
		_, _ = s.DeleteIfMatches(ctx, userID, purpose, fields["id"])
		return nil, ErrVerificationNotFound
	}
	if now.After(record.ExpiresAt) {
		if _, err := s.DeleteIfMatches(ctx, userID, purpose, record.ID); err != nil {
			return nil, err
		}
		return nil, ErrVerificationNotFound
	}
	if record.Verified {
		return nil, ErrVerificationNotFound
	}

	return record, nil
}

// ListPending returns the pending records of userID across purposes, in
// purpose order.
func (s *VerificationStore) ListPending(ctx context.Context, userID string, purposes []string, now time.Time) ([]VerificationRecord, error) {
	out := make([]VerificationRecord, 0, len(purposes))
	for _, purpose := range purposes {
		record, err := s.Find(ctx, userID, purpose, now)
		if err != nil {
			if errors.Is(err, ErrVerificationNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, *record)
	}
	return out, nil
}

// ClearPending deletes every record of userID for the given purposes and
// returns how many were removed.
func (s *VerificationStore) ClearPending(ctx context.Context, userID string, purposes []string) (int, error) {
	if len(purposes) == 0 {
		return 0, nil
	}

	keys := make([]string, 0, len(purposes))
	for _, purpose := range purposes {
		keys = append(keys, s.key(userID, purpose))
	}

	n, err := s.redis.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrVerificationUnavailable, err)
	}
	return int(n), nil
}

func decodeVerificationRecord(fields map[string]string) (*VerificationRecord, error) {
	attempts, err := strconv.Atoi(fields["attempts"])
	if err != nil {
		return nil, fmt.Errorf("attempts: %w", err)
	}
	expiresAt, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("expires_at: %w", err)
	}
	createdAt, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("created_at: %w", err)
	}
	if fields["id"] == "" {
		return nil, errors.New("missing id")
	}

	return &VerificationRecord{
		ID:        fields["id"],
		UserID:    fields["user_id"],
		Purpose:   fields["purpose"],
		CodeHash:  fields["code_hash"],
		Contact:   fields["contact"],
		Verified:  fields["verified"] == "1",
		Attempts:  attempts,
		ExpiresAt: time.UnixMilli(expiresAt),
		CreatedAt: time.UnixMilli(createdAt),
	}, nil
}
