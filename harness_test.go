package goBankAuth

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goBankAuth/delivery"
	"github.com/MrEthical07/goBankAuth/internal/limiters"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	testPassword = "Vault#Key2024"
	testEmail    = "ana@bank.test"
	testPhone    = "+15550100001"
)

var testSigningKey = []byte("0123456789abcdef0123456789abcdef")

// memUserStore is an in-memory UserStore. Every method holds the mutex,
// which gives RecordLoginFailure the atomicity the contract asks for.
type memUserStore struct {
	mu    sync.Mutex
	users map[string]*User
	n     int

	failWith   error
	failUpdate error
}

func newMemUserStore() *memUserStore {
	return &memUserStore{users: make(map[string]*User)}
}

func (m *memUserStore) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.n
}

func (m *memUserStore) setFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

// failUpdates makes UpdatePasswordHash fail while lookups keep working.
func (m *memUserStore) failUpdates(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failUpdate = err
}

func (m *memUserStore) enter() error {
	m.mu.Lock()
	m.n++
	return m.failWith
}

func cloneUser(u *User) *User {
	out := *u
	if u.LockedUntil != nil {
		t := *u.LockedUntil
		out.LockedUntil = &t
	}
	return &out
}

func (m *memUserStore) get(id string) *User {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil
	}
	return cloneUser(u)
}

func (m *memUserStore) put(u *User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = cloneUser(u)
}

func (m *memUserStore) FindUserByID(_ context.Context, id string) (*User, error) {
	err := m.enter()
	defer m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if u, ok := m.users[id]; ok {
		return cloneUser(u), nil
	}
	return nil, ErrUserNotFound
}

func (m *memUserStore) FindUserByEmail(_ context.Context, email string) (*User, error) {
	err := m.enter()
	defer m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	for _, u := range m.users {
		if u.Email == email {
			return cloneUser(u), nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *memUserStore) FindUserByPhone(_ context.Context, phone string) (*User, error) {
	err := m.enter()
	defer m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	for _, u := range m.users {
		if u.PhoneNumber == phone {
			return cloneUser(u), nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *memUserStore) CreateUser(_ context.Context, user *User) error {
	err := m.enter()
	defer m.mu.Unlock()
	if err != nil {
		return err
	}
	for _, u := range m.users {
		if u.Email == user.Email || u.PhoneNumber == user.PhoneNumber {
			return ErrDuplicateContact
		}
	}
	m.users[user.ID] = cloneUser(user)
	return nil
}

func (m *memUserStore) UpdatePasswordHash(_ context.Context, userID, hash string) error {
	err := m.enter()
	defer m.mu.Unlock()
	if err != nil {
		return err
	}
	if m.failUpdate != nil {
		return m.failUpdate
	}
	u, ok := m.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (m *memUserStore) MarkContactVerified(_ context.Context, userID string, t VerificationType) error {
	err := m.enter()
	defer m.mu.Unlock()
	if err != nil {
		return err
	}
	u, ok := m.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	switch t {
	case VerificationEmail:
		u.EmailVerified = true
	case VerificationPhone:
		u.PhoneVerified = true
	}
	return nil
}

func (m *memUserStore) RecordLoginFailure(_ context.Context, userID string, now time.Time, threshold int, lockFor time.Duration) (*User, error) {
	err := m.enter()
	defer m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	u, ok := m.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	policy, err := limiters.NewLockoutPolicy(limiters.LockoutConfig{Threshold: threshold, Duration: lockFor})
	if err != nil {
		return nil, err
	}
	next := policy.RecordFailure(lockState(u), now)
	u.FailedLoginCount = next.FailedLoginCount
	u.LockedUntil = next.LockedUntil
	return cloneUser(u), nil
}

func (m *memUserStore) RecordLoginSuccess(_ context.Context, userID string) error {
	err := m.enter()
	defer m.mu.Unlock()
	if err != nil {
		return err
	}
	u, ok := m.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.FailedLoginCount = 0
	u.LockedUntil = nil
	return nil
}

func (m *memUserStore) DeleteUser(_ context.Context, userID string) error {
	err := m.enter()
	defer m.mu.Unlock()
	if err != nil {
		return err
	}
	if _, ok := m.users[userID]; !ok {
		return ErrUserNotFound
	}
	delete(m.users, userID)
	return nil
}

// captureSender records every message. With err set it fails instead;
// with block set it waits for ctx to end.
type captureSender struct {
	mu    sync.Mutex
	sent  []delivery.Message
	err   error
	block bool
}

func (s *captureSender) SendCode(ctx context.Context, msg delivery.Message) error {
	if s.block {
		<-ctx.Done()
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *captureSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

// lastCode returns the most recent code sent to contact for purpose.
func (s *captureSender) lastCode(t testing.TB, contact string, purpose delivery.Purpose) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.sent) - 1; i >= 0; i-- {
		if s.sent[i].Contact == contact && s.sent[i].Purpose == purpose {
			return s.sent[i].Code
		}
	}
	t.Fatalf("no %s code sent to %s", purpose, contact)
	return ""
}

// testClock drives the engine and miniredis together. It only moves forward.
type testClock struct {
	mu  sync.Mutex
	now time.Time
	mr  *miniredis.Miniredis
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	c.mr.FastForward(d)
}

type harness struct {
	mr     *miniredis.Miniredis
	rdb    *redis.Client
	engine *Engine
	store  *memUserStore
	sender *captureSender
	clock  *testClock
	user   *User
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = testSigningKey
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.RateLimit.Enabled = false
	return cfg
}

func newHarness(t testing.TB, tweaks ...func(*Config)) *harness {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := testConfig()
	for _, tweak := range tweaks {
		tweak(&cfg)
	}

	h := &harness{
		mr:     mr,
		rdb:    rdb,
		store:  newMemUserStore(),
		sender: &captureSender{},
		clock:  &testClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), mr: mr},
	}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(h.store).
		WithSender(h.sender).
		WithClock(h.clock.Now).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	h.engine = engine

	t.Cleanup(func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	})

	h.user = h.seedUser(t, testEmail, testPhone, testPassword)
	return h
}

func (h *harness) seedUser(t testing.TB, email, phone, pw string) *User {
	t.Helper()

	hash, err := h.engine.passwords.Hash(pw)
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	u := &User{
		ID:           uuid.NewString(),
		FullName:     "Ana " + strings.Split(email, "@")[0],
		Email:        email,
		PhoneNumber:  phone,
		PasswordHash: hash,
		IsActive:     true,
		Role:         RoleUser,
		CreatedAt:    h.clock.Now(),
		UpdatedAt:    h.clock.Now(),
	}
	h.store.put(u)
	return u
}

func (h *harness) principal(u *User) Principal {
	return Principal{UserID: u.ID, Role: u.Role}
}

// wrongCode returns a code of the same length that differs from code in
// its last digit.
func wrongCode(code string) string {
	last := code[len(code)-1]
	next := '0' + (last-'0'+1)%10
	return code[:len(code)-1] + string(rune(next))
}
