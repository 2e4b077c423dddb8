package sqlstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	goBankAuth "github.com/MrEthical07/goBankAuth"
	"github.com/MrEthical07/goBankAuth/internal/limiters"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var testNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func setupTestStore(t testing.TB) *Store {
	t.Helper()

	s, err := Open(context.Background(), Config{Driver: DriverSQLite, DSN: ":memory:"})
	require.NoError(t, err)
	s.SetClock(func() time.Time { return testNow })
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testUser(email, phone string) *goBankAuth.User {
	return &goBankAuth.User{
		ID:           uuid.NewString(),
		FullName:     "Rui Costa",
		Email:        email,
		PhoneNumber:  phone,
		PasswordHash: "$argon2id$v=19$m=8192,t=1,p=1$c2FsdA$aGFzaA",
		IsActive:     true,
		Role:         goBankAuth.RoleUser,
		CreatedAt:    testNow,
		UpdatedAt:    testNow,
	}
}

func TestCreateAndFind(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	u := testUser("Rui@Bank.test", "+351 912 000 111")
	require.NoError(t, s.CreateUser(ctx, u))

	tests := []struct {
		name string
		find func() (*goBankAuth.User, error)
	}{
		{"by id", func() (*goBankAuth.User, error) { return s.FindUserByID(ctx, u.ID) }},
		{"by email", func() (*goBankAuth.User, error) { return s.FindUserByEmail(ctx, "rui@bank.test") }},
		{"by email mixed case", func() (*goBankAuth.User, error) { return s.FindUserByEmail(ctx, " RUI@bank.TEST ") }},
		{"by phone", func() (*goBankAuth.User, error) { return s.FindUserByPhone(ctx, "+351912000111") }},
		{"by phone formatted", func() (*goBankAuth.User, error) { return s.FindUserByPhone(ctx, "+351 (912) 000-111") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.find()
			require.NoError(t, err)
			assert.Equal(t, u.ID, got.ID)
			assert.Equal(t, "rui@bank.test", got.Email)
			assert.Equal(t, "+351912000111", got.PhoneNumber)
			assert.Equal(t, u.PasswordHash, got.PasswordHash)
			assert.True(t, got.IsActive)
			assert.False(t, got.IsSuspended)
			assert.False(t, got.EmailVerified)
			assert.Nil(t, got.LockedUntil)
			assert.Equal(t, goBankAuth.RoleUser, got.Role)
			assert.True(t, got.CreatedAt.Equal(testNow))
		})
	}
}

func TestFindMissing(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.FindUserByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, goBankAuth.ErrUserNotFound)

	_, err = s.FindUserByEmail(ctx, "nobody@bank.test")
	assert.ErrorIs(t, err, goBankAuth.ErrUserNotFound)

	_, err = s.FindUserByEmail(ctx, "not an address")
	assert.ErrorIs(t, err, goBankAuth.ErrUserNotFound)

	_, err = s.FindUserByPhone(ctx, "+15550000000")
	assert.ErrorIs(t, err, goBankAuth.ErrUserNotFound)
}

func TestCreateDuplicateContact(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, testUser("rui@bank.test", "+351912000111")))

	tests := []struct {
		name  string
		email string
		phone string
	}{
		{"same email", "RUI@bank.test", "+351912000222"},
		{"same phone", "other@bank.test", "+351 912 000 111"},
		{"both", "rui@bank.test", "+351912000111"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.CreateUser(ctx, testUser(tt.email, tt.phone))
			assert.ErrorIs(t, err, goBankAuth.ErrDuplicateContact)
		})
	}
}

func TestUpdatesOnMissingUser(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	id := uuid.NewString()

	assert.ErrorIs(t, s.UpdatePasswordHash(ctx, id, "x"), goBankAuth.ErrUserNotFound)
	assert.ErrorIs(t, s.MarkContactVerified(ctx, id, goBankAuth.VerificationEmail), goBankAuth.ErrUserNotFound)
	assert.ErrorIs(t, s.RecordLoginSuccess(ctx, id), goBankAuth.ErrUserNotFound)
	assert.ErrorIs(t, s.DeleteUser(ctx, id), goBankAuth.ErrUserNotFound)

	_, err := s.RecordLoginFailure(ctx, id, testNow, 5, 2*time.Hour)
	assert.ErrorIs(t, err, goBankAuth.ErrUserNotFound)
}

func TestMarkContactVerified(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	u := testUser("rui@bank.test", "+351912000111")
	require.NoError(t, s.CreateUser(ctx, u))

	require.NoError(t, s.MarkContactVerified(ctx, u.ID, goBankAuth.VerificationPhone))
	got, err := s.FindUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, got.PhoneVerified)
	assert.False(t, got.EmailVerified)

	require.NoError(t, s.MarkContactVerified(ctx, u.ID, goBankAuth.VerificationEmail))
	got, err = s.FindUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, got.EmailVerified)

	assert.Error(t, s.MarkContactVerified(ctx, u.ID, goBankAuth.VerificationPasswordReset))
}

func TestPasswordStatusRoleAndDelete(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	u := testUser("rui@bank.test", "+351912000111")
	require.NoError(t, s.CreateUser(ctx, u))

	require.NoError(t, s.UpdatePasswordHash(ctx, u.ID, "$2a$04$new"))
	require.NoError(t, s.SetStatus(ctx, u.ID, true, true))
	require.NoError(t, s.SetRole(ctx, u.ID, goBankAuth.RoleAdmin))
	assert.Error(t, s.SetRole(ctx, u.ID, "root"))

	got, err := s.FindUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "$2a$04$new", got.PasswordHash)
	assert.True(t, got.IsSuspended)
	assert.Equal(t, goBankAuth.RoleAdmin, got.Role)

	require.NoError(t, s.DeleteUser(ctx, u.ID))
	_, err = s.FindUserByID(ctx, u.ID)
	assert.ErrorIs(t, err, goBankAuth.ErrUserNotFound)
}

func TestRecordLoginFailureLocksAtThreshold(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	u := testUser("rui@bank.test", "+351912000111")
	require.NoError(t, s.CreateUser(ctx, u))

	for i := 1; i <= 4; i++ {
		got, err := s.RecordLoginFailure(ctx, u.ID, testNow, 5, 2*time.Hour)
		require.NoError(t, err)
		assert.Equal(t, i, got.FailedLoginCount)
		assert.Nil(t, got.LockedUntil)
	}

	got, err := s.RecordLoginFailure(ctx, u.ID, testNow, 5, 2*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 5, got.FailedLoginCount)
	require.NotNil(t, got.LockedUntil)
	assert.True(t, got.LockedUntil.Equal(testNow.Add(2*time.Hour)))

	// Locked: count grows, lock stays put.
	got, err = s.RecordLoginFailure(ctx, u.ID, testNow.Add(time.Hour), 5, 2*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 6, got.FailedLoginCount)
	assert.True(t, got.LockedUntil.Equal(testNow.Add(2*time.Hour)))

	// Elapsed: restart at one.
	got, err = s.RecordLoginFailure(ctx, u.ID, testNow.Add(3*time.Hour), 5, 2*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, got.FailedLoginCount)
	assert.Nil(t, got.LockedUntil)

	require.NoError(t, s.RecordLoginSuccess(ctx, u.ID))
	got, err = s.FindUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Zero(t, got.FailedLoginCount)
	assert.Nil(t, got.LockedUntil)
}

// The single-statement update must agree with LockoutPolicy for any
// sequence of failures, successes and clock steps.
func TestRecordLoginFailureMatchesPolicy(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	const threshold = 3
	lockFor := 30 * time.Minute
	policy, err := limiters.NewLockoutPolicy(limiters.LockoutConfig{Threshold: threshold, Duration: lockFor})
	require.NoError(t, err)

	n := 0
	rapid.Check(t, func(rt *rapid.T) {
		n++
		u := testUser(fmt.Sprintf("p%d@bank.test", n), fmt.Sprintf("+1555%07d", n))
		require.NoError(rt, s.CreateUser(ctx, u))

		var model limiters.LockState
		now := testNow
		steps := rapid.SliceOfN(rapid.IntRange(0, 2), 1, 20).Draw(rt, "steps")
		for _, step := range steps {
			switch step {
			case 0:
				got, err := s.RecordLoginFailure(ctx, u.ID, now, threshold, lockFor)
				require.NoError(rt, err)
				model = policy.RecordFailure(model, now)
				require.Equal(rt, model.FailedLoginCount, got.FailedLoginCount)
				if model.LockedUntil == nil {
					require.Nil(rt, got.LockedUntil)
				} else {
					require.NotNil(rt, got.LockedUntil)
					require.True(rt, model.LockedUntil.Equal(*got.LockedUntil))
				}
			case 1:
				require.NoError(rt, s.RecordLoginSuccess(ctx, u.ID))
				model = policy.RecordSuccess(model)
			case 2:
				now = now.Add(time.Duration(rapid.IntRange(1, 45).Draw(rt, "minutes")) * time.Minute)
			}
		}
	})
}
