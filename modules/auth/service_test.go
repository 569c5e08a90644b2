package auth

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ralvo/ralvo/pkg/totp"
	"github.com/ralvo/ralvo/pkg/validator"
)

const testPassword = "correct horse battery staple"

func testUser(t *testing.T, opts ...func(*User)) *User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)

	user := &User{
		ID:           uuid.New(),
		Email:        "user@example.com",
		PasswordHash: hash,
		Role:         RoleUser,
		CreatedAt:    time.Now(),
	}
	for _, opt := range opts {
		opt(user)
	}
	return user
}

func withSecret(t *testing.T) func(*User) {
	t.Helper()
	secret, err := totp.GenerateSecretKey()
	require.NoError(t, err)
	return func(u *User) { u.TwoFactorSecret = secret }
}

func withEnabled() func(*User) {
	return func(u *User) { u.TwoFactorEnabled = true }
}

func newTestService(store Store) *Service {
	return NewService(store, "Ralvo", WithBcryptCost(bcrypt.MinCost))
}

func TestService_StartFlow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("rejects malformed email without touching the store", func(t *testing.T) {
		t.Parallel()

		store := &MockStore{}
		svc := newTestService(store)

		_, err := svc.StartFlow(ctx, "not-an-email", testPassword)
		require.Error(t, err)
		assert.True(t, validator.IsValidationError(err))
		store.AssertExpectations(t)
	})

	t.Run("unknown email starts signup confirmation", func(t *testing.T) {
		t.Parallel()

		store := &MockStore{}
		store.On("GetUserByEmail", ctx, "new@example.com").Return(nil, ErrUserNotFound)
		svc := newTestService(store)

		result, err := svc.StartFlow(ctx, "new@example.com", testPassword)
		require.NoError(t, err)
		assert.Equal(t, StatusNewUserConfirm, result.Status)
		assert.Equal(t, "new@example.com", result.Email)
		assert.Empty(t, result.OTPAuthURL)
		store.AssertExpectations(t)
	})

	t.Run("email is trimmed but case preserved", func(t *testing.T) {
		t.Parallel()

		store := &MockStore{}
		store.On("GetUserByEmail", ctx, "New@Example.com").Return(nil, ErrUserNotFound)
		svc := newTestService(store)

		result, err := svc.StartFlow(ctx, "  New@Example.com  ", testPassword)
		require.NoError(t, err)
		assert.Equal(t, "New@Example.com", result.Email)
		store.AssertExpectations(t)
	})

	t.Run("wrong password is denied before any 2FA branching", func(t *testing.T) {
		t.Parallel()

		user := testUser(t, withSecret(t), withEnabled())
		store := &MockStore{}
		store.On("GetUserByEmail", ctx, user.Email).Return(user, nil)
		svc := newTestService(store)

		_, err := svc.StartFlow(ctx, user.Email, "wrong")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
		store.AssertExpectations(t)
	})

	t.Run("account without a password keeps its distinct error", func(t *testing.T) {
		t.Parallel()

		user := testUser(t, func(u *User) { u.PasswordHash = nil })
		store := &MockStore{}
		store.On("GetUserByEmail", ctx, user.Email).Return(user, nil)
		svc := newTestService(store)

		_, err := svc.StartFlow(ctx, user.Email, testPassword)
		assert.ErrorIs(t, err, ErrNoPasswordConfigured)
	})

	t.Run("enabled account is asked for a code", func(t *testing.T) {
		t.Parallel()

		user := testUser(t, withSecret(t), withEnabled())
		store := &MockStore{}
		store.On("GetUserByEmail", ctx, user.Email).Return(user, nil)
		svc := newTestService(store)

		result, err := svc.StartFlow(ctx, user.Email, testPassword)
		require.NoError(t, err)
		assert.Equal(t, StatusTwoFactorRequired, result.Status)
		assert.Empty(t, result.OTPAuthURL, "enabled accounts never receive provisioning data")
		store.AssertExpectations(t)
	})

	t.Run("account with a secret but 2FA off reuses the stored secret", func(t *testing.T) {
		t.Parallel()

		user := testUser(t, withSecret(t))
		store := &MockStore{}
		store.On("GetUserByEmail", ctx, user.Email).Return(user, nil)
		svc := newTestService(store)

		result, err := svc.StartFlow(ctx, user.Email, testPassword)
		require.NoError(t, err)
		assert.Equal(t, StatusPromptSetup, result.Status)
		assert.Contains(t, result.OTPAuthURL, user.TwoFactorSecret)
		store.AssertNotCalled(t, "SetTwoFactorSecret", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("account without a secret gets one provisioned", func(t *testing.T) {
		t.Parallel()

		user := testUser(t)
		stored, err := totp.GenerateSecretKey()
		require.NoError(t, err)

		store := &MockStore{}
		store.On("GetUserByEmail", ctx, user.Email).Return(user, nil)
		// The store decides the winner under concurrent provisioning, so
		// the rendered URI must reflect what it returns, not the fresh draw.
		store.On("SetTwoFactorSecret", ctx, user.ID, mock.AnythingOfType("string")).Return(stored, nil)
		svc := newTestService(store)

		result, err := svc.StartFlow(ctx, user.Email, testPassword)
		require.NoError(t, err)
		assert.Equal(t, StatusPromptSetup, result.Status)
		assert.True(t, strings.HasPrefix(result.OTPAuthURL, "otpauth://totp/"))
		assert.Contains(t, result.OTPAuthURL, stored)
		store.AssertExpectations(t)
	})
}

func TestService_ConfirmSignup(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("rejects mismatched confirmation", func(t *testing.T) {
		t.Parallel()

		store := &MockStore{}
		svc := newTestService(store)

		_, err := svc.ConfirmSignup(ctx, "new@example.com", testPassword, "different")
		require.Error(t, err)
		assert.True(t, validator.IsValidationError(err))
		assert.Contains(t, validator.Extract(err).Fields(), "confirmPassword")
		store.AssertExpectations(t)
	})

	t.Run("rejects existing email", func(t *testing.T) {
		t.Parallel()

		user := testUser(t)
		store := &MockStore{}
		store.On("GetUserByEmail", ctx, user.Email).Return(user, nil)
		svc := newTestService(store)

		_, err := svc.ConfirmSignup(ctx, user.Email, testPassword, testPassword)
		assert.ErrorIs(t, err, ErrEmailAlreadyExists)
	})

	t.Run("creates account with secret and 2FA disabled", func(t *testing.T) {
		t.Parallel()

		store := NewMemoryStore()
		svc := newTestService(store)

		result, err := svc.ConfirmSignup(ctx, "new@example.com", testPassword, testPassword)
		require.NoError(t, err)
		assert.Equal(t, StatusSignupComplete, result.Status)
		assert.True(t, strings.HasPrefix(result.OTPAuthURL, "otpauth://totp/"))

		created, err := store.GetUserByEmail(ctx, "new@example.com")
		require.NoError(t, err)
		assert.False(t, created.TwoFactorEnabled)
		assert.NotEmpty(t, created.TwoFactorSecret)
		assert.Equal(t, RoleUser, created.Role)
		assert.Contains(t, result.OTPAuthURL, created.TwoFactorSecret)
		assert.NoError(t, bcrypt.CompareHashAndPassword(created.PasswordHash, []byte(testPassword)))
	})

	t.Run("surfaces a lost create race as email conflict", func(t *testing.T) {
		t.Parallel()

		store := &MockStore{}
		store.On("GetUserByEmail", ctx, "racer@example.com").Return(nil, ErrUserNotFound)
		store.On("CreateUser", ctx, mock.AnythingOfType("*auth.User")).Return(ErrEmailAlreadyExists)
		svc := newTestService(store)

		_, err := svc.ConfirmSignup(ctx, "racer@example.com", testPassword, testPassword)
		assert.ErrorIs(t, err, ErrEmailAlreadyExists)
		store.AssertExpectations(t)
	})
}

func TestService_SetupDetails(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("unknown account", func(t *testing.T) {
		t.Parallel()

		store := NewMemoryStore()
		svc := newTestService(store)

		_, err := svc.SetupDetails(ctx, "ghost@example.com")
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("repeated calls return the same secret", func(t *testing.T) {
		t.Parallel()

		store := NewMemoryStore()
		require.NoError(t, store.CreateUser(ctx, testUser(t)))
		svc := newTestService(store)

		first, err := svc.SetupDetails(ctx, "user@example.com")
		require.NoError(t, err)
		second, err := svc.SetupDetails(ctx, "user@example.com")
		require.NoError(t, err)
		assert.Equal(t, first.OTPAuthURL, second.OTPAuthURL)
	})

	t.Run("concurrent provisioning converges on one secret", func(t *testing.T) {
		t.Parallel()

		store := NewMemoryStore()
		require.NoError(t, store.CreateUser(ctx, testUser(t)))
		svc := newTestService(store)

		const workers = 8
		uris := make([]string, workers)
		var wg sync.WaitGroup
		wg.Add(workers)
		for n := range workers {
			go func() {
				defer wg.Done()
				details, err := svc.SetupDetails(ctx, "user@example.com")
				if err == nil {
					uris[n] = details.OTPAuthURL
				}
			}()
		}
		wg.Wait()

		user, err := store.GetUserByEmail(ctx, "user@example.com")
		require.NoError(t, err)
		require.NotEmpty(t, user.TwoFactorSecret)
		for n := range workers {
			require.NotEmpty(t, uris[n])
			assert.Contains(t, uris[n], user.TwoFactorSecret)
		}
	})
}

func TestService_VerifyAndEnable(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("malformed code is rejected before any lookup", func(t *testing.T) {
		t.Parallel()

		store := &MockStore{}
		svc := newTestService(store)

		for _, code := range []string{"", "12345", "1234567", "12345a", "abcdef"} {
			_, err := svc.VerifyAndEnable(ctx, "user@example.com", code)
			require.Error(t, err, "code %q", code)
			assert.True(t, validator.IsValidationError(err), "code %q", code)
		}
		store.AssertExpectations(t)
	})

	t.Run("no provisioned secret", func(t *testing.T) {
		t.Parallel()

		user := testUser(t)
		store := &MockStore{}
		store.On("GetUserByEmail", ctx, user.Email).Return(user, nil)
		svc := newTestService(store)

		_, err := svc.VerifyAndEnable(ctx, user.Email, "123456")
		assert.ErrorIs(t, err, ErrSecretNotProvisioned)
	})

	t.Run("already enabled", func(t *testing.T) {
		t.Parallel()

		user := testUser(t, withSecret(t), withEnabled())
		store := &MockStore{}
		store.On("GetUserByEmail", ctx, user.Email).Return(user, nil)
		svc := newTestService(store)

		_, err := svc.VerifyAndEnable(ctx, user.Email, "123456")
		assert.ErrorIs(t, err, ErrTwoFactorAlreadyEnabled)
	})

	t.Run("wrong code mutates nothing", func(t *testing.T) {
		t.Parallel()

		user := testUser(t, withSecret(t))
		store := &MockStore{}
		store.On("GetUserByEmail", ctx, user.Email).Return(user, nil)
		svc := newTestService(store)

		_, err := svc.VerifyAndEnable(ctx, user.Email, "000000")
		assert.ErrorIs(t, err, ErrInvalidCode)
		store.AssertNotCalled(t, "EnableTwoFactor", mock.Anything, mock.Anything)
	})

	t.Run("valid code enables durably", func(t *testing.T) {
		t.Parallel()

		store := NewMemoryStore()
		user := testUser(t, withSecret(t))
		require.NoError(t, store.CreateUser(ctx, user))
		svc := newTestService(store)

		code, err := totp.GenerateCode(user.TwoFactorSecret)
		require.NoError(t, err)

		result, err := svc.VerifyAndEnable(ctx, user.Email, code)
		require.NoError(t, err)
		assert.Equal(t, StatusSetupComplete, result.Status)

		stored, err := store.GetUserByEmail(ctx, user.Email)
		require.NoError(t, err)
		assert.True(t, stored.TwoFactorEnabled)
	})
}

func TestService_SignIn(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("unknown email and wrong password are indistinguishable", func(t *testing.T) {
		t.Parallel()

		user := testUser(t)
		store := &MockStore{}
		store.On("GetUserByEmail", ctx, "ghost@example.com").Return(nil, ErrUserNotFound)
		store.On("GetUserByEmail", ctx, user.Email).Return(user, nil)
		svc := newTestService(store)

		_, errUnknown := svc.SignIn(ctx, "ghost@example.com", testPassword, "")
		_, errWrongPass := svc.SignIn(ctx, user.Email, "wrong", "")
		assert.ErrorIs(t, errUnknown, ErrInvalidCredentials)
		assert.ErrorIs(t, errWrongPass, ErrInvalidCredentials)
		assert.Equal(t, errUnknown.Error(), errWrongPass.Error())
	})

	t.Run("2FA disabled ignores any submitted code", func(t *testing.T) {
		t.Parallel()

		user := testUser(t, withSecret(t))
		store := &MockStore{}
		store.On("GetUserByEmail", ctx, user.Email).Return(user, nil)
		svc := newTestService(store)

		identity, err := svc.SignIn(ctx, user.Email, testPassword, "garbage")
		require.NoError(t, err)
		assert.True(t, identity.TwoFactorVerified,
			"password alone satisfies an account that never enabled 2FA")
		assert.Equal(t, user.ID, identity.User.ID)
	})

	t.Run("2FA enabled requires a valid code", func(t *testing.T) {
		t.Parallel()

		user := testUser(t, withSecret(t), withEnabled())
		store := &MockStore{}
		store.On("GetUserByEmail", ctx, user.Email).Return(user, nil)
		svc := newTestService(store)

		_, err := svc.SignIn(ctx, user.Email, testPassword, "")
		assert.ErrorIs(t, err, ErrInvalidCredentials, "missing code")

		_, err = svc.SignIn(ctx, user.Email, testPassword, "000000")
		assert.ErrorIs(t, err, ErrInvalidCredentials, "wrong code")

		code, err := totp.GenerateCode(user.TwoFactorSecret)
		require.NoError(t, err)
		identity, err := svc.SignIn(ctx, user.Email, testPassword, code)
		require.NoError(t, err)
		assert.True(t, identity.TwoFactorVerified)
	})

	t.Run("enabled account without a secret is denied", func(t *testing.T) {
		t.Parallel()

		user := testUser(t, withEnabled())
		store := &MockStore{}
		store.On("GetUserByEmail", ctx, user.Email).Return(user, nil)
		svc := newTestService(store)

		_, err := svc.SignIn(ctx, user.Email, testPassword, "123456")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})
}
