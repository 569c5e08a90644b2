package auth

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_ExactMatchEmail(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.CreateUser(ctx, testUser(t, func(u *User) { u.Email = "Case@Example.com" })))

	_, err := store.GetUserByEmail(ctx, "case@example.com")
	assert.ErrorIs(t, err, ErrUserNotFound)

	user, err := store.GetUserByEmail(ctx, "Case@Example.com")
	require.NoError(t, err)
	assert.Equal(t, "Case@Example.com", user.Email)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.CreateUser(ctx, testUser(t)))

	first, err := store.GetUserByEmail(ctx, "user@example.com")
	require.NoError(t, err)
	first.TwoFactorEnabled = true
	first.PasswordHash[0] ^= 0xff

	second, err := store.GetUserByEmail(ctx, "user@example.com")
	require.NoError(t, err)
	assert.False(t, second.TwoFactorEnabled)
	assert.NotEqual(t, first.PasswordHash[0], second.PasswordHash[0])
}

func TestMemoryStore_SetTwoFactorSecret(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("unknown user", func(t *testing.T) {
		t.Parallel()

		store := NewMemoryStore()
		_, err := store.SetTwoFactorSecret(ctx, testUser(t).ID, "secret")
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("first writer wins, concurrent callers converge", func(t *testing.T) {
		t.Parallel()

		store := NewMemoryStore()
		user := testUser(t)
		require.NoError(t, store.CreateUser(ctx, user))

		const workers = 16
		results := make([]string, workers)
		var wg sync.WaitGroup
		wg.Add(workers)
		for n := range workers {
			go func() {
				defer wg.Done()
				effective, err := store.SetTwoFactorSecret(ctx, user.ID, fmt.Sprintf("secret-%d", n))
				if err == nil {
					results[n] = effective
				}
			}()
		}
		wg.Wait()

		stored, err := store.GetUserByID(ctx, user.ID)
		require.NoError(t, err)
		require.NotEmpty(t, stored.TwoFactorSecret)
		for n := range workers {
			assert.Equal(t, stored.TwoFactorSecret, results[n])
		}
	})
}
