package totp_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ralvo/ralvo/pkg/totp"
)

func TestGenerateSecretKey(t *testing.T) {
	t.Parallel()

	secret, err := totp.GenerateSecretKey()
	require.NoError(t, err)
	assert.NotEmpty(t, secret)
	assert.Regexp(t, totp.SecretKeyRegex, secret)

	other, err := totp.GenerateSecretKey()
	require.NoError(t, err)
	assert.NotEqual(t, secret, other)
}

func TestKeyURI(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		params  totp.KeyURIParams
		want    string
		wantErr error
	}{
		{
			name: "basic URI",
			params: totp.KeyURIParams{
				Secret:      "ABCDEFGHIJKLMNOP",
				AccountName: "a@x.com",
				Issuer:      "Ralvo",
			},
			want: "otpauth://totp/Ralvo:a@x.com?algorithm=SHA1&digits=6&issuer=Ralvo&period=30&secret=ABCDEFGHIJKLMNOP",
		},
		{
			name: "escapes special characters",
			params: totp.KeyURIParams{
				Secret:      "ABCDEFGHIJKLMNOP",
				AccountName: "test+user@example.com",
				Issuer:      "Ralvo Dev",
			},
			want: "otpauth://totp/Ralvo%20Dev:test+user@example.com?algorithm=SHA1&digits=6&issuer=Ralvo+Dev&period=30&secret=ABCDEFGHIJKLMNOP",
		},
		{
			name:    "missing secret",
			params:  totp.KeyURIParams{AccountName: "a@x.com", Issuer: "Ralvo"},
			wantErr: totp.ErrMissingSecret,
		},
		{
			name:    "invalid secret",
			params:  totp.KeyURIParams{Secret: "not base32!", AccountName: "a@x.com", Issuer: "Ralvo"},
			wantErr: totp.ErrInvalidSecret,
		},
		{
			name:    "missing account name",
			params:  totp.KeyURIParams{Secret: "ABCDEFGHIJKLMNOP", Issuer: "Ralvo"},
			wantErr: totp.ErrMissingAccountName,
		},
		{
			name:    "missing issuer",
			params:  totp.KeyURIParams{Secret: "ABCDEFGHIJKLMNOP", AccountName: "a@x.com"},
			wantErr: totp.ErrMissingIssuer,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := totp.KeyURI(tt.params)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	secret, err := totp.GenerateSecretKey()
	require.NoError(t, err)

	t.Run("accepts current code", func(t *testing.T) {
		t.Parallel()

		code, err := totp.GenerateCode(secret)
		require.NoError(t, err)

		ok, err := totp.Validate(secret, code)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("accepts previous and next window", func(t *testing.T) {
		t.Parallel()

		for _, offset := range []time.Duration{-30 * time.Second, 30 * time.Second} {
			code, err := totp.GenerateCodeAt(secret, time.Now().Add(offset))
			require.NoError(t, err)

			ok, err := totp.Validate(secret, code)
			require.NoError(t, err)
			assert.True(t, ok, "offset %s", offset)
		}
	})

	t.Run("rejects code outside the window", func(t *testing.T) {
		t.Parallel()

		code, err := totp.GenerateCodeAt(secret, time.Now().Add(-5*time.Minute))
		require.NoError(t, err)

		ok, err := totp.Validate(secret, code)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("rejects malformed input before touching the secret", func(t *testing.T) {
		t.Parallel()

		for _, code := range []string{"", "12345", "1234567", "12a45", "12a456"} {
			ok, err := totp.Validate("not-a-secret-and-never-decoded", code)
			assert.ErrorIs(t, err, totp.ErrInvalidCode, "code %q", code)
			assert.False(t, ok)
		}
	})

	t.Run("rejects invalid secret", func(t *testing.T) {
		t.Parallel()

		ok, err := totp.Validate("invalid-base32!@#", "123456")
		assert.ErrorIs(t, err, totp.ErrInvalidSecret)
		assert.False(t, ok)
	})
}

func TestGenerateCodeAt(t *testing.T) {
	t.Parallel()

	const secret = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"

	at := time.Unix(1700000000, 0)
	code, err := totp.GenerateCodeAt(secret, at)
	require.NoError(t, err)
	assert.Len(t, code, 6)

	// Deterministic within the same 30s window.
	again, err := totp.GenerateCodeAt(secret, at.Add(5*time.Second))
	require.NoError(t, err)
	assert.Equal(t, code, again)
}
