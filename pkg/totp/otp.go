package totp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base32"
	"errors"
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const (
	// Digits is the code length expected from authenticator apps.
	Digits = 6
	// Period is the code validity window in seconds (RFC 6238 standard).
	Period = 30
	// Algorithm is the HMAC algorithm advertised in provisioning URIs.
	Algorithm = "SHA1"

	secretBytes = 20 // 160-bit secret (RFC 4226 recommendation)
)

var (
	// SecretKeyRegex matches Base32 secrets: uppercase A-Z, digits 2-7, optional padding.
	SecretKeyRegex = regexp.MustCompile("^[A-Z2-7]+=*$")

	codeRegex = regexp.MustCompile(fmt.Sprintf(`^\d{%d}$`, Digits))

	b32 = base32.StdEncoding.WithPadding(base32.NoPadding)
)

// KeyURIParams contains the parameters for provisioning URI generation.
type KeyURIParams struct {
	Secret      string // Base32-encoded TOTP secret (required)
	AccountName string // user identifier, typically email (required)
	Issuer      string // service name shown in authenticator apps (required)
}

func (p KeyURIParams) validate() error {
	if p.Secret == "" {
		return ErrMissingSecret
	}
	if !SecretKeyRegex.MatchString(p.Secret) {
		return ErrInvalidSecret
	}
	if p.AccountName == "" {
		return ErrMissingAccountName
	}
	if p.Issuer == "" {
		return ErrMissingIssuer
	}
	return nil
}

// GenerateSecretKey generates a new Base32-encoded secret key for TOTP.
func GenerateSecretKey() (string, error) {
	secret := make([]byte, secretBytes)
	if _, err := rand.Read(secret); err != nil {
		return "", errors.Join(ErrFailedToGenerateSecretKey, err)
	}
	return b32.EncodeToString(secret), nil
}

// KeyURI builds an otpauth:// provisioning URI for authenticator apps,
// following the Key Uri Format specification:
// https://github.com/google/google-authenticator/wiki/Key-Uri-Format
func KeyURI(params KeyURIParams) (string, error) {
	if err := params.validate(); err != nil {
		return "", err
	}

	label := fmt.Sprintf("%s:%s",
		url.PathEscape(params.Issuer),
		url.PathEscape(params.AccountName),
	)

	query := url.Values{}
	query.Set("secret", params.Secret)
	query.Set("issuer", params.Issuer)
	query.Set("algorithm", Algorithm)
	query.Set("digits", fmt.Sprintf("%d", Digits))
	query.Set("period", fmt.Sprintf("%d", Period))

	return fmt.Sprintf("otpauth://totp/%s?%s", label, query.Encode()), nil
}

// Validate checks a user-submitted code against the secret.
// Malformed codes are rejected with ErrInvalidCode before any HMAC work,
// so a format failure is a validation error rather than a cryptographic one.
func Validate(secret, code string) (bool, error) {
	code = strings.TrimSpace(code)
	if !codeRegex.MatchString(code) {
		return false, ErrInvalidCode
	}

	key, err := decodeSecret(secret)
	if err != nil {
		return false, err
	}

	counter := time.Now().Unix() / Period

	// Accept the previous, current, and next window to absorb clock drift.
	for i := int64(-1); i <= 1; i++ {
		if fmt.Sprintf("%06d", hotp(key, counter+i, Digits)) == code {
			return true, nil
		}
	}

	return false, nil
}

// GenerateCode returns the code for the current window. Used by tests and
// by the CLI helper; server-side verification goes through Validate.
func GenerateCode(secret string) (string, error) {
	return GenerateCodeAt(secret, time.Now())
}

// GenerateCodeAt returns the code for the window containing t.
func GenerateCodeAt(secret string, t time.Time) (string, error) {
	key, err := decodeSecret(secret)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", hotp(key, t.Unix()/Period, Digits)), nil
}

func decodeSecret(secret string) ([]byte, error) {
	secret = strings.TrimSpace(strings.ToUpper(secret))
	if !SecretKeyRegex.MatchString(secret) {
		return nil, ErrInvalidSecret
	}
	key, err := b32.DecodeString(strings.TrimRight(secret, "="))
	if err != nil {
		return nil, errors.Join(ErrInvalidSecret, err)
	}
	return key, nil
}

// hotp implements the RFC 4226 HMAC-based one-time password algorithm,
// converting a counter value into a numeric code using HMAC-SHA1.
func hotp(key []byte, counter int64, digits int) int {
	// Counter is encoded as a big-endian 8-byte array (RFC 4226 requirement).
	counterBytes := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		counterBytes[i] = byte(counter & 0xff)
		counter >>= 8
	}

	mac := hmac.New(sha1.New, key)
	mac.Write(counterBytes)
	sum := mac.Sum(nil)

	// Dynamic truncation (RFC 4226): last 4 bits select the offset,
	// the MSB is cleared to keep the value positive.
	offset := sum[len(sum)-1] & 0x0f
	code := (int(sum[offset]&0x7f) << 24) |
		(int(sum[offset+1]&0xff) << 16) |
		(int(sum[offset+2]&0xff) << 8) |
		int(sum[offset+3]&0xff)

	return code % int(math.Pow10(digits))
}
