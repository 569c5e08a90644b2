// Package totp implements time-based one-time passwords (RFC 6238) on top
// of the HOTP algorithm (RFC 4226) using HMAC-SHA1, 6-digit codes, and a
// 30-second period.
//
// The package covers three concerns: generating Base32 secrets, building
// otpauth:// provisioning URIs for authenticator apps, and verifying
// user-submitted codes with a one-window tolerance on either side of the
// current time step.
//
// Verification rejects codes that are not exactly six ASCII digits before
// touching the secret, so callers can distinguish validation failures
// (ErrInvalidCode) from a genuine code mismatch (false, nil).
package totp
