package auth

import "errors"

// General authentication errors
var (
	ErrUserNotFound         = errors.New("user not found")
	ErrEmailAlreadyExists   = errors.New("email already exists")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrNoPasswordConfigured = errors.New("account uses a different sign-in method")
	ErrUnauthorized         = errors.New("unauthorized")
)

// Two-factor errors
var (
	ErrInvalidCode             = errors.New("invalid code")
	ErrSecretNotProvisioned    = errors.New("two-factor secret not provisioned")
	ErrTwoFactorAlreadyEnabled = errors.New("two-factor authentication already enabled")
)

// Session errors
var (
	ErrMissingSigningSecret = errors.New("missing session signing secret")
	ErrUnknownUpdateAction  = errors.New("unknown session update action")
)

// OAuth errors
var (
	ErrUnknownProvider = errors.New("unknown oauth provider")
	ErrInvalidState    = errors.New("invalid oauth state")
	ErrInvalidGrant    = errors.New("invalid authorization code")
	ErrNoProviderEmail = errors.New("no email from provider")
)

// Flow controller errors
var (
	ErrRequestInFlight = errors.New("a request is already in flight")
	ErrWrongStep       = errors.New("operation not valid in the current step")
)
