package auth

import (
	"context"

	"github.com/google/uuid"
)

// Store defines the persistence operations the auth flow needs. The backing
// store is treated as an opaque relational store; implementations translate
// their driver errors into the sentinel errors of this package.
//
// Email lookups are exact-match: the address is an opaque, case-sensitive
// identity string.
type Store interface {
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*User, error)
	CreateUser(ctx context.Context, user *User) error

	// SetTwoFactorSecret provisions a secret only when none exists and
	// returns the secret in effect afterwards. Concurrent callers must
	// converge on a single secret: the loser of the race observes and
	// returns the winner's value.
	SetTwoFactorSecret(ctx context.Context, userID uuid.UUID, secret string) (string, error)

	// EnableTwoFactor durably flips TwoFactorEnabled to true.
	EnableTwoFactor(ctx context.Context, userID uuid.UUID) error

	// UpdateRole changes the account-level role. Open sessions pick the
	// change up through a refresh, not automatically.
	UpdateRole(ctx context.Context, userID uuid.UUID, role Role) error

	// OrganizationsForUser returns the user's membership rows, used to
	// snapshot organization data into session claims at issuance time.
	OrganizationsForUser(ctx context.Context, userID uuid.UUID) ([]OrganizationMembership, error)
}
