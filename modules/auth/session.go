package auth

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/ralvo/ralvo/pkg/logger"
)

// UpdateAction tags a session refresh with the state change that triggered
// it, so only the relevant claims are re-read from the store.
type UpdateAction string

const (
	ActionTwoFactorStatusUpdated UpdateAction = "USER_UPDATED_2FA_STATUS"
	ActionRoleUpdated            UpdateAction = "USER_ROLE_UPDATED"
	ActionMembershipUpdated      UpdateAction = "USER_ORGANIZATION_MEMBERSHIP_UPDATED"
)

// MembershipClaim is the session snapshot of one organization membership.
type MembershipClaim struct {
	OrganizationID string  `json:"org_id"`
	Role           OrgRole `json:"role"`
}

// SessionClaims is the signed, stateless session credential.
//
// TwoFactorVerified is a per-session flag distinct from the account-level
// TwoFactorEnabled: it records whether THIS sign-in satisfied every factor
// the account requires (a validated code when 2FA is enabled; always true
// for non-password providers and for accounts that never enrolled). It is
// preserved verbatim across refreshes. Organization data is a snapshot
// taken at issuance or at an explicit refresh, not a live view.
type SessionClaims struct {
	UserID            string            `json:"uid"`
	Email             string            `json:"email"`
	Role              Role              `json:"role"`
	Provider          string            `json:"provider"`
	TwoFactorEnabled  bool              `json:"two_factor_enabled"`
	TwoFactorVerified bool              `json:"two_factor_verified"`
	Memberships       []MembershipClaim `json:"orgs,omitempty"`
	AdministeredOrgs  []string          `json:"admin_orgs,omitempty"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and parses session credentials and derives their claims
// from the store at issuance and refresh time.
type TokenIssuer struct {
	store  Store
	secret []byte
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// IssuerOption configures a TokenIssuer during construction.
type IssuerOption func(*TokenIssuer)

// WithSessionTTL sets the lifetime of issued tokens.
func WithSessionTTL(ttl time.Duration) IssuerOption {
	return func(i *TokenIssuer) {
		if ttl > 0 {
			i.ttl = ttl
		}
	}
}

// WithIssuerLogger sets a custom logger for the issuer.
func WithIssuerLogger(l *slog.Logger) IssuerOption {
	return func(i *TokenIssuer) {
		if l != nil {
			i.logger = l
		}
	}
}

// WithClock overrides the time source, used by tests for deterministic
// issued-at and expiry claims.
func WithClock(now func() time.Time) IssuerOption {
	return func(i *TokenIssuer) {
		if now != nil {
			i.now = now
		}
	}
}

// NewTokenIssuer creates a session token issuer signing with HMAC-SHA256.
func NewTokenIssuer(store Store, signingSecret string, opts ...IssuerOption) (*TokenIssuer, error) {
	if signingSecret == "" {
		return nil, ErrMissingSigningSecret
	}
	i := &TokenIssuer{
		store:  store,
		secret: []byte(signingSecret),
		ttl:    24 * time.Hour,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Issue creates a signed session token for a freshly authenticated identity.
// Organization memberships are snapshotted from the store at this moment.
// For non-password providers TwoFactorVerified is unconditionally true.
func (i *TokenIssuer) Issue(ctx context.Context, identity *Identity, provider string) (string, *SessionClaims, error) {
	user := identity.User

	verified := identity.TwoFactorVerified || provider != ProviderPassword

	memberships, adminOrgs, err := i.orgSnapshot(ctx, user.ID)
	if err != nil {
		return "", nil, err
	}

	now := i.now()
	claims := &SessionClaims{
		UserID:            user.ID.String(),
		Email:             user.Email,
		Role:              user.Role,
		Provider:          provider,
		TwoFactorEnabled:  user.TwoFactorEnabled,
		TwoFactorVerified: verified,
		Memberships:       memberships,
		AdministeredOrgs:  adminOrgs,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}

	token, err := i.sign(claims)
	if err != nil {
		return "", nil, err
	}

	i.logger.Info("session issued",
		logger.UserID(user.ID.String()),
		slog.String("provider", provider),
		slog.Bool("two_factor_verified", verified),
		logger.Component("session"),
	)

	return token, claims, nil
}

// Refresh re-derives the claims named by action from the store and re-signs
// the session without requiring re-authentication. Identity, lifetime, and
// the per-session TwoFactorVerified flag are preserved, so applying the same
// action twice yields an identical session.
func (i *TokenIssuer) Refresh(ctx context.Context, claims *SessionClaims, action UpdateAction) (string, *SessionClaims, error) {
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return "", nil, fmt.Errorf("malformed session subject: %w", err)
	}

	updated := *claims

	switch action {
	case ActionTwoFactorStatusUpdated, ActionRoleUpdated:
		user, err := i.store.GetUserByID(ctx, userID)
		if err != nil {
			return "", nil, fmt.Errorf("failed to re-read user: %w", err)
		}
		if action == ActionTwoFactorStatusUpdated {
			updated.TwoFactorEnabled = user.TwoFactorEnabled
		} else {
			updated.Role = user.Role
		}
	case ActionMembershipUpdated:
		memberships, adminOrgs, err := i.orgSnapshot(ctx, userID)
		if err != nil {
			return "", nil, err
		}
		updated.Memberships = memberships
		updated.AdministeredOrgs = adminOrgs
	default:
		return "", nil, ErrUnknownUpdateAction
	}

	token, err := i.sign(&updated)
	if err != nil {
		return "", nil, err
	}

	return token, &updated, nil
}

// Parse validates a session token and returns its claims. A missing,
// malformed, expired, or tampered token yields nil: the caller sees an
// anonymous session, never an error.
func (i *TokenIssuer) Parse(tokenString string) *SessionClaims {
	if tokenString == "" {
		return nil
	}

	var claims SessionClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(i.now))
	if err != nil || !token.Valid {
		return nil
	}

	return &claims
}

func (i *TokenIssuer) sign(claims *SessionClaims) (string, error) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return token, nil
}

func (i *TokenIssuer) orgSnapshot(ctx context.Context, userID uuid.UUID) ([]MembershipClaim, []string, error) {
	rows, err := i.store.OrganizationsForUser(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load organization memberships: %w", err)
	}

	memberships := make([]MembershipClaim, 0, len(rows))
	var adminOrgs []string
	for _, row := range rows {
		memberships = append(memberships, MembershipClaim{
			OrganizationID: row.OrganizationID.String(),
			Role:           row.Role,
		})
		if row.Role == OrgRoleAdmin {
			adminOrgs = append(adminOrgs, row.OrganizationID.String())
		}
	}
	if len(memberships) == 0 {
		memberships = nil
	}

	return memberships, adminOrgs, nil
}
