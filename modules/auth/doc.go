// Package auth implements Ralvo's account and sign-in system: a multi-step
// login/signup flow with mandatory TOTP two-factor enrollment, stateless
// signed sessions, and OAuth provider sign-in.
//
// # Core Pieces
//
//   - Service orchestrates the credential flow: starting a flow from an
//     email, confirming a new signup, provisioning a TOTP secret, verifying
//     the first code, and signing in with password plus code.
//   - TokenIssuer signs, refreshes, and parses the stateless session token.
//     Session claims carry a per-session TwoFactorVerified flag that is
//     independent of the account-level TwoFactorEnabled setting.
//   - Flow is a client-side state machine mirroring the login modal: it
//     walks INITIAL through LOGGED_IN, serializes submissions, and maps
//     service errors to user-facing messages.
//   - Handler and OAuthHandler expose the flow over a JSON HTTP API.
//   - Store abstracts persistence; PostgresStore and MemoryStore implement it.
//
// # Basic Usage
//
//	store := auth.NewPostgresStore(pool)
//	svc := auth.NewService(store, cfg.TOTPIssuer, auth.WithServiceLogger(log))
//	issuer, err := auth.NewTokenIssuer(store, cfg.SessionSecret, auth.WithSessionTTL(cfg.SessionTTL))
//	if err != nil {
//		// a signing secret is mandatory
//	}
//
//	r := chi.NewRouter()
//	r.Mount("/auth", auth.Router(auth.RouterOptions{
//		Password: auth.NewHandler(svc, issuer, cfg),
//		OAuth:    auth.NewOAuthHandler(store, issuer, cfg, adapters),
//	}))
//
// # Security Properties
//
// Password sign-in failures are reported uniformly as ErrInvalidCredentials
// whether the email, password, or code was wrong, so responses do not leak
// which accounts exist or have two-factor enabled. Secret provisioning is
// monotonic: once a user has a TOTP secret it is never silently replaced,
// and concurrent provisioning attempts converge on a single secret. Session
// parsing never fails loudly; a malformed or expired token simply yields
// the anonymous session.
package auth
