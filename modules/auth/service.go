package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/ralvo/ralvo/pkg/logger"
	"github.com/ralvo/ralvo/pkg/qrcode"
	"github.com/ralvo/ralvo/pkg/totp"
	"github.com/ralvo/ralvo/pkg/validator"
)

// Service is the auth-flow orchestrator. It owns the state machine that
// decides, for an email/password submission, whether the caller is a new
// user, needs 2FA setup, must supply a code, or can sign in directly.
type Service struct {
	store      Store
	issuer     string
	bcryptCost int
	qrSize     int
	logger     *slog.Logger
}

// ServiceOption configures a Service during construction.
type ServiceOption func(*Service)

// WithServiceLogger sets a custom logger for the service.
func WithServiceLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithBcryptCost sets the bcrypt cost for password hashing.
func WithBcryptCost(cost int) ServiceOption {
	return func(s *Service) { s.bcryptCost = cost }
}

// WithQRCodeSize sets the pixel size of generated provisioning QR codes.
func WithQRCodeSize(size int) ServiceOption {
	return func(s *Service) { s.qrSize = size }
}

// NewService creates the auth-flow orchestrator. The issuer label is what
// authenticator apps display next to the account entry.
func NewService(store Store, issuer string, opts ...ServiceOption) *Service {
	s := &Service{
		store:      store,
		issuer:     issuer,
		bcryptCost: bcrypt.DefaultCost,
		qrSize:     256,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartFlow is the entry point of the combined login/signup flow.
//
// Unknown email starts the signup path: the submitted password is carried
// forward by the client for confirmation, never persisted here. For known
// accounts the password is checked; enabled accounts are told to supply a
// code, the rest get a provisioning URI so they can opt into 2FA.
func (s *Service) StartFlow(ctx context.Context, email, password string) (*FlowResult, error) {
	email = strings.TrimSpace(email)
	if err := validator.Apply(
		validator.ValidEmail("email", email),
		validator.Required("password", password),
	); err != nil {
		return nil, err
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return &FlowResult{Status: StatusNewUserConfirm, Email: email}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if err := s.checkPassword(user, password); err != nil {
		return nil, err
	}

	if user.TwoFactorEnabled {
		return &FlowResult{Status: StatusTwoFactorRequired, Email: user.Email}, nil
	}

	details, err := s.provision(ctx, user)
	if err != nil {
		return nil, err
	}

	return &FlowResult{
		Status:        StatusPromptSetup,
		Email:         details.Email,
		OTPAuthURL:    details.OTPAuthURL,
		QRCodeDataURL: details.QRCodeDataURL,
	}, nil
}

// ConfirmSignup completes the signup path: the user re-enters the password,
// and on match the account is created with a fresh secret and 2FA disabled.
func (s *Service) ConfirmSignup(ctx context.Context, email, password, confirmPassword string) (*FlowResult, error) {
	email = strings.TrimSpace(email)
	if err := validator.Apply(
		validator.ValidEmail("email", email),
		validator.Required("password", password),
		validator.Match("confirmPassword", confirmPassword, password),
	); err != nil {
		return nil, err
	}

	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return nil, ErrEmailAlreadyExists
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	secret, err := totp.GenerateSecretKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate secret: %w", err)
	}

	user := &User{
		ID:               uuid.New(),
		Email:            email,
		PasswordHash:     hash,
		TwoFactorSecret:  secret,
		TwoFactorEnabled: false,
		Role:             RoleUser,
		CreatedAt:        time.Now(),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		// Lost a create race: the unique email constraint reports it.
		if errors.Is(err, ErrEmailAlreadyExists) {
			return nil, ErrEmailAlreadyExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	uri, dataURL, err := s.renderProvisioning(user.Email, secret)
	if err != nil {
		return nil, err
	}

	return &FlowResult{
		Status:        StatusSignupComplete,
		Email:         user.Email,
		OTPAuthURL:    uri,
		QRCodeDataURL: dataURL,
	}, nil
}

// SetupDetails returns the provisioning URI and QR code for an account,
// generating a secret only when none exists. Repeated calls return the same
// secret, so a QR code scanned earlier stays valid across retries.
func (s *Service) SetupDetails(ctx context.Context, email string) (*SetupDetails, error) {
	user, err := s.store.GetUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	return s.provision(ctx, user)
}

// VerifyAndEnable checks a setup code against the provisioned secret and,
// only on success, durably enables 2FA for the account. A failed check
// mutates nothing.
func (s *Service) VerifyAndEnable(ctx context.Context, email, code string) (*FlowResult, error) {
	// Shape check comes first: a malformed code never reaches the store
	// or the verifier.
	if err := validator.Apply(
		validator.ValidEmail("email", email),
		validator.Digits("otp", code, totp.Digits),
	); err != nil {
		return nil, err
	}

	user, err := s.store.GetUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if user.TwoFactorSecret == "" {
		return nil, ErrSecretNotProvisioned
	}
	if user.TwoFactorEnabled {
		return nil, ErrTwoFactorAlreadyEnabled
	}

	ok, err := totp.Validate(user.TwoFactorSecret, code)
	if err != nil {
		return nil, fmt.Errorf("failed to verify code: %w", err)
	}
	if !ok {
		return nil, ErrInvalidCode
	}

	// Enablement is committed before the client attempts the follow-up
	// sign-in: a crash between the two leaves the account enrolled, not
	// silently unprotected.
	if err := s.store.EnableTwoFactor(ctx, user.ID); err != nil {
		return nil, fmt.Errorf("failed to enable two-factor: %w", err)
	}

	s.logger.Info("two-factor authentication enabled",
		logger.UserID(user.ID.String()),
		logger.Component("auth"),
	)

	return &FlowResult{Status: StatusSetupComplete, Email: user.Email}, nil
}

// SignIn authenticates an email/password pair, demanding a valid one-time
// code whenever the account has 2FA enabled. All denials surface as
// ErrInvalidCredentials so the caller cannot tell which factor failed; the
// distinction is kept for internal logging only.
func (s *Service) SignIn(ctx context.Context, email, password, otp string) (*Identity, error) {
	email = strings.TrimSpace(email)
	if err := validator.Apply(
		validator.ValidEmail("email", email),
		validator.Required("password", password),
	); err != nil {
		return nil, err
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			s.denied("unknown email", email)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if err := s.checkPassword(user, password); err != nil {
		return nil, err
	}

	if !user.TwoFactorEnabled {
		// A lingering secret without the enabled flag means the user
		// never finished enrollment; it grants nothing and demands
		// nothing. The session still counts as fully verified: it
		// satisfied every factor the account requires, so gated
		// features are not closed to accounts that never enrolled.
		return &Identity{User: user, TwoFactorVerified: true}, nil
	}

	if user.TwoFactorSecret == "" {
		// Violates the enabled-implies-secret invariant; deny rather
		// than fall back to password-only login.
		s.logger.Error("two-factor enabled without a secret",
			logger.UserID(user.ID.String()),
			logger.Component("auth"),
		)
		return nil, ErrInvalidCredentials
	}

	ok, err := totp.Validate(user.TwoFactorSecret, otp)
	if err != nil || !ok {
		s.denied("invalid or missing one-time code", email)
		return nil, ErrInvalidCredentials
	}

	return &Identity{User: user, TwoFactorVerified: true}, nil
}

// provision returns setup details for user, writing a fresh secret only if
// the account has none. The store resolves concurrent provisioning to a
// single secret.
func (s *Service) provision(ctx context.Context, user *User) (*SetupDetails, error) {
	secret := user.TwoFactorSecret
	if secret == "" {
		generated, err := totp.GenerateSecretKey()
		if err != nil {
			return nil, fmt.Errorf("failed to generate secret: %w", err)
		}
		secret, err = s.store.SetTwoFactorSecret(ctx, user.ID, generated)
		if err != nil {
			return nil, fmt.Errorf("failed to store secret: %w", err)
		}
	}

	uri, dataURL, err := s.renderProvisioning(user.Email, secret)
	if err != nil {
		return nil, err
	}

	return &SetupDetails{Email: user.Email, OTPAuthURL: uri, QRCodeDataURL: dataURL}, nil
}

// renderProvisioning builds the otpauth URI and its QR data URL. A QR
// rendering failure is not fatal: the URI alone supports manual entry.
func (s *Service) renderProvisioning(email, secret string) (uri, dataURL string, err error) {
	uri, err = totp.KeyURI(totp.KeyURIParams{
		Secret:      secret,
		AccountName: email,
		Issuer:      s.issuer,
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to build provisioning uri: %w", err)
	}

	dataURL, err = qrcode.DataURL(uri, s.qrSize)
	if err != nil {
		s.logger.Error("failed to render provisioning QR code",
			logger.Error(err),
			logger.Component("auth"),
		)
		dataURL = ""
	}

	return uri, dataURL, nil
}

func (s *Service) checkPassword(user *User, password string) error {
	if user.PasswordHash == nil {
		s.denied("no password configured", user.Email)
		return ErrNoPasswordConfigured
	}
	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		s.denied("password mismatch", user.Email)
		return ErrInvalidCredentials
	}
	return nil
}

func (s *Service) denied(reason, email string) {
	s.logger.Info("authentication denied",
		slog.String("reason", reason),
		slog.String("email", email),
		logger.Component("auth"),
	)
}
