package auth

import (
	"time"

	"github.com/google/uuid"
)

// Role is the account-level role. Organizer status is not a role: it is
// derived from ADMIN membership rows, which are strictly more expressive.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// OrgRole is a user's role within one organization.
type OrgRole string

const (
	OrgRoleAdmin  OrgRole = "ADMIN"
	OrgRoleMember OrgRole = "MEMBER"
)

// Provider identifiers recorded in session claims.
const (
	ProviderPassword = "password"
	ProviderGoogle   = "google"
	ProviderGithub   = "github"
)

// User represents a user account. PasswordHash is nil for accounts created
// through an external identity provider. TwoFactorSecret persists across
// enable/disable cycles; secret presence alone never grants anything —
// only TwoFactorEnabled does.
type User struct {
	ID               uuid.UUID
	Email            string
	PasswordHash     []byte
	TwoFactorSecret  string
	TwoFactorEnabled bool
	Role             Role
	CreatedAt        time.Time
}

// OrganizationMembership links a user to an organization with a role.
type OrganizationMembership struct {
	OrganizationID uuid.UUID
	Role           OrgRole
}

// FlowStatus tags the outcome of an auth-flow operation.
type FlowStatus string

const (
	StatusNewUserConfirm    FlowStatus = "NEW_USER_CONFIRM_PASSWORD"
	StatusTwoFactorRequired FlowStatus = "2FA_REQUIRED"
	StatusPromptSetup       FlowStatus = "LOGIN_SUCCESS_PROMPT_2FA_SETUP"
	StatusSignupComplete    FlowStatus = "SIGNUP_SUCCESS_PROMPT_2FA_SETUP"
	StatusSetupComplete     FlowStatus = "2FA_SETUP_COMPLETE"
)

// FlowResult is the structured outcome of one auth-flow step. Denials come
// back as errors, never as a FlowResult.
type FlowResult struct {
	Status        FlowStatus `json:"status"`
	Email         string     `json:"email"`
	OTPAuthURL    string     `json:"otpAuthUrl,omitempty"`
	QRCodeDataURL string     `json:"qrCodeDataUrl,omitempty"`
}

// SetupDetails carries everything the setup screen needs to render a
// provisioning QR code and a manual-entry fallback.
type SetupDetails struct {
	Email         string `json:"email"`
	OTPAuthURL    string `json:"otpAuthUrl"`
	QRCodeDataURL string `json:"qrCodeDataUrl,omitempty"`
}

// Identity is an authenticated user plus how this particular sign-in was
// performed. TwoFactorVerified answers "did THIS sign-in satisfy every
// factor the account requires": a validated code when 2FA is enabled, the
// password alone when it never was.
type Identity struct {
	User              *User
	TwoFactorVerified bool
}
