package auth

import (
	"context"
	"errors"
	"sync"

	"github.com/ralvo/ralvo/pkg/validator"
)

// Step identifies which form of the multi-step login/signup dialog is shown.
type Step string

const (
	StepInitial        Step = "INITIAL"
	StepNewUserConfirm Step = "NEW_USER_CONFIRM"
	StepPromptSetup    Step = "PROMPT_2FA_SETUP"
	StepSetup          Step = "SETUP_2FA"
	StepEnterCode      Step = "ENTER_2FA"
	StepLoggedIn       Step = "LOGGED_IN"
)

// Flow drives the multi-step dialog: it holds the transient fields of one
// login/signup interaction, advances through steps based on orchestrator
// results, and issues the session on success. Errors keep the current step;
// StepLoggedIn is reached only together with an issued session token, so the
// dialog state and the session state cannot diverge.
type Flow struct {
	svc    *Service
	issuer *TokenIssuer

	mu   sync.Mutex
	step Step

	// Transient state, bounded to one interaction and discarded on Close.
	email         string
	password      string
	otpauthURL    string
	qrCodeDataURL string
	lastErr       string

	token  string
	claims *SessionClaims
}

// NewFlow creates a flow controller in the initial step.
func NewFlow(svc *Service, issuer *TokenIssuer) *Flow {
	return &Flow{svc: svc, issuer: issuer, step: StepInitial}
}

// Step returns the step currently shown.
func (f *Flow) Step() Step {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.step
}

// Err returns the user-visible message of the last failed submission.
func (f *Flow) Err() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastErr
}

// ProvisioningURI returns the otpauth URI for the setup step.
func (f *Flow) ProvisioningURI() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.otpauthURL
}

// QRCodeDataURL returns the inline QR image for the setup step.
func (f *Flow) QRCodeDataURL() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.qrCodeDataURL
}

// Token returns the session token once logged in.
func (f *Flow) Token() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token
}

// Session returns the issued session claims, or nil before login.
func (f *Flow) Session() *SessionClaims {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.claims
}

// Submit handles the initial email/password form.
func (f *Flow) Submit(ctx context.Context, email, password string) error {
	return f.do(ctx, StepInitial, func(ctx context.Context) error {
		result, err := f.svc.StartFlow(ctx, email, password)
		if err != nil {
			return err
		}

		f.email = result.Email
		f.password = password

		switch result.Status {
		case StatusNewUserConfirm:
			f.step = StepNewUserConfirm
		case StatusTwoFactorRequired:
			f.step = StepEnterCode
		case StatusPromptSetup:
			f.otpauthURL = result.OTPAuthURL
			f.qrCodeDataURL = result.QRCodeDataURL
			f.step = StepPromptSetup
		}
		return nil
	})
}

// ConfirmPassword handles the signup confirmation form.
func (f *Flow) ConfirmPassword(ctx context.Context, confirmPassword string) error {
	return f.do(ctx, StepNewUserConfirm, func(ctx context.Context) error {
		result, err := f.svc.ConfirmSignup(ctx, f.email, f.password, confirmPassword)
		if err != nil {
			return err
		}

		f.otpauthURL = result.OTPAuthURL
		f.qrCodeDataURL = result.QRCodeDataURL
		f.step = StepPromptSetup
		return nil
	})
}

// AcceptSetup moves from the 2FA offer to the setup screen.
func (f *Flow) AcceptSetup() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.step != StepPromptSetup {
		return ErrWrongStep
	}
	f.step = StepSetup
	f.lastErr = ""
	return nil
}

// DeclineSetup skips 2FA configuration and signs in with password only.
func (f *Flow) DeclineSetup(ctx context.Context) error {
	return f.do(ctx, StepPromptSetup, func(ctx context.Context) error {
		identity, err := f.svc.SignIn(ctx, f.email, f.password, "")
		if err != nil {
			f.step = StepInitial
			return err
		}
		return f.establish(ctx, identity)
	})
}

// SubmitSetupCode verifies the code shown by the authenticator app, enables
// 2FA, and signs in with the same code. On failure the code is discarded and
// the setup screen is shown again with its QR code intact.
func (f *Flow) SubmitSetupCode(ctx context.Context, code string) error {
	return f.do(ctx, StepSetup, func(ctx context.Context) error {
		if _, err := f.svc.VerifyAndEnable(ctx, f.email, code); err != nil {
			return err
		}

		// Enablement is durable at this point; the sign-in below supplies
		// the same code, which still falls inside the verifier's window.
		identity, err := f.svc.SignIn(ctx, f.email, f.password, code)
		if err != nil {
			return err
		}
		return f.establish(ctx, identity)
	})
}

// SubmitCode handles the returning-user code entry. Password and code are
// re-validated together; a failure never downgrades to password-only login.
func (f *Flow) SubmitCode(ctx context.Context, code string) error {
	return f.do(ctx, StepEnterCode, func(ctx context.Context) error {
		identity, err := f.svc.SignIn(ctx, f.email, f.password, code)
		if err != nil {
			return err
		}
		return f.establish(ctx, identity)
	})
}

// Close abandons the interaction, discarding all transient state.
func (f *Flow) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reset()
}

// SignOut clears the session and resets the flow.
func (f *Flow) SignOut() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reset()
	f.token = ""
	f.claims = nil
}

func (f *Flow) establish(ctx context.Context, identity *Identity) error {
	token, claims, err := f.issuer.Issue(ctx, identity, ProviderPassword)
	if err != nil {
		return err
	}
	f.token = token
	f.claims = claims
	f.reset()
	f.step = StepLoggedIn
	return nil
}

// do runs one submission while the flow is in the expected step. A second
// submission while one is outstanding is rejected, mirroring disabled
// submit controls.
func (f *Flow) do(ctx context.Context, expected Step, fn func(context.Context) error) error {
	if !f.mu.TryLock() {
		return ErrRequestInFlight
	}
	defer f.mu.Unlock()

	if f.step != expected {
		return ErrWrongStep
	}

	f.lastErr = ""
	if err := fn(ctx); err != nil {
		f.lastErr = userMessage(err)
		return err
	}
	return nil
}

// reset clears everything except the issued session.
func (f *Flow) reset() {
	f.step = StepInitial
	f.email = ""
	f.password = ""
	f.otpauthURL = ""
	f.qrCodeDataURL = ""
	f.lastErr = ""
}

// userMessage maps orchestrator errors to the message the dialog shows.
// Authentication denials are deliberately indistinct.
func userMessage(err error) string {
	switch {
	case errors.Is(err, ErrNoPasswordConfigured):
		return "This account uses a different sign-in method."
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid credentials."
	case errors.Is(err, ErrInvalidCode):
		return "Invalid code."
	case errors.Is(err, ErrEmailAlreadyExists):
		return "This email is already in use."
	case errors.Is(err, ErrSecretNotProvisioned), errors.Is(err, ErrUserNotFound):
		return "Please restart the sign-in process."
	case validator.IsValidationError(err):
		return err.Error()
	default:
		return "Something went wrong. Please try again."
	}
}
