package auth

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ralvo/ralvo/pkg/logger"
	"github.com/ralvo/ralvo/pkg/validator"
)

// Handler exposes the auth module over a JSON HTTP API.
type Handler struct {
	svc    *Service
	issuer *TokenIssuer
	cfg    Config
	log    *slog.Logger
}

// NewHandler wires the service and token issuer into an HTTP handler.
func NewHandler(svc *Service, issuer *TokenIssuer, cfg Config, opts ...HandlerOption) *Handler {
	h := &Handler{
		svc:    svc,
		issuer: issuer,
		cfg:    cfg,
		log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandlerOption configures optional Handler dependencies.
type HandlerOption func(*Handler)

func WithHandlerLogger(log *slog.Logger) HandlerOption {
	return func(h *Handler) {
		if log != nil {
			h.log = log.With(logger.Component("auth.handler"))
		}
	}
}

// Handle returns the module router ready to be mounted.
func (h *Handler) Handle() http.Handler {
	r := chi.NewRouter()

	r.Post("/start", h.start)
	r.Post("/signup", h.signup)
	r.Post("/2fa/setup", h.setupDetails)
	r.Post("/2fa/verify", h.verifyAndEnable)
	r.Post("/signin", h.signIn)
	r.Post("/signout", h.signOut)

	r.Get("/session", h.session)
	r.Post("/session/refresh", h.refreshSession)

	return r
}

type startRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.svc.StartFlow(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

type signupRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

func (h *Handler) signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.svc.ConfirmSignup(r.Context(), req.Email, req.Password, req.ConfirmPassword)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, result)
}

// setupDetails serves a later 2FA opt-in from account settings: the email
// comes from the session, never from the request body, so provisioning
// URIs cannot be fished for arbitrary accounts.
func (h *Handler) setupDetails(w http.ResponseWriter, r *http.Request) {
	claims := h.sessionFromRequest(r)
	if claims == nil {
		h.writeError(w, ErrUnauthorized)
		return
	}

	details, err := h.svc.SetupDetails(r.Context(), claims.Email)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, details)
}

type verifyRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

func (h *Handler) verifyAndEnable(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.svc.VerifyAndEnable(r.Context(), req.Email, req.Code)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Code     string `json:"code"`
}

type sessionResponse struct {
	Email              string    `json:"email"`
	Role               Role      `json:"role"`
	Provider           string    `json:"provider"`
	TwoFactorEnabled   bool      `json:"twoFactorEnabled"`
	TwoFactorVerified  bool      `json:"isTwoFactorAuthenticated"`
	Organizations      []string  `json:"organizations"`
	AdminOrganizations []string  `json:"adminOrganizations"`
	ExpiresAt          time.Time `json:"expiresAt"`
}

func (h *Handler) signIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if !h.decode(w, r, &req) {
		return
	}

	identity, err := h.svc.SignIn(r.Context(), req.Email, req.Password, req.Code)
	if err != nil {
		h.writeError(w, err)
		return
	}

	token, claims, err := h.issuer.Issue(r.Context(), identity, ProviderPassword)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.setSessionCookie(w, token, claims.ExpiresAt.Time)
	h.writeJSON(w, http.StatusOK, claimsResponse(claims))
}

func (h *Handler) signOut(w http.ResponseWriter, r *http.Request) {
	h.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) {
	claims := h.sessionFromRequest(r)
	if claims == nil {
		h.writeError(w, ErrUnauthorized)
		return
	}
	h.writeJSON(w, http.StatusOK, claimsResponse(claims))
}

type refreshRequest struct {
	Action UpdateAction `json:"action"`
}

func (h *Handler) refreshSession(w http.ResponseWriter, r *http.Request) {
	claims := h.sessionFromRequest(r)
	if claims == nil {
		h.writeError(w, ErrUnauthorized)
		return
	}

	var req refreshRequest
	if !h.decode(w, r, &req) {
		return
	}

	token, updated, err := h.issuer.Refresh(r.Context(), claims, req.Action)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.setSessionCookie(w, token, updated.ExpiresAt.Time)
	h.writeJSON(w, http.StatusOK, claimsResponse(updated))
}

// sessionFromRequest parses the session cookie. A missing or invalid
// cookie yields nil, the anonymous session.
func (h *Handler) sessionFromRequest(r *http.Request) *SessionClaims {
	cookie, err := r.Cookie(h.cfg.CookieName)
	if err != nil {
		return nil
	}
	return h.issuer.Parse(cookie.Value)
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func claimsResponse(claims *SessionClaims) sessionResponse {
	return sessionResponse{
		Email:              claims.Email,
		Role:               claims.Role,
		Provider:           claims.Provider,
		TwoFactorEnabled:   claims.TwoFactorEnabled,
		TwoFactorVerified:  claims.TwoFactorVerified,
		Organizations:      orgIDs(claims.Memberships),
		AdminOrganizations: claims.AdministeredOrgs,
		ExpiresAt:          claims.ExpiresAt.Time,
	}
}

func orgIDs(memberships []MembershipClaim) []string {
	ids := make([]string, 0, len(memberships))
	for _, m := range memberships {
		ids = append(ids, m.OrganizationID)
	}
	return ids
}

type errorResponse struct {
	Kind        string              `json:"kind"`
	Message     string              `json:"message"`
	FieldErrors map[string][]string `json:"fieldErrors,omitempty"`
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{
			Kind:    "bad_request",
			Message: "Invalid request body.",
		})
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{
			Kind:        "validation",
			Message:     "Validation failed.",
			FieldErrors: verrs.ByField(),
		})
		return
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		h.writeJSON(w, http.StatusUnauthorized, errorResponse{
			Kind:    "invalid_credentials",
			Message: "Invalid email, password, or verification code.",
		})
	case errors.Is(err, ErrNoPasswordConfigured):
		h.writeJSON(w, http.StatusUnauthorized, errorResponse{
			Kind:    "no_password",
			Message: "This account has no password. Sign in with the provider you signed up with.",
		})
	case errors.Is(err, ErrUnauthorized):
		h.writeJSON(w, http.StatusUnauthorized, errorResponse{
			Kind:    "unauthorized",
			Message: "Sign in required.",
		})
	// Only setup verification reports a bad code as such; sign-in folds
	// code failures into the uniform credentials denial above.
	case errors.Is(err, ErrInvalidCode):
		h.writeJSON(w, http.StatusBadRequest, errorResponse{
			Kind:    "invalid_code",
			Message: "The verification code is incorrect or expired.",
		})
	case errors.Is(err, ErrEmailAlreadyExists):
		h.writeJSON(w, http.StatusConflict, errorResponse{
			Kind:    "email_exists",
			Message: "An account with this email already exists.",
		})
	case errors.Is(err, ErrTwoFactorAlreadyEnabled):
		h.writeJSON(w, http.StatusConflict, errorResponse{
			Kind:    "already_enabled",
			Message: "Two-factor authentication is already enabled.",
		})
	case errors.Is(err, ErrUserNotFound):
		h.writeJSON(w, http.StatusNotFound, errorResponse{
			Kind:    "not_found",
			Message: "Account not found.",
		})
	case errors.Is(err, ErrSecretNotProvisioned):
		h.writeJSON(w, http.StatusNotFound, errorResponse{
			Kind:    "not_provisioned",
			Message: "Two-factor setup has not been started for this account.",
		})
	case errors.Is(err, ErrUnknownUpdateAction):
		h.writeJSON(w, http.StatusBadRequest, errorResponse{
			Kind:    "bad_request",
			Message: "Unknown session update action.",
		})
	default:
		h.log.Error("request failed", logger.Error(err))
		h.writeJSON(w, http.StatusInternalServerError, errorResponse{
			Kind:    "internal",
			Message: "Something went wrong. Please try again.",
		})
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Error("encode response", logger.Error(err))
	}
}
