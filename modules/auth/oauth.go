package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"

	"github.com/ralvo/ralvo/pkg/logger"
)

// ProviderProfile is the normalized identity returned by a provider adapter.
type ProviderProfile struct {
	ProviderUserID string
	Email          string
	EmailVerified  bool
	Name           string
}

// ProviderAdapter abstracts a single OAuth provider behind the two calls
// the sign-in flow needs.
type ProviderAdapter interface {
	ProviderID() string
	AuthURL(state string) string
	ResolveProfile(ctx context.Context, code string) (ProviderProfile, error)
}

type googleAdapter struct {
	conf       *oauth2.Config
	httpClient *http.Client
}

// NewGoogleAdapter creates the Google provider adapter.
func NewGoogleAdapter(clientID, clientSecret, redirectURL string) ProviderAdapter {
	return &googleAdapter{
		conf: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{"https://www.googleapis.com/auth/userinfo.email"},
			Endpoint:     google.Endpoint,
		},
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (a *googleAdapter) ProviderID() string { return ProviderGoogle }

func (a *googleAdapter) AuthURL(state string) string {
	return a.conf.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

type gUser struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
}

func (a *googleAdapter) ResolveProfile(ctx context.Context, code string) (ProviderProfile, error) {
	tok, err := a.conf.Exchange(ctx, code)
	if err != nil {
		return ProviderProfile{}, ErrInvalidGrant
	}

	var u gUser
	if err := a.fetchJSON(ctx, "https://www.googleapis.com/oauth2/v2/userinfo", tok.AccessToken, &u); err != nil {
		return ProviderProfile{}, fmt.Errorf("fetch google user: %w", err)
	}
	if u.Email == "" {
		return ProviderProfile{}, ErrNoProviderEmail
	}

	return ProviderProfile{
		ProviderUserID: u.ID,
		Email:          u.Email,
		EmailVerified:  u.VerifiedEmail,
		Name:           u.Name,
	}, nil
}

func (a *googleAdapter) fetchJSON(ctx context.Context, url, accessToken string, dst any) error {
	return fetchJSON(ctx, a.httpClient, url, accessToken, dst)
}

type githubAdapter struct {
	conf       *oauth2.Config
	httpClient *http.Client
}

// NewGithubAdapter creates the GitHub provider adapter.
func NewGithubAdapter(clientID, clientSecret, redirectURL string) ProviderAdapter {
	return &githubAdapter{
		conf: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{"user:email"},
			Endpoint:     github.Endpoint,
		},
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (a *githubAdapter) ProviderID() string { return ProviderGithub }

func (a *githubAdapter) AuthURL(state string) string {
	return a.conf.AuthCodeURL(state)
}

type ghUser struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type ghEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

func (a *githubAdapter) ResolveProfile(ctx context.Context, code string) (ProviderProfile, error) {
	tok, err := a.conf.Exchange(ctx, code)
	if err != nil {
		return ProviderProfile{}, ErrInvalidGrant
	}

	var u ghUser
	if err := fetchJSON(ctx, a.httpClient, "https://api.github.com/user", tok.AccessToken, &u); err != nil {
		return ProviderProfile{}, fmt.Errorf("fetch github user: %w", err)
	}

	// The /user endpoint may hide the email, so the emails endpoint is
	// the authoritative source for addresses and verification status.
	var emails []ghEmail
	if err := fetchJSON(ctx, a.httpClient, "https://api.github.com/user/emails", tok.AccessToken, &emails); err != nil {
		return ProviderProfile{}, fmt.Errorf("fetch github emails: %w", err)
	}

	var email string
	var verified bool
	for _, e := range emails {
		if e.Primary && e.Verified {
			email, verified = e.Email, true
			break
		}
	}
	if email == "" {
		for _, e := range emails {
			if e.Verified {
				email, verified = e.Email, true
				break
			}
		}
	}
	if email == "" {
		return ProviderProfile{}, ErrNoProviderEmail
	}

	return ProviderProfile{
		ProviderUserID: strconv.FormatInt(u.ID, 10),
		Email:          email,
		EmailVerified:  verified,
		Name:           u.Name,
	}, nil
}

func fetchJSON(ctx context.Context, client *http.Client, url, accessToken string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

// OAuthHandler drives the redirect dance for the configured providers and
// signs the caller in once the provider confirms an email. Sessions issued
// here carry TwoFactorVerified regardless of the account's TOTP settings
// because the provider already performed its own second factor.
type OAuthHandler struct {
	store     Store
	issuer    *TokenIssuer
	cfg       Config
	providers map[string]ProviderAdapter
	log       *slog.Logger
}

// NewOAuthHandler wires provider adapters into an HTTP handler.
func NewOAuthHandler(store Store, issuer *TokenIssuer, cfg Config, adapters []ProviderAdapter, opts ...OAuthHandlerOption) *OAuthHandler {
	h := &OAuthHandler{
		store:     store,
		issuer:    issuer,
		cfg:       cfg,
		providers: make(map[string]ProviderAdapter, len(adapters)),
		log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, a := range adapters {
		h.providers[a.ProviderID()] = a
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// OAuthHandlerOption configures optional OAuthHandler dependencies.
type OAuthHandlerOption func(*OAuthHandler)

func WithOAuthLogger(log *slog.Logger) OAuthHandlerOption {
	return func(h *OAuthHandler) {
		if log != nil {
			h.log = log.With(logger.Component("auth.oauth"))
		}
	}
}

const oauthStateCookie = "ralvo_oauth_state"

// Handle returns the provider routes ready to be mounted.
func (h *OAuthHandler) Handle() http.Handler {
	r := chi.NewRouter()

	r.Get("/{provider}", h.begin)
	r.Get("/{provider}/callback", h.callback)

	return r
}

func (h *OAuthHandler) begin(w http.ResponseWriter, r *http.Request) {
	adapter, ok := h.providers[chi.URLParam(r, "provider")]
	if !ok {
		http.NotFound(w, r)
		return
	}

	state, err := generateState()
	if err != nil {
		h.log.Error("generate oauth state", logger.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   int((10 * time.Minute).Seconds()),
		HttpOnly: true,
		Secure:   h.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, adapter.AuthURL(state), http.StatusTemporaryRedirect)
}

func (h *OAuthHandler) callback(w http.ResponseWriter, r *http.Request) {
	adapter, ok := h.providers[chi.URLParam(r, "provider")]
	if !ok {
		http.NotFound(w, r)
		return
	}

	cookie, err := r.Cookie(oauthStateCookie)
	if err != nil || cookie.Value == "" || cookie.Value != r.URL.Query().Get("state") {
		h.fail(w, ErrInvalidState, http.StatusBadRequest)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})

	profile, err := adapter.ResolveProfile(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidGrant), errors.Is(err, ErrNoProviderEmail):
			h.fail(w, err, http.StatusBadRequest)
		default:
			h.log.Error("resolve provider profile", logger.Error(err))
			h.fail(w, errors.New("provider request failed"), http.StatusBadGateway)
		}
		return
	}
	if !profile.EmailVerified {
		h.fail(w, ErrNoProviderEmail, http.StatusBadRequest)
		return
	}

	user, err := h.findOrCreate(r.Context(), profile.Email)
	if err != nil {
		h.log.Error("resolve oauth user", logger.Error(err))
		h.fail(w, errors.New("sign-in failed"), http.StatusInternalServerError)
		return
	}

	identity := &Identity{User: user, TwoFactorVerified: true}
	token, claims, err := h.issuer.Issue(r.Context(), identity, adapter.ProviderID())
	if err != nil {
		h.log.Error("issue session", logger.Error(err))
		h.fail(w, errors.New("sign-in failed"), http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  claims.ExpiresAt.Time,
		HttpOnly: true,
		Secure:   h.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/", http.StatusFound)
}

// findOrCreate matches provider accounts to local accounts by exact email.
// A created account has no password hash, so a later password sign-in
// attempt reports ErrNoPasswordConfigured rather than a generic denial.
func (h *OAuthHandler) findOrCreate(ctx context.Context, email string) (*User, error) {
	user, err := h.store.GetUserByEmail(ctx, email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	user = &User{
		ID:        uuid.New(),
		Email:     email,
		Role:      RoleUser,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.store.CreateUser(ctx, user); err != nil {
		// Lost a race with a concurrent signup; the existing row wins.
		if errors.Is(err, ErrEmailAlreadyExists) {
			return h.store.GetUserByEmail(ctx, email)
		}
		return nil, err
	}
	return user, nil
}

func (h *OAuthHandler) fail(w http.ResponseWriter, err error, status int) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Kind: "oauth", Message: err.Error()})
}

func generateState() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
