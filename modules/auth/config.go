package auth

import "time"

// Config carries the auth module settings loaded from the environment.
type Config struct {
	SessionSecret string        `env:"SESSION_SECRET,required"`
	SessionTTL    time.Duration `env:"SESSION_TTL" envDefault:"24h"`
	CookieName    string        `env:"SESSION_COOKIE_NAME" envDefault:"ralvo_session"`
	SecureCookies bool          `env:"SECURE_COOKIES" envDefault:"true"`

	TOTPIssuer string `env:"TOTP_ISSUER" envDefault:"Ralvo"`
	BcryptCost int    `env:"BCRYPT_COST" envDefault:"12"`
	QRCodeSize int    `env:"QR_CODE_SIZE" envDefault:"256"`

	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURL  string `env:"GOOGLE_REDIRECT_URL"`

	GithubClientID     string `env:"GITHUB_CLIENT_ID"`
	GithubClientSecret string `env:"GITHUB_CLIENT_SECRET"`
	GithubRedirectURL  string `env:"GITHUB_REDIRECT_URL"`
}
