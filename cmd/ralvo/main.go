package main

import (
	"context"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ralvo/ralvo/modules/auth"
	"github.com/ralvo/ralvo/pkg/config"
	"github.com/ralvo/ralvo/pkg/httpserver"
	"github.com/ralvo/ralvo/pkg/logger"
	"github.com/ralvo/ralvo/pkg/pg"
)

type appConfig struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"ralvo"`
}

func main() {
	var (
		appCfg  appConfig
		dbCfg   pg.Config
		httpCfg httpserver.Config
		authCfg auth.Config
	)
	config.MustLoad(&appCfg)
	config.MustLoad(&dbCfg)
	config.MustLoad(&httpCfg)
	config.MustLoad(&authCfg)

	log := logger.New(logger.WithEnvironment(appCfg.Environment, appCfg.ServiceName))
	logger.SetAsDefault(log)

	ctx := context.Background()

	pool, err := pg.Connect(ctx, dbCfg)
	if err != nil {
		log.Error("connect to database", logger.Error(err))
		os.Exit(1)
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, dbCfg, log); err != nil {
		log.Error("run migrations", logger.Error(err))
		os.Exit(1)
	}

	store := auth.NewPostgresStore(pool)

	svc := auth.NewService(store, authCfg.TOTPIssuer,
		auth.WithServiceLogger(log),
		auth.WithBcryptCost(authCfg.BcryptCost),
		auth.WithQRCodeSize(authCfg.QRCodeSize),
	)

	issuer, err := auth.NewTokenIssuer(store, authCfg.SessionSecret,
		auth.WithSessionTTL(authCfg.SessionTTL),
		auth.WithIssuerLogger(log),
	)
	if err != nil {
		log.Error("create token issuer", logger.Error(err))
		os.Exit(1)
	}

	var adapters []auth.ProviderAdapter
	if authCfg.GoogleClientID != "" {
		adapters = append(adapters, auth.NewGoogleAdapter(
			authCfg.GoogleClientID, authCfg.GoogleClientSecret, authCfg.GoogleRedirectURL,
		))
	}
	if authCfg.GithubClientID != "" {
		adapters = append(adapters, auth.NewGithubAdapter(
			authCfg.GithubClientID, authCfg.GithubClientSecret, authCfg.GithubRedirectURL,
		))
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", healthz(pg.Healthcheck(pool)))

	r.Mount("/auth", auth.Router(auth.RouterOptions{
		Password: auth.NewHandler(svc, issuer, authCfg, auth.WithHandlerLogger(log)),
		OAuth:    auth.NewOAuthHandler(store, issuer, authCfg, adapters, auth.WithOAuthLogger(log)),
	}))

	srv := httpserver.New(httpCfg, log)
	if err := srv.Run(ctx, r); err != nil {
		log.Error("server stopped", logger.Error(err))
		os.Exit(1)
	}
}

func healthz(check func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := check(r.Context()); err != nil {
			http.Error(w, "unhealthy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}
