package auth

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Mountable is anything that can expose itself as an http.Handler.
type Mountable interface {
	Handle() http.Handler
}

// RouterOptions configures which services to mount in the auth module.
// Each service is optional and will only be mounted if provided.
type RouterOptions struct {
	Password Mountable
	OAuth    Mountable
}

// Router creates the auth module router with the configured services.
//
// Example:
//
//	handler := auth.NewHandler(svc, issuer, cfg)
//	oauth := auth.NewOAuthHandler(store, issuer, cfg, adapters)
//
//	r := chi.NewRouter()
//	r.Mount("/auth", auth.Router(auth.RouterOptions{
//	    Password: handler,
//	    OAuth:    oauth,
//	}))
func Router(opts RouterOptions) chi.Router {
	r := chi.NewRouter()

	if opts.Password != nil {
		r.Mount("/", opts.Password.Handle())
	}
	if opts.OAuth != nil {
		r.Mount("/oauth", opts.OAuth.Handle())
	}

	return r
}
