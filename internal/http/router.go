package http

import (
	"net/http"
	"time"

	"github.com/fjod/go_cart/storefront/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Sessions interface {
	SessionOpener
	SessionEnder
}

type RouterConfig struct {
	Sessions           Sessions
	Attempts           AttemptLister
	Logger             zerolog.Logger
	SessionCookieName  string
	SecureCookies      bool
	RequestTimeout     time.Duration
	MaxRequestBodySize int64
}

func NewRouter(cfg RouterConfig) http.Handler {
	cartHandler := NewCartHandler()
	checkoutHandler := NewCheckoutHandler(cfg.Attempts)
	accountHandler := NewAccountHandler(cfg.Sessions)

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(middleware.Compress(5))
	r.Use(BodyLimit(cfg.MaxRequestBodySize))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(SessionMiddleware(cfg.Sessions, cfg.SessionCookieName, cfg.SecureCookies))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartHandler.GetCart)
			r.Get("/summary", cartHandler.GetSummary)
			r.Post("/refresh", cartHandler.Refresh)
		})
		r.Route("/checkout", func(r chi.Router) {
			r.Get("/", checkoutHandler.GetCheckout)
			r.Post("/", checkoutHandler.Submit)
			r.Get("/attempts", checkoutHandler.ListAttempts)
		})
		r.Post("/login", accountHandler.Login)
		r.Get("/account", accountHandler.GetAccount)
		r.Post("/logout", accountHandler.Logout)
	})

	return otelhttp.NewHandler(r, "storefront")
}

var _ Sessions = (*session.Manager)(nil)
