package auth

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/NordCoder/doggy-auth/internal/ratelimit"
	"github.com/NordCoder/doggy-auth/internal/services/auth-api/httpx"
)

type RouterOpts struct {
	Logger     *zap.Logger
	APIPrefix  string
	TrustProxy bool
	// Limiter is nil when rate limiting is disabled.
	Limiter *ratelimit.Limiter
}

// NewRouter assembles the HTTP surface: the welcome route at the root and the
// auth routes under the api prefix, all behind the rate limiter.
func NewRouter(s *Server, o RouterOpts) http.Handler {
	log := o.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if o.APIPrefix == "" {
		o.APIPrefix = "/api/v1/auth"
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if o.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(httpx.Observe(log))
	r.Use(httpx.Recover(log))
	if o.Limiter != nil {
		r.Use(httpx.RateLimit(o.Limiter, log))
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httpx.Write(w, http.StatusNotFound, "Not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httpx.Write(w, http.StatusMethodNotAllowed, "Method not allowed", nil)
	})

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		httpx.OK(w, "Welcome to doggy-auth", nil)
	})
	r.Mount(o.APIPrefix, s.Routes())
	return r
}
