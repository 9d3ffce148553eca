package httpx

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	domainauth "github.com/NordCoder/doggy-auth/internal/domain/auth"
	"github.com/NordCoder/doggy-auth/internal/obs"
	"github.com/NordCoder/doggy-auth/internal/ratelimit"
)

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		return rc.RoutePattern()
	}
	return ""
}

// Observe writes one access log line and the HTTP metrics per request.
func Observe(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			took := time.Since(start)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := routePattern(r)
			obs.ObserveHTTP(r.Method, route, status, took)
			obs.WithTrace(r.Context(), log).Info("http",
				zap.String("method", r.Method),
				zap.String("route", route),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("took", took),
				zap.String("client", ClientKey(r)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

// Recover turns a handler panic into a 500 envelope.
func Recover(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if p := recover(); p != nil {
					if p == http.ErrAbortHandler {
						panic(p)
					}
					obs.WithTrace(r.Context(), log).Error("panic", zap.Any("panic", p), zap.Stack("stack"))
					Write(w, http.StatusInternalServerError, "Internal server error", nil)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// ClientKey is the host part of RemoteAddr. Behind a trusted proxy RealIP has
// already rewritten RemoteAddr.
func ClientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimit rejects requests over the limiter's budget with 429 and advertises the
// budget on every response.
func RateLimit(l *ratelimit.Limiter, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d, _ := l.Allow(r.Context(), ClientKey(r))
			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.FormatInt(d.Limit, 10))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
			if !d.Allowed {
				h.Set("Retry-After", strconv.Itoa(int(d.RetryAfter(l.Now()).Seconds())))
				Error(w, r, log, domainauth.ErrTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
