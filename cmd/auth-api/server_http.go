package main

import (
	"context"
	"net/http"
	"time"

	"github.com/NordCoder/doggy-auth/internal/auth"
	config "github.com/NordCoder/doggy-auth/internal/config/auth-api"
	domainauth "github.com/NordCoder/doggy-auth/internal/domain/auth"
	"github.com/NordCoder/doggy-auth/internal/domain/outbox"
	"github.com/NordCoder/doggy-auth/internal/obs"
	"github.com/NordCoder/doggy-auth/internal/ratelimit"
	authsvc "github.com/NordCoder/doggy-auth/internal/services/auth-api/auth"
	"go.uber.org/zap"
)

func buildHTTPServer(ctx context.Context, cfg *config.Config, logger *zap.Logger, st *storage, identity domainauth.IdentityVerifier) (*http.Server, error) {
	codec, err := auth.NewCodec(cfg.Auth.AsCodecConfig())
	if err != nil {
		return nil, config.ErrConfig("token codec: " + err.Error())
	}

	var events outbox.Sink
	if cfg.Outbox.Enable && st.outbox != nil {
		events = st.outbox
	}
	uc := authsvc.NewUseCase(authsvc.Deps{
		Identity:   identity,
		Codec:      codec,
		Users:      st.users,
		Tokens:     st.tokens,
		Transactor: st.tx,
		Events:     events,
		Logger:     logger,
	}, authsvc.Config{
		RotateRefreshOnUse:  cfg.Auth.RotateRefreshOnUse,
		RejectDisabledUsers: cfg.Auth.RejectDisabledUsers,
	})
	srv := authsvc.NewServer(uc, authsvc.Opts{
		Logger:         logger,
		CookieName:     cfg.Auth.CookieName,
		CookieDomain:   cfg.Auth.CookieDomain,
		CookiePath:     cfg.Auth.CookiePath,
		CookieSecure:   cfg.Auth.CookieSecure,
		CookieSameSite: cfg.Auth.SameSite(),
		RefreshTTL:     cfg.Auth.RefreshTTL(),
	})

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enable {
		limiter = initLimiter(ctx, cfg, st, logger)
	}

	handler := authsvc.NewRouter(srv, authsvc.RouterOpts{
		Logger:     logger,
		APIPrefix:  cfg.Server.APIPrefix,
		TrustProxy: cfg.RateLimit.TrustProxy,
		Limiter:    limiter,
	})

	return &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           obs.HTTPHandler(handler, "auth-api"),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}, nil
}

// initLimiter picks the counter store and starts its sweeper, which stops with ctx.
func initLimiter(ctx context.Context, cfg *config.Config, st *storage, logger *zap.Logger) *ratelimit.Limiter {
	var store counterStore = ratelimit.NewMemoryStore()
	if cfg.RateLimit.Store == config.CounterStoreDatabase {
		store = st.counters
	}
	lim := ratelimit.New(store, cfg.RateLimit.AsLimiterConfig(), logger)
	go ratelimit.Sweep(ctx, store, cfg.RateLimit.SweepInterval, lim.Now, logger)

	logger.Info("rate limiting enabled",
		zap.String("store", cfg.RateLimit.Store),
		zap.Int64("limit", cfg.RateLimit.Limit),
		zap.Duration("window", cfg.RateLimit.Window),
	)
	return lim
}

func serveHTTP(srv *http.Server, logger *zap.Logger) error {
	logger.Info("http listening", zap.String("addr", srv.Addr))
	return srv.ListenAndServe()
}
