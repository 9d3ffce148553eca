package ratelimit

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/NordCoder/doggy-auth/internal/domain/ratelimit"
	"github.com/NordCoder/doggy-auth/internal/obs"
)

const keyPrefix = "rate_limit:"

var (
	decisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ratelimit_decisions_total",
		Help: "Rate limiter decisions by result.",
	}, []string{"result"})
	storeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ratelimit_store_errors_total",
		Help: "Counter store failures (request let through).",
	})
)

type Config struct {
	Limit  int64
	Window time.Duration
	Now    func() time.Time
}

type Decision struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetAt   time.Time
}

// RetryAfter is the wait until the current window closes, rounded up to a second.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	wait := d.ResetAt.Sub(now)
	if wait <= 0 {
		return time.Second
	}
	if r := wait % time.Second; r != 0 {
		wait += time.Second - r
	}
	return wait
}

// Limiter allows Limit requests per key in each fixed Window.
type Limiter struct {
	store  ratelimit.CounterStore
	limit  int64
	window time.Duration
	now    func() time.Time
	log    *zap.Logger
}

func New(store ratelimit.CounterStore, cfg Config, log *zap.Logger) *Limiter {
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Limiter{
		store:  store,
		limit:  cfg.Limit,
		window: cfg.Window,
		now:    cfg.Now,
		log:    log.With(zap.String("component", "ratelimit")),
	}
}

func (l *Limiter) Now() time.Time { return l.now() }

// Allow counts one request for key. A failing counter store lets the request
// through; the failure is logged and counted.
func (l *Limiter) Allow(ctx context.Context, key string) (Decision, error) {
	now := l.now()
	count, end, err := l.store.Incr(ctx, keyPrefix+key, l.window, now)
	if err != nil {
		storeErrors.Inc()
		decisions.WithLabelValues("error").Inc()
		obs.WithTrace(ctx, l.log).Warn("counter store failed", zap.String("key", key), zap.Error(err))
		return Decision{Allowed: true, Limit: l.limit, Remaining: l.limit}, err
	}

	d := Decision{
		Allowed:   count <= l.limit,
		Limit:     l.limit,
		Remaining: max(l.limit-count, 0),
		ResetAt:   end,
	}
	if d.Allowed {
		decisions.WithLabelValues("allowed").Inc()
	} else {
		decisions.WithLabelValues("rejected").Inc()
	}
	return d, nil
}
