package outbox

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/NordCoder/doggy-auth/internal/domain/outbox"
	"github.com/NordCoder/doggy-auth/internal/obs"
	"github.com/NordCoder/doggy-auth/internal/obs/retry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var (
	runnerPicked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outbox_picked_total", Help: "Messages picked into processing.",
	})
	runnerOK = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outbox_processed_ok_total", Help: "Messages processed successfully.",
	})
	runnerErr = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outbox_processed_err_total", Help: "Handler errors.",
	})
	runnerTickDur = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "outbox_tick_duration_seconds", Help: "Tick duration.",
		Buckets: prometheus.DefBuckets,
	})
	runnerBatchSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "outbox_last_batch_size", Help: "Size of last picked batch.",
	})
)

// Runner relays outbox rows to their handlers. Each worker picks its own batch;
// rows are locked with SKIP LOCKED so workers never share a message.
type Runner struct {
	log      *zap.Logger
	repo     outbox.Repository
	dispatch outbox.GlobalHandler

	workers       int
	batchSize     int
	waitTime      time.Duration
	inProgressTTL time.Duration

	mPicked    prometheus.Counter
	mOk        prometheus.Counter
	mErr       prometheus.Counter
	mTickDur   prometheus.Histogram
	mBatchSize prometheus.Gauge

	wg sync.WaitGroup
}

func NewOutboxRunner(
	log *zap.Logger,
	repo outbox.Repository,
	dispatch outbox.GlobalHandler,
	workers int,
	batchSize int,
	waitTime time.Duration,
	inProgressTTL time.Duration,
) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	if waitTime <= 0 {
		waitTime = time.Second
	}
	return &Runner{
		log: log, repo: repo, dispatch: dispatch,
		workers: workers, batchSize: batchSize, waitTime: waitTime, inProgressTTL: inProgressTTL,
		mPicked: runnerPicked, mOk: runnerOK, mErr: runnerErr,
		mTickDur: runnerTickDur, mBatchSize: runnerBatchSize,
	}
}

func (r *Runner) Start(ctx context.Context) {
	if r.workers <= 0 {
		r.workers = 1
	}
	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go r.worker(ctx)
	}
}

// Wait blocks until every worker has returned after ctx cancellation.
func (r *Runner) Wait() { r.wg.Wait() }

func (r *Runner) worker(ctx context.Context) {
	defer r.wg.Done()
	r.log.Info("outbox worker started", zap.String("wait_ms", strconv.FormatInt(r.waitTime.Milliseconds(), 10)))

	ticker := time.NewTicker(r.waitTime)
	defer ticker.Stop()

	tr := otel.Tracer("outbox.runner")
	prop := otel.GetTextMapPropagator()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("outbox worker stop")
			return

		case <-ticker.C:
			r.tick(ctx, tr, prop)
		}
	}
}

func (r *Runner) tick(ctx context.Context, tr trace.Tracer, prop propagation.TextMapPropagator) {
	t0 := time.Now()
	defer func() { r.mTickDur.Observe(time.Since(t0).Seconds()) }()

	ctxSpan, span := tr.Start(ctx, "outbox.tick")
	defer span.End()
	span.SetAttributes(
		attribute.Int("batch.limit", r.batchSize),
		attribute.String("in_progress_ttl", r.inProgressTTL.String()),
	)

	messages, err := r.repo.PickBatch(ctxSpan, r.batchSize, r.inProgressTTL)
	if err != nil {
		span.RecordError(err)
		r.mErr.Inc()
		obs.WithTrace(ctxSpan, r.log).Error("outbox pick error", zap.Error(err))
		return
	}
	r.mPicked.Add(float64(len(messages)))
	r.mBatchSize.Set(float64(len(messages)))
	if len(messages) == 0 {
		return
	}

	done := make([]string, 0, len(messages))
	for _, m := range messages {
		if r.dispatchOne(tr, prop, m) {
			done = append(done, m.IdempotencyKey)
		}
	}

	if err := r.repo.MarkSuccess(ctxSpan, done); err != nil {
		span.RecordError(err)
		r.mErr.Inc()
		obs.WithTrace(ctxSpan, r.log).Error("mark success error", zap.Error(err))
	}
}

// dispatchOne reports whether the message can leave the outbox. Poison messages
// are dropped after logging; anything else stays for the next pick.
func (r *Runner) dispatchOne(tr trace.Tracer, prop propagation.TextMapPropagator, m outbox.Message) bool {
	parent := prop.Extract(context.Background(), propagation.MapCarrier{
		"traceparent": m.Traceparent,
		"tracestate":  m.Tracestate,
		"baggage":     m.Baggage,
	})

	msgCtx, msgSpan := tr.Start(parent, "outbox.dispatch",
		trace.WithAttributes(
			attribute.String("outbox.key", m.IdempotencyKey),
			attribute.Int("outbox.kind", int(m.Kind)),
		),
	)
	defer msgSpan.End()

	handler, herr := r.dispatch(m.Kind)
	if herr != nil {
		msgSpan.RecordError(herr)
		r.mErr.Inc()
		obs.WithTrace(msgCtx, r.log).Error("no handler for kind",
			zap.Int("kind", int(m.Kind)), zap.Error(herr))
		return false
	}

	if err := handler(msgCtx, m.Data); err != nil {
		msgSpan.RecordError(err)
		r.mErr.Inc()
		if errors.Is(err, retry.ErrPermanent) {
			obs.WithTrace(msgCtx, r.log).Error("dropping undeliverable message",
				zap.String("key", m.IdempotencyKey), zap.Int("kind", int(m.Kind)), zap.Error(err))
			return true
		}
		obs.WithTrace(msgCtx, r.log).Error("handler error",
			zap.Int("kind", int(m.Kind)), zap.Error(err))
		return false
	}

	r.mOk.Inc()
	return true
}
