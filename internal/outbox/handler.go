package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/NordCoder/doggy-auth/internal/domain/outbox"
	"github.com/NordCoder/doggy-auth/internal/obs/retry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// Publisher is the broker side of the relay.
type Publisher interface {
	PublishRaw(ctx context.Context, userID, eventType string, data json.RawMessage) error
}

var (
	outboxHandlerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "outbox_handler_latency_seconds",
		Help:    "Latency of outbox handlers including retries.",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})
	outboxHandlerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_handler_errors_total",
		Help: "Errors in outbox handlers (after retries).",
	}, []string{"kind"})
)

func instrument(kind string, h outbox.KindHandler, pol retry.Policy) outbox.KindHandler {
	tr := otel.Tracer("outbox.handler")
	if pol.Name == "" {
		pol.Name = "outbox_" + kind
	}
	return func(ctx context.Context, data []byte) error {
		ctx, span := tr.Start(ctx, "outbox.handle")
		span.SetAttributes(attribute.String("outbox.kind", kind))
		defer span.End()

		start := time.Now()
		err := retry.Do(ctx, func() error { return h(ctx, data) }, pol)
		outboxHandlerLatency.WithLabelValues(kind).Observe(time.Since(start).Seconds())
		if err != nil {
			span.RecordError(err)
			outboxHandlerErrors.WithLabelValues(kind).Inc()
		}
		return err
	}
}

// relay forwards the stored payload untouched. A payload that does not decode is
// never going to publish, so it fails without retries.
func relay(pub Publisher, kind outbox.Kind) outbox.KindHandler {
	return func(ctx context.Context, data []byte) error {
		var ev outbox.AuthEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return retry.Permanent(fmt.Errorf("unmarshal %s payload: %w", kind, err))
		}
		if ev.UserID == "" {
			return retry.Permanent(fmt.Errorf("%s payload: empty user_id", kind))
		}
		return pub.PublishRaw(ctx, ev.UserID, kind.String(), data)
	}
}

func MakeGlobalOutboxHandler(pub Publisher, pol retry.Policy) outbox.GlobalHandler {
	return func(kind outbox.Kind) (outbox.KindHandler, error) {
		switch kind {
		case outbox.KindUserCreated, outbox.KindSessionIssued, outbox.KindSessionRevoked:
			return instrument(kind.String(), relay(pub, kind), pol), nil
		default:
			return nil, fmt.Errorf("unsupported outbox kind: %d", kind)
		}
	}
}
