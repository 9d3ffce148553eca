package main

import (
	"context"

	config "github.com/NordCoder/doggy-auth/internal/config/auth-api"
	"github.com/NordCoder/doggy-auth/internal/obs/retry"
	outboxsvc "github.com/NordCoder/doggy-auth/internal/outbox"
	kafkax "github.com/NordCoder/doggy-auth/internal/repository/kafka"
	"go.uber.org/zap"
)

// startOutbox relays recorded auth events to Kafka until ctx is done. The returned
// func waits for the workers and closes the producer.
func startOutbox(ctx context.Context, cfg *config.Config, st *storage, logger *zap.Logger) func() {
	if !cfg.Outbox.Enable || st.outbox == nil {
		return func() {}
	}

	producer := kafkax.BootstrapProducer(ctx, cfg.Kafka.AsProducerConfig(), logger)
	dispatch := outboxsvc.MakeGlobalOutboxHandler(
		kafkax.NewAuthEvents(producer),
		retry.PublishPolicy("outbox_auth_events", logger),
	)
	runner := outboxsvc.NewOutboxRunner(
		logger.With(zap.String("component", "outbox")),
		st.outbox,
		dispatch,
		cfg.Outbox.Workers,
		cfg.Outbox.BatchSize,
		cfg.Outbox.WaitTime,
		cfg.Outbox.InProgressTTL,
	)
	runner.Start(ctx)
	logger.Info("outbox relay started", zap.String("topic", cfg.Kafka.Topic), zap.Int("workers", cfg.Outbox.Workers))

	return func() {
		runner.Wait()
		if err := producer.Close(); err != nil {
			logger.Warn("kafka producer close", zap.Error(err))
		}
	}
}
