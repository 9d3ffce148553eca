package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type ProducerConfig struct {
	Brokers           []string
	Topic             string
	Partitions        int
	ReplicationFactor int
}

// BootstrapProducer makes a best effort to create the topic, then returns a producer for it.
func BootstrapProducer(ctx context.Context, cfg ProducerConfig, logger *zap.Logger) *Producer {
	if err := EnsureTopic(ctx, cfg.Brokers, TopicSpec{
		Name:              cfg.Topic,
		NumPartitions:     cfg.Partitions,
		ReplicationFactor: cfg.ReplicationFactor,
		MaxWait:           5 * time.Second,
	}, logger); err != nil {
		logger.Warn("ensure topic", zap.String("topic", cfg.Topic), zap.Error(err))
	}
	return NewProducer(cfg.Brokers, cfg.Topic).WithLogger(logger)
}
