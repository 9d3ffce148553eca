package main

import (
	"context"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	kafkax "github.com/NordCoder/doggy-auth/internal/repository/kafka"
)

func main() {
	brokers := strings.Split(env("KAFKA_BROKERS", "kafka:9092"), ",")
	topic := env("KAFKA_TOPIC", "auth.events")
	partitions := envInt("KAFKA_PARTITIONS", 1)
	rf := envInt("KAFKA_RF", 1)

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if err := kafkax.EnsureTopic(ctx, brokers, kafkax.TopicSpec{
		Name:              topic,
		NumPartitions:     partitions,
		ReplicationFactor: rf,
		MaxWait:           30 * time.Second,
	}, logger); err != nil {
		logger.Fatal("ensure topic", zap.String("topic", topic), zap.Error(err))
	}
	logger.Info("kafka-init ok", zap.String("topic", topic))
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, _ := strconv.Atoi(v); n > 0 {
			return n
		}
	}
	return def
}
