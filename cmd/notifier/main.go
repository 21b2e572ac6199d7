package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"masterbook/internal/integrations/stream"
	"masterbook/pkg/config"
	"masterbook/pkg/kafka"
	kafka_config "masterbook/pkg/kafka/config"
	kafka_middleware "masterbook/pkg/kafka/middleware"
)

const ServiceName = "notifier"

func main() {
	cfg := config.Load(ServiceName)
	if !kafka_config.Enabled() {
		cfg.Log.Fatal("Notifier requires KAFKA_BROKERS")
	}
	kcfg := kafka_config.Load(cfg.Log)

	dispatcher := stream.NewDispatcher(stream.NewLogSender(cfg.Log), cfg.Log)
	consumer, err := kafka.NewConsumer(
		kcfg,
		kcfg.BookingEventsTopic,
		kcfg.NotifierGroupID,
		kcfg.BookingEventsDLQTopic,
		dispatcher.Handle,
		cfg.Log,
	)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka consumer", "error", err)
	}

	metrics := &kafka_middleware.Metrics{}
	consumer.Use(kafka_middleware.LoggingConsumerMiddleware(cfg.Log))
	consumer.Use(metrics.Consumer())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg.Log.Info("Starting notifier",
		"topic", kcfg.BookingEventsTopic,
		"group_id", kcfg.NotifierGroupID,
	)
	if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		cfg.Log.Error("Consumer stopped with error", "error", err)
	}

	cfg.Log.Info("Shutting down notifier")
	metrics.Log(cfg.Log)
	if err := consumer.Close(); err != nil {
		cfg.Log.Error("Failed to close Kafka consumer", "error", err)
	}
}
