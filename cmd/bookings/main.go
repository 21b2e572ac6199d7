package main

import (
	"context"
	"time"

	"masterbook/internal/availability"
	"masterbook/internal/bookings/handler"
	"masterbook/internal/bookings/repository"
	"masterbook/internal/bookings/service"
	"masterbook/internal/bookings/statemachine"
	"masterbook/internal/bookings/validator"
	calendarrepository "masterbook/internal/calendars/repository"
	"masterbook/internal/integrations/payment"
	"masterbook/internal/integrations/stream"
	"masterbook/pkg/app"
	"masterbook/pkg/config"
	"masterbook/pkg/events"
	"masterbook/pkg/kafka"
	kafka_config "masterbook/pkg/kafka/config"
	kafka_middleware "masterbook/pkg/kafka/middleware"
)

const ServiceName = "bookings"

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()
	cfg.SetRedis()

	cfg.Log.Info("Starting Bookings service")
	serverApp := app.NewApplication(cfg)

	bus := events.NewBus(cfg.Log)
	schedulingService := initServices(cfg, bus)
	initCollaborators(cfg, bus, serverApp)
	serverApp.OnShutdown(func(context.Context) { bus.Wait() })

	serverApp.SetApp(handler.NewBookingHandler(schedulingService, cfg.Log))
	serverApp.Run()
}

func initServices(cfg *config.Config, bus *events.Bus) service.SchedulingService {
	locker := repository.NewMongoProviderLocker(cfg)
	store := repository.NewMongoBookingStore(cfg, locker)
	if cfg.Client.Redis != nil {
		store = repository.NewCachedBookingStore(store, cfg.Client.Redis, cfg.CacheTTL, cfg.Log)
	}

	engine := availability.NewEngine(
		calendarrepository.NewMongoCalendarRepository(cfg),
		store,
		availability.Options{
			Granularity: cfg.SlotGranularityMin,
			LeadTime:    cfg.LeadTime,
		},
	)

	schedulingService := service.NewSchedulingService(
		store,
		engine,
		statemachine.New(time.Now),
		bus,
		validator.NewBookingValidator(cfg.Log),
		cfg,
	)

	cfg.Log.Info("Scheduling service initialized", "database", cfg.MongoDatabaseName)
	return schedulingService
}

// initCollaborators wires payments, notifications and analytics to the bus.
// Without Stripe or Kafka settings they fall back to log-only variants.
func initCollaborators(cfg *config.Config, bus *events.Bus, serverApp *app.Application) {
	var collaborators service.Collaborators

	if cfg.StripeSecretKey != "" {
		collaborators.Payments = payment.NewStripeGateway(cfg.StripeSecretKey, cfg.Log)
	} else {
		collaborators.Payments = payment.NewLogGateway(cfg.Log)
	}

	if kafka_config.Enabled() {
		kcfg := kafka_config.Load(cfg.Log)
		metrics := &kafka_middleware.Metrics{}

		bookingEvents := newProducer(kcfg, kcfg.BookingEventsTopic, cfg, metrics)
		conversions := newProducer(kcfg, kcfg.ConversionsTopic, cfg, metrics)

		publisher := stream.NewPublisher(bookingEvents, conversions, ServiceName)
		collaborators.Notifier = publisher
		collaborators.Analytics = publisher

		serverApp.OnShutdown(func(context.Context) {
			metrics.Log(cfg.Log)
			for _, p := range []*kafka.Producer{bookingEvents, conversions} {
				if err := p.Close(); err != nil {
					cfg.Log.Error("Failed to close Kafka producer", "topic", p.Topic(), "error", err)
				}
			}
		})
	} else {
		sink := stream.NewLogSink(cfg.Log)
		collaborators.Notifier = sink
		collaborators.Analytics = sink
	}

	service.RegisterCollaborators(bus, collaborators, cfg.Log)
}

func newProducer(kcfg *kafka_config.Config, topic string, cfg *config.Config, metrics *kafka_middleware.Metrics) *kafka.Producer {
	producer, err := kafka.NewProducer(kcfg, topic, kcfg.BookingEventsDLQTopic, cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka producer", "topic", topic, "error", err)
	}
	producer.Use(kafka_middleware.LoggingProducerMiddleware(cfg.Log))
	producer.Use(metrics.Producer())
	return producer
}
