package main

import (
	"masterbook/internal/calendars/handler"
	"masterbook/internal/calendars/repository"
	"masterbook/internal/calendars/service"
	"masterbook/internal/calendars/validator"
	"masterbook/pkg/app"
	"masterbook/pkg/config"
)

const ServiceName = "calendars"

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()
	cfg.SetRedis()

	cfg.Log.Info("Starting Calendars service")
	calendarService := initServices(cfg)
	serverApp := app.NewApplication(cfg)
	serverApp.SetApp(handler.NewCalendarHandler(calendarService, cfg.Log))
	serverApp.Run()
}

func initServices(cfg *config.Config) service.CalendarService {
	calendarService := service.NewCalendarService(
		repository.NewMongoCalendarRepository(cfg),
		validator.NewCalendarValidator(cfg.Log),
		cfg,
	)

	cfg.Log.Info("Calendar service initialized", "database", cfg.MongoDatabaseName)
	return calendarService
}
