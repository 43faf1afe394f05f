package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hackgods/telehealth-scheduling/pkg/logging"
)

type RouterConfig struct {
	Bookings   BookingService
	Credits    CreditReader
	Chat       ChatService
	Health     *HealthHandler
	Metrics    http.Handler
	AuthSecret string
	Logger     *logging.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))

	if cfg.Health != nil {
		r.Get("/health/live", cfg.Health.Liveness)
		r.Get("/health/ready", cfg.Health.Readiness)
	}
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(cfg.AuthSecret))

		r.Get("/doctors/{id}", getDoctorHandler(cfg.Bookings, logger))
		r.Get("/doctors/{id}/slots", doctorSlotsHandler(cfg.Bookings, logger))

		r.Post("/appointments", createAppointmentHandler(cfg.Bookings, logger))
		r.Get("/appointments", listAppointmentsHandler(cfg.Bookings, logger))
		r.Get("/appointments/{id}", getAppointmentHandler(cfg.Bookings, logger))
		r.Post("/appointments/{id}/join-token", joinTokenHandler(cfg.Bookings, logger))

		r.Get("/me/credits", creditsHandler(cfg.Credits, logger))
		r.Post("/chat", chatHandler(cfg.Chat, logger))
	})

	return r
}
