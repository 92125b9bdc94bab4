package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/clinicbook/booking-engine/internal/booking"
	"github.com/clinicbook/booking-engine/internal/config"
)

type RouterConfig struct {
	Service *booking.Service
	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Cfg     config.Config
	Version string
}

func NewRouter(rc RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)

	// Health and metrics
	health := NewHealthHandler(rc.PgPool, rc.Redis, rc.Cfg.Env, rc.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Handle("/metrics", promhttp.Handler())

	// Booking
	r.Post("/appointments", bookAppointmentHandler(rc.Service))
	r.Get("/appointments/{id}", getAppointmentHandler(rc.Service))
	r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(rc.Service))
	r.Get("/doctors/{id}/appointments", listDayHandler(rc.Service))

	// Reminders, for an external notifier polling the engine
	r.Get("/reminders/due", dueRemindersHandler(rc.Service, rc.Cfg.Lookahead))
	r.Post("/reminders/{id}/sent", markReminderSentHandler(rc.Service))

	// Monthly reports
	r.Get("/doctors/{id}/reports/{year}/{month}", getReportHandler(rc.Service))
	r.Post("/doctors/{id}/reports/{year}/{month}", generateReportHandler(rc.Service))

	return r
}
