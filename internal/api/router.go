package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/medicare-wellness/clinic-scheduling/internal/assistant"
	"github.com/medicare-wellness/clinic-scheduling/internal/clinic"
	"github.com/medicare-wellness/clinic-scheduling/internal/webhook"
	"github.com/medicare-wellness/clinic-scheduling/pkg/logging"
)

type RouterConfig struct {
	Repo       clinic.Repository
	Reconciler *clinic.Reconciler
	Webhook    *webhook.Handler
	Assistant  *assistant.Service // nil when no API key is configured
	PgPool     *pgxpool.Pool
	Redis      *redis.Client
	Env        string
	Version    string
	Logger     *logging.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}

	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Route("/api", func(r chi.Router) {
		r.Post("/webhooks/calendly", cfg.Webhook.Handle)

		r.Post("/patients", registerPatientHandler(cfg.Reconciler))
		r.Post("/verify-patient", verifyPatientHandler(cfg.Repo))
		r.Get("/doctors", listDoctorsHandler(cfg.Repo))

		r.Post("/recommend-doctor", recommendDoctorHandler(cfg.Assistant, cfg.Repo))
		r.Post("/chat", chatHandler(cfg.Assistant, cfg.Repo))

		r.Route("/admin", func(r chi.Router) {
			r.Get("/appointments", listAppointmentsHandler(cfg.Repo))
			r.Get("/doctor-stats", doctorStatsHandler(cfg.Repo))
			r.Get("/patients", listPatientsHandler(cfg.Repo))
			r.Get("/patients/{id}/appointments", patientAppointmentsHandler(cfg.Repo))
		})
	})

	return r
}
