package http

import (
	"net/http"

	"clipqc/internal/auth"
	"clipqc/internal/config"
	"clipqc/internal/dlq"
	"clipqc/internal/http/handler"
	mw "clipqc/internal/http/middleware"
	"clipqc/internal/jobs"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"gorm.io/gorm"
)

func NewRouter(cfg config.Config, db *gorm.DB, jwtSvc *auth.JWT) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(mw.CORS(cfg.CORSAllowedOrigins, cfg.CORSAllowCredentials))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	jobsRepo := &jobs.Repo{DB: db}
	intake := &jobs.Intake{Repo: jobsRepo, MaxAttempts: cfg.MaxAttempts}
	dlqSvc := &dlq.Service{Repo: &dlq.Repo{DB: db}, Jobs: jobsRepo, Intake: intake}

	jh := &handler.JobHandler{Intake: intake, Repo: jobsRepo}
	r.Route("/jobs", func(r chi.Router) {
		r.Use(auth.RequireAuth(jwtSvc))

		r.Post("/", jh.Submit)
		r.Get("/", jh.List)

		r.Get("/cancel", jh.ListCancellable)
		r.Post("/cancel", jh.Cancel)

		r.Get("/{id}", jh.Get)
	})

	dh := &handler.DLQHandler{Svc: dlqSvc}
	r.Route("/dlq", func(r chi.Router) {
		r.Use(auth.RequireAuth(jwtSvc))
		r.Use(auth.RequireRole(auth.RoleOperator))

		r.Get("/", dh.List)
		r.Post("/", dh.Action)
	})

	// Cron trigger for the stale-job sweep; the in-process ticker in main
	// covers deployments without an external scheduler.
	reaper := &jobs.Reaper{Repo: jobsRepo, DLQ: dlqSvc, StaleAfter: cfg.StaleAfter}
	rh := &handler.ReaperHandler{Reaper: reaper, Secret: cfg.CronSecret}
	r.Post("/internal/reaper", rh.Trigger)

	return r
}
