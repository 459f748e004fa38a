package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"filevault/internal/auth"
	"filevault/internal/logger"
	"filevault/internal/metrics"
)

type RouterConfig struct {
	Files          *FileHandler
	Health         *HealthHandler
	Auth           *auth.Manager
	Metrics        *metrics.Metrics
	MetricsHandler http.Handler
	RequestTimeout time.Duration
	Log            *logger.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(cfg.Log))
	r.Use(middleware.Recoverer)
	r.Use(cfg.Metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition", "Content-Length"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health/live", cfg.Health.Live)
	r.Get("/health/ready", cfg.Health.Ready)
	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	// HTTP маршруты
	r.Route("/v1", func(r chi.Router) {
		if cfg.RequestTimeout > 0 {
			r.Use(middleware.Timeout(cfg.RequestTimeout))
		}
		r.Use(cfg.Auth.Middleware(func(w http.ResponseWriter, r *http.Request, err error) {
			writeError(w, r, cfg.Log, err)
		}))
		r.Use(ownerLogger(cfg.Log))

		r.Post("/files", cfg.Files.UploadFile)
		r.Get("/files", cfg.Files.ListFiles)
		r.Get("/files/summary", cfg.Files.GetSummary)
		r.Post("/files/delete", cfg.Files.DeleteFiles)
		r.Get("/files/{id}", cfg.Files.DownloadFile)
		r.Delete("/files/{id}", cfg.Files.DeleteFile)
	})

	return r
}
