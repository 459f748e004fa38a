package handler

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"filevault/internal/logger"
)

const readinessTimeout = 2 * time.Second

// Pinger - зависимость, доступность которой проверяет readiness
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc позволяет передать функцию как Pinger
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

type HealthHandler struct {
	checks map[string]Pinger
	log    *logger.Logger
}

func NewHealthHandler(checks map[string]Pinger, log *logger.Logger) *HealthHandler {
	return &HealthHandler{checks: checks, log: log.Named("health")}
}

func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready отвечает 503, если хотя бы одна зависимость недоступна
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	results := make(map[string]string, len(h.checks))

	for name, check := range h.checks {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		err := check.Ping(ctx)
		cancel()

		if err != nil {
			h.log.Warn("readiness check failed", zap.String("check", name), zap.Error(err))
			results[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	state := "ok"
	if status != http.StatusOK {
		state = "unavailable"
	}

	writeJSON(w, status, map[string]interface{}{
		"status": state,
		"checks": results,
	})
}
