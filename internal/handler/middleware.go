package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"filevault/internal/auth"
	"filevault/internal/logger"
)

// RequestLogger пишет каждый запрос в zap и кладёт логгер запроса в контекст
func RequestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			reqLog := log.With(
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
			)

			next.ServeHTTP(ww, r.WithContext(logger.ToContext(r.Context(), reqLog)))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			reqLog.Info("request completed",
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote_addr", r.RemoteAddr),
			)
		})
	}
}

// ownerLogger добавляет owner_id к логгеру запроса после аутентификации
func ownerLogger(fallback *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ownerID, ok := auth.OwnerFromContext(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			reqLog := logger.FromContext(r.Context(), fallback).With(zap.String("owner_id", ownerID))
			next.ServeHTTP(w, r.WithContext(logger.ToContext(r.Context(), reqLog)))
		})
	}
}
