// Package metrics - Prometheus метрики HTTP и жизненного цикла файлов.
// Методы Metrics безопасно вызывать на nil.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "filevault"

// Результаты операций для лейбла result
const (
	ResultSuccess     = "success"
	ResultRejected    = "rejected"
	ResultFailed      = "failed"
	ResultNotFound    = "not_found"
	ResultRolledBack  = "rolled_back"
	ResultUnavailable = "unavailable"
)

type Metrics struct {
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	uploads       *prometheus.CounterVec
	uploadedBytes prometheus.Counter
	downloads     *prometheus.CounterVec
	deletes       *prometheus.CounterVec
	orphans       prometheus.Counter
}

// New регистрирует метрики в reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Общее количество HTTP-запросов",
			},
			[]string{"method", "path", "status"},
		),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Длительность HTTP-запросов в секундах",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		uploads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "uploads_total",
				Help:      "Загрузки файлов по итогу",
			},
			[]string{"result"},
		),
		uploadedBytes: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "uploaded_bytes_total",
				Help:      "Объём успешно загруженных данных в байтах",
			},
		),
		downloads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "downloads_total",
				Help:      "Скачивания файлов по итогу",
			},
			[]string{"result"},
		),
		deletes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deletes_total",
				Help:      "Удаления файлов по итогу",
			},
			[]string{"result"},
		),
		orphans: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "orphaned_blobs_total",
				Help:      "Блобы, оставшиеся в хранилище без метаданных после неудачной компенсации",
			},
		),
	}
}

func (m *Metrics) ObserveUpload(result string, bytes int64) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(result).Inc()
	if result == ResultSuccess && bytes > 0 {
		m.uploadedBytes.Add(float64(bytes))
	}
}

func (m *Metrics) ObserveDownload(result string) {
	if m == nil {
		return
	}
	m.downloads.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveDelete(result string) {
	if m == nil {
		return
	}
	m.deletes.WithLabelValues(result).Inc()
}

func (m *Metrics) OrphanedBlob() {
	if m == nil {
		return
	}
	m.orphans.Inc()
}

// Middleware считает запросы и их длительность.
// Путь берётся из шаблона маршрута chi, чтобы id не раздували кардинальность.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := newResponseWriter(w)
		next.ServeHTTP(wrapped, r)

		path := routePattern(r)
		duration := time.Since(start).Seconds()
		status := strconv.Itoa(wrapped.statusCode)

		m.httpRequests.WithLabelValues(r.Method, path, status).Inc()
		m.httpDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

// responseWriter перехватывает статус-код
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
