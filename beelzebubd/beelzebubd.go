// Package beelzebubd implements the server half of beelzebub: an HTTP API
// that authenticates usage submissions from clients and persists them.
package beelzebubd

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cdr.dev/slog"

	"github.com/hamuko/beelzebub/beelzebubd/database"
	"github.com/hamuko/beelzebub/beelzebubd/httpapi"
)

// Options are the required parameters for the server.
type Options struct {
	Logger   slog.Logger
	Database database.Store
	// Secret, when non-empty, is required on all submissions.
	Secret string
	// PrometheusRegistry is optional; a fresh registry is created when nil.
	PrometheusRegistry *prometheus.Registry
}

// New constructs the beelzebub API into an HTTP handler.
func New(options *Options) http.Handler {
	if options.PrometheusRegistry == nil {
		options.PrometheusRegistry = prometheus.NewRegistry()
	}

	api := &api{
		Options: options,
		eventsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "beelzebubd",
			Name:      "events_ingested_total",
			Help:      "Number of usage events persisted.",
		}),
		authFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "beelzebubd",
			Name:      "auth_failures_total",
			Help:      "Number of submissions rejected for a missing or mismatched secret.",
		}),
		storageErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "beelzebubd",
			Name:      "storage_errors_total",
			Help:      "Number of submissions that failed to persist.",
		}),
	}
	options.PrometheusRegistry.MustRegister(api.eventsIngested, api.authFailures, api.storageErrors)

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.Recoverer,
		requestLogger(options.Logger),
	)
	r.Get("/healthz", api.healthz)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(
		options.PrometheusRegistry, promhttp.HandlerOpts{},
	))
	r.Post("/submit", api.postSubmit)
	return r
}

type api struct {
	*Options

	eventsIngested prometheus.Counter
	authFailures   prometheus.Counter
	storageErrors  prometheus.Counter
}

func (api *api) healthz(rw http.ResponseWriter, r *http.Request) {
	latency, err := api.Database.Ping(r.Context())
	if err != nil {
		api.Logger.Error(r.Context(), "database unreachable", slog.Error(err))
		httpapi.Write(rw, http.StatusInternalServerError, httpapi.Response{
			Message: "database unreachable",
		})
		return
	}
	httpapi.Write(rw, http.StatusOK, httpapi.Response{
		Message: "ok: database RTT " + latency.String(),
	})
}

func requestLogger(logger slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			sw := middleware.NewWrapResponseWriter(rw, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(sw, r)
			logger.Debug(r.Context(), "http request",
				slog.F("method", r.Method),
				slog.F("path", r.URL.Path),
				slog.F("status", sw.Status()),
				slog.F("elapsed", time.Since(start)),
			)
		})
	}
}
