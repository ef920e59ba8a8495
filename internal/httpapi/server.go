// Package httpapi serves the exporter's two endpoints: the Prometheus
// exposition at /metrics and the exporter's own liveness at /health.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"ollama-exporter/internal/metrics"
	"ollama-exporter/pkg/types"
)

// Options wires the mux to its collaborators. Everything is passed
// explicitly so tests can build an isolated mux per case.
type Options struct {
	Metrics    *metrics.Metrics
	OllamaHost string
	// ShuttingDown reports whether a termination signal has been received.
	// May be nil, in which case /health always reports healthy.
	ShuttingDown func() bool
	Log          zerolog.Logger

	// CORS is opt-in; when enabled with no origins, "*" is allowed.
	EnableCORS  bool
	CORSOrigins []string
}

// NewMux builds the exporter's HTTP handler. Any path other than /metrics
// and /health answers 404 with an empty body.
func NewMux(opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, req)
		})
	})
	if opts.EnableCORS {
		origins := opts.CORSOrigins
		if len(origins) == 0 {
			origins = []string{"*"}
		}
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet},
		}))
	}
	r.Use(accessLog(opts.Log))

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	r.Get("/metrics", opts.Metrics.Handler().ServeHTTP)

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		status := "healthy"
		if opts.ShuttingDown != nil && opts.ShuttingDown() {
			status = "shutting_down"
		}
		resp := types.HealthResponse{
			Status:     status,
			Timestamp:  time.Now().UTC().Format(time.RFC3339),
			OllamaHost: opts.OllamaHost,
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
		}
	})

	return r
}

// accessLog logs every request at debug level with its id and duration.
func accessLog(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, req)
			log.Debug().
				Str("path", req.URL.Path).
				Str("request_id", middleware.GetReqID(req.Context())).
				Dur("dur", time.Since(start)).
				Msg("request served")
		})
	}
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}
