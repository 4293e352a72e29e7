// Package server exposes the dispatcher over HTTP.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/isometry/adis/internal/dispatch"
)

// Subsystem is the tflog subsystem used for HTTP logging.
const Subsystem = "server"

// APIKeyHeader carries the shared secret on /execute.
const APIKeyHeader = "X-API-Key"

// maxBodyBytes caps the size of an /execute request body.
const maxBodyBytes = 1 << 20

// Executor runs one operation request.
type Executor interface {
	Execute(ctx context.Context, req dispatch.Request) (dispatch.Envelope, error)
}

// RouterOptions controls the construction of the HTTP router.
type RouterOptions struct {
	Executor Executor
	APIKey   string
	Version  string

	// Metrics is mounted at /metrics when set.
	Metrics http.Handler

	// Now defaults to time.Now.
	Now func() time.Time
}

// NewRouter assembles the chi router with shared middleware and all routes.
func NewRouter(opts RouterOptions) chi.Router {
	if opts.Now == nil {
		opts.Now = time.Now
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", handleHealth(opts.Version, opts.Now))

	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.With(requireAPIKey(opts.APIKey)).Post("/execute", handleExecute(opts.Executor))

	return r
}

func handleHealth(version string, now func() time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":    "healthy",
			"timestamp": now().UTC().Format(time.RFC3339),
			"version":   version,
		})
	}
}

func handleExecute(exec Executor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req dispatch.Request

		decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "malformed request body: "+err.Error())
			return
		}

		envelope, err := exec.Execute(r.Context(), req)
		writeJSON(w, statusFor(err), envelope)
	}
}

// statusFor maps a dispatch failure to its HTTP status.
func statusFor(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var dispatchErr *dispatch.Error
	if !errors.As(err, &dispatchErr) {
		return http.StatusInternalServerError
	}

	switch dispatchErr.Kind {
	case dispatch.KindValidation:
		return http.StatusUnprocessableEntity
	case dispatch.KindConnection:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func requireAPIKey(key string) func(http.Handler) http.Handler {
	expected := []byte(key)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := []byte(r.Header.Get(APIKeyHeader))
			if len(expected) == 0 || subtle.ConstantTimeCompare(provided, expected) != 1 {
				tflog.SubsystemWarn(r.Context(), Subsystem, "Rejected request with invalid API key", map[string]any{
					"path":       r.URL.Path,
					"request_id": middleware.GetReqID(r.Context()),
				})
				writeError(w, http.StatusUnauthorized, "invalid or missing API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		tflog.SubsystemInfo(r.Context(), Subsystem, "Request handled", map[string]any{
			"http_method": r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"bytes":       ww.BytesWritten(),
			"duration_ms": time.Since(start).Milliseconds(),
			"request_id":  middleware.GetReqID(r.Context()),
			"remote_addr": r.RemoteAddr,
		})
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, dispatch.Envelope{ErrorText: &msg})
}
