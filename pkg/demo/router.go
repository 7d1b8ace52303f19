// Routing and the tracing boundary: one root span per handled request,
// request metrics for everything except the exposition endpoint.
package demo

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// handlerFunc is a traced handler: non-nil errors are converted to the
// documented status by the boundary, never surfaced as process faults.
type handlerFunc func(w http.ResponseWriter, r *http.Request) error

// Routes builds the full HTTP surface.
func (s *Service) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.observeRequests)

	r.Get("/", s.traced("handle-root", s.handleRoot))
	r.Get("/api/users", s.traced("get-users", s.handleUsers))
	r.Get("/api/users/{id}", s.traced("get-user-by-id", s.handleUserByID))
	r.Get("/api/orders", s.traced("create-order", s.handleOrders))
	r.Get("/api/slow", s.traced("slow-endpoint", s.handleSlow))
	r.Get("/api/error", s.traced("error-endpoint", s.handleError))
	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.prom.Handler())

	return r
}

// traced opens the request's root span and converts handler errors to HTTP
// responses. The span always ends exactly once, error paths included.
func (s *Service) traced(name string, h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := s.tracer.Start(r.Context(), name, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		err := h(w, r.WithContext(ctx))
		if err == nil {
			return
		}

		status, kind := http.StatusInternalServerError, "Internal"
		var reqErr *requestError
		if errors.As(err, &reqErr) {
			status, kind = reqErr.status, reqErr.kind
		}

		span.SetStatus(codes.Error, err.Error())
		if status >= http.StatusInternalServerError {
			span.RecordError(err)
			span.SetAttributes(attribute.String("error.type", kind))
			s.logger.ErrorContext(ctx, "request failed",
				slog.String("error.type", kind),
				slog.Any("error", err),
			)
		}
		writeError(w, status, err)
	}
}

// observeRequests records counter and duration for every completed request.
// The exposition endpoint is excluded so scrapes do not inflate their own
// counts; unmatched paths share one fixed label value.
func (s *Service) observeRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "/metrics" {
			return
		}
		if route == "" {
			route = "unmatched"
		}

		info := RequestInfo{
			Method:   r.Method,
			Route:    route,
			Status:   rec.status,
			Duration: time.Since(start),
		}
		for _, obs := range s.observers {
			obs.ObserveRequest(r.Context(), info)
		}
	})
}

// statusRecorder captures the status code written by downstream handlers.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, body any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	_ = writeJSON(w, status, map[string]string{"error": err.Error()})
}
