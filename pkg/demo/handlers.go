// HTTP handlers. Each traced handler returns an error to the routing
// boundary, which converts it to the documented status and span telemetry.
package demo

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// requestError carries an HTTP status and a bounded error class to the boundary.
type requestError struct {
	status int
	kind   string
	err    error
}

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

func errUserNotFound() *requestError {
	return &requestError{
		status: http.StatusNotFound,
		kind:   "NotFound",
		err:    errors.New("User not found"),
	}
}

func errSimulated() *requestError {
	return &requestError{
		status: http.StatusInternalServerError,
		kind:   "SimulatedError",
		err:    errors.New("This is a simulated error for testing"),
	}
}

func (s *Service) handleRoot(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("custom.attribute", "hello-world"))

	s.logger.InfoContext(ctx, "processing request at / endpoint")
	if err := s.simulate(ctx, s.baseLatency); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "successfully processed / request")

	return writeJSON(w, http.StatusOK, map[string]any{
		"message": "Hello from OTel Sample App!",
		"status":  "success",
	})
}

func (s *Service) handleUsers(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	s.logger.InfoContext(ctx, "fetching users list")

	users, err := s.fetchUsers(ctx)
	if err != nil {
		return err
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.Int("users.count", len(users)))
	s.logger.InfoContext(ctx, "retrieved users", slog.Int("count", len(users)))

	return writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

// fetchUsers simulates the dataset lookup under its own child span.
func (s *Service) fetchUsers(ctx context.Context) ([]User, error) {
	ctx, span := s.tracer.Start(ctx, "fetch-users")
	defer span.End()

	if err := s.simulate(ctx, 2*s.baseLatency); err != nil {
		return nil, err
	}
	return s.users, nil
}

func (s *Service) handleUserByID(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	span := trace.SpanFromContext(ctx)

	idParam := chi.URLParam(r, "id")
	s.logger.InfoContext(ctx, "fetching user", slog.String("id", idParam))

	id, err := strconv.Atoi(idParam)
	if err != nil {
		s.logger.WarnContext(ctx, "user id is not an integer", slog.String("id", idParam))
		span.SetAttributes(attribute.Bool("error", true))
		return errUserNotFound()
	}
	span.SetAttributes(attribute.Int("user.id", id))

	if err := s.simulate(ctx, 2*s.baseLatency); err != nil {
		return err
	}

	user, ok := s.usersByID[id]
	if !ok {
		s.logger.WarnContext(ctx, "user not found", slog.Int("user.id", id))
		span.SetAttributes(attribute.Bool("error", true))
		return errUserNotFound()
	}
	s.logger.InfoContext(ctx, "retrieved user", slog.String("name", user.Name))

	return writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

func (s *Service) handleSlow(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	s.logger.InfoContext(ctx, "processing slow request")
	delay := s.slowDelay()
	trace.SpanFromContext(ctx).SetAttributes(attribute.Float64("delay.seconds", delay.Seconds()))
	s.logger.InfoContext(ctx, "simulating slow operation", slog.Duration("delay", delay))

	if err := s.simulate(ctx, delay); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "slow operation completed")

	return writeJSON(w, http.StatusOK, map[string]any{
		"message": "Slow operation completed",
		"delay":   delay.Seconds(),
	})
}

func (s *Service) handleError(_ http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	s.logger.InfoContext(ctx, "simulating an error scenario")
	trace.SpanFromContext(ctx).SetAttributes(attribute.Bool("error", true))
	return errSimulated()
}

// handleHealth is served without a span; health checks are excluded from
// tracing to reduce noise. It still counts toward the request metrics.
func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	_ = writeJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"service": s.name,
	})
}

// simulate blocks for d to stand in for real work, honoring cancellation so
// a disconnected client does not leak an open span.
func (s *Service) simulate(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
