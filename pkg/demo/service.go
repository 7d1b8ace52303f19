// Service wiring: dataset, telemetry handles, and simulated-latency knobs.
package demo

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// Service is the instrumented demo application. Handlers share no mutable
// state beyond the metric registries, which are concurrent-safe.
type Service struct {
	name        string
	tracer      trace.Tracer
	logger      *slog.Logger
	prom        *PromMetrics
	observers   []RequestObserver
	users       []User
	usersByID   map[int]User
	baseLatency time.Duration
	slowDelay   func() time.Duration
}

// ServiceOptions configures NewService. Zero values select noop telemetry,
// the built-in dataset, and no simulated latency, which is what tests want.
type ServiceOptions struct {
	Name           string
	Users          []User
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
	Logger         *slog.Logger
	BaseLatency    time.Duration         // unit of simulated work in non-slow handlers
	SlowDelay      func() time.Duration  // per-request delay for the slow endpoint
}

// NewService validates the dataset and wires the metric observers.
func NewService(opts ServiceOptions) (*Service, error) {
	name := opts.Name
	if name == "" {
		name = defaultServiceName
	}

	users := opts.Users
	if users == nil {
		users = DefaultUsers()
	}
	if err := ValidateUsers(users); err != nil {
		return nil, err
	}
	usersByID := make(map[int]User, len(users))
	for _, u := range users {
		usersByID[u.ID] = u
	}

	tp := opts.TracerProvider
	if tp == nil {
		tp = tracenoop.NewTracerProvider()
	}
	mp := opts.MeterProvider
	if mp == nil {
		mp = metricnoop.NewMeterProvider()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	requestMetrics, err := NewRequestMetrics(mp)
	if err != nil {
		return nil, fmt.Errorf("creating request metrics: %w", err)
	}
	prom := NewPromMetrics()

	slowDelay := opts.SlowDelay
	if slowDelay == nil {
		slowDelay = defaultSlowDelay
	}

	return &Service{
		name:        name,
		tracer:      tp.Tracer(name),
		logger:      logger,
		prom:        prom,
		observers:   []RequestObserver{prom, requestMetrics},
		users:       users,
		usersByID:   usersByID,
		baseLatency: opts.BaseLatency,
		slowDelay:   slowDelay,
	}, nil
}

// defaultSlowDelay samples uniformly from [1s, 3s). Concurrent-safe.
func defaultSlowDelay() time.Duration {
	return time.Second + rand.N(2*time.Second)
}
